// Package insts provides RISC-V instruction descriptors, the instruction
// table and the decoder.
//
// The table is built once at configuration time by merging the entries of
// every enabled extension. Each entry is folded into a single integer
// encoding key; decoding a raw word computes the same key from the word's
// opcode and function fields and looks it up in one map.
//
// It supports:
//   - Standard 32-bit formats: R, I, S, U, B, J and R4
//   - Compressed 16-bit formats: CR, CI, CSS, CIW, CL, CS, CA, CB and CJ
//
// Usage:
//
//	table := insts.NewTable()
//	if _, err := table.EnableExt(ext, features); err != nil { ... }
//	decoder := insts.NewDecoder(table, features)
//	inst, err := decoder.Decode(0x00A58533) // add a0, a1, a0
package insts
