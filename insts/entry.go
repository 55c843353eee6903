package insts

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
)

// MemPort is the data memory interface instruction semantics use. Loads
// are asynchronous; stores and atomics complete immediately.
type MemPort interface {
	// Load issues an asynchronous read. req.OnComplete runs when the value
	// arrives. An address fault is returned immediately.
	Load(req *emu.MemReq) error

	// Store writes the low size bytes of value at addr.
	Store(hart int, addr uint64, size int, value uint64) error

	// AMO atomically replaces the value at addr with op(old) and returns
	// the old value.
	AMO(hart int, addr uint64, size int, op func(old uint64) uint64) (uint64, error)

	// LoadReserved reads addr and registers a reservation for hart.
	LoadReserved(hart int, addr uint64, size int) (uint64, error)

	// StoreConditional writes value if hart still holds a reservation on
	// addr. It reports whether the store happened.
	StoreConditional(hart int, addr uint64, size int, value uint64) (bool, error)
}

// System is the environment interface for instructions that leave the
// hart: environment calls and instruction-stream fences.
type System interface {
	// Ecall services an environment call from hart.
	Ecall(hart int) error
	// FenceI synchronizes the instruction stream of hart with memory.
	FenceI(hart int)
}

// Env is what an instruction's semantics see while executing.
type Env struct {
	Hart     int
	Features *feature.Features
	Regs     *emu.RegFile
	Mem      MemPort
	System   System
}

// Semantics implements the behavior of one instruction. A returned
// *emu.Exception is an architectural trap; any other error is a simulator
// fault.
type Semantics func(env *Env, inst *Instruction) error

// CImm selects how a compressed instruction's immediate is assembled.
type CImm uint8

// Compressed immediate layouts.
const (
	CImmNone  CImm = iota
	CImmCI         // signed imm[5|4:0] (C.ADDI, C.LI, C.ADDIW, C.ANDI)
	CImmShift      // unsigned shamt[5|4:0]
	CImmLUI        // signed nzimm[17|16:12]
	CImm16SP       // signed nzimm[9|4|6|8:7|5] (C.ADDI16SP)
	CImm4SPN       // unsigned nzuimm[5:4|9:6|2|3] (C.ADDI4SPN)
	CImmLWSP       // unsigned uimm[5|4:2|7:6]
	CImmLDSP       // unsigned uimm[5|4:3|8:6]
	CImmSWSP       // unsigned uimm[5:2|7:6]
	CImmSDSP       // unsigned uimm[5:3|8:6]
	CImmLW         // unsigned uimm[5:3|2|6]
	CImmLD         // unsigned uimm[5:3|7:6]
	CImmB          // signed offset[8|4:3|7:6|2:1|5]
	CImmJ          // signed offset[11|4|9:8|10|6|7|3:1|5]
)

// Entry describes one instruction: its encoding, operand classes, cost and
// semantics. Entries are plain values; extensions export slices of them.
type Entry struct {
	Mnemonic string
	Format   Format
	Class    Class
	Cost     uint32

	// Opcode is the 7-bit major opcode, or the quadrant (bits 1:0) for
	// compressed entries.
	Opcode uint8
	Funct3 uint8
	// AnyFunct3 marks entries whose funct3 bits are an operand (rounding
	// mode) or part of the immediate.
	AnyFunct3 bool
	// Funct7 holds funct7 for OP/OP-32/OP-FP, funct6 for 64-bit OP-IMM
	// shifts, funct5 for AMOs and funct2 for fused multiply-adds.
	Funct7 uint8
	// Sel holds the imm12 (SYSTEM) or rs2 (OP-FP) bits that select the
	// instruction when Imm is ImmEncoding.
	Sel uint16
	Imm ImmMode

	// CSel disambiguates compressed entries sharing quadrant and funct3.
	CSel uint8
	CImm CImm
	// Link marks compressed jumps whose destination is implicitly ra.
	Link bool

	Rd  emu.RegClass
	Rs1 emu.RegClass
	Rs2 emu.RegClass
	Rs3 emu.RegClass

	// Predicate rejects reserved encodings that otherwise match the entry.
	Predicate func(raw uint32) bool
	Exec      Semantics
}

// IsCompressed reports whether the entry describes a 16-bit instruction.
func (e *Entry) IsCompressed() bool {
	return e.Format.IsCompressed()
}

// Key returns the encoding key of the entry.
func (e *Entry) Key() uint64 {
	if e.IsCompressed() {
		return CompressCEncoding(e)
	}
	return CompressEncoding(e)
}

// Encoding key layout of standard instructions:
//
//	bits  0-6   opcode
//	bits  7-9   funct3
//	bit   10    funct3 is an operand
//	bits 11-17  funct7 / funct6 / funct5 / funct2
//	bits 18-29  imm12 or rs2 selector
//	bit   30    selector present
//
// Compressed keys set bit 40 and pack quadrant, funct3 and the selector.
const (
	keyAnyFunct3  = uint64(1) << 10
	keyHasSel     = uint64(1) << 30
	keyCompressed = uint64(1) << 40
)

func encodeKey(opcode, funct3 uint8, anyFunct3 bool, funct7 uint8, sel uint16, hasSel bool) uint64 {
	key := uint64(opcode&0x7F) | uint64(funct7&0x7F)<<11
	if anyFunct3 {
		key |= keyAnyFunct3
	} else {
		key |= uint64(funct3&0x7) << 7
	}
	if hasSel {
		key |= uint64(sel&0xFFF)<<18 | keyHasSel
	}
	return key
}

func encodeCKey(quadrant, funct3, csel uint8) uint64 {
	return keyCompressed | uint64(quadrant&0x3) | uint64(funct3&0x7)<<2 | uint64(csel)<<5
}

// CompressEncoding folds the encoding fields of a standard entry into its
// table key.
func CompressEncoding(e *Entry) uint64 {
	return encodeKey(e.Opcode, e.Funct3, e.AnyFunct3, e.Funct7, e.Sel, e.Imm == ImmEncoding)
}

// CompressCEncoding folds the encoding fields of a compressed entry into
// its table key.
func CompressCEncoding(e *Entry) uint64 {
	return encodeCKey(e.Opcode, e.Funct3, e.CSel)
}

// Extension is a named group of instruction entries that is merged into
// the table when the configuration enables it.
type Extension interface {
	Name() string
	Enabled(f *feature.Features) bool
	Table() []Entry
}
