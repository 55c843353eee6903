package insts

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
)

// Major opcodes that need field handling beyond funct3.
const (
	OpcodeLoad    uint8 = 0x03
	OpcodeLoadFP  uint8 = 0x07
	OpcodeMiscMem uint8 = 0x0F
	OpcodeOpImm   uint8 = 0x13
	OpcodeAUIPC   uint8 = 0x17
	OpcodeOpImm32 uint8 = 0x1B
	OpcodeStore   uint8 = 0x23
	OpcodeStoreFP uint8 = 0x27
	OpcodeAMO     uint8 = 0x2F
	OpcodeOp      uint8 = 0x33
	OpcodeLUI     uint8 = 0x37
	OpcodeOp32    uint8 = 0x3B
	OpcodeMAdd    uint8 = 0x43
	OpcodeMSub    uint8 = 0x47
	OpcodeNMSub   uint8 = 0x4B
	OpcodeNMAdd   uint8 = 0x4F
	OpcodeOpFP    uint8 = 0x53
	OpcodeBranch  uint8 = 0x63
	OpcodeJALR    uint8 = 0x67
	OpcodeJAL     uint8 = 0x6F
	OpcodeSystem  uint8 = 0x73
)

// Fetcher supplies instruction words to the decoder.
type Fetcher interface {
	// InstFetch returns the 32 bits starting at addr. fetched is false
	// while the bits are not yet available.
	InstFetch(addr uint64) (word uint32, fetched bool, err error)
}

// Decoder decodes raw instruction words against an instruction table.
type Decoder struct {
	table      *Table
	compressed bool
}

// NewDecoder creates a decoder. Compressed encodings are accepted only
// when f enables the C extension.
func NewDecoder(table *Table, f *feature.Features) *Decoder {
	return &Decoder{
		table:      table,
		compressed: f.Has(feature.ExtC),
	}
}

// Table returns the table the decoder looks instructions up in.
func (d *Decoder) Table() *Table {
	return d.table
}

// DecodeInst fetches and decodes the instruction at pc. fetched is false
// when the fetcher has not delivered the bits yet; the caller retries on a
// later cycle. A misaligned pc or an illegal encoding is returned as an
// *emu.Exception.
func (d *Decoder) DecodeInst(pc uint64, fetcher Fetcher) (inst *Instruction, fetched bool, err error) {
	align := uint64(0x3)
	if d.compressed {
		align = 0x1
	}
	if pc&align != 0 {
		return nil, false, emu.NewException(emu.CauseMisalignedFetch, pc)
	}

	word, fetched, err := fetcher.InstFetch(pc)
	if err != nil || !fetched {
		return nil, fetched, err
	}

	inst, err = d.Decode(word)
	return inst, true, err
}

// Decode decodes one instruction. If the low two bits of raw are not both
// set, the low 16 bits are decoded as a compressed instruction.
func (d *Decoder) Decode(raw uint32) (*Instruction, error) {
	if raw&0x3 != 0x3 {
		return d.decodeCompressed(uint16(raw))
	}
	return d.decodeStandard(raw)
}

// rs2Selected lists the OP-FP funct7 values whose rs2 field selects the
// operation instead of naming a register.
var rs2Selected = map[uint8]bool{
	0x20: true, 0x21: true, // FCVT.S.D, FCVT.D.S
	0x2C: true, 0x2D: true, // FSQRT
	0x60: true, 0x61: true, // FCVT.int.fp
	0x68: true, 0x69: true, // FCVT.fp.int
	0x70: true, 0x71: true, // FMV.X.fp, FCLASS
	0x78: true, 0x79: true, // FMV.fp.X
}

// standardSelectors extracts the function fields that take part in the
// encoding key of opcode.
func standardSelectors(opcode, funct3 uint8, raw uint32) (funct7 uint8, sel uint16, hasSel bool) {
	switch opcode {
	case OpcodeOp, OpcodeOp32:
		return uint8(raw >> 25), 0, false
	case OpcodeOpImm:
		if funct3 == 0x1 || funct3 == 0x5 {
			return uint8(raw>>26) & 0x3F, 0, false
		}
	case OpcodeOpImm32:
		if funct3 == 0x1 || funct3 == 0x5 {
			return uint8(raw >> 25), 0, false
		}
	case OpcodeSystem:
		if funct3 == 0 {
			return 0, uint16(raw >> 20), true
		}
	case OpcodeAMO:
		return uint8(raw>>27) & 0x1F, 0, false
	case OpcodeOpFP:
		funct7 = uint8(raw >> 25)
		if rs2Selected[funct7] {
			return funct7, uint16(raw>>20) & 0x1F, true
		}
		return funct7, 0, false
	case OpcodeMAdd, OpcodeMSub, OpcodeNMSub, OpcodeNMAdd:
		return uint8(raw>>25) & 0x3, 0, false
	}
	return 0, 0, false
}

func (d *Decoder) decodeStandard(raw uint32) (*Instruction, error) {
	opcode := uint8(raw & 0x7F)
	funct3 := uint8(raw>>12) & 0x7
	funct7, sel, hasSel := standardSelectors(opcode, funct3, raw)

	entry, idx, ok := d.table.Lookup(encodeKey(opcode, funct3, false, funct7, sel, hasSel))
	if !ok {
		entry, idx, ok = d.table.Lookup(encodeKey(opcode, 0, true, funct7, sel, hasSel))
	}
	if !ok || (entry.Predicate != nil && !entry.Predicate(raw)) {
		return nil, emu.IllegalInstruction(raw)
	}

	inst := newInstruction(entry, idx)
	inst.Raw = raw
	inst.Opcode = opcode
	inst.Funct3 = funct3
	inst.Funct7 = funct7
	inst.Size = 4

	rd := uint8(raw>>7) & 0x1F
	rs1 := uint8(raw>>15) & 0x1F
	rs2 := uint8(raw>>20) & 0x1F

	switch entry.Format {
	case FormatR:
		inst.Rd, inst.Rs1, inst.Rs2 = rd, rs1, rs2
	case FormatI:
		inst.Rd, inst.Rs1 = rd, rs1
		inst.Imm = signExtend(uint64(raw>>20), 12)
	case FormatS:
		inst.Rs1, inst.Rs2 = rs1, rs2
		inst.Imm = signExtend(uint64(raw>>25)<<5|uint64(raw>>7)&0x1F, 12)
	case FormatU:
		inst.Rd = rd
		inst.Imm = int64(int32(raw & 0xFFFFF000))
	case FormatB:
		inst.Rs1, inst.Rs2 = rs1, rs2
		inst.Imm = signExtend(bits(raw, 31, 31)<<12|
			bits(raw, 7, 7)<<11|
			bits(raw, 30, 25)<<5|
			bits(raw, 11, 8)<<1, 13)
	case FormatJ:
		inst.Rd = rd
		inst.Imm = signExtend(bits(raw, 31, 31)<<20|
			bits(raw, 19, 12)<<12|
			bits(raw, 20, 20)<<11|
			bits(raw, 30, 21)<<1, 21)
	case FormatR4:
		inst.Rd, inst.Rs1, inst.Rs2 = rd, rs1, rs2
		inst.Rs3 = uint8(raw >> 27)
		inst.Funct2 = uint8(raw>>25) & 0x3
	}

	switch opcode {
	case OpcodeOpFP, OpcodeMAdd, OpcodeMSub, OpcodeNMSub, OpcodeNMAdd:
		inst.RM = emu.RoundingMode(funct3)
	case OpcodeAMO:
		inst.Aq = raw&(1<<26) != 0
		inst.Rl = raw&(1<<25) != 0
	}

	return inst, nil
}

// compressedSelector computes the selector that distinguishes compressed
// instructions sharing a quadrant and funct3.
func compressedSelector(quadrant, funct3 uint8, raw uint16) uint8 {
	switch {
	case quadrant == 1 && funct3 == 0x3:
		// C.ADDI16SP uses rd == sp, C.LUI any other rd.
		if (raw>>7)&0x1F == uint16(emu.RegSP) {
			return 1
		}
	case quadrant == 1 && funct3 == 0x4:
		funct2 := uint8(raw>>10) & 0x3
		if funct2 != 0x3 {
			return funct2
		}
		return 0x10 | uint8(raw>>12)&0x1<<2 | uint8(raw>>5)&0x3
	case quadrant == 2 && funct3 == 0x4:
		bit12 := uint8(raw>>12) & 0x1
		rs2Zero := (raw>>2)&0x1F == 0
		rs1Zero := (raw>>7)&0x1F == 0
		sel := bit12
		if rs2Zero {
			sel |= 0x2
			if bit12 == 1 && rs1Zero {
				sel |= 0x4
			}
		}
		return sel
	}
	return 0
}

func (d *Decoder) decodeCompressed(raw uint16) (*Instruction, error) {
	if !d.compressed {
		return nil, emu.IllegalInstruction(uint32(raw))
	}

	quadrant := uint8(raw & 0x3)
	funct3 := uint8(raw >> 13)
	csel := compressedSelector(quadrant, funct3, raw)

	entry, idx, ok := d.table.Lookup(encodeCKey(quadrant, funct3, csel))
	if !ok || (entry.Predicate != nil && !entry.Predicate(uint32(raw))) {
		return nil, emu.IllegalInstruction(uint32(raw))
	}

	inst := newInstruction(entry, idx)
	inst.Raw = uint32(raw)
	inst.Opcode = quadrant
	inst.Funct3 = funct3
	inst.Size = 2

	full := uint8(raw>>7) & 0x1F
	full2 := uint8(raw>>2) & 0x1F
	prime := 8 + uint8(raw>>7)&0x7
	prime2 := 8 + uint8(raw>>2)&0x7

	switch entry.Format {
	case FormatCR:
		inst.Rd, inst.Rs1, inst.Rs2 = full, full, full2
	case FormatCI:
		inst.Rd, inst.Rs1 = full, full
	case FormatCSS:
		inst.Rs1, inst.Rs2 = emu.RegSP, full2
	case FormatCIW:
		inst.Rd, inst.Rs1 = prime2, emu.RegSP
	case FormatCL:
		inst.Rd, inst.Rs1 = prime2, prime
	case FormatCS:
		inst.Rs1, inst.Rs2 = prime, prime2
	case FormatCA, FormatCB:
		inst.Rd, inst.Rs1, inst.Rs2 = prime, prime, prime2
	}

	switch entry.CImm {
	case CImmLWSP, CImmLDSP:
		inst.Rs1 = emu.RegSP
	case CImmB:
		inst.Rs2 = 0
	}
	if entry.Link {
		inst.Rd = emu.RegRA
	}
	inst.Imm = compressedImm(entry.CImm, raw)

	return inst, nil
}

// compressedImm assembles the immediate of a compressed instruction.
func compressedImm(kind CImm, raw uint16) int64 {
	c := func(hi, lo uint) uint64 { return bits(uint32(raw), hi, lo) }

	switch kind {
	case CImmCI:
		return signExtend(c(12, 12)<<5|c(6, 2), 6)
	case CImmShift:
		return int64(c(12, 12)<<5 | c(6, 2))
	case CImmLUI:
		return signExtend(c(12, 12)<<17|c(6, 2)<<12, 18)
	case CImm16SP:
		return signExtend(c(12, 12)<<9|c(6, 6)<<4|c(5, 5)<<6|c(4, 3)<<7|c(2, 2)<<5, 10)
	case CImm4SPN:
		return int64(c(12, 11)<<4 | c(10, 7)<<6 | c(6, 6)<<2 | c(5, 5)<<3)
	case CImmLWSP:
		return int64(c(12, 12)<<5 | c(6, 4)<<2 | c(3, 2)<<6)
	case CImmLDSP:
		return int64(c(12, 12)<<5 | c(6, 5)<<3 | c(4, 2)<<6)
	case CImmSWSP:
		return int64(c(12, 9)<<2 | c(8, 7)<<6)
	case CImmSDSP:
		return int64(c(12, 10)<<3 | c(9, 7)<<6)
	case CImmLW:
		return int64(c(12, 10)<<3 | c(6, 6)<<2 | c(5, 5)<<6)
	case CImmLD:
		return int64(c(12, 10)<<3 | c(6, 5)<<6)
	case CImmB:
		return signExtend(c(12, 12)<<8|c(11, 10)<<3|c(6, 5)<<6|c(4, 3)<<1|c(2, 2)<<5, 9)
	case CImmJ:
		return signExtend(c(12, 12)<<11|c(11, 11)<<4|c(10, 9)<<8|c(8, 8)<<10|
			c(7, 7)<<6|c(6, 6)<<7|c(5, 3)<<1|c(2, 2)<<5, 12)
	}
	return 0
}

func newInstruction(entry *Entry, idx int) *Instruction {
	cost := entry.Cost
	if cost == 0 {
		cost = 1
	}
	return &Instruction{
		Format:   entry.Format,
		Class:    entry.Class,
		Cost:     cost,
		Entry:    idx,
		RdClass:  entry.Rd,
		Rs1Class: entry.Rs1,
		Rs2Class: entry.Rs2,
		Rs3Class: entry.Rs3,
	}
}

// bits extracts raw[hi:lo].
func bits(raw uint32, hi, lo uint) uint64 {
	return uint64(raw>>lo) & (1<<(hi-lo+1) - 1)
}

// signExtend sign-extends the low width bits of v.
func signExtend(v uint64, width uint) int64 {
	shift := 64 - width
	return int64(v<<shift) >> shift
}
