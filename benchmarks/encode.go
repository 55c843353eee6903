package benchmarks

import "encoding/binary"

// RISC-V base opcodes used by the microbenchmarks.
const (
	opLoad   = 0x03
	opOpImm  = 0x13
	opStore  = 0x23
	opOp     = 0x33
	opBranch = 0x63
	opJALR   = 0x67
	opJAL    = 0x6F
	opSystem = 0x73
)

// EncodeR encodes an R-type instruction.
func EncodeR(opcode, funct3, funct7 uint32, rd, rs1, rs2 uint8) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
		funct3<<12 | uint32(rd)<<7 | opcode
}

// EncodeI encodes an I-type instruction with a 12-bit signed immediate.
func EncodeI(opcode, funct3 uint32, rd, rs1 uint8, imm int32) uint32 {
	return uint32(imm&0xFFF)<<20 | uint32(rs1)<<15 |
		funct3<<12 | uint32(rd)<<7 | opcode
}

// EncodeS encodes an S-type instruction.
func EncodeS(opcode, funct3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm & 0xFFF)
	return (u>>5)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
		funct3<<12 | (u&0x1F)<<7 | opcode
}

// EncodeB encodes a conditional branch with a byte offset.
func EncodeB(funct3 uint32, rs1, rs2 uint8, offset int32) uint32 {
	u := uint32(offset & 0x1FFF)
	return (u>>12&1)<<31 | (u>>5&0x3F)<<25 | uint32(rs2)<<20 |
		uint32(rs1)<<15 | funct3<<12 | (u>>1&0xF)<<8 | (u>>11&1)<<7 | opBranch
}

// EncodeJ encodes JAL with a byte offset.
func EncodeJ(rd uint8, offset int32) uint32 {
	u := uint32(offset & 0x1FFFFF)
	return (u>>20&1)<<31 | (u>>1&0x3FF)<<21 | (u>>11&1)<<20 |
		(u>>12&0xFF)<<12 | uint32(rd)<<7 | opJAL
}

// ADDI encodes addi rd, rs1, imm.
func ADDI(rd, rs1 uint8, imm int32) uint32 { return EncodeI(opOpImm, 0, rd, rs1, imm) }

// ADD encodes add rd, rs1, rs2.
func ADD(rd, rs1, rs2 uint8) uint32 { return EncodeR(opOp, 0, 0, rd, rs1, rs2) }

// MUL encodes mul rd, rs1, rs2.
func MUL(rd, rs1, rs2 uint8) uint32 { return EncodeR(opOp, 0, 1, rd, rs1, rs2) }

// DIV encodes div rd, rs1, rs2.
func DIV(rd, rs1, rs2 uint8) uint32 { return EncodeR(opOp, 4, 1, rd, rs1, rs2) }

// LD encodes ld rd, imm(rs1).
func LD(rd, rs1 uint8, imm int32) uint32 { return EncodeI(opLoad, 3, rd, rs1, imm) }

// SD encodes sd rs2, imm(rs1).
func SD(rs2, rs1 uint8, imm int32) uint32 { return EncodeS(opStore, 3, rs1, rs2, imm) }

// BNE encodes bne rs1, rs2, offset.
func BNE(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(1, rs1, rs2, offset) }

// JAL encodes jal rd, offset.
func JAL(rd uint8, offset int32) uint32 { return EncodeJ(rd, offset) }

// RET encodes jalr x0, 0(ra).
func RET() uint32 { return EncodeI(opJALR, 0, 0, 1, 0) }

// ECALL encodes ecall.
func ECALL() uint32 { return opSystem }

// BuildProgram lays out instruction words in little-endian order.
func BuildProgram(words ...uint32) []byte {
	program := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(program[4*i:], w)
	}
	return program
}
