package insts

import (
	"github.com/sarchlab/rvsim/emu"
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatR              // register-register
	FormatI              // immediate, loads, JALR, system
	FormatS              // stores
	FormatU              // upper immediate
	FormatB              // conditional branch
	FormatJ              // jump
	FormatR4             // fused multiply-add

	FormatCR  // compressed register
	FormatCI  // compressed immediate
	FormatCSS // compressed stack-relative store
	FormatCIW // compressed wide immediate
	FormatCL  // compressed load
	FormatCS  // compressed store
	FormatCA  // compressed arithmetic
	FormatCB  // compressed branch / arithmetic with immediate
	FormatCJ  // compressed jump
)

var formatNames = [...]string{
	"unknown", "R", "I", "S", "U", "B", "J", "R4",
	"CR", "CI", "CSS", "CIW", "CL", "CS", "CA", "CB", "CJ",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "invalid"
}

// IsCompressed reports whether the format is a 16-bit encoding.
func (f Format) IsCompressed() bool {
	return f >= FormatCR
}

// ImmMode describes how an entry uses the immediate field.
type ImmMode uint8

// Immediate modes.
const (
	ImmNone     ImmMode = iota // no immediate
	ImmPlain                   // immediate operand
	ImmEncoding                // immediate bits select the instruction (ECALL, FCVT rs2)
	ImmReg                     // immediate names a register-like operand (CSR address)
)

// Class groups instructions with similar timing.
type Class uint8

// Instruction classes.
const (
	ClassALU Class = iota
	ClassMul
	ClassDiv
	ClassBranch
	ClassJump
	ClassLoad
	ClassStore
	ClassAtomic
	ClassFP
	ClassFDiv
	ClassCSR
	ClassSystem
	ClassFence
)

// IsMemory reports whether instructions of the class access data memory.
func (c Class) IsMemory() bool {
	return c == ClassLoad || c == ClassStore || c == ClassAtomic
}

// Instruction is a decoded instruction. It is produced by decode and
// consumed by execute in the same cycle.
type Instruction struct {
	Raw    uint32
	Opcode uint8
	Funct2 uint8
	Funct3 uint8
	Funct7 uint8

	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Rs3 uint8

	RdClass  emu.RegClass
	Rs1Class emu.RegClass
	Rs2Class emu.RegClass
	Rs3Class emu.RegClass

	// Imm is the sign- or zero-extended immediate.
	Imm int64

	Format Format
	// Size is 2 for compressed instructions and 4 otherwise.
	Size uint8

	RM emu.RoundingMode
	Aq bool
	Rl bool

	Class Class
	// Cost is the number of cycles the instruction occupies its hart.
	Cost uint32
	// Entry indexes the instruction table row this instruction matched.
	Entry int

	// Deferred is set by semantics whose destination register is written
	// later by a memory completion rather than at retirement.
	Deferred bool
}

// Operands returns the operands of the instruction that name registers,
// in rd, rs1, rs2, rs3 order. Operands whose class is RegUnknown are
// skipped.
func (i *Instruction) Operands() []Operand {
	ops := make([]Operand, 0, 4)
	add := func(idx uint8, class emu.RegClass, dest bool) {
		if class == emu.RegGPR || class == emu.RegFloat {
			ops = append(ops, Operand{Index: idx, Class: class, Dest: dest})
		}
	}
	add(i.Rd, i.RdClass, true)
	add(i.Rs1, i.Rs1Class, false)
	add(i.Rs2, i.Rs2Class, false)
	add(i.Rs3, i.Rs3Class, false)
	return ops
}

// Operand is one register operand of a decoded instruction.
type Operand struct {
	Index uint8
	Class emu.RegClass
	Dest  bool
}
