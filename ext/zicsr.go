package ext

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

type csrKind uint8

const (
	csrWrite csrKind = iota
	csrSet
	csrClear
)

// csrOp creates a CSR access. Immediate forms take the 5-bit zimm from the
// rs1 field.
func csrOp(mn string, f3 uint8, kind csrKind, immediate bool) insts.Entry {
	src := emu.RegGPR
	if immediate {
		src = emu.RegUnknown
	}

	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatI, Class: insts.ClassCSR,
		Opcode: insts.OpcodeSystem, Funct3: f3, Imm: insts.ImmReg,
		Rd: emu.RegGPR, Rs1: src,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			csr := uint16(inst.Imm) & 0xFFF
			if !env.Regs.CSRExists(csr) {
				return emu.IllegalInstruction(inst.Raw)
			}

			operand := uint64(inst.Rs1)
			if !immediate {
				operand = env.Regs.ReadX(inst.Rs1)
			}

			// CSRRW skips the read for rd == x0; CSRRS/CSRRC skip the
			// write for a zero source field.
			writes := kind == csrWrite || inst.Rs1 != 0
			if writes && emu.IsReadOnlyCSR(csr) {
				return emu.IllegalInstruction(inst.Raw)
			}

			var old uint64
			if kind != csrWrite || inst.Rd != 0 {
				old = env.Regs.ReadCSR(csr)
			}

			if writes {
				switch kind {
				case csrWrite:
					env.Regs.WriteCSR(csr, operand)
				case csrSet:
					env.Regs.WriteCSR(csr, old|operand)
				case csrClear:
					env.Regs.WriteCSR(csr, old&^operand)
				}
			}

			env.Regs.WriteX(inst.Rd, old)
			advance(env, inst)
			return nil
		},
	}
}

func csrEntries() []insts.Entry {
	return []insts.Entry{
		csrOp("csrrw", 0x1, csrWrite, false),
		csrOp("csrrs", 0x2, csrSet, false),
		csrOp("csrrc", 0x3, csrClear, false),
		csrOp("csrrwi", 0x5, csrWrite, true),
		csrOp("csrrsi", 0x6, csrSet, true),
		csrOp("csrrci", 0x7, csrClear, true),
	}
}

func fenceIEntries() []insts.Entry {
	return []insts.Entry{
		{
			Mnemonic: "fence.i", Format: insts.FormatI, Class: insts.ClassFence,
			Opcode: insts.OpcodeMiscMem, Funct3: 0x1,
			Exec: func(env *insts.Env, inst *insts.Instruction) error {
				env.System.FenceI(env.Hart)
				advance(env, inst)
				return nil
			},
		},
	}
}
