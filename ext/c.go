package ext

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

const (
	gpr = emu.RegGPR
	fpr = emu.RegFloat
	non = emu.RegUnknown
)

func cEntry(mn string, quadrant, f3, csel uint8, format insts.Format, imm insts.CImm,
	class insts.Class, rd, rs1, rs2 emu.RegClass, exec insts.Semantics,
) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: format, Class: class,
		Opcode: quadrant, Funct3: f3, CSel: csel, CImm: imm,
		Rd: rd, Rs1: rs1, Rs2: rs2,
		Exec: exec,
	}
}

func withPredicate(e insts.Entry, pred func(raw uint32) bool) insts.Entry {
	e.Predicate = pred
	return e
}

// Predicates over compressed encodings.
var (
	cRdNonZero  = func(raw uint32) bool { return (raw>>7)&0x1F != 0 }
	cImmNonZero = func(raw uint32) bool { return (raw>>12)&0x1 != 0 || (raw>>2)&0x1F != 0 }
	cShamt5     = func(raw uint32) bool { return (raw>>12)&0x1 == 0 }
	c4SPNonZero = func(raw uint32) bool { return (raw>>5)&0xFF != 0 }
)

func cImmOp(fn immOp) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		env.Regs.WriteX(inst.Rd, fn(env, env.Regs.ReadX(inst.Rs1), inst.Imm))
		advance(env, inst)
		return nil
	}
}

func cRegOp(fn binOp) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		env.Regs.WriteX(inst.Rd, fn(env, env.Regs.ReadX(inst.Rs1), env.Regs.ReadX(inst.Rs2)))
		advance(env, inst)
		return nil
	}
}

func cLoad(size int, signExt bool) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		addr := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm)
		if err := loadX(env, inst, addr, size, signExt); err != nil {
			return err
		}
		advance(env, inst)
		return nil
	}
}

func cStore(size int) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		addr := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm)
		if err := env.Mem.Store(env.Hart, addr, size, env.Regs.ReadX(inst.Rs2)); err != nil {
			return err
		}
		advance(env, inst)
		return nil
	}
}

func cLoadFP(single bool) insts.Semantics {
	f := formatOf(single)
	return func(env *insts.Env, inst *insts.Instruction) error {
		addr := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm)
		if err := loadF(env, inst, addr, f); err != nil {
			return err
		}
		advance(env, inst)
		return nil
	}
}

func cStoreFP(single bool) insts.Semantics {
	f := formatOf(single)
	return func(env *insts.Env, inst *insts.Instruction) error {
		addr := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm)
		if err := storeF(env, addr, inst.Rs2, f); err != nil {
			return err
		}
		advance(env, inst)
		return nil
	}
}

func cBranch(zero bool) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		if (env.Regs.ReadX(inst.Rs1) == 0) == zero {
			return jumpTo(env, effAddr(env, env.Regs.PC(), inst.Imm))
		}
		advance(env, inst)
		return nil
	}
}

// cJump jumps pc-relative, writing the return address to rd when link is
// set.
func cJump(link bool) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		pc := env.Regs.PC()
		if err := jumpTo(env, effAddr(env, pc, inst.Imm)); err != nil {
			return err
		}
		if link {
			env.Regs.WriteX(inst.Rd, pc+uint64(inst.Size))
		}
		return nil
	}
}

func cJumpReg(link bool) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		pc := env.Regs.PC()
		if err := jumpTo(env, env.Regs.ReadX(inst.Rs1)&^1); err != nil {
			return err
		}
		if link {
			env.Regs.WriteX(inst.Rd, pc+uint64(inst.Size))
		}
		return nil
	}
}

func addImm(_ *insts.Env, a uint64, imm int64) uint64 { return a + uint64(imm) }

// cEntries returns the compressed instructions common to RV32C and RV64C.
func cEntries() []insts.Entry {
	return []insts.Entry{
		// Quadrant 0.
		withPredicate(cEntry("c.addi4spn", 0, 0x0, 0, insts.FormatCIW, insts.CImm4SPN,
			insts.ClassALU, gpr, gpr, non, cImmOp(addImm)), c4SPNonZero),
		cEntry("c.lw", 0, 0x2, 0, insts.FormatCL, insts.CImmLW,
			insts.ClassLoad, gpr, gpr, non, cLoad(4, true)),
		cEntry("c.sw", 0, 0x6, 0, insts.FormatCS, insts.CImmLW,
			insts.ClassStore, non, gpr, gpr, cStore(4)),

		// Quadrant 1.
		cEntry("c.addi", 1, 0x0, 0, insts.FormatCI, insts.CImmCI,
			insts.ClassALU, gpr, gpr, non, cImmOp(addImm)),
		cEntry("c.li", 1, 0x2, 0, insts.FormatCI, insts.CImmCI,
			insts.ClassALU, gpr, non, non, cImmOp(func(_ *insts.Env, _ uint64, imm int64) uint64 {
				return uint64(imm)
			})),
		withPredicate(cEntry("c.addi16sp", 1, 0x3, 1, insts.FormatCI, insts.CImm16SP,
			insts.ClassALU, gpr, gpr, non, cImmOp(addImm)), cImmNonZero),
		withPredicate(cEntry("c.lui", 1, 0x3, 0, insts.FormatCI, insts.CImmLUI,
			insts.ClassALU, gpr, non, non, cImmOp(func(_ *insts.Env, _ uint64, imm int64) uint64 {
				return uint64(imm)
			})), cImmNonZero),
		cEntry("c.andi", 1, 0x4, 2, insts.FormatCB, insts.CImmCI,
			insts.ClassALU, gpr, gpr, non, cImmOp(func(_ *insts.Env, a uint64, imm int64) uint64 {
				return a & uint64(imm)
			})),
		cEntry("c.sub", 1, 0x4, 0x10, insts.FormatCA, insts.CImmNone,
			insts.ClassALU, gpr, gpr, gpr, cRegOp(func(_ *insts.Env, a, b uint64) uint64 { return a - b })),
		cEntry("c.xor", 1, 0x4, 0x11, insts.FormatCA, insts.CImmNone,
			insts.ClassALU, gpr, gpr, gpr, cRegOp(func(_ *insts.Env, a, b uint64) uint64 { return a ^ b })),
		cEntry("c.or", 1, 0x4, 0x12, insts.FormatCA, insts.CImmNone,
			insts.ClassALU, gpr, gpr, gpr, cRegOp(func(_ *insts.Env, a, b uint64) uint64 { return a | b })),
		cEntry("c.and", 1, 0x4, 0x13, insts.FormatCA, insts.CImmNone,
			insts.ClassALU, gpr, gpr, gpr, cRegOp(func(_ *insts.Env, a, b uint64) uint64 { return a & b })),
		cEntry("c.j", 1, 0x5, 0, insts.FormatCJ, insts.CImmJ,
			insts.ClassJump, non, non, non, cJump(false)),
		cEntry("c.beqz", 1, 0x6, 0, insts.FormatCB, insts.CImmB,
			insts.ClassBranch, non, gpr, non, cBranch(true)),
		cEntry("c.bnez", 1, 0x7, 0, insts.FormatCB, insts.CImmB,
			insts.ClassBranch, non, gpr, non, cBranch(false)),

		// Quadrant 2.
		withPredicate(cEntry("c.lwsp", 2, 0x2, 0, insts.FormatCI, insts.CImmLWSP,
			insts.ClassLoad, gpr, gpr, non, cLoad(4, true)), cRdNonZero),
		withPredicate(cEntry("c.jr", 2, 0x4, 2, insts.FormatCR, insts.CImmNone,
			insts.ClassJump, non, gpr, non, cJumpReg(false)), cRdNonZero),
		cEntry("c.mv", 2, 0x4, 0, insts.FormatCR, insts.CImmNone,
			insts.ClassALU, gpr, non, gpr, cRegOp(func(_ *insts.Env, _, b uint64) uint64 { return b })),
		cEntry("c.ebreak", 2, 0x4, 7, insts.FormatCR, insts.CImmNone,
			insts.ClassSystem, non, non, non, func(env *insts.Env, _ *insts.Instruction) error {
				return emu.NewException(emu.CauseBreakpoint, env.Regs.PC())
			}),
		func() insts.Entry {
			e := cEntry("c.jalr", 2, 0x4, 3, insts.FormatCR, insts.CImmNone,
				insts.ClassJump, gpr, gpr, non, cJumpReg(true))
			e.Link = true
			return e
		}(),
		cEntry("c.add", 2, 0x4, 1, insts.FormatCR, insts.CImmNone,
			insts.ClassALU, gpr, gpr, gpr, cRegOp(func(_ *insts.Env, a, b uint64) uint64 { return a + b })),
		cEntry("c.swsp", 2, 0x6, 0, insts.FormatCSS, insts.CImmSWSP,
			insts.ClassStore, non, gpr, gpr, cStore(4)),
	}
}

func cShiftEntries(pred func(raw uint32) bool) []insts.Entry {
	return []insts.Entry{
		withPredicate(cEntry("c.srli", 1, 0x4, 0, insts.FormatCB, insts.CImmShift,
			insts.ClassALU, gpr, gpr, non, cImmOp(func(env *insts.Env, a uint64, imm int64) uint64 {
				return a >> (uint64(imm) & shamtMask(env))
			})), pred),
		withPredicate(cEntry("c.srai", 1, 0x4, 1, insts.FormatCB, insts.CImmShift,
			insts.ClassALU, gpr, gpr, non, cImmOp(func(env *insts.Env, a uint64, imm int64) uint64 {
				return uint64(signed(env, a) >> (uint64(imm) & shamtMask(env)))
			})), pred),
		withPredicate(cEntry("c.slli", 2, 0x0, 0, insts.FormatCI, insts.CImmShift,
			insts.ClassALU, gpr, gpr, non, cImmOp(func(env *insts.Env, a uint64, imm int64) uint64 {
				return a << (uint64(imm) & shamtMask(env))
			})), pred),
	}
}

// c32Entries returns the RV32-only compressed instructions.
func c32Entries() []insts.Entry {
	link := cEntry("c.jal", 1, 0x1, 0, insts.FormatCJ, insts.CImmJ,
		insts.ClassJump, gpr, non, non, cJump(true))
	link.Link = true

	return append(cShiftEntries(cShamt5), link)
}

// c64Entries returns the RV64-only compressed instructions.
func c64Entries() []insts.Entry {
	return append(cShiftEntries(nil),
		cEntry("c.ld", 0, 0x3, 0, insts.FormatCL, insts.CImmLD,
			insts.ClassLoad, gpr, gpr, non, cLoad(8, false)),
		cEntry("c.sd", 0, 0x7, 0, insts.FormatCS, insts.CImmLD,
			insts.ClassStore, non, gpr, gpr, cStore(8)),
		withPredicate(cEntry("c.addiw", 1, 0x1, 0, insts.FormatCI, insts.CImmCI,
			insts.ClassALU, gpr, gpr, non, cImmOp(func(_ *insts.Env, a uint64, imm int64) uint64 {
				return sext32(a + uint64(imm))
			})), cRdNonZero),
		cEntry("c.subw", 1, 0x4, 0x14, insts.FormatCA, insts.CImmNone,
			insts.ClassALU, gpr, gpr, gpr, cRegOp(func(_ *insts.Env, a, b uint64) uint64 { return sext32(a - b) })),
		cEntry("c.addw", 1, 0x4, 0x15, insts.FormatCA, insts.CImmNone,
			insts.ClassALU, gpr, gpr, gpr, cRegOp(func(_ *insts.Env, a, b uint64) uint64 { return sext32(a + b) })),
		withPredicate(cEntry("c.ldsp", 2, 0x3, 0, insts.FormatCI, insts.CImmLDSP,
			insts.ClassLoad, gpr, gpr, non, cLoad(8, false)), cRdNonZero),
		cEntry("c.sdsp", 2, 0x7, 0, insts.FormatCSS, insts.CImmSDSP,
			insts.ClassStore, non, gpr, gpr, cStore(8)),
	)
}

// cf32Entries returns the single-precision compressed loads and stores,
// which exist only on RV32.
func cf32Entries() []insts.Entry {
	return []insts.Entry{
		cEntry("c.flw", 0, 0x3, 0, insts.FormatCL, insts.CImmLW,
			insts.ClassLoad, fpr, gpr, non, cLoadFP(true)),
		cEntry("c.fsw", 0, 0x7, 0, insts.FormatCS, insts.CImmLW,
			insts.ClassStore, non, gpr, fpr, cStoreFP(true)),
		cEntry("c.flwsp", 2, 0x3, 0, insts.FormatCI, insts.CImmLWSP,
			insts.ClassLoad, fpr, gpr, non, cLoadFP(true)),
		cEntry("c.fswsp", 2, 0x7, 0, insts.FormatCSS, insts.CImmSWSP,
			insts.ClassStore, non, gpr, fpr, cStoreFP(true)),
	}
}

// cdEntries returns the double-precision compressed loads and stores.
func cdEntries() []insts.Entry {
	return []insts.Entry{
		cEntry("c.fld", 0, 0x1, 0, insts.FormatCL, insts.CImmLD,
			insts.ClassLoad, fpr, gpr, non, cLoadFP(false)),
		cEntry("c.fsd", 0, 0x5, 0, insts.FormatCS, insts.CImmLD,
			insts.ClassStore, non, gpr, fpr, cStoreFP(false)),
		cEntry("c.fldsp", 2, 0x1, 0, insts.FormatCI, insts.CImmLDSP,
			insts.ClassLoad, fpr, gpr, non, cLoadFP(false)),
		cEntry("c.fsdsp", 2, 0x5, 0, insts.FormatCSS, insts.CImmSDSP,
			insts.ClassStore, non, gpr, fpr, cStoreFP(false)),
	}
}
