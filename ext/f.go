package ext

import (
	"math"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// fpFormat describes one floating-point precision.
type fpFormat struct {
	single bool
	suffix string
	mem    string // load/store width letter
	fmt    uint8  // low bits of funct7 and funct2
	f3     uint8  // load/store funct3
	size   int
	sign   uint64
}

func formatOf(single bool) fpFormat {
	if single {
		return fpFormat{single: true, suffix: ".s", mem: "w", fmt: 0x0, f3: 0x2, size: 4, sign: 1 << 31}
	}
	return fpFormat{single: false, suffix: ".d", mem: "d", fmt: 0x1, f3: 0x3, size: 8, sign: 1 << 63}
}

func (f fpFormat) read(env *insts.Env, idx uint8) fpVal {
	if f.single {
		return f32Val(env.Regs.ReadF32Bits(idx))
	}
	return f64Val(env.Regs.ReadFBits(idx))
}

// readBits returns the register contents as a bit pattern of the format's
// width, unboxing single-precision values.
func (f fpFormat) readBits(env *insts.Env, idx uint8) uint64 {
	if f.single {
		return uint64(env.Regs.ReadF32Bits(idx))
	}
	return env.Regs.ReadFBits(idx)
}

func (f fpFormat) writeBits(env *insts.Env, idx uint8, bits uint64) {
	if f.single {
		env.Regs.WriteF32Bits(idx, uint32(bits))
		return
	}
	env.Regs.WriteFBits(idx, bits)
}

// write stores v, replacing any NaN with the canonical NaN.
func (f fpFormat) write(env *insts.Env, idx uint8, v float64) {
	switch {
	case f.single && math.IsNaN(v):
		env.Regs.WriteF32Bits(idx, emu.CanonicalNaN32)
	case f.single:
		env.Regs.WriteF32Bits(idx, math.Float32bits(float32(v)))
	case math.IsNaN(v):
		env.Regs.WriteFBits(idx, emu.CanonicalNaN64)
	default:
		env.Regs.WriteFBits(idx, math.Float64bits(v))
	}
}

// roundingMode resolves the effective rounding mode of inst. Reserved
// modes raise an illegal instruction exception.
func roundingMode(env *insts.Env, inst *insts.Instruction) (emu.RoundingMode, error) {
	rm := inst.RM
	if rm == emu.RoundDynamic {
		rm = env.Regs.FRM()
	}
	if rm > emu.RoundNearestMax {
		return 0, emu.IllegalInstruction(inst.Raw)
	}
	return rm, nil
}

func opFP(mn string, f7, f3 uint8, anyF3 bool, class insts.Class, exec insts.Semantics) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatR, Class: class,
		Opcode: insts.OpcodeOpFP, Funct3: f3, AnyFunct3: anyF3, Funct7: f7,
		Rd: emu.RegFloat, Rs1: emu.RegFloat, Rs2: emu.RegFloat,
		Exec: exec,
	}
}

// opFPSel creates an OP-FP entry whose rs2 field selects the operation.
func opFPSel(mn string, f7, f3 uint8, anyF3 bool, rs2 uint16, rd, rs1 emu.RegClass, exec insts.Semantics) insts.Entry {
	e := opFP(mn, f7, f3, anyF3, insts.ClassFP, exec)
	e.Imm = insts.ImmEncoding
	e.Sel = rs2
	e.Rd, e.Rs1, e.Rs2 = rd, rs1, emu.RegUnknown
	return e
}

func arith(f fpFormat, op fpOp) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		rm, err := roundingMode(env, inst)
		if err != nil {
			return err
		}
		operands := []fpVal{f.read(env, inst.Rs1)}
		if op != fpSqrt {
			operands = append(operands, f.read(env, inst.Rs2))
		}
		v, flags := fpArith(op, f.single, rm, operands...)
		env.Regs.RaiseFFlags(flags)
		f.write(env, inst.Rd, v)
		advance(env, inst)
		return nil
	}
}

// fused creates a fused multiply-add. negProduct and negAddend select
// among FMADD, FMSUB, FNMSUB and FNMADD.
func fused(mn string, opcode uint8, f fpFormat, negProduct, negAddend bool) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatR4, Class: insts.ClassFP,
		Opcode: opcode, AnyFunct3: true, Funct7: f.fmt,
		Rd: emu.RegFloat, Rs1: emu.RegFloat, Rs2: emu.RegFloat, Rs3: emu.RegFloat,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			rm, err := roundingMode(env, inst)
			if err != nil {
				return err
			}
			a, b, c := f.read(env, inst.Rs1), f.read(env, inst.Rs2), f.read(env, inst.Rs3)
			if negProduct {
				a.v = -a.v
			}
			if negAddend {
				c.v = -c.v
			}
			v, flags := fpArith(fpFMA, f.single, rm, a, b, c)
			env.Regs.RaiseFFlags(flags)
			f.write(env, inst.Rd, v)
			advance(env, inst)
			return nil
		},
	}
}

func signInject(f fpFormat, combine func(a, b, sign uint64) uint64) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		a, b := f.readBits(env, inst.Rs1), f.readBits(env, inst.Rs2)
		f.writeBits(env, inst.Rd, (a&^f.sign)|combine(a, b, f.sign))
		advance(env, inst)
		return nil
	}
}

func compare(mn string, f fpFormat, f3 uint8, pred func(x, y float64) bool, signaling bool) insts.Entry {
	e := opFP(mn, 0x50|f.fmt, f3, false, insts.ClassFP, func(env *insts.Env, inst *insts.Instruction) error {
		r, flags := fpCompare(f.read(env, inst.Rs1), f.read(env, inst.Rs2), pred, signaling)
		env.Regs.RaiseFFlags(flags)
		env.Regs.WriteX(inst.Rd, boolToX(r))
		advance(env, inst)
		return nil
	})
	e.Rd = emu.RegGPR
	return e
}

func toInt(mn string, f fpFormat, rs2 uint16, isSigned bool, width int) insts.Entry {
	return opFPSel(mn, 0x60|f.fmt, 0, true, rs2, emu.RegGPR, emu.RegFloat,
		func(env *insts.Env, inst *insts.Instruction) error {
			rm, err := roundingMode(env, inst)
			if err != nil {
				return err
			}
			v, flags := fpToInt(f.read(env, inst.Rs1), rm, isSigned, width)
			env.Regs.RaiseFFlags(flags)
			env.Regs.WriteX(inst.Rd, v)
			advance(env, inst)
			return nil
		})
}

func fromInt(mn string, f fpFormat, rs2 uint16, isSigned bool, width int) insts.Entry {
	return opFPSel(mn, 0x68|f.fmt, 0, true, rs2, emu.RegFloat, emu.RegGPR,
		func(env *insts.Env, inst *insts.Instruction) error {
			rm, err := roundingMode(env, inst)
			if err != nil {
				return err
			}
			src := env.Regs.ReadX(inst.Rs1)
			if width == 32 {
				if isSigned {
					src = sext32(src)
				} else {
					src = uint64(uint32(src))
				}
			}
			v, flags := intToFP(src, isSigned, f.single, rm)
			env.Regs.RaiseFFlags(flags)
			f.write(env, inst.Rd, v)
			advance(env, inst)
			return nil
		})
}

func loadFP(f fpFormat) insts.Entry {
	return insts.Entry{
		Mnemonic: "fl" + f.mem, Format: insts.FormatI, Class: insts.ClassLoad,
		Opcode: insts.OpcodeLoadFP, Funct3: f.f3, Imm: insts.ImmPlain,
		Rd: emu.RegFloat, Rs1: emu.RegGPR,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			addr := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm)
			if err := loadF(env, inst, addr, f); err != nil {
				return err
			}
			advance(env, inst)
			return nil
		},
	}
}

// loadF issues an asynchronous floating-point load.
func loadF(env *insts.Env, inst *insts.Instruction, addr uint64, f fpFormat) error {
	regs, rd := env.Regs, inst.Rd
	req := &emu.MemReq{
		Addr:    addr,
		Size:    f.size,
		DestReg: rd,
		Class:   emu.RegFloat,
		Hart:    env.Hart,
		Op:      emu.MemOpLoad,
		OnComplete: func(v uint64) {
			if f.single {
				regs.WriteF32Bits(rd, uint32(v))
			} else {
				regs.WriteFBits(rd, v)
			}
			regs.Scoreboard(emu.RegFloat).Clear(rd)
		},
	}
	if err := env.Mem.Load(req); err != nil {
		return err
	}
	inst.Deferred = true
	return nil
}

func storeFP(f fpFormat) insts.Entry {
	return insts.Entry{
		Mnemonic: "fs" + f.mem, Format: insts.FormatS, Class: insts.ClassStore,
		Opcode: insts.OpcodeStoreFP, Funct3: f.f3, Imm: insts.ImmPlain,
		Rs1: emu.RegGPR, Rs2: emu.RegFloat,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			addr := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm)
			if err := storeF(env, addr, inst.Rs2, f); err != nil {
				return err
			}
			advance(env, inst)
			return nil
		},
	}
}

// storeF stores the raw register bits; single-precision stores ignore
// the NaN-box.
func storeF(env *insts.Env, addr uint64, rs2 uint8, f fpFormat) error {
	return env.Mem.Store(env.Hart, addr, f.size, env.Regs.ReadFBits(rs2))
}

// fpEntries returns the instructions shared by F and D for one precision.
func fpEntries(single bool) []insts.Entry {
	f := formatOf(single)
	n := func(base string) string { return base + f.suffix }

	entries := []insts.Entry{
		loadFP(f),
		storeFP(f),

		fused(n("fmadd"), insts.OpcodeMAdd, f, false, false),
		fused(n("fmsub"), insts.OpcodeMSub, f, false, true),
		fused(n("fnmsub"), insts.OpcodeNMSub, f, true, false),
		fused(n("fnmadd"), insts.OpcodeNMAdd, f, true, true),

		opFP(n("fadd"), 0x00|f.fmt, 0, true, insts.ClassFP, arith(f, fpAdd)),
		opFP(n("fsub"), 0x04|f.fmt, 0, true, insts.ClassFP, arith(f, fpSub)),
		opFP(n("fmul"), 0x08|f.fmt, 0, true, insts.ClassFP, arith(f, fpMul)),
		opFP(n("fdiv"), 0x0C|f.fmt, 0, true, insts.ClassFDiv, arith(f, fpDiv)),
		func() insts.Entry {
			e := opFPSel(n("fsqrt"), 0x2C|f.fmt, 0, true, 0, emu.RegFloat, emu.RegFloat, arith(f, fpSqrt))
			e.Class = insts.ClassFDiv
			return e
		}(),

		opFP(n("fsgnj"), 0x10|f.fmt, 0x0, false, insts.ClassFP, signInject(f, func(_, b, sign uint64) uint64 {
			return b & sign
		})),
		opFP(n("fsgnjn"), 0x10|f.fmt, 0x1, false, insts.ClassFP, signInject(f, func(_, b, sign uint64) uint64 {
			return ^b & sign
		})),
		opFP(n("fsgnjx"), 0x10|f.fmt, 0x2, false, insts.ClassFP, signInject(f, func(a, b, sign uint64) uint64 {
			return (a ^ b) & sign
		})),

		opFP(n("fmin"), 0x14|f.fmt, 0x0, false, insts.ClassFP, minMax(f, false)),
		opFP(n("fmax"), 0x14|f.fmt, 0x1, false, insts.ClassFP, minMax(f, true)),

		compare(n("feq"), f, 0x2, func(x, y float64) bool { return x == y }, false),
		compare(n("flt"), f, 0x1, func(x, y float64) bool { return x < y }, true),
		compare(n("fle"), f, 0x0, func(x, y float64) bool { return x <= y }, true),

		toInt("fcvt.w"+f.suffix, f, 0, true, 32),
		toInt("fcvt.wu"+f.suffix, f, 1, false, 32),
		fromInt("fcvt"+f.suffix+".w", f, 0, true, 32),
		fromInt("fcvt"+f.suffix+".wu", f, 1, false, 32),

		opFPSel(n("fclass"), 0x70|f.fmt, 0x1, false, 0, emu.RegGPR, emu.RegFloat,
			func(env *insts.Env, inst *insts.Instruction) error {
				env.Regs.WriteX(inst.Rd, fpClass(f.read(env, inst.Rs1), f.single))
				advance(env, inst)
				return nil
			}),
	}

	if single {
		entries = append(entries,
			opFPSel("fmv.x.w", 0x70, 0x0, false, 0, emu.RegGPR, emu.RegFloat,
				func(env *insts.Env, inst *insts.Instruction) error {
					env.Regs.WriteX(inst.Rd, sext32(env.Regs.ReadFBits(inst.Rs1)))
					advance(env, inst)
					return nil
				}),
			opFPSel("fmv.w.x", 0x78, 0x0, false, 0, emu.RegFloat, emu.RegGPR,
				func(env *insts.Env, inst *insts.Instruction) error {
					env.Regs.WriteF32Bits(inst.Rd, uint32(env.Regs.ReadX(inst.Rs1)))
					advance(env, inst)
					return nil
				}),
		)
	}

	return entries
}

func minMax(f fpFormat, isMax bool) insts.Semantics {
	return func(env *insts.Env, inst *insts.Instruction) error {
		v, flags := fpMinMax(f.read(env, inst.Rs1), f.read(env, inst.Rs2), isMax)
		env.Regs.RaiseFFlags(flags)
		f.write(env, inst.Rd, v)
		advance(env, inst)
		return nil
	}
}

// fp64Entries returns the RV64-only conversions of one precision.
func fp64Entries(single bool) []insts.Entry {
	f := formatOf(single)
	entries := []insts.Entry{
		toInt("fcvt.l"+f.suffix, f, 2, true, 64),
		toInt("fcvt.lu"+f.suffix, f, 3, false, 64),
		fromInt("fcvt"+f.suffix+".l", f, 2, true, 64),
		fromInt("fcvt"+f.suffix+".lu", f, 3, false, 64),
	}

	if !single {
		entries = append(entries,
			opFPSel("fmv.x.d", 0x71, 0x0, false, 0, emu.RegGPR, emu.RegFloat,
				func(env *insts.Env, inst *insts.Instruction) error {
					env.Regs.WriteX(inst.Rd, env.Regs.ReadFBits(inst.Rs1))
					advance(env, inst)
					return nil
				}),
			opFPSel("fmv.d.x", 0x79, 0x0, false, 0, emu.RegFloat, emu.RegGPR,
				func(env *insts.Env, inst *insts.Instruction) error {
					env.Regs.WriteFBits(inst.Rd, env.Regs.ReadX(inst.Rs1))
					advance(env, inst)
					return nil
				}),
		)
	}
	return entries
}

// dEntries returns the precision conversions of the D extension.
func dEntries() []insts.Entry {
	single, double := formatOf(true), formatOf(false)
	return []insts.Entry{
		opFPSel("fcvt.s.d", 0x20, 0, true, 1, emu.RegFloat, emu.RegFloat,
			func(env *insts.Env, inst *insts.Instruction) error {
				rm, err := roundingMode(env, inst)
				if err != nil {
					return err
				}
				v, flags := fpNarrow(double.read(env, inst.Rs1), rm)
				env.Regs.RaiseFFlags(flags)
				single.write(env, inst.Rd, v)
				advance(env, inst)
				return nil
			}),
		opFPSel("fcvt.d.s", 0x21, 0, true, 0, emu.RegFloat, emu.RegFloat,
			func(env *insts.Env, inst *insts.Instruction) error {
				x := single.read(env, inst.Rs1)
				if x.snan {
					env.Regs.RaiseFFlags(emu.FFlagNV)
				}
				double.write(env, inst.Rd, x.v)
				advance(env, inst)
				return nil
			}),
	}
}
