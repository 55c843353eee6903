package ext

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// Values passed to integer operation helpers are XLEN-truncated register
// contents; results are truncated by the register file on write.
type (
	binOp func(env *insts.Env, a, b uint64) uint64
	immOp func(env *insts.Env, a uint64, imm int64) uint64
)

// signed views an XLEN value as a signed integer.
func signed(env *insts.Env, v uint64) int64 {
	if env.Regs.XLEN() == 32 {
		return int64(int32(uint32(v)))
	}
	return int64(v)
}

// effAddr computes base+offset truncated to XLEN.
func effAddr(env *insts.Env, base uint64, offset int64) uint64 {
	addr := base + uint64(offset)
	if env.Regs.XLEN() == 32 {
		return uint64(uint32(addr))
	}
	return addr
}

func rType(mn string, opcode, f3, f7 uint8, class insts.Class, fn binOp) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatR, Class: class,
		Opcode: opcode, Funct3: f3, Funct7: f7,
		Rd: emu.RegGPR, Rs1: emu.RegGPR, Rs2: emu.RegGPR,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			env.Regs.WriteX(inst.Rd, fn(env, env.Regs.ReadX(inst.Rs1), env.Regs.ReadX(inst.Rs2)))
			advance(env, inst)
			return nil
		},
	}
}

func iType(mn string, opcode, f3 uint8, fn immOp) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatI, Class: insts.ClassALU,
		Opcode: opcode, Funct3: f3, Imm: insts.ImmPlain,
		Rd: emu.RegGPR, Rs1: emu.RegGPR,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			env.Regs.WriteX(inst.Rd, fn(env, env.Regs.ReadX(inst.Rs1), inst.Imm))
			advance(env, inst)
			return nil
		},
	}
}

// shiftImm creates an immediate shift. funct holds funct6 for OP-IMM and
// funct7 for OP-IMM-32.
func shiftImm(mn string, opcode, f3, funct uint8, pred func(uint32) bool, fn immOp) insts.Entry {
	e := iType(mn, opcode, f3, fn)
	e.Funct7 = funct
	e.Predicate = pred
	return e
}

func branch(mn string, f3 uint8, taken func(env *insts.Env, a, b uint64) bool) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatB, Class: insts.ClassBranch,
		Opcode: insts.OpcodeBranch, Funct3: f3, Imm: insts.ImmPlain,
		Rs1: emu.RegGPR, Rs2: emu.RegGPR,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			if taken(env, env.Regs.ReadX(inst.Rs1), env.Regs.ReadX(inst.Rs2)) {
				return jumpTo(env, effAddr(env, env.Regs.PC(), inst.Imm))
			}
			advance(env, inst)
			return nil
		},
	}
}

// loadX issues an asynchronous integer load. The destination register is
// written, and its hazard cleared, when the memory completes.
func loadX(env *insts.Env, inst *insts.Instruction, addr uint64, size int, signExt bool) error {
	regs, rd := env.Regs, inst.Rd
	req := &emu.MemReq{
		Addr:    addr,
		Size:    size,
		DestReg: rd,
		Class:   emu.RegGPR,
		Hart:    env.Hart,
		Op:      emu.MemOpLoad,
		OnComplete: func(v uint64) {
			if signExt {
				shift := 64 - 8*uint(size)
				v = uint64(int64(v<<shift) >> shift)
			}
			regs.WriteX(rd, v)
			regs.Scoreboard(emu.RegGPR).Clear(rd)
		},
	}
	if err := env.Mem.Load(req); err != nil {
		return err
	}
	inst.Deferred = true
	return nil
}

func load(mn string, f3 uint8, size int, signExt bool) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatI, Class: insts.ClassLoad,
		Opcode: insts.OpcodeLoad, Funct3: f3, Imm: insts.ImmPlain,
		Rd: emu.RegGPR, Rs1: emu.RegGPR,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			addr := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm)
			if err := loadX(env, inst, addr, size, signExt); err != nil {
				return err
			}
			advance(env, inst)
			return nil
		},
	}
}

func store(mn string, f3 uint8, size int) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatS, Class: insts.ClassStore,
		Opcode: insts.OpcodeStore, Funct3: f3, Imm: insts.ImmPlain,
		Rs1: emu.RegGPR, Rs2: emu.RegGPR,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			addr := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm)
			if err := env.Mem.Store(env.Hart, addr, size, env.Regs.ReadX(inst.Rs2)); err != nil {
				return err
			}
			advance(env, inst)
			return nil
		},
	}
}

func system(mn string, sel uint16, class insts.Class, exec insts.Semantics) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatI, Class: class,
		Opcode: insts.OpcodeSystem, Funct3: 0, Sel: sel, Imm: insts.ImmEncoding,
		Predicate: func(raw uint32) bool { return (raw>>7)&0x1F == 0 && (raw>>15)&0x1F == 0 },
		Exec:      exec,
	}
}

func baseEntries() []insts.Entry {
	return []insts.Entry{
		{
			Mnemonic: "lui", Format: insts.FormatU, Class: insts.ClassALU,
			Opcode: insts.OpcodeLUI, AnyFunct3: true, Imm: insts.ImmPlain, Rd: emu.RegGPR,
			Exec: func(env *insts.Env, inst *insts.Instruction) error {
				env.Regs.WriteX(inst.Rd, uint64(inst.Imm))
				advance(env, inst)
				return nil
			},
		},
		{
			Mnemonic: "auipc", Format: insts.FormatU, Class: insts.ClassALU,
			Opcode: insts.OpcodeAUIPC, AnyFunct3: true, Imm: insts.ImmPlain, Rd: emu.RegGPR,
			Exec: func(env *insts.Env, inst *insts.Instruction) error {
				env.Regs.WriteX(inst.Rd, env.Regs.PC()+uint64(inst.Imm))
				advance(env, inst)
				return nil
			},
		},
		{
			Mnemonic: "jal", Format: insts.FormatJ, Class: insts.ClassJump,
			Opcode: insts.OpcodeJAL, AnyFunct3: true, Imm: insts.ImmPlain, Rd: emu.RegGPR,
			Exec: func(env *insts.Env, inst *insts.Instruction) error {
				pc := env.Regs.PC()
				if err := jumpTo(env, effAddr(env, pc, inst.Imm)); err != nil {
					return err
				}
				env.Regs.WriteX(inst.Rd, pc+uint64(inst.Size))
				return nil
			},
		},
		{
			Mnemonic: "jalr", Format: insts.FormatI, Class: insts.ClassJump,
			Opcode: insts.OpcodeJALR, Funct3: 0, Imm: insts.ImmPlain,
			Rd: emu.RegGPR, Rs1: emu.RegGPR,
			Exec: func(env *insts.Env, inst *insts.Instruction) error {
				pc := env.Regs.PC()
				target := effAddr(env, env.Regs.ReadX(inst.Rs1), inst.Imm) &^ 1
				if err := jumpTo(env, target); err != nil {
					return err
				}
				env.Regs.WriteX(inst.Rd, pc+uint64(inst.Size))
				return nil
			},
		},

		branch("beq", 0x0, func(_ *insts.Env, a, b uint64) bool { return a == b }),
		branch("bne", 0x1, func(_ *insts.Env, a, b uint64) bool { return a != b }),
		branch("blt", 0x4, func(env *insts.Env, a, b uint64) bool { return signed(env, a) < signed(env, b) }),
		branch("bge", 0x5, func(env *insts.Env, a, b uint64) bool { return signed(env, a) >= signed(env, b) }),
		branch("bltu", 0x6, func(_ *insts.Env, a, b uint64) bool { return a < b }),
		branch("bgeu", 0x7, func(_ *insts.Env, a, b uint64) bool { return a >= b }),

		load("lb", 0x0, 1, true),
		load("lh", 0x1, 2, true),
		load("lw", 0x2, 4, true),
		load("lbu", 0x4, 1, false),
		load("lhu", 0x5, 2, false),

		store("sb", 0x0, 1),
		store("sh", 0x1, 2),
		store("sw", 0x2, 4),

		iType("addi", insts.OpcodeOpImm, 0x0, func(_ *insts.Env, a uint64, imm int64) uint64 {
			return a + uint64(imm)
		}),
		iType("slti", insts.OpcodeOpImm, 0x2, func(env *insts.Env, a uint64, imm int64) uint64 {
			return boolToX(signed(env, a) < imm)
		}),
		iType("sltiu", insts.OpcodeOpImm, 0x3, func(env *insts.Env, a uint64, imm int64) uint64 {
			return boolToX(a < effAddr(env, 0, imm))
		}),
		iType("xori", insts.OpcodeOpImm, 0x4, func(_ *insts.Env, a uint64, imm int64) uint64 {
			return a ^ uint64(imm)
		}),
		iType("ori", insts.OpcodeOpImm, 0x6, func(_ *insts.Env, a uint64, imm int64) uint64 {
			return a | uint64(imm)
		}),
		iType("andi", insts.OpcodeOpImm, 0x7, func(_ *insts.Env, a uint64, imm int64) uint64 {
			return a & uint64(imm)
		}),

		rType("add", insts.OpcodeOp, 0x0, 0x00, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 { return a + b }),
		rType("sub", insts.OpcodeOp, 0x0, 0x20, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 { return a - b }),
		rType("sll", insts.OpcodeOp, 0x1, 0x00, insts.ClassALU, func(env *insts.Env, a, b uint64) uint64 {
			return a << (b & shamtMask(env))
		}),
		rType("slt", insts.OpcodeOp, 0x2, 0x00, insts.ClassALU, func(env *insts.Env, a, b uint64) uint64 {
			return boolToX(signed(env, a) < signed(env, b))
		}),
		rType("sltu", insts.OpcodeOp, 0x3, 0x00, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 {
			return boolToX(a < b)
		}),
		rType("xor", insts.OpcodeOp, 0x4, 0x00, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 { return a ^ b }),
		rType("srl", insts.OpcodeOp, 0x5, 0x00, insts.ClassALU, func(env *insts.Env, a, b uint64) uint64 {
			return a >> (b & shamtMask(env))
		}),
		rType("sra", insts.OpcodeOp, 0x5, 0x20, insts.ClassALU, func(env *insts.Env, a, b uint64) uint64 {
			return uint64(signed(env, a) >> (b & shamtMask(env)))
		}),
		rType("or", insts.OpcodeOp, 0x6, 0x00, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 { return a | b }),
		rType("and", insts.OpcodeOp, 0x7, 0x00, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 { return a & b }),

		{
			Mnemonic: "fence", Format: insts.FormatI, Class: insts.ClassFence,
			Opcode: insts.OpcodeMiscMem, Funct3: 0x0,
			Exec: func(env *insts.Env, inst *insts.Instruction) error {
				advance(env, inst)
				return nil
			},
		},

		system("ecall", 0x000, insts.ClassSystem, func(env *insts.Env, inst *insts.Instruction) error {
			if err := env.System.Ecall(env.Hart); err != nil {
				return err
			}
			advance(env, inst)
			return nil
		}),
		system("ebreak", 0x001, insts.ClassSystem, func(env *insts.Env, _ *insts.Instruction) error {
			return emu.NewException(emu.CauseBreakpoint, env.Regs.PC())
		}),
		system("sret", 0x102, insts.ClassSystem, func(env *insts.Env, _ *insts.Instruction) error {
			return jumpTo(env, env.Regs.SEPC())
		}),
		system("wfi", 0x105, insts.ClassSystem, func(env *insts.Env, inst *insts.Instruction) error {
			advance(env, inst)
			return nil
		}),
	}
}

// rv32ShiftEntries holds the RV32 immediate shifts, whose shamt[5] must be
// zero.
func rv32ShiftEntries() []insts.Entry {
	narrow := func(raw uint32) bool { return raw&(1<<25) == 0 }
	return shiftEntries(narrow)
}

func shiftEntries(pred func(uint32) bool) []insts.Entry {
	return []insts.Entry{
		shiftImm("slli", insts.OpcodeOpImm, 0x1, 0x00, pred, func(env *insts.Env, a uint64, imm int64) uint64 {
			return a << (uint64(imm) & shamtMask(env))
		}),
		shiftImm("srli", insts.OpcodeOpImm, 0x5, 0x00, pred, func(env *insts.Env, a uint64, imm int64) uint64 {
			return a >> (uint64(imm) & shamtMask(env))
		}),
		shiftImm("srai", insts.OpcodeOpImm, 0x5, 0x10, pred, func(env *insts.Env, a uint64, imm int64) uint64 {
			return uint64(signed(env, a) >> (uint64(imm) & shamtMask(env)))
		}),
	}
}

func rv64Entries() []insts.Entry {
	entries := shiftEntries(nil)
	return append(entries,
		load("lwu", 0x6, 4, false),
		load("ld", 0x3, 8, false),
		store("sd", 0x3, 8),

		iType("addiw", insts.OpcodeOpImm32, 0x0, func(_ *insts.Env, a uint64, imm int64) uint64 {
			return sext32(a + uint64(imm))
		}),
		shiftImm("slliw", insts.OpcodeOpImm32, 0x1, 0x00, nil, func(_ *insts.Env, a uint64, imm int64) uint64 {
			return sext32(a << (uint64(imm) & 0x1F))
		}),
		shiftImm("srliw", insts.OpcodeOpImm32, 0x5, 0x00, nil, func(_ *insts.Env, a uint64, imm int64) uint64 {
			return sext32(uint64(uint32(a) >> (uint64(imm) & 0x1F)))
		}),
		shiftImm("sraiw", insts.OpcodeOpImm32, 0x5, 0x20, nil, func(_ *insts.Env, a uint64, imm int64) uint64 {
			return uint64(int64(int32(uint32(a)) >> (uint64(imm) & 0x1F)))
		}),

		rType("addw", insts.OpcodeOp32, 0x0, 0x00, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 {
			return sext32(a + b)
		}),
		rType("subw", insts.OpcodeOp32, 0x0, 0x20, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 {
			return sext32(a - b)
		}),
		rType("sllw", insts.OpcodeOp32, 0x1, 0x00, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 {
			return sext32(a << (b & 0x1F))
		}),
		rType("srlw", insts.OpcodeOp32, 0x5, 0x00, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 {
			return sext32(uint64(uint32(a) >> (b & 0x1F)))
		}),
		rType("sraw", insts.OpcodeOp32, 0x5, 0x20, insts.ClassALU, func(_ *insts.Env, a, b uint64) uint64 {
			return uint64(int64(int32(uint32(a)) >> (b & 0x1F)))
		}),
	)
}

func boolToX(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
