package ext

import (
	"fmt"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// amoFunc computes the value stored by an AMO from the old memory value and
// the rs2 operand, both truncated to the access size.
type amoFunc func(old, src uint64, size int) uint64

func extendAccess(v uint64, size int) uint64 {
	if size == 4 {
		return sext32(v)
	}
	return v
}

func signedAccess(v uint64, size int) int64 {
	if size == 4 {
		return int64(int32(uint32(v)))
	}
	return int64(v)
}

func unsignedAccess(v uint64, size int) uint64 {
	if size == 4 {
		return uint64(uint32(v))
	}
	return v
}

func atomicAddr(env *insts.Env, inst *insts.Instruction, size int, cause emu.Cause) (uint64, error) {
	addr := effAddr(env, env.Regs.ReadX(inst.Rs1), 0)
	if addr%uint64(size) != 0 {
		return 0, emu.NewException(cause, addr)
	}
	return addr, nil
}

func amo(mn string, size int, f3, f5 uint8, fn amoFunc) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatR, Class: insts.ClassAtomic,
		Opcode: insts.OpcodeAMO, Funct3: f3, Funct7: f5,
		Rd: emu.RegGPR, Rs1: emu.RegGPR, Rs2: emu.RegGPR,
		Exec: func(env *insts.Env, inst *insts.Instruction) error {
			addr, err := atomicAddr(env, inst, size, emu.CauseMisalignedStore)
			if err != nil {
				return err
			}
			src := unsignedAccess(env.Regs.ReadX(inst.Rs2), size)
			old, err := env.Mem.AMO(env.Hart, addr, size, func(old uint64) uint64 {
				return fn(unsignedAccess(old, size), src, size)
			})
			if err != nil {
				return err
			}
			env.Regs.WriteX(inst.Rd, extendAccess(old, size))
			advance(env, inst)
			return nil
		},
	}
}

// aEntries returns the atomic instructions for one access size. f3 is 0x2
// for word and 0x3 for doubleword accesses.
func aEntries(size int, f3 uint8) []insts.Entry {
	suffix := map[int]string{4: ".w", 8: ".d"}[size]
	name := func(base string) string { return fmt.Sprintf("%s%s", base, suffix) }

	return []insts.Entry{
		{
			Mnemonic: name("lr"), Format: insts.FormatR, Class: insts.ClassAtomic,
			Opcode: insts.OpcodeAMO, Funct3: f3, Funct7: 0x02,
			Rd: emu.RegGPR, Rs1: emu.RegGPR,
			Predicate: func(raw uint32) bool { return (raw>>20)&0x1F == 0 },
			Exec: func(env *insts.Env, inst *insts.Instruction) error {
				addr, err := atomicAddr(env, inst, size, emu.CauseMisalignedLoad)
				if err != nil {
					return err
				}
				v, err := env.Mem.LoadReserved(env.Hart, addr, size)
				if err != nil {
					return err
				}
				env.Regs.WriteX(inst.Rd, extendAccess(v, size))
				advance(env, inst)
				return nil
			},
		},
		{
			Mnemonic: name("sc"), Format: insts.FormatR, Class: insts.ClassAtomic,
			Opcode: insts.OpcodeAMO, Funct3: f3, Funct7: 0x03,
			Rd: emu.RegGPR, Rs1: emu.RegGPR, Rs2: emu.RegGPR,
			Exec: func(env *insts.Env, inst *insts.Instruction) error {
				addr, err := atomicAddr(env, inst, size, emu.CauseMisalignedStore)
				if err != nil {
					return err
				}
				ok, err := env.Mem.StoreConditional(env.Hart, addr, size, env.Regs.ReadX(inst.Rs2))
				if err != nil {
					return err
				}
				env.Regs.WriteX(inst.Rd, boolToX(!ok))
				advance(env, inst)
				return nil
			},
		},
		amo(name("amoswap"), size, f3, 0x01, func(_, src uint64, _ int) uint64 { return src }),
		amo(name("amoadd"), size, f3, 0x00, func(old, src uint64, _ int) uint64 { return old + src }),
		amo(name("amoxor"), size, f3, 0x04, func(old, src uint64, _ int) uint64 { return old ^ src }),
		amo(name("amoand"), size, f3, 0x0C, func(old, src uint64, _ int) uint64 { return old & src }),
		amo(name("amoor"), size, f3, 0x08, func(old, src uint64, _ int) uint64 { return old | src }),
		amo(name("amomin"), size, f3, 0x10, func(old, src uint64, size int) uint64 {
			if signedAccess(old, size) < signedAccess(src, size) {
				return old
			}
			return src
		}),
		amo(name("amomax"), size, f3, 0x14, func(old, src uint64, size int) uint64 {
			if signedAccess(old, size) > signedAccess(src, size) {
				return old
			}
			return src
		}),
		amo(name("amominu"), size, f3, 0x18, func(old, src uint64, _ int) uint64 {
			if old < src {
				return old
			}
			return src
		}),
		amo(name("amomaxu"), size, f3, 0x1C, func(old, src uint64, _ int) uint64 {
			if old > src {
				return old
			}
			return src
		}),
	}
}
