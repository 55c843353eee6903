package ext

import (
	"math"
	"math/bits"

	"github.com/sarchlab/rvsim/insts"
)

const funct7MulDiv = 0x01

func mEntries() []insts.Entry {
	op := insts.OpcodeOp
	return []insts.Entry{
		rType("mul", op, 0x0, funct7MulDiv, insts.ClassMul, func(_ *insts.Env, a, b uint64) uint64 {
			return a * b
		}),
		rType("mulh", op, 0x1, funct7MulDiv, insts.ClassMul, mulh),
		rType("mulhsu", op, 0x2, funct7MulDiv, insts.ClassMul, mulhsu),
		rType("mulhu", op, 0x3, funct7MulDiv, insts.ClassMul, mulhu),
		rType("div", op, 0x4, funct7MulDiv, insts.ClassDiv, func(env *insts.Env, a, b uint64) uint64 {
			return uint64(divSigned(signed(env, a), signed(env, b), minSigned(env)))
		}),
		rType("divu", op, 0x5, funct7MulDiv, insts.ClassDiv, func(_ *insts.Env, a, b uint64) uint64 {
			if b == 0 {
				return math.MaxUint64
			}
			return a / b
		}),
		rType("rem", op, 0x6, funct7MulDiv, insts.ClassDiv, func(env *insts.Env, a, b uint64) uint64 {
			return uint64(remSigned(signed(env, a), signed(env, b), minSigned(env)))
		}),
		rType("remu", op, 0x7, funct7MulDiv, insts.ClassDiv, func(_ *insts.Env, a, b uint64) uint64 {
			if b == 0 {
				return a
			}
			return a % b
		}),
	}
}

func m64Entries() []insts.Entry {
	op := insts.OpcodeOp32
	return []insts.Entry{
		rType("mulw", op, 0x0, funct7MulDiv, insts.ClassMul, func(_ *insts.Env, a, b uint64) uint64 {
			return sext32(a * b)
		}),
		rType("divw", op, 0x4, funct7MulDiv, insts.ClassDiv, func(_ *insts.Env, a, b uint64) uint64 {
			return sext32(uint64(divSigned(int64(int32(a)), int64(int32(b)), math.MinInt32)))
		}),
		rType("divuw", op, 0x5, funct7MulDiv, insts.ClassDiv, func(_ *insts.Env, a, b uint64) uint64 {
			if uint32(b) == 0 {
				return math.MaxUint64
			}
			return sext32(uint64(uint32(a) / uint32(b)))
		}),
		rType("remw", op, 0x6, funct7MulDiv, insts.ClassDiv, func(_ *insts.Env, a, b uint64) uint64 {
			return sext32(uint64(remSigned(int64(int32(a)), int64(int32(b)), math.MinInt32)))
		}),
		rType("remuw", op, 0x7, funct7MulDiv, insts.ClassDiv, func(_ *insts.Env, a, b uint64) uint64 {
			if uint32(b) == 0 {
				return sext32(a)
			}
			return sext32(uint64(uint32(a) % uint32(b)))
		}),
	}
}

func minSigned(env *insts.Env) int64 {
	if env.Regs.XLEN() == 32 {
		return math.MinInt32
	}
	return math.MinInt64
}

// divSigned divides with the RISC-V results for division by zero (-1) and
// overflow (the dividend).
func divSigned(a, b, minVal int64) int64 {
	switch {
	case b == 0:
		return -1
	case a == minVal && b == -1:
		return a
	}
	return a / b
}

func remSigned(a, b, minVal int64) int64 {
	switch {
	case b == 0:
		return a
	case a == minVal && b == -1:
		return 0
	}
	return a % b
}

// mulh returns the high XLEN bits of the signed product.
func mulh(env *insts.Env, a, b uint64) uint64 {
	if env.Regs.XLEN() == 32 {
		return uint64((signed(env, a) * signed(env, b)) >> 32)
	}
	hi, _ := bits.Mul64(a, b)
	if int64(a) < 0 {
		hi -= b
	}
	if int64(b) < 0 {
		hi -= a
	}
	return hi
}

// mulhsu returns the high XLEN bits of signed a times unsigned b.
func mulhsu(env *insts.Env, a, b uint64) uint64 {
	if env.Regs.XLEN() == 32 {
		return uint64((signed(env, a) * int64(b)) >> 32)
	}
	hi, _ := bits.Mul64(a, b)
	if int64(a) < 0 {
		hi -= b
	}
	return hi
}

// mulhu returns the high XLEN bits of the unsigned product.
func mulhu(env *insts.Env, a, b uint64) uint64 {
	if env.Regs.XLEN() == 32 {
		return (a * b) >> 32
	}
	hi, _ := bits.Mul64(a, b)
	return hi
}
