package ext

import (
	"math"
	"math/big"

	"github.com/sarchlab/rvsim/emu"
)

type fpOp uint8

const (
	fpAdd fpOp = iota
	fpSub
	fpMul
	fpDiv
	fpSqrt
	fpFMA
)

// Working precisions. exactPrec holds any sum or fused product of float64
// values without rounding; quotPrec is wide enough that quotients and
// square roots of float64 values round correctly a second time.
const (
	exactPrec = 4400
	quotPrec  = 256
)

// fpVal is a floating-point operand widened to float64, with the
// signaling-NaN bit taken from its original encoding.
type fpVal struct {
	v    float64
	snan bool
}

func (x fpVal) isNaN() bool { return math.IsNaN(x.v) }

func f32Val(bits uint32) fpVal {
	nan := bits&0x7F80_0000 == 0x7F80_0000 && bits&0x007F_FFFF != 0
	return fpVal{
		v:    float64(math.Float32frombits(bits)),
		snan: nan && bits&0x0040_0000 == 0,
	}
}

func f64Val(bits uint64) fpVal {
	nan := bits&0x7FF0_0000_0000_0000 == 0x7FF0_0000_0000_0000 && bits&0x000F_FFFF_FFFF_FFFF != 0
	return fpVal{
		v:    math.Float64frombits(bits),
		snan: nan && bits&0x0008_0000_0000_0000 == 0,
	}
}

func bigMode(rm emu.RoundingMode) big.RoundingMode {
	switch rm {
	case emu.RoundTowardZero:
		return big.ToZero
	case emu.RoundDown:
		return big.ToNegativeInf
	case emu.RoundUp:
		return big.ToPositiveInf
	case emu.RoundNearestMax:
		return big.ToNearestAway
	default:
		return big.ToNearestEven
	}
}

func exactBig(v float64) *big.Float {
	return new(big.Float).SetPrec(exactPrec).SetFloat64(v)
}

// fpArith computes op on xs and rounds the result to single or double
// precision with rm. It returns the result, widened to float64, and the
// exception flags raised.
func fpArith(op fpOp, single bool, rm emu.RoundingMode, xs ...fpVal) (float64, uint32) {
	var flags uint32
	anyNaN := false
	for _, x := range xs {
		if x.snan {
			flags |= emu.FFlagNV
		}
		if x.isNaN() {
			anyNaN = true
		}
	}

	var a, b, c float64
	a = xs[0].v
	if len(xs) > 1 {
		b = xs[1].v
	}
	if len(xs) > 2 {
		c = xs[2].v
	}

	// inf * 0 is invalid even when the addend is a quiet NaN.
	if op == fpFMA && ((math.IsInf(a, 0) && b == 0) || (a == 0 && math.IsInf(b, 0))) {
		return math.NaN(), flags | emu.FFlagNV
	}
	if anyNaN {
		return math.NaN(), flags
	}
	if fpInvalid(op, a, b, c) {
		return math.NaN(), flags | emu.FFlagNV
	}
	if op == fpDiv && b == 0 && !math.IsInf(a, 0) {
		return math.Copysign(math.Inf(1), sign(a)*sign(b)), flags | emu.FFlagDZ
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) || math.IsInf(c, 0) {
		return fpNative(op, a, b, c), flags
	}

	z, exact := fpExact(op, a, b, c)
	if z.Sign() == 0 {
		return fpZero(op, a, b, c, rm), flags
	}

	r, rflags := roundFloat(z, single, rm)
	if !exact {
		rflags |= emu.FFlagNX
	}
	return r, flags | rflags
}

func sign(v float64) float64 {
	if math.Signbit(v) {
		return -1
	}
	return 1
}

func fpInvalid(op fpOp, a, b, c float64) bool {
	switch op {
	case fpAdd:
		return math.IsInf(a, 0) && math.IsInf(b, 0) && math.Signbit(a) != math.Signbit(b)
	case fpSub:
		return math.IsInf(a, 0) && math.IsInf(b, 0) && math.Signbit(a) == math.Signbit(b)
	case fpMul:
		return (math.IsInf(a, 0) && b == 0) || (a == 0 && math.IsInf(b, 0))
	case fpDiv:
		return (a == 0 && b == 0) || (math.IsInf(a, 0) && math.IsInf(b, 0))
	case fpSqrt:
		return a < 0
	case fpFMA:
		productInf := math.IsInf(a, 0) || math.IsInf(b, 0)
		productNeg := math.Signbit(a) != math.Signbit(b)
		return productInf && math.IsInf(c, 0) && productNeg != math.Signbit(c)
	}
	return false
}

// fpNative evaluates op when an operand is infinite; the result is exact.
func fpNative(op fpOp, a, b, c float64) float64 {
	switch op {
	case fpAdd:
		return a + b
	case fpSub:
		return a - b
	case fpMul:
		return a * b
	case fpDiv:
		return a / b
	case fpSqrt:
		return math.Sqrt(a)
	default:
		return math.FMA(a, b, c)
	}
}

// fpExact evaluates op on finite operands. exact reports whether z holds
// the mathematically exact result.
func fpExact(op fpOp, a, b, c float64) (z *big.Float, exact bool) {
	switch op {
	case fpAdd:
		return new(big.Float).SetPrec(exactPrec).Add(exactBig(a), exactBig(b)), true
	case fpSub:
		return new(big.Float).SetPrec(exactPrec).Sub(exactBig(a), exactBig(b)), true
	case fpMul:
		return new(big.Float).SetPrec(exactPrec).Mul(exactBig(a), exactBig(b)), true
	case fpDiv:
		z = new(big.Float).SetPrec(quotPrec).Quo(exactBig(a), exactBig(b))
		return z, z.Acc() == big.Exact
	case fpSqrt:
		z = new(big.Float).SetPrec(quotPrec).Sqrt(exactBig(a))
		sq := new(big.Float).SetPrec(exactPrec).Mul(z, z)
		return z, sq.Cmp(exactBig(a)) == 0
	default:
		p := new(big.Float).SetPrec(exactPrec).Mul(exactBig(a), exactBig(b))
		return new(big.Float).SetPrec(exactPrec).Add(p, exactBig(c)), true
	}
}

// fpZero returns the signed zero produced by an exact zero result.
func fpZero(op fpOp, a, b, c float64, rm emu.RoundingMode) float64 {
	sumZero := func(x, y float64) float64 {
		if x == 0 && y == 0 && math.Signbit(x) == math.Signbit(y) {
			return x
		}
		if rm == emu.RoundDown {
			return math.Copysign(0, -1)
		}
		return 0
	}

	switch op {
	case fpAdd:
		return sumZero(a, b)
	case fpSub:
		return sumZero(a, -b)
	case fpMul, fpDiv:
		return math.Copysign(0, sign(a)*sign(b))
	case fpSqrt:
		return a
	default:
		if a == 0 || b == 0 {
			return sumZero(a*b, c)
		}
		return sumZero(1, -1)
	}
}

// roundFloat rounds a finite non-zero value to single or double precision.
func roundFloat(z *big.Float, single bool, rm emu.RoundingMode) (float64, uint32) {
	mbits, emin := 53, -1022
	if single {
		mbits, emin = 24, -126
	}

	var flags uint32
	e := z.MantExp(nil) - 1
	prec := mbits
	tiny := e < emin
	if tiny {
		prec = mbits - (emin - e)
		if prec < 1 {
			return underflowResult(z, single, rm), emu.FFlagNX | emu.FFlagUF
		}
	}

	r := new(big.Float).SetMode(bigMode(rm)).SetPrec(uint(prec)).Set(z)
	inexact := r.Acc() != big.Exact

	var f float64
	if single {
		f32, _ := r.Float32()
		f = float64(f32)
	} else {
		f, _ = r.Float64()
	}

	if math.IsInf(f, 0) {
		return overflowResult(r.Sign() < 0, single, rm), emu.FFlagOF | emu.FFlagNX
	}
	if inexact {
		flags |= emu.FFlagNX
		if tiny {
			flags |= emu.FFlagUF
		}
	}
	return f, flags
}

func overflowResult(neg, single bool, rm emu.RoundingMode) float64 {
	maxVal := math.MaxFloat64
	if single {
		maxVal = math.MaxFloat32
	}

	mag := math.Inf(1)
	switch rm {
	case emu.RoundTowardZero:
		mag = maxVal
	case emu.RoundDown:
		if !neg {
			mag = maxVal
		}
	case emu.RoundUp:
		if neg {
			mag = maxVal
		}
	}

	if neg {
		return -mag
	}
	return mag
}

// underflowResult rounds a value smaller in magnitude than the smallest
// subnormal to zero or to that subnormal.
func underflowResult(z *big.Float, single bool, rm emu.RoundingMode) float64 {
	minVal := math.SmallestNonzeroFloat64
	if single {
		minVal = math.SmallestNonzeroFloat32
	}

	neg := z.Sign() < 0
	half := new(big.Float).SetFloat64(minVal)
	half.SetMantExp(half, -1)
	cmp := new(big.Float).Abs(z).Cmp(half)

	var up bool
	switch rm {
	case emu.RoundTowardZero:
		up = false
	case emu.RoundDown:
		up = neg
	case emu.RoundUp:
		up = !neg
	case emu.RoundNearestMax:
		up = cmp >= 0
	default:
		up = cmp > 0
	}

	mag := 0.0
	if up {
		mag = minVal
	}
	if neg {
		return math.Copysign(mag, -1)
	}
	return mag
}

func roundInt(v float64, rm emu.RoundingMode) float64 {
	switch rm {
	case emu.RoundTowardZero:
		return math.Trunc(v)
	case emu.RoundDown:
		return math.Floor(v)
	case emu.RoundUp:
		return math.Ceil(v)
	case emu.RoundNearestMax:
		return math.Round(v)
	default:
		return math.RoundToEven(v)
	}
}

// fpToInt converts x to a width-bit integer, saturating out-of-range and
// NaN inputs. 32-bit results are sign-extended to 64 bits.
func fpToInt(x fpVal, rm emu.RoundingMode, isSigned bool, width int) (uint64, uint32) {
	var maxBits, minBits uint64
	var upper, lower float64
	if isSigned {
		maxBits = 1<<(width-1) - 1
		minBits = uint64(-(int64(1) << (width - 1)))
		upper = math.Ldexp(1, width-1)
		lower = -upper
	} else {
		maxBits = math.MaxUint64 >> (64 - width)
		upper = math.Ldexp(1, width)
	}

	result := func(v uint64) uint64 {
		if width == 32 {
			return sext32(v)
		}
		return v
	}

	if x.isNaN() {
		return result(maxBits), emu.FFlagNV
	}

	r := roundInt(x.v, rm)
	switch {
	case r >= upper:
		return result(maxBits), emu.FFlagNV
	case r < lower:
		return result(minBits), emu.FFlagNV
	}

	var flags uint32
	if r != x.v {
		flags |= emu.FFlagNX
	}
	if isSigned {
		return result(uint64(int64(r))), flags
	}
	return result(uint64(r)), flags
}

// intToFP converts an integer to single or double precision.
func intToFP(v uint64, isSigned, single bool, rm emu.RoundingMode) (float64, uint32) {
	z := new(big.Float).SetPrec(64)
	if isSigned {
		z.SetInt64(int64(v))
	} else {
		z.SetUint64(v)
	}
	if z.Sign() == 0 {
		return 0, 0
	}
	return roundFloat(z, single, rm)
}

// fpNarrow converts a double to single precision.
func fpNarrow(x fpVal, rm emu.RoundingMode) (float64, uint32) {
	var flags uint32
	if x.snan {
		flags |= emu.FFlagNV
	}
	if x.isNaN() {
		return math.NaN(), flags
	}
	if x.v == 0 || math.IsInf(x.v, 0) {
		return x.v, flags
	}
	return roundFloat(exactBig(x.v), true, rm)
}

// fpMinMax implements FMIN and FMAX, including the signed-zero ordering
// and the quiet-NaN passthrough.
func fpMinMax(a, b fpVal, isMax bool) (float64, uint32) {
	var flags uint32
	if a.snan || b.snan {
		flags |= emu.FFlagNV
	}
	switch {
	case a.isNaN() && b.isNaN():
		return math.NaN(), flags
	case a.isNaN():
		return b.v, flags
	case b.isNaN():
		return a.v, flags
	case isMax:
		return math.Max(a.v, b.v), flags
	default:
		return math.Min(a.v, b.v), flags
	}
}

// fpCompare implements FEQ (quiet) and FLT/FLE (signaling).
func fpCompare(a, b fpVal, pred func(x, y float64) bool, signaling bool) (bool, uint32) {
	var flags uint32
	if a.snan || b.snan || (signaling && (a.isNaN() || b.isNaN())) {
		flags |= emu.FFlagNV
	}
	if a.isNaN() || b.isNaN() {
		return false, flags
	}
	return pred(a.v, b.v), flags
}

// fpClass returns the FCLASS mask of x.
func fpClass(x fpVal, single bool) uint64 {
	smallest := 0x1p-1022
	if single {
		smallest = 0x1p-126
	}

	v := x.v
	neg := math.Signbit(v)
	var bit uint
	switch {
	case x.isNaN() && x.snan:
		bit = 8
	case x.isNaN():
		bit = 9
	case math.IsInf(v, 0):
		bit = 7
		if neg {
			bit = 0
		}
	case v == 0:
		bit = 4
		if neg {
			bit = 3
		}
	case math.Abs(v) < smallest:
		bit = 5
		if neg {
			bit = 2
		}
	default:
		bit = 6
		if neg {
			bit = 1
		}
	}
	return 1 << bit
}
