package emu

import "math"

// Canonical quiet NaN bit patterns.
const (
	CanonicalNaN32 uint32 = 0x7FC0_0000
	CanonicalNaN64 uint64 = 0x7FF8_0000_0000_0000

	boxMask uint64 = 0xFFFF_FFFF_0000_0000
)

// Float is the set of types floating-point registers can be accessed as.
type Float interface {
	float32 | float64
}

// BoxF32 embeds a single-precision bit pattern in a 64-bit register with
// the upper 32 bits set to all ones.
func BoxF32(bits uint32) uint64 {
	return boxMask | uint64(bits)
}

// UnboxF32 extracts a single-precision bit pattern from a 64-bit register.
// A value that is not properly boxed reads as the canonical NaN.
func UnboxF32(raw uint64) uint32 {
	if raw&boxMask != boxMask {
		return CanonicalNaN32
	}
	return uint32(raw)
}

// ReadFBits returns the raw contents of floating-point register idx,
// without any NaN-boxing check. It is used by bit moves and stores.
func (r *RegFile) ReadFBits(idx uint8) uint64 {
	return r.f[idx&0x1F]
}

// WriteFBits writes the raw contents of floating-point register idx.
func (r *RegFile) WriteFBits(idx uint8, bits uint64) {
	idx &= 0x1F
	r.f[idx] = bits
	if r.tracer != nil {
		r.tracer.TraceRegWrite(r.hartID, RegFloat, uint16(idx), bits)
	}
}

// ReadF32Bits returns the single-precision bit pattern held in register
// idx. On a 64-bit FP register file the value must be NaN-boxed.
func (r *RegFile) ReadF32Bits(idx uint8) uint32 {
	raw := r.ReadFBits(idx)
	if r.flen > 32 {
		return UnboxF32(raw)
	}
	return uint32(raw)
}

// WriteF32Bits stores a single-precision bit pattern into register idx,
// NaN-boxing it when the FP register file is wider than 32 bits.
func (r *RegFile) WriteF32Bits(idx uint8, bits uint32) {
	if r.flen > 32 {
		r.WriteFBits(idx, BoxF32(bits))
		return
	}
	r.WriteFBits(idx, uint64(bits))
}

// GetFP reads floating-point register idx as T.
func GetFP[T Float](r *RegFile, idx uint8) T {
	var zero T
	if _, ok := any(zero).(float32); ok {
		return T(math.Float32frombits(r.ReadF32Bits(idx)))
	}
	return T(math.Float64frombits(r.ReadFBits(idx)))
}

// SetFP writes value into floating-point register idx. Single-precision
// values are NaN-boxed when the register is wider.
func SetFP[T Float](r *RegFile, idx uint8, value T) {
	var zero T
	if _, ok := any(zero).(float32); ok {
		r.WriteF32Bits(idx, math.Float32bits(float32(value)))
		return
	}
	r.WriteFBits(idx, math.Float64bits(float64(value)))
}
