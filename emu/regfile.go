// Package emu provides the functional RISC-V hart state: register file,
// control/status registers, exceptions, memory and in-flight request
// bookkeeping.
package emu

import (
	"github.com/sarchlab/rvsim/feature"
)

// RegClass identifies the register bank an operand lives in.
type RegClass uint8

// Register classes.
const (
	RegUnknown RegClass = iota
	RegGPR
	RegFloat
	RegCSR
	RegFetch // instruction fetch fills, not an architectural bank
)

// ABI register numbers used by the simulator itself.
const (
	RegZero uint8 = 0
	RegRA   uint8 = 1
	RegSP   uint8 = 2
	RegGP   uint8 = 3
	RegTP   uint8 = 4
	RegA0   uint8 = 10
	RegA1   uint8 = 11
	RegA2   uint8 = 12
	RegA3   uint8 = 13
	RegA7   uint8 = 17
)

// Counters supplies the values behind the read-only counter CSRs. The
// owning core implements it and injects it at construction.
type Counters interface {
	GetCycles() uint64
	GetCurrentSimCycle() uint64
	GetHartID() int
}

// RegFile holds the architectural state of one hart.
type RegFile struct {
	hartID   int
	features *feature.Features
	xlen     int
	flen     int

	x  [32]uint64
	f  [32]uint64
	pc uint64

	csr  [numCSRs]uint64
	fcsr uint32

	xScoreboard Scoreboard
	fScoreboard Scoreboard

	instRet uint64

	counters Counters
	tracer   Tracer
}

// NewRegFile creates the register file of hart hartID. counters may be nil,
// in which case counter CSRs read the retired-instruction count.
func NewRegFile(f *feature.Features, hartID int, counters Counters) *RegFile {
	r := &RegFile{
		hartID:   hartID,
		features: f,
		xlen:     f.XLEN(),
		flen:     f.FLEN(),
		counters: counters,
	}
	r.csr[CSRMisa] = f.MISA()
	r.csr[CSRMhartid] = uint64(hartID)
	return r
}

// SetTracer attaches a tracer that is notified of every register mutation.
func (r *RegFile) SetTracer(t Tracer) {
	r.tracer = t
}

// HartID returns the hart this register file belongs to.
func (r *RegFile) HartID() int { return r.hartID }

// Features returns the configuration the register file was built for.
func (r *RegFile) Features() *feature.Features { return r.features }

// XLEN returns the integer register width in bits.
func (r *RegFile) XLEN() int { return r.xlen }

// mask truncates v to XLEN bits.
func (r *RegFile) mask(v uint64) uint64 {
	if r.xlen == 32 {
		return v & 0xFFFF_FFFF
	}
	return v
}

// ReadX reads integer register idx. Register 0 always reads as 0.
func (r *RegFile) ReadX(idx uint8) uint64 {
	if idx == 0 || idx >= 32 {
		return 0
	}
	return r.x[idx]
}

// ReadXSigned reads integer register idx sign-extended from XLEN to 64 bits.
func (r *RegFile) ReadXSigned(idx uint8) int64 {
	v := r.ReadX(idx)
	if r.xlen == 32 {
		return int64(int32(uint32(v)))
	}
	return int64(v)
}

// WriteX writes integer register idx, truncated to XLEN. Writes to
// register 0 are discarded.
func (r *RegFile) WriteX(idx uint8, value uint64) {
	if idx == 0 || idx >= 32 {
		return
	}
	r.x[idx] = r.mask(value)
	if r.tracer != nil {
		r.tracer.TraceRegWrite(r.hartID, RegGPR, uint16(idx), r.x[idx])
	}
}

// XInt is the set of types integer registers can be accessed as.
type XInt interface {
	~int32 | ~uint32 | ~int64 | ~uint64
}

// GetX reads integer register idx as T. On RV32 the register is viewed as
// 32 bits before conversion.
func GetX[T XInt](r *RegFile, idx uint8) T {
	v := r.ReadX(idx)
	if r.xlen == 32 {
		return T(uint32(v))
	}
	return T(v)
}

// SetX writes value into integer register idx. Signed values are
// sign-extended before truncation to XLEN.
func SetX[T XInt](r *RegFile, idx uint8, value T) {
	r.WriteX(idx, uint64(value))
}

// PC returns the program counter.
func (r *RegFile) PC() uint64 { return r.pc }

// SetPC sets the program counter and notifies the tracer.
func (r *RegFile) SetPC(pc uint64) {
	r.pc = r.mask(pc)
	if r.tracer != nil {
		r.tracer.TracePC(r.hartID, r.pc)
	}
}

// AdvancePC moves the program counter past an instruction of size bytes.
// It does not notify the tracer.
func (r *RegFile) AdvancePC(size uint8) {
	r.pc = r.mask(r.pc + uint64(size))
}

// InstRet returns the number of instructions retired by this hart.
func (r *RegFile) InstRet() uint64 { return r.instRet }

// Retire counts one retired instruction.
func (r *RegFile) Retire() { r.instRet++ }

// Scoreboard returns the hazard scoreboard of a register class. Only
// RegGPR and RegFloat have scoreboards; other classes return nil.
func (r *RegFile) Scoreboard(class RegClass) *Scoreboard {
	switch class {
	case RegGPR:
		return &r.xScoreboard
	case RegFloat:
		return &r.fScoreboard
	default:
		return nil
	}
}

// Trap records an architectural exception: SEPC takes the current PC,
// SCAUSE and STVAL the exception fields, and execution continues at STVEC.
func (r *RegFile) Trap(e *Exception) {
	r.csr[CSRSepc] = r.pc
	r.csr[CSRScause] = uint64(e.Cause)
	r.csr[CSRStval] = r.mask(e.Tval)
	r.SetPC(r.csr[CSRStvec] &^ 0x3)
}

// SEPC returns the saved exception PC.
func (r *RegFile) SEPC() uint64 { return r.csr[CSRSepc] }

// SCAUSE returns the cause of the last trap.
func (r *RegFile) SCAUSE() Cause { return Cause(r.csr[CSRScause]) }

// STVAL returns the trap value of the last trap.
func (r *RegFile) STVAL() uint64 { return r.csr[CSRStval] }

// Clone returns a deep copy of the architectural state. The copy shares
// features and counters but has no tracer attached.
func (r *RegFile) Clone() *RegFile {
	c := *r
	c.tracer = nil
	return &c
}

// CopyFrom overwrites the architectural state with src, keeping the hart
// identity, counters and tracer of r.
func (r *RegFile) CopyFrom(src *RegFile) {
	hartID, counters, tracer := r.hartID, r.counters, r.tracer
	*r = *src
	r.hartID, r.counters, r.tracer = hartID, counters, tracer
	r.csr[CSRMhartid] = uint64(hartID)
	if r.tracer != nil {
		r.tracer.TracePC(r.hartID, r.pc)
	}
}
