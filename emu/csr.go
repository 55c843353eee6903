package emu

const numCSRs = 4096

// CSR addresses modeled by the register file.
const (
	CSRFflags uint16 = 0x001
	CSRFrm    uint16 = 0x002
	CSRFcsr   uint16 = 0x003

	CSRSstatus  uint16 = 0x100
	CSRStvec    uint16 = 0x105
	CSRSscratch uint16 = 0x140
	CSRSepc     uint16 = 0x141
	CSRScause   uint16 = 0x142
	CSRStval    uint16 = 0x143

	CSRMisa    uint16 = 0x301
	CSRMhartid uint16 = 0xF14

	CSRCycle    uint16 = 0xC00
	CSRTime     uint16 = 0xC01
	CSRInstret  uint16 = 0xC02
	CSRCycleh   uint16 = 0xC80
	CSRTimeh    uint16 = 0xC81
	CSRInstreth uint16 = 0xC82
)

// Floating-point exception flags in fflags.
const (
	FFlagNX uint32 = 1 << iota // inexact
	FFlagUF                    // underflow
	FFlagOF                    // overflow
	FFlagDZ                    // divide by zero
	FFlagNV                    // invalid operation
)

// RoundingMode is the frm field of fcsr or the rm field of an instruction.
type RoundingMode uint8

// Rounding modes.
const (
	RoundNearestEven RoundingMode = 0b000
	RoundTowardZero  RoundingMode = 0b001
	RoundDown        RoundingMode = 0b010
	RoundUp          RoundingMode = 0b011
	RoundNearestMax  RoundingMode = 0b100
	RoundDynamic     RoundingMode = 0b111
)

// IsReadOnlyCSR reports whether a CSR address is read-only by encoding
// (bits [11:10] == 0b11).
func IsReadOnlyCSR(csr uint16) bool {
	return (csr>>10)&0x3 == 0x3
}

// CSRExists reports whether csr is implemented for the configured XLEN.
// The high counter halves exist only on RV32.
func (r *RegFile) CSRExists(csr uint16) bool {
	switch csr & (numCSRs - 1) {
	case CSRCycleh, CSRTimeh, CSRInstreth:
		return r.xlen == 32
	}
	return true
}

// ReadCSR reads a control/status register. fflags, frm and fcsr are views
// of the packed fcsr; counter CSRs are computed on demand.
func (r *RegFile) ReadCSR(csr uint16) uint64 {
	csr &= numCSRs - 1

	switch csr {
	case CSRFflags:
		return uint64(r.fcsr & 0x1F)
	case CSRFrm:
		return uint64((r.fcsr >> 5) & 0x7)
	case CSRFcsr:
		return uint64(r.fcsr & 0xFF)
	case CSRCycle, CSRTime, CSRInstret:
		return r.mask(r.counter(csr))
	case CSRCycleh, CSRTimeh, CSRInstreth:
		if r.xlen != 32 {
			return 0
		}
		return r.counter(csr-0x80) >> 32
	}

	return r.csr[csr]
}

// WriteCSR writes a control/status register. Writes to read-only CSRs are
// discarded; instruction semantics are responsible for raising an illegal
// instruction exception before getting here.
func (r *RegFile) WriteCSR(csr uint16, value uint64) {
	csr &= numCSRs - 1
	if IsReadOnlyCSR(csr) {
		return
	}

	switch csr {
	case CSRFflags:
		r.fcsr = (r.fcsr &^ 0x1F) | uint32(value&0x1F)
	case CSRFrm:
		r.fcsr = (r.fcsr &^ 0xE0) | uint32(value&0x7)<<5
	case CSRFcsr:
		r.fcsr = uint32(value & 0xFF)
	case CSRMisa:
		// WARL: writes ignored, the ISA is fixed by configuration.
		return
	default:
		r.csr[csr] = r.mask(value)
	}

	if r.tracer != nil {
		r.tracer.TraceRegWrite(r.hartID, RegCSR, csr, r.ReadCSR(csr))
	}
}

func (r *RegFile) counter(csr uint16) uint64 {
	switch csr {
	case CSRInstret:
		return r.instRet
	case CSRCycle:
		if r.counters != nil {
			return r.counters.GetCycles()
		}
	case CSRTime:
		if r.counters != nil {
			return r.counters.GetCurrentSimCycle()
		}
	}
	return r.instRet
}

// FRM returns the dynamic rounding mode held in fcsr.
func (r *RegFile) FRM() RoundingMode {
	return RoundingMode((r.fcsr >> 5) & 0x7)
}

// RaiseFFlags accumulates floating-point exception flags into fcsr.
func (r *RegFile) RaiseFFlags(flags uint32) {
	if flags == 0 {
		return
	}
	r.fcsr |= flags & 0x1F
}
