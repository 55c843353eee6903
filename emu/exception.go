package emu

import "fmt"

// Cause is an exception cause code as written to SCAUSE.
type Cause uint64

// Exception causes.
const (
	CauseMisalignedFetch    Cause = 0
	CauseFetchAccessFault   Cause = 1
	CauseIllegalInstruction Cause = 2
	CauseBreakpoint         Cause = 3
	CauseMisalignedLoad     Cause = 4
	CauseLoadAccessFault    Cause = 5
	CauseMisalignedStore    Cause = 6
	CauseStoreAccessFault   Cause = 7
	CauseEcallU             Cause = 8
	CauseEcallS             Cause = 9
	CauseEcallM             Cause = 11
	CauseFetchPageFault     Cause = 12
	CauseLoadPageFault      Cause = 13
	CauseStorePageFault     Cause = 15
	CauseHardwareError      Cause = 19
)

var causeNames = map[Cause]string{
	CauseMisalignedFetch:    "instruction address misaligned",
	CauseFetchAccessFault:   "instruction access fault",
	CauseIllegalInstruction: "illegal instruction",
	CauseBreakpoint:         "breakpoint",
	CauseMisalignedLoad:     "load address misaligned",
	CauseLoadAccessFault:    "load access fault",
	CauseMisalignedStore:    "store address misaligned",
	CauseStoreAccessFault:   "store access fault",
	CauseEcallU:             "environment call from U-mode",
	CauseEcallS:             "environment call from S-mode",
	CauseEcallM:             "environment call from M-mode",
	CauseFetchPageFault:     "instruction page fault",
	CauseLoadPageFault:      "load page fault",
	CauseStorePageFault:     "store page fault",
	CauseHardwareError:      "hardware error",
}

func (c Cause) String() string {
	if n, ok := causeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("cause %d", uint64(c))
}

// Exception is an architectural exception raised by decode or execution.
// It is recoverable: the core turns it into a trap on the faulting hart.
type Exception struct {
	Cause Cause
	Tval  uint64
}

// NewException creates an exception with the given cause and trap value.
func NewException(cause Cause, tval uint64) *Exception {
	return &Exception{Cause: cause, Tval: tval}
}

// IllegalInstruction creates an illegal instruction exception for the raw
// instruction bits.
func IllegalInstruction(raw uint32) *Exception {
	return NewException(CauseIllegalInstruction, uint64(raw))
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%s (tval=0x%X)", e.Cause, e.Tval)
}
