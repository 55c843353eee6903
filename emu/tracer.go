package emu

// Tracer observes architectural state changes of a register file.
type Tracer interface {
	// TraceRegWrite is called after a register of the given class is written.
	TraceRegWrite(hart int, class RegClass, idx uint16, value uint64)
	// TracePC is called after the program counter is set explicitly.
	TracePC(hart int, pc uint64)
}
