package core

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// HartState is the scheduling state of a hart.
type HartState int

// Hart states.
const (
	HartRunning HartState = iota
	HartStalled
	HartHalted
	HartSingleStep
	HartExited
)

func (s HartState) String() string {
	switch s {
	case HartRunning:
		return "running"
	case HartStalled:
		return "stalled"
	case HartHalted:
		return "halted"
	case HartSingleStep:
		return "single-step"
	case HartExited:
		return "exited"
	default:
		return "unknown"
	}
}

// StallCause is the reason a hart cannot dispatch.
type StallCause int

// Stall causes.
const (
	StallNone StallCause = iota
	StallFetch
	StallHazard

	// idle-cycle classes that are not hart stall causes
	stallExecuting
	stallHalted
)

// FaultKind is the kind of an injected hardware fault.
type FaultKind int

// Fault kinds.
const (
	FaultRegister FaultKind = iota
	FaultCrack
	FaultALU
)

func (k FaultKind) String() string {
	switch k {
	case FaultRegister:
		return "register"
	case FaultCrack:
		return "crack"
	case FaultALU:
		return "alu"
	default:
		return "unknown"
	}
}

type fault struct {
	kind  FaultKind
	width int
}

// exception returns the trap a pending fault is delivered as. A crack
// fault looks like an undecodable instruction; the others report a
// hardware error with the fault width as trap value.
func (f *fault) exception(inst *insts.Instruction) *emu.Exception {
	if f.kind == FaultCrack {
		return emu.IllegalInstruction(inst.Raw)
	}
	return emu.NewException(emu.CauseHardwareError, uint64(f.width))
}

// HartStats holds per-hart statistics.
type HartStats struct {
	Instructions uint64
	FetchStalls  uint64
	HazardStalls uint64
	Traps        uint64
	Faults       uint64
}

type hart struct {
	id   int
	pid  int
	regs *emu.RegFile
	env  *insts.Env

	halted     bool
	singleStep bool
	exited     bool
	exitCode   int64

	stall    StallCause
	pending  *insts.Instruction
	inflight *insts.Instruction
	issuePC  uint64
	busy     uint64

	breakpoints map[uint64]struct{}
	skipBreak   bool
	fault       *fault

	stats HartStats
}

func (h *hart) state() HartState {
	switch {
	case h.exited:
		return HartExited
	case h.halted:
		return HartHalted
	case h.singleStep:
		return HartSingleStep
	case h.stall != StallNone:
		return HartStalled
	default:
		return HartRunning
	}
}

// active reports whether the hart may still dispatch instructions.
func (h *hart) active() bool {
	return !h.exited && !h.halted
}

type hartCounters struct {
	core *Core
	id   int
}

func (hc hartCounters) GetCycles() uint64          { return hc.core.cycle }
func (hc hartCounters) GetCurrentSimCycle() uint64 { return hc.core.cycle }
func (hc hartCounters) GetHartID() int             { return hc.id }
