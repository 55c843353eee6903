package core

import (
	"github.com/sarchlab/rvsim/timing/memctrl"
	"github.com/sarchlab/rvsim/timing/prefetch"
)

// Stats is a snapshot of the core statistics.
type Stats struct {
	Cycles     uint64
	BusyCycles uint64
	IdleCycles uint64

	// Idle cycles by cause. A cycle is counted as executing when at least
	// one hart is occupied by a multi-cycle instruction, as halted when no
	// hart can dispatch at all, and otherwise by the stall of the harts.
	IdleFetch     uint64
	IdleHazard    uint64
	IdleExecuting uint64
	IdleHalted    uint64

	Instructions uint64

	// Retired instructions by kind. MemoryInstructions also counts atomics.
	Loads              uint64
	Stores             uint64
	MemoryInstructions uint64
	Branches           uint64

	Traps       uint64
	Faults      uint64
	Breakpoints uint64

	Harts    []HartStats
	Memory   memctrl.Statistics
	Prefetch prefetch.Statistics
}

// CPI returns the cycles per retired instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Stats returns a snapshot of the statistics.
func (c *Core) Stats() Stats {
	s := c.stats
	s.Harts = make([]HartStats, len(c.harts))
	for i, h := range c.harts {
		s.Harts[i] = h.stats
	}
	s.Memory = c.mem.Stats()
	s.Prefetch = c.prefetch.Stats()
	return s
}
