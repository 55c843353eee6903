// Package core provides the cycle-level multi-hart RISC-V core.
//
// Each cycle the core completes outstanding memory reads, retires the
// instructions whose cost has elapsed, picks one ready hart round-robin and
// fetches, decodes, hazard-checks and dispatches one instruction for it.
// The model is single-issue and in-order without bypassing: a dispatched
// instruction marks its destination on the scoreboard, and dependent
// instructions wait until it retires.
package core

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/latency"
	"github.com/sarchlab/rvsim/timing/memctrl"
	"github.com/sarchlab/rvsim/timing/prefetch"
)

// Core is a multi-hart RISC-V core.
type Core struct {
	*sim.TickingComponent

	features *feature.Features
	table    *insts.Table
	decoder  *insts.Decoder
	latency  *latency.Table
	memory   *emu.Memory
	lsq      *emu.LoadStoreQueue
	mem      *memctrl.Controller
	prefetch *prefetch.Prefetcher
	syscall  emu.SyscallHandler
	logger   *slog.Logger

	harts []*hart
	next  int
	cycle uint64

	maxCycles  uint64
	haltOnTrap bool

	// err holds an internal failure found while selecting a hart.
	err error

	stats Stats
}

// InternalError reports a simulator bug detected while running a hart.
type InternalError struct {
	Hart int
	PC   uint64
	Err  error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error on hart %d at pc 0x%X: %v", e.Hart, e.PC, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Features returns the feature configuration of the core.
func (c *Core) Features() *feature.Features {
	return c.features
}

// Memory returns the functional memory.
func (c *Core) Memory() *emu.Memory {
	return c.memory
}

// MemoryController returns the memory service.
func (c *Core) MemoryController() *memctrl.Controller {
	return c.mem
}

// Prefetcher returns the instruction prefetcher.
func (c *Core) Prefetcher() *prefetch.Prefetcher {
	return c.prefetch
}

// Table returns the instruction table.
func (c *Core) Table() *insts.Table {
	return c.table
}

// NumHarts returns the number of harts.
func (c *Core) NumHarts() int {
	return len(c.harts)
}

// Cycle returns the number of cycles simulated.
func (c *Core) Cycle() uint64 {
	return c.cycle
}

// Tick runs one cycle. It returns false once no hart has work left or the
// cycle limit is reached. An internal consistency failure panics with an
// *InternalError.
func (c *Core) Tick() bool {
	if c.maxCycles > 0 && c.cycle >= c.maxCycles {
		return false
	}

	if err := c.Step(); err != nil {
		panic(err)
	}

	return c.HasWork()
}

// Step runs one cycle.
func (c *Core) Step() error {
	c.cycle++
	c.stats.Cycles++

	c.mem.Tick()
	c.retire()

	tid := c.GetThreadID()
	if c.err != nil {
		err := c.err
		c.err = nil
		return err
	}
	if tid < 0 {
		c.countIdle(c.idleCause())
		return nil
	}

	return c.issue(c.harts[tid])
}

// Run steps the core until no work is left or maxCycles cycles ran; zero
// means no limit. It returns the number of cycles run.
func (c *Core) Run(maxCycles uint64) (uint64, error) {
	start := c.cycle
	for c.HasWork() {
		if maxCycles > 0 && c.cycle-start >= maxCycles {
			break
		}
		if err := c.Step(); err != nil {
			return c.cycle - start, err
		}
	}
	return c.cycle - start, nil
}

// HasWork reports whether any hart can still make progress or any memory
// request is outstanding.
func (c *Core) HasWork() bool {
	if c.mem.Pending() > 0 {
		return true
	}
	for _, h := range c.harts {
		if h.active() || h.busy > 0 {
			return true
		}
	}
	return false
}

// GetThreadID selects the next hart to dispatch, round-robin over the
// harts that are not halted, not executing a multi-cycle instruction and
// not stalled on a fetch or a hazard. It returns -1 if no hart is ready.
func (c *Core) GetThreadID() int {
	n := len(c.harts)
	for i := 0; i < n; i++ {
		tid := (c.next + i) % n
		if c.ready(c.harts[tid]) {
			c.next = (tid + 1) % n
			return tid
		}
	}
	return -1
}

func (c *Core) ready(h *hart) bool {
	if !h.active() || h.busy > 0 {
		return false
	}

	switch h.stall {
	case StallFetch:
		avail, err := c.prefetch.IsAvail(h.regs.PC())
		if err != nil && c.err == nil {
			c.err = &InternalError{Hart: h.id, PC: h.regs.PC(), Err: err}
		}
		return avail
	case StallHazard:
		return c.DependencyCheck(h.id, h.pending)
	default:
		return true
	}
}

func (c *Core) idleCause() StallCause {
	anyActive, anyBusy, anyFetch := false, false, false
	for _, h := range c.harts {
		if h.busy > 0 {
			anyBusy = true
		}
		if h.active() {
			anyActive = true
			if h.stall == StallFetch {
				anyFetch = true
			}
		}
	}

	switch {
	case anyBusy:
		return stallExecuting
	case !anyActive:
		return stallHalted
	case anyFetch:
		return StallFetch
	default:
		return StallHazard
	}
}

// DependencyCheck reports whether inst may dispatch on the hart: none of
// its register operands has a result pending. System and fence
// instructions also wait for every pending result of the hart.
func (c *Core) DependencyCheck(hart int, inst *insts.Instruction) bool {
	regs := c.harts[hart].regs

	if inst.Class == insts.ClassSystem || inst.Class == insts.ClassFence {
		if regs.Scoreboard(emu.RegGPR).Any() || regs.Scoreboard(emu.RegFloat).Any() {
			return false
		}
	}

	for _, op := range inst.Operands() {
		if op.Class == emu.RegGPR && op.Index == 0 {
			continue
		}
		if regs.Scoreboard(op.Class).Test(op.Index) {
			return false
		}
	}
	return true
}

// DependencySet marks the destination of inst as pending.
func (c *Core) DependencySet(hart int, inst *insts.Instruction) {
	c.setDest(hart, inst, true)
}

// DependencyClear marks the destination of inst as available.
func (c *Core) DependencyClear(hart int, inst *insts.Instruction) {
	c.setDest(hart, inst, false)
}

func (c *Core) setDest(hart int, inst *insts.Instruction, pending bool) {
	sb := c.harts[hart].regs.Scoreboard(inst.RdClass)
	if sb == nil || (inst.RdClass == emu.RegGPR && inst.Rd == 0) {
		return
	}
	if pending {
		sb.Set(inst.Rd)
	} else {
		sb.Clear(inst.Rd)
	}
}

// retire counts down the cost of every executing instruction and retires
// those that are done. Deferred instructions keep their destination
// pending until their memory read completes.
func (c *Core) retire() {
	for _, h := range c.harts {
		if h.busy == 0 {
			continue
		}
		h.busy--
		if h.busy > 0 || h.inflight == nil {
			continue
		}

		inst := h.inflight
		h.inflight = nil
		if !inst.Deferred {
			c.DependencyClear(h.id, inst)
		}

		h.regs.Retire()
		h.stats.Instructions++
		c.stats.Instructions++
		c.countClass(inst)
		c.hook(HookPosRetire, Retirement{Hart: h.id, PC: h.issuePC, Inst: inst, Cycle: c.cycle})
	}
}

func (c *Core) issue(h *hart) error {
	inst := h.pending
	if inst == nil {
		pc := h.regs.PC()
		if c.hitBreakpoint(h, pc) {
			c.countIdle(stallHalted)
			return nil
		}

		var fetched bool
		var err error
		inst, fetched, err = c.decoder.DecodeInst(pc, c.prefetch)
		if err != nil {
			return c.raise(h, err)
		}
		if !fetched {
			h.stall = StallFetch
			h.stats.FetchStalls++
			c.countIdle(StallFetch)
			return nil
		}
		inst.Cost = uint32(c.cost(inst))
	}

	if !c.DependencyCheck(h.id, inst) {
		h.pending = inst
		h.stall = StallHazard
		h.stats.HazardStalls++
		c.countIdle(StallHazard)
		return nil
	}

	h.pending = nil
	h.stall = StallNone
	h.skipBreak = false

	if h.fault != nil {
		f := h.fault
		h.fault = nil
		h.stats.Faults++
		c.stats.Faults++
		c.logger.Debug("fault delivered",
			slog.Int("hart", h.id), slog.String("kind", f.kind.String()), slog.Int("width", f.width))
		return c.raise(h, f.exception(inst))
	}

	return c.dispatch(h, inst)
}

// cost returns the execution cost of inst. Variable-latency instructions
// draw theirs from the configured range.
func (c *Core) cost(inst *insts.Instruction) uint64 {
	lo, hi := c.latency.GetMinLatency(inst), c.latency.GetMaxLatency(inst)
	if hi > lo {
		return c.mem.RandCost(lo, hi)
	}
	return lo
}

func (c *Core) dispatch(h *hart, inst *insts.Instruction) error {
	entry, err := c.table.Entry(inst.Entry)
	if err != nil {
		return &InternalError{Hart: h.id, PC: h.regs.PC(), Err: err}
	}

	c.DependencySet(h.id, inst)

	pc := h.regs.PC()
	if err := entry.Exec(h.env, inst); err != nil {
		c.DependencyClear(h.id, inst)
		return c.raise(h, err)
	}

	cost := uint64(inst.Cost)
	if h.regs.PC() != pc+uint64(inst.Size) {
		cost += c.latency.TakenPenalty(inst)
	}

	h.inflight = inst
	h.issuePC = pc
	h.busy = cost
	c.stats.BusyCycles++
	c.endStep(h)
	return nil
}

// raise turns err into a trap if it is an architectural exception and
// into an *InternalError otherwise.
func (c *Core) raise(h *hart, err error) error {
	var exc *emu.Exception
	if !errors.As(err, &exc) {
		return &InternalError{Hart: h.id, PC: h.regs.PC(), Err: err}
	}

	h.pending = nil
	h.stall = StallNone
	c.trap(h, exc)
	c.stats.BusyCycles++
	c.endStep(h)
	return nil
}

func (c *Core) trap(h *hart, exc *emu.Exception) {
	pc := h.regs.PC()
	h.regs.Trap(exc)
	c.mem.DropReservation(h.id)

	h.stats.Traps++
	c.stats.Traps++

	c.logger.Debug("trap",
		slog.Int("hart", h.id),
		slog.String("pc", fmt.Sprintf("0x%X", pc)),
		slog.String("cause", exc.Cause.String()),
		slog.String("tval", fmt.Sprintf("0x%X", exc.Tval)))
	c.hook(HookPosTrap, TrapEvent{Hart: h.id, PC: pc, Cause: exc.Cause, Tval: exc.Tval})

	if c.haltOnTrap && h.regs.ReadCSR(emu.CSRStvec) == 0 {
		h.exited = true
		h.exitCode = -1
		c.logger.Info("unhandled trap, hart stopped",
			slog.Int("hart", h.id), slog.String("cause", exc.Cause.String()))
	}
}

func (c *Core) countClass(inst *insts.Instruction) {
	switch {
	case c.latency.IsLoadOp(inst):
		c.stats.Loads++
	case c.latency.IsStoreOp(inst):
		c.stats.Stores++
	}
	if c.latency.IsMemoryOp(inst) {
		c.stats.MemoryInstructions++
	}
	if c.latency.IsBranchOp(inst) {
		c.stats.Branches++
	}
}

// endStep re-halts a hart that was single-stepped.
func (c *Core) endStep(h *hart) {
	if h.singleStep {
		h.singleStep = false
		h.halted = true
	}
}

func (c *Core) countIdle(cause StallCause) {
	c.stats.IdleCycles++
	switch cause {
	case StallFetch:
		c.stats.IdleFetch++
	case StallHazard:
		c.stats.IdleHazard++
	case stallExecuting:
		c.stats.IdleExecuting++
	case stallHalted:
		c.stats.IdleHalted++
	}
}

// Ecall implements insts.System. With a syscall handler installed the
// call is served by the handler; otherwise it traps as an environment
// call from U-mode.
func (c *Core) Ecall(hart int) error {
	if c.syscall == nil {
		return emu.NewException(emu.CauseEcallU, 0)
	}

	h := c.harts[hart]
	result := c.syscall.Handle(h.regs)
	if result.Exited {
		h.exited = true
		h.exitCode = result.ExitCode
		c.logger.Debug("hart exited", slog.Int("hart", hart), slog.Int64("code", result.ExitCode))
	}
	return nil
}

// FenceI implements insts.System by dropping every prefetch stream.
func (c *Core) FenceI(hart int) {
	c.prefetch.Flush()
}
