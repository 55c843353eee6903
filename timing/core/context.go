package core

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
	"github.com/sarchlab/rvsim/loader"
)

// ProcCtx is the saved state of a logical thread that is not running on a
// hart.
type ProcCtx struct {
	PID  int
	Regs *emu.RegFile
	// Outstanding counts the memory requests that were in flight when the
	// context was saved.
	Outstanding int
}

// NewProcCtx creates the context of a new logical thread of prog. The PC
// starts at entrySymbol, or at the ELF entry point if entrySymbol is
// empty. The stack and global pointers are set from the program.
func NewProcCtx(pid int, f *feature.Features, prog *loader.Program, entrySymbol string) (*ProcCtx, error) {
	entry := prog.EntryPoint
	if entrySymbol != "" {
		addr, ok := prog.Symbol(entrySymbol)
		if !ok {
			return nil, fmt.Errorf("process %d: symbol %q not found", pid, entrySymbol)
		}
		entry = addr
	}

	regs := emu.NewRegFile(f, 0, nil)
	regs.SetPC(entry)
	regs.WriteX(emu.RegSP, prog.InitialSP)
	if gp, ok := prog.Symbol("__global_pointer$"); ok {
		regs.WriteX(emu.RegGP, gp)
	}

	return &ProcCtx{PID: pid, Regs: regs}, nil
}

// SaveCtx snapshots the architectural state of the hart.
func (c *Core) SaveCtx(hart int) (*ProcCtx, error) {
	h, err := c.lookup(hart)
	if err != nil {
		return nil, err
	}

	return &ProcCtx{
		PID:         h.pid,
		Regs:        h.regs.Clone(),
		Outstanding: c.lsq.PendingForHart(hart),
	}, nil
}

// LoadCtx installs ctx on the hart. The hart must have nothing in flight
// and the context must not have been saved with requests in flight.
func (c *Core) LoadCtx(hart int, ctx *ProcCtx) error {
	h, err := c.lookup(hart)
	if err != nil {
		return err
	}

	if h.busy > 0 || h.inflight != nil || c.lsq.PendingForHart(hart) > 0 {
		return fmt.Errorf("load context on hart %d: %w", hart, ErrHartBusy)
	}
	if ctx.Outstanding > 0 {
		return fmt.Errorf("load context of process %d: %d requests were in flight at save: %w",
			ctx.PID, ctx.Outstanding, ErrHartBusy)
	}

	h.regs.CopyFrom(ctx.Regs)
	*h.regs.Scoreboard(emu.RegGPR) = 0
	*h.regs.Scoreboard(emu.RegFloat) = 0
	h.pid = ctx.PID
	h.pending = nil
	h.stall = StallNone
	h.exited = false
	h.exitCode = 0
	c.mem.DropReservation(hart)

	c.logger.Debug("context loaded", slog.Int("hart", hart), slog.Int("pid", ctx.PID))
	return nil
}

// PID returns the process the hart is running.
func (c *Core) PID(hart int) int {
	h, err := c.lookup(hart)
	if err != nil {
		return -1
	}
	return h.pid
}
