package core

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/rvsim/emu"
)

// Register indexes used by ReadReg and WriteReg. Indexes 0 to 31 name the
// integer registers and 32 to 63 the raw bits of the floating-point
// registers.
const (
	RegIndexF0 = 32
	RegIndexPC = 64
)

// Errors returned by the debug interface.
var (
	ErrBadHart     = errors.New("core: no such hart")
	ErrBadRegister = errors.New("core: no such register")
	ErrHartBusy    = errors.New("core: hart has work in flight")
)

func (c *Core) lookup(hart int) (*hart, error) {
	if hart < 0 || hart >= len(c.harts) {
		return nil, fmt.Errorf("%w: %d", ErrBadHart, hart)
	}
	return c.harts[hart], nil
}

// Halt stops the hart from dispatching. An instruction already executing
// still retires.
func (c *Core) Halt(hart int) error {
	h, err := c.lookup(hart)
	if err != nil {
		return err
	}
	h.halted = true
	h.singleStep = false
	return nil
}

// Resume lets a halted hart dispatch again. A breakpoint at the current PC
// does not fire again until the hart has moved on.
func (c *Core) Resume(hart int) error {
	h, err := c.lookup(hart)
	if err != nil {
		return err
	}
	if h.halted {
		h.skipBreak = true
	}
	h.halted = false
	return nil
}

// SingleStep lets a halted hart dispatch exactly one instruction and halt
// again.
func (c *Core) SingleStep(hart int) error {
	h, err := c.lookup(hart)
	if err != nil {
		return err
	}
	if h.halted {
		h.skipBreak = true
	}
	h.halted = false
	h.singleStep = true
	return nil
}

// SetBreakpoint halts the hart whenever it is about to fetch at pc.
func (c *Core) SetBreakpoint(hart int, pc uint64) error {
	h, err := c.lookup(hart)
	if err != nil {
		return err
	}
	h.breakpoints[pc] = struct{}{}
	return nil
}

// ClearBreakpoint removes a breakpoint. Clearing a breakpoint that is not
// set is not an error.
func (c *Core) ClearBreakpoint(hart int, pc uint64) error {
	h, err := c.lookup(hart)
	if err != nil {
		return err
	}
	delete(h.breakpoints, pc)
	return nil
}

// Breakpoints returns the number of breakpoints set on the hart.
func (c *Core) Breakpoints(hart int) int {
	h, err := c.lookup(hart)
	if err != nil {
		return 0
	}
	return len(h.breakpoints)
}

func (c *Core) hitBreakpoint(h *hart, pc uint64) bool {
	if _, ok := h.breakpoints[pc]; !ok || h.skipBreak {
		return false
	}

	h.halted = true
	h.singleStep = false
	c.stats.Breakpoints++
	c.logger.Debug("breakpoint",
		slog.Int("hart", h.id), slog.String("pc", fmt.Sprintf("0x%X", pc)))
	return true
}

// ReadReg reads a register of the hart by debug index.
func (c *Core) ReadReg(hart, idx int) (uint64, error) {
	h, err := c.lookup(hart)
	if err != nil {
		return 0, err
	}

	switch {
	case idx >= 0 && idx < RegIndexF0:
		return h.regs.ReadX(uint8(idx)), nil
	case idx >= RegIndexF0 && idx < RegIndexPC && h.regs.Features().FLEN() > 0:
		return h.regs.ReadFBits(uint8(idx - RegIndexF0)), nil
	case idx == RegIndexPC:
		return h.regs.PC(), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrBadRegister, idx)
	}
}

// WriteReg writes a register of the hart by debug index. Writing the PC
// discards an instruction waiting on a hazard.
func (c *Core) WriteReg(hart, idx int, value uint64) error {
	h, err := c.lookup(hart)
	if err != nil {
		return err
	}

	switch {
	case idx >= 0 && idx < RegIndexF0:
		h.regs.WriteX(uint8(idx), value)
	case idx >= RegIndexF0 && idx < RegIndexPC && h.regs.Features().FLEN() > 0:
		h.regs.WriteFBits(uint8(idx-RegIndexF0), value)
	case idx == RegIndexPC:
		h.regs.SetPC(value)
		h.pending = nil
		h.stall = StallNone
	default:
		return fmt.Errorf("%w: %d", ErrBadRegister, idx)
	}
	return nil
}

// InjectFault arms a hardware fault on the hart. It is delivered as a
// trap in place of the next instruction the hart dispatches.
func (c *Core) InjectFault(hart int, kind FaultKind, width int) error {
	h, err := c.lookup(hart)
	if err != nil {
		return err
	}
	h.fault = &fault{kind: kind, width: width}
	c.logger.Debug("fault armed",
		slog.Int("hart", hart), slog.String("kind", kind.String()), slog.Int("width", width))
	return nil
}

// State returns the scheduling state of the hart.
func (c *Core) State(hart int) HartState {
	h, err := c.lookup(hart)
	if err != nil {
		return HartExited
	}
	return h.state()
}

// RegFile returns the register file of the hart.
func (c *Core) RegFile(hart int) *emu.RegFile {
	h, err := c.lookup(hart)
	if err != nil {
		return nil
	}
	return h.regs
}

// ExitCode returns the exit code of the hart and whether it has exited.
func (c *Core) ExitCode(hart int) (int64, bool) {
	h, err := c.lookup(hart)
	if err != nil {
		return 0, false
	}
	return h.exitCode, h.exited
}
