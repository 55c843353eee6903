package core

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// Hook positions invoked by the core.
var (
	HookPosRegWrite = &sim.HookPos{Name: "RegWrite"}
	HookPosPCWrite  = &sim.HookPos{Name: "PCWrite"}
	HookPosRetire   = &sim.HookPos{Name: "Retire"}
	HookPosTrap     = &sim.HookPos{Name: "Trap"}
)

// RegWrite is the item of a HookPosRegWrite or HookPosPCWrite hook.
type RegWrite struct {
	Hart  int
	Class emu.RegClass
	Index uint16
	Value uint64
}

// Retirement is the item of a HookPosRetire hook.
type Retirement struct {
	Hart  int
	PC    uint64
	Inst  *insts.Instruction
	Cycle uint64
}

// TrapEvent is the item of a HookPosTrap hook.
type TrapEvent struct {
	Hart  int
	PC    uint64
	Cause emu.Cause
	Tval  uint64
}

func (c *Core) hook(pos *sim.HookPos, item interface{}) {
	if c.NumHooks() == 0 {
		return
	}
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   item,
	})
}

// TraceRegWrite implements emu.Tracer.
func (c *Core) TraceRegWrite(hart int, class emu.RegClass, idx uint16, value uint64) {
	c.hook(HookPosRegWrite, RegWrite{Hart: hart, Class: class, Index: idx, Value: value})
}

// TracePC implements emu.Tracer.
func (c *Core) TracePC(hart int, pc uint64) {
	c.hook(HookPosPCWrite, RegWrite{Hart: hart, Index: RegIndexPC, Value: pc})
}
