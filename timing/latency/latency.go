// Package latency provides the instruction cost model of the core.
//
// Every decoded instruction belongs to an insts.Class; the table maps each
// class to the number of cycles the issuing hart stays busy. Latencies are
// configured via TimingConfig.
package latency

import (
	"github.com/sarchlab/rvsim/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given instruction.
// For variable-latency operations, returns the typical latency.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	if inst.Class == insts.ClassDiv {
		return (t.config.DivideLatencyMin + t.config.DivideLatencyMax) / 2
	}

	return t.classLatency(inst.Class)
}

func (t *Table) classLatency(class insts.Class) uint64 {
	var cost uint64

	switch class {
	case insts.ClassALU:
		cost = t.config.ALULatency
	case insts.ClassBranch, insts.ClassJump:
		cost = t.config.BranchLatency
	case insts.ClassLoad:
		cost = t.config.LoadLatency
	case insts.ClassStore:
		cost = t.config.StoreLatency
	case insts.ClassAtomic:
		cost = t.config.AtomicLatency
	case insts.ClassMul:
		cost = t.config.MultiplyLatency
	case insts.ClassDiv:
		cost = t.config.DivideLatencyMin
	case insts.ClassFP:
		cost = t.config.FPLatency
	case insts.ClassFDiv:
		cost = t.config.FDivLatency
	case insts.ClassCSR:
		cost = t.config.CSRLatency
	case insts.ClassFence:
		cost = t.config.FenceLatency
	case insts.ClassSystem:
		cost = t.config.SyscallLatency
	}

	if cost == 0 {
		return 1
	}
	return cost
}

// GetMinLatency returns the minimum execution latency for variable-latency operations.
func (t *Table) GetMinLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}
	if inst.Class == insts.ClassDiv {
		return t.classLatency(insts.ClassDiv)
	}
	return t.GetLatency(inst)
}

// GetMaxLatency returns the maximum execution latency for variable-latency operations.
func (t *Table) GetMaxLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}
	if inst.Class == insts.ClassDiv && t.config.DivideLatencyMax > 0 {
		return t.config.DivideLatencyMax
	}
	return t.GetLatency(inst)
}

// TakenPenalty returns the extra cycles paid when an instruction redirects
// the PC away from its fall-through address.
func (t *Table) TakenPenalty(inst *insts.Instruction) uint64 {
	if !t.IsBranchOp(inst) {
		return 0
	}
	return t.config.BranchMispredictPenalty
}

// IsMemoryOp returns true if the instruction accesses memory.
func (t *Table) IsMemoryOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	return inst.Class.IsMemory()
}

// IsLoadOp returns true if the instruction is a load operation.
func (t *Table) IsLoadOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	return inst.Class == insts.ClassLoad
}

// IsStoreOp returns true if the instruction is a store operation.
func (t *Table) IsStoreOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	return inst.Class == insts.ClassStore
}

// IsBranchOp returns true if the instruction is a branch or jump.
func (t *Table) IsBranchOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	return inst.Class == insts.ClassBranch || inst.Class == insts.ClassJump
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
