// Package ext provides the RISC-V extensions: their instruction entries and
// semantics, and the registry that assembles a core's instruction table
// from a feature configuration.
package ext

import (
	"fmt"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
	"github.com/sarchlab/rvsim/insts"
)

// extension is a static insts.Extension.
type extension struct {
	name    string
	enabled func(f *feature.Features) bool
	entries []insts.Entry
}

func (e *extension) Name() string                     { return e.name }
func (e *extension) Enabled(f *feature.Features) bool { return e.enabled(f) }
func (e *extension) Table() []insts.Entry             { return e.entries }

func newExtension(name string, enabled func(f *feature.Features) bool, entries ...[]insts.Entry) *extension {
	ext := &extension{name: name, enabled: enabled}
	for _, group := range entries {
		ext.entries = append(ext.entries, group...)
	}
	return ext
}

func has(exts ...feature.Ext) func(f *feature.Features) bool {
	return func(f *feature.Features) bool {
		for _, e := range exts {
			if !f.Has(e) {
				return false
			}
		}
		return true
	}
}

func rv32(exts ...feature.Ext) func(f *feature.Features) bool {
	h := has(exts...)
	return func(f *feature.Features) bool { return f.IsRV32() && h(f) }
}

func rv64(exts ...feature.Ext) func(f *feature.Features) bool {
	h := has(exts...)
	return func(f *feature.Features) bool { return f.IsRV64() && h(f) }
}

// Registry returns every extension known to the simulator in merge order.
func Registry() []insts.Extension {
	return []insts.Extension{
		newExtension("I", has(feature.ExtI), baseEntries()),
		newExtension("I32", rv32(feature.ExtI), rv32ShiftEntries()),
		newExtension("I64", rv64(feature.ExtI), rv64Entries()),
		newExtension("M", has(feature.ExtM), mEntries()),
		newExtension("M64", rv64(feature.ExtM), m64Entries()),
		newExtension("A", has(feature.ExtA), aEntries(4, 0x2)),
		newExtension("A64", rv64(feature.ExtA), aEntries(8, 0x3)),
		newExtension("F", has(feature.ExtF), fpEntries(true)),
		newExtension("F64", rv64(feature.ExtF), fp64Entries(true)),
		newExtension("D", has(feature.ExtD), fpEntries(false), dEntries()),
		newExtension("D64", rv64(feature.ExtD), fp64Entries(false)),
		newExtension("Zicsr", has(feature.ExtZicsr), csrEntries()),
		newExtension("Zifencei", has(feature.ExtZifencei), fenceIEntries()),
		newExtension("C", has(feature.ExtC), cEntries()),
		newExtension("C32", rv32(feature.ExtC), c32Entries()),
		newExtension("C64", rv64(feature.ExtC), c64Entries()),
		newExtension("CF32", rv32(feature.ExtC, feature.ExtF), cf32Entries()),
		newExtension("CD", has(feature.ExtC, feature.ExtD), cdEntries()),
	}
}

// LoadInstructionTable builds the instruction table for f by merging the
// base integer table with every enabled extension.
func LoadInstructionTable(f *feature.Features) (*insts.Table, error) {
	table := insts.NewTable()
	for _, e := range Registry() {
		if _, err := table.EnableExt(e, f); err != nil {
			return nil, fmt.Errorf("load instruction table for %s: %w", f.Machine(), err)
		}
	}
	return table, nil
}

// advance moves the hart past inst.
func advance(env *insts.Env, inst *insts.Instruction) {
	env.Regs.AdvancePC(inst.Size)
}

// jumpTo redirects the hart to target, raising a misaligned fetch
// exception when target is not an instruction boundary.
func jumpTo(env *insts.Env, target uint64) error {
	align := uint64(0x3)
	if env.Features.Has(feature.ExtC) {
		align = 0x1
	}
	if target&align != 0 {
		return emu.NewException(emu.CauseMisalignedFetch, target)
	}
	env.Regs.SetPC(target)
	return nil
}

func sext32(v uint64) uint64 {
	return uint64(int64(int32(uint32(v))))
}

func shamtMask(env *insts.Env) uint64 {
	return uint64(env.Regs.XLEN() - 1)
}
