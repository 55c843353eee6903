// Package loader provides ELF binary loading for RISC-V executables.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/rvsim/emu"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Default stack tops for RV64 and RV32 Linux user space.
const (
	DefaultStackTop   = 0x7ffffffff000
	DefaultStackTop32 = 0x7ffff000
)

// DefaultStackSize is the default stack size (8MB).
const DefaultStackSize = 8 * 1024 * 1024

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded ELF program ready for execution.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint64
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
	// InitialSP is the initial stack pointer value.
	InitialSP uint64
	// XLEN is 32 or 64, from the ELF class.
	XLEN int
	// Symbols maps defined symbol names to their values.
	Symbols map[string]uint64
}

// Load parses a RISC-V ELF32 or ELF64 binary and returns a Program ready
// for loading into memory.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		Symbols:    make(map[string]uint64),
	}

	switch f.Class {
	case elf.ELFCLASS64:
		prog.XLEN = 64
		prog.InitialSP = DefaultStackTop
	case elf.ELFCLASS32:
		prog.XLEN = 32
		prog.InitialSP = DefaultStackTop32
	default:
		return nil, fmt.Errorf("unsupported ELF class %v", f.Class)
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		seg, err := loadSegment(phdr)
		if err != nil {
			return nil, err
		}
		prog.Segments = append(prog.Segments, seg)
	}

	if err := prog.readSymbols(f); err != nil {
		return nil, err
	}

	return prog, nil
}

func loadSegment(phdr *elf.Prog) (Segment, error) {
	data := make([]byte, phdr.Filesz)
	if phdr.Filesz > 0 {
		n, err := phdr.ReadAt(data, 0)
		if err != nil && err != io.EOF {
			return Segment{}, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
		}
		if uint64(n) != phdr.Filesz {
			return Segment{}, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
				phdr.Vaddr, n, phdr.Filesz)
		}
	}

	var flags SegmentFlags
	if phdr.Flags&elf.PF_X != 0 {
		flags |= SegmentFlagExecute
	}
	if phdr.Flags&elf.PF_W != 0 {
		flags |= SegmentFlagWrite
	}
	if phdr.Flags&elf.PF_R != 0 {
		flags |= SegmentFlagRead
	}

	return Segment{
		VirtAddr: phdr.Vaddr,
		Data:     data,
		MemSize:  phdr.Memsz,
		Flags:    flags,
	}, nil
}

func (p *Program) readSymbols(f *elf.File) error {
	syms, err := f.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read symbols: %w", err)
	}

	for _, s := range syms {
		if s.Name == "" || s.Section == elf.SHN_UNDEF {
			continue
		}
		p.Symbols[s.Name] = s.Value
	}
	return nil
}

// Symbol returns the address of a defined symbol.
func (p *Program) Symbol(name string) (uint64, bool) {
	addr, ok := p.Symbols[name]
	return addr, ok
}

// Break returns the initial program break: the end of the highest
// segment, rounded up to a page.
func (p *Program) Break() uint64 {
	var end uint64
	for _, seg := range p.Segments {
		if e := seg.VirtAddr + seg.MemSize; e > end {
			end = e
		}
	}
	return (end + 0xFFF) &^ 0xFFF
}

// LoadInto copies every segment into memory and zeroes the BSS part.
func (p *Program) LoadInto(memory *emu.Memory) error {
	for _, seg := range p.Segments {
		if len(seg.Data) > 0 {
			if err := memory.WriteBytes(seg.VirtAddr, seg.Data); err != nil {
				return fmt.Errorf("load segment at 0x%x: %w", seg.VirtAddr, err)
			}
		}

		if seg.MemSize > uint64(len(seg.Data)) {
			bss := make([]byte, seg.MemSize-uint64(len(seg.Data)))
			if err := memory.WriteBytes(seg.VirtAddr+uint64(len(seg.Data)), bss); err != nil {
				return fmt.Errorf("zero bss at 0x%x: %w", seg.VirtAddr, err)
			}
		}
	}
	return nil
}
