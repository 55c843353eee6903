package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// DefaultMemoryCapacity covers the user address space of both RV32 and
// Sv48-sized RV64 programs. Storage units are allocated lazily.
const DefaultMemoryCapacity uint64 = 1 << 48

// Memory is the functional backing store shared by all harts of a core.
// Timing is modeled separately by the memory controller.
type Memory struct {
	storage  *mem.Storage
	capacity uint64
}

// NewMemory creates a memory with DefaultMemoryCapacity bytes.
func NewMemory() *Memory {
	return NewMemoryWithCapacity(DefaultMemoryCapacity)
}

// NewMemoryWithCapacity creates a memory with the given capacity in bytes.
func NewMemoryWithCapacity(capacity uint64) *Memory {
	return &Memory{storage: mem.NewStorage(capacity), capacity: capacity}
}

// Capacity returns the size of the address space in bytes.
func (m *Memory) Capacity() uint64 {
	return m.capacity
}

// Contains reports whether [addr, addr+size) lies inside the memory.
func (m *Memory) Contains(addr uint64, size uint64) bool {
	return addr < m.capacity && size <= m.capacity-addr
}

// Storage exposes the underlying akita storage.
func (m *Memory) Storage() *mem.Storage {
	return m.storage
}

// ReadBytes reads size bytes starting at addr.
func (m *Memory) ReadBytes(addr uint64, size uint64) ([]byte, error) {
	if !m.Contains(addr, size) {
		return nil, fmt.Errorf("read %d bytes at 0x%X: out of range", size, addr)
	}
	data, err := m.storage.Read(addr, size)
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at 0x%X: %w", size, addr, err)
	}
	return data, nil
}

// WriteBytes writes data starting at addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) error {
	if !m.Contains(addr, uint64(len(data))) {
		return fmt.Errorf("write %d bytes at 0x%X: out of range", len(data), addr)
	}
	if err := m.storage.Write(addr, data); err != nil {
		return fmt.Errorf("write %d bytes at 0x%X: %w", len(data), addr, err)
	}
	return nil
}

// ReadVal reads a little-endian value of size 1, 2, 4 or 8 bytes.
func (m *Memory) ReadVal(addr uint64, size int) (uint64, error) {
	data, err := m.ReadBytes(addr, uint64(size))
	if err != nil {
		return 0, err
	}

	switch size {
	case 1:
		return uint64(data[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(data)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(data)), nil
	case 8:
		return binary.LittleEndian.Uint64(data), nil
	default:
		return 0, fmt.Errorf("unsupported access size %d", size)
	}
}

// WriteVal writes the low size bytes of value in little-endian order.
func (m *Memory) WriteVal(addr uint64, size int, value uint64) error {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, value)

	switch size {
	case 1, 2, 4, 8:
		return m.WriteBytes(addr, data[:size])
	default:
		return fmt.Errorf("unsupported access size %d", size)
	}
}

// LoadProgram copies a program image to addr.
func (m *Memory) LoadProgram(addr uint64, program []byte) error {
	return m.WriteBytes(addr, program)
}

// The fixed-size helpers below are meant for program setup and tests;
// they panic on out-of-range addresses.

// Read16 reads a 16-bit value.
func (m *Memory) Read16(addr uint64) uint16 { return uint16(m.mustRead(addr, 2)) }

// Read32 reads a 32-bit value.
func (m *Memory) Read32(addr uint64) uint32 { return uint32(m.mustRead(addr, 4)) }

// Read64 reads a 64-bit value.
func (m *Memory) Read64(addr uint64) uint64 { return m.mustRead(addr, 8) }

// Write16 writes a 16-bit value.
func (m *Memory) Write16(addr uint64, v uint16) { m.mustWrite(addr, 2, uint64(v)) }

// Write32 writes a 32-bit value.
func (m *Memory) Write32(addr uint64, v uint32) { m.mustWrite(addr, 4, uint64(v)) }

// Write64 writes a 64-bit value.
func (m *Memory) Write64(addr uint64, v uint64) { m.mustWrite(addr, 8, v) }

func (m *Memory) mustRead(addr uint64, size int) uint64 {
	v, err := m.ReadVal(addr, size)
	if err != nil {
		panic(err)
	}
	return v
}

func (m *Memory) mustWrite(addr uint64, size int, v uint64) {
	if err := m.WriteVal(addr, size, v); err != nil {
		panic(err)
	}
}
