package insts

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvsim/feature"
)

// ErrDuplicateEncoding is returned when two entries fold to the same
// encoding key.
var ErrDuplicateEncoding = errors.New("duplicate instruction encoding")

// Table is the instruction table of one core. It is built at configuration
// time and read-only afterwards.
type Table struct {
	entries []Entry
	keys    map[uint64]int
	exts    []string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{keys: make(map[uint64]int)}
}

// EnableExt merges the entries of ext if f enables it. It reports whether
// the extension was merged. On error the table is left unchanged.
func (t *Table) EnableExt(ext Extension, f *feature.Features) (bool, error) {
	if !ext.Enabled(f) {
		return false, nil
	}
	if err := t.Add(ext.Table()...); err != nil {
		return false, fmt.Errorf("enable %s: %w", ext.Name(), err)
	}
	t.exts = append(t.exts, ext.Name())
	return true, nil
}

// Add merges entries into the table. Either all entries are added or,
// when any key collides, none are.
func (t *Table) Add(entries ...Entry) error {
	pending := make(map[uint64]int, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.Exec == nil {
			return fmt.Errorf("%s: missing semantics", e.Mnemonic)
		}
		k := e.Key()
		if idx, ok := t.keys[k]; ok {
			return fmt.Errorf("%w: %s collides with %s (key 0x%X)",
				ErrDuplicateEncoding, e.Mnemonic, t.entries[idx].Mnemonic, k)
		}
		if j, ok := pending[k]; ok {
			return fmt.Errorf("%w: %s collides with %s (key 0x%X)",
				ErrDuplicateEncoding, e.Mnemonic, entries[j].Mnemonic, k)
		}
		pending[k] = i
	}

	for i := range entries {
		t.keys[entries[i].Key()] = len(t.entries)
		t.entries = append(t.entries, entries[i])
	}
	return nil
}

// Lookup returns the entry registered under key and its index.
func (t *Table) Lookup(key uint64) (*Entry, int, bool) {
	idx, ok := t.keys[key]
	if !ok {
		return nil, 0, false
	}
	return &t.entries[idx], idx, true
}

// Entry returns the entry at idx.
func (t *Table) Entry(idx int) (*Entry, error) {
	if idx < 0 || idx >= len(t.entries) {
		return nil, fmt.Errorf("instruction table index %d out of range [0, %d)", idx, len(t.entries))
	}
	return &t.entries[idx], nil
}

// Find returns the first entry with the given mnemonic.
func (t *Table) Find(mnemonic string) (*Entry, int, bool) {
	for i := range t.entries {
		if t.entries[i].Mnemonic == mnemonic {
			return &t.entries[i], i, true
		}
	}
	return nil, 0, false
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Extensions returns the names of the merged extensions in merge order.
func (t *Table) Extensions() []string {
	return append([]string(nil), t.exts...)
}
