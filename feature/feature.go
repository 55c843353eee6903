// Package feature describes the negotiated CPU configuration of a core:
// word width, enabled ISA extensions, hart count and memory cost bounds.
//
// Usage:
//
//	f, err := feature.Parse("RV64GC", feature.WithHarts(2))
//	if err != nil {
//		return err
//	}
//	if f.Has(feature.ExtD) { ... }
package feature

import (
	"errors"
	"fmt"
	"strings"
)

// Ext is a bit flag identifying one ISA extension.
type Ext uint32

// Supported ISA extensions.
const (
	ExtI Ext = 1 << iota
	ExtE
	ExtM
	ExtA
	ExtF
	ExtD
	ExtC
	ExtZicsr
	ExtZifencei
)

var extNames = []struct {
	ext  Ext
	name string
}{
	{ExtI, "I"},
	{ExtE, "E"},
	{ExtM, "M"},
	{ExtA, "A"},
	{ExtF, "F"},
	{ExtD, "D"},
	{ExtC, "C"},
	{ExtZicsr, "Zicsr"},
	{ExtZifencei, "Zifencei"},
}

// String returns the canonical name of a single extension flag.
func (e Ext) String() string {
	for _, n := range extNames {
		if n.ext == e {
			return n.name
		}
	}
	return fmt.Sprintf("Ext(%#x)", uint32(e))
}

// Configuration errors.
var (
	// ErrBadMachine is returned when the machine string has no RV32/RV64 prefix.
	ErrBadMachine = errors.New("unparseable machine string")
	// ErrUnknownExtension is returned for extension letters that are not modeled.
	ErrUnknownExtension = errors.New("unknown extension")
	// ErrUnsupportedCombination is returned when extensions conflict.
	ErrUnsupportedCombination = errors.New("unsupported extension combination")
)

// Features is the parsed configuration shared by every hart of a core.
// It is immutable once returned by Parse.
type Features struct {
	machine string
	xlen    int
	exts    Ext

	harts   int
	minCost uint64
	maxCost uint64
}

// Option configures Features at parse time.
type Option func(*Features)

// WithHarts sets the number of hardware threads.
func WithHarts(n int) Option {
	return func(f *Features) {
		f.harts = n
	}
}

// WithMemCost sets the minimum and maximum cost in cycles of one memory
// access, used when random memory cost is enabled.
func WithMemCost(min, max uint64) Option {
	return func(f *Features) {
		f.minCost = min
		f.maxCost = max
	}
}

// Parse parses a machine string such as "RV64IMAFDC", "rv32gc" or
// "RV64IMAFD_Zicsr_Zifencei". G expands to IMAFD_Zicsr_Zifencei.
func Parse(machine string, opts ...Option) (*Features, error) {
	f := &Features{
		machine: machine,
		harts:   1,
		minCost: 1,
		maxCost: 1,
	}

	for _, opt := range opts {
		opt(f)
	}

	upper := strings.ToUpper(machine)
	switch {
	case strings.HasPrefix(upper, "RV32"):
		f.xlen = 32
	case strings.HasPrefix(upper, "RV64"):
		f.xlen = 64
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadMachine, machine)
	}

	if err := f.parseExtensions(machine[4:]); err != nil {
		return nil, fmt.Errorf("machine %q: %w", machine, err)
	}

	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("machine %q: %w", machine, err)
	}

	return f, nil
}

// MustParse is like Parse but panics on error. It is intended for tests
// and static configurations.
func MustParse(machine string, opts ...Option) *Features {
	f, err := Parse(machine, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Features) parseExtensions(s string) error {
	parts := strings.Split(s, "_")

	single := parts[0]
	for _, r := range strings.ToUpper(single) {
		switch r {
		case 'I':
			f.exts |= ExtI
		case 'E':
			f.exts |= ExtE
		case 'M':
			f.exts |= ExtM
		case 'A':
			f.exts |= ExtA
		case 'F':
			f.exts |= ExtF | ExtZicsr
		case 'D':
			f.exts |= ExtD | ExtF | ExtZicsr
		case 'C':
			f.exts |= ExtC
		case 'G':
			f.exts |= ExtI | ExtM | ExtA | ExtF | ExtD | ExtZicsr | ExtZifencei
		default:
			return fmt.Errorf("%w: %q", ErrUnknownExtension, string(r))
		}
	}

	for _, p := range parts[1:] {
		switch strings.ToLower(p) {
		case "":
		case "zicsr":
			f.exts |= ExtZicsr
		case "zifencei":
			f.exts |= ExtZifencei
		default:
			return fmt.Errorf("%w: %q", ErrUnknownExtension, p)
		}
	}

	return nil
}

func (f *Features) validate() error {
	if f.exts&(ExtI|ExtE) == 0 {
		return fmt.Errorf("%w: base integer ISA (I or E) required", ErrUnsupportedCombination)
	}
	if f.exts&ExtE != 0 {
		return fmt.Errorf("%w: RV32E/RV64E register files are not modeled", ErrUnsupportedCombination)
	}
	if f.harts <= 0 {
		return fmt.Errorf("%w: hart count must be > 0", ErrUnsupportedCombination)
	}
	if f.minCost == 0 || f.minCost > f.maxCost {
		return fmt.Errorf("%w: memory cost range [%d,%d] is invalid",
			ErrUnsupportedCombination, f.minCost, f.maxCost)
	}
	return nil
}

// Machine returns the machine string Features was parsed from.
func (f *Features) Machine() string { return f.machine }

// XLEN returns the integer register width in bits (32 or 64).
func (f *Features) XLEN() int { return f.xlen }

// IsRV32 reports whether the core runs with 32-bit integer registers.
func (f *Features) IsRV32() bool { return f.xlen == 32 }

// IsRV64 reports whether the core runs with 64-bit integer registers.
func (f *Features) IsRV64() bool { return f.xlen == 64 }

// Has reports whether all the given extensions are enabled.
func (f *Features) Has(ext Ext) bool { return f.exts&ext == ext }

// Extensions returns the raw extension bit set.
func (f *Features) Extensions() Ext { return f.exts }

// FLEN returns the floating-point register width in bits, or 0 when no
// floating-point extension is enabled.
func (f *Features) FLEN() int {
	switch {
	case f.Has(ExtD):
		return 64
	case f.Has(ExtF):
		return 32
	default:
		return 0
	}
}

// Harts returns the number of hardware threads per core.
func (f *Features) Harts() int { return f.harts }

// MinCost returns the minimum cost of a memory access.
func (f *Features) MinCost() uint64 { return f.minCost }

// MaxCost returns the maximum cost of a memory access.
func (f *Features) MaxCost() uint64 { return f.maxCost }

// MISA returns the value of the misa CSR for this configuration.
func (f *Features) MISA() uint64 {
	var v uint64
	letters := map[Ext]byte{
		ExtI: 'I', ExtE: 'E', ExtM: 'M', ExtA: 'A',
		ExtF: 'F', ExtD: 'D', ExtC: 'C',
	}
	for ext, l := range letters {
		if f.Has(ext) {
			v |= 1 << (l - 'A')
		}
	}

	mxl := uint64(1)
	if f.IsRV64() {
		mxl = 2
	}
	return v | mxl<<(f.xlen-2)
}

// String returns a canonical machine description such as "RV64IMAFDC_Zicsr_Zifencei".
func (f *Features) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "RV%d", f.xlen)
	for _, n := range extNames {
		if len(n.name) == 1 && f.Has(n.ext) {
			sb.WriteString(n.name)
		}
	}
	for _, n := range extNames {
		if len(n.name) > 1 && f.Has(n.ext) {
			sb.WriteString("_" + n.name)
		}
	}
	return sb.String()
}
