// Package benchmarks provides the timing microbenchmark harness used to
// calibrate the core's cost model.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
	"github.com/sarchlab/rvsim/timing/core"
	"github.com/sarchlab/rvsim/timing/latency"
)

// ProgramAddr is where benchmark programs are loaded.
const ProgramAddr uint64 = 0x1000

const stackTop uint64 = 0x10000

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	SimulatedCycles     uint64  `json:"simulated_cycles"`
	InstructionsRetired uint64  `json:"instructions_retired"`
	CPI                 float64 `json:"cpi"`

	// Idle cycles by cause.
	FetchStalls   uint64 `json:"fetch_stalls"`
	HazardStalls  uint64 `json:"hazard_stalls"`
	ExecuteCycles uint64 `json:"execute_cycles"`

	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	PrefetchHits   uint64 `json:"prefetch_hits"`
	PrefetchMisses uint64 `json:"prefetch_misses"`

	ExitCode int64  `json:"exit_code"`
	Exited   bool   `json:"exited"`
	Error    string `json:"error,omitempty"`

	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the run exited with the expected code.
func (r BenchmarkResult) Passed(b Benchmark) bool {
	return r.Error == "" && r.Exited && r.ExitCode == b.ExpectedExit
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	Name        string
	Description string

	// Setup prepares registers and memory before the run. a7 already holds
	// the exit system call number and sp points at a private stack.
	Setup func(regs *emu.RegFile, memory *emu.Memory)

	// Program is the machine code loaded at ProgramAddr.
	Program []byte

	ExpectedExit int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Machine is the ISA string the core is built for.
	Machine string

	EnableICache bool
	EnableDCache bool

	// Timing overrides the default cost model. Its cache switches are
	// replaced by EnableICache and EnableDCache.
	Timing *latency.TimingConfig

	// MaxCycles bounds each run. Zero means no limit.
	MaxCycles uint64

	// Output is where to write results (default: os.Stdout).
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Machine:      "RV64IMAC",
		EnableICache: true,
		EnableDCache: true,
		MaxCycles:    1_000_000,
		Output:       os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{config: config}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// Benchmarks returns the registered benchmarks.
func (h *Harness) Benchmarks() []Benchmark {
	return h.benchmarks
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))
	for _, bench := range h.benchmarks {
		results = append(results, h.Run(bench))
	}
	return results
}

// Run executes a single benchmark on a fresh single-hart core.
func (h *Harness) Run(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{Name: bench.Name, Description: bench.Description}

	c, err := h.buildCore(bench)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	_, err = c.Run(h.config.MaxCycles)
	result.WallTime = time.Since(start)
	if err != nil {
		result.Error = err.Error()
	}

	result.ExitCode, result.Exited = c.ExitCode(0)
	h.collect(&result, c.Stats())

	return result
}

func (h *Harness) buildCore(bench Benchmark) (*core.Core, error) {
	f, err := feature.Parse(h.config.Machine)
	if err != nil {
		return nil, err
	}

	timing := latency.DefaultTimingConfig()
	if h.config.Timing != nil {
		timing = h.config.Timing.Clone()
	}
	timing.ICache = h.config.EnableICache
	timing.DCache = h.config.EnableDCache

	memory := emu.NewMemory()
	handler := emu.NewDefaultSyscallHandler(memory, io.Discard, io.Discard)

	c, err := core.MakeBuilder().
		WithFeatures(f).
		WithMemory(memory).
		WithTimingConfig(timing).
		WithSyscallHandler(handler).
		Build(bench.Name)
	if err != nil {
		return nil, err
	}

	regs := emu.NewRegFile(f, 0, nil)
	regs.SetPC(ProgramAddr)
	regs.WriteX(emu.RegSP, stackTop)
	regs.WriteX(emu.RegA7, emu.SyscallExit)
	if bench.Setup != nil {
		bench.Setup(regs, memory)
	}

	if err := memory.LoadProgram(ProgramAddr, bench.Program); err != nil {
		return nil, fmt.Errorf("load %s: %w", bench.Name, err)
	}
	if err := c.LoadCtx(0, &core.ProcCtx{PID: 1, Regs: regs}); err != nil {
		return nil, err
	}

	return c, nil
}

func (h *Harness) collect(r *BenchmarkResult, s core.Stats) {
	r.SimulatedCycles = s.Cycles
	r.InstructionsRetired = s.Instructions
	r.CPI = s.CPI()
	r.FetchStalls = s.IdleFetch
	r.HazardStalls = s.IdleHazard
	r.ExecuteCycles = s.IdleExecuting

	if h.config.EnableICache {
		r.ICacheHits = s.Memory.ICache.Hits
		r.ICacheMisses = s.Memory.ICache.Misses
	}
	if h.config.EnableDCache {
		r.DCacheHits = s.Memory.DCache.Hits
		r.DCacheMisses = s.Memory.DCache.Misses
	}

	r.PrefetchHits = s.Prefetch.Hits
	r.PrefetchMisses = s.Prefetch.Misses
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== RVSim Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		if r.Error != "" {
			_, _ = fmt.Fprintf(out, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintf(out, "  Exit Code: %d\n", r.ExitCode)
		_, _ = fmt.Fprintln(out, "  --- Timing ---")
		_, _ = fmt.Fprintf(out, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(out, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(out, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(out, "  Fetch Stalls:         %d\n", r.FetchStalls)
		_, _ = fmt.Fprintf(out, "  Hazard Stalls:        %d\n", r.HazardStalls)
		_, _ = fmt.Fprintf(out, "  Execute Cycles:       %d\n", r.ExecuteCycles)

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(out, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.ICacheMisses)
		}
		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(out, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.DCacheMisses)
		}

		_, _ = fmt.Fprintln(out, "  --- Prefetch ---")
		_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.PrefetchHits)
		_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.PrefetchMisses)

		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out,
		"name,cycles,instructions,cpi,fetch_stalls,hazard_stalls,execute_cycles,icache_hits,icache_misses,dcache_hits,dcache_misses,prefetch_hits,prefetch_misses,exit_code")
	for _, r := range results {
		_, _ = fmt.Fprintf(out, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name, r.SimulatedCycles, r.InstructionsRetired, r.CPI,
			r.FetchStalls, r.HazardStalls, r.ExecuteCycles,
			r.ICacheHits, r.ICacheMisses, r.DCacheHits, r.DCacheMisses,
			r.PrefetchHits, r.PrefetchMisses, r.ExitCode)
	}
}

// PrintJSON outputs benchmark results as an indented JSON array.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	enc := json.NewEncoder(h.config.Output)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
