// Package main provides the entry point for rvsim.
// rvsim is a cycle-level multi-hart RISC-V core simulator.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
	"github.com/sarchlab/rvsim/loader"
	"github.com/sarchlab/rvsim/timing/core"
	"github.com/sarchlab/rvsim/timing/latency"
)

var (
	machine    = flag.String("machine", "RV64GC", "ISA string, e.g. RV64IMAFDC or rv32gc")
	harts      = flag.Int("harts", 1, "Number of hardware threads")
	configPath = flag.String("config", "", "Path to timing configuration JSON file")
	maxCycles  = flag.Uint64("max-cycles", 0, "Stop after this many cycles (0 = unlimited)")
	entry      = flag.String("entry", "", "Symbol to start at instead of the ELF entry point")
	verbose    = flag.Bool("v", false, "Verbose output")
	tracePath  = flag.String("trace", "", "Write a retirement trace to this file")
	cpuProfile = flag.String("cpuprofile", "", "Write a CPU profile to this file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rvsim [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
	}

	exitCode, err := run(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
	}

	pprof.StopCPUProfile()
	os.Exit(int(exitCode))
}

func run(programPath string) (int64, error) {
	prog, err := loader.Load(programPath)
	if err != nil {
		return 1, fmt.Errorf("loading program: %w", err)
	}

	timingConfig := latency.DefaultTimingConfig()
	if *configPath != "" {
		timingConfig, err = latency.LoadConfig(*configPath)
		if err != nil {
			return 1, fmt.Errorf("loading timing config: %w", err)
		}
	}

	opts := options{
		machine:   *machine,
		harts:     *harts,
		timing:    timingConfig,
		maxCycles: *maxCycles,
		entry:     *entry,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		logger:    newLogger(*verbose),
	}

	if *tracePath != "" {
		f, err := os.Create(*tracePath)
		if err != nil {
			return 1, fmt.Errorf("creating trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		opts.trace = f
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}

	res, err := simulate(prog, opts)
	if err != nil {
		return 1, err
	}

	printReport(programPath, res)
	return res.exitCode, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

type options struct {
	machine   string
	harts     int
	timing    *latency.TimingConfig
	maxCycles uint64
	entry     string
	stdout    io.Writer
	stderr    io.Writer
	trace     io.Writer
	logger    *slog.Logger
}

type result struct {
	exitCode int64
	exited   bool
	stats    core.Stats
}

// simulate runs prog on a freshly built core until every hart has stopped
// or the cycle limit is reached.
func simulate(prog *loader.Program, opts options) (result, error) {
	f, err := feature.Parse(opts.machine,
		feature.WithHarts(opts.harts),
		feature.WithMemCost(opts.timing.MemCostMin, opts.timing.MemCostMax))
	if err != nil {
		return result{}, err
	}
	if prog.XLEN != 0 && prog.XLEN != f.XLEN() {
		return result{}, fmt.Errorf("program is RV%d but machine %s is RV%d",
			prog.XLEN, opts.machine, f.XLEN())
	}

	memory := emu.NewMemory()
	if err := prog.LoadInto(memory); err != nil {
		return result{}, err
	}

	syscalls := emu.NewDefaultSyscallHandler(memory, opts.stdout, opts.stderr)
	syscalls.SetBrk(prog.Break())

	engine := sim.NewSerialEngine()
	logger := opts.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c, err := core.MakeBuilder().
		WithEngine(engine).
		WithFeatures(f).
		WithMemory(memory).
		WithTimingConfig(opts.timing).
		WithSyscallHandler(syscalls).
		WithLogger(logger).
		WithMaxCycles(opts.maxCycles).
		WithHaltOnUnhandledTrap(true).
		Build("Core")
	if err != nil {
		return result{}, err
	}

	if opts.trace != nil {
		c.AcceptHook(&retireTracer{w: opts.trace, c: c})
	}

	for i := 0; i < c.NumHarts(); i++ {
		ctx, err := core.NewProcCtx(i, f, prog, opts.entry)
		if err != nil {
			return result{}, err
		}
		ctx.Regs.WriteX(emu.RegSP, prog.InitialSP-uint64(i)*loader.DefaultStackSize)
		ctx.Regs.WriteX(emu.RegTP, uint64(i))
		if err := c.LoadCtx(i, ctx); err != nil {
			return result{}, err
		}
	}

	c.TickLater()
	if err := engine.Run(); err != nil {
		return result{}, err
	}

	code, exited := c.ExitCode(0)
	return result{exitCode: code, exited: exited, stats: c.Stats()}, nil
}

// retireTracer writes one line per retired instruction.
type retireTracer struct {
	w io.Writer
	c *core.Core
}

func (t *retireTracer) Func(ctx sim.HookCtx) {
	if ctx.Pos != core.HookPosRetire {
		return
	}

	r := ctx.Item.(core.Retirement)
	mnemonic := "?"
	if e, err := t.c.Table().Entry(r.Inst.Entry); err == nil {
		mnemonic = e.Mnemonic
	}
	fmt.Fprintf(t.w, "%d hart%d 0x%X %08X %s\n", r.Cycle, r.Hart, r.PC, r.Inst.Raw, mnemonic)
}

func printReport(programPath string, res result) {
	stats := res.stats
	totalCycles := stats.Cycles
	if totalCycles == 0 {
		totalCycles = 1
	}

	pct := func(n uint64) float64 {
		return 100.0 * float64(n) / float64(totalCycles)
	}

	fmt.Printf("\n")
	fmt.Printf("Program: %s\n", programPath)
	if res.exited {
		fmt.Printf("Exit code: %d\n", res.exitCode)
	} else {
		fmt.Printf("Exit code: none (cycle limit reached)\n")
	}
	fmt.Printf("Total Instructions: %d\n", stats.Instructions)
	fmt.Printf("Total Cycles: %d\n", stats.Cycles)
	fmt.Printf("CPI: %.2f\n", stats.CPI())
	fmt.Printf("\n")
	fmt.Printf("Breakdown:\n")
	fmt.Printf("  Busy:            %6d cycles (%5.1f%%)\n", stats.BusyCycles, pct(stats.BusyCycles))
	fmt.Printf("  Fetch stalls:    %6d cycles (%5.1f%%)\n", stats.IdleFetch, pct(stats.IdleFetch))
	fmt.Printf("  Hazard stalls:   %6d cycles (%5.1f%%)\n", stats.IdleHazard, pct(stats.IdleHazard))
	fmt.Printf("  Executing:       %6d cycles (%5.1f%%)\n", stats.IdleExecuting, pct(stats.IdleExecuting))
	fmt.Printf("  Halted:          %6d cycles (%5.1f%%)\n", stats.IdleHalted, pct(stats.IdleHalted))
	fmt.Printf("\n")
	fmt.Printf("Events:\n")
	fmt.Printf("  Traps:  %d\n", stats.Traps)
	fmt.Printf("  Faults: %d\n", stats.Faults)
	fmt.Printf("\n")
	fmt.Printf("Memory:\n")
	fmt.Printf("  Loads: %d  Stores: %d  AMOs: %d  Fetches: %d\n",
		stats.Memory.Loads, stats.Memory.Stores, stats.Memory.AMOs, stats.Memory.Fetches)
	fmt.Printf("  Average read latency: %.2f cycles\n", stats.Memory.AverageReadLatency())
	fmt.Printf("  L1I hit rate: %.1f%%  L1D hit rate: %.1f%%\n",
		100*stats.Memory.ICache.HitRate(), 100*stats.Memory.DCache.HitRate())
	fmt.Printf("  Prefetch hits: %d  misses: %d  read-aheads: %d\n",
		stats.Prefetch.Hits, stats.Prefetch.Misses, stats.Prefetch.ReadAheads)
	for i, h := range stats.Harts {
		fmt.Printf("Hart %d: %d instructions, %d fetch stalls, %d hazard stalls, %d traps\n",
			i, h.Instructions, h.FetchStalls, h.HazardStalls, h.Traps)
	}
}
