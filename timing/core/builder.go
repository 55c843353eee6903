package core

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/ext"
	"github.com/sarchlab/rvsim/feature"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/latency"
	"github.com/sarchlab/rvsim/timing/memctrl"
	"github.com/sarchlab/rvsim/timing/prefetch"
)

// ErrNoFeatures is returned by Build when no feature configuration is set.
var ErrNoFeatures = errors.New("core: no features configured")

// Builder can create new cores.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	features   *feature.Features
	memory     *emu.Memory
	timing     *latency.TimingConfig
	syscall    emu.SyscallHandler
	logger     *slog.Logger
	seed       int64
	maxCycles  uint64
	haltOnTrap bool
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq: 1 * sim.GHz,
		seed: 1,
	}
}

// WithEngine sets the engine.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the core.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithFeatures sets the machine configuration. It also fixes the number of
// harts.
func (b Builder) WithFeatures(f *feature.Features) Builder {
	b.features = f
	return b
}

// WithMemory sets the functional memory. A fresh memory is created if none
// is given.
func (b Builder) WithMemory(memory *emu.Memory) Builder {
	b.memory = memory
	return b
}

// WithTimingConfig sets the instruction costs and memory timing.
func (b Builder) WithTimingConfig(config *latency.TimingConfig) Builder {
	b.timing = config
	return b
}

// WithSyscallHandler serves ECALL with h instead of trapping.
func (b Builder) WithSyscallHandler(h emu.SyscallHandler) Builder {
	b.syscall = h
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// WithSeed seeds the random memory cost generator.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithMaxCycles makes Tick stop after n cycles. Zero means no limit.
func (b Builder) WithMaxCycles(n uint64) Builder {
	b.maxCycles = n
	return b
}

// WithHaltOnUnhandledTrap stops a hart that traps while its STVEC is zero.
func (b Builder) WithHaltOnUnhandledTrap(halt bool) Builder {
	b.haltOnTrap = halt
	return b
}

// Build creates a core.
func (b Builder) Build(name string) (*Core, error) {
	if b.features == nil {
		return nil, ErrNoFeatures
	}

	timing := b.timing
	if timing == nil {
		timing = latency.DefaultTimingConfig()
	}
	if err := timing.Validate(); err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}

	table, err := ext.LoadInstructionTable(b.features)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}

	engine := b.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	memory := b.memory
	if memory == nil {
		memory = emu.NewMemory()
	}

	c := &Core{
		features:   b.features,
		table:      table,
		decoder:    insts.NewDecoder(table, b.features),
		latency:    latency.NewTableWithConfig(timing),
		memory:     memory,
		lsq:        emu.NewLoadStoreQueue(),
		syscall:    b.syscall,
		logger:     logger.With(slog.String("component", name)),
		maxCycles:  b.maxCycles,
		haltOnTrap: b.haltOnTrap,
	}
	c.TickingComponent = sim.NewTickingComponent(name, engine, b.freq, c)

	c.mem = memctrl.New(memory, c.lsq, b.memOptions(timing)...)
	c.prefetch = prefetch.New(c.mem, c.lsq, timing.PrefetchDepth, timing.PrefetchStreams)

	for i := 0; i < b.features.Harts(); i++ {
		c.harts = append(c.harts, c.newHart(i))
	}

	c.logger.Debug("core built",
		slog.String("machine", b.features.String()),
		slog.Int("harts", len(c.harts)),
		slog.Int("instructions", table.Len()))

	return c, nil
}

func (b Builder) memOptions(timing *latency.TimingConfig) []memctrl.Option {
	opts := []memctrl.Option{
		memctrl.WithMemoryLatency(timing.MemoryLatency),
		memctrl.WithSeed(b.seed),
	}

	if timing.ICache {
		cfg := cache.DefaultL1IConfig()
		cfg.HitLatency = timing.L1HitLatency
		cfg.MissLatency = timing.MemoryLatency
		opts = append(opts, memctrl.WithICache(cfg))
	}
	if timing.DCache {
		cfg := cache.DefaultL1DConfig()
		cfg.HitLatency = timing.L1HitLatency
		cfg.MissLatency = timing.MemoryLatency
		opts = append(opts, memctrl.WithDCache(cfg))
	}
	if timing.RandomMemCost {
		opts = append(opts, memctrl.WithRandomCost(timing.MemCostMin, timing.MemCostMax))
	}

	return opts
}

func (c *Core) newHart(id int) *hart {
	regs := emu.NewRegFile(c.features, id, hartCounters{core: c, id: id})
	regs.SetTracer(c)

	return &hart{
		id:   id,
		regs: regs,
		env: &insts.Env{
			Hart:     id,
			Features: c.features,
			Regs:     regs,
			Mem:      c.mem,
			System:   c,
		},
		breakpoints: make(map[uint64]struct{}),
	}
}
