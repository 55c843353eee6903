package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds the cycle costs of the instruction classes and the
// memory timing parameters of a core.
type TimingConfig struct {
	// ALULatency is the cost of integer register and immediate operations.
	// Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the base cost of branches and jumps. Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// BranchMispredictPenalty is added when a branch or jump redirects the
	// PC. The core fetches sequentially, so every taken control transfer
	// pays it. Default: 2 cycles.
	BranchMispredictPenalty uint64 `json:"branch_mispredict_penalty"`

	// LoadLatency is the issue cost of a load. The result arrives later,
	// when the memory service completes the request. Default: 1 cycle.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the cost of a posted store. Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency"`

	// AtomicLatency is the cost of LR, SC and AMO instructions.
	// Default: 4 cycles.
	AtomicLatency uint64 `json:"atomic_latency"`

	// MultiplyLatency is the cost of integer multiplies. Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency"`

	// DivideLatencyMin is the minimum cost of integer divides and remainders.
	// Default: 10 cycles.
	DivideLatencyMin uint64 `json:"divide_latency_min"`

	// DivideLatencyMax is the maximum cost of integer divides and remainders.
	// Default: 20 cycles.
	DivideLatencyMax uint64 `json:"divide_latency_max"`

	// FPLatency is the cost of floating-point arithmetic, conversions and
	// compares. Default: 4 cycles.
	FPLatency uint64 `json:"fp_latency"`

	// FDivLatency is the cost of floating-point divide and square root.
	// Default: 16 cycles.
	FDivLatency uint64 `json:"fdiv_latency"`

	// CSRLatency is the cost of CSR accesses. Default: 1 cycle.
	CSRLatency uint64 `json:"csr_latency"`

	// FenceLatency is the cost of FENCE and FENCE.I. Default: 1 cycle.
	FenceLatency uint64 `json:"fence_latency"`

	// SyscallLatency is the cost of ECALL, EBREAK, SRET and WFI.
	// Default: 1 cycle (handling is external).
	SyscallLatency uint64 `json:"syscall_latency"`

	// L1HitLatency is the memory service latency of a cache hit.
	// Default: 2 cycles.
	L1HitLatency uint64 `json:"l1_hit_latency"`

	// MemoryLatency is the memory service latency of a cache miss, or of
	// every access when caches are disabled. Default: 40 cycles.
	MemoryLatency uint64 `json:"memory_latency"`

	// RandomMemCost draws every memory access latency uniformly from
	// [MemCostMin, MemCostMax] instead of using the cache model.
	RandomMemCost bool `json:"random_mem_cost"`

	// MemCostMin is the lower bound of a random memory access latency.
	MemCostMin uint64 `json:"mem_cost_min"`

	// MemCostMax is the upper bound of a random memory access latency.
	MemCostMax uint64 `json:"mem_cost_max"`

	// PrefetchDepth is the number of 32-bit words per prefetch stream.
	// Default: 8.
	PrefetchDepth int `json:"prefetch_depth"`

	// PrefetchStreams bounds the number of live prefetch streams.
	// Default: 4.
	PrefetchStreams int `json:"prefetch_streams"`

	// ICache enables the instruction cache timing model for fetch fills.
	ICache bool `json:"icache"`

	// DCache enables the data cache timing model for loads, stores and
	// atomics.
	DCache bool `json:"dcache"`
}

// DefaultTimingConfig returns a TimingConfig for a simple in-order core.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:              1,
		BranchLatency:           1,
		BranchMispredictPenalty: 2,
		LoadLatency:             1,
		StoreLatency:            1,
		AtomicLatency:           4,
		MultiplyLatency:         3,
		DivideLatencyMin:        10,
		DivideLatencyMax:        20,
		FPLatency:               4,
		FDivLatency:             16,
		CSRLatency:              1,
		FenceLatency:            1,
		SyscallLatency:          1,
		L1HitLatency:            2,
		MemoryLatency:           40,
		MemCostMin:              1,
		MemCostMax:              10,
		PrefetchDepth:           8,
		PrefetchStreams:         4,
		ICache:                  true,
		DCache:                  true,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Fields missing from the
// file keep their default values.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that every instruction class costs at least one cycle and
// that the latency ranges are well formed.
func (c *TimingConfig) Validate() error {
	positive := []struct {
		name  string
		value uint64
	}{
		{"alu_latency", c.ALULatency},
		{"branch_latency", c.BranchLatency},
		{"load_latency", c.LoadLatency},
		{"store_latency", c.StoreLatency},
		{"atomic_latency", c.AtomicLatency},
		{"multiply_latency", c.MultiplyLatency},
		{"divide_latency_min", c.DivideLatencyMin},
		{"fp_latency", c.FPLatency},
		{"fdiv_latency", c.FDivLatency},
		{"csr_latency", c.CSRLatency},
		{"fence_latency", c.FenceLatency},
		{"syscall_latency", c.SyscallLatency},
		{"l1_hit_latency", c.L1HitLatency},
		{"memory_latency", c.MemoryLatency},
	}
	for _, p := range positive {
		if p.value == 0 {
			return fmt.Errorf("%s must be > 0", p.name)
		}
	}

	if c.DivideLatencyMin > c.DivideLatencyMax {
		return fmt.Errorf("divide_latency_min must be <= divide_latency_max")
	}
	if c.RandomMemCost && c.MemCostMin == 0 {
		return fmt.Errorf("mem_cost_min must be > 0")
	}
	if c.MemCostMin > c.MemCostMax {
		return fmt.Errorf("mem_cost_min must be <= mem_cost_max")
	}
	if c.PrefetchDepth <= 0 {
		return fmt.Errorf("prefetch_depth must be > 0")
	}
	if c.PrefetchStreams <= 0 {
		return fmt.Errorf("prefetch_streams must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
