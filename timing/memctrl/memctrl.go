// Package memctrl provides the memory service of a core.
//
// The controller serves the functional memory with a timing model on top:
// reads are asynchronous and complete after a cost drawn from the cache
// model, a fixed memory latency or a random range; stores and atomics are
// performed at once. Every outstanding read lives in the shared
// LoadStoreQueue from issue until completion.
package memctrl

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/timing/cache"
)

// Statistics holds memory service statistics.
type Statistics struct {
	Loads      uint64
	Fetches    uint64
	Stores     uint64
	AMOs       uint64
	LRs        uint64
	SCs        uint64
	SCFailures uint64

	// Completed counts reads whose completion callback has run.
	Completed uint64
	// ReadCycles is the sum of the costs of all issued reads.
	ReadCycles uint64

	ICache cache.Statistics
	DCache cache.Statistics
}

// AverageReadLatency returns the mean cost of an issued read.
func (s Statistics) AverageReadLatency() float64 {
	n := s.Loads + s.Fetches
	if n == 0 {
		return 0
	}
	return float64(s.ReadCycles) / float64(n)
}

type pending struct {
	req       *emu.MemReq
	value     uint64
	remaining uint64
}

type reservation struct {
	addr  uint64
	size  int
	valid bool
}

// Controller is the memory service shared by the harts of one core.
type Controller struct {
	memory *emu.Memory
	lsq    *emu.LoadStoreQueue

	icache *cache.Cache
	dcache *cache.Cache

	memoryLatency uint64
	randomCost    bool
	minCost       uint64
	maxCost       uint64
	rng           *rand.Rand

	inflight     []*pending
	reservations map[int]*reservation
	stats        Statistics
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithICache models fetch latency with an instruction cache.
func WithICache(config cache.Config) Option {
	return func(c *Controller) {
		c.icache = cache.New(config)
	}
}

// WithDCache models load, store and atomic latency with a data cache.
func WithDCache(config cache.Config) Option {
	return func(c *Controller) {
		c.dcache = cache.New(config)
	}
}

// WithMemoryLatency sets the cost of reads not covered by a cache.
func WithMemoryLatency(cycles uint64) Option {
	return func(c *Controller) {
		c.memoryLatency = cycles
	}
}

// WithRandomCost draws every read cost from [min, max], bypassing the
// cache model.
func WithRandomCost(min, max uint64) Option {
	return func(c *Controller) {
		c.randomCost = true
		c.minCost = min
		c.maxCost = max
	}
}

// WithSeed seeds the random cost generator.
func WithSeed(seed int64) Option {
	return func(c *Controller) {
		c.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a controller over memory. Outstanding reads are tracked in
// lsq, which the prefetcher and the core observe.
func New(memory *emu.Memory, lsq *emu.LoadStoreQueue, opts ...Option) *Controller {
	c := &Controller{
		memory:        memory,
		lsq:           lsq,
		memoryLatency: 1,
		rng:           rand.New(rand.NewSource(1)),
		reservations:  make(map[int]*reservation),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Memory returns the functional memory.
func (c *Controller) Memory() *emu.Memory {
	return c.memory
}

// Queue returns the outstanding request queue.
func (c *Controller) Queue() *emu.LoadStoreQueue {
	return c.lsq
}

// ICache returns the instruction cache model, or nil.
func (c *Controller) ICache() *cache.Cache {
	return c.icache
}

// DCache returns the data cache model, or nil.
func (c *Controller) DCache() *cache.Cache {
	return c.dcache
}

// RandCost returns a cost drawn uniformly from [min, max].
func (c *Controller) RandCost(min, max uint64) uint64 {
	if max <= min {
		return min
	}
	span := max - min + 1
	if span == 0 {
		return c.rng.Uint64()
	}
	return min + c.rng.Uint64()%span
}

func (c *Controller) readCost(op emu.MemOp, addr uint64) uint64 {
	var cost uint64

	switch {
	case c.randomCost:
		cost = c.RandCost(c.minCost, c.maxCost)
	case op == emu.MemOpFetch && c.icache != nil:
		cost = c.icache.Read(addr).Latency
	case op != emu.MemOpFetch && c.dcache != nil:
		cost = c.dcache.Read(addr).Latency
	default:
		cost = c.memoryLatency
	}

	if cost == 0 {
		return 1
	}
	return cost
}

func accessFault(op emu.MemOp, addr uint64) *emu.Exception {
	if op == emu.MemOpFetch {
		return emu.NewException(emu.CauseFetchAccessFault, addr)
	}
	return emu.NewException(emu.CauseLoadAccessFault, addr)
}

// ReadVal issues an asynchronous read. The value is sampled at issue and
// handed to req.OnComplete once the read cost has elapsed. An address
// outside memory is returned as an access fault and nothing is queued.
func (c *Controller) ReadVal(req *emu.MemReq) error {
	if !c.memory.Contains(req.Addr, uint64(req.Size)) {
		return accessFault(req.Op, req.Addr)
	}

	value, err := c.memory.ReadVal(req.Addr, req.Size)
	if err != nil {
		return fmt.Errorf("memctrl: %w", err)
	}

	if req.Op == emu.MemOpFetch {
		c.stats.Fetches++
	} else {
		c.stats.Loads++
	}

	cost := c.readCost(req.Op, req.Addr)
	c.stats.ReadCycles += cost

	c.lsq.Insert(req)
	c.inflight = append(c.inflight, &pending{
		req:       req,
		value:     value,
		remaining: cost,
	})

	return nil
}

// Load issues a data load.
func (c *Controller) Load(req *emu.MemReq) error {
	req.Op = emu.MemOpLoad
	return c.ReadVal(req)
}

// Tick advances every outstanding read by one cycle and completes the
// reads whose cost has elapsed, in issue order. It reports whether any
// read was outstanding.
func (c *Controller) Tick() bool {
	if len(c.inflight) == 0 {
		return false
	}

	var done []*pending
	kept := c.inflight[:0]
	for _, p := range c.inflight {
		p.remaining--
		if p.remaining == 0 {
			done = append(done, p)
			continue
		}
		kept = append(kept, p)
	}
	c.inflight = kept

	for _, p := range done {
		c.lsq.Remove(p.req)
		c.stats.Completed++
		if p.req.OnComplete != nil {
			p.req.OnComplete(p.value)
		}
	}

	return true
}

// Pending returns the number of outstanding reads.
func (c *Controller) Pending() int {
	return len(c.inflight)
}

func (c *Controller) checkStore(addr uint64, size int) error {
	if !c.memory.Contains(addr, uint64(size)) {
		return emu.NewException(emu.CauseStoreAccessFault, addr)
	}
	return nil
}

func (c *Controller) write(addr uint64, size int, value uint64) error {
	if err := c.memory.WriteVal(addr, size, value); err != nil {
		return fmt.Errorf("memctrl: %w", err)
	}
	if c.dcache != nil {
		c.dcache.Write(addr)
	}
	c.invalidateReservations(addr, size)
	return nil
}

// Store performs a store.
func (c *Controller) Store(hart int, addr uint64, size int, value uint64) error {
	if err := c.checkStore(addr, size); err != nil {
		return err
	}
	c.stats.Stores++
	return c.write(addr, size, value)
}

// AMO atomically replaces the value at addr with op(old) and returns old.
func (c *Controller) AMO(hart int, addr uint64, size int, op func(old uint64) uint64) (uint64, error) {
	if err := c.checkStore(addr, size); err != nil {
		return 0, err
	}

	old, err := c.memory.ReadVal(addr, size)
	if err != nil {
		return 0, fmt.Errorf("memctrl: %w", err)
	}

	c.stats.AMOs++
	if err := c.write(addr, size, op(old)); err != nil {
		return 0, err
	}
	return old, nil
}

// LoadReserved reads the value at addr and registers a reservation for
// the hart.
func (c *Controller) LoadReserved(hart int, addr uint64, size int) (uint64, error) {
	if !c.memory.Contains(addr, uint64(size)) {
		return 0, emu.NewException(emu.CauseLoadAccessFault, addr)
	}

	v, err := c.memory.ReadVal(addr, size)
	if err != nil {
		return 0, fmt.Errorf("memctrl: %w", err)
	}
	if c.dcache != nil {
		c.dcache.Read(addr)
	}

	c.stats.LRs++
	c.reservations[hart] = &reservation{addr: addr, size: size, valid: true}
	return v, nil
}

// StoreConditional performs the store if the hart still holds a
// reservation on addr. The hart's reservation is released either way.
func (c *Controller) StoreConditional(hart int, addr uint64, size int, value uint64) (bool, error) {
	if err := c.checkStore(addr, size); err != nil {
		return false, err
	}

	c.stats.SCs++

	r := c.reservations[hart]
	delete(c.reservations, hart)
	if r == nil || !r.valid || r.addr != addr || r.size != size {
		c.stats.SCFailures++
		return false, nil
	}

	if err := c.write(addr, size, value); err != nil {
		return false, err
	}
	return true, nil
}

// HasReservation reports whether the hart holds a valid reservation.
func (c *Controller) HasReservation(hart int) bool {
	r := c.reservations[hart]
	return r != nil && r.valid
}

// DropReservation releases the reservation of a hart, as on a trap or a
// context switch.
func (c *Controller) DropReservation(hart int) {
	delete(c.reservations, hart)
}

func (c *Controller) invalidateReservations(addr uint64, size int) {
	end := addr + uint64(size)
	for _, r := range c.reservations {
		if r.addr < end && addr < r.addr+uint64(r.size) {
			r.valid = false
		}
	}
}

// Stats returns a snapshot of the memory service statistics.
func (c *Controller) Stats() Statistics {
	s := c.stats
	if c.icache != nil {
		s.ICache = c.icache.Stats()
	}
	if c.dcache != nil {
		s.DCache = c.dcache.Stats()
	}
	return s
}
