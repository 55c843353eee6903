// Package prefetch provides the stream instruction prefetcher.
//
// A stream covers depth consecutive 32-bit words starting at a word-aligned
// base. Fetches are served from the streams; a miss allocates a new stream
// and issues one memory read per slot. Streams are strictly sequential:
// once the last slot is consumed the stream is dropped and the following
// range is filled ahead of the program counter.
package prefetch

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvsim/emu"
)

// ErrOutOfBounds indicates a slot lookup outside the stream that claimed the
// address. It is an internal consistency failure.
var ErrOutOfBounds = errors.New("prefetch slot out of stream bounds")

// Reader is the memory service the prefetcher fills streams from.
type Reader interface {
	ReadVal(req *emu.MemReq) error
}

// Statistics holds prefetcher statistics.
type Statistics struct {
	Hits       uint64
	Misses     uint64
	Stalls     uint64
	Fills      uint64
	ReadAheads uint64
	Evictions  uint64
	Flushes    uint64
}

type stream struct {
	base    uint64
	words   []uint32
	pending []bool
	faults  []error
}

func (s *stream) contains(addr uint64, depth int) bool {
	return addr >= s.base && addr < s.base+4*uint64(depth)
}

func (s *stream) filled() bool {
	for _, p := range s.pending {
		if p {
			return false
		}
	}
	return true
}

// Prefetcher serves instruction fetches of the harts of one core.
type Prefetcher struct {
	reader     Reader
	lsq        *emu.LoadStoreQueue
	depth      int
	maxStreams int

	streams []*stream
	fetches []*emu.MemReq
	stats   Statistics
}

// New creates a prefetcher with streams of depth words. At most maxStreams
// completely filled streams are kept; streams with reads in flight are
// never evicted.
func New(reader Reader, lsq *emu.LoadStoreQueue, depth, maxStreams int) *Prefetcher {
	if depth <= 0 {
		depth = 1
	}
	if maxStreams <= 0 {
		maxStreams = 1
	}
	return &Prefetcher{
		reader:     reader,
		lsq:        lsq,
		depth:      depth,
		maxStreams: maxStreams,
	}
}

// Depth returns the number of words per stream.
func (p *Prefetcher) Depth() int {
	return p.depth
}

// Streams returns the number of live streams.
func (p *Prefetcher) Streams() int {
	return len(p.streams)
}

// Pending returns the number of fetch reads in flight.
func (p *Prefetcher) Pending() int {
	return len(p.fetches)
}

// Stats returns prefetcher statistics.
func (p *Prefetcher) Stats() Statistics {
	return p.stats
}

func (p *Prefetcher) find(addr uint64) *stream {
	for _, s := range p.streams {
		if s.contains(addr, p.depth) {
			return s
		}
	}
	return nil
}

func (p *Prefetcher) slot(s *stream, addr uint64) (int, error) {
	if addr < s.base {
		return 0, fmt.Errorf("%w: 0x%X below base 0x%X", ErrOutOfBounds, addr, s.base)
	}
	idx := int((addr - s.base) / 4)
	if idx >= p.depth {
		return 0, fmt.Errorf("%w: 0x%X beyond base 0x%X", ErrOutOfBounds, addr, s.base)
	}
	return idx, nil
}

func (p *Prefetcher) remove(s *stream) {
	for i, other := range p.streams {
		if other == s {
			p.streams = append(p.streams[:i], p.streams[i+1:]...)
			return
		}
	}
}

// InstFetch returns the instruction at addr. fetched is false while the
// covering stream is being filled; the caller stalls and retries. A
// compressed instruction is returned in the low 16 bits. err is either an
// *emu.Exception for a faulting fetch or an internal failure.
func (p *Prefetcher) InstFetch(addr uint64) (word uint32, fetched bool, err error) {
	s := p.find(addr)
	if s == nil {
		p.stats.Misses++
		return 0, false, p.Fill(addr)
	}

	idx, err := p.slot(s, addr)
	if err != nil {
		return 0, false, err
	}
	if s.pending[idx] {
		p.stats.Stalls++
		return 0, false, nil
	}
	if s.faults[idx] != nil {
		return 0, false, s.faults[idx]
	}

	half := s.words[idx]
	if addr&0x2 != 0 {
		half >>= 16
	}

	size := uint64(4)
	switch {
	case half&0x3 != 0x3:
		word = half & 0xFFFF
		size = 2
	case addr&0x2 == 0:
		word = half
	case idx+1 < p.depth:
		if s.pending[idx+1] {
			p.stats.Stalls++
			return 0, false, nil
		}
		if s.faults[idx+1] != nil {
			return 0, false, s.faults[idx+1]
		}
		word = half&0xFFFF | s.words[idx+1]<<16
	default:
		upper, ok, err := p.FetchUpper(addr + 2)
		if err != nil || !ok {
			return 0, false, err
		}
		word = half&0xFFFF | uint32(upper)<<16
	}

	p.stats.Hits++

	end := s.base + 4*uint64(p.depth)
	if addr+size >= end {
		p.remove(s)
		if p.find(end) == nil {
			p.stats.ReadAheads++
			if err := p.Fill(end); err != nil {
				return 0, false, err
			}
		}
	}

	return word, true, nil
}

// FetchUpper returns the low half of the word at addr, the upper half of an
// instruction that straddles into the following stream. A miss fills the
// stream covering addr.
func (p *Prefetcher) FetchUpper(addr uint64) (uint16, bool, error) {
	s := p.find(addr)
	if s == nil {
		return 0, false, p.Fill(addr)
	}

	idx, err := p.slot(s, addr)
	if err != nil {
		return 0, false, err
	}
	if s.pending[idx] {
		return 0, false, nil
	}
	if s.faults[idx] != nil {
		return 0, false, s.faults[idx]
	}
	return uint16(s.words[idx]), true, nil
}

// Fill allocates a stream at the word-aligned base of addr and issues one
// read per slot. A read refused with an architectural exception marks its
// slot faulting; the fault is reported when the slot is fetched.
func (p *Prefetcher) Fill(addr uint64) error {
	p.evict()

	s := &stream{
		base:    addr &^ 0x3,
		words:   make([]uint32, p.depth),
		pending: make([]bool, p.depth),
		faults:  make([]error, p.depth),
	}
	p.streams = append(p.streams, s)
	p.stats.Fills++

	for i := 0; i < p.depth; i++ {
		slot := i
		req := &emu.MemReq{
			Addr:  s.base + 4*uint64(i),
			Size:  4,
			Class: emu.RegFetch,
			Hart:  -1,
			Op:    emu.MemOpFetch,
		}
		req.OnComplete = func(value uint64) {
			s.words[slot] = uint32(value)
			s.pending[slot] = false
			p.untrack(req)
		}

		s.pending[i] = true
		err := p.reader.ReadVal(req)

		var exc *emu.Exception
		switch {
		case err == nil:
			p.fetches = append(p.fetches, req)
		case errors.As(err, &exc):
			s.pending[i] = false
			s.faults[i] = exc
		default:
			return fmt.Errorf("fill 0x%X: %w", req.Addr, err)
		}
	}

	return nil
}

func (p *Prefetcher) untrack(req *emu.MemReq) {
	for i, r := range p.fetches {
		if r == req {
			p.fetches = append(p.fetches[:i], p.fetches[i+1:]...)
			return
		}
	}
}

// evict drops the oldest completely filled stream when the bound is
// reached.
func (p *Prefetcher) evict() {
	if len(p.streams) < p.maxStreams {
		return
	}
	for _, s := range p.streams {
		if s.filled() {
			p.remove(s)
			p.stats.Evictions++
			return
		}
	}
}

// IsAvail reports whether the instruction at addr can be fetched now. It
// does not consume the slot. A 32-bit instruction that starts in the upper
// half of a word is available only once its second half is too. A total
// miss starts a fill; err reports an internal fill failure.
func (p *Prefetcher) IsAvail(addr uint64) (bool, error) {
	s := p.find(addr)
	if s == nil {
		return false, p.Fill(addr)
	}

	if p.lsq.Count(emu.FetchHash(addr)) > 0 {
		return false, nil
	}

	idx, err := p.slot(s, addr)
	if err != nil {
		return false, err
	}
	if s.pending[idx] {
		return false, nil
	}
	if s.faults[idx] != nil || addr&0x2 == 0 || (s.words[idx]>>16)&0x3 != 0x3 {
		return true, nil
	}

	if idx+1 < p.depth {
		return !s.pending[idx+1], nil
	}

	end := s.base + 4*uint64(p.depth)
	next := p.find(end)
	if next == nil {
		return false, p.Fill(end)
	}
	return !next.pending[0], nil
}

// Flush drops every stream. Reads in flight still complete but land in
// the dropped streams.
func (p *Prefetcher) Flush() {
	p.streams = nil
	p.stats.Flushes++
}
