package emu

// MemOp is the kind of an outstanding memory request.
type MemOp uint8

// Memory request kinds.
const (
	MemOpLoad MemOp = iota
	MemOpFetch
	MemOpAMO
)

func (op MemOp) String() string {
	switch op {
	case MemOpLoad:
		return "load"
	case MemOpFetch:
		return "fetch"
	case MemOpAMO:
		return "amo"
	default:
		return "unknown"
	}
}

// MemReq records one in-flight memory read. It lives in the
// LoadStoreQueue from issue until the memory service completes it.
type MemReq struct {
	Addr    uint64
	Size    int
	DestReg uint8
	Class   RegClass
	Hart    int
	Op      MemOp

	// OnComplete receives the value read from memory. It runs once, after
	// the request left the queue. Address faults are reported at issue.
	OnComplete func(value uint64)
}

// Key returns the dependency key of the request. Loads are keyed by their
// destination register, fetches by their instruction word address.
func (r *MemReq) Key() uint64 {
	if r.Op == MemOpFetch {
		return FetchHash(r.Addr)
	}
	return LSQHash(r.DestReg, r.Class, r.Hart)
}

// LSQHash returns the dependency key of a register-destined request.
func LSQHash(reg uint8, class RegClass, hart int) uint64 {
	return uint64(reg) | uint64(class)<<8 | uint64(hart)<<16
}

// FetchHash returns the dependency key of an instruction fetch covering the
// 4-byte word containing addr.
func FetchHash(addr uint64) uint64 {
	return 1<<63 | (addr>>2)<<16 | uint64(RegFetch)<<8
}

// LoadStoreQueue is the shared multimap of in-flight memory requests. The
// prefetcher and the load path both insert into it; the memory service
// removes each entry on completion.
type LoadStoreQueue struct {
	entries map[uint64][]*MemReq
	size    int
}

// NewLoadStoreQueue creates an empty queue.
func NewLoadStoreQueue() *LoadStoreQueue {
	return &LoadStoreQueue{entries: make(map[uint64][]*MemReq)}
}

// Insert adds a request under its key.
func (q *LoadStoreQueue) Insert(req *MemReq) {
	k := req.Key()
	q.entries[k] = append(q.entries[k], req)
	q.size++
}

// Remove deletes a specific request. It reports whether the request was
// present.
func (q *LoadStoreQueue) Remove(req *MemReq) bool {
	k := req.Key()
	list := q.entries[k]
	for i, r := range list {
		if r != req {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(q.entries, k)
		} else {
			q.entries[k] = list
		}
		q.size--
		return true
	}
	return false
}

// Count returns the number of requests under a key.
func (q *LoadStoreQueue) Count(key uint64) int {
	return len(q.entries[key])
}

// Len returns the total number of requests.
func (q *LoadStoreQueue) Len() int {
	return q.size
}

// PendingForHart returns the number of requests issued by a hart.
func (q *LoadStoreQueue) PendingForHart(hart int) int {
	n := 0
	for _, list := range q.entries {
		for _, r := range list {
			if r.Hart == hart {
				n++
			}
		}
	}
	return n
}
