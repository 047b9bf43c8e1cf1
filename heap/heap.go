// Package heap implements the slot-indexed arena that owns every
// heap-allocated value in a Monty session: payload storage, reference
// counting, lazy hash caching, and the mark-and-sweep pass that breaks
// reference cycles reference counting alone cannot reclaim.
//
// The arena is deliberately generic over payload shape (package values
// supplies the concrete Str/List/Dict/... payloads) so this package has no
// dependency on the value model it stores.
package heap

import (
	"fmt"

	"modernc.org/memory"
)

// Ref identifies a live heap slot. The zero value never denotes a real slot;
// allocate always returns ids starting at 1 so a bare Ref{} can be used as a
// "no reference" sentinel where needed.
type Ref uint32

// Payload is implemented by every heap-resident value shape (str, bytes,
// list, tuple, dict, set, long-int, slice, dataclass instance, cell, boxed
// object). ContainsRefs lets the GC and the iterative drop walk skip
// payloads that are known to hold no nested Refs.
type Payload interface {
	// ContainsRefs reports whether this payload might hold nested heap
	// references that GC/drop need to visit.
	ContainsRefs() bool
	// WalkRefs calls visit once per nested Ref held directly by this
	// payload (not recursively — the drop/GC walk itself recurses through
	// the arena, not through the payload).
	WalkRefs(visit func(Ref))
}

// Hashable is implemented by payloads whose hash can be cached once computed
// (immutable payloads: str, bytes, tuple, long-int, frozen dataclasses).
// Payloads that don't implement it (list, dict, set) are unhashable.
type Hashable interface {
	ComputeHash() uint64
}

// Admission is the resource-tracker boundary the heap consults before every
// allocation. It is a narrow structural interface so this package never
// imports the tracker package.
type Admission interface {
	AdmitAllocation(approxBytes int) error
}

type slot struct {
	payload      Payload
	refcount     int32
	cachedHash   uint64
	hashComputed bool
	live         bool
}

// Heap is the arena for one session. It is never shared between sessions.
type Heap struct {
	slots []slot
	free  []Ref // freed slot indices available for reuse

	alloc *memory.Allocator // backing store for slot pages; meters real arena growth

	emptyTuple Ref
	hasEmpty   bool

	// liveCount is the number of currently-allocated (non-free) slots,
	// tracked incrementally so GC watermark policy doesn't need to scan.
	liveCount int
}

// New constructs an empty heap.
func New() *Heap {
	return &Heap{
		slots: make([]slot, 1), // index 0 reserved as "not a ref"
		alloc: &memory.Allocator{},
	}
}

// Close releases the arena's backing pages. Call once the session is
// discarded; a Heap must not be used afterward.
func (h *Heap) Close() {
	if h.alloc != nil {
		h.alloc.Close()
	}
}

// approxSlotBytes is charged against the allocator/tracker per slot, a
// deliberately rough constant standing in for the payload's real size —
// precise accounting lives with the resource tracker's byte budget, not here.
const approxSlotBytes = 48

// Allocate reserves a new slot for payload with refcount 1. admission may be
// nil (NoLimit tracker case); when non-nil and it refuses, no slot is
// consumed and the error (MemoryError/AllocationLimitExceeded, surfaced by
// the caller) propagates untouched.
func (h *Heap) Allocate(payload Payload, admission Admission) (Ref, error) {
	if admission != nil {
		if err := admission.AdmitAllocation(approxSlotBytes); err != nil {
			return 0, err
		}
	}
	if _, err := h.alloc.UintptrMalloc(1); err != nil {
		return 0, fmt.Errorf("heap: arena page allocation failed: %w", err)
	}

	var id Ref
	if n := len(h.free); n > 0 {
		id = h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[id] = slot{payload: payload, refcount: 1, live: true}
	} else {
		id = Ref(len(h.slots))
		h.slots = append(h.slots, slot{payload: payload, refcount: 1, live: true})
	}
	h.liveCount++
	return id, nil
}

func (h *Heap) mustSlot(id Ref) *slot {
	if int(id) <= 0 || int(id) >= len(h.slots) || !h.slots[id].live {
		panic(fmt.Sprintf("heap: use of invalid or freed ref %d", id))
	}
	return &h.slots[id]
}

// Get returns the payload stored at id.
func (h *Heap) Get(id Ref) Payload {
	return h.mustSlot(id).payload
}

// GetMut returns the payload stored at id for in-place mutation. Payloads are
// always pointer-shaped, so in Go this is identical to Get; the separate name
// is kept for parity with the documented contract (distinct read/write
// borrows in the source this arena is modeled on).
func (h *Heap) GetMut(id Ref) Payload {
	return h.mustSlot(id).payload
}

// RefCount reports a slot's live refcount, mainly for testing the refcount
// integrity invariant. ("+="
// may grow in place when refcount is 1").
func (h *Heap) RefCount(id Ref) int32 {
	return h.mustSlot(id).refcount
}

// IncRef increments a slot's refcount. Every clone of a live Ref must call
// this exactly once; it is one of the two sanctioned refcount mutation
// points (the other is DecRef).
func (h *Heap) IncRef(id Ref) {
	h.mustSlot(id).refcount++
}

// DecRef decrements a slot's refcount, freeing it and iteratively dropping
// any nested Refs when the count reaches zero. The drop walk is iterative
// (a work stack, not recursion) so an arbitrarily deep container chain
// cannot blow the Go call stack.
func (h *Heap) DecRef(id Ref) {
	work := []Ref{id}
	for len(work) > 0 {
		n := len(work) - 1
		cur := work[n]
		work = work[:n]

		s := &h.slots[cur]
		if !s.live {
			continue
		}
		s.refcount--
		if s.refcount > 0 {
			continue
		}
		payload := s.payload
		*s = slot{}
		h.free = append(h.free, cur)
		h.liveCount--
		if payload != nil && payload.ContainsRefs() {
			payload.WalkRefs(func(child Ref) {
				work = append(work, child)
			})
		}
	}
}

// WithTwo obtains two simultaneous mutable views of a and b. When a == b the
// same payload is handed to f twice rather than risking an aliasing bug from
// a naive double Get; when they differ, a's payload is temporarily detached
// from the arena (so f cannot accidentally reach it through a fresh Get(a)
// while holding the "borrow" for b) and reinserted once f returns.
func (h *Heap) WithTwo(a, b Ref, f func(pa, pb Payload)) {
	if a == b {
		p := h.mustSlot(a).payload
		f(p, p)
		return
	}
	sa := h.mustSlot(a)
	pa := sa.payload
	sa.payload = nil
	pb := h.mustSlot(b).payload
	f(pa, pb)
	h.mustSlot(a).payload = pa
}

// GetOrComputeHash returns the cached hash for id, computing and caching it
// on first request. The second return is false when the payload is
// unhashable (list, dict, set).
func (h *Heap) GetOrComputeHash(id Ref) (uint64, bool) {
	s := h.mustSlot(id)
	if s.hashComputed {
		return s.cachedHash, true
	}
	hashable, ok := s.payload.(Hashable)
	if !ok {
		return 0, false
	}
	v := hashable.ComputeHash()
	s.cachedHash = v
	s.hashComputed = true
	return v, true
}

// EmptyTuple returns the heap's singleton empty tuple, allocating it on
// first use. Payload must be supplied by the caller (package values) since
// this package has no notion of what a tuple payload looks like; subsequent
// calls reuse the same slot and bump its refcount.
func (h *Heap) EmptyTuple(makeEmpty func() Payload) Ref {
	if h.hasEmpty {
		h.IncRef(h.emptyTuple)
		return h.emptyTuple
	}
	id, err := h.Allocate(makeEmpty(), nil)
	if err != nil {
		panic("heap: empty tuple singleton allocation must never fail")
	}
	h.emptyTuple = id
	h.hasEmpty = true
	// The singleton itself holds one permanent reference so it is never
	// collected; callers additionally IncRef when they take a copy.
	h.IncRef(id)
	return id
}

// LiveSlots reports how many slots are currently allocated, used by the GC
// trigger policy's watermark check.
func (h *Heap) LiveSlots() int {
	return h.liveCount
}

// ForEachLive calls fn once per live slot, in ascending Ref order, with its
// payload and refcount — the iteration order a dump needs to serialize the
// arena deterministically (spec §4.H "a dump captures... heap slots with
// payloads and refcounts").
func (h *Heap) ForEachLive(fn func(id Ref, payload Payload, refcount int32)) {
	for id := Ref(1); int(id) < len(h.slots); id++ {
		s := &h.slots[id]
		if s.live {
			fn(id, s.payload, s.refcount)
		}
	}
}

// SlotCount reports the arena's current high-water slot count (including freed
// slots interleaved with live ones), so a loader can presize its slot table
// before replaying allocations in order.
func (h *Heap) SlotCount() int { return len(h.slots) }

// RestoreSlot installs payload at id with the given refcount during a load,
// bypassing admission (a loaded snapshot was already paid for once) and
// without disturbing free-list bookkeeping — the caller is expected to call
// this for every id from 1 up to the dumped slot count in order, marking
// gaps as free via MarkFree instead.
func (h *Heap) RestoreSlot(id Ref, payload Payload, refcount int32) {
	for Ref(len(h.slots)) <= id {
		h.slots = append(h.slots, slot{})
	}
	h.slots[id] = slot{payload: payload, refcount: refcount, live: true}
	h.liveCount++
}

// MarkFree records id as a free slot during a load (a gap left by an
// allocation that had already been collected when the snapshot was taken).
func (h *Heap) MarkFree(id Ref) {
	for Ref(len(h.slots)) <= id {
		h.slots = append(h.slots, slot{})
	}
	h.free = append(h.free, id)
}

// SetEmptyTuple records the empty-tuple singleton slot restored by a load,
// so a subsequent EmptyTuple() call reuses it instead of allocating a new
// one.
func (h *Heap) SetEmptyTuple(id Ref) {
	h.emptyTuple = id
	h.hasEmpty = true
}

// CollectGarbage runs a mark-and-sweep pass rooted at roots, reclaiming
// slots unreachable from any root even though their refcounts are nonzero
// (reference cycles). It must only be called at a statement boundary, where
// every live namespace slot has already been supplied via roots.
func (h *Heap) CollectGarbage(roots []Ref) int {
	marked := make(map[Ref]bool, h.liveCount)
	var stack []Ref
	for _, r := range roots {
		if r != 0 {
			stack = append(stack, r)
		}
	}
	for len(stack) > 0 {
		n := len(stack) - 1
		id := stack[n]
		stack = stack[:n]
		if marked[id] {
			continue
		}
		if int(id) <= 0 || int(id) >= len(h.slots) || !h.slots[id].live {
			continue
		}
		marked[id] = true
		p := h.slots[id].payload
		if p != nil && p.ContainsRefs() {
			p.WalkRefs(func(child Ref) {
				if !marked[child] {
					stack = append(stack, child)
				}
			})
		}
	}

	freed := 0
	for id := Ref(1); int(id) < len(h.slots); id++ {
		s := &h.slots[id]
		if !s.live || marked[id] {
			continue
		}
		payload := s.payload
		*s = slot{}
		h.free = append(h.free, id)
		h.liveCount--
		freed++
		if payload != nil && payload.ContainsRefs() {
			// Nested refs inside a collected cycle are dropped too, via
			// the normal iterative DecRef path so shared substructure
			// outside the cycle keeps its correct count.
			payload.WalkRefs(func(child Ref) {
				h.DecRef(child)
			})
		}
	}
	return freed
}
