package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/heap"
)

// leafPayload is a payload with no nested refs, standing in for an
// int/str/bytes-shaped heap value in these tests.
type leafPayload struct{ tag string }

func (leafPayload) ContainsRefs() bool      { return false }
func (leafPayload) WalkRefs(func(heap.Ref)) {}
func (p leafPayload) ComputeHash() uint64   { return uint64(len(p.tag)) }

// boxPayload holds a single nested Ref, standing in for a one-element
// list/cell, enough to exercise DecRef's iterative drop walk and
// CollectGarbage's mark phase.
type boxPayload struct{ refs []heap.Ref }

func (p *boxPayload) ContainsRefs() bool { return true }
func (p *boxPayload) WalkRefs(visit func(heap.Ref)) {
	for _, r := range p.refs {
		visit(r)
	}
}

type refusingAdmission struct{}

func (refusingAdmission) AdmitAllocation(int) error { return errAdmissionRefused }

var errAdmissionRefused = &admissionError{"heap_test: admission refused"}

type admissionError struct{ msg string }

func (e *admissionError) Error() string { return e.msg }

func TestAllocateIncDecRef(t *testing.T) {
	h := heap.New()
	id, err := h.Allocate(leafPayload{"a"}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, h.RefCount(id))

	h.IncRef(id)
	require.EqualValues(t, 2, h.RefCount(id))

	h.DecRef(id)
	require.EqualValues(t, 1, h.RefCount(id))

	h.DecRef(id)
	require.Panics(t, func() { h.RefCount(id) }, "slot must be freed once refcount hits zero")
}

func TestAllocateRespectsAdmission(t *testing.T) {
	h := heap.New()
	_, err := h.Allocate(leafPayload{"a"}, refusingAdmission{})
	require.Error(t, err)
	require.Equal(t, 0, h.LiveSlots())
}

// TestDecRefDropsNestedRefsIteratively is spec §3.2 "drop-work stack ...
// processed iteratively (no recursive drop)": freeing a box whose only
// reference is to a leaf must free the leaf too.
func TestDecRefDropsNestedRefsIteratively(t *testing.T) {
	h := heap.New()
	leaf, err := h.Allocate(leafPayload{"child"}, nil)
	require.NoError(t, err)

	box, err := h.Allocate(&boxPayload{refs: []heap.Ref{leaf}}, nil)
	require.NoError(t, err)

	require.EqualValues(t, 1, h.RefCount(leaf))
	h.DecRef(box)

	require.Panics(t, func() { h.RefCount(box) })
	require.Panics(t, func() { h.RefCount(leaf) }, "nested ref must be dropped when its owner is freed")
}

func TestWithTwoDistinctSlots(t *testing.T) {
	h := heap.New()
	a, _ := h.Allocate(&boxPayload{}, nil)
	b, _ := h.Allocate(&boxPayload{}, nil)

	var sawA, sawB heap.Payload
	h.WithTwo(a, b, func(pa, pb heap.Payload) {
		sawA, sawB = pa, pb
		pa.(*boxPayload).refs = append(pa.(*boxPayload).refs, 42)
	})
	require.NotSame(t, sawA, sawB)
	require.Equal(t, []heap.Ref{42}, h.Get(a).(*boxPayload).refs)
}

func TestWithTwoSameSlot(t *testing.T) {
	h := heap.New()
	a, _ := h.Allocate(&boxPayload{}, nil)

	calls := 0
	h.WithTwo(a, a, func(pa, pb heap.Payload) {
		calls++
		require.Same(t, pa, pb)
	})
	require.Equal(t, 1, calls)
}

func TestGetOrComputeHashCachesAndRejectsUnhashable(t *testing.T) {
	h := heap.New()
	leaf, _ := h.Allocate(leafPayload{"abcd"}, nil)
	v1, ok := h.GetOrComputeHash(leaf)
	require.True(t, ok)
	require.Equal(t, uint64(4), v1)

	box, _ := h.Allocate(&boxPayload{}, nil)
	_, ok = h.GetOrComputeHash(box)
	require.False(t, ok, "a payload with no ComputeHash method must report unhashable")
}

func TestEmptyTupleSingleton(t *testing.T) {
	h := heap.New()
	makeEmpty := func() heap.Payload { return leafPayload{"()"} }

	first := h.EmptyTuple(makeEmpty)
	require.EqualValues(t, 2, h.RefCount(first))

	second := h.EmptyTuple(makeEmpty)
	require.Equal(t, first, second)
	require.EqualValues(t, 3, h.RefCount(first))
}

// TestCollectGarbageFreesUnreachableCycle is spec §8 scenario 8: a
// self-referential structure with no surviving root must be reclaimed by GC
// even though reference counting alone would leave it at refcount 1.
func TestCollectGarbageFreesUnreachableCycle(t *testing.T) {
	h := heap.New()
	a, _ := h.Allocate(&boxPayload{}, nil)
	b, _ := h.Allocate(&boxPayload{}, nil)
	h.Get(a).(*boxPayload).refs = []heap.Ref{b}
	h.Get(b).(*boxPayload).refs = []heap.Ref{a}
	h.IncRef(a) // b -> a
	h.IncRef(b) // a -> b
	// Both slots now have refcount 2 (one original + one from the cycle)
	// and no external root.

	freed := h.CollectGarbage(nil)
	require.Equal(t, 2, freed)
	require.Equal(t, 0, h.LiveSlots())
}

// TestCollectGarbageIdempotent is spec §8 "GC idempotence": a second sweep
// over the same root set must free nothing further.
func TestCollectGarbageIdempotent(t *testing.T) {
	h := heap.New()
	a, _ := h.Allocate(&boxPayload{}, nil)
	b, _ := h.Allocate(&boxPayload{}, nil)
	h.Get(a).(*boxPayload).refs = []heap.Ref{b}
	h.IncRef(b)

	root, _ := h.Allocate(leafPayload{"root"}, nil)

	first := h.CollectGarbage([]heap.Ref{root})
	require.Equal(t, 2, first, "a/b are reachable from no root and must be swept")
	second := h.CollectGarbage([]heap.Ref{root})
	require.Equal(t, 0, second)
}

func TestForEachLiveVisitsInAscendingOrder(t *testing.T) {
	h := heap.New()
	var ids []heap.Ref
	for i := 0; i < 3; i++ {
		id, _ := h.Allocate(leafPayload{"x"}, nil)
		ids = append(ids, id)
	}

	var seen []heap.Ref
	h.ForEachLive(func(id heap.Ref, _ heap.Payload, _ int32) {
		seen = append(seen, id)
	})
	require.Equal(t, ids, seen)
}

func TestRestoreSlotAndMarkFreeRoundTrip(t *testing.T) {
	h := heap.New()
	h.RestoreSlot(1, leafPayload{"restored"}, 3)
	h.MarkFree(2)
	h.RestoreSlot(3, leafPayload{"third"}, 1)

	require.EqualValues(t, 3, h.RefCount(1))
	require.Equal(t, leafPayload{"restored"}, h.Get(1))
	require.Equal(t, 4, h.SlotCount())
}
