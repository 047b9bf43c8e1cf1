package values_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
)

// TestIdentityStability is spec §8 "`is` stability": two immediates built
// from equal bit patterns must report the same identity, and distinct ones
// must not collide.
func TestIdentityStability(t *testing.T) {
	require.Equal(t, values.Identity(values.Int(7)), values.Identity(values.Int(7)))
	require.NotEqual(t, values.Identity(values.Int(7)), values.Identity(values.Int(8)))
	require.True(t, values.Is(values.None(), values.None()))
	require.True(t, values.Is(values.Bool(true), values.Bool(true)))
	require.False(t, values.Is(values.Bool(true), values.Bool(false)))
}

// TestIdentityInterningEquivalence is spec §8 "Interning equivalence": two
// InternString values compare `is`-equal iff their ids are equal.
func TestIdentityInterningEquivalence(t *testing.T) {
	in := interns.New()
	a := in.InternString("hello")
	b := in.InternString("hello")
	c := in.InternString("world")

	require.True(t, values.Is(values.InternStr(a), values.InternStr(b)))
	require.False(t, values.Is(values.InternStr(a), values.InternStr(c)))
}

// TestIdentityRefBySlot checks that two RefV values pointing at different
// slots are never `is`-equal, and the same slot always is.
func TestIdentityRefBySlot(t *testing.T) {
	require.True(t, values.Is(values.RefV(heap.Ref(5)), values.RefV(heap.Ref(5))))
	require.False(t, values.Is(values.RefV(heap.Ref(5)), values.RefV(heap.Ref(6))))
}

type strPayloadStub struct{ s string }

func (strPayloadStub) ContainsRefs() bool      { return false }
func (strPayloadStub) WalkRefs(func(heap.Ref)) {}

// TestCloneDropValueRefcounting is spec §3.1's invariant: cloning a Ref
// increments the slot's refcount, dropping decrements it, and no other path
// may touch refcounts.
func TestCloneDropValueRefcounting(t *testing.T) {
	h := heap.New()
	id, err := h.Allocate(strPayloadStub{"x"}, nil)
	require.NoError(t, err)
	v := values.RefV(id)

	clone := values.CloneValue(h, v)
	require.EqualValues(t, 2, h.RefCount(id))

	values.DropValue(h, clone)
	require.EqualValues(t, 1, h.RefCount(id))

	// Cloning/dropping a non-Ref value must never touch the heap at all.
	values.DropValue(h, values.Int(99))
	require.EqualValues(t, 1, h.RefCount(id))
}

func TestCloneDropSlice(t *testing.T) {
	h := heap.New()
	id, _ := h.Allocate(strPayloadStub{"x"}, nil)
	vs := []values.Value{values.RefV(id), values.Int(1), values.None()}

	cloned := values.CloneSlice(h, vs)
	require.EqualValues(t, 2, h.RefCount(id))

	values.DropSlice(h, cloned)
	require.EqualValues(t, 1, h.RefCount(id))
}

func TestPyTypeImmediateAndRef(t *testing.T) {
	h := heap.New()
	require.Equal(t, "int", values.PyType(h, values.Int(1)))
	require.Equal(t, "NoneType", values.PyType(h, values.None()))

	id, _ := h.Allocate(&values.ListPayload{}, nil)
	require.Equal(t, "list", values.PyType(h, values.RefV(id)))
}
