package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// TestBuildDictAndSubscript exercises BUILD_DICT plus BINARY_SUBSCR lookup
// (spec §4.D dict construction and indexing).
func TestBuildDictAndSubscript(t *testing.T) {
	m := newVM()
	sid := m.Interns.InternString("k")

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.InternStr(sid)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(10)), 0)
	b.Emit(opcodes.OP_BUILD_DICT, 1, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.InternStr(sid)), 0)
	b.Emit(opcodes.OP_BINARY_SUBSCR, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(10), result.Data.(int64))
}

// TestBuildSetDeduplicatesElements exercises BUILD_SET (spec §4.D set
// construction) — a duplicate element must not grow the set.
func TestBuildSetDeduplicatesElements(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_BUILD_SET, 3, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	sp, ok := m.Heap.Get(result.Ref()).(*values.SetPayload)
	require.True(t, ok)
	require.Equal(t, 2, sp.Len())
}

// TestBuildTupleEmptyReturnsSharedSingleton is spec §4.B: the zero-element
// tuple is a heap-wide singleton (EmptyTuple), not a fresh allocation.
func TestBuildTupleEmptyReturnsSharedSingleton(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_BUILD_TUPLE, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, m.Heap.EmptyTuple(values.MakeEmptyTuple), result.Ref())
}

// TestBuiltinLenDispatchesThroughCallFunction exercises OP_LOAD_BUILTIN +
// CALL_FUNCTION for a host-free builtin (spec supplement "Builtins
// enumeration").
func TestBuiltinLenDispatchesThroughCallFunction(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_BUILTIN, uint32(values.BuiltinLen), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(3)), 0)
	b.Emit(opcodes.OP_BUILD_LIST, 3, 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 1, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(3), result.Data.(int64))
}

// TestUnpackSequenceWrongCountIsValueError exercises UNPACK_SEQUENCE's arity
// check (spec §4.D "wrong number of values to unpack").
func TestUnpackSequenceWrongCountIsValueError(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_BUILD_LIST, 2, 0)
	b.Emit(opcodes.OP_UNPACK_SEQUENCE, 3, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	_, exc, susp := run(t, m, b.Build())
	require.Nil(t, susp)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcValueError, exc.Kind)
}
