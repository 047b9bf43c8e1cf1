package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// TestCallMethodDispatchesBuiltinStrMethod exercises LOAD_ATTR + CALL_METHOD
// against a built-in type's own method surface (spec §4.D "full method
// surface") and confirms its return value actually reaches the operand
// stack rather than being silently discarded.
func TestCallMethodDispatchesBuiltinStrMethod(t *testing.T) {
	m := newVM()
	ref, err := m.Heap.Allocate(values.NewStr("abc"), nil)
	require.NoError(t, err)

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.RefV(ref)), 0)
	b.Emit(opcodes.OP_LOAD_ATTR, b.AddAttrName("upper"), 0)
	b.Emit(opcodes.OP_CALL_METHOD, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	sp, ok := m.Heap.Get(result.Ref()).(*values.StrPayload)
	require.True(t, ok)
	require.Equal(t, "ABC", sp.Value())
}

// TestCallMethodListAppendMutatesInPlace exercises a mutating builtin
// method (list.append) dispatched the same way, confirming it returns None
// rather than leaking the payload's internal state as the call's value.
func TestCallMethodListAppendMutatesInPlace(t *testing.T) {
	m := newVM()
	ref, err := m.Heap.Allocate(values.NewList(nil), nil)
	require.NoError(t, err)

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.RefV(ref)), 0)
	b.Emit(opcodes.OP_LOAD_ATTR, b.AddAttrName("append"), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(9)), 0)
	b.Emit(opcodes.OP_CALL_METHOD, 1, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.True(t, result.IsNone())

	lp, ok := m.Heap.Get(ref).(*values.ListPayload)
	require.True(t, ok)
	require.Len(t, lp.Elems, 1)
	require.Equal(t, int64(9), lp.Elems[0].Data.(int64))
}
