package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// TestDictUpdateMergesSourceIntoTarget exercises `{**a}`-style dict spreads:
// DICT_UPDATE must merge the popped source dict's entries into the dict
// beneath it on the stack, not just discard the source.
func TestDictUpdateMergesSourceIntoTarget(t *testing.T) {
	m := newVM()
	aID := m.Interns.InternString("a")
	bID := m.Interns.InternString("b")

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.InternStr(aID)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_BUILD_DICT, 1, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.InternStr(bID)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_BUILD_DICT, 1, 0)
	b.Emit(opcodes.OP_DICT_UPDATE, 1, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)

	dp, ok := m.Heap.Get(result.Ref()).(*values.DictPayload)
	require.True(t, ok)
	got := map[string]int64{}
	for _, e := range dp.Entries {
		if e.Deleted {
			continue
		}
		got[stringOf(t, m, e.Key)] = e.Val.Data.(int64)
	}
	require.Equal(t, map[string]int64{"a": 1, "b": 2}, got)
}

// TestSetUpdateMergesIterableIntoTarget exercises `{*a}`-style set spreads:
// SET_UPDATE must add every element of the popped iterable to the set
// beneath it, deduplicating against what's already there.
func TestSetUpdateMergesIterableIntoTarget(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_BUILD_SET, 1, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_BUILD_LIST, 2, 0)
	b.Emit(opcodes.OP_SET_UPDATE, 1, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)

	sp, ok := m.Heap.Get(result.Ref()).(*values.SetPayload)
	require.True(t, ok)
	require.Equal(t, 2, sp.Len())
}

// TestBuildClassIsUnreachable documents that class bodies never flow through
// the bytecode stack machine (runner.NewProgram bakes them into vm.Classes
// up front), so emitting OP_BUILD_CLASS is always a compiler bug, not a
// valid no-op.
func TestBuildClassIsUnreachable(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_BUILD_CLASS, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	_, exc, susp := run(t, m, b.Build())
	require.Nil(t, susp)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcRuntimeError, exc.Kind)
}
