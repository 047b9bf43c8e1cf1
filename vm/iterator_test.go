package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// TestForIterAdvancesThroughMultipleElements is spec §8 scenario 2's shape
// (`for i in range(100): ...`) collapsed to a 3-element list: each FOR_ITER
// pass must see the next element, not the same one forever, and the loop
// must actually terminate once the source is exhausted.
func TestForIterAdvancesThroughMultipleElements(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	sum := b.AddLocal("sum")
	x := b.AddLocal("x")

	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(0)), 0)
	b.Emit(opcodes.OP_STORE_LOCAL, sum, 0)

	b.Emit(opcodes.OP_BUILD_LIST, 0, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LIST_APPEND, 1, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_LIST_APPEND, 1, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(3)), 0)
	b.Emit(opcodes.OP_LIST_APPEND, 1, 0)
	b.Emit(opcodes.OP_GET_ITER, 0, 0)

	loopStart := b.Here()
	forIter := b.Emit(opcodes.OP_FOR_ITER, 0, 0)
	b.Emit(opcodes.OP_STORE_LOCAL, x, 0)
	b.Emit(opcodes.OP_LOAD_LOCAL, sum, 0)
	b.Emit(opcodes.OP_LOAD_LOCAL, x, 0)
	b.Emit(opcodes.OP_BINARY_ADD, 0, 0)
	b.Emit(opcodes.OP_STORE_LOCAL, sum, 0)
	b.Emit(opcodes.OP_JUMP, uint32(loopStart), 0)
	loopEnd := b.Here()
	b.Patch(forIter, uint32(loopEnd))

	b.Emit(opcodes.OP_LOAD_LOCAL, sum, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(6), result.Data.(int64))
}

// TestGetIterRejectsNonIterable exercises GET_ITER's eager iterability
// check: an int is not iterable, and that must surface as a TypeError
// before FOR_ITER is ever reached.
func TestGetIterRejectsNonIterable(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(5)), 0)
	b.Emit(opcodes.OP_GET_ITER, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	_, exc, susp := run(t, m, b.Build())
	require.Nil(t, susp)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcTypeError, exc.Kind)
}

// TestForIterOverEmptySequenceSkipsLoopBody confirms the cursor starts
// exhausted immediately rather than off-by-one reading past an empty list.
func TestForIterOverEmptySequenceSkipsLoopBody(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_BUILD_LIST, 0, 0)
	b.Emit(opcodes.OP_GET_ITER, 0, 0)
	forIter := b.Emit(opcodes.OP_FOR_ITER, 0, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	loopEnd := b.Here()
	b.Patch(forIter, uint32(loopEnd))
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(0)), 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(0), result.Data.(int64))
}
