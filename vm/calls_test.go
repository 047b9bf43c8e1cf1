package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

func addOneFunctionDef() *vm.FunctionDef {
	fb := vm.NewCodeBuilder("add_one")
	x := fb.AddLocal("x")
	fb.SetArgCount(1)
	fb.Emit(opcodes.OP_LOAD_LOCAL, x, 0)
	fb.Emit(opcodes.OP_LOAD_CONST, fb.AddConst(values.Int(1)), 0)
	fb.Emit(opcodes.OP_BINARY_ADD, 0, 0)
	fb.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return &vm.FunctionDef{Code: fb.Build()}
}

// TestUserFunctionCallBindsArgAndReturns exercises MAKE_FUNCTION + a
// positional CALL_FUNCTION growing and then unwinding the call stack (spec
// §4.F "Frame lifecycle").
func TestUserFunctionCallBindsArgAndReturns(t *testing.T) {
	m := newVM()
	m.Functions = []*vm.FunctionDef{addOneFunctionDef()}

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_MAKE_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(5)), 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 1, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(6), result.Data.(int64))
	require.Empty(t, m.CallStack, "the callee's frame must be popped once it returns")
}

// TestUserFunctionMissingArgumentIsTypeError exercises bindFrame's
// required-argument check when neither a positional nor a default is given.
func TestUserFunctionMissingArgumentIsTypeError(t *testing.T) {
	m := newVM()
	m.Functions = []*vm.FunctionDef{addOneFunctionDef()}

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_MAKE_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	_, exc, susp := run(t, m, b.Build())
	require.Nil(t, susp)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcTypeError, exc.Kind)
}

// TestUserFunctionUsesDefaultArgument exercises bindFrame's default-value
// fallback for an omitted trailing parameter.
func TestUserFunctionUsesDefaultArgument(t *testing.T) {
	m := newVM()
	fn := addOneFunctionDef()
	fn.Defaults = []values.Value{values.Int(41)}
	m.Functions = []*vm.FunctionDef{fn}

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_MAKE_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(42), result.Data.(int64))
}

// TestAsyncFunctionCallProducesUnstartedCoroutine is spec §4.G/§9: calling
// an `async def` function never runs its body — it pushes a bound coroutine
// value instead.
func TestAsyncFunctionCallProducesUnstartedCoroutine(t *testing.T) {
	m := newVM()
	fn := addOneFunctionDef()
	fn.Code.IsAsync = true
	m.Functions = []*vm.FunctionDef{fn}

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_MAKE_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(5)), 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 1, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	co, ok := m.Heap.Get(result.Ref()).(*values.CoroutinePayload)
	require.True(t, ok)
	require.False(t, co.Started)
	require.Len(t, co.Args, 1)
}

// TestSpawnTaskFrameBuildsIndependentStack is spec §4.G: the scheduler's
// entry point for starting a coroutine as a new task builds a call stack
// independent of vm.CallStack.
func TestSpawnTaskFrameBuildsIndependentStack(t *testing.T) {
	m := newVM()
	m.Functions = []*vm.FunctionDef{addOneFunctionDef()}

	stack, exc := m.SpawnTaskFrame(0, []values.Value{values.Int(9)}, nil)
	require.Nil(t, exc)
	require.Empty(t, m.CallStack)

	result, rexc, rsusp, _ := m.RunOn(stack)
	require.Nil(t, rexc)
	require.Nil(t, rsusp)
	require.Equal(t, int64(10), result.Data.(int64))
}

// TestRecursionLimitTripsRecursionError exercises the RecursionMax guard a
// runaway self-call hits (spec §4.F "max recursion depth").
func TestRecursionLimitTripsRecursionError(t *testing.T) {
	m := newVM()
	m.RecursionMax = 3

	fb := vm.NewCodeBuilder("loop")
	fb.Emit(opcodes.OP_MAKE_FUNCTION, 0, 0)
	fb.Emit(opcodes.OP_CALL_FUNCTION, 0, 0)
	fb.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	fn := &vm.FunctionDef{Code: fb.Build()}
	m.Functions = []*vm.FunctionDef{fn}

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_MAKE_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	_, exc, susp := run(t, m, b.Build())
	require.Nil(t, susp)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcRecursionError, exc.Kind)
}
