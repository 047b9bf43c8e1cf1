package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

func newVM() *vm.VM {
	return vm.New(heap.New(), interns.New())
}

func run(t *testing.T, m *vm.VM, code *vm.CodeObject) (values.Value, *values.ExceptionPayload, *vm.Suspension) {
	t.Helper()
	m.CallStack = []*vm.Frame{vm.NewFrame(m.Heap, code, nil, nil)}
	return m.Run()
}

// TestRunArithmeticCompletes is spec §8 scenario 1: `1 + 2` completes with
// Int(3) and no pending call.
func TestRunArithmeticCompletes(t *testing.T) {
	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_BINARY_ADD, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	m := newVM()
	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(3), result.Data.(int64))
}

// TestRunCatchesZeroDivisionError is spec §4.F "Exception unwinding": a
// SETUP_EXCEPT block intercepts a raised exception and the handler's value
// survives to the frame's return.
func TestRunCatchesZeroDivisionError(t *testing.T) {
	b := vm.NewCodeBuilder("<module>")
	setup := b.Emit(opcodes.OP_SETUP_EXCEPT, 0, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(0)), 0)
	b.Emit(opcodes.OP_BINARY_FLOORDIV, 0, 0)
	b.Emit(opcodes.OP_POP_BLOCK, 0, 0)
	jumpToEnd := b.Emit(opcodes.OP_JUMP, 0, 0)
	handler := b.Here()
	b.Patch(setup, uint32(handler))
	b.Emit(opcodes.OP_POP_TOP, 0, 0) // discard the bound exception value
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(99)), 0)
	end := b.Here()
	b.Patch(jumpToEnd, uint32(end))
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	m := newVM()
	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(99), result.Data.(int64))
}

// TestRunUnhandledExceptionEscapes confirms an exception with no matching
// handler propagates all the way out of Run as the returned *ExceptionPayload.
func TestRunUnhandledExceptionEscapes(t *testing.T) {
	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(0)), 0)
	b.Emit(opcodes.OP_BINARY_FLOORDIV, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	m := newVM()
	_, exc, susp := run(t, m, b.Build())
	require.Nil(t, susp)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcZeroDivisionError, exc.Kind)
}

// TestRunBuildsListViaAppend exercises BUILD_LIST/LIST_APPEND (spec §4.D
// list construction).
func TestRunBuildsListViaAppend(t *testing.T) {
	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_BUILD_LIST, 0, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LIST_APPEND, 1, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_LIST_APPEND, 1, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	m := newVM()
	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	lp, ok := m.Heap.Get(result.Ref()).(*values.ListPayload)
	require.True(t, ok)
	require.Len(t, lp.Elems, 2)
	require.Equal(t, int64(1), lp.Elems[0].Data.(int64))
	require.Equal(t, int64(2), lp.Elems[1].Data.(int64))
}

// TestRunLocalsStoreLoadRoundTrip exercises a STORE_LOCAL/LOAD_LOCAL round
// trip; the "undefined local raises NameError" edge case is
// TestRunLoadUndefinedLocalRaisesNameError below.
func TestRunLocalsStoreLoadRoundTrip(t *testing.T) {
	b := vm.NewCodeBuilder("<module>")
	x := b.AddLocal("x")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(7)), 0)
	b.Emit(opcodes.OP_STORE_LOCAL, x, 0)
	b.Emit(opcodes.OP_LOAD_LOCAL, x, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	m := newVM()
	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.Equal(t, int64(7), result.Data.(int64))
}

func TestRunLoadUndefinedLocalRaisesNameError(t *testing.T) {
	b := vm.NewCodeBuilder("<module>")
	y := b.AddLocal("y")
	b.Emit(opcodes.OP_LOAD_LOCAL, y, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	m := newVM()
	_, exc, susp := run(t, m, b.Build())
	require.Nil(t, susp)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcNameError, exc.Kind)
}

// TestRunSuspendsOnExternalFunctionCall is spec §4.F/§6: calling an
// ExternalFunction value parks the frame and reports a FunctionCall
// suspension carrying the call's name and arguments rather than completing.
func TestRunSuspendsOnExternalFunctionCall(t *testing.T) {
	m := newVM()
	sid := m.Interns.InternString("lookup")

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.ExternalFunctionV(sid)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(5)), 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 1, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	_, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.NotNil(t, susp)
	require.Equal(t, vm.SuspendFunctionCall, susp.Kind)
	require.Equal(t, "lookup", susp.Name)
	require.Len(t, susp.Args, 1)
	require.Equal(t, int64(5), susp.Args[0].Data.(int64))
}

// TestResumeDeliversReturnValueAfterSuspension drives a suspended frame
// through VM.Resume with a host-supplied return value (spec §4.F "Resume").
func TestResumeDeliversReturnValueAfterSuspension(t *testing.T) {
	m := newVM()
	sid := m.Interns.InternString("lookup")

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.ExternalFunctionV(sid)), 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	m.CallStack = []*vm.Frame{vm.NewFrame(m.Heap, b.Build(), nil, nil)}
	_, _, susp := m.Run()
	require.NotNil(t, susp)

	result, exc, susp2 := m.Resume(m.CallStack, vm.Return(values.Int(42)))
	require.Nil(t, exc)
	require.Nil(t, susp2)
	require.Equal(t, int64(42), result.Data.(int64))
}

// TestComparisonOpcodes exercises an ordering comparison, `1 < 2` (spec
// §4.D numeric comparisons); identity is TestIsComparesIdentityNotEquality.
func TestComparisonOpcodes(t *testing.T) {
	m := newVM()

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_COMPARE_LT, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.True(t, result.Data.(bool))
}

func TestIsComparesIdentityNotEquality(t *testing.T) {
	m := newVM()
	aRef, _ := m.Heap.Allocate(values.NewList(nil), nil)
	bRef, _ := m.Heap.Allocate(values.NewList(nil), nil)

	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.RefV(aRef)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.RefV(bRef)), 0)
	b.Emit(opcodes.OP_COMPARE_IS, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	result, exc, susp := run(t, m, b.Build())
	require.Nil(t, exc)
	require.Nil(t, susp)
	require.False(t, result.Data.(bool), "two distinct lists are never `is` each other")
}
