package runner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/runner"
	"github.com/scinapse-labs/monty/scheduler"
	"github.com/scinapse-labs/monty/tracker"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

func addProgram() *runner.Program {
	b := vm.NewCodeBuilder("<module>")
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(1)), 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(2)), 0)
	b.Emit(opcodes.OP_BINARY_ADD, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return runner.NewProgram("<module>", b.Build(), nil, nil, interns.New(), nil, nil)
}

// TestRunCompletesSimpleExpression is spec §8 scenario 1: `1 + 2` -> Int(3).
func TestRunCompletesSimpleExpression(t *testing.T) {
	st := runner.NewState(addProgram(), tracker.NoLimit{}, nil)
	prog, err := st.Run()
	require.NoError(t, err)
	require.Equal(t, runner.ProgressComplete, prog.Kind)
	require.Nil(t, prog.Err)
	require.Equal(t, values.TypeInt, prog.Result.Type)
	require.Equal(t, int64(3), prog.Result.Data.(int64))
}

func externalCallProgram(in *interns.Interns, fnName string) *runner.Program {
	b := vm.NewCodeBuilder("<module>")
	id, _ := in.InternOrAllocateString(fnName)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.ExternalFunctionV(id)), 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return runner.NewProgram("<module>", b.Build(), nil, nil, in, []string{fnName}, nil)
}

// TestFunctionCallSuspendResume exercises the single-call direct variant of
// RunProgress (spec §6 Program.start / state.run) for a script that calls a
// host-provided external function.
func TestFunctionCallSuspendResume(t *testing.T) {
	in := interns.New()
	st := runner.NewState(externalCallProgram(in, "lookup"), tracker.NoLimit{}, nil)

	prog, err := st.Run()
	require.NoError(t, err)
	require.Equal(t, runner.ProgressFunctionCall, prog.Kind)
	require.Equal(t, "lookup", prog.Call.Name)

	prog, err = st.Resolve([]scheduler.CallResult{{CallID: prog.Call.CallID, Result: vm.Return(values.Int(42))}})
	require.NoError(t, err)
	require.Equal(t, runner.ProgressComplete, prog.Kind)
	require.Equal(t, int64(42), prog.Result.Data.(int64))
}

// TestResolveUnknownCallIDIsRuntimeError is spec §8 scenario 6: resuming
// with a call id that was never issued raises a RuntimeError mentioning the
// bad id, leaving the real pending set untouched.
func TestResolveUnknownCallIDIsRuntimeError(t *testing.T) {
	in := interns.New()
	st := runner.NewState(externalCallProgram(in, "lookup"), tracker.NoLimit{}, nil)
	prog, err := st.Run()
	require.NoError(t, err)
	require.Equal(t, runner.ProgressFunctionCall, prog.Kind)

	_, err = st.Resolve([]scheduler.CallResult{{CallID: 9999, Result: vm.Return(values.Int(1))}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "9999")

	// The original call must still be answerable after the rejected resume.
	prog, err = st.Resolve([]scheduler.CallResult{{CallID: prog.Call.CallID, Result: vm.Return(values.Int(7))}})
	require.NoError(t, err)
	require.Equal(t, runner.ProgressComplete, prog.Kind)
	require.Equal(t, int64(7), prog.Result.Data.(int64))
}

// TestDumpLoadRoundTrip is spec §8 "Snapshot round-trip": a loaded state
// must behave identically to the original for subsequent identical input,
// exercised here mid-suspension (the harder case than a completed session).
func TestDumpLoadRoundTrip(t *testing.T) {
	in := interns.New()
	prog := externalCallProgram(in, "lookup")
	st := runner.NewState(prog, tracker.NoLimit{}, nil)

	rp, err := st.Run()
	require.NoError(t, err)
	require.Equal(t, runner.ProgressFunctionCall, rp.Kind)
	callID := rp.Call.CallID

	data, err := st.Dump()
	require.NoError(t, err)

	loaded, err := runner.LoadState(data, prog, tracker.NoLimit{}, nil)
	require.NoError(t, err)

	rp2, err := loaded.Resolve([]scheduler.CallResult{{CallID: callID, Result: vm.Return(values.Int(100))}})
	require.NoError(t, err)
	require.Equal(t, runner.ProgressComplete, rp2.Kind)
	require.Equal(t, int64(100), rp2.Result.Data.(int64))
}

// forLoopCheckpointProgram sums a 3-element list one iteration at a time,
// suspending out to an external "checkpoint" call on every pass (so a
// snapshot taken mid-loop lands on a real in-flight FOR_ITER cursor rather
// than at a loop boundary).
func forLoopCheckpointProgram(in *interns.Interns) *runner.Program {
	b := vm.NewCodeBuilder("<module>")
	sum := b.AddLocal("sum")
	x := b.AddLocal("x")
	fnID, _ := in.InternOrAllocateString("checkpoint")

	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(0)), 0)
	b.Emit(opcodes.OP_STORE_LOCAL, sum, 0)

	b.Emit(opcodes.OP_BUILD_LIST, 0, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(10)), 0)
	b.Emit(opcodes.OP_LIST_APPEND, 1, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(20)), 0)
	b.Emit(opcodes.OP_LIST_APPEND, 1, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.Int(30)), 0)
	b.Emit(opcodes.OP_LIST_APPEND, 1, 0)
	b.Emit(opcodes.OP_GET_ITER, 0, 0)

	loopStart := b.Here()
	forIter := b.Emit(opcodes.OP_FOR_ITER, 0, 0)
	b.Emit(opcodes.OP_STORE_LOCAL, x, 0)
	b.Emit(opcodes.OP_LOAD_LOCAL, sum, 0)
	b.Emit(opcodes.OP_LOAD_LOCAL, x, 0)
	b.Emit(opcodes.OP_BINARY_ADD, 0, 0)
	b.Emit(opcodes.OP_STORE_LOCAL, sum, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.ExternalFunctionV(fnID)), 0)
	b.Emit(opcodes.OP_LOAD_LOCAL, sum, 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 1, 0)
	b.Emit(opcodes.OP_POP_TOP, 0, 0)
	b.Emit(opcodes.OP_JUMP, uint32(loopStart), 0)
	loopEnd := b.Here()
	b.Patch(forIter, uint32(loopEnd))

	b.Emit(opcodes.OP_LOAD_LOCAL, sum, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return runner.NewProgram("<module>", b.Build(), nil, nil, in, []string{"checkpoint"}, nil)
}

// TestForIterCursorSurvivesSnapshotRoundTrip is spec §8 scenario 2 (a
// multi-iteration for loop) combined with spec §6's snapshot contract: the
// loop is paused mid-iteration, dumped, loaded into a fresh State, and must
// resume from exactly where it left off rather than restarting or skipping
// elements.
func TestForIterCursorSurvivesSnapshotRoundTrip(t *testing.T) {
	in := interns.New()
	prog := forLoopCheckpointProgram(in)
	st := runner.NewState(prog, tracker.NoLimit{}, nil)

	rp, err := st.Run()
	require.NoError(t, err)
	require.Equal(t, runner.ProgressFunctionCall, rp.Kind)
	require.Equal(t, int64(10), rp.Call.Args[0].Data.(int64))

	rp, err = st.Resolve([]scheduler.CallResult{{CallID: rp.Call.CallID, Result: vm.Return(values.None())}})
	require.NoError(t, err)
	require.Equal(t, runner.ProgressFunctionCall, rp.Kind)
	require.Equal(t, int64(30), rp.Call.Args[0].Data.(int64))
	callID := rp.Call.CallID

	data, err := st.Dump()
	require.NoError(t, err)
	loaded, err := runner.LoadState(data, prog, tracker.NoLimit{}, nil)
	require.NoError(t, err)

	rp, err = loaded.Resolve([]scheduler.CallResult{{CallID: callID, Result: vm.Return(values.None())}})
	require.NoError(t, err)
	require.Equal(t, runner.ProgressFunctionCall, rp.Kind)
	require.Equal(t, int64(60), rp.Call.Args[0].Data.(int64))

	rp, err = loaded.Resolve([]scheduler.CallResult{{CallID: rp.Call.CallID, Result: vm.Return(values.None())}})
	require.NoError(t, err)
	require.Equal(t, runner.ProgressComplete, rp.Kind)
	require.Equal(t, int64(60), rp.Result.Data.(int64))
}
