package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/scheduler"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// rootStack builds a root task's lone frame; the fake step function below
// tells it apart from spawned children by its FunctionName ("root") —
// standing in for the real vm.VM.Run/Resume this package normally drives.
func rootStack(name string) []*vm.Frame { return []*vm.Frame{{FunctionName: name}} }

// childBehavior describes how a spawned child task's single step resolves:
// either a successful return value or a failure.
type childBehavior struct {
	value int64
	fail  bool
}

// newGatherHarness builds step/resume/spawn callbacks for a scheduler test
// where task 0 immediately gathers len(behaviors) coroutines, and each
// spawned child resolves on its very first step per its behavior entry
// (indexed by the coroutine's FuncID).
func newGatherHarness(h *heap.Heap, gatherRef values.Value, behaviors []childBehavior) (scheduler.StepFunc, scheduler.ResumeFunc, scheduler.SpawnFunc) {
	step := func(stack []*vm.Frame) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame) {
		name := stack[0].FunctionName
		if name == "root" {
			return values.Value{}, nil, &vm.Suspension{Kind: vm.SuspendGather, Value: gatherRef}, stack
		}
		// A spawned child: its frame's PC carries its behavior index (the
		// spawn callback sets it from the coroutine's FuncID).
		idx := int(stack[0].PC)
		b := behaviors[idx]
		if b.fail {
			return values.Value{}, values.NewException(values.ExcValueError, nil), nil, stack
		}
		return values.Int(b.value), nil, nil, stack
	}
	resume := func(stack []*vm.Frame, result vm.ExternalResult) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame) {
		// Root task resuming after the gather resolves: just complete with
		// whatever the scheduler assembled.
		if result.Kind == vm.ExtError {
			return values.Value{}, result.Err, nil, stack
		}
		return result.Value, nil, nil, stack
	}
	spawn := func(funcID uint32, args []values.Value, kwargs map[string]values.Value) ([]*vm.Frame, *values.ExceptionPayload) {
		return []*vm.Frame{{FunctionName: "child", PC: int(funcID)}}, nil
	}
	return step, resume, spawn
}

func makeGather(t *testing.T, h *heap.Heap, n int) values.Value {
	t.Helper()
	children := make([]values.Value, n)
	for i := 0; i < n; i++ {
		ref, err := h.Allocate(values.NewCoroutine(uint32(i), nil, nil), nil)
		require.NoError(t, err)
		children[i] = values.RefV(ref)
	}
	ref, err := h.Allocate(values.NewGather(children), nil)
	require.NoError(t, err)
	return values.RefV(ref)
}

// TestGatherResultOrderIsSourceOrder is spec §8 "gather result order":
// regardless of which child the scheduler happens to resolve first (here,
// insertion order into the ready queue), the assembled tuple's slots follow
// source order.
func TestGatherResultOrderIsSourceOrder(t *testing.T) {
	h := heap.New()
	gatherRef := makeGather(t, h, 3)
	behaviors := []childBehavior{{value: 10}, {value: 20}, {value: 30}}

	s := scheduler.New(rootStack("root"))
	step, resume, spawn := newGatherHarness(h, gatherRef, behaviors)
	s.Drive(step, resume, h, spawn)

	root := s.RootTask()
	require.Equal(t, scheduler.TaskCompleted, root.Status)
	tup, ok := h.Get(root.Result.Ref()).(*values.TuplePayload)
	require.True(t, ok)
	require.Equal(t, []int64{10, 20, 30}, intsOf(tup.Elems))
}

// TestGatherFirstFailureWins is spec §8 "First-failure-wins": when the
// second child fails, the parent task fails with that error.
func TestGatherFirstFailureWins(t *testing.T) {
	h := heap.New()
	gatherRef := makeGather(t, h, 3)
	behaviors := []childBehavior{{value: 1}, {fail: true}, {value: 3}}

	s := scheduler.New(rootStack("root"))
	step, resume, spawn := newGatherHarness(h, gatherRef, behaviors)
	s.Drive(step, resume, h, spawn)

	root := s.RootTask()
	require.Equal(t, scheduler.TaskFailed, root.Status)
	require.NotNil(t, root.Err)
	require.Equal(t, values.ExcValueError, root.Err.Kind)
}

// TestResolveRejectsUnknownCallID is spec §8 "Unknown-id rejection": an
// unrecognized call id must error without mutating the pending set.
func TestResolveRejectsUnknownCallID(t *testing.T) {
	h := heap.New()
	s := scheduler.New(rootStack("root"))

	step := func(stack []*vm.Frame) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame) {
		return values.Value{}, nil, &vm.Suspension{Kind: vm.SuspendFunctionCall, CallID: 1, Name: "lookup"}, stack
	}
	resume := func(stack []*vm.Frame, result vm.ExternalResult) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame) {
		return result.Value, nil, nil, stack
	}
	spawn := func(uint32, []values.Value, map[string]values.Value) ([]*vm.Frame, *values.ExceptionPayload) {
		return nil, nil
	}
	s.Drive(step, resume, h, spawn)

	before := s.PendingCallIDs()
	err := s.Resolve([]scheduler.CallResult{{CallID: 9999, Result: vm.Return(values.Int(1))}}, step, resume, h, spawn)
	require.Error(t, err)
	require.Contains(t, err.Error(), "9999")
	require.Equal(t, before, s.PendingCallIDs(), "rejecting an unknown id must not mutate the waiter set")
}

func intsOf(vs []values.Value) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = v.Data.(int64)
	}
	return out
}
