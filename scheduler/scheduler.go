// Package scheduler implements Monty's cooperative async scheduler
// (component G): a task table, a FIFO ready queue, a gather waiter graph,
// and the future-id-to-task-slot waiter map that lets a host resolve
// external futures incrementally and in any order (spec §4.G).
//
// The scheduler never runs bytecode itself — it drives a *vm.VM across many
// independent call stacks ("tasks"), one instruction-stream at a time,
// exactly the way a bare single-task runner drives the one top-level call
// stack. Task 0 always exists and is the program's top-level execution, so
// a plain, non-async script is simply "a scheduler with one task that never
// gathers" — this keeps the runner's resume path uniform instead of forking
// into a sync path and a separate async path (spec §9 "No hidden global
// event loop").
package scheduler

import (
	"fmt"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// TaskStatus is a task's progress, tracked for O(1) resumption (spec §4.G
// "task bookkeeping").
type TaskStatus byte

const (
	TaskRunning TaskStatus = iota
	TaskWaiting
	TaskCompleted
	TaskFailed
)

// GatherNode is the fan-in join record for one `asyncio.gather(...)` call
// (or a bare `await <coroutine>`, modeled as a one-child gather so both
// share the same completion/cancellation machinery).
type GatherNode struct {
	Parent    uint32
	Slots     []values.Value
	Remaining int
	Failed    bool
	Err       *values.ExceptionPayload
	ChildIDs  []uint32
	// Unwrap is true for a bare await: the parent receives Slots[0]
	// directly rather than a 1-tuple (gather's own N-tuple result only
	// applies to a real `asyncio.gather` call, spec §9).
	Unwrap bool
}

// Task is one entry of the task table: its own call stack, progress, and
// (once resolved) result.
type Task struct {
	ID     uint32
	Stack  []*vm.Frame
	Status TaskStatus
	Result values.Value
	Err    *values.ExceptionPayload

	// Join is set when this task's completion must feed a GatherNode rather
	// than be reported to the host directly (every task except task 0).
	Join     *GatherNode
	JoinSlot int
}

type waiterEntry struct {
	TaskID uint32
}

// readyItem is one entry of the ready queue: either a task's very first
// step (Result == nil) or a continuation after an external/gather result
// became available (Result != nil, delivered through vm.Resume).
type readyItem struct {
	TaskID uint32
	Result *vm.ExternalResult
}

// Scheduler owns every task in one session. It is never shared between
// sessions (spec §5 "nothing is shared between sessions").
type Scheduler struct {
	tasks      map[uint32]*Task
	ready      []readyItem
	waiters    map[uint32]waiterEntry // external call id -> task awaiting it
	nextTaskID uint32
}

// New constructs a scheduler with task 0 already present, running stack as
// its initial call stack (the program's top-level frame).
func New(initialStack []*vm.Frame) *Scheduler {
	s := &Scheduler{
		tasks:   make(map[uint32]*Task),
		waiters: make(map[uint32]waiterEntry),
	}
	root := &Task{ID: 0, Stack: initialStack, Status: TaskRunning}
	s.tasks[0] = root
	s.ready = append(s.ready, readyItem{TaskID: 0})
	s.nextTaskID = 1
	return s
}

// RootTask returns task 0, the program's top-level execution.
func (s *Scheduler) RootTask() *Task { return s.tasks[0] }

// Task looks up a task by id, mainly for tests and diagnostics.
func (s *Scheduler) Task(id uint32) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// TaskCount reports how many tasks have ever been spawned, including task
// 0. The runner uses this to decide whether a lone pending call id still
// qualifies as a direct FunctionCall/OsCall resume (spec §6) or must be
// reported through the futures protocol instead (see DESIGN.md's
// resolution of this ambiguity).
func (s *Scheduler) TaskCount() int { return len(s.tasks) }

// PendingCallIDs reports every external call id the host could resolve
// right now, in ascending order for determinism.
func (s *Scheduler) PendingCallIDs() []uint32 {
	ids := make([]uint32, 0, len(s.waiters))
	for id := range s.waiters {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// Idle reports whether the scheduler cannot make further progress without
// host input — every task is either completed/failed or parked on a waiter
// (spec §4.H suspension points: the runner stops draining here).
func (s *Scheduler) Idle() bool { return len(s.ready) == 0 }

// StepFunc advances a task's call stack from a fresh instruction (its first
// run, or the first run of a newly-spawned child task).
type StepFunc func(stack []*vm.Frame) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame)

// ResumeFunc continues a previously suspended call stack with a host- or
// scheduler-supplied result (spec §4.H "state.run"/"state.resume").
type ResumeFunc func(stack []*vm.Frame, result vm.ExternalResult) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame)

// SpawnFunc builds the initial call stack for a new task from a coroutine's
// bound function id/args/kwargs (vm.VM.SpawnTaskFrame).
type SpawnFunc func(funcID uint32, args []values.Value, kwargs map[string]values.Value) ([]*vm.Frame, *values.ExceptionPayload)

// Drive runs every ready task until the ready queue is empty — each task
// advances exactly one "instruction-stream segment" at a time (spec §5
// "Ordering": FIFO, any interleaving consistent with that is permitted).
func (s *Scheduler) Drive(step StepFunc, resume ResumeFunc, h *heap.Heap, spawn SpawnFunc) {
	for len(s.ready) > 0 {
		item := s.ready[0]
		s.ready = s.ready[1:]
		t := s.tasks[item.TaskID]
		if t == nil || t.Status != TaskRunning {
			continue
		}

		var val values.Value
		var exc *values.ExceptionPayload
		var susp *vm.Suspension
		var rest []*vm.Frame
		if item.Result != nil {
			val, exc, susp, rest = resume(t.Stack, *item.Result)
		} else {
			val, exc, susp, rest = step(t.Stack)
		}
		t.Stack = rest

		switch {
		case susp != nil && susp.Kind == vm.SuspendGather:
			s.spawnFromAwaited(t, susp, h, spawn)
		case susp != nil:
			s.waiters[susp.CallID] = waiterEntry{TaskID: t.ID}
			t.Status = TaskWaiting
		case exc != nil:
			s.completeTask(t, values.Value{}, exc, h)
		default:
			s.completeTask(t, val, nil, h)
		}
	}
}

// Resolve delivers host-supplied results for a subset of pending call ids
// (spec §4.G "Incremental future resolution" — the host may resume with any
// subset, including empty) and drains the scheduler the same way Drive
// does. An unknown call id is rejected without mutating any state (spec §8
// "Unknown-id rejection").
func (s *Scheduler) Resolve(results []CallResult, step StepFunc, resume ResumeFunc, h *heap.Heap, spawn SpawnFunc) error {
	for _, r := range results {
		if _, ok := s.waiters[r.CallID]; !ok {
			return fmt.Errorf("unknown call id %d", r.CallID)
		}
	}
	for _, r := range results {
		w := s.waiters[r.CallID]
		delete(s.waiters, r.CallID)
		t := s.tasks[w.TaskID]
		if t == nil {
			continue
		}
		t.Status = TaskRunning
		res := r.Result
		s.ready = append(s.ready, readyItem{TaskID: t.ID, Result: &res})
	}
	s.Drive(step, resume, h, spawn)
	return nil
}

// CallResult pairs a pending call id with the host's answer for it.
type CallResult struct {
	CallID uint32
	Result vm.ExternalResult
}

// spawnFromAwaited expands a SuspendGather suspension (a coroutine or a
// gather() result) into one or more freshly spawned child tasks, parking
// the awaiting task on the resulting join node.
func (s *Scheduler) spawnFromAwaited(parent *Task, susp *vm.Suspension, h *heap.Heap, spawn SpawnFunc) {
	awaited := susp.Value
	if awaited.Type != values.TypeRef {
		s.completeTask(parent, values.Value{}, values.NewException(values.ExcTypeError, nil), h)
		return
	}

	var coroRefs []values.Value
	unwrap := false
	switch p := h.Get(awaited.Ref()).(type) {
	case *values.GatherPayload:
		coroRefs = append([]values.Value(nil), p.Children...)
		p.Children = nil
	case *values.CoroutinePayload:
		coroRefs = []values.Value{awaited}
		unwrap = true
	default:
		s.completeTask(parent, values.Value{}, values.NewException(values.ExcTypeError, nil), h)
		return
	}

	node := &GatherNode{
		Parent:    parent.ID,
		Slots:     make([]values.Value, len(coroRefs)),
		Remaining: len(coroRefs),
		Unwrap:    unwrap,
	}
	parent.Status = TaskWaiting

	// A failure discovered while spawning (an already-started coroutine, or
	// spawn itself erroring) stops the loop immediately rather than limping
	// through the rest of coroRefs: nothing spawned after the failure would
	// ever have its completeTask call counted (node.Failed short-circuits
	// it), so continuing to decrement Remaining here would just reproduce
	// the same "Remaining never reaches zero" deadlock completeTask itself
	// had to be fixed for.
	for i, cref := range coroRefs {
		coro, ok := h.Get(cref.Ref()).(*values.CoroutinePayload)
		if !ok || coro.Started {
			node.Failed = true
			node.Err = values.NewException(values.ExcRuntimeError, nil)
			break
		}
		coro.Started = true
		funcID, args, kwargs := coro.FuncID, coro.Args, coro.Kwargs
		coro.Args, coro.Kwargs = nil, nil
		h.DecRef(cref.Ref())

		stack, serr := spawn(funcID, args, kwargs)
		if serr != nil {
			node.Failed = true
			node.Err = serr
			break
		}
		childID := s.nextTaskID
		s.nextTaskID++
		child := &Task{ID: childID, Stack: stack, Status: TaskRunning, Join: node, JoinSlot: i}
		s.tasks[childID] = child
		node.ChildIDs = append(node.ChildIDs, childID)
		s.ready = append(s.ready, readyItem{TaskID: childID})
	}

	if !unwrap {
		h.DecRef(awaited.Ref())
	}

	if node.Failed {
		// 0 never names a real child task id (task ids start at 1), so this
		// cancels every child already spawned above without excluding any
		// of them.
		s.cancelSiblings(node, 0)
		s.resolveNode(node, h)
		return
	}
	if node.Remaining == 0 {
		s.resolveNode(node, h)
	}
}

// completeTask records a task's terminal outcome and, if it was feeding a
// GatherNode, propagates into the join (spec "first-failure-wins", "gather
// result order: independent of resolution order, results occupy
// source-order slots"). A failing child resolves the node immediately
// rather than waiting for Remaining to drain: cancelSiblings marks every
// other still-pending child TaskFailed without ever running it through
// completeTask again, so waiting on Remaining to reach zero would deadlock
// the parent whenever the failing child isn't the last one to report in.
func (s *Scheduler) completeTask(t *Task, val values.Value, exc *values.ExceptionPayload, h *heap.Heap) {
	if exc != nil {
		t.Status = TaskFailed
		t.Err = exc
	} else {
		t.Status = TaskCompleted
		t.Result = val
	}

	node := t.Join
	if node == nil {
		return // task 0: the runner reads Result/Err directly
	}
	if node.Failed {
		// The node already resolved off an earlier sibling's failure; this
		// report no longer matters.
		return
	}
	if exc != nil {
		node.Failed = true
		node.Err = exc
		s.cancelSiblings(node, t.ID)
		s.resolveNode(node, h)
		return
	}
	node.Slots[t.JoinSlot] = val
	node.Remaining--
	if node.Remaining <= 0 {
		s.resolveNode(node, h)
	}
}

// cancelSiblings drops every other pending call id feeding node once one
// child has failed (spec §4.G "the other children are cancelled... pending
// external call ids are dropped from the waiter map").
func (s *Scheduler) cancelSiblings(node *GatherNode, failedChild uint32) {
	for _, cid := range node.ChildIDs {
		if cid == failedChild {
			continue
		}
		ct, ok := s.tasks[cid]
		if !ok || ct.Status == TaskCompleted || ct.Status == TaskFailed {
			continue
		}
		for callID, w := range s.waiters {
			if w.TaskID == cid {
				delete(s.waiters, callID)
			}
		}
		ct.Status = TaskFailed
	}
}

// resolveNode re-enqueues node's parent task once every child has reported
// in, delivering the assembled result (or the first failure) as the
// ExternalResult the parent's YIELD_FROM_AWAIT suspension resumes with.
func (s *Scheduler) resolveNode(node *GatherNode, h *heap.Heap) {
	parent := s.tasks[node.Parent]
	if parent == nil {
		return
	}
	parent.Status = TaskRunning

	var res vm.ExternalResult
	switch {
	case node.Failed:
		res = vm.Error(node.Err)
	case node.Unwrap:
		res = vm.Return(node.Slots[0])
	default:
		ref, err := h.Allocate(values.NewTuple(node.Slots), nil)
		if err != nil {
			res = vm.Error(values.NewException(values.ExcRuntimeError, nil))
		} else {
			res = vm.Return(values.RefV(ref))
		}
	}
	s.ready = append(s.ready, readyItem{TaskID: parent.ID, Result: &res})
}
