package runner

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/scheduler"
	"github.com/scinapse-labs/monty/tracker"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// State is one running session: a VM bound to its own heap/interns/globals,
// the cooperative scheduler driving every task, and the host-call
// bookkeeping the scheduler itself doesn't retain (spec §4.H "state").
//
// A State is never driven by two goroutines at once — Run/Resolve take a
// session-wide semaphore and return ErrSessionBusy on contention rather than
// blocking, matching the single-threaded-and-cooperative design (spec §5).
type State struct {
	ID uuid.UUID

	prog *Program
	vm   *vm.VM
	sch  *scheduler.Scheduler
	diag *tracker.Diagnostics

	busy *semaphore.Weighted

	// pending/issued track per-call-id Suspension metadata the scheduler
	// itself discards once a call is answered: pending holds every call id
	// currently awaiting a host answer, issued additionally remembers every
	// id ever handed out so Resolve can distinguish "never issued" (reject)
	// from "issued, already answered" (silently ignore) per spec §4.G/§8.
	mu      sync.Mutex
	pending map[uint32]*vm.Suspension
	issued  map[uint32]bool
}

// NewState starts a fresh session from prog: a new heap, an Interns table
// cloned from the program's compiled literal pool, a fresh global namespace,
// and task 0 running the program's top-level code object from the first
// instruction (spec §4.H "Program.start").
func NewState(prog *Program, trk tracker.Tracker, print *vm.PrintWriter) *State {
	h := heap.New()
	in := interns.Load(prog.TemplateInterns.Dump())

	machine := vm.New(h, in)
	machine.Functions = prog.Functions
	machine.Classes = prog.Classes
	machine.Print = print
	if trk != nil {
		machine.Admission = trk
		machine.Tracker = trk
	}

	topFrame := vm.NewFrame(h, prog.TopLevel, nil, nil)
	sch := scheduler.New([]*vm.Frame{topFrame})

	return &State{
		ID:      uuid.New(),
		prog:    prog,
		vm:      machine,
		sch:     sch,
		diag:    &tracker.Diagnostics{},
		busy:    semaphore.NewWeighted(1),
		pending: make(map[uint32]*vm.Suspension),
		issued:  make(map[uint32]bool),
	}
}

func (s *State) lock() bool { return s.busy.TryAcquire(1) }
func (s *State) unlock()    { s.busy.Release(1) }

// allTaskRoots collects GC roots across every task's call stack, live or
// parked. It is deliberately not narrowed to "every task except the one
// currently executing" — the scheduler's StepFunc/ResumeFunc signatures
// don't carry a task id, so there is no cheap way to exclude just one task
// from here. Including the executing task's own stack twice (once via
// vm.CallStack, once via ExtraRoots) is harmless, just redundant (spec
// §4.G, see vm.FrameRoots).
func (s *State) allTaskRoots() []heap.Ref {
	var roots []heap.Ref
	for id := uint32(0); id < uint32(s.sch.TaskCount()); id++ {
		if t, ok := s.sch.Task(id); ok {
			roots = append(roots, vm.FrameRoots(t.Stack)...)
		}
	}
	return roots
}

func (s *State) spawnFunc(funcID uint32, args []values.Value, kwargs map[string]values.Value) ([]*vm.Frame, *values.ExceptionPayload) {
	return s.vm.SpawnTaskFrame(funcID, args, kwargs)
}

func (s *State) recordSuspension(susp *vm.Suspension) {
	if susp == nil || susp.Kind == vm.SuspendGather {
		return
	}
	s.mu.Lock()
	s.pending[susp.CallID] = susp
	s.issued[susp.CallID] = true
	s.mu.Unlock()
}

func (s *State) stepFunc(stack []*vm.Frame) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame) {
	s.vm.ExtraRoots = s.allTaskRoots()
	val, exc, susp, rest := s.vm.RunOn(stack)
	s.recordSuspension(susp)
	return val, exc, susp, rest
}

func (s *State) resumeFunc(stack []*vm.Frame, result vm.ExternalResult) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame) {
	s.vm.ExtraRoots = s.allTaskRoots()
	val, exc, susp, rest := s.vm.Resume(stack, result)
	s.recordSuspension(susp)
	return val, exc, susp, rest
}

// drainOnce runs the scheduler's ready queue to exhaustion, the common tail
// of both Run and Resolve.
func (s *State) drainOnce() {
	s.sch.Drive(s.stepFunc, s.resumeFunc, s.vm.Heap, s.spawnFunc)
}

// Run drains the scheduler as far as it can go from its current state
// without further host input, returning the resulting RunProgress (spec
// §4.H "state.run"). Call this once after NewState to actually start the
// program; every subsequent call (with no Resolve in between) is a no-op
// that simply re-reports the same progress, since the scheduler has nothing
// new to do.
func (s *State) Run() (*RunProgress, error) {
	if !s.lock() {
		return nil, ErrSessionBusy
	}
	defer s.unlock()

	s.drainOnce()
	return s.buildProgress(), nil
}

// RunPending re-drains the scheduler without supplying any new host input.
// This is the operation a freshly loaded session uses to pick up exactly
// where a dump left off (spec §6 "state.run_pending") — it happens to share
// Run's implementation, since a no-op drain with nothing new to do is
// already what a second bare Run call does.
func (s *State) RunPending() (*RunProgress, error) {
	return s.Run()
}

// Resolve answers a subset of currently pending call ids (spec §4.G
// "Incremental future resolution") and drains the scheduler again. Every id
// in results must have been issued at some point; an id that was never
// issued is rejected with no state mutated (spec §8 "Unknown-id rejection").
// An id that was issued but already consumed (e.g. answered twice, or
// answered after a sibling gather failure already cancelled it) is silently
// dropped rather than erroring — the scheduler's own waiter map can't tell
// the two cases apart, so State keeps its own issued/pending bookkeeping to
// do so.
func (s *State) Resolve(results []scheduler.CallResult) (*RunProgress, error) {
	if !s.lock() {
		return nil, ErrSessionBusy
	}
	defer s.unlock()

	s.mu.Lock()
	for _, r := range results {
		if !s.issued[r.CallID] {
			s.mu.Unlock()
			return nil, errUnknownCallID(r.CallID)
		}
	}
	var live []scheduler.CallResult
	for _, r := range results {
		if _, ok := s.pending[r.CallID]; ok {
			delete(s.pending, r.CallID)
			live = append(live, r)
		}
	}
	s.mu.Unlock()

	if err := s.sch.Resolve(live, s.stepFunc, s.resumeFunc, s.vm.Heap, s.spawnFunc); err != nil {
		return nil, err
	}
	return s.buildProgress(), nil
}

// Diagnostics exposes the session's step/GC counters (spec §4.E reporting).
func (s *State) Diagnostics() *tracker.Diagnostics { return s.diag }

// Env exposes the heap/interns pair a host needs to render a Value with
// values.Env.PyRepr/PyStr once a RunProgress reports one (e.g. the
// top-level result on ProgressComplete) — State itself never needs to
// stringify anything, so nothing else in this package uses Env.
func (s *State) Env() values.Env { return values.Env{Heap: s.vm.Heap, Interns: s.vm.Interns} }
