package repl

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/runner"
	"github.com/scinapse-labs/monty/scheduler"
	"github.com/scinapse-labs/monty/tracker"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// scriptName produces the synthetic per-snippet file names
// tracebacks show (spec §4.I "<python-input-0>, <python-input-1>, …").
func scriptName(n int) string { return fmt.Sprintf("<python-input-%d>", n) }

// ErrBusy mirrors runner.ErrSessionBusy: a Session may not be driven by two
// goroutines at once (spec §5's Mutex-guarded session handle, here a
// weight-1 semaphore for the same non-blocking-SessionBusy reason runner
// uses one).
var ErrBusy = runner.ErrSessionBusy

// Session is Monty's REPL (component I): a persistent heap, interns table,
// and global namespace that outlives any single snippet, fed one compiled
// snippet at a time without ever replaying an earlier one (spec §4.I).
//
// Unlike runner.State, a Session's VM, Functions, and Classes tables are
// never torn down between snippets — only the per-snippet call stack
// (scheduler + suspension bookkeeping) is fresh each time, exactly the way
// a real Python REPL keeps one interpreter alive across input() prompts.
type Session struct {
	ID uuid.UUID

	compiler Compiler
	machine  *vm.VM
	diag     *tracker.Diagnostics
	busy     *semaphore.Weighted

	mu           sync.Mutex
	snippetCount int

	// sch/pending/issued describe the snippet currently in flight; nil/empty
	// between Feed/Start calls once a snippet has run to completion.
	sch     *scheduler.Scheduler
	pending map[uint32]*vm.Suspension
	issued  map[uint32]bool
}

// New starts a fresh session: an empty heap, an empty Interns table, and an
// empty global namespace (spec §4.I — unlike Program.start, there is no
// compiled literal pool to seed Interns from, since nothing has been
// compiled yet).
func New(compiler Compiler, trk tracker.Tracker, print *vm.PrintWriter) *Session {
	h := heap.New()
	in := interns.New()

	machine := vm.New(h, in)
	machine.Print = print
	if trk != nil {
		machine.Admission = trk
		machine.Tracker = trk
	}

	return &Session{
		ID:       uuid.New(),
		compiler: compiler,
		machine:  machine,
		diag:     &tracker.Diagnostics{},
		busy:     semaphore.NewWeighted(1),
	}
}

func (s *Session) lock() bool { return s.busy.TryAcquire(1) }
func (s *Session) unlock()    { s.busy.Release(1) }

// NextScriptName previews the file name the next Feed/Start call will
// assign, without consuming the counter — useful for a host-side prompt
// that wants to show it ahead of time.
func (s *Session) NextScriptName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scriptName(s.snippetCount)
}

// compileSnippet advances the snippet counter and compiles source against
// the session's current Functions/Classes id space.
func (s *Session) compileSnippet(source string) (*CompiledSnippet, string, error) {
	s.mu.Lock()
	name := scriptName(s.snippetCount)
	s.snippetCount++
	s.mu.Unlock()

	snip, err := s.compiler.Compile(source, name, uint32(len(s.machine.Functions)), uint32(len(s.machine.Classes)))
	if err != nil {
		return nil, name, err
	}
	return snip, name, nil
}

// install appends a compiled snippet's new function/class definitions to
// the session's tables. Because vm.Namespace.Set/the global-by-name
// dispatch in dispatch.go always resolve a name at call time rather than
// through a cached Value, a redefinition (Session.install called again with
// the same def name bound to a new, higher function id) is automatically
// picked up by every existing caller (spec §4.I "existing callers... pick
// up the new definition automatically").
func (s *Session) install(snip *CompiledSnippet) {
	s.machine.Functions = append(s.machine.Functions, snip.Functions...)
	s.machine.Classes = append(s.machine.Classes, snip.Classes...)
}

func (s *Session) allTaskRoots() []heap.Ref {
	if s.sch == nil {
		return nil
	}
	var roots []heap.Ref
	for id := uint32(0); id < uint32(s.sch.TaskCount()); id++ {
		if t, ok := s.sch.Task(id); ok {
			roots = append(roots, vm.FrameRoots(t.Stack)...)
		}
	}
	return roots
}

func (s *Session) recordSuspension(susp *vm.Suspension) {
	if susp == nil || susp.Kind == vm.SuspendGather {
		return
	}
	s.pending[susp.CallID] = susp
	s.issued[susp.CallID] = true
}

func (s *Session) stepFunc(stack []*vm.Frame) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame) {
	s.machine.ExtraRoots = s.allTaskRoots()
	val, exc, susp, rest := s.machine.RunOn(stack)
	s.recordSuspension(susp)
	return val, exc, susp, rest
}

func (s *Session) resumeFunc(stack []*vm.Frame, result vm.ExternalResult) (values.Value, *values.ExceptionPayload, *vm.Suspension, []*vm.Frame) {
	s.machine.ExtraRoots = s.allTaskRoots()
	val, exc, susp, rest := s.machine.Resume(stack, result)
	s.recordSuspension(susp)
	return val, exc, susp, rest
}

func (s *Session) spawnFunc(funcID uint32, args []values.Value, kwargs map[string]values.Value) ([]*vm.Frame, *values.ExceptionPayload) {
	return s.machine.SpawnTaskFrame(funcID, args, kwargs)
}

// Feed compiles and runs one snippet to completion (spec §4.I, §6
// "Repl.feed") — the direct, non-yielding path. It is only valid when the
// snippet neither awaits nor calls an external function; a snippet that
// suspends returns a non-nil error (use Start instead).
//
// A snippet that raises mid-way does not roll back: every assignment and
// definition executed before the raise remains bound in the session's
// global namespace and heap, exactly as CPython's REPL behaves after an
// uncaught exception (spec §4.I, §8 scenario 7).
func (s *Session) Feed(source string) (values.Value, *values.ExceptionPayload, error) {
	prog, err := s.Start(source)
	if err != nil {
		return values.Value{}, nil, err
	}
	if prog.Kind != runner.ProgressComplete {
		return values.Value{}, nil, fmt.Errorf("repl: snippet suspended (kind=%d); use Start/Run/Resolve for a yielding session", prog.Kind)
	}
	return prog.Result, prog.Err, nil
}

// Start compiles source, runs it as a fresh top-level frame against the
// session's persistent heap/globals, and returns the first RunProgress
// (spec §4.I, §6 "Repl.start"). If the snippet suspends, the session stays
// "in flight" on that snippet until Run/Resolve eventually completes it —
// Start must not be called again until then.
func (s *Session) Start(source string) (*runner.RunProgress, error) {
	if !s.lock() {
		return nil, ErrBusy
	}
	defer s.unlock()

	snip, _, err := s.compileSnippet(source)
	if err != nil {
		return nil, err
	}
	s.install(snip)

	top := vm.NewFrame(s.machine.Heap, snip.Code, nil, nil)
	s.sch = scheduler.New([]*vm.Frame{top})
	s.pending = make(map[uint32]*vm.Suspension)
	s.issued = make(map[uint32]bool)

	s.sch.Drive(s.stepFunc, s.resumeFunc, s.machine.Heap, s.spawnFunc)
	return s.buildProgress(), nil
}

// Run re-drains the current in-flight snippet's scheduler without supplying
// new host input, mirroring runner.State.Run/RunPending.
func (s *Session) Run() (*runner.RunProgress, error) {
	if !s.lock() {
		return nil, ErrBusy
	}
	defer s.unlock()
	if s.sch == nil {
		return nil, fmt.Errorf("repl: no snippet in flight")
	}
	s.sch.Drive(s.stepFunc, s.resumeFunc, s.machine.Heap, s.spawnFunc)
	return s.buildProgress(), nil
}

// Resolve answers pending external/OS calls for the snippet currently in
// flight (spec §4.G, §6 "Repl.resume" for the async-yielding path).
func (s *Session) Resolve(results []scheduler.CallResult) (*runner.RunProgress, error) {
	if !s.lock() {
		return nil, ErrBusy
	}
	defer s.unlock()
	if s.sch == nil {
		return nil, fmt.Errorf("repl: no snippet in flight")
	}

	for _, r := range results {
		if !s.issued[r.CallID] {
			return nil, fmt.Errorf("repl: unknown call id %d", r.CallID)
		}
	}
	var live []scheduler.CallResult
	for _, r := range results {
		if _, ok := s.pending[r.CallID]; ok {
			delete(s.pending, r.CallID)
			live = append(live, r)
		}
	}

	if err := s.sch.Resolve(live, s.stepFunc, s.resumeFunc, s.machine.Heap, s.spawnFunc); err != nil {
		return nil, err
	}
	return s.buildProgress(), nil
}

// buildProgress mirrors runner's buildProgress (unexported there), adapted
// to a single always-task-0 scheduler since a Session only ever runs one
// snippet's task tree at a time.
func (s *Session) buildProgress() *runner.RunProgress {
	root, _ := s.sch.Task(0)
	if root != nil && (root.Status == scheduler.TaskCompleted || root.Status == scheduler.TaskFailed) {
		s.sch = nil // snippet finished; session is idle again
		if root.Status == scheduler.TaskFailed {
			return &runner.RunProgress{Kind: runner.ProgressComplete, Err: root.Err}
		}
		return &runner.RunProgress{Kind: runner.ProgressComplete, Result: root.Result}
	}

	ids := s.sch.PendingCallIDs()
	if len(ids) == 1 && s.sch.TaskCount() == 1 {
		if susp, ok := s.pending[ids[0]]; ok && susp.Kind != vm.SuspendAwait {
			call := pendingCallFrom(susp)
			if susp.Kind == vm.SuspendOsCall {
				return &runner.RunProgress{
					Kind:    runner.ProgressOsCall,
					OsCall:  &runner.PendingOsCall{PendingCall: call, OsKind: runner.OsKindLabel(susp.OsKind.String())},
					Pending: []runner.PendingCall{call},
				}
			}
			return &runner.RunProgress{Kind: runner.ProgressFunctionCall, Call: &call, Pending: []runner.PendingCall{call}}
		}
	}

	pending := make([]runner.PendingCall, 0, len(ids))
	for _, id := range ids {
		if susp, ok := s.pending[id]; ok {
			pending = append(pending, pendingCallFrom(susp))
		}
	}
	return &runner.RunProgress{Kind: runner.ProgressResolveFutures, Pending: pending}
}

func pendingCallFrom(susp *vm.Suspension) runner.PendingCall {
	return runner.PendingCall{
		CallID:     susp.CallID,
		Name:       susp.Name,
		Args:       susp.Args,
		Kwargs:     susp.Kwargs,
		MethodCall: susp.MethodCall,
		Receiver:   susp.Receiver,
	}
}

// Diagnostics exposes the session's step/GC counters (spec §4.E).
func (s *Session) Diagnostics() *tracker.Diagnostics { return s.diag }

// Globals lists every name currently bound in the session's persistent
// module namespace, for a host-side introspection command (e.g. a REPL
// `%who` or `dir()`-at-top-level helper) — not part of the core protocol.
func (s *Session) Globals() []string { return s.machine.Globals.Names() }

// Interns exposes the session's persistent intern tables so a real
// compiler front end can intern string/bytes/long-int literals against the
// same table the VM reads from, rather than maintaining its own (spec §4.A
// "the compiler populates these tables").
func (s *Session) Interns() *interns.Interns { return s.machine.Interns }

// Env exposes the heap/interns pair a host needs to render a snippet's
// result with values.Env.PyRepr/PyStr, the same accessor runner.State
// offers for the same reason.
func (s *Session) Env() values.Env { return values.Env{Heap: s.machine.Heap, Interns: s.machine.Interns} }
