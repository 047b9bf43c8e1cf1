package runner

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/scheduler"
	"github.com/scinapse-labs/monty/tracker"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// dumpNamespace/loadNamespace round-trip a global namespace through its
// exported Names/Get/Set surface — vm.Namespace keeps its variable table
// private, so this package never touches it directly (spec §6 "the global
// namespace").  Names are written in sorted order purely for byte-stable
// output; Namespace itself has no ordering of its own.
func dumpNamespace(e *encoder, ns *vm.Namespace) {
	names := ns.Names()
	sort.Strings(names)
	e.uvarint(uint64(len(names)))
	for _, name := range names {
		v, _ := ns.Get(name)
		e.str(name)
		dumpValue(e, v)
	}
}

func loadNamespace(d *decoder) (*vm.Namespace, error) {
	ns := vm.NewNamespace()
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		name, err := d.str()
		if err != nil {
			return nil, err
		}
		v, err := loadValue(d)
		if err != nil {
			return nil, err
		}
		ns.Set(name, v)
	}
	return ns, nil
}

// dumpKwargs/loadKwargs round-trip a call's keyword-argument map. Keys are
// sorted for byte-stable output; map iteration order is otherwise
// unspecified in Go.
func dumpKwargs(e *encoder, kwargs map[string]values.Value) {
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.uvarint(uint64(len(keys)))
	for _, k := range keys {
		e.str(k)
		dumpValue(e, kwargs[k])
	}
}

func loadKwargs(d *decoder) (map[string]values.Value, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make(map[string]values.Value, n)
	for i := uint64(0); i < n; i++ {
		k, err := d.str()
		if err != nil {
			return nil, err
		}
		v, err := loadValue(d)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func dumpException(e *encoder, exc *values.ExceptionPayload) {
	e.bool_(exc != nil)
	if exc == nil {
		return
	}
	e.byte_(byte(exc.Kind))
	dumpValueSlice(e, exc.Args)
	e.uvarint(uint64(len(exc.Traceback)))
	for _, fr := range exc.Traceback {
		e.str(fr.FunctionName)
		e.varint(int64(fr.Line))
	}
	dumpValue(e, exc.Cause)
}

func loadException(d *decoder) (*values.ExceptionPayload, error) {
	has, err := d.bool_()
	if err != nil || !has {
		return nil, err
	}
	kind, err := d.byte_()
	if err != nil {
		return nil, err
	}
	args, err := loadValueSlice(d)
	if err != nil {
		return nil, err
	}
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	tb := make([]values.ExceptionFrame, n)
	for i := range tb {
		fn, err := d.str()
		if err != nil {
			return nil, err
		}
		line, err := d.varint()
		if err != nil {
			return nil, err
		}
		tb[i] = values.ExceptionFrame{FunctionName: fn, Line: int(line)}
	}
	cause, err := loadValue(d)
	if err != nil {
		return nil, err
	}
	return &values.ExceptionPayload{Kind: values.ExcKind(kind), Args: args, Traceback: tb, Cause: cause}, nil
}

func dumpExternalResult(e *encoder, r vm.ExternalResult) {
	e.byte_(byte(r.Kind))
	switch r.Kind {
	case vm.ExtReturn:
		dumpValue(e, r.Value)
	case vm.ExtError:
		dumpException(e, r.Err)
	}
}

func loadExternalResult(d *decoder) (vm.ExternalResult, error) {
	kind, err := d.byte_()
	if err != nil {
		return vm.ExternalResult{}, err
	}
	switch vm.ExternalResultKind(kind) {
	case vm.ExtReturn:
		v, err := loadValue(d)
		if err != nil {
			return vm.ExternalResult{}, err
		}
		return vm.Return(v), nil
	case vm.ExtError:
		exc, err := loadException(d)
		if err != nil {
			return vm.ExternalResult{}, err
		}
		return vm.Error(exc), nil
	default:
		return vm.Future(), nil
	}
}

func dumpSuspension(e *encoder, susp *vm.Suspension) {
	e.byte_(byte(susp.Kind))
	e.uvarint(uint64(susp.CallID))
	e.str(susp.Name)
	dumpValueSlice(e, susp.Args)
	dumpKwargs(e, susp.Kwargs)
	e.bool_(susp.MethodCall)
	dumpValue(e, susp.Receiver)
	e.byte_(byte(susp.OsKind))
	dumpValue(e, susp.Value)
}

func loadSuspension(d *decoder) (*vm.Suspension, error) {
	kind, err := d.byte_()
	if err != nil {
		return nil, err
	}
	callID, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	name, err := d.str()
	if err != nil {
		return nil, err
	}
	args, err := loadValueSlice(d)
	if err != nil {
		return nil, err
	}
	kwargs, err := loadKwargs(d)
	if err != nil {
		return nil, err
	}
	methodCall, err := d.bool_()
	if err != nil {
		return nil, err
	}
	receiver, err := loadValue(d)
	if err != nil {
		return nil, err
	}
	osKind, err := d.byte_()
	if err != nil {
		return nil, err
	}
	val, err := loadValue(d)
	if err != nil {
		return nil, err
	}
	return &vm.Suspension{
		Kind: vm.SuspendKind(kind), CallID: uint32(callID), Name: name, Args: args,
		Kwargs: kwargs, MethodCall: methodCall, Receiver: receiver,
		OsKind: vm.OsKind(osKind), Value: val,
	}, nil
}

func dumpBlock(e *encoder, b vm.Block) {
	e.byte_(byte(b.Kind))
	e.varint(int64(b.HandlerPC))
	e.varint(int64(b.StackHeight))
}

func loadBlock(d *decoder) (vm.Block, error) {
	kind, err := d.byte_()
	if err != nil {
		return vm.Block{}, err
	}
	handlerPC, err := d.varint()
	if err != nil {
		return vm.Block{}, err
	}
	stackHeight, err := d.varint()
	if err != nil {
		return vm.Block{}, err
	}
	return vm.Block{Kind: vm.BlockKind(kind), HandlerPC: int(handlerPC), StackHeight: int(stackHeight)}, nil
}

func dumpRefSlice(e *encoder, refs []heap.Ref) {
	e.uvarint(uint64(len(refs)))
	for _, r := range refs {
		e.uvarint(uint64(r))
	}
}

func loadRefSlice(d *decoder) ([]heap.Ref, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]heap.Ref, n)
	for i := range out {
		v, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		out[i] = heap.Ref(v)
	}
	return out, nil
}

// dumpFrame/loadFrame round-trip one activation record. Parent is never set
// anywhere a Frame is constructed (no Monty call path builds nested
// tracebacks through it), so it is left nil on load rather than dumped.
func dumpFrame(e *encoder, prog *Program, f *vm.Frame) error {
	ref, ok := prog.codeRefFor(f.Code)
	if !ok {
		return fmt.Errorf("runner: frame's code object is not part of this program")
	}
	e.byte_(ref.tag)
	e.uvarint(uint64(ref.index))
	e.varint(int64(f.PC))
	dumpValueSlice(e, f.Locals)
	dumpRefSlice(e, f.Cells)
	dumpRefSlice(e, f.FreeCells)
	dumpValueSlice(e, f.Stack)
	e.uvarint(uint64(len(f.BlockStack)))
	for _, b := range f.BlockStack {
		dumpBlock(e, b)
	}
	e.str(f.FunctionName)
	e.varint(int64(f.Line))
	e.byte_(byte(f.PendingKind))
	dumpValue(e, f.PendingReceiver)
	e.str(f.PendingMethod)
	return nil
}

func loadFrame(d *decoder, prog *Program) (*vm.Frame, error) {
	tag, err := d.byte_()
	if err != nil {
		return nil, err
	}
	index, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	pc, err := d.varint()
	if err != nil {
		return nil, err
	}
	locals, err := loadValueSlice(d)
	if err != nil {
		return nil, err
	}
	cells, err := loadRefSlice(d)
	if err != nil {
		return nil, err
	}
	freeCells, err := loadRefSlice(d)
	if err != nil {
		return nil, err
	}
	stack, err := loadValueSlice(d)
	if err != nil {
		return nil, err
	}
	nBlocks, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	blocks := make([]vm.Block, nBlocks)
	for i := range blocks {
		blocks[i], err = loadBlock(d)
		if err != nil {
			return nil, err
		}
	}
	fname, err := d.str()
	if err != nil {
		return nil, err
	}
	line, err := d.varint()
	if err != nil {
		return nil, err
	}
	pendingKind, err := d.byte_()
	if err != nil {
		return nil, err
	}
	pendingReceiver, err := loadValue(d)
	if err != nil {
		return nil, err
	}
	pendingMethod, err := d.str()
	if err != nil {
		return nil, err
	}
	return &vm.Frame{
		Code:            prog.resolveCode(codeRef{tag: tag, index: uint32(index)}),
		PC:              int(pc),
		Locals:          locals,
		Cells:           cells,
		FreeCells:       freeCells,
		Stack:           stack,
		BlockStack:      blocks,
		FunctionName:    fname,
		Line:            int(line),
		PendingKind:     vm.AttrResultKind(pendingKind),
		PendingReceiver: pendingReceiver,
		PendingMethod:   pendingMethod,
	}, nil
}

func dumpStack(e *encoder, prog *Program, stack []*vm.Frame) error {
	e.uvarint(uint64(len(stack)))
	for _, f := range stack {
		if err := dumpFrame(e, prog, f); err != nil {
			return err
		}
	}
	return nil
}

func loadStack(d *decoder, prog *Program) ([]*vm.Frame, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]*vm.Frame, n)
	for i := range out {
		out[i], err = loadFrame(d, prog)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// dumpScheduler writes every task's call stack and status, the gather join
// graph those tasks reference, the ready queue, and the external-call
// waiter map (spec §4.H "a dump captures... scheduler state"). GatherNodes
// are deduplicated by pointer identity across sibling tasks before being
// written, since a dump that copied one per task would lose the "one
// sibling's completion decrements everyone's Remaining" sharing Load must
// restore.
func (s *State) dumpScheduler(e *encoder) error {
	tasks := s.sch.Tasks()
	taskIDs := make([]uint32, 0, len(tasks))
	for id := range tasks {
		taskIDs = append(taskIDs, id)
	}
	sort.Slice(taskIDs, func(i, j int) bool { return taskIDs[i] < taskIDs[j] })

	nodeIndex := make(map[*scheduler.GatherNode]int)
	var nodes []*scheduler.GatherNode
	for _, id := range taskIDs {
		if join := tasks[id].Join; join != nil {
			if _, ok := nodeIndex[join]; !ok {
				nodeIndex[join] = len(nodes)
				nodes = append(nodes, join)
			}
		}
	}

	e.uvarint(uint64(len(nodes)))
	for _, n := range nodes {
		e.uvarint(uint64(n.Parent))
		dumpValueSlice(e, n.Slots)
		e.varint(int64(n.Remaining))
		e.bool_(n.Failed)
		dumpException(e, n.Err)
		e.uvarint(uint64(len(n.ChildIDs)))
		for _, cid := range n.ChildIDs {
			e.uvarint(uint64(cid))
		}
		e.bool_(n.Unwrap)
	}

	e.uvarint(uint64(len(taskIDs)))
	for _, id := range taskIDs {
		t := tasks[id]
		e.uvarint(uint64(t.ID))
		e.byte_(byte(t.Status))
		dumpValue(e, t.Result)
		dumpException(e, t.Err)
		if t.Join == nil {
			e.bool_(false)
		} else {
			e.bool_(true)
			e.uvarint(uint64(nodeIndex[t.Join]))
		}
		e.varint(int64(t.JoinSlot))
		if err := dumpStack(e, s.prog, t.Stack); err != nil {
			return err
		}
	}

	ready := s.sch.ReadyQueue()
	e.uvarint(uint64(len(ready)))
	for _, r := range ready {
		e.uvarint(uint64(r.TaskID))
		e.bool_(r.HasResult)
		if r.HasResult {
			dumpExternalResult(e, r.Result)
		}
	}

	waiters := s.sch.Waiters()
	callIDs := make([]uint32, 0, len(waiters))
	for cid := range waiters {
		callIDs = append(callIDs, cid)
	}
	sort.Slice(callIDs, func(i, j int) bool { return callIDs[i] < callIDs[j] })
	e.uvarint(uint64(len(callIDs)))
	for _, cid := range callIDs {
		e.uvarint(uint64(cid))
		e.uvarint(uint64(waiters[cid]))
	}

	e.uvarint(uint64(s.sch.NextTaskID()))
	return nil
}

func loadScheduler(d *decoder, prog *Program) (*scheduler.Scheduler, error) {
	nNodes, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	nodes := make([]*scheduler.GatherNode, nNodes)
	for i := range nodes {
		parent, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		slots, err := loadValueSlice(d)
		if err != nil {
			return nil, err
		}
		remaining, err := d.varint()
		if err != nil {
			return nil, err
		}
		failed, err := d.bool_()
		if err != nil {
			return nil, err
		}
		nodeErr, err := loadException(d)
		if err != nil {
			return nil, err
		}
		nChild, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		childIDs := make([]uint32, nChild)
		for j := range childIDs {
			v, err := d.uvarint()
			if err != nil {
				return nil, err
			}
			childIDs[j] = uint32(v)
		}
		unwrap, err := d.bool_()
		if err != nil {
			return nil, err
		}
		nodes[i] = &scheduler.GatherNode{
			Parent: uint32(parent), Slots: slots, Remaining: int(remaining),
			Failed: failed, Err: nodeErr, ChildIDs: childIDs, Unwrap: unwrap,
		}
	}

	nTasks, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	tasks := make(map[uint32]*scheduler.Task, nTasks)
	for i := uint64(0); i < nTasks; i++ {
		id, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		status, err := d.byte_()
		if err != nil {
			return nil, err
		}
		result, err := loadValue(d)
		if err != nil {
			return nil, err
		}
		taskErr, err := loadException(d)
		if err != nil {
			return nil, err
		}
		hasJoin, err := d.bool_()
		if err != nil {
			return nil, err
		}
		var join *scheduler.GatherNode
		if hasJoin {
			idx, err := d.uvarint()
			if err != nil {
				return nil, err
			}
			if int(idx) >= len(nodes) {
				return nil, fmt.Errorf("runner: gather node index out of range")
			}
			join = nodes[idx]
		}
		joinSlot, err := d.varint()
		if err != nil {
			return nil, err
		}
		stack, err := loadStack(d, prog)
		if err != nil {
			return nil, err
		}
		tasks[uint32(id)] = &scheduler.Task{
			ID: uint32(id), Stack: stack, Status: scheduler.TaskStatus(status),
			Result: result, Err: taskErr, Join: join, JoinSlot: int(joinSlot),
		}
	}

	nReady, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	ready := make([]scheduler.ReadyEntry, nReady)
	for i := range ready {
		tid, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		hasResult, err := d.bool_()
		if err != nil {
			return nil, err
		}
		var res vm.ExternalResult
		if hasResult {
			res, err = loadExternalResult(d)
			if err != nil {
				return nil, err
			}
		}
		ready[i] = scheduler.ReadyEntry{TaskID: uint32(tid), HasResult: hasResult, Result: res}
	}

	nWaiters, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	waiters := make(map[uint32]uint32, nWaiters)
	for i := uint64(0); i < nWaiters; i++ {
		cid, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		tid, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		waiters[uint32(cid)] = uint32(tid)
	}

	nextID, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	return scheduler.Restore(tasks, ready, waiters, uint32(nextID)), nil
}

// dumpPendingIssued writes the call-id bookkeeping the scheduler itself
// discards once a call is answered (spec §4.G/§8 "issued, already
// answered" vs "never issued" disambiguation survives a dump/load
// round-trip the same as everything else).
func (s *State) dumpPendingIssued(e *encoder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuedIDs := make([]uint32, 0, len(s.issued))
	for id := range s.issued {
		issuedIDs = append(issuedIDs, id)
	}
	sort.Slice(issuedIDs, func(i, j int) bool { return issuedIDs[i] < issuedIDs[j] })
	e.uvarint(uint64(len(issuedIDs)))
	for _, id := range issuedIDs {
		e.uvarint(uint64(id))
		e.bool_(s.issued[id])
	}

	pendingIDs := make([]uint32, 0, len(s.pending))
	for id := range s.pending {
		pendingIDs = append(pendingIDs, id)
	}
	sort.Slice(pendingIDs, func(i, j int) bool { return pendingIDs[i] < pendingIDs[j] })
	e.uvarint(uint64(len(pendingIDs)))
	for _, id := range pendingIDs {
		e.uvarint(uint64(id))
		dumpSuspension(e, s.pending[id])
	}
}

func loadPendingIssued(d *decoder) (map[uint32]*vm.Suspension, map[uint32]bool, error) {
	nIssued, err := d.uvarint()
	if err != nil {
		return nil, nil, err
	}
	issued := make(map[uint32]bool, nIssued)
	for i := uint64(0); i < nIssued; i++ {
		id, err := d.uvarint()
		if err != nil {
			return nil, nil, err
		}
		v, err := d.bool_()
		if err != nil {
			return nil, nil, err
		}
		issued[uint32(id)] = v
	}

	nPending, err := d.uvarint()
	if err != nil {
		return nil, nil, err
	}
	pending := make(map[uint32]*vm.Suspension, nPending)
	for i := uint64(0); i < nPending; i++ {
		id, err := d.uvarint()
		if err != nil {
			return nil, nil, err
		}
		susp, err := loadSuspension(d)
		if err != nil {
			return nil, nil, err
		}
		pending[uint32(id)] = susp
	}
	return pending, issued, nil
}

func dumpDiagnostics(e *encoder, diag *tracker.Diagnostics) {
	e.uvarint(diag.Steps)
	e.uvarint(diag.GCPasses)
	e.uvarint(diag.GCReclaimed)
	e.uvarint(uint64(len(diag.GCPauses)))
	for _, p := range diag.GCPauses {
		e.varint(int64(p))
	}
}

func loadDiagnostics(d *decoder) (*tracker.Diagnostics, error) {
	steps, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	passes, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	reclaimed, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	pauses := make([]time.Duration, n)
	for i := range pauses {
		v, err := d.varint()
		if err != nil {
			return nil, err
		}
		pauses[i] = time.Duration(v)
	}
	return &tracker.Diagnostics{Steps: steps, GCPasses: passes, GCReclaimed: reclaimed, GCPauses: pauses}, nil
}

// LoadState reconstructs a session from bytes Dump previously produced,
// against prog — the same compiled program the host passed to NewState.
// Program is static compiled data deliberately excluded from the dump
// itself (spec §4.H); print is likewise a host collaborator the caller
// re-supplies, exactly as NewState takes one rather than dumping it.
func LoadState(data []byte, prog *Program, trk tracker.Tracker, print *vm.PrintWriter) (*State, error) {
	d := &decoder{b: data}

	magic, err := d.rawBytes(len(snapshotMagic))
	if err != nil {
		return nil, err
	}
	if string(magic) != snapshotMagic {
		return nil, fmt.Errorf("runner: not a Monty snapshot")
	}
	ver, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if ver != snapshotVersion {
		return nil, fmt.Errorf("runner: unsupported snapshot version %d", ver)
	}
	idStr, err := d.str()
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("runner: invalid session id in snapshot: %w", err)
	}

	in, err := loadInterns(d)
	if err != nil {
		return nil, err
	}
	h, err := loadHeap(d, in)
	if err != nil {
		return nil, err
	}
	globals, err := loadNamespace(d)
	if err != nil {
		return nil, err
	}

	machine := vm.New(h, in)
	machine.Globals = globals
	machine.Functions = prog.Functions
	machine.Classes = prog.Classes
	machine.Print = print
	if trk != nil {
		machine.Admission = trk
		machine.Tracker = trk
	}

	sch, err := loadScheduler(d, prog)
	if err != nil {
		return nil, err
	}
	pending, issued, err := loadPendingIssued(d)
	if err != nil {
		return nil, err
	}
	diag, err := loadDiagnostics(d)
	if err != nil {
		return nil, err
	}

	return &State{
		ID:      id,
		prog:    prog,
		vm:      machine,
		sch:     sch,
		diag:    diag,
		busy:    semaphore.NewWeighted(1),
		pending: pending,
		issued:  issued,
	}, nil
}
