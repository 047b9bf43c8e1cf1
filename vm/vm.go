package vm

import (
	"fmt"
	"io"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
)

// FunctionDef is a compiled function: its code plus the cells it closed
// over at definition time (spec §4.F "cells injected from captured
// closure"). The VM looks these up by a small integer id stored in a
// TypeFunction Value.
type FunctionDef struct {
	Code      *CodeObject
	FreeCells []heap.Ref
	Defaults  []values.Value
}

// SuspendKind is the reason VM.Run returned control to its caller instead of
// a normal completion or exception (spec §4.H "RunProgress").
type SuspendKind byte

const (
	SuspendNone SuspendKind = iota
	SuspendFunctionCall
	SuspendOsCall
	SuspendAwait
	// SuspendGather means the awaited value was a coroutine or a
	// `asyncio.gather(...)` result: the scheduler, not the host, resolves
	// this by spawning child tasks against Suspension.Value (spec §4.G).
	SuspendGather
)

// Suspension carries everything the runner needs to build the corresponding
// RunProgress variant and everything VM.Resume needs to continue.
type Suspension struct {
	Kind       SuspendKind
	CallID     uint32
	Name       string
	Args       []values.Value
	Kwargs     map[string]values.Value
	MethodCall bool

	// Receiver is set only for a dataclass public-method dispatch
	// (MethodCall == true): the instance the host's method call applies to
	// (spec §3.8). The VM owns no reference to it beyond this point — the
	// suspension carries ownership across the yield boundary.
	Receiver values.Value

	// OsKind identifies which host-OS operation this is, populated only
	// when Kind == SuspendOsCall (spec §6 "OS call enumeration").
	OsKind OsKind

	// Value carries the awaited expression's value for Kind == SuspendGather
	// (a Ref to a CoroutinePayload or a GatherPayload) — the scheduler owns
	// interpreting it, this package only transports it across the yield
	// boundary.
	Value values.Value
}

// PrintWriter is the boundary abstraction for stdout/stderr output (spec
// §6): either a direct stream or a host callback invoked per chunk. Exactly
// one of Direct/Callback should be set; a nil PrintWriter discards output.
type PrintWriter struct {
	Direct   io.Writer
	Callback func(stream, chunk string)
}

func (w *PrintWriter) write(stream, chunk string) {
	if w == nil {
		return
	}
	if w.Callback != nil {
		w.Callback(stream, chunk)
		return
	}
	if w.Direct != nil {
		io.WriteString(w.Direct, chunk)
	}
}

// ResourceTracker is the full resource-limit boundary the VM consults while
// running, not just on allocation (spec §4.E). It embeds heap.Admission so
// one tracker implementation satisfies both boundaries; like Admission,
// this is a narrow structural interface so this package never imports
// tracker.
type ResourceTracker interface {
	heap.Admission

	// CheckDeadline reports a resource-exhaustion exception if the
	// wall-clock deadline has elapsed or the host has raised its interrupt
	// flag, nil otherwise. Run calls this periodically rather than on every
	// instruction so a tight CPU-only loop still terminates without paying
	// a syscall per bytecode op (spec §4.E "periodically samples the
	// clock").
	CheckDeadline() *values.ExceptionPayload

	// ShouldGC votes whether the heap should run a collection pass, given
	// its current live-slot count (spec §4.E "GC-trigger policy").
	ShouldGC(liveSlots int) bool
}

// deadlineCheckInterval bounds how often Run consults the tracker's clock:
// often enough that a time-limited script can't outrun it by much, rarely
// enough that the check cost is negligible against bytecode dispatch.
const deadlineCheckInterval = 1024

// VM is one session's interpreter: the heap, interns, global namespace, and
// the live call stack. A VM is never shared between sessions or goroutines
// (spec §5 "single-threaded and cooperative").
type VM struct {
	Heap      *heap.Heap
	Interns   *interns.Interns
	Globals   *Namespace
	Functions []*FunctionDef
	Classes   []*values.ClassPayload

	CallStack []*Frame

	// Admission is the resource tracker's allocation gate, nil for NoLimit.
	// It satisfies heap.Admission without this package importing tracker.
	Admission heap.Admission

	// Tracker is consulted for deadline/interrupt checks and the GC-trigger
	// vote; nil means NoLimit (never interrupts, never votes to collect
	// outside an explicit CollectGarbage call). Usually the same underlying
	// value as Admission.
	Tracker ResourceTracker

	// ExtraRoots lets a multi-task driver (the scheduler) supply GC roots
	// for call stacks it owns that are not currently vm.CallStack — every
	// other task parked mid-await (spec §4.G, see vm.FrameRoots).
	ExtraRoots []heap.Ref

	// Print is re-supplied by the runner on every run/resume call — it is
	// a host collaborator, never part of a serialized snapshot (spec §6).
	Print *PrintWriter

	nextCallID   uint32
	RecursionMax int
	stepCount    uint64
}

func New(h *heap.Heap, in *interns.Interns) *VM {
	return &VM{
		Heap:         h,
		Interns:      in,
		Globals:      NewNamespace(),
		RecursionMax: 1000,
	}
}

func (vm *VM) allocCallID() uint32 {
	vm.nextCallID++
	return vm.nextCallID
}

func (vm *VM) pushFrame(f *Frame) error {
	if len(vm.CallStack) >= vm.RecursionMax {
		return fmt.Errorf("max recursion depth exceeded")
	}
	vm.CallStack = append(vm.CallStack, f)
	return nil
}

func (vm *VM) popFrame() *Frame {
	n := len(vm.CallStack) - 1
	f := vm.CallStack[n]
	vm.CallStack = vm.CallStack[:n]
	return f
}

func (vm *VM) current() *Frame { return vm.CallStack[len(vm.CallStack)-1] }

// env is a convenience for building a values.Env bound to this VM's heap and
// interns, used by every protocol.go call site.
func (vm *VM) env() values.Env { return values.Env{Heap: vm.Heap, Interns: vm.Interns} }

// Run drives the current top frame until the call stack empties (normal
// completion), an exception escapes the outermost frame, or the bytecode
// hits a suspension point (spec §5 "Suspension points": external call, OS
// call, or await on a future — never mid-instruction).
func (vm *VM) Run() (result values.Value, exc *values.ExceptionPayload, suspend *Suspension) {
	for {
		if len(vm.CallStack) == 0 {
			return values.None(), nil, nil
		}
		f := vm.current()
		if f.PC >= len(f.Code.Instructions) {
			vm.popFrame()
			f.Destroy(vm.Heap)
			if len(vm.CallStack) == 0 {
				return values.None(), nil, nil
			}
			vm.current().Push(values.None())
			continue
		}

		if vm.Tracker != nil {
			vm.stepCount++
			if vm.stepCount%deadlineCheckInterval == 0 {
				if exc := vm.Tracker.CheckDeadline(); exc != nil {
					if handled := vm.unwind(exc); !handled {
						return values.Value{}, exc, nil
					}
					continue
				}
				if vm.Tracker.ShouldGC(vm.Heap.LiveSlots()) {
					vm.CollectGarbage()
				}
			}
		}

		inst := f.Code.Instructions[f.PC]
		f.PC++

		susp, stepExc, returned, retVal := vm.step(f, inst)
		if susp != nil {
			f.PC-- // parked on the suspending instruction; Resume skips past it
			return values.Value{}, nil, susp
		}
		if stepExc != nil {
			if handled := vm.unwind(stepExc); !handled {
				return values.Value{}, stepExc, nil
			}
			continue
		}
		if returned {
			if len(vm.CallStack) == 0 {
				return retVal, nil, nil
			}
			vm.current().Push(retVal)
			continue
		}
	}
}
