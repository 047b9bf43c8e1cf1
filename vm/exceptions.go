package vm

import (
	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/values"
)

// raiseRef boxes an ExceptionPayload onto the heap so it can travel as an
// ordinary Value once a handler catches it (`except E as e:` binds e to
// exactly this Value).
func (vm *VM) raiseRef(exc *values.ExceptionPayload) values.Value {
	exc.PushFrame(vm.current().FunctionName, vm.current().Line)
	ref, err := vm.Heap.Allocate(exc, vm.admission())
	if err != nil {
		// Allocation failure while already unwinding an exception — fall
		// back to a bare None rather than compounding the failure; the
		// handler sees an exception object it cannot introspect, which is
		// preferable to losing the unwind entirely.
		return values.None()
	}
	return values.RefV(ref)
}

// admission is nil until the resource tracker is wired in (tracker.Limited
// implements heap.Admission); a nil tracker means NoLimit.
func (vm *VM) admission() heap.Admission { return vm.Admission }

// unwind pops frames/block markers until a handler for exc is found.
// Returns false once the call stack is exhausted without one, meaning exc
// escapes the whole program (spec §4.F "Exception unwinding").
func (vm *VM) unwind(exc *values.ExceptionPayload) bool {
	for len(vm.CallStack) > 0 {
		f := vm.current()
		for {
			blk, ok := f.PopBlock()
			if !ok {
				break
			}
			if blk.Kind == BlockExcept || blk.Kind == BlockFinally {
				// Unwind the operand stack back to the handler's height,
				// then push the exception value for the handler to bind.
				if blk.StackHeight <= len(f.Stack) {
					excess := f.PopN(len(f.Stack) - blk.StackHeight)
					values.DropSlice(vm.Heap, excess)
				}
				f.PC = blk.HandlerPC
				f.Push(vm.raiseRef(exc))
				return true
			}
		}
		// No handler in this frame: pop it, attach it to the traceback, and
		// retry in the caller (spec §4.F).
		exc.PushFrame(f.FunctionName, f.Line)
		vm.popFrame()
		f.Destroy(vm.Heap)
	}
	return false
}
