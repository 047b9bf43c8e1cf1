package vm

import "github.com/scinapse-labs/monty/values"

// RunOn drains stack (a call stack belonging to some task other than the
// VM's own, or the VM's own after a fresh load) to completion, an escaped
// exception, or a suspension, exactly like Run but against caller-supplied
// state. The scheduler uses this to advance one task at a time while
// sharing this VM's heap/interns/globals/functions (spec §4.G "single
// interpreter session... single-threaded and cooperative" — tasks never run
// concurrently, only interleaved one instruction-stream at a time).
func (vm *VM) RunOn(stack []*Frame) (result values.Value, exc *values.ExceptionPayload, susp *Suspension, rest []*Frame) {
	saved := vm.CallStack
	vm.CallStack = stack
	result, exc, susp = vm.Run()
	rest = vm.CallStack
	vm.CallStack = saved
	return result, exc, susp, rest
}

// Resume continues a stack previously parked by RunOn/Run at a suspension:
// it skips past the suspending instruction (Run parks PC on it, see the
// comment in Run), delivers result, and drains again. result.Kind selects
// how the suspended expression is completed: a plain return value is
// pushed, an error is raised via the normal unwind path, "not ready yet"
// (ExtFuture) is rejected by the caller before this is ever invoked.
func (vm *VM) Resume(stack []*Frame, result ExternalResult) (values.Value, *values.ExceptionPayload, *Suspension, []*Frame) {
	saved := vm.CallStack
	vm.CallStack = stack

	f := vm.current()
	f.PC++ // skip the suspending instruction itself; it already did its work

	switch result.Kind {
	case ExtReturn:
		f.Push(result.Value)
	case ExtError:
		if handled := vm.unwind(result.Err); !handled {
			rest := vm.CallStack
			vm.CallStack = saved
			return values.Value{}, result.Err, nil, rest
		}
	}

	val, exc, susp := vm.Run()
	rest := vm.CallStack
	vm.CallStack = saved
	return val, exc, susp, rest
}
