package vm

import "github.com/scinapse-labs/monty/values"

func (vm *VM) nameError(name string) *values.ExceptionPayload {
	sid := vm.Interns.InternString(name)
	return values.NewException(values.ExcNameError, []values.Value{values.InternStr(sid)})
}

func (vm *VM) typeError(msg string) *values.ExceptionPayload {
	sid, ok := vm.Interns.InternOrAllocateString(msg)
	if ok {
		return values.NewException(values.ExcTypeError, []values.Value{values.InternStr(sid)})
	}
	ref, _ := vm.Heap.Allocate(values.NewStr(msg), nil)
	return values.NewException(values.ExcTypeError, []values.Value{values.RefV(ref)})
}

func (vm *VM) valueError(msg string) *values.ExceptionPayload {
	sid, ok := vm.Interns.InternOrAllocateString(msg)
	if ok {
		return values.NewException(values.ExcValueError, []values.Value{values.InternStr(sid)})
	}
	ref, _ := vm.Heap.Allocate(values.NewStr(msg), nil)
	return values.NewException(values.ExcValueError, []values.Value{values.RefV(ref)})
}

func (vm *VM) runtimeError(msg string) *values.ExceptionPayload {
	sid, ok := vm.Interns.InternOrAllocateString(msg)
	if ok {
		return values.NewException(values.ExcRuntimeError, []values.Value{values.InternStr(sid)})
	}
	ref, _ := vm.Heap.Allocate(values.NewStr(msg), nil)
	return values.NewException(values.ExcRuntimeError, []values.Value{values.RefV(ref)})
}

func (vm *VM) memoryError() *values.ExceptionPayload {
	return values.NewException(values.ExcMemoryError, nil)
}

func (vm *VM) zeroDivisionError() *values.ExceptionPayload {
	return values.NewException(values.ExcZeroDivisionError, nil)
}

func (vm *VM) indexError() *values.ExceptionPayload {
	return values.NewException(values.ExcIndexError, nil)
}

func (vm *VM) keyError(key values.Value) *values.ExceptionPayload {
	return values.NewException(values.ExcKeyError, []values.Value{key})
}

func (vm *VM) recursionError() *values.ExceptionPayload {
	return values.NewException(values.ExcRecursionError, nil)
}

func (vm *VM) stopIteration() *values.ExceptionPayload {
	return values.NewException(values.ExcStopIteration, nil)
}

func (vm *VM) notImplementedError(msg string) *values.ExceptionPayload {
	sid, ok := vm.Interns.InternOrAllocateString(msg)
	if ok {
		return values.NewException(values.ExcNotImplementedError, []values.Value{values.InternStr(sid)})
	}
	ref, _ := vm.Heap.Allocate(values.NewStr(msg), nil)
	return values.NewException(values.ExcNotImplementedError, []values.Value{values.RefV(ref)})
}
