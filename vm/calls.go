package vm

import (
	"strconv"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
)

// kwargsMap unpacks the dict value CALL_FUNCTION_KW builds (OP_BUILD_DICT
// on the keyword arguments) into a plain map. A zero Value means "no
// keyword arguments were passed" (CALL_FUNCTION's path).
func (vm *VM) kwargsMap(kwargsVal values.Value) map[string]values.Value {
	if kwargsVal.Type != values.TypeRef {
		return nil
	}
	d, ok := vm.Heap.Get(kwargsVal.Ref()).(*values.DictPayload)
	if !ok {
		return nil
	}
	out := make(map[string]values.Value, d.Len())
	for _, e := range d.Items() {
		name, _ := vm.strConcatOperand(e.Key)
		out[name] = e.Val
	}
	values.DropValue(vm.Heap, kwargsVal)
	return out
}

func dropKwargs(h *heap.Heap, kwargs map[string]values.Value) {
	for _, v := range kwargs {
		values.DropValue(h, v)
	}
}

// callFunction implements CALL_FUNCTION / CALL_FUNCTION_KW / CALL_METHOD.
// Exactly one of step()'s four return channels is populated, same contract
// as step() itself (spec §4.F "Calls").
func (vm *VM) callFunction(f *Frame, argc int, kwargsVal values.Value) (susp *Suspension, exc *values.ExceptionPayload, returned bool, retVal values.Value) {
	h := vm.Heap
	args := f.PopN(argc)
	kwargs := vm.kwargsMap(kwargsVal)

	if f.PendingKind != AttrPlain {
		kind := f.PendingKind
		obj := f.PendingReceiver
		method := f.PendingMethod
		f.PendingKind = AttrPlain
		f.PendingReceiver = values.Value{}
		f.PendingMethod = ""

		switch kind {
		case AttrBuiltinMethod:
			v, merr := vm.callBuiltinMethod(obj, method, args)
			values.DropValue(h, obj)
			if merr != nil {
				return nil, merr, false, values.Value{}
			}
			f.Push(v)
			return nil, nil, false, values.Value{}
		case AttrMethodCall:
			// Dataclass public-method dispatch: forwarded to the host as a
			// FunctionCall yield record with MethodCall set (spec §3.8).
			return &Suspension{
				Kind:       SuspendFunctionCall,
				CallID:     vm.allocCallID(),
				Name:       method,
				Args:       args,
				Kwargs:     kwargs,
				MethodCall: true,
				Receiver:   obj,
			}, nil, false, values.Value{}
		case AttrOsCall:
			values.DropValue(h, obj)
			return &Suspension{
				Kind:   SuspendOsCall,
				CallID: vm.allocCallID(),
				Name:   method,
				Args:   args,
				Kwargs: kwargs,
				OsKind: LookupOsKind(method),
			}, nil, false, values.Value{}
		case AttrAsync:
			values.DropValue(h, obj)
			return &Suspension{
				Kind:   SuspendAwait,
				CallID: vm.allocCallID(),
				Name:   method,
				Args:   args,
				Kwargs: kwargs,
			}, nil, false, values.Value{}
		}
	}

	callee := f.Pop()
	switch callee.Type {
	case values.TypeFunction:
		fn := vm.Functions[callee.Data.(uint32)]
		return vm.invokeUserFunction(fn, args, kwargs)
	case values.TypeBuiltin:
		kindB, argB := callee.Builtin()
		v, berr := vm.callBuiltin(kindB, argB, args, kwargs)
		if berr != nil {
			return nil, berr, false, values.Value{}
		}
		f.Push(v)
		return nil, nil, false, values.Value{}
	case values.TypeExternalFunction:
		name := vm.Interns.String(callee.Data.(interns.StringID))
		return &Suspension{
			Kind:   SuspendFunctionCall,
			CallID: vm.allocCallID(),
			Name:   name,
			Args:   args,
			Kwargs: kwargs,
		}, nil, false, values.Value{}
	case values.TypeRef:
		if cls, ok := h.Get(callee.Ref()).(*values.ClassPayload); ok {
			return vm.instantiateClass(callee.Ref(), cls, args, kwargs)
		}
	}
	values.DropValue(h, callee)
	values.DropSlice(h, args)
	dropKwargs(h, kwargs)
	return nil, vm.typeError("object is not callable"), false, values.Value{}
}

// instantiateClass implements `ClassName(...)` construction for a
// @dataclass-decorated class: positional/keyword arguments bind against
// cls.Fields in declaration order (same shape as bindFrame's parameter
// binding), producing a DataclassPayload pushed back as the call's result.
// classRef holds its own reference, already accounted for by the caller's
// stack pop; it is dropped on every error path below.
func (vm *VM) instantiateClass(classRef heap.Ref, cls *values.ClassPayload, args []values.Value, kwargs map[string]values.Value) (susp *Suspension, exc *values.ExceptionPayload, returned bool, retVal values.Value) {
	h := vm.Heap
	name := cls.Name

	if len(args) > len(cls.Fields) {
		h.DecRef(classRef)
		values.DropSlice(h, args)
		dropKwargs(h, kwargs)
		return nil, vm.typeError(name + "() takes at most " + strconv.Itoa(len(cls.Fields)) + " positional arguments"), false, values.Value{}
	}

	attrs := make([]values.Value, len(cls.Fields))
	for i := range attrs {
		attrs[i] = values.Undefined
	}
	copy(attrs, args)

	for fieldName, v := range kwargs {
		idx := -1
		for i, fn := range cls.Fields {
			if fn == fieldName {
				idx = i
				break
			}
		}
		if idx < 0 {
			h.DecRef(classRef)
			values.DropValue(h, v)
			dropKwargs(h, kwargs)
			values.DropSlice(h, attrs)
			return nil, vm.typeError(name + "() got an unexpected keyword argument '" + fieldName + "'"), false, values.Value{}
		}
		if !attrs[idx].IsUndefined() {
			h.DecRef(classRef)
			values.DropValue(h, v)
			dropKwargs(h, kwargs)
			values.DropSlice(h, attrs)
			return nil, vm.typeError(name + "() got multiple values for argument '" + fieldName + "'"), false, values.Value{}
		}
		attrs[idx] = v
	}

	for i, v := range attrs {
		if v.IsUndefined() {
			h.DecRef(classRef)
			values.DropSlice(h, attrs)
			return nil, vm.typeError(name + "() missing required argument: '" + cls.Fields[i] + "'"), false, values.Value{}
		}
	}

	ref, aerr := h.Allocate(values.NewDataclassInstance(classRef, attrs), vm.admission())
	if aerr != nil {
		h.DecRef(classRef)
		values.DropSlice(h, attrs)
		return nil, vm.memoryError(), false, values.Value{}
	}
	return nil, nil, true, values.RefV(ref)
}

// invokeUserFunction binds args/kwargs against fn's parameter list, pushes a
// fresh frame for it, and lets the main Run loop pick it up — this is the
// only path that grows the call stack (spec §4.F "Frame lifecycle").
func (vm *VM) invokeUserFunction(fn *FunctionDef, args []values.Value, kwargs map[string]values.Value) (susp *Suspension, exc *values.ExceptionPayload, returned bool, retVal values.Value) {
	h := vm.Heap
	code := fn.Code

	// Calling an `async def` function never runs its body: it produces a
	// bound-but-not-started coroutine value, matching CPython's coroutine
	// function semantics closely enough for `await`/`asyncio.gather` to
	// decide when it actually executes (spec §4.G, §9). The caller finds
	// this pushed where a normal call's return value would be.
	if code.IsAsync {
		funcID := uint32(0)
		for i, f2 := range vm.Functions {
			if f2 == fn {
				funcID = uint32(i)
				break
			}
		}
		ref, aerr := h.Allocate(values.NewCoroutine(funcID, args, kwargs), vm.admission())
		if aerr != nil {
			values.DropSlice(h, args)
			dropKwargs(h, kwargs)
			return nil, vm.memoryError(), false, values.Value{}
		}
		return nil, nil, true, values.RefV(ref)
	}
	newFrame, berr := vm.bindFrame(fn, args, kwargs)
	if berr != nil {
		return nil, berr, false, values.Value{}
	}
	if err := vm.pushFrame(newFrame); err != nil {
		newFrame.Destroy(h)
		return nil, vm.recursionError(), false, values.Value{}
	}
	return nil, nil, false, values.Value{}
}

// bindFrame binds args/kwargs against fn's parameter list and builds a fresh
// Frame, without touching vm.CallStack — shared by invokeUserFunction (grows
// the running call stack) and SpawnTaskFrame (the scheduler's entry point
// for starting a coroutine as a brand new task, spec §4.G).
func (vm *VM) bindFrame(fn *FunctionDef, args []values.Value, kwargs map[string]values.Value) (*Frame, *values.ExceptionPayload) {
	h := vm.Heap
	code := fn.Code
	if len(args) > code.ArgCount {
		values.DropSlice(h, args)
		dropKwargs(h, kwargs)
		return nil, vm.typeError(code.Name + "() takes at most " + strconv.Itoa(code.ArgCount) + " positional arguments")
	}

	bound := make([]values.Value, code.ArgCount)
	for i := range bound {
		bound[i] = values.Undefined
	}
	copy(bound, args)

	for name, v := range kwargs {
		idx := -1
		for i := 0; i < code.ArgCount && i < len(code.LocalNames); i++ {
			if code.LocalNames[i] == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			values.DropValue(h, v)
			dropKwargs(h, kwargs)
			values.DropSlice(h, bound)
			return nil, vm.typeError(code.Name + "() got an unexpected keyword argument '" + name + "'")
		}
		if !bound[idx].IsUndefined() {
			values.DropValue(h, v)
			dropKwargs(h, kwargs)
			values.DropSlice(h, bound)
			return nil, vm.typeError(code.Name + "() got multiple values for argument '" + name + "'")
		}
		bound[idx] = v
	}

	ndef := len(fn.Defaults)
	firstDefault := code.ArgCount - ndef
	for i := 0; i < code.ArgCount; i++ {
		if !bound[i].IsUndefined() {
			continue
		}
		if i >= firstDefault && i-firstDefault < ndef {
			bound[i] = values.CloneValue(h, fn.Defaults[i-firstDefault])
			continue
		}
		values.DropSlice(h, bound)
		name := "?"
		if i < len(code.LocalNames) {
			name = code.LocalNames[i]
		}
		return nil, vm.typeError(code.Name + "() missing required positional argument: '" + name + "'")
	}

	freeCells := make([]heap.Ref, len(fn.FreeCells))
	for i, ref := range fn.FreeCells {
		h.IncRef(ref)
		freeCells[i] = ref
	}
	return NewFrame(h, code, bound, freeCells), nil
}

// SpawnTaskFrame builds the initial single-frame call stack for a new
// scheduler task from a coroutine's bound function id/args/kwargs (spec
// §4.G "Every... spawns N child tasks"). The returned stack is independent
// of vm.CallStack; the scheduler owns it from here.
func (vm *VM) SpawnTaskFrame(funcID uint32, args []values.Value, kwargs map[string]values.Value) ([]*Frame, *values.ExceptionPayload) {
	if int(funcID) >= len(vm.Functions) {
		values.DropSlice(vm.Heap, args)
		dropKwargs(vm.Heap, kwargs)
		return nil, vm.runtimeError("invalid coroutine function id")
	}
	fn := vm.Functions[funcID]
	frame, err := vm.bindFrame(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return []*Frame{frame}, nil
}
