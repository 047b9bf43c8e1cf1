package vm

import (
	"github.com/scinapse-labs/monty/values"
)

// callBuiltin dispatches the host-free builtins the VM handles directly
// rather than forwarding to the host (spec supplement, SPEC_FULL.md
// "Builtins enumeration"). Every case takes ownership of args/kwargs and
// either returns a fresh Value or an exception.
func (vm *VM) callBuiltin(kind values.BuiltinKind, arg uint32, args []values.Value, kwargs map[string]values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()

	switch kind {
	case values.BuiltinPrint:
		return vm.builtinPrint(args, kwargs)

	case values.BuiltinLen:
		dropKwargs(h, kwargs)
		if len(args) != 1 {
			values.DropSlice(h, args)
			return values.Value{}, vm.typeError("len() takes exactly one argument")
		}
		n, ok := env.PyLen(args[0])
		values.DropSlice(h, args)
		if !ok {
			return values.Value{}, vm.typeError("object of this type has no len()")
		}
		return values.Int(int64(n)), nil

	case values.BuiltinRepr:
		dropKwargs(h, kwargs)
		s := env.PyRepr(args[0])
		values.DropSlice(h, args)
		return vm.makeString(s), nil

	case values.BuiltinID:
		dropKwargs(h, kwargs)
		id := values.Identity(args[0])
		values.DropSlice(h, args)
		return values.Int(int64(id)), nil

	case values.BuiltinHash:
		dropKwargs(h, kwargs)
		hv, ok := env.Hash(args[0])
		values.DropSlice(h, args)
		if !ok {
			return values.Value{}, vm.typeError("unhashable type")
		}
		return values.Int(int64(hv)), nil

	case values.BuiltinType:
		dropKwargs(h, kwargs)
		s := values.PyType(h, args[0])
		values.DropSlice(h, args)
		return vm.makeString(s), nil

	case values.BuiltinIsinstance:
		dropKwargs(h, kwargs)
		if len(args) != 2 {
			values.DropSlice(h, args)
			return values.Value{}, vm.typeError("isinstance() takes exactly two arguments")
		}
		name, _ := vm.strConcatOperand(args[1])
		actual := values.PyType(h, args[0])
		values.DropSlice(h, args)
		return values.Bool(actual == name), nil

	case values.BuiltinGetattr:
		return vm.builtinGetattr(args, kwargs)

	case values.BuiltinSorted:
		return vm.builtinSorted(args, kwargs)

	case values.BuiltinReversed:
		dropKwargs(h, kwargs)
		return vm.builtinReversed(args)

	case values.BuiltinListCtor:
		dropKwargs(h, kwargs)
		return vm.ctorList(args)
	case values.BuiltinTupleCtor:
		dropKwargs(h, kwargs)
		return vm.ctorTuple(args)
	case values.BuiltinSetCtor:
		dropKwargs(h, kwargs)
		return vm.ctorSet(args)
	case values.BuiltinDictCtor:
		dropKwargs(h, kwargs)
		return vm.ctorDict(args)
	case values.BuiltinIntCtor:
		dropKwargs(h, kwargs)
		return vm.ctorInt(args)
	case values.BuiltinFloatCtor:
		dropKwargs(h, kwargs)
		return vm.ctorFloat(args)
	case values.BuiltinStrCtor:
		dropKwargs(h, kwargs)
		return vm.ctorStr(args)
	case values.BuiltinBoolCtor:
		dropKwargs(h, kwargs)
		return vm.ctorBool(args)
	case values.BuiltinBytesCtor:
		dropKwargs(h, kwargs)
		return vm.ctorBytes(args)

	case values.BuiltinGather:
		dropKwargs(h, kwargs)
		for _, a := range args {
			if a.Type != values.TypeRef {
				values.DropSlice(h, args)
				return values.Value{}, vm.typeError("gather() arguments must be coroutines")
			}
			if _, ok := h.Get(a.Ref()).(*values.CoroutinePayload); !ok {
				values.DropSlice(h, args)
				return values.Value{}, vm.typeError("gather() arguments must be coroutines")
			}
		}
		ref, aerr := h.Allocate(values.NewGather(args), vm.admission())
		if aerr != nil {
			values.DropSlice(h, args)
			return values.Value{}, vm.memoryError()
		}
		return values.RefV(ref), nil

	case values.BuiltinExcCtor:
		dropKwargs(h, kwargs)
		ref, aerr := h.Allocate(values.NewException(values.ExcKind(arg), args), vm.admission())
		if aerr != nil {
			return values.Value{}, vm.memoryError()
		}
		return values.RefV(ref), nil
	}
	dropKwargs(h, kwargs)
	values.DropSlice(h, args)
	return values.Value{}, vm.runtimeError("unknown builtin")
}

// builtinPrint recognizes exactly sep/end/flush (accepted/ignored)/file
// (rejected), matching spec §4.D.
func (vm *VM) builtinPrint(args []values.Value, kwargs map[string]values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	sep, end := " ", "\n"
	if v, ok := kwargs["sep"]; ok {
		sep, _ = vm.strConcatOperand(v)
		values.DropValue(h, v)
		delete(kwargs, "sep")
	}
	if v, ok := kwargs["end"]; ok {
		end, _ = vm.strConcatOperand(v)
		values.DropValue(h, v)
		delete(kwargs, "end")
	}
	if v, ok := kwargs["flush"]; ok {
		values.DropValue(h, v)
		delete(kwargs, "flush")
	}
	if _, ok := kwargs["file"]; ok {
		dropKwargs(h, kwargs)
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("print() does not support the file= argument")
	}
	dropKwargs(h, kwargs)

	var out string
	for i, a := range args {
		if i > 0 {
			out += sep
		}
		out += vm.pyStr(a)
	}
	out += end
	values.DropSlice(h, args)
	vm.Print.write("stdout", out)
	return values.None(), nil
}

// pyStr mirrors Python's str(): plain strings print without quoting,
// everything else falls back to repr().
func (vm *VM) pyStr(v values.Value) string {
	return vm.env().PyStr(v)
}

func (vm *VM) builtinGetattr(args []values.Value, kwargs map[string]values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	dropKwargs(h, kwargs)
	if len(args) < 2 || len(args) > 3 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("getattr() takes two or three arguments")
	}
	obj := args[0]
	name, _ := vm.strConcatOperand(args[1])
	var def values.Value
	hasDefault := len(args) == 3
	if hasDefault {
		def = args[2]
	}
	res, aerr := vm.GetAttr(obj, name, false)
	values.DropValue(h, args[1])
	if aerr != nil {
		if hasDefault {
			values.DropValue(h, obj)
			return def, nil
		}
		values.DropValue(h, obj)
		return values.Value{}, aerr
	}
	if hasDefault {
		values.DropValue(h, def)
	}
	switch res.Kind {
	case AttrPlain:
		v := values.CloneValue(h, res.Value)
		values.DropValue(h, obj)
		return v, nil
	default:
		// Bound/async/os/method-call attributes aren't first-class values
		// getattr() can hand back without invoking them; treat as present
		// but opaque, matching the plain attribute slot it was parked in.
		values.DropValue(h, obj)
		return values.None(), nil
	}
}

func (vm *VM) builtinSorted(args []values.Value, kwargs map[string]values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	if len(args) != 1 {
		dropKwargs(h, kwargs)
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("sorted() takes exactly one argument")
	}
	elems, serr := vm.sequenceElems(args[0])
	if serr != nil {
		dropKwargs(h, kwargs)
		values.DropValue(h, args[0])
		return values.Value{}, serr
	}
	cloned := values.CloneSlice(h, elems)
	values.DropValue(h, args[0])

	reverse := false
	if v, ok := kwargs["reverse"]; ok {
		reverse = env.PyBool(v)
		values.DropValue(h, v)
		delete(kwargs, "reverse")
	}
	var keyFn func(values.Value) (values.Value, error)
	if kv, ok := kwargs["key"]; ok {
		delete(kwargs, "key")
		if !kv.IsNone() {
			keyFn = func(v values.Value) (values.Value, error) {
				r, callErr := vm.callSync(kv, []values.Value{values.CloneValue(h, v)})
				if callErr != nil {
					return values.Value{}, callErr
				}
				return r, nil
			}
		} else {
			values.DropValue(h, kv)
		}
	}
	dropKwargs(h, kwargs)
	if err := env.SortValues(cloned, keyFn, reverse); err != nil {
		values.DropSlice(h, cloned)
		return values.Value{}, vm.runtimeError(err.Error())
	}
	return vm.makeList(cloned), nil
}

// builtinReversed materializes the reverse of a sequence directly into a new
// list rather than a lazy iterator object (unlike GET_ITER/FOR_ITER, which
// walk a values.IterPayload cursor).
func (vm *VM) builtinReversed(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if len(args) != 1 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("reversed() takes exactly one argument")
	}
	elems, serr := vm.sequenceElems(args[0])
	if serr != nil {
		values.DropValue(h, args[0])
		return values.Value{}, serr
	}
	out := make([]values.Value, len(elems))
	for i, e := range elems {
		out[len(elems)-1-i] = values.CloneValue(h, e)
	}
	values.DropValue(h, args[0])
	return vm.makeList(out), nil
}

// callSync drives a nested, non-suspending call to completion — used for
// `key=` callables passed to sorted()/.sort(). A key function that itself
// performs an external call or await is a documented supplement non-goal
// (SPEC_FULL.md "sorted/.sort()"): it surfaces as NotImplementedError rather
// than a new suspension-point kind.
func (vm *VM) callSync(callee values.Value, args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if callee.Type != values.TypeFunction {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("key function must be a plain function")
	}
	fn := vm.Functions[callee.Data.(uint32)]
	depth := len(vm.CallStack)
	susp, exc, _, _ := vm.invokeUserFunction(fn, args, nil)
	if susp != nil {
		return values.Value{}, vm.notImplementedError("sort key function performed an external call")
	}
	if exc != nil {
		return values.Value{}, exc
	}
	result, rexc, rsusp := vm.runUntilDepth(depth)
	if rsusp != nil {
		return values.Value{}, vm.notImplementedError("sort key function performed an external call")
	}
	if rexc != nil {
		return values.Value{}, rexc
	}
	return result, nil
}

// runUntilDepth drives the VM until the call stack returns to targetDepth —
// the nested-reentry primitive callSync needs since vm.Run drains to an
// empty stack, not to a caller-chosen depth.
func (vm *VM) runUntilDepth(targetDepth int) (values.Value, *values.ExceptionPayload, *Suspension) {
	for len(vm.CallStack) > targetDepth {
		f := vm.current()
		if f.PC >= len(f.Code.Instructions) {
			vm.popFrame()
			f.Destroy(vm.Heap)
			if len(vm.CallStack) > targetDepth {
				vm.current().Push(values.None())
			}
			continue
		}
		inst := f.Code.Instructions[f.PC]
		f.PC++
		susp, stepExc, returned, retVal := vm.step(f, inst)
		if susp != nil {
			f.PC--
			return values.Value{}, nil, susp
		}
		if stepExc != nil {
			if handled := vm.unwind(stepExc); !handled {
				return values.Value{}, stepExc, nil
			}
			continue
		}
		if returned {
			if len(vm.CallStack) > targetDepth {
				vm.current().Push(retVal)
			} else {
				return retVal, nil, nil
			}
		}
	}
	return values.None(), nil, nil
}
