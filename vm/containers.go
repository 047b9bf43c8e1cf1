package vm

import "github.com/scinapse-labs/monty/values"

// sequenceElems materializes v's elements for FOR_ITER/UNPACK_SEQUENCE.
// Ranges and strings are expanded afresh on every call rather than cached
// against the source — acceptable since Monty has no infinite-iterator
// builtins in scope (itertools is out of scope, spec Non-goals), and it
// keeps values.IterPayload a plain (source, cursor) pair instead of needing
// its own copy of the expansion.
func (vm *VM) sequenceElems(v values.Value) ([]values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if v.Type != values.TypeRef {
		return nil, vm.typeError("object is not iterable")
	}
	switch p := h.Get(v.Ref()).(type) {
	case *values.ListPayload:
		return p.Elems, nil
	case *values.TuplePayload:
		return p.Elems, nil
	case *values.RangePayload:
		n := p.Len()
		out := make([]values.Value, n)
		for i := 0; i < n; i++ {
			iv, _ := p.At(i)
			out[i] = values.Int(iv)
		}
		return out, nil
	case *values.StrPayload:
		n := p.Len()
		out := make([]values.Value, n)
		for i := 0; i < n; i++ {
			ch, _ := p.At(i)
			out[i] = vm.makeString(ch)
		}
		return out, nil
	case *values.DictPayload:
		return p.Keys(), nil
	case *values.SetPayload:
		return p.Members(), nil
	}
	return nil, vm.typeError("object is not iterable")
}

// normalizeIndex folds a negative index the Python way and reports whether
// it lands in range.
func normalizeIndex(idx, length int) (int, bool) {
	if idx < 0 {
		idx += length
	}
	return idx, idx >= 0 && idx < length
}

func (vm *VM) subscr(obj, idx values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	if obj.Type != values.TypeRef {
		return values.Value{}, vm.typeError("object is not subscriptable")
	}
	idxSlice, isSlice := vm.sliceOperand(idx)

	switch p := h.Get(obj.Ref()).(type) {
	case *values.ListPayload:
		if isSlice {
			start, stop, step := vm.resolveSliceBounds(idxSlice, p.Len())
			return vm.makeList(p.Slice(h, start, stop, step)), nil
		}
		i, ok := asInt(idx)
		if !ok {
			return values.Value{}, vm.typeError("list indices must be integers")
		}
		norm, inRange := normalizeIndex(i, p.Len())
		if !inRange {
			return values.Value{}, vm.indexError()
		}
		v, _ := p.At(norm)
		return values.CloneValue(h, v), nil
	case *values.TuplePayload:
		if isSlice {
			start, stop, step := vm.resolveSliceBounds(idxSlice, p.Len())
			return vm.makeTuple(p.Slice(h, start, stop, step)), nil
		}
		i, ok := asInt(idx)
		if !ok {
			return values.Value{}, vm.typeError("tuple indices must be integers")
		}
		norm, inRange := normalizeIndex(i, p.Len())
		if !inRange {
			return values.Value{}, vm.indexError()
		}
		v, _ := p.At(norm)
		return values.CloneValue(h, v), nil
	case *values.StrPayload:
		i, ok := asInt(idx)
		if !ok {
			return values.Value{}, vm.typeError("string indices must be integers")
		}
		norm, inRange := normalizeIndex(i, p.Len())
		if !inRange {
			return values.Value{}, vm.indexError()
		}
		ch, _ := p.At(norm)
		return vm.makeString(ch), nil
	case *values.DictPayload:
		hv, hok := env.Hash(idx)
		if !hok {
			return values.Value{}, vm.typeError("unhashable type")
		}
		v, found := p.Get(hv, idx, func(a, b values.Value) bool { return env.PyEq(a, b) })
		if !found {
			return values.Value{}, vm.keyError(values.CloneValue(h, idx))
		}
		return values.CloneValue(h, v), nil
	case *values.RangePayload:
		i, ok := asInt(idx)
		if !ok {
			return values.Value{}, vm.typeError("range indices must be integers")
		}
		v, found := p.At(i)
		if !found {
			return values.Value{}, vm.indexError()
		}
		return values.Int(v), nil
	}
	return values.Value{}, vm.typeError("object is not subscriptable")
}

func (vm *VM) setSubscr(obj, idx, val values.Value) *values.ExceptionPayload {
	h := vm.Heap
	env := vm.env()
	if obj.Type != values.TypeRef {
		return vm.typeError("object does not support item assignment")
	}
	switch p := h.GetMut(obj.Ref()).(type) {
	case *values.ListPayload:
		i, ok := asInt(idx)
		if !ok {
			return vm.typeError("list indices must be integers")
		}
		norm, inRange := normalizeIndex(i, p.Len())
		if !inRange {
			return vm.indexError()
		}
		old, _ := p.SetAt(norm, val)
		values.DropValue(h, old)
		return nil
	case *values.DictPayload:
		hv, hok := env.Hash(idx)
		if !hok {
			return vm.typeError("unhashable type")
		}
		old, existed := p.Set(hv, idx, val, func(a, b values.Value) bool { return env.PyEq(a, b) })
		if existed {
			values.DropValue(h, old)
			values.DropValue(h, idx)
		}
		return nil
	}
	return vm.typeError("object does not support item assignment")
}

func asInt(v values.Value) (int, bool) {
	switch v.Type {
	case values.TypeInt:
		return int(v.Data.(int64)), true
	case values.TypeBool:
		if v.Data.(bool) {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// sliceOperand reports whether idx is a slice object, without risking a
// panic on heap refs that aren't one (h.Get requires a live ref).
func (vm *VM) sliceOperand(idx values.Value) (*values.SlicePayload, bool) {
	if idx.Type != values.TypeRef {
		return nil, false
	}
	sl, ok := vm.Heap.Get(idx.Ref()).(*values.SlicePayload)
	return sl, ok
}

func (vm *VM) resolveSliceBounds(sl *values.SlicePayload, length int) (int, int, int) {
	start, sOk := asInt(sl.Start)
	stop, pOk := asInt(sl.Stop)
	step, tOk := asInt(sl.Step)
	if !tOk || step == 0 {
		step = 1
	}
	if !sOk {
		if step > 0 {
			start = 0
		} else {
			start = length - 1
		}
	}
	if !pOk {
		if step > 0 {
			stop = length
		} else {
			stop = -1
		}
	}
	return values.Indices(start, stop, step, length)
}

func (vm *VM) makeList(elems []values.Value) values.Value {
	ref, _ := vm.Heap.Allocate(values.NewList(elems), vm.admission())
	return values.RefV(ref)
}

func (vm *VM) makeTuple(elems []values.Value) values.Value {
	if len(elems) == 0 {
		return values.RefV(vm.Heap.EmptyTuple(values.MakeEmptyTuple))
	}
	ref, _ := vm.Heap.Allocate(values.NewTuple(elems), vm.admission())
	return values.RefV(ref)
}
