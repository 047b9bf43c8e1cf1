package vm

import (
	"strconv"
	"strings"

	"github.com/scinapse-labs/monty/values"
)

func parseIntLiteral(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseFloatLiteral(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ctorList/ctorTuple/ctorSet/ctorDict implement list()/tuple()/set()/dict()
// called with zero or one iterable argument — the supplemented type-
// constructor builtins SPEC_FULL.md adds alongside the host-visible
// container literals (spec §4.D).
func (vm *VM) ctorList(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if len(args) == 0 {
		return vm.makeList(nil), nil
	}
	if len(args) != 1 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("list() takes at most one argument")
	}
	elems, serr := vm.sequenceElems(args[0])
	if serr != nil {
		values.DropValue(h, args[0])
		return values.Value{}, serr
	}
	cloned := values.CloneSlice(h, elems)
	values.DropValue(h, args[0])
	return vm.makeList(cloned), nil
}

func (vm *VM) ctorTuple(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if len(args) == 0 {
		return vm.makeTuple(nil), nil
	}
	if len(args) != 1 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("tuple() takes at most one argument")
	}
	elems, serr := vm.sequenceElems(args[0])
	if serr != nil {
		values.DropValue(h, args[0])
		return values.Value{}, serr
	}
	cloned := values.CloneSlice(h, elems)
	values.DropValue(h, args[0])
	return vm.makeTuple(cloned), nil
}

func (vm *VM) ctorSet(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	s := values.NewSet()
	if len(args) == 1 {
		elems, serr := vm.sequenceElems(args[0])
		if serr != nil {
			values.DropValue(h, args[0])
			return values.Value{}, serr
		}
		for _, e := range elems {
			hv, hok := env.Hash(e)
			if !hok {
				values.DropValue(h, args[0])
				return values.Value{}, vm.typeError("unhashable type")
			}
			cloned := values.CloneValue(h, e)
			if !s.Add(hv, cloned, env.PyEq) {
				values.DropValue(h, cloned)
			}
		}
		values.DropValue(h, args[0])
	} else if len(args) != 0 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("set() takes at most one argument")
	}
	ref, aerr := h.Allocate(s, vm.admission())
	if aerr != nil {
		return values.Value{}, vm.memoryError()
	}
	return values.RefV(ref), nil
}

func (vm *VM) ctorDict(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	d := values.NewDict()
	if len(args) == 1 {
		var src *values.DictPayload
		var isDict bool
		if args[0].Type == values.TypeRef {
			src, isDict = vm.Heap.Get(args[0].Ref()).(*values.DictPayload)
		}
		if isDict {
			for _, e := range src.Items() {
				hv, _ := env.Hash(e.Key)
				key := values.CloneValue(h, e.Key)
				val := values.CloneValue(h, e.Val)
				old, existed := d.Set(hv, key, val, env.PyEq)
				if existed {
					values.DropValue(h, old)
					values.DropValue(h, key)
				}
			}
			values.DropValue(h, args[0])
		} else {
			pairs, serr := vm.sequenceElems(args[0])
			if serr != nil {
				values.DropValue(h, args[0])
				return values.Value{}, serr
			}
			for _, pair := range pairs {
				cp := values.CloneValue(h, pair)
				kv, perr := vm.sequenceElems(cp)
				if perr != nil || len(kv) != 2 {
					values.DropValue(h, cp)
					values.DropValue(h, args[0])
					return values.Value{}, vm.typeError("dict() update sequence element has wrong length")
				}
				key := values.CloneValue(h, kv[0])
				val := values.CloneValue(h, kv[1])
				values.DropValue(h, cp)
				hv, hok := env.Hash(key)
				if !hok {
					values.DropValue(h, key)
					values.DropValue(h, val)
					values.DropValue(h, args[0])
					return values.Value{}, vm.typeError("unhashable type")
				}
				old, existed := d.Set(hv, key, val, env.PyEq)
				if existed {
					values.DropValue(h, old)
					values.DropValue(h, key)
				}
			}
			values.DropValue(h, args[0])
		}
	} else if len(args) != 0 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("dict() takes at most one argument")
	}
	ref, aerr := h.Allocate(d, vm.admission())
	if aerr != nil {
		return values.Value{}, vm.memoryError()
	}
	return values.RefV(ref), nil
}

// ctorInt/ctorFloat/ctorStr/ctorBool/ctorBytes implement the scalar type
// constructors — conversions between the built-in immediate types rather
// than new containers.
func (vm *VM) ctorInt(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if len(args) == 0 {
		return values.Int(0), nil
	}
	if len(args) != 1 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("int() takes at most one argument")
	}
	v := args[0]
	defer values.DropValue(h, v)
	switch v.Type {
	case values.TypeInt:
		return v, nil
	case values.TypeBool:
		if v.Data.(bool) {
			return values.Int(1), nil
		}
		return values.Int(0), nil
	case values.TypeFloat:
		return values.Int(int64(v.Data.(float64))), nil
	case values.TypeInternString, values.TypeRef:
		if s, ok := vm.strConcatOperand(v); ok {
			n, perr := parseIntLiteral(s)
			if perr != nil {
				return values.Value{}, vm.valueError("invalid literal for int()")
			}
			return values.Int(n), nil
		}
	}
	return values.Value{}, vm.typeError("int() argument must be a string or a number")
}

func (vm *VM) ctorFloat(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if len(args) == 0 {
		return values.Float(0), nil
	}
	if len(args) != 1 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("float() takes at most one argument")
	}
	v := args[0]
	defer values.DropValue(h, v)
	switch v.Type {
	case values.TypeFloat:
		return v, nil
	case values.TypeInt:
		return values.Float(float64(v.Data.(int64))), nil
	case values.TypeBool:
		if v.Data.(bool) {
			return values.Float(1), nil
		}
		return values.Float(0), nil
	case values.TypeInternString, values.TypeRef:
		if s, ok := vm.strConcatOperand(v); ok {
			f, perr := parseFloatLiteral(s)
			if perr != nil {
				return values.Value{}, vm.valueError("could not convert string to float")
			}
			return values.Float(f), nil
		}
	}
	return values.Value{}, vm.typeError("float() argument must be a string or a number")
}

func (vm *VM) ctorStr(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if len(args) == 0 {
		return vm.makeString(""), nil
	}
	if len(args) != 1 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("str() takes at most one argument")
	}
	s := vm.pyStr(args[0])
	values.DropValue(h, args[0])
	return vm.makeString(s), nil
}

func (vm *VM) ctorBool(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if len(args) == 0 {
		return values.Bool(false), nil
	}
	if len(args) != 1 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("bool() takes at most one argument")
	}
	b := vm.env().PyBool(args[0])
	values.DropValue(h, args[0])
	return values.Bool(b), nil
}

func (vm *VM) ctorBytes(args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	if len(args) == 0 {
		ref, aerr := h.Allocate(values.NewBytes(nil), vm.admission())
		if aerr != nil {
			return values.Value{}, vm.memoryError()
		}
		return values.RefV(ref), nil
	}
	if len(args) != 1 {
		values.DropSlice(h, args)
		return values.Value{}, vm.typeError("bytes() takes at most one argument")
	}
	v := args[0]
	var out []byte
	switch v.Type {
	case values.TypeInt:
		n := v.Data.(int64)
		if n < 0 {
			return values.Value{}, vm.valueError("negative count")
		}
		out = make([]byte, n)
	default:
		elems, serr := vm.sequenceElems(v)
		if serr != nil {
			values.DropValue(h, v)
			return values.Value{}, serr
		}
		out = make([]byte, len(elems))
		for i, e := range elems {
			if e.Type != values.TypeInt {
				values.DropValue(h, v)
				return values.Value{}, vm.typeError("bytes() argument must be an iterable of ints")
			}
			out[i] = byte(e.Data.(int64))
		}
		values.DropValue(h, v)
	}
	ref, aerr := h.Allocate(values.NewBytes(out), vm.admission())
	if aerr != nil {
		return values.Value{}, vm.memoryError()
	}
	return values.RefV(ref), nil
}
