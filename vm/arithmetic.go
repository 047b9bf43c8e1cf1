package vm

import (
	"math"

	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
)

// binaryOp implements the BINARY_* family. Ints eagerly promote to LongInt
// on add/sub/mul/pow overflow (resolved Open Question, see DESIGN.md); shift
// and bitwise ops stay lazy, only consulting LongInt when an operand already
// is one.
func (vm *VM) binaryOp(op opcodes.Opcode, a, b values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap

	if op == opcodes.OP_BINARY_ADD {
		if sa, ok := vm.strConcatOperand(a); ok {
			if sb, ok2 := vm.strConcatOperand(b); ok2 {
				return vm.makeString(sa + sb), nil
			}
		}
		if la, ok := vm.listOf(a); ok {
			if lb, ok2 := vm.listOf(b); ok2 {
				merged := append(values.CloneSlice(h, la), values.CloneSlice(h, lb)...)
				ref, _ := h.Allocate(values.NewList(merged), vm.admission())
				return values.RefV(ref), nil
			}
		}
	}

	if isNumeric(a) && isNumeric(b) {
		return vm.numericBinaryOp(op, a, b)
	}
	return values.Value{}, vm.typeError("unsupported operand type(s)")
}

func isNumeric(v values.Value) bool {
	switch v.Type {
	case values.TypeInt, values.TypeFloat, values.TypeBool, values.TypeInternLongInt:
		return true
	case values.TypeRef:
		return false
	}
	return false
}

func (vm *VM) asIntOrFloat(v values.Value) (i int64, f float64, isFloat bool) {
	switch v.Type {
	case values.TypeInt:
		return v.Data.(int64), 0, false
	case values.TypeBool:
		if v.Data.(bool) {
			return 1, 0, false
		}
		return 0, 0, false
	case values.TypeFloat:
		return 0, v.Data.(float64), true
	}
	return 0, 0, false
}

func (vm *VM) numericBinaryOp(op opcodes.Opcode, a, b values.Value) (values.Value, *values.ExceptionPayload) {
	ai, af, aFloat := vm.asIntOrFloat(a)
	bi, bf, bFloat := vm.asIntOrFloat(b)
	useFloat := aFloat || bFloat
	if useFloat {
		if !aFloat {
			af = float64(ai)
		}
		if !bFloat {
			bf = float64(bi)
		}
		switch op {
		case opcodes.OP_BINARY_ADD:
			return values.Float(af + bf), nil
		case opcodes.OP_BINARY_SUB:
			return values.Float(af - bf), nil
		case opcodes.OP_BINARY_MUL:
			return values.Float(af * bf), nil
		case opcodes.OP_BINARY_DIV:
			if bf == 0 {
				return values.Value{}, vm.zeroDivisionError()
			}
			return values.Float(af / bf), nil
		case opcodes.OP_BINARY_FLOORDIV:
			if bf == 0 {
				return values.Value{}, vm.zeroDivisionError()
			}
			return values.Float(math.Floor(af / bf)), nil
		case opcodes.OP_BINARY_MOD:
			if bf == 0 {
				return values.Value{}, vm.zeroDivisionError()
			}
			return values.Float(math.Mod(af, bf)), nil
		case opcodes.OP_BINARY_POW:
			return values.Float(math.Pow(af, bf)), nil
		}
		return values.Value{}, vm.typeError("bad operand type for float op")
	}

	switch op {
	case opcodes.OP_BINARY_ADD:
		if r, ok := addInt64(ai, bi); ok {
			return values.Int(r), nil
		}
		return vm.promoteBigOp(ai, bi, func(x, y *values.LongIntPayload) *values.LongIntPayload { return x.Add(y) }), nil
	case opcodes.OP_BINARY_SUB:
		if r, ok := subInt64(ai, bi); ok {
			return values.Int(r), nil
		}
		return vm.promoteBigOp(ai, bi, func(x, y *values.LongIntPayload) *values.LongIntPayload { return x.Sub(y) }), nil
	case opcodes.OP_BINARY_MUL:
		if r, ok := mulInt64(ai, bi); ok {
			return values.Int(r), nil
		}
		return vm.promoteBigOp(ai, bi, func(x, y *values.LongIntPayload) *values.LongIntPayload { return x.Mul(y) }), nil
	case opcodes.OP_BINARY_DIV:
		if bi == 0 {
			return values.Value{}, vm.zeroDivisionError()
		}
		return values.Float(float64(ai) / float64(bi)), nil
	case opcodes.OP_BINARY_FLOORDIV:
		if bi == 0 {
			return values.Value{}, vm.zeroDivisionError()
		}
		q := ai / bi
		if (ai%bi != 0) && ((ai < 0) != (bi < 0)) {
			q--
		}
		return values.Int(q), nil
	case opcodes.OP_BINARY_MOD:
		if bi == 0 {
			return values.Value{}, vm.zeroDivisionError()
		}
		m := ai % bi
		if m != 0 && ((m < 0) != (bi < 0)) {
			m += bi
		}
		return values.Int(m), nil
	case opcodes.OP_BINARY_POW:
		if bi < 0 {
			return values.Float(math.Pow(float64(ai), float64(bi))), nil
		}
		r := int64(1)
		overflowed := false
		base := ai
		for e := bi; e > 0; e-- {
			nr, ok := mulInt64(r, base)
			if !ok {
				overflowed = true
				break
			}
			r = nr
		}
		if !overflowed {
			return values.Int(r), nil
		}
		return vm.promoteBigPow(ai, bi), nil
	case opcodes.OP_BINARY_LSHIFT:
		return values.Int(ai << uint(bi)), nil
	case opcodes.OP_BINARY_RSHIFT:
		return values.Int(ai >> uint(bi)), nil
	case opcodes.OP_BINARY_AND:
		return values.Int(ai & bi), nil
	case opcodes.OP_BINARY_OR:
		return values.Int(ai | bi), nil
	case opcodes.OP_BINARY_XOR:
		return values.Int(ai ^ bi), nil
	}
	return values.Value{}, vm.typeError("bad operand type for int op")
}

func (vm *VM) promoteBigOp(a, b int64, f func(x, y *values.LongIntPayload) *values.LongIntPayload) values.Value {
	x := values.NewLongIntFromInt64(a)
	y := values.NewLongIntFromInt64(b)
	r := f(x, y)
	return vm.boxLongInt(r)
}

func (vm *VM) promoteBigPow(base, exp int64) values.Value {
	acc := values.NewLongIntFromInt64(1)
	b := values.NewLongIntFromInt64(base)
	for e := int64(0); e < exp; e++ {
		acc = acc.Mul(b)
	}
	return vm.boxLongInt(acc)
}

func (vm *VM) boxLongInt(li *values.LongIntPayload) values.Value {
	if i, ok := li.FitsInt64(); ok {
		return values.Int(i)
	}
	decimal := li.Repr()
	id := vm.Interns.InternLongInt(decimal)
	return values.InternLongIntV(id)
}

func addInt64(a, b int64) (int64, bool) {
	r := a + b
	overflow := (b > 0 && r < a) || (b < 0 && r > a)
	return r, !overflow
}
func subInt64(a, b int64) (int64, bool) {
	r := a - b
	overflow := (b < 0 && r < a) || (b > 0 && r > a)
	return r, !overflow
}
func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return a * b, false
	}
	r := a * b
	return r, r/b == a
}

func (vm *VM) unaryOp(op opcodes.Opcode, a values.Value) (values.Value, *values.ExceptionPayload) {
	env := vm.env()
	switch op {
	case opcodes.OP_UNARY_NOT:
		return values.Bool(!env.PyBool(a)), nil
	case opcodes.OP_UNARY_NEGATIVE:
		switch a.Type {
		case values.TypeInt:
			return values.Int(-a.Data.(int64)), nil
		case values.TypeFloat:
			return values.Float(-a.Data.(float64)), nil
		case values.TypeBool:
			if a.Data.(bool) {
				return values.Int(-1), nil
			}
			return values.Int(0), nil
		}
		return values.Value{}, vm.typeError("bad operand type for unary -")
	case opcodes.OP_UNARY_POSITIVE:
		return a, nil
	case opcodes.OP_UNARY_INVERT:
		if a.Type == values.TypeInt {
			return values.Int(^a.Data.(int64)), nil
		}
		return values.Value{}, vm.typeError("bad operand type for unary ~")
	}
	return values.Value{}, vm.typeError("unsupported unary operator")
}

// strConcatOperand/listOf are narrow helpers for the dual-purpose BINARY_ADD
// (numeric add, string concat, list concat all share one opcode).
func (vm *VM) strConcatOperand(v values.Value) (string, bool) {
	switch v.Type {
	case values.TypeInternString:
		return vm.Interns.String(v.Data.(interns.StringID)), true
	case values.TypeRef:
		if p, ok := vm.Heap.Get(v.Ref()).(*values.StrPayload); ok {
			return p.Value(), true
		}
	}
	return "", false
}

func (vm *VM) listOf(v values.Value) ([]values.Value, bool) {
	if v.Type != values.TypeRef {
		return nil, false
	}
	if p, ok := vm.Heap.Get(v.Ref()).(*values.ListPayload); ok {
		return p.Elems, true
	}
	return nil, false
}

func (vm *VM) makeString(s string) values.Value {
	if id, ok := vm.Interns.InternOrAllocateString(s); ok {
		return values.InternStr(id)
	}
	ref, _ := vm.Heap.Allocate(values.NewStr(s), vm.admission())
	return values.RefV(ref)
}
