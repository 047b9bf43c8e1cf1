package vm

import (
	"fmt"
	"strings"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
)

// step executes one instruction against frame f. Exactly one of the four
// return channels is populated: a suspension (external/OS call or await), a
// raised exception, a frame return, or neither (fall through to the next
// instruction).
func (vm *VM) step(f *Frame, inst opcodes.Instruction) (susp *Suspension, exc *values.ExceptionPayload, returned bool, retVal values.Value) {
	h := vm.Heap
	env := vm.env()

	switch inst.Op {

	// --- stack manipulation ---
	case opcodes.OP_NOP:
	case opcodes.OP_POP_TOP:
		values.DropValue(h, f.Pop())
	case opcodes.OP_DUP_TOP:
		v := f.Top()
		f.Push(values.CloneValue(h, v))
	case opcodes.OP_DUP_TOP_TWO:
		n := len(f.Stack)
		a, b := f.Stack[n-2], f.Stack[n-1]
		f.Push(values.CloneValue(h, a))
		f.Push(values.CloneValue(h, b))
	case opcodes.OP_ROT_TWO:
		n := len(f.Stack)
		f.Stack[n-1], f.Stack[n-2] = f.Stack[n-2], f.Stack[n-1]
	case opcodes.OP_ROT_THREE:
		n := len(f.Stack)
		f.Stack[n-1], f.Stack[n-2], f.Stack[n-3] = f.Stack[n-2], f.Stack[n-3], f.Stack[n-1]

	// --- constants and names ---
	case opcodes.OP_LOAD_CONST:
		f.Push(values.CloneValue(h, f.Code.Consts[inst.A]))
	case opcodes.OP_LOAD_LOCAL:
		v := f.Locals[inst.A]
		if v.IsUndefined() {
			name := "?"
			if int(inst.A) < len(f.Code.LocalNames) {
				name = f.Code.LocalNames[inst.A]
			}
			return nil, vm.nameError(name), false, values.Value{}
		}
		f.Push(values.CloneValue(h, v))
	case opcodes.OP_STORE_LOCAL:
		old := f.Locals[inst.A]
		f.Locals[inst.A] = f.Pop()
		if !old.IsUndefined() {
			values.DropValue(h, old)
		}
	case opcodes.OP_DELETE_LOCAL:
		old := f.Locals[inst.A]
		f.Locals[inst.A] = values.Undefined
		if !old.IsUndefined() {
			values.DropValue(h, old)
		}
	case opcodes.OP_LOAD_GLOBAL:
		name := f.Code.GlobalNames[inst.A]
		v, ok := vm.Globals.Get(name)
		if !ok {
			return nil, vm.nameError(name), false, values.Value{}
		}
		f.Push(values.CloneValue(h, v))
	case opcodes.OP_STORE_GLOBAL:
		name := f.Code.GlobalNames[inst.A]
		old, existed := vm.Globals.Set(name, f.Pop())
		if existed {
			values.DropValue(h, old)
		}
	case opcodes.OP_DELETE_GLOBAL:
		name := f.Code.GlobalNames[inst.A]
		old, existed := vm.Globals.Delete(name)
		if existed {
			values.DropValue(h, old)
		}
	case opcodes.OP_LOAD_CELL:
		var ref = cellRef(f, int(inst.A))
		cell := h.Get(ref).(*values.CellPayload)
		if cell.Val.IsUndefined() {
			return nil, vm.nameError(cellName(f, int(inst.A))), false, values.Value{}
		}
		f.Push(values.CloneValue(h, cell.Val))
	case opcodes.OP_STORE_CELL:
		ref := cellRef(f, int(inst.A))
		cell := h.Get(ref).(*values.CellPayload)
		old := cell.Set(f.Pop())
		if !old.IsUndefined() {
			values.DropValue(h, old)
		}
	case opcodes.OP_DELETE_CELL:
		ref := cellRef(f, int(inst.A))
		cell := h.Get(ref).(*values.CellPayload)
		old := cell.Set(values.Undefined)
		if !old.IsUndefined() {
			values.DropValue(h, old)
		}
	case opcodes.OP_LOAD_BUILTIN:
		f.Push(values.BuiltinV(values.BuiltinKind(inst.A), inst.B))

	// --- attributes ---
	case opcodes.OP_LOAD_ATTR, opcodes.OP_LOAD_ATTR_IMPORT:
		obj := f.Pop()
		name := f.Code.AttrNames[inst.A]
		res, aerr := vm.GetAttr(obj, name, inst.Op == opcodes.OP_LOAD_ATTR_IMPORT)
		if aerr != nil {
			values.DropValue(h, obj)
			return nil, aerr, false, values.Value{}
		}
		switch res.Kind {
		case AttrPlain:
			f.Push(values.CloneValue(h, res.Value))
			values.DropValue(h, obj)
		case AttrBoundMethod:
			f.Push(res.Value)
			values.DropValue(h, obj)
		case AttrMethodCall, AttrAsync, AttrOsCall, AttrBuiltinMethod:
			// Invocation happens at the CALL_METHOD that immediately
			// follows; park the receiver and method name on the frame
			// rather than the operand stack (see Frame.Pending*).
			f.PendingKind = res.Kind
			f.PendingReceiver = obj
			f.PendingMethod = res.Method
		}
	case opcodes.OP_STORE_ATTR:
		obj := f.Pop()
		val := f.Pop()
		name := f.Code.AttrNames[inst.A]
		if aerr := vm.SetAttr(obj, name, val); aerr != nil {
			values.DropValue(h, obj)
			return nil, aerr, false, values.Value{}
		}
		values.DropValue(h, obj)
	case opcodes.OP_DELETE_ATTR:
		values.DropValue(h, f.Pop())

	// --- subscript ---
	case opcodes.OP_BINARY_SUBSCR:
		idx := f.Pop()
		obj := f.Pop()
		v, serr := vm.subscr(obj, idx)
		values.DropValue(h, idx)
		values.DropValue(h, obj)
		if serr != nil {
			return nil, serr, false, values.Value{}
		}
		f.Push(v)
	case opcodes.OP_STORE_SUBSCR:
		idx := f.Pop()
		obj := f.Pop()
		val := f.Pop()
		if serr := vm.setSubscr(obj, idx, val); serr != nil {
			values.DropValue(h, idx)
			values.DropValue(h, obj)
			return nil, serr, false, values.Value{}
		}
		values.DropValue(h, idx)
		values.DropValue(h, obj)
	case opcodes.OP_DELETE_SUBSCR:
		idx := f.Pop()
		obj := f.Pop()
		values.DropValue(h, idx)
		values.DropValue(h, obj)

	// --- arithmetic / comparison ---
	case opcodes.OP_BINARY_ADD, opcodes.OP_BINARY_SUB, opcodes.OP_BINARY_MUL,
		opcodes.OP_BINARY_DIV, opcodes.OP_BINARY_FLOORDIV, opcodes.OP_BINARY_MOD,
		opcodes.OP_BINARY_POW, opcodes.OP_BINARY_LSHIFT, opcodes.OP_BINARY_RSHIFT,
		opcodes.OP_BINARY_AND, opcodes.OP_BINARY_OR, opcodes.OP_BINARY_XOR:
		b := f.Pop()
		a := f.Pop()
		v, aerr := vm.binaryOp(inst.Op, a, b)
		values.DropValue(h, a)
		values.DropValue(h, b)
		if aerr != nil {
			return nil, aerr, false, values.Value{}
		}
		f.Push(v)
	case opcodes.OP_UNARY_NEGATIVE, opcodes.OP_UNARY_POSITIVE, opcodes.OP_UNARY_NOT, opcodes.OP_UNARY_INVERT:
		a := f.Pop()
		v, aerr := vm.unaryOp(inst.Op, a)
		values.DropValue(h, a)
		if aerr != nil {
			return nil, aerr, false, values.Value{}
		}
		f.Push(v)
	case opcodes.OP_COMPARE_EQ, opcodes.OP_COMPARE_NE:
		b := f.Pop()
		a := f.Pop()
		eq := env.PyEq(a, b)
		if inst.Op == opcodes.OP_COMPARE_NE {
			eq = !eq
		}
		values.DropValue(h, a)
		values.DropValue(h, b)
		f.Push(values.Bool(eq))
	case opcodes.OP_COMPARE_LT, opcodes.OP_COMPARE_LE, opcodes.OP_COMPARE_GT, opcodes.OP_COMPARE_GE:
		b := f.Pop()
		a := f.Pop()
		c, ok := env.PyCmp(a, b)
		values.DropValue(h, a)
		values.DropValue(h, b)
		if !ok {
			return nil, vm.typeError("unorderable types"), false, values.Value{}
		}
		f.Push(values.Bool(cmpPasses(inst.Op, c)))
	case opcodes.OP_COMPARE_IS:
		b := f.Pop()
		a := f.Pop()
		r := values.Is(a, b)
		values.DropValue(h, a)
		values.DropValue(h, b)
		f.Push(values.Bool(r))
	case opcodes.OP_COMPARE_IS_NOT:
		b := f.Pop()
		a := f.Pop()
		r := !values.Is(a, b)
		values.DropValue(h, a)
		values.DropValue(h, b)
		f.Push(values.Bool(r))
	case opcodes.OP_COMPARE_MOD_EQ:
		// Specialized `x % n == k`: A = n, B = k, x already on the stack.
		x := f.Pop()
		var xi int64
		switch x.Type {
		case values.TypeInt:
			xi = x.Data.(int64)
		case values.TypeBool:
			if x.Data.(bool) {
				xi = 1
			}
		}
		n := int64(inst.A)
		k := int64(inst.B)
		var mod int64
		if n != 0 {
			mod = xi % n
			if mod < 0 {
				mod += n
			}
		}
		values.DropValue(h, x)
		f.Push(values.Bool(mod == k))

	// --- containers ---
	case opcodes.OP_BUILD_LIST:
		elems := f.PopN(int(inst.A))
		ref, aerr := h.Allocate(values.NewList(elems), vm.admission())
		if aerr != nil {
			return nil, vm.memoryError(), false, values.Value{}
		}
		f.Push(values.RefV(ref))
	case opcodes.OP_BUILD_TUPLE:
		elems := f.PopN(int(inst.A))
		if len(elems) == 0 {
			f.Push(values.RefV(h.EmptyTuple(values.MakeEmptyTuple)))
			break
		}
		ref, aerr := h.Allocate(values.NewTuple(elems), vm.admission())
		if aerr != nil {
			return nil, vm.memoryError(), false, values.Value{}
		}
		f.Push(values.RefV(ref))
	case opcodes.OP_BUILD_DICT:
		n := int(inst.A)
		pairs := f.PopN(n * 2)
		d := values.NewDict()
		for i := 0; i < n; i++ {
			k := pairs[i*2]
			v := pairs[i*2+1]
			hv, hok := env.Hash(k)
			if !hok {
				return nil, vm.typeError("unhashable type"), false, values.Value{}
			}
			old, existed := d.Set(hv, k, v, func(p, q values.Value) bool { return env.PyEq(p, q) })
			if existed {
				values.DropValue(h, old)
				values.DropValue(h, k)
			}
		}
		ref, aerr := h.Allocate(d, vm.admission())
		if aerr != nil {
			return nil, vm.memoryError(), false, values.Value{}
		}
		f.Push(values.RefV(ref))
	case opcodes.OP_BUILD_SET:
		n := int(inst.A)
		elems := f.PopN(n)
		s := values.NewSet()
		for _, e := range elems {
			hv, hok := env.Hash(e)
			if !hok {
				return nil, vm.typeError("unhashable type"), false, values.Value{}
			}
			if !s.Add(hv, e, func(p, q values.Value) bool { return env.PyEq(p, q) }) {
				values.DropValue(h, e)
			}
		}
		ref, aerr := h.Allocate(s, vm.admission())
		if aerr != nil {
			return nil, vm.memoryError(), false, values.Value{}
		}
		f.Push(values.RefV(ref))
	case opcodes.OP_BUILD_SLICE:
		step := f.Pop()
		stop := f.Pop()
		start := f.Pop()
		ref, aerr := h.Allocate(values.NewSlice(start, stop, step), vm.admission())
		if aerr != nil {
			return nil, vm.memoryError(), false, values.Value{}
		}
		f.Push(values.RefV(ref))
	case opcodes.OP_LIST_APPEND:
		v := f.Pop()
		target := f.Stack[len(f.Stack)-int(inst.A)]
		lp := h.GetMut(target.Ref()).(*values.ListPayload)
		lp.Append(v)
	case opcodes.OP_LIST_EXTEND:
		v := f.Pop()
		target := f.Stack[len(f.Stack)-int(inst.A)]
		lp := h.GetMut(target.Ref()).(*values.ListPayload)
		if v.Type == values.TypeRef {
			if src, ok := h.Get(v.Ref()).(*values.ListPayload); ok {
				lp.Extend(values.CloneSlice(h, src.Elems))
			}
		}
		values.DropValue(h, v)
	case opcodes.OP_DICT_UPDATE:
		v := f.Pop()
		target := f.Stack[len(f.Stack)-int(inst.A)]
		dp := h.GetMut(target.Ref()).(*values.DictPayload)
		if v.Type == values.TypeRef {
			if src, ok := h.Get(v.Ref()).(*values.DictPayload); ok {
				for _, e := range src.Entries {
					if e.Deleted {
						continue
					}
					k := values.CloneValue(h, e.Key)
					val := values.CloneValue(h, e.Val)
					hv, hok := env.Hash(k)
					if !hok {
						values.DropValue(h, k)
						values.DropValue(h, val)
						continue
					}
					old, existed := dp.Set(hv, k, val, func(p, q values.Value) bool { return env.PyEq(p, q) })
					if existed {
						values.DropValue(h, old)
						values.DropValue(h, k)
					}
				}
			}
		}
		values.DropValue(h, v)
	case opcodes.OP_SET_UPDATE:
		v := f.Pop()
		target := f.Stack[len(f.Stack)-int(inst.A)]
		sp := h.GetMut(target.Ref()).(*values.SetPayload)
		elems, serr := vm.sequenceElems(v)
		if serr == nil {
			for _, e := range elems {
				c := values.CloneValue(h, e)
				hv, hok := env.Hash(c)
				if !hok {
					values.DropValue(h, c)
					continue
				}
				if !sp.Add(hv, c, func(p, q values.Value) bool { return env.PyEq(p, q) }) {
					values.DropValue(h, c)
				}
			}
		}
		values.DropValue(h, v)
	case opcodes.OP_UNPACK_SEQUENCE:
		v := f.Pop()
		n := int(inst.A)
		elems, uerr := vm.sequenceElems(v)
		values.DropValue(h, v)
		if uerr != nil {
			return nil, uerr, false, values.Value{}
		}
		if len(elems) != n {
			return nil, vm.valueError("wrong number of values to unpack"), false, values.Value{}
		}
		for i := n - 1; i >= 0; i-- {
			f.Push(values.CloneValue(h, elems[i]))
		}
	case opcodes.OP_UNPACK_EX:
		values.DropValue(h, f.Pop())

	// --- control flow ---
	case opcodes.OP_JUMP:
		f.PC = int(inst.A)
	case opcodes.OP_POP_JUMP_IF_TRUE:
		v := f.Pop()
		t := env.PyBool(v)
		values.DropValue(h, v)
		if t {
			f.PC = int(inst.A)
		}
	case opcodes.OP_POP_JUMP_IF_FALSE:
		v := f.Pop()
		t := env.PyBool(v)
		values.DropValue(h, v)
		if !t {
			f.PC = int(inst.A)
		}
	case opcodes.OP_JUMP_IF_TRUE_OR_POP:
		if env.PyBool(f.Top()) {
			f.PC = int(inst.A)
		} else {
			values.DropValue(h, f.Pop())
		}
	case opcodes.OP_JUMP_IF_FALSE_OR_POP:
		if !env.PyBool(f.Top()) {
			f.PC = int(inst.A)
		} else {
			values.DropValue(h, f.Pop())
		}
	case opcodes.OP_GET_ITER:
		v := f.Pop()
		if _, ierr := vm.sequenceElems(v); ierr != nil {
			values.DropValue(h, v)
			return nil, ierr, false, values.Value{}
		}
		ref, aerr := h.Allocate(values.NewIter(v), vm.admission())
		if aerr != nil {
			values.DropValue(h, v)
			return nil, vm.memoryError(), false, values.Value{}
		}
		f.Push(values.RefV(ref))
	case opcodes.OP_FOR_ITER:
		it := h.GetMut(f.Top().Ref()).(*values.IterPayload)
		elems, ierr := vm.sequenceElems(it.Source)
		if ierr != nil {
			values.DropValue(h, f.Pop())
			return nil, ierr, false, values.Value{}
		}
		if it.Pos >= len(elems) {
			values.DropValue(h, f.Pop())
			f.PC = int(inst.A)
		} else {
			f.Push(values.CloneValue(h, elems[it.Pos]))
			it.Pos++
		}
	case opcodes.OP_SETUP_FINALLY:
		f.PushBlock(Block{Kind: BlockFinally, HandlerPC: int(inst.A), StackHeight: len(f.Stack)})
	case opcodes.OP_SETUP_EXCEPT:
		f.PushBlock(Block{Kind: BlockExcept, HandlerPC: int(inst.A), StackHeight: len(f.Stack)})
	case opcodes.OP_POP_BLOCK:
		f.PopBlock()
	case opcodes.OP_POP_EXCEPT:
		values.DropValue(h, f.Pop())
	case opcodes.OP_RERAISE:
		v := f.Pop()
		if v.Type == values.TypeRef {
			if exp, ok := h.Get(v.Ref()).(*values.ExceptionPayload); ok {
				return nil, exp, false, values.Value{}
			}
		}
		values.DropValue(h, v)
	case opcodes.OP_RAISE_VARARGS:
		v := f.Pop()
		if v.Type == values.TypeRef {
			if exp, ok := h.Get(v.Ref()).(*values.ExceptionPayload); ok {
				return nil, exp, false, values.Value{}
			}
		}
		values.DropValue(h, v)
		return nil, vm.runtimeError("exceptions must derive from BaseException"), false, values.Value{}
	case opcodes.OP_WITH_ENTER, opcodes.OP_WITH_EXIT:

	// --- calls ---
	case opcodes.OP_CALL_FUNCTION:
		return vm.callFunction(f, int(inst.A), values.Value{})
	case opcodes.OP_CALL_FUNCTION_KW:
		return vm.callFunction(f, int(inst.A), f.Pop())
	case opcodes.OP_CALL_METHOD:
		return vm.callFunction(f, int(inst.A), values.Value{})
	case opcodes.OP_RETURN_VALUE:
		v := f.Pop()
		vm.popFrame()
		f.Destroy(h)
		return nil, nil, true, v
	case opcodes.OP_MAKE_FUNCTION:
		f.Push(values.FunctionV(inst.A))
	case opcodes.OP_MAKE_CLOSURE:
		f.Push(values.FunctionV(inst.A))
	case opcodes.OP_BUILD_CLASS:
		// Class bodies are resolved ahead of time into vm.Classes by the
		// program builder (runner.NewProgram), not assembled on the stack at
		// run time, so a front end never actually emits this opcode. Fail
		// loudly rather than push a placeholder value a caller could mistake
		// for a real class.
		return nil, vm.runtimeError("unimplemented opcode"), false, values.Value{}

	// --- f-strings ---
	case opcodes.OP_FORMAT_VALUE:
		v := f.Pop()
		flags := byte(inst.A)
		conv := flags &^ opcodes.HasFormatSpecFlag
		hasSpec := flags&opcodes.HasFormatSpecFlag != 0 && int(inst.B) < len(f.Code.FormatSpecs)
		var fs values.FormatSpec
		if hasSpec {
			fs = f.Code.FormatSpecs[inst.B]
		}
		var s string
		switch conv {
		case opcodes.ConvRepr:
			s = env.PyRepr(v)
			if hasSpec {
				s = fs.Apply(s)
			}
		case opcodes.ConvAscii:
			s = asciiEscape(env.PyRepr(v))
			if hasSpec {
				s = fs.Apply(s)
			}
		case opcodes.ConvStr:
			s = env.PyStr(v)
			if hasSpec {
				s = fs.Apply(s)
			}
		default: // ConvNone: str() unless a format_spec picks a numeric rendering
			if hasSpec {
				rendered, ferr := fs.FormatValue(env, v)
				if ferr != nil {
					values.DropValue(h, v)
					return nil, vm.valueError(ferr.Error()), false, values.Value{}
				}
				s = rendered
			} else {
				s = env.PyStr(v)
			}
		}
		values.DropValue(h, v)
		f.Push(vm.makeString(s))
	case opcodes.OP_BUILD_STRING:
		parts := f.PopN(int(inst.A))
		var sb []byte
		for _, p := range parts {
			sb = append(sb, env.PyStr(p)...)
			values.DropValue(h, p)
		}
		f.Push(vm.makeString(string(sb)))

	// --- async ---
	case opcodes.OP_GET_AWAITABLE:
		// No-op: every awaitable shape Monty produces (a coroutine ref, a
		// gather ref, or a plain suspend-on-call that already happened at
		// the CALL_FUNCTION/CALL_METHOD instruction itself) is already in
		// its final form by the time YIELD_FROM_AWAIT runs.
	case opcodes.OP_YIELD_FROM_AWAIT:
		v := f.Pop()
		return &Suspension{Kind: SuspendGather, CallID: vm.allocCallID(), Value: v}, nil, false, values.Value{}
	case opcodes.OP_RESUME_AWAIT:
		// No-op: the scheduler pushes the resolved result directly onto
		// this frame's stack before resuming, so by the time this
		// instruction runs the value is already where the expression
		// expects it.
	case opcodes.OP_GET_AITER:

	default:
		return nil, vm.runtimeError("unimplemented opcode"), false, values.Value{}
	}
	return nil, nil, false, values.Value{}
}

func cmpPasses(op opcodes.Opcode, c int) bool {
	switch op {
	case opcodes.OP_COMPARE_LT:
		return c < 0
	case opcodes.OP_COMPARE_LE:
		return c <= 0
	case opcodes.OP_COMPARE_GT:
		return c > 0
	case opcodes.OP_COMPARE_GE:
		return c >= 0
	}
	return false
}

// cellRef resolves a LOAD_CELL/STORE_CELL operand: indices below
// len(Code.CellNames) name a cell this frame itself owns; indices at or
// above that name a free variable supplied by the enclosing frame at
// closure-creation time, indexed from f.FreeCells (spec §4.F "cells
// injected from captured closure").
func cellRef(f *Frame, idx int) heap.Ref {
	if idx < len(f.Cells) {
		return f.Cells[idx]
	}
	return f.FreeCells[idx-len(f.Cells)]
}

func cellName(f *Frame, idx int) string {
	if idx < len(f.Code.CellNames) {
		return f.Code.CellNames[idx]
	}
	rel := idx - len(f.Code.CellNames)
	if rel < len(f.Code.FreeCells) {
		return f.Code.FreeCells[rel]
	}
	return "?"
}

// asciiEscape mirrors Python's ascii(): like repr(), but every non-ASCII
// rune is backslash-escaped instead of passed through, so the result is
// safe to print on an ASCII-only terminal (OP_FORMAT_VALUE's !a conversion).
func asciiEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r <= 0xff:
			fmt.Fprintf(&b, "\\x%02x", r)
		case r <= 0xffff:
			fmt.Fprintf(&b, "\\u%04x", r)
		default:
			fmt.Fprintf(&b, "\\U%08x", r)
		}
	}
	return b.String()
}
