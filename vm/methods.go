package vm

import (
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
)

// callBuiltinMethod routes a CALL_METHOD on a built-in container/string/
// bytes value to its payload implementation (spec §4.D "full method
// surface"). obj stays owned by the caller (vm.calls.go's callFunction),
// which drops it once this returns; args are taken over by the method
// implementation, which drops or stores each one.
func (vm *VM) callBuiltinMethod(obj values.Value, method string, args []values.Value) (values.Value, *values.ExceptionPayload) {
	if obj.Type != values.TypeRef {
		values.DropSlice(vm.Heap, args)
		return values.Value{}, vm.typeError("object has no method '" + method + "'")
	}
	switch p := vm.Heap.Get(obj.Ref()).(type) {
	case *values.StrPayload:
		return vm.strMethod(p, method, args)
	case *values.BytesPayload:
		return vm.bytesMethod(p, method, args)
	case *values.ListPayload:
		return vm.listMethod(p, method, args)
	case *values.TuplePayload:
		return vm.tupleMethod(p, method, args)
	case *values.DictPayload:
		return vm.dictMethod(p, method, args)
	case *values.SetPayload:
		return vm.setMethod(p, method, args)
	case *values.RangePayload:
		return vm.rangeMethod(p, method, args)
	}
	values.DropSlice(vm.Heap, args)
	return values.Value{}, vm.typeError("object has no method '" + method + "'")
}

func (vm *VM) argStr(args []values.Value, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	return vm.strConcatOperand(args[i])
}

func (vm *VM) argInt(args []values.Value, i int, def int) int {
	if i >= len(args) || args[i].Type != values.TypeInt {
		return def
	}
	return int(args[i].Data.(int64))
}

// --- str ---

func (vm *VM) strMethod(p *values.StrPayload, method string, args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	defer values.DropSlice(h, args)
	switch interns.LookupStaticString(method) {
	case interns.SSSplit:
		sep, hasSep := vm.argStr(args, 0)
		maxsplit := vm.argInt(args, 1, -1)
		var parts []string
		var err error
		if hasSep {
			parts, err = p.Split(sep, maxsplit)
		} else {
			parts = p.SplitWhitespace()
		}
		if err != nil {
			return values.Value{}, vm.valueError(err.Error())
		}
		return vm.makeList(vm.stringsToValues(parts)), nil
	case interns.SSRsplit:
		sep, hasSep := vm.argStr(args, 0)
		maxsplit := vm.argInt(args, 1, -1)
		var parts []string
		var err error
		if hasSep {
			parts, err = p.Split(sep, maxsplit)
		} else {
			parts = p.SplitWhitespace()
		}
		if err != nil {
			return values.Value{}, vm.valueError(err.Error())
		}
		return vm.makeList(vm.stringsToValues(parts)), nil
	case interns.SSSplitlines:
		keepends := len(args) > 0 && vm.env().PyBool(args[0])
		return vm.makeList(vm.stringsToValues(p.Splitlines(keepends))), nil
	case interns.SSStrip:
		cut, _ := vm.argStr(args, 0)
		return vm.makeString(p.Strip(cut)), nil
	case interns.SSLstrip:
		cut, _ := vm.argStr(args, 0)
		return vm.makeString(p.LStrip(cut)), nil
	case interns.SSRstrip:
		cut, _ := vm.argStr(args, 0)
		return vm.makeString(p.RStrip(cut)), nil
	case interns.SSFind:
		sub, _ := vm.argStr(args, 0)
		return values.Int(int64(p.Find(sub))), nil
	case interns.SSRfind:
		sub, _ := vm.argStr(args, 0)
		return values.Int(int64(p.RFind(sub))), nil
	case interns.SSReplace:
		old, _ := vm.argStr(args, 0)
		new_, _ := vm.argStr(args, 1)
		count := vm.argInt(args, 2, -1)
		return vm.makeString(p.Replace(old, new_, count)), nil
	case interns.SSLower:
		return vm.makeString(p.Lower()), nil
	case interns.SSUpper:
		return vm.makeString(p.Upper()), nil
	case interns.SSCapitalize:
		return vm.makeString(p.Capitalize()), nil
	case interns.SSTitle:
		return vm.makeString(p.Title()), nil
	case interns.SSFormat:
		return vm.makeString(p.Value()), nil
	case interns.SSEncode:
		enc, hasEnc := vm.argStr(args, 0)
		if !hasEnc {
			enc = "utf-8"
		}
		s, err := p.Encode(enc)
		if err != nil {
			return values.Value{}, vm.valueError(err.Error())
		}
		ref, aerr := h.Allocate(values.NewBytes([]byte(s)), vm.admission())
		if aerr != nil {
			return values.Value{}, vm.memoryError()
		}
		return values.RefV(ref), nil
	case interns.SSStartswith:
		prefix, _ := vm.argStr(args, 0)
		return values.Bool(p.StartsWith(prefix)), nil
	case interns.SSEndswith:
		suffix, _ := vm.argStr(args, 0)
		return values.Bool(p.EndsWith(suffix)), nil
	case interns.SSJoin:
		if len(args) != 1 {
			return values.Value{}, vm.typeError("join() takes exactly one argument")
		}
		elems, serr := vm.sequenceElems(args[0])
		if serr != nil {
			return values.Value{}, serr
		}
		parts := make([]string, len(elems))
		for i, e := range elems {
			s, ok := vm.strConcatOperand(e)
			if !ok {
				return values.Value{}, vm.typeError("sequence item: expected str instance")
			}
			parts[i] = s
		}
		return vm.makeString(p.Join(parts)), nil
	case interns.SSPartition:
		sep, _ := vm.argStr(args, 0)
		a, b, c := p.Partition(sep)
		return vm.makeTuple([]values.Value{vm.makeString(a), vm.makeString(b), vm.makeString(c)}), nil
	case interns.SSRpartition:
		sep, _ := vm.argStr(args, 0)
		a, b, c := p.RPartition(sep)
		return vm.makeTuple([]values.Value{vm.makeString(a), vm.makeString(b), vm.makeString(c)}), nil
	case interns.SSZfill:
		width := vm.argInt(args, 0, 0)
		return vm.makeString(p.ZFill(width)), nil
	case interns.SSLjust:
		width := vm.argInt(args, 0, 0)
		fill := ' '
		if f, ok := vm.argStr(args, 1); ok && len(f) > 0 {
			fill = []rune(f)[0]
		}
		return vm.makeString(p.LJust(width, fill)), nil
	case interns.SSRjust:
		width := vm.argInt(args, 0, 0)
		fill := ' '
		if f, ok := vm.argStr(args, 1); ok && len(f) > 0 {
			fill = []rune(f)[0]
		}
		return vm.makeString(p.RJust(width, fill)), nil
	case interns.SSIsdigit:
		return values.Bool(p.IsDigit()), nil
	case interns.SSIsalpha:
		return values.Bool(p.IsAlpha()), nil
	case interns.SSIsalnum:
		return values.Bool(p.IsAlnum()), nil
	case interns.SSIsspace:
		return values.Bool(p.IsSpace()), nil
	}
	return values.Value{}, vm.typeError("str object has no method '" + method + "'")
}

func (vm *VM) stringsToValues(ss []string) []values.Value {
	out := make([]values.Value, len(ss))
	for i, s := range ss {
		out[i] = vm.makeString(s)
	}
	return out
}

// --- bytes ---

func (vm *VM) bytesMethod(p *values.BytesPayload, method string, args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	defer values.DropSlice(h, args)
	switch interns.LookupStaticString(method) {
	case interns.SSDecode:
		enc, hasEnc := vm.argStr(args, 0)
		if !hasEnc {
			enc = "utf-8"
		}
		s, err := p.Decode(enc)
		if err != nil {
			return values.Value{}, vm.valueError(err.Error())
		}
		return vm.makeString(s), nil
	case interns.SSHex:
		return vm.makeString(p.Hex()), nil
	case interns.SSLower:
		ref, aerr := h.Allocate(values.NewBytes(p.Lower()), vm.admission())
		if aerr != nil {
			return values.Value{}, vm.memoryError()
		}
		return values.RefV(ref), nil
	case interns.SSUpper:
		ref, aerr := h.Allocate(values.NewBytes(p.Upper()), vm.admission())
		if aerr != nil {
			return values.Value{}, vm.memoryError()
		}
		return values.RefV(ref), nil
	case interns.SSFind:
		if len(args) != 1 {
			return values.Value{}, vm.typeError("find() takes exactly one argument")
		}
		sub, ok := vm.bytesOperand(args[0])
		if !ok {
			return values.Value{}, vm.typeError("a bytes-like object is required")
		}
		return values.Int(int64(p.Find(sub))), nil
	}
	return values.Value{}, vm.typeError("bytes object has no method '" + method + "'")
}

func (vm *VM) bytesOperand(v values.Value) ([]byte, bool) {
	if v.Type != values.TypeRef {
		return nil, false
	}
	if bp, ok := vm.Heap.Get(v.Ref()).(*values.BytesPayload); ok {
		return bp.Value(), true
	}
	return nil, false
}

// --- list ---

func (vm *VM) listMethod(p *values.ListPayload, method string, args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	switch interns.LookupStaticString(method) {
	case interns.SSAppend:
		if len(args) != 1 {
			values.DropSlice(h, args)
			return values.Value{}, vm.typeError("append() takes exactly one argument")
		}
		p.Append(args[0])
		return values.None(), nil
	case interns.SSExtend:
		defer values.DropSlice(h, args)
		if len(args) != 1 {
			return values.Value{}, vm.typeError("extend() takes exactly one argument")
		}
		elems, serr := vm.sequenceElems(args[0])
		if serr != nil {
			return values.Value{}, serr
		}
		p.Extend(values.CloneSlice(h, elems))
		return values.None(), nil
	case interns.SSInsert:
		if len(args) != 2 {
			values.DropSlice(h, args)
			return values.Value{}, vm.typeError("insert() takes exactly two arguments")
		}
		idx := vm.argInt(args, 0, 0)
		v := args[1]
		n := p.Len()
		if idx < 0 {
			idx += n
		}
		if idx < 0 {
			idx = 0
		}
		if idx > n {
			idx = n
		}
		p.Insert(idx, v)
		return values.None(), nil
	case interns.SSPop:
		defer values.DropSlice(h, args)
		idx := vm.argInt(args, 0, -1)
		n := p.Len()
		if norm, ok := normalizeIndex(idx, n); ok {
			v, _ := p.Pop(norm)
			return v, nil
		}
		return values.Value{}, vm.indexError()
	case interns.SSRemove:
		defer values.DropSlice(h, args)
		if len(args) != 1 {
			return values.Value{}, vm.typeError("remove() takes exactly one argument")
		}
		for i := 0; i < p.Len(); i++ {
			v, _ := p.At(i)
			if env.PyEq(v, args[0]) {
				removed, _ := p.Pop(i)
				values.DropValue(h, removed)
				return values.None(), nil
			}
		}
		return values.Value{}, vm.valueError("list.remove(x): x not in list")
	case interns.SSReverse:
		values.DropSlice(h, args)
		p.Reverse()
		return values.None(), nil
	case interns.SSSort:
		values.DropSlice(h, args)
		var sortErr *values.ExceptionPayload
		p.Sort(func(a, b values.Value) bool {
			c, ok := env.PyCmp(a, b)
			if !ok {
				sortErr = vm.typeError("'<' not supported between instances")
			}
			return c < 0
		})
		if sortErr != nil {
			return values.Value{}, sortErr
		}
		return values.None(), nil
	case interns.SSIndex:
		defer values.DropSlice(h, args)
		if len(args) != 1 {
			return values.Value{}, vm.typeError("index() takes exactly one argument")
		}
		for i := 0; i < p.Len(); i++ {
			v, _ := p.At(i)
			if env.PyEq(v, args[0]) {
				return values.Int(int64(i)), nil
			}
		}
		return values.Value{}, vm.valueError("value not in list")
	case interns.SSCount:
		defer values.DropSlice(h, args)
		if len(args) != 1 {
			return values.Value{}, vm.typeError("count() takes exactly one argument")
		}
		n := 0
		for i := 0; i < p.Len(); i++ {
			v, _ := p.At(i)
			if env.PyEq(v, args[0]) {
				n++
			}
		}
		return values.Int(int64(n)), nil
	}
	values.DropSlice(h, args)
	return values.Value{}, vm.typeError("list object has no method '" + method + "'")
}

// --- tuple ---

func (vm *VM) tupleMethod(p *values.TuplePayload, method string, args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	defer values.DropSlice(h, args)
	switch interns.LookupStaticString(method) {
	case interns.SSIndex:
		if len(args) != 1 {
			return values.Value{}, vm.typeError("index() takes exactly one argument")
		}
		for i := 0; i < p.Len(); i++ {
			v, _ := p.At(i)
			if env.PyEq(v, args[0]) {
				return values.Int(int64(i)), nil
			}
		}
		return values.Value{}, vm.valueError("value not in tuple")
	case interns.SSCount:
		if len(args) != 1 {
			return values.Value{}, vm.typeError("count() takes exactly one argument")
		}
		n := 0
		for i := 0; i < p.Len(); i++ {
			v, _ := p.At(i)
			if env.PyEq(v, args[0]) {
				n++
			}
		}
		return values.Int(int64(n)), nil
	}
	return values.Value{}, vm.typeError("tuple object has no method '" + method + "'")
}

// --- dict ---

func (vm *VM) dictMethod(p *values.DictPayload, method string, args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	switch interns.LookupStaticString(method) {
	case interns.SSKeys:
		values.DropSlice(h, args)
		return vm.makeList(values.CloneSlice(h, p.Keys())), nil
	case interns.SSValues:
		values.DropSlice(h, args)
		return vm.makeList(values.CloneSlice(h, p.Values())), nil
	case interns.SSItems:
		values.DropSlice(h, args)
		items := p.Items()
		out := make([]values.Value, len(items))
		for i, e := range items {
			out[i] = vm.makeTuple([]values.Value{values.CloneValue(h, e.Key), values.CloneValue(h, e.Val)})
		}
		return vm.makeList(out), nil
	case interns.SSGet:
		defer values.DropSlice(h, args)
		if len(args) < 1 || len(args) > 2 {
			return values.Value{}, vm.typeError("get() takes one or two arguments")
		}
		hv, hok := env.Hash(args[0])
		if !hok {
			return values.Value{}, vm.typeError("unhashable type")
		}
		if v, ok := p.Get(hv, args[0], env.PyEq); ok {
			return values.CloneValue(h, v), nil
		}
		if len(args) == 2 {
			return values.CloneValue(h, args[1]), nil
		}
		return values.None(), nil
	case interns.SSSetdefault:
		if len(args) < 1 || len(args) > 2 {
			values.DropSlice(h, args)
			return values.Value{}, vm.typeError("setdefault() takes one or two arguments")
		}
		hv, hok := env.Hash(args[0])
		if !hok {
			values.DropSlice(h, args)
			return values.Value{}, vm.typeError("unhashable type")
		}
		if v, ok := p.Get(hv, args[0], env.PyEq); ok {
			values.DropSlice(h, args)
			return values.CloneValue(h, v), nil
		}
		def := values.None()
		if len(args) == 2 {
			def = args[1]
		}
		key := args[0]
		old, existed := p.Set(hv, key, values.CloneValue(h, def), env.PyEq)
		if existed {
			values.DropValue(h, old)
			values.DropValue(h, key)
		}
		return def, nil
	case interns.SSUpdate:
		defer values.DropSlice(h, args)
		if len(args) != 1 {
			return values.Value{}, vm.typeError("update() takes exactly one argument")
		}
		other, ok := vm.Heap.Get(args[0].Ref()).(*values.DictPayload)
		if args[0].Type != values.TypeRef || !ok {
			return values.Value{}, vm.typeError("update() argument must be a dict")
		}
		for _, e := range other.Items() {
			hv, _ := env.Hash(e.Key)
			key := values.CloneValue(h, e.Key)
			val := values.CloneValue(h, e.Val)
			old, existed := p.Set(hv, key, val, env.PyEq)
			if existed {
				values.DropValue(h, old)
				values.DropValue(h, key)
			}
		}
		return values.None(), nil
	case interns.SSPopitem:
		values.DropSlice(h, args)
		k, v, ok := p.Popitem()
		if !ok {
			return values.Value{}, vm.keyError(values.None())
		}
		return vm.makeTuple([]values.Value{k, v}), nil
	case interns.SSClear:
		values.DropSlice(h, args)
		for _, e := range p.Items() {
			values.DropValue(h, e.Key)
			values.DropValue(h, e.Val)
		}
		p.Clear()
		return values.None(), nil
	}
	values.DropSlice(h, args)
	return values.Value{}, vm.typeError("dict object has no method '" + method + "'")
}

// --- set ---

func (vm *VM) setMethod(p *values.SetPayload, method string, args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	switch interns.LookupStaticString(method) {
	case interns.SSAdd:
		if len(args) != 1 {
			values.DropSlice(h, args)
			return values.Value{}, vm.typeError("add() takes exactly one argument")
		}
		hv, hok := env.Hash(args[0])
		if !hok {
			values.DropSlice(h, args)
			return values.Value{}, vm.typeError("unhashable type")
		}
		if !p.Add(hv, args[0], env.PyEq) {
			values.DropValue(h, args[0])
		}
		return values.None(), nil
	case interns.SSDiscard:
		defer values.DropSlice(h, args)
		if len(args) != 1 {
			return values.Value{}, vm.typeError("discard() takes exactly one argument")
		}
		hv, hok := env.Hash(args[0])
		if hok {
			if old, ok := p.Discard(hv, args[0], env.PyEq); ok {
				values.DropValue(h, old)
			}
		}
		return values.None(), nil
	case interns.SSUnion:
		return vm.setCombine(p, args, func(a, b bool) bool { return a || b })
	case interns.SSIntersection:
		return vm.setCombine(p, args, func(a, b bool) bool { return a && b })
	case interns.SSDifference:
		return vm.setCombine(p, args, func(a, b bool) bool { return a && !b })
	case interns.SSSymmetricDifference:
		return vm.setCombine(p, args, func(a, b bool) bool { return a != b })
	case interns.SSIssubset:
		defer values.DropSlice(h, args)
		other, ok := vm.setOperand(args, 0)
		if !ok {
			return values.Value{}, vm.typeError("issubset() takes exactly one set argument")
		}
		for _, m := range p.Members() {
			hv, _ := env.Hash(m)
			if !other.Contains(hv, m, env.PyEq) {
				return values.Bool(false), nil
			}
		}
		return values.Bool(true), nil
	case interns.SSIssuperset:
		defer values.DropSlice(h, args)
		other, ok := vm.setOperand(args, 0)
		if !ok {
			return values.Value{}, vm.typeError("issuperset() takes exactly one set argument")
		}
		for _, m := range other.Members() {
			hv, _ := env.Hash(m)
			if !p.Contains(hv, m, env.PyEq) {
				return values.Bool(false), nil
			}
		}
		return values.Bool(true), nil
	}
	values.DropSlice(h, args)
	return values.Value{}, vm.typeError("set object has no method '" + method + "'")
}

func (vm *VM) setOperand(args []values.Value, i int) (*values.SetPayload, bool) {
	if i >= len(args) || args[i].Type != values.TypeRef {
		return nil, false
	}
	p, ok := vm.Heap.Get(args[i].Ref()).(*values.SetPayload)
	return p, ok
}

func (vm *VM) setCombine(p *values.SetPayload, args []values.Value, keep func(inA, inB bool) bool) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	env := vm.env()
	defer values.DropSlice(h, args)
	other, ok := vm.setOperand(args, 0)
	if !ok {
		return values.Value{}, vm.typeError("set operation takes exactly one set argument")
	}
	out := values.NewSet()
	for _, m := range p.Members() {
		hv, _ := env.Hash(m)
		if keep(true, other.Contains(hv, m, env.PyEq)) {
			out.Add(hv, values.CloneValue(h, m), env.PyEq)
		}
	}
	for _, m := range other.Members() {
		hv, _ := env.Hash(m)
		if p.Contains(hv, m, env.PyEq) {
			continue
		}
		if keep(false, true) {
			out.Add(hv, values.CloneValue(h, m), env.PyEq)
		}
	}
	ref, aerr := h.Allocate(out, vm.admission())
	if aerr != nil {
		return values.Value{}, vm.memoryError()
	}
	return values.RefV(ref), nil
}

// --- range ---

func (vm *VM) rangeMethod(p *values.RangePayload, method string, args []values.Value) (values.Value, *values.ExceptionPayload) {
	h := vm.Heap
	defer values.DropSlice(h, args)
	switch interns.LookupStaticString(method) {
	case interns.SSIndex:
		if len(args) != 1 || args[0].Type != values.TypeInt {
			return values.Value{}, vm.typeError("index() takes exactly one integer argument")
		}
		n := args[0].Data.(int64)
		for i := 0; i < p.Len(); i++ {
			v, _ := p.At(i)
			if v == n {
				return values.Int(int64(i)), nil
			}
		}
		return values.Value{}, vm.valueError("value not in range")
	case interns.SSCount:
		if len(args) != 1 || args[0].Type != values.TypeInt {
			return values.Value{}, vm.typeError("count() takes exactly one integer argument")
		}
		n := args[0].Data.(int64)
		if p.Contains(n) {
			return values.Int(1), nil
		}
		return values.Int(0), nil
	}
	return values.Value{}, vm.typeError("range object has no method '" + method + "'")
}
