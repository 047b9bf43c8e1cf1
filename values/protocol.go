package values

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
)

// maxCompareDepth guards py_eq/py_cmp/py_repr against unbounded recursion
// through self-referential containers (spec §5, "depth guard" rather than
// full cycle detection — a pragmatic middle ground the original also takes
// for its default recursion limit).
const maxCompareDepth = 200

// Env bundles the two session-owned stores every protocol function needs.
// Nothing here is ever stored on a Value — it is threaded explicitly through
// every call, matching the no-global-state design.
type Env struct {
	Heap    *heap.Heap
	Interns *interns.Interns
}

func (e Env) strOf(v Value) (string, bool) {
	switch v.Type {
	case TypeInternString:
		return e.Interns.String(v.Data.(interns.StringID)), true
	case TypeRef:
		if p, ok := e.Heap.Get(v.Ref()).(*StrPayload); ok {
			return p.Value(), true
		}
	}
	return "", false
}

// PyBool implements truthiness (`if x:`), spec §4.D per-type rules.
func (e Env) PyBool(v Value) bool {
	switch v.Type {
	case TypeNone, TypeUndefined:
		return false
	case TypeBool:
		return v.Data.(bool)
	case TypeInt:
		return v.Data.(int64) != 0
	case TypeFloat:
		return v.Data.(float64) != 0
	case TypeInternString:
		return len(e.Interns.String(v.Data.(interns.StringID))) > 0
	case TypeInternBytes:
		return len(e.Interns.Bytes(v.Data.(interns.BytesID))) > 0
	case TypeInternLongInt:
		return e.Interns.LongInt(v.Data.(interns.LongIntID)) != "0"
	case TypeEllipsis, TypeFunction, TypeBuiltin, TypeExternalFunction:
		return true
	case TypeRef:
		switch p := e.Heap.Get(v.Ref()).(type) {
		case *StrPayload:
			return p.Len() > 0
		case *BytesPayload:
			return p.Len() > 0
		case *ListPayload:
			return p.Len() > 0
		case *TuplePayload:
			return p.Len() > 0
		case *DictPayload:
			return p.Len() > 0
		case *SetPayload:
			return p.Len() > 0
		case *LongIntPayload:
			return p.Big().Sign() != 0
		case *RangePayload:
			return p.Len() > 0
		default:
			return true
		}
	}
	return true
}

// PyLen implements `len()`. ok is false for a TypeError (no __len__).
func (e Env) PyLen(v Value) (int, bool) {
	if v.Type != TypeRef {
		return 0, false
	}
	switch p := e.Heap.Get(v.Ref()).(type) {
	case *StrPayload:
		return p.Len(), true
	case *BytesPayload:
		return p.Len(), true
	case *ListPayload:
		return p.Len(), true
	case *TuplePayload:
		return p.Len(), true
	case *DictPayload:
		return p.Len(), true
	case *SetPayload:
		return p.Len(), true
	case *RangePayload:
		return p.Len(), true
	default:
		return 0, false
	}
}

// PyRepr implements `repr()`, descending into containers up to
// maxCompareDepth before giving up (reported as "...").
func (e Env) PyRepr(v Value) string {
	return e.reprDepth(v, 0)
}

// PyStr implements `str()`: identical to PyRepr except a string at the top
// level renders unquoted. Containers still repr their elements (str([1,
// 'a']) == "[1, 'a']" in Python too), so this only special-cases the two
// string representations, not reprDepth's recursive calls.
func (e Env) PyStr(v Value) string {
	switch v.Type {
	case TypeInternString:
		return e.Interns.String(v.Data.(interns.StringID))
	case TypeRef:
		if p, ok := e.Heap.Get(v.Ref()).(*StrPayload); ok {
			return p.Value()
		}
	}
	return e.reprDepth(v, 0)
}

func (e Env) reprDepth(v Value, depth int) string {
	if depth > maxCompareDepth {
		return "..."
	}
	switch v.Type {
	case TypeNone:
		return "None"
	case TypeEllipsis:
		return "Ellipsis"
	case TypeUndefined:
		return "<undefined>"
	case TypeBool:
		if v.Data.(bool) {
			return "True"
		}
		return "False"
	case TypeInt:
		return fmt.Sprintf("%d", v.Data.(int64))
	case TypeFloat:
		return formatFloatRepr(v.Data.(float64))
	case TypeInternString:
		return reprPyString(e.Interns.String(v.Data.(interns.StringID)))
	case TypeInternBytes:
		return reprPyBytes(e.Interns.Bytes(v.Data.(interns.BytesID)))
	case TypeInternLongInt:
		return e.Interns.LongInt(v.Data.(interns.LongIntID))
	case TypeFunction:
		return fmt.Sprintf("<function object at %d>", v.Data.(uint32))
	case TypeBuiltin:
		kind, _ := v.Builtin()
		return fmt.Sprintf("<built-in function %d>", kind)
	case TypeRef:
		return e.reprRef(v.Ref(), depth)
	}
	return "?"
}

func (e Env) reprRef(ref heap.Ref, depth int) string {
	switch p := e.Heap.Get(ref).(type) {
	case *StrPayload:
		return p.Repr()
	case *BytesPayload:
		return p.Repr()
	case *LongIntPayload:
		return p.Repr()
	case *RangePayload:
		return p.Repr()
	case *ListPayload:
		parts := make([]string, p.Len())
		for i, el := range p.Elems {
			parts[i] = e.reprDepth(el, depth+1)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *TuplePayload:
		parts := make([]string, len(p.Elems))
		for i, el := range p.Elems {
			parts[i] = e.reprDepth(el, depth+1)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *DictPayload:
		items := p.Items()
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = e.reprDepth(it.Key, depth+1) + ": " + e.reprDepth(it.Val, depth+1)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *SetPayload:
		members := p.Members()
		if len(members) == 0 {
			return "set()"
		}
		parts := make([]string, len(members))
		for i, m := range members {
			parts[i] = e.reprDepth(m, depth+1)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *DataclassPayload:
		cls, _ := e.Heap.Get(p.Class).(*ClassPayload)
		name := "object"
		var fields []string
		if cls != nil {
			name = cls.Name
			fields = cls.Fields
		}
		parts := make([]string, 0, len(p.Attrs))
		for i, a := range p.Attrs {
			fname := fmt.Sprintf("field%d", i)
			if i < len(fields) {
				fname = fields[i]
			}
			parts = append(parts, fname+"="+e.reprDepth(a, depth+1))
		}
		return name + "(" + strings.Join(parts, ", ") + ")"
	case *ClassPayload:
		return "<class '" + p.Name + "'>"
	default:
		return fmt.Sprintf("<object at %d>", ref)
	}
}

func formatFloatRepr(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := fmt.Sprintf("%g", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func reprPyString(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case rune(quote):
			b.WriteByte('\\')
			b.WriteByte(quote)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

func reprPyBytes(s string) string {
	var b strings.Builder
	b.WriteString("b'")
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\'':
			b.WriteString(`\'`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\r':
			b.WriteString(`\r`)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, `\x%02x`, c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// PyEq implements `==` with the spec's depth guard rather than full cycle
// detection: a ref compared against itself is equal by identity, while two
// distinct self-referential lists exhaust the guard and report not-equal
// rather than hang.
func (e Env) PyEq(a, b Value) bool {
	return e.eqDepth(a, b, 0)
}

func (e Env) eqDepth(a, b Value, depth int) bool {
	if depth > maxCompareDepth {
		return false
	}
	if na, _ := numericValue(a); na {
		if nbb, ok := numericValue(b); nbb && ok {
			fa, _ := asFloat(a)
			fb, _ := asFloat(b)
			return fa == fb
		}
	}
	if a.Type != b.Type {
		if sa, ok := e.strOf(a); ok {
			if sb, ok2 := e.strOf(b); ok2 {
				return sa == sb
			}
		}
		return false
	}
	switch a.Type {
	case TypeNone, TypeEllipsis, TypeUndefined:
		return true
	case TypeBool:
		return a.Data.(bool) == b.Data.(bool)
	case TypeInt:
		return a.Data.(int64) == b.Data.(int64)
	case TypeFloat:
		return a.Data.(float64) == b.Data.(float64)
	case TypeInternString:
		return a.Data.(interns.StringID) == b.Data.(interns.StringID)
	case TypeInternBytes:
		return a.Data.(interns.BytesID) == b.Data.(interns.BytesID)
	case TypeInternLongInt:
		if a.Data.(interns.LongIntID) == b.Data.(interns.LongIntID) {
			return true
		}
		return e.Interns.LongInt(a.Data.(interns.LongIntID)) == e.Interns.LongInt(b.Data.(interns.LongIntID))
	case TypeFunction:
		return a.Data.(uint32) == b.Data.(uint32)
	case TypeRef:
		return e.eqRef(a.Ref(), b.Ref(), depth)
	}
	return false
}

func (e Env) eqRef(ra, rb heap.Ref, depth int) bool {
	if ra == rb {
		return true
	}
	pa := e.Heap.Get(ra)
	pb := e.Heap.Get(rb)
	switch x := pa.(type) {
	case *StrPayload:
		y, ok := pb.(*StrPayload)
		return ok && x.Value() == y.Value()
	case *BytesPayload:
		y, ok := pb.(*BytesPayload)
		return ok && bytes.Equal(x.Value(), y.Value())
	case *LongIntPayload:
		y, ok := pb.(*LongIntPayload)
		return ok && x.Big().Cmp(y.Big()) == 0
	case *ListPayload:
		y, ok := pb.(*ListPayload)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for i := range x.Elems {
			if !e.eqDepth(x.Elems[i], y.Elems[i], depth+1) {
				return false
			}
		}
		return true
	case *TuplePayload:
		y, ok := pb.(*TuplePayload)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for i := range x.Elems {
			if !e.eqDepth(x.Elems[i], y.Elems[i], depth+1) {
				return false
			}
		}
		return true
	case *DictPayload:
		y, ok := pb.(*DictPayload)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, it := range x.Items() {
			h, _ := e.Hash(it.Key)
			yv, found := y.Get(h, it.Key, func(p, q Value) bool { return e.eqDepth(p, q, depth+1) })
			if !found || !e.eqDepth(it.Val, yv, depth+1) {
				return false
			}
		}
		return true
	case *SetPayload:
		y, ok := pb.(*SetPayload)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, m := range x.Members() {
			h, _ := e.Hash(m)
			if !y.Contains(h, m, func(p, q Value) bool { return e.eqDepth(p, q, depth+1) }) {
				return false
			}
		}
		return true
	case *RangePayload:
		y, ok := pb.(*RangePayload)
		return ok && x.Start == y.Start && x.Stop == y.Stop && x.Step == y.Step
	default:
		return false
	}
}

func numericValue(v Value) (bool, bool) {
	switch v.Type {
	case TypeInt, TypeFloat, TypeBool:
		return true, true
	default:
		return false, false
	}
}

func asFloat(v Value) (float64, bool) {
	switch v.Type {
	case TypeInt:
		return float64(v.Data.(int64)), true
	case TypeFloat:
		return v.Data.(float64), true
	case TypeBool:
		if v.Data.(bool) {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Hash implements py_hash. ok is false for unhashable types (list, dict,
// set), matching CPython's TypeError on hash(unhashable).
func (e Env) Hash(v Value) (uint64, bool) {
	switch v.Type {
	case TypeNone, TypeEllipsis, TypeUndefined:
		return Identity(v), true
	case TypeBool, TypeInt, TypeFunction:
		return Identity(v), true
	case TypeFloat:
		f := v.Data.(float64)
		if f == math.Trunc(f) {
			return hashInt64(int64(f)), true
		}
		return Identity(v), true
	case TypeInternString:
		return fnvString(e.Interns.String(v.Data.(interns.StringID))), true
	case TypeInternBytes:
		return fnvString(e.Interns.Bytes(v.Data.(interns.BytesID))), true
	case TypeInternLongInt:
		return fnvString(e.Interns.LongInt(v.Data.(interns.LongIntID))), true
	case TypeRef:
		return e.Heap.GetOrComputeHash(v.Ref())
	}
	return 0, false
}

func fnvString(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// PyCmp implements ordering comparisons (`<, <=, >, >=`). ok is false when
// the operand types are not ordered against each other (TypeError).
func (e Env) PyCmp(a, b Value) (int, bool) {
	if fa, ok := asFloat(a); ok {
		if fb, ok2 := asFloat(b); ok2 {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if sa, ok := e.strOf(a); ok {
		if sb, ok2 := e.strOf(b); ok2 {
			return strings.Compare(sa, sb), true
		}
	}
	if a.Type == TypeRef && b.Type == TypeRef {
		pa, aok := e.Heap.Get(a.Ref()).(*ListPayload)
		pb, bok := e.Heap.Get(b.Ref()).(*ListPayload)
		if aok && bok {
			return e.cmpSlices(pa.Elems, pb.Elems)
		}
		ta, aok2 := e.Heap.Get(a.Ref()).(*TuplePayload)
		tb, bok2 := e.Heap.Get(b.Ref()).(*TuplePayload)
		if aok2 && bok2 {
			return e.cmpSlices(ta.Elems, tb.Elems)
		}
	}
	return 0, false
}

func (e Env) cmpSlices(a, b []Value) (int, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c, ok := e.PyCmp(a[i], b[i])
		if !ok {
			return 0, false
		}
		if c != 0 {
			return c, true
		}
	}
	return len(a) - len(b), true
}

// SortValues sorts vs in place ascending by PyCmp, or by keyFn(v) when
// keyFn is non-nil (sorted(..., key=...) / list.sort(key=...)); reverse
// inverts the comparator, so the sort stays stable and equal keys keep their
// original relative order, as Python's sorted(reverse=True) does.
func (e Env) SortValues(vs []Value, keyFn func(Value) (Value, error), reverse bool) error {
	keys := vs
	if keyFn != nil {
		keys = make([]Value, len(vs))
		for i, v := range vs {
			k, err := keyFn(v)
			if err != nil {
				return err
			}
			keys[i] = k
		}
	}
	idx := make([]int, len(vs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		c, _ := e.PyCmp(keys[idx[i]], keys[idx[j]])
		if reverse {
			return c > 0
		}
		return c < 0
	})
	out := make([]Value, len(vs))
	for pos, i := range idx {
		out[pos] = vs[i]
	}
	copy(vs, out)
	return nil
}

// GetAttr implements plain attribute lookup on a dataclass instance,
// following class methods when the instance itself has no matching field or
// extra attribute. It takes no default; the three-argument
// getattr(obj, name, default) form is handled by vm.builtinGetattr.
func (e Env) GetAttr(v Value, name string) (Value, bool) {
	if v.Type != TypeRef {
		return Value{}, false
	}
	inst, ok := e.Heap.Get(v.Ref()).(*DataclassPayload)
	if !ok {
		return Value{}, false
	}
	cls, _ := e.Heap.Get(inst.Class).(*ClassPayload)
	if cls != nil {
		for i, f := range cls.Fields {
			if f == name {
				return inst.GetField(i)
			}
		}
	}
	if val, ok := inst.GetExtra(name); ok {
		return val, true
	}
	if cls != nil {
		if m, ok := cls.Methods[name]; ok {
			return m, true
		}
	}
	return Value{}, false
}
