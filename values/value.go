// Package values implements Monty's value model: the tagged-union Value type
// (component C) and the heap-resident built-in type payloads (component D) —
// str, bytes, list, tuple, dict, set, long-int, slice, range, dataclass
// instance, and cell.
//
// Every function here that needs to look inside a heap reference takes the
// session's *heap.Heap and *interns.Interns explicitly rather than storing
// them on Value, matching the "no global state, session owns everything"
// design (spec §9).
package values

import (
	"fmt"
	"math"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
)

// Type is the Value tag.
type Type byte

const (
	TypeNone Type = iota
	TypeEllipsis
	TypeBool
	TypeInt
	TypeFloat
	TypeInternString
	TypeInternBytes
	TypeInternLongInt
	TypeFunction
	TypeBuiltin
	// TypeExternalFunction names a host-provided function by its compiled
	// name, resolved against compile()'s external_function_names list
	// (spec §6). Calling one always suspends the VM with a FunctionCall
	// yield record — it is never executed in-process.
	TypeExternalFunction
	TypeRef
	TypeUndefined
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "NoneType"
	case TypeEllipsis:
		return "ellipsis"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeInternString:
		return "str"
	case TypeInternBytes:
		return "bytes"
	case TypeInternLongInt:
		return "int"
	case TypeFunction:
		return "function"
	case TypeBuiltin:
		return "builtin_function_or_method"
	case TypeExternalFunction:
		return "builtin_function_or_method"
	case TypeRef:
		return "ref"
	case TypeUndefined:
		return "<undefined>"
	default:
		return "?"
	}
}

// BuiltinKind enumerates the host-free builtins dispatched directly by the
// VM without a call into the compiled program (supplemented feature: the
// original's Builtins::{Function, ExcType, Type} split).
type BuiltinKind uint16

const (
	BuiltinPrint BuiltinKind = iota
	BuiltinLen
	BuiltinRepr
	BuiltinID
	BuiltinHash
	BuiltinType
	BuiltinIsinstance
	BuiltinGetattr
	BuiltinSorted
	BuiltinReversed
	// Type constructors
	BuiltinListCtor
	BuiltinDictCtor
	BuiltinSetCtor
	BuiltinTupleCtor
	BuiltinIntCtor
	BuiltinFloatCtor
	BuiltinStrCtor
	BuiltinBoolCtor
	BuiltinBytesCtor
	// Exception type constructors — the kind itself is the closed enum tag
	// shared with ExceptionPayload.Kind (exception.go).
	BuiltinExcCtor
	// BuiltinGather is `asyncio.gather`: a host-free builtin that bundles N
	// already-evaluated coroutine values into a GatherPayload without
	// itself suspending (spec §4.G "gather"; only awaiting the result
	// actually spawns tasks).
	BuiltinGather
)

// Value is Monty's tagged union. Immediates are stored directly on Data;
// heap references store a heap.Ref. Cloning a Value preserves Type; cloning
// a Ref must go through CloneValue (which IncRefs); dropping one must go
// through DropValue (which DecRefs) — those two functions are the only
// sanctioned refcount mutation points above the heap package itself.
type Value struct {
	Type Type
	Data interface{}
}

// Undefined is the sentinel marking a never-assigned local. Reading one is a
// NameError at the VM level; it must never become user-visible (never
// stored into a container, printed, or returned).
var Undefined = Value{Type: TypeUndefined}

func None() Value                               { return Value{Type: TypeNone} }
func EllipsisV() Value                          { return Value{Type: TypeEllipsis} }
func Bool(b bool) Value                         { return Value{Type: TypeBool, Data: b} }
func Int(i int64) Value                         { return Value{Type: TypeInt, Data: i} }
func Float(f float64) Value                     { return Value{Type: TypeFloat, Data: f} }
func InternStr(id interns.StringID) Value       { return Value{Type: TypeInternString, Data: id} }
func InternBytesV(id interns.BytesID) Value     { return Value{Type: TypeInternBytes, Data: id} }
func InternLongIntV(id interns.LongIntID) Value { return Value{Type: TypeInternLongInt, Data: id} }
func FunctionV(id uint32) Value                 { return Value{Type: TypeFunction, Data: id} }
func ExternalFunctionV(id interns.StringID) Value {
	return Value{Type: TypeExternalFunction, Data: id}
}
func BuiltinV(kind BuiltinKind, arg uint32) Value {
	return Value{Type: TypeBuiltin, Data: builtinData{kind, arg}}
}
func RefV(id heap.Ref) Value { return Value{Type: TypeRef, Data: id} }

type builtinData struct {
	Kind BuiltinKind
	Arg  uint32 // e.g. which ExcType/Type constant when Kind needs one
}

func (v Value) IsUndefined() bool { return v.Type == TypeUndefined }
func (v Value) IsNone() bool      { return v.Type == TypeNone }
func (v Value) IsRef() bool       { return v.Type == TypeRef }

// Ref returns the heap slot id for a TypeRef value; panics otherwise (the VM
// only calls this after a type check, matching the teacher's "assume the
// caller validated the tag" convention for hot paths).
func (v Value) Ref() heap.Ref { return v.Data.(heap.Ref) }

// Builtin returns the kind/arg pair for a TypeBuiltin value.
func (v Value) Builtin() (BuiltinKind, uint32) {
	b := v.Data.(builtinData)
	return b.Kind, b.Arg
}

// CloneValue duplicates v, bumping the target slot's refcount when v is a
// heap reference. This is the only place a Ref is allowed to be copied.
func CloneValue(h *heap.Heap, v Value) Value {
	if v.Type == TypeRef {
		h.IncRef(v.Ref())
	}
	return v
}

// DropValue releases v, decrementing the target slot's refcount (and
// possibly freeing it, iteratively) when v is a heap reference.
func DropValue(h *heap.Heap, v Value) {
	if v.Type == TypeRef {
		h.DecRef(v.Ref())
	}
}

// CloneSlice clones every element of vs (e.g. when duplicating a stack
// window for a nested call or a snapshot's working copy).
func CloneSlice(h *heap.Heap, vs []Value) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = CloneValue(h, v)
	}
	return out
}

// DropSlice drops every element of vs.
func DropSlice(h *heap.Heap, vs []Value) {
	for _, v := range vs {
		DropValue(h, v)
	}
}

// PyType returns the Value's type tag as a display string, following the
// heap payload's own type when v is a Ref.
func PyType(h *heap.Heap, v Value) string {
	if v.Type != TypeRef {
		return v.Type.String()
	}
	switch p := h.Get(v.Ref()).(type) {
	case *StrPayload:
		return "str"
	case *BytesPayload:
		return "bytes"
	case *ListPayload:
		return "list"
	case *TuplePayload:
		return "tuple"
	case *DictPayload:
		return "dict"
	case *SetPayload:
		return "set"
	case *LongIntPayload:
		return "int"
	case *SlicePayload:
		return "slice"
	case *RangePayload:
		return "range"
	case *DataclassPayload:
		if cls, ok := h.Get(p.Class).(*ClassPayload); ok {
			return cls.Name
		}
		return "object"
	case *CellPayload:
		return "cell"
	case *CoroutinePayload:
		return "coroutine"
	case *GatherPayload:
		return "_GatheringFuture"
	case *ObjectPayload:
		return "object"
	case *ClassPayload:
		return "type"
	default:
		return "object"
	}
}

// Identity implements `is`: singleton variants compare by fixed id, interned
// strings/bytes/long-ints by intern index, heap refs by slot id, other
// immediates by a hash of their bit pattern (spec §3.1).
func Identity(v Value) uint64 {
	switch v.Type {
	case TypeNone:
		return 1
	case TypeEllipsis:
		return 2
	case TypeUndefined:
		return 3
	case TypeRef:
		return 0x1000_0000_0000_0000 | uint64(v.Data.(heap.Ref))
	case TypeInternString:
		return 0x2000_0000_0000_0000 | uint64(v.Data.(interns.StringID))
	case TypeInternBytes:
		return 0x3000_0000_0000_0000 | uint64(v.Data.(interns.BytesID))
	case TypeInternLongInt:
		return 0x4000_0000_0000_0000 | uint64(v.Data.(interns.LongIntID))
	case TypeBool:
		if v.Data.(bool) {
			return 11
		}
		return 10
	case TypeInt:
		return hashInt64(v.Data.(int64))
	case TypeFloat:
		return hashInt64(int64(math.Float64bits(v.Data.(float64))))
	case TypeFunction:
		return 0x5000_0000_0000_0000 | uint64(v.Data.(uint32))
	case TypeExternalFunction:
		return 0x6000_0000_0000_0000 | uint64(v.Data.(interns.StringID))
	default:
		return 0
	}
}

// Is reports whether a and b are the same object per Identity.
func Is(a, b Value) bool {
	return a.Type == b.Type && Identity(a) == Identity(b)
}

func hashInt64(i int64) uint64 {
	u := uint64(i)
	u ^= u >> 33
	u *= 0xff51afd7ed558ccd
	u ^= u >> 33
	return u
}

// NewUnhashableError is a convenience formatter shared by payload ComputeHash
// callers that must refuse (lists, dicts, sets are unhashable).
func NewUnhashableError(typeName string) error {
	return fmt.Errorf("unhashable type: %q", typeName)
}
