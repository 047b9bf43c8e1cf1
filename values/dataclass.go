package values

import "github.com/scinapse-labs/monty/heap"

// ClassPayload describes a `@dataclass`-decorated class: its name, the
// declared field order (repr and __init__ argument order both follow this),
// and whether instances are frozen (spec supplement, grounded on
// original_source/'s dataclass decorator semantics).
type ClassPayload struct {
	Name    string
	Fields  []string
	Frozen  bool
	Methods map[StaticStringOrName]Value
}

// StaticStringOrName is a plain string key for user-defined method names that
// don't have a compiler-assigned StaticString token.
type StaticStringOrName = string

func NewClass(name string, fields []string, frozen bool) *ClassPayload {
	return &ClassPayload{Name: name, Fields: append([]string(nil), fields...), Frozen: frozen, Methods: make(map[StaticStringOrName]Value)}
}

func (p *ClassPayload) ContainsRefs() bool { return len(p.Methods) > 0 }
func (p *ClassPayload) WalkRefs(visit func(heap.Ref)) {
	for _, v := range p.Methods {
		if v.Type == TypeRef {
			visit(v.Ref())
		}
	}
}

// DataclassPayload is an instance of a ClassPayload. Attrs holds one Value
// per Class.Fields entry (same index), plus Extra for attributes assigned
// outside the declared field set (plain Python classes, dataclasses
// included, allow this unless __slots__ is used — out of scope here).
type DataclassPayload struct {
	Class heap.Ref
	Attrs []Value
	Extra map[string]Value
}

func NewDataclassInstance(class heap.Ref, attrs []Value) *DataclassPayload {
	return &DataclassPayload{Class: class, Attrs: attrs}
}

func (p *DataclassPayload) ContainsRefs() bool { return true }
func (p *DataclassPayload) WalkRefs(visit func(heap.Ref)) {
	visit(p.Class)
	for _, v := range p.Attrs {
		if v.Type == TypeRef {
			visit(v.Ref())
		}
	}
	for _, v := range p.Extra {
		if v.Type == TypeRef {
			visit(v.Ref())
		}
	}
}

// GetField returns the value stored for a declared field by index.
func (p *DataclassPayload) GetField(idx int) (Value, bool) {
	if idx < 0 || idx >= len(p.Attrs) {
		return Value{}, false
	}
	return p.Attrs[idx], true
}

// SetField overwrites a declared field, returning the previous value. The
// VM-level attribute-set opcode is responsible for checking Class.Frozen and
// raising FrozenInstanceError before calling this — this payload has no
// heap access to raise an exception value itself.
func (p *DataclassPayload) SetField(idx int, v Value) (Value, bool) {
	if idx < 0 || idx >= len(p.Attrs) {
		return Value{}, false
	}
	old := p.Attrs[idx]
	p.Attrs[idx] = v
	return old, true
}

func (p *DataclassPayload) GetExtra(name string) (Value, bool) {
	v, ok := p.Extra[name]
	return v, ok
}

func (p *DataclassPayload) SetExtra(name string, v Value) (Value, bool) {
	old, existed := p.Extra[name]
	if p.Extra == nil {
		p.Extra = make(map[string]Value)
	}
	p.Extra[name] = v
	return old, existed
}
