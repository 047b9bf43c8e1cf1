package vm

import (
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
)

// AttrResultKind is the closed set of shapes py_getattr can resolve to (spec
// §4.F "Attribute dispatch").
type AttrResultKind byte

const (
	AttrPlain AttrResultKind = iota
	AttrBoundMethod
	AttrAsync
	AttrOsCall
	// AttrMethodCall is a dataclass public-method lazy dispatch: the method
	// isn't a plain Value at all, it's forwarded to the host as an external
	// function call the first time it's accessed (spec supplement, §4.F).
	AttrMethodCall
	// AttrBuiltinMethod is a built-in type's own method (str.split,
	// list.append, dict.get, ...): the VM resolves and calls it directly,
	// no suspension, via the same receiver/method parking CALL_METHOD uses
	// for the host-dispatched kinds (spec §4.D "full method surface").
	AttrBuiltinMethod
)

// AttrResult is what LOAD_ATTR gets back from py_getattr; the VM branches on
// Kind to decide whether to push a value, issue a yield record, or call a
// builtin immediately.
type AttrResult struct {
	Kind   AttrResultKind
	Value  values.Value
	Method string // populated for AttrBoundMethod/AttrMethodCall
}

// GetAttr implements py_getattr for LOAD_ATTR/LOAD_ATTR_IMPORT. fromImport
// tells the caller whether a missing-attribute failure should surface as
// ImportError instead of AttributeError (LOAD_ATTR_IMPORT's documented
// behavior).
func (vm *VM) GetAttr(obj values.Value, name string, fromImport bool) (AttrResult, *values.ExceptionPayload) {
	env := values.Env{Heap: vm.Heap, Interns: vm.Interns}
	if val, ok := env.GetAttr(obj, name); ok {
		return AttrResult{Kind: AttrPlain, Value: val}, nil
	}
	if obj.Type == values.TypeRef {
		switch vm.Heap.Get(obj.Ref()).(type) {
		case *values.DataclassPayload:
			// A dataclass instance with no matching field/extra/method is a
			// lazily-dispatched public method call — the host decides what
			// it means (spec supplement).
			return AttrResult{Kind: AttrMethodCall, Method: name}, nil
		case *values.StrPayload, *values.BytesPayload, *values.ListPayload,
			*values.TuplePayload, *values.DictPayload, *values.SetPayload,
			*values.RangePayload:
			if isBuiltinMethodName(name) {
				return AttrResult{Kind: AttrBuiltinMethod, Method: name}, nil
			}
		}
	}
	kind := values.ExcAttributeError
	if fromImport {
		kind = values.ExcImportError
	}
	return AttrResult{}, values.NewException(kind, []values.Value{values.InternStr(vm.internShort(name))})
}

func isBuiltinMethodName(name string) bool {
	return interns.LookupStaticString(name) != interns.SSUnknown
}

// SetAttr implements STORE_ATTR, including the frozen-dataclass rejection
// (spec supplement, FrozenInstanceError).
func (vm *VM) SetAttr(obj values.Value, name string, val values.Value) *values.ExceptionPayload {
	if obj.Type != values.TypeRef {
		return values.NewException(values.ExcAttributeError, []values.Value{values.InternStr(vm.internShort(name))})
	}
	inst, ok := vm.Heap.Get(obj.Ref()).(*values.DataclassPayload)
	if !ok {
		return values.NewException(values.ExcAttributeError, []values.Value{values.InternStr(vm.internShort(name))})
	}
	cls, _ := vm.Heap.Get(inst.Class).(*values.ClassPayload)
	if cls != nil && cls.Frozen {
		return values.NewException(values.ExcFrozenInstanceError, []values.Value{values.InternStr(vm.internShort(name))})
	}
	if cls != nil {
		for i, f := range cls.Fields {
			if f == name {
				old, _ := inst.SetField(i, val)
				values.DropValue(vm.Heap, old)
				return nil
			}
		}
	}
	old, existed := inst.SetExtra(name, val)
	if existed {
		values.DropValue(vm.Heap, old)
	}
	return nil
}

// internShort is a convenience for building small interned strings for
// exception args (attribute names are always short).
func (vm *VM) internShort(s string) interns.StringID {
	return vm.Interns.InternString(s)
}
