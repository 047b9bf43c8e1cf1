package values

import "github.com/scinapse-labs/monty/heap"

// tupleInlineCap is a sizing note for the common enumerate()/dict.items()
// result shape (spec §4.D). Nothing reads it: every tuple, whatever its
// length, stores its elements in the Elems slice.
const tupleInlineCap = 3

// TuplePayload is an immutable, fixed-length sequence.
type TuplePayload struct {
	Elems        []Value
	containsRefs bool
}

func NewTuple(elems []Value) *TuplePayload {
	p := &TuplePayload{Elems: elems}
	for _, e := range elems {
		if e.Type == TypeRef {
			p.containsRefs = true
			break
		}
	}
	return p
}

func (p *TuplePayload) ContainsRefs() bool { return p.containsRefs }
func (p *TuplePayload) WalkRefs(visit func(heap.Ref)) {
	if !p.containsRefs {
		return
	}
	for _, e := range p.Elems {
		if e.Type == TypeRef {
			visit(e.Ref())
		}
	}
}

// ComputeHash makes tuples hashable when every element is hashable; callers
// needing element hashes pass them in (the heap/interns-aware dispatch lives
// in protocol.go, since hashing a nested Ref requires heap access this
// payload-local method doesn't have).
func (p *TuplePayload) ComputeHash() uint64 {
	var h uint64 = 1469598103934665603
	for _, e := range p.Elems {
		h ^= Identity(e)
		h *= 1099511628211
	}
	return h
}

func (p *TuplePayload) Len() int { return len(p.Elems) }

func (p *TuplePayload) At(idx int) (Value, bool) {
	if idx < 0 || idx >= len(p.Elems) {
		return Value{}, false
	}
	return p.Elems[idx], true
}

func (p *TuplePayload) Slice(h *heap.Heap, start, stop, step int) []Value {
	var out []Value
	if step > 0 {
		for i := start; i < stop; i += step {
			if i < 0 || i >= len(p.Elems) {
				break
			}
			out = append(out, CloneValue(h, p.Elems[i]))
		}
	} else if step < 0 {
		for i := start; i > stop; i += step {
			if i < 0 || i >= len(p.Elems) {
				break
			}
			out = append(out, CloneValue(h, p.Elems[i]))
		}
	}
	return out
}

// MakeEmptyTuple is the factory passed to heap.Heap.EmptyTuple.
func MakeEmptyTuple() heap.Payload { return NewTuple(nil) }
