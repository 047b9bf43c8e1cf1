package values

import (
	"github.com/scinapse-labs/monty/heap"
)

// ListPayload is a growable, mutable sequence. containsRefs tracks whether
// any element is currently a heap reference, letting GC and drop skip the
// walk entirely for primitive-only lists (spec §4.D).
type ListPayload struct {
	Elems        []Value
	containsRefs bool
}

func NewList(elems []Value) *ListPayload {
	p := &ListPayload{Elems: elems}
	p.recomputeContainsRefs()
	return p
}

func (p *ListPayload) recomputeContainsRefs() {
	for _, e := range p.Elems {
		if e.Type == TypeRef {
			p.containsRefs = true
			return
		}
	}
	p.containsRefs = false
}

func (p *ListPayload) ContainsRefs() bool { return p.containsRefs }
func (p *ListPayload) WalkRefs(visit func(heap.Ref)) {
	if !p.containsRefs {
		return
	}
	for _, e := range p.Elems {
		if e.Type == TypeRef {
			visit(e.Ref())
		}
	}
}

// list is never Hashable — no ComputeHash method, so GetOrComputeHash
// correctly reports "unhashable".

func (p *ListPayload) Len() int { return len(p.Elems) }

// Append adds v, taking ownership of the caller's reference to it (the
// caller must not also hold/drop it separately).
func (p *ListPayload) Append(v Value) {
	p.Elems = append(p.Elems, v)
	if v.Type == TypeRef {
		p.containsRefs = true
	}
}

func (p *ListPayload) Extend(vs []Value) {
	p.Elems = append(p.Elems, vs...)
	p.recomputeContainsRefs()
}

// Insert inserts v at normalized index idx (clamped to [0, len]).
func (p *ListPayload) Insert(idx int, v Value) {
	if idx < 0 {
		idx = 0
	}
	if idx > len(p.Elems) {
		idx = len(p.Elems)
	}
	p.Elems = append(p.Elems, Value{})
	copy(p.Elems[idx+1:], p.Elems[idx:])
	p.Elems[idx] = v
	if v.Type == TypeRef {
		p.containsRefs = true
	}
}

// Pop removes and returns the element at normalized index idx.
func (p *ListPayload) Pop(idx int) (Value, bool) {
	if idx < 0 || idx >= len(p.Elems) {
		return Value{}, false
	}
	v := p.Elems[idx]
	p.Elems = append(p.Elems[:idx], p.Elems[idx+1:]...)
	return v, true
}

func (p *ListPayload) Reverse() {
	for i, j := 0, len(p.Elems)-1; i < j; i, j = i+1, j-1 {
		p.Elems[i], p.Elems[j] = p.Elems[j], p.Elems[i]
	}
}

// Sort sorts in place using less as the comparator; the caller (VM-level
// sorted()/`.sort()` implementation) supplies a less function that may
// invoke a user key function through a nested bytecode re-entry.
func (p *ListPayload) Sort(less func(a, b Value) bool) {
	// Insertion sort keeps the implementation simple and stable, matching
	// Python's guaranteed-stable sort, without pulling in sort.Interface
	// plumbing for a comparator that can itself fail (key-function errors
	// propagate through less's closure instead of a second error channel).
	for i := 1; i < len(p.Elems); i++ {
		v := p.Elems[i]
		j := i - 1
		for j >= 0 && less(v, p.Elems[j]) {
			p.Elems[j+1] = p.Elems[j]
			j--
		}
		p.Elems[j+1] = v
	}
}

// At returns the element at normalized index idx.
func (p *ListPayload) At(idx int) (Value, bool) {
	if idx < 0 || idx >= len(p.Elems) {
		return Value{}, false
	}
	return p.Elems[idx], true
}

// SetAt overwrites the element at normalized index idx, returning the value
// that was there (for the caller to drop).
func (p *ListPayload) SetAt(idx int, v Value) (Value, bool) {
	if idx < 0 || idx >= len(p.Elems) {
		return Value{}, false
	}
	old := p.Elems[idx]
	p.Elems[idx] = v
	if v.Type == TypeRef {
		p.containsRefs = true
	}
	return old, true
}

// Slice returns a freshly cloned sub-list per the normalized (start, stop,
// step) triple.
func (p *ListPayload) Slice(h *heap.Heap, start, stop, step int) []Value {
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
