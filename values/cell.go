package values

import "github.com/scinapse-labs/monty/heap"

// CellPayload is a closure variable box: a single mutable Value slot shared
// between an enclosing frame and the nested function(s) that close over it
// (spec §4.F, `MAKE_CLOSURE`/`LOAD_DEREF`/`STORE_DEREF`).
type CellPayload struct {
	Val Value
}

func NewCell(v Value) *CellPayload { return &CellPayload{Val: v} }

func (p *CellPayload) ContainsRefs() bool { return p.Val.Type == TypeRef }
func (p *CellPayload) WalkRefs(visit func(heap.Ref)) {
	if p.Val.Type == TypeRef {
		visit(p.Val.Ref())
	}
}

// Set overwrites the cell's contents, returning the previous value for the
// caller to drop.
func (p *CellPayload) Set(v Value) Value {
	old := p.Val
	p.Val = v
	return old
}
