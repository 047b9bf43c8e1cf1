package values

import "github.com/scinapse-labs/monty/heap"

// IterPayload is the explicit iterator state FOR_ITER advances: a source
// value plus a cursor into it, rather than a coroutine suspended mid-walk
// (spec §9, MontyIter). GET_ITER allocates one of these and FOR_ITER mutates
// Pos in place on every pass, so the cursor survives however many times the
// loop body suspends and resumes around it.
type IterPayload struct {
	Source Value
	Pos    int
}

func NewIter(src Value) *IterPayload { return &IterPayload{Source: src} }

func (p *IterPayload) ContainsRefs() bool { return p.Source.Type == TypeRef }
func (p *IterPayload) WalkRefs(visit func(heap.Ref)) {
	if p.Source.Type == TypeRef {
		visit(p.Source.Ref())
	}
}
