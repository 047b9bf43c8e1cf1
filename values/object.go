package values

import "github.com/scinapse-labs/monty/heap"

// ObjectPayload boxes an otherwise-immediate value (e.g. a large int that
// needs a stable heap identity, or a plain `object()` sentinel) so it can
// have an `id()` that survives being passed around by Value copy. Most
// values never need this — Value already gives ints/floats/bools/None
// value semantics — this exists for the handful of builtins (`object()`,
// exception instances before a richer payload is attached) that need
// identity without any other structure.
type ObjectPayload struct {
	Tag string
}

func NewObject(tag string) *ObjectPayload { return &ObjectPayload{Tag: tag} }

func (p *ObjectPayload) ContainsRefs() bool      { return false }
func (p *ObjectPayload) WalkRefs(func(heap.Ref)) {}
