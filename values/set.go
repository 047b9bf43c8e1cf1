package values

import "github.com/scinapse-labs/monty/heap"

// SetEntry is one slot in a set's dense entry vector (see DictPayload for
// the shared tombstone-delete rationale).
type SetEntry struct {
	Key     Value
	Deleted bool
}

// SetPayload is an insertion-ordered set: the same dense-vector-plus-index
// structure as DictPayload, without values (spec §4.D).
type SetPayload struct {
	Entries      []SetEntry
	index        map[uint64][]int
	containsRefs bool
}

func NewSet() *SetPayload {
	return &SetPayload{index: make(map[uint64][]int)}
}

func (p *SetPayload) ContainsRefs() bool { return p.containsRefs }
func (p *SetPayload) WalkRefs(visit func(heap.Ref)) {
	if !p.containsRefs {
		return
	}
	for _, e := range p.Entries {
		if !e.Deleted && e.Key.Type == TypeRef {
			visit(e.Key.Ref())
		}
	}
}

func (p *SetPayload) Len() int {
	n := 0
	for _, e := range p.Entries {
		if !e.Deleted {
			n++
		}
	}
	return n
}

func (p *SetPayload) find(hash uint64, key Value, eq func(a, b Value) bool) int {
	for _, idx := range p.index[hash] {
		e := &p.Entries[idx]
		if !e.Deleted && eq(e.Key, key) {
			return idx
		}
	}
	return -1
}

// Contains reports whether key is a member.
func (p *SetPayload) Contains(hash uint64, key Value, eq func(a, b Value) bool) bool {
	return p.find(hash, key, eq) >= 0
}

// Add inserts key, returning false if it was already present.
func (p *SetPayload) Add(hash uint64, key Value, eq func(a, b Value) bool) bool {
	if p.find(hash, key, eq) >= 0 {
		return false
	}
	idx := len(p.Entries)
	p.Entries = append(p.Entries, SetEntry{Key: key})
	p.index[hash] = append(p.index[hash], idx)
	if key.Type == TypeRef {
		p.containsRefs = true
	}
	return true
}

// Discard removes key if present, returning the removed value for the
// caller to drop.
func (p *SetPayload) Discard(hash uint64, key Value, eq func(a, b Value) bool) (Value, bool) {
	idx := p.find(hash, key, eq)
	if idx < 0 {
		return Value{}, false
	}
	v := p.Entries[idx].Key
	p.Entries[idx].Deleted = true
	return v, true
}

// RestoreSet rebuilds a SetPayload from a snapshot's already-live,
// insertion-ordered entry list (see RestoreDict).
func RestoreSet(entries []SetEntry, containsRefs bool) *SetPayload {
	return &SetPayload{Entries: entries, containsRefs: containsRefs, index: make(map[uint64][]int)}
}

// RebuildIndex reconstructs the hash-bucket index from Entries (see
// DictPayload.RebuildIndex).
func (p *SetPayload) RebuildIndex(hash func(Value) (uint64, bool)) {
	p.index = make(map[uint64][]int)
	for i, e := range p.Entries {
		if e.Deleted {
			continue
		}
		h, ok := hash(e.Key)
		if !ok {
			continue
		}
		p.index[h] = append(p.index[h], i)
	}
}

func (p *SetPayload) Members() []Value {
	out := make([]Value, 0, len(p.Entries))
	for _, e := range p.Entries {
		if !e.Deleted {
			out = append(out, e.Key)
		}
	}
	return out
}
