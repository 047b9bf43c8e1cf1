package values

import "github.com/scinapse-labs/monty/heap"

// DictEntry is one slot in a dict's dense entry vector. Deleted marks a
// tombstone left behind by a delete so the index map's bucket lists and
// insertion order stay stable without shifting every later entry.
type DictEntry struct {
	Key     Value
	Val     Value
	Deleted bool
}

// DictPayload is an insertion-ordered mapping: a map from hash to candidate
// indices into a dense Entries vector. Key equality uses the caller-
// supplied eq function (which is py_eq with a depth guard — see
// protocol.go) since comparing heap-backed keys needs heap access this
// payload itself doesn't have.
//
// Clear() intentionally does not reset containsRefs — spec §4.D calls this
// out as a deliberately conservative choice rather than an oversight.
type DictPayload struct {
	Entries      []DictEntry
	index        map[uint64][]int // hash -> candidate entry indices
	containsRefs bool
}

func NewDict() *DictPayload {
	return &DictPayload{index: make(map[uint64][]int)}
}

func (p *DictPayload) ContainsRefs() bool { return p.containsRefs }
func (p *DictPayload) WalkRefs(visit func(heap.Ref)) {
	if !p.containsRefs {
		return
	}
	for _, e := range p.Entries {
		if e.Deleted {
			continue
		}
		if e.Key.Type == TypeRef {
			visit(e.Key.Ref())
		}
		if e.Val.Type == TypeRef {
			visit(e.Val.Ref())
		}
	}
}

func (p *DictPayload) markContainsRefs(v Value) {
	if v.Type == TypeRef {
		p.containsRefs = true
	}
}

// Len returns the number of live (non-tombstoned) entries.
func (p *DictPayload) Len() int {
	n := 0
	for _, e := range p.Entries {
		if !e.Deleted {
			n++
		}
	}
	return n
}

// find locates the live entry index for a key with the given hash, using eq
// to break hash collisions. Returns -1 if absent.
func (p *DictPayload) find(hash uint64, key Value, eq func(a, b Value) bool) int {
	for _, idx := range p.index[hash] {
		e := &p.Entries[idx]
		if !e.Deleted && eq(e.Key, key) {
			return idx
		}
	}
	return -1
}

// Get looks up key by hash, returning its value and whether it was present.
func (p *DictPayload) Get(hash uint64, key Value, eq func(a, b Value) bool) (Value, bool) {
	idx := p.find(hash, key, eq)
	if idx < 0 {
		return Value{}, false
	}
	return p.Entries[idx].Val, true
}

// Set inserts or overwrites key -> val, returning the previous value (for
// the caller to drop) when one existed.
func (p *DictPayload) Set(hash uint64, key, val Value, eq func(a, b Value) bool) (Value, bool) {
	if idx := p.find(hash, key, eq); idx >= 0 {
		old := p.Entries[idx].Val
		p.Entries[idx].Val = val
		p.markContainsRefs(val)
		return old, true
	}
	idx := len(p.Entries)
	p.Entries = append(p.Entries, DictEntry{Key: key, Val: val})
	p.index[hash] = append(p.index[hash], idx)
	p.markContainsRefs(key)
	p.markContainsRefs(val)
	return Value{}, false
}

// Delete removes key, returning its value when present.
func (p *DictPayload) Delete(hash uint64, key Value, eq func(a, b Value) bool) (Value, Value, bool) {
	idx := p.find(hash, key, eq)
	if idx < 0 {
		return Value{}, Value{}, false
	}
	e := p.Entries[idx]
	p.Entries[idx].Deleted = true
	return e.Key, e.Val, true
}

// Popitem removes and returns the most recently inserted live entry (LIFO),
// matching dict.popitem()'s documented order.
func (p *DictPayload) Popitem() (Value, Value, bool) {
	for i := len(p.Entries) - 1; i >= 0; i-- {
		if !p.Entries[i].Deleted {
			e := p.Entries[i]
			p.Entries[i].Deleted = true
			return e.Key, e.Val, true
		}
	}
	return Value{}, Value{}, false
}

// Clear removes every entry. containsRefs is deliberately left unchanged.
func (p *DictPayload) Clear() {
	p.Entries = nil
	p.index = make(map[uint64][]int)
}

// Keys/Values/Items return live entries in insertion order.
func (p *DictPayload) Keys() []Value {
	out := make([]Value, 0, len(p.Entries))
	for _, e := range p.Entries {
		if !e.Deleted {
			out = append(out, e.Key)
		}
	}
	return out
}
func (p *DictPayload) Values() []Value {
	out := make([]Value, 0, len(p.Entries))
	for _, e := range p.Entries {
		if !e.Deleted {
			out = append(out, e.Val)
		}
	}
	return out
}
// RestoreDict rebuilds a DictPayload from a snapshot's already-live,
// insertion-ordered entry list (spec §6: "sets/dicts serialize their
// entries in insertion order"). The hash index is left empty; call
// RebuildIndex once the whole heap has been restored and hashing nested
// refs is safe.
func RestoreDict(entries []DictEntry, containsRefs bool) *DictPayload {
	return &DictPayload{Entries: entries, containsRefs: containsRefs, index: make(map[uint64][]int)}
}

// RebuildIndex reconstructs the hash-bucket index from Entries (spec §6:
// "hash tables are rebuilt on load" — the bucket layout itself is never
// part of the dump, only insertion order is). Entries whose hash function
// reports unhashable are silently skipped; the spec only hashes dict keys,
// which are always hashable by construction before they could have been
// inserted.
func (p *DictPayload) RebuildIndex(hash func(Value) (uint64, bool)) {
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

func (p *DictPayload) Items() []DictEntry {
	out := make([]DictEntry, 0, len(p.Entries))
	for _, e := range p.Entries {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}
