// Package interns holds the deduplicated, append-only tables the compiler
// populates and the interpreter reads by stable small id: strings, byte
// literals, and big-integer literals.
package interns

import "sync"

// StringID, BytesID and LongIntID are the stable small ids handed out by the
// three append-only tables. Equality of two interned values of the same kind
// is id equality — never a content comparison.
type StringID uint32
type BytesID uint32
type LongIntID uint32

// Interns is the single append-only store shared by a session's compiled
// program and its running heap. The compiler populates it ahead of time; the
// interpreter only appends through the intern-or-allocate policy documented
// on InternOrAllocateString.
type Interns struct {
	mu sync.RWMutex

	strings   []string
	stringIdx map[string]StringID

	byteLiterals []string
	bytesIdx     map[string]BytesID

	longInts   []string // decimal text form; parsed lazily by values.LongInt
	longIntIdx map[string]LongIntID
}

// New returns an empty Interns table, ready for the compiler to populate.
func New() *Interns {
	return &Interns{
		stringIdx:  make(map[string]StringID),
		bytesIdx:   make(map[string]BytesID),
		longIntIdx: make(map[string]LongIntID),
	}
}

// InternString deduplicates s and returns its stable id. Safe for concurrent
// compile-time population; the interpreter itself only reaches this through
// InternOrAllocateString.
func (in *Interns) InternString(s string) StringID {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.stringIdx[s]; ok {
		return id
	}
	id := StringID(len(in.strings))
	in.strings = append(in.strings, s)
	in.stringIdx[s] = id
	return id
}

// String looks up an interned string by id in O(1).
func (in *Interns) String(id StringID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.strings[id]
}

// InternBytes deduplicates a byte-literal's content (stored as a string to
// keep the table comparable/hashable) and returns its stable id.
func (in *Interns) InternBytes(b string) BytesID {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.bytesIdx[b]; ok {
		return id
	}
	id := BytesID(len(in.byteLiterals))
	in.byteLiterals = append(in.byteLiterals, b)
	in.bytesIdx[b] = id
	return id
}

// Bytes looks up an interned byte literal by id.
func (in *Interns) Bytes(id BytesID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.byteLiterals[id]
}

// InternLongInt deduplicates the decimal text of a big-integer literal.
func (in *Interns) InternLongInt(decimal string) LongIntID {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.longIntIdx[decimal]; ok {
		return id
	}
	id := LongIntID(len(in.longInts))
	in.longInts = append(in.longInts, decimal)
	in.longIntIdx[decimal] = id
	return id
}

// LongInt looks up an interned big-integer literal's decimal text by id.
func (in *Interns) LongInt(id LongIntID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.longInts[id]
}

// shortStringLimit is the intern-or-allocate policy's cutoff: strings at or
// under this length produced at runtime (string concatenation, slicing,
// formatting) are interned instead of heap-allocated, since short strings are
// disproportionately likely to repeat (single characters, small substrings).
const shortStringLimit = 8

// InternOrAllocateString is the runtime's one sanctioned path for growing the
// string table outside of compile time. Short results are deduplicated into
// the table; longer ones are left for the caller to heap-allocate instead.
// The bool return reports whether interning happened.
func (in *Interns) InternOrAllocateString(s string) (StringID, bool) {
	if len(s) > shortStringLimit {
		return 0, false
	}
	return in.InternString(s), true
}

// Snapshot captures the table contents for serialization (§6 "Serialization
// format"): entries are already in append order, which is what a dump needs.
type Snapshot struct {
	Strings      []string
	ByteLiterals []string
	LongInts     []string
}

// Dump renders a position-independent snapshot of all three tables.
func (in *Interns) Dump() Snapshot {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return Snapshot{
		Strings:      append([]string(nil), in.strings...),
		ByteLiterals: append([]string(nil), in.byteLiterals...),
		LongInts:     append([]string(nil), in.longInts...),
	}
}

// Load rebuilds an Interns table from a snapshot, reconstructing the reverse
// indices rather than trusting them to have been carried in the dump.
func Load(snap Snapshot) *Interns {
	in := New()
	in.strings = append([]string(nil), snap.Strings...)
	for i, s := range in.strings {
		in.stringIdx[s] = StringID(i)
	}
	in.byteLiterals = append([]string(nil), snap.ByteLiterals...)
	for i, b := range in.byteLiterals {
		in.bytesIdx[b] = BytesID(i)
	}
	in.longInts = append([]string(nil), snap.LongInts...)
	for i, li := range in.longInts {
		in.longIntIdx[li] = LongIntID(i)
	}
	return in
}
