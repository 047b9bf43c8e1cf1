package values

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/scinapse-labs/monty/heap"
)

// BytesPayload is a heap-allocated byte string. Case transforms are
// ASCII-only, mirroring CPython's bytes semantics (spec §4.D) rather than
// the Unicode-aware rules str uses.
type BytesPayload struct {
	b []byte
}

func NewBytes(b []byte) *BytesPayload { return &BytesPayload{b: b} }

func (p *BytesPayload) Value() []byte { return p.b }

func (p *BytesPayload) ContainsRefs() bool      { return false }
func (p *BytesPayload) WalkRefs(func(heap.Ref)) {}
func (p *BytesPayload) ComputeHash() uint64 {
	f := fnv.New64a()
	_, _ = f.Write(p.b)
	return f.Sum64()
}

func (p *BytesPayload) Len() int { return len(p.b) }

func (p *BytesPayload) Repr() string {
	var sb strings.Builder
	sb.WriteString("b'")
	for _, c := range p.b {
		switch {
		case c == '\'':
			sb.WriteString("\\'")
		case c == '\\':
			sb.WriteString("\\\\")
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "\\x%02x", c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

func asciiLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 32
	}
	return c
}
func asciiUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 32
	}
	return c
}

func (p *BytesPayload) Lower() []byte {
	out := make([]byte, len(p.b))
	for i, c := range p.b {
		out[i] = asciiLower(c)
	}
	return out
}
func (p *BytesPayload) Upper() []byte {
	out := make([]byte, len(p.b))
	for i, c := range p.b {
		out[i] = asciiUpper(c)
	}
	return out
}

// Decode restricts to the UTF-8 family (spec §4.D); anything else is a
// runtime error surfaced by the caller as a Python-level exception.
func (p *BytesPayload) Decode(encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8", "ascii":
		return string(p.b), nil
	default:
		return "", fmt.Errorf("unknown encoding: %s", encoding)
	}
}

func (p *BytesPayload) Hex() string { return hex.EncodeToString(p.b) }

func BytesFromHex(s string) ([]byte, error) { return hex.DecodeString(s) }

func (p *BytesPayload) Find(sub []byte) int {
	for i := 0; i+len(sub) <= len(p.b); i++ {
		if string(p.b[i:i+len(sub)]) == string(sub) {
			return i
		}
	}
	return -1
}
