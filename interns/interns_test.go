package interns_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/interns"
)

// TestInternStringDeduplicates is spec §8 "Interning equivalence": two
// InternString calls on equal text return the same id, and the id round
// trips through String().
func TestInternStringDeduplicates(t *testing.T) {
	in := interns.New()
	a := in.InternString("hello")
	b := in.InternString("world")
	c := in.InternString("hello")

	require.Equal(t, a, c)
	require.NotEqual(t, a, b)
	require.Equal(t, "hello", in.String(a))
	require.Equal(t, "world", in.String(b))
}

func TestInternBytesAndLongIntDeduplicate(t *testing.T) {
	in := interns.New()
	b1 := in.InternBytes("\x00\x01")
	b2 := in.InternBytes("\x00\x01")
	b3 := in.InternBytes("\x02")
	require.Equal(t, b1, b2)
	require.NotEqual(t, b1, b3)
	require.Equal(t, "\x00\x01", in.Bytes(b1))

	l1 := in.InternLongInt("123456789012345678901234567890")
	l2 := in.InternLongInt("123456789012345678901234567890")
	require.Equal(t, l1, l2)
	require.Equal(t, "123456789012345678901234567890", in.LongInt(l1))
}

// TestInternOrAllocateStringPolicy is spec §4.A's "short strings may be
// interned; longer strings go to the heap" runtime policy: the cutoff is
// inclusive at 8 bytes.
func TestInternOrAllocateStringPolicy(t *testing.T) {
	in := interns.New()

	id, interned := in.InternOrAllocateString("eight888")
	require.True(t, interned)
	require.Equal(t, "eight888", in.String(id))

	_, interned = in.InternOrAllocateString("nine chars")
	require.False(t, interned)
}

// TestInternsDumpLoadRoundTrip is spec §8 "Snapshot round-trip" applied to
// the interns table in isolation: ids and reverse-lookup indices must behave
// identically after a Dump/Load cycle.
func TestInternsDumpLoadRoundTrip(t *testing.T) {
	in := interns.New()
	sID := in.InternString("alpha")
	bID := in.InternBytes("beta")
	lID := in.InternLongInt("999999999999999999999")

	snap := in.Dump()
	loaded := interns.Load(snap)

	require.Equal(t, "alpha", loaded.String(sID))
	require.Equal(t, "beta", loaded.Bytes(bID))
	require.Equal(t, "999999999999999999999", loaded.LongInt(lID))

	// Re-interning the same text after load must still dedupe onto the
	// restored id, not append a duplicate entry.
	require.Equal(t, sID, loaded.InternString("alpha"))
}

func TestStaticStringLookupRoundTrips(t *testing.T) {
	require.Equal(t, interns.SSAppend, interns.LookupStaticString("append"))
	require.Equal(t, "append", interns.SSAppend.String())
	require.Equal(t, interns.SSDecode, interns.LookupStaticString("decode"))
	require.Equal(t, interns.SSUnknown, interns.LookupStaticString("not_a_method"))
	require.Equal(t, "?", interns.StaticString(255).String())
}
