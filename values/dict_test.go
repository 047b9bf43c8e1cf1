package values_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/values"
)

func intEq(a, b values.Value) bool { return a.Data.(int64) == b.Data.(int64) }
func intHash(v values.Value) uint64 { return uint64(v.Data.(int64)) }

func TestDictSetGetOverwrite(t *testing.T) {
	d := values.NewDict()
	k1, v1 := values.Int(1), values.Int(10)
	_, existed := d.Set(intHash(k1), k1, v1, intEq)
	require.False(t, existed)

	got, ok := d.Get(intHash(k1), k1, intEq)
	require.True(t, ok)
	require.Equal(t, int64(10), got.Data.(int64))

	old, existed := d.Set(intHash(k1), k1, values.Int(99), intEq)
	require.True(t, existed)
	require.Equal(t, int64(10), old.Data.(int64))
	require.Equal(t, 1, d.Len())
}

// TestDictPopitemIsLIFO is spec §4.D: "popitem is LIFO".
func TestDictPopitemIsLIFO(t *testing.T) {
	d := values.NewDict()
	for i := int64(1); i <= 3; i++ {
		d.Set(uint64(i), values.Int(i), values.Int(i*10), intEq)
	}
	k, v, ok := d.Popitem()
	require.True(t, ok)
	require.Equal(t, int64(3), k.Data.(int64))
	require.Equal(t, int64(30), v.Data.(int64))
	require.Equal(t, 2, d.Len())
}

func TestDictDeleteAndInsertionOrderPreserved(t *testing.T) {
	d := values.NewDict()
	for i := int64(1); i <= 3; i++ {
		d.Set(uint64(i), values.Int(i), values.Int(i*10), intEq)
	}
	_, _, ok := d.Delete(uint64(2), values.Int(2), intEq)
	require.True(t, ok)

	keys := d.Keys()
	require.Len(t, keys, 2)
	require.Equal(t, int64(1), keys[0].Data.(int64))
	require.Equal(t, int64(3), keys[1].Data.(int64))
}

// TestDictClearLeavesContainsRefsConservative is spec §4.D's documented
// tie-break: Clear() must not reset the contains-refs hint.
func TestDictClearLeavesContainsRefsConservative(t *testing.T) {
	d := values.NewDict()
	d.Set(1, values.Int(1), values.RefV(7), intEq)
	require.True(t, d.ContainsRefs())

	d.Clear()
	require.Equal(t, 0, d.Len())
	require.True(t, d.ContainsRefs(), "Clear must leave the contains-refs hint set")
}

func TestDictRebuildIndexAfterRestore(t *testing.T) {
	entries := []values.DictEntry{
		{Key: values.Int(1), Val: values.Int(10)},
		{Key: values.Int(2), Val: values.Int(20)},
	}
	d := values.RestoreDict(entries, false)
	d.RebuildIndex(func(v values.Value) (uint64, bool) { return intHash(v), true })

	got, ok := d.Get(intHash(values.Int(2)), values.Int(2), intEq)
	require.True(t, ok)
	require.Equal(t, int64(20), got.Data.(int64))
}
