package values_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
)

func newEnv() values.Env {
	return values.Env{Heap: heap.New(), Interns: interns.New()}
}

func TestPyBoolPerType(t *testing.T) {
	e := newEnv()
	require.False(t, e.PyBool(values.None()))
	require.False(t, e.PyBool(values.Int(0)))
	require.True(t, e.PyBool(values.Int(1)))
	require.False(t, e.PyBool(values.Bool(false)))

	id, _ := e.Heap.Allocate(values.NewList(nil), nil)
	require.False(t, e.PyBool(values.RefV(id)))
	id2, _ := e.Heap.Allocate(values.NewList([]values.Value{values.Int(1)}), nil)
	require.True(t, e.PyBool(values.RefV(id2)))
}

// TestBoolEqualsInt is spec §4.D: "Indexing by bool coerces to
// int (True==1)" — exercised here via PyEq, since bool is a numeric subtype.
func TestBoolEqualsInt(t *testing.T) {
	e := newEnv()
	require.True(t, e.PyEq(values.Bool(true), values.Int(1)))
	require.True(t, e.PyEq(values.Bool(false), values.Int(0)))
	require.False(t, e.PyEq(values.Bool(true), values.Int(2)))
}

// TestPyStrUnquotesStringsUnlikeRepr is the distinction Bug 3 hinged on:
// str() of a string is the string's own content, while repr() quotes it.
func TestPyStrUnquotesStringsUnlikeRepr(t *testing.T) {
	e := newEnv()
	sid := e.Interns.InternString("hi")
	require.Equal(t, "hi", e.PyStr(values.InternStr(sid)))
	require.Equal(t, "'hi'", e.PyRepr(values.InternStr(sid)))

	ref, _ := e.Heap.Allocate(values.NewStr("long string past the intern threshold"), nil)
	require.Equal(t, "long string past the intern threshold", e.PyStr(values.RefV(ref)))
}

// TestPyStrMatchesReprForNonStrings is spec: str() and repr() agree for
// every type except strings (bytes also render as their repr under str()).
func TestPyStrMatchesReprForNonStrings(t *testing.T) {
	e := newEnv()
	require.Equal(t, "None", e.PyStr(values.None()))
	require.Equal(t, "42", e.PyStr(values.Int(42)))
	require.Equal(t, "True", e.PyStr(values.Bool(true)))

	ref, _ := e.Heap.Allocate(values.NewList([]values.Value{values.Int(1)}), nil)
	require.Equal(t, e.PyRepr(values.RefV(ref)), e.PyStr(values.RefV(ref)))
}

func TestPyEqContainers(t *testing.T) {
	e := newEnv()
	a, _ := e.Heap.Allocate(values.NewList([]values.Value{values.Int(1), values.Int(2)}), nil)
	b, _ := e.Heap.Allocate(values.NewList([]values.Value{values.Int(1), values.Int(2)}), nil)
	c, _ := e.Heap.Allocate(values.NewList([]values.Value{values.Int(1), values.Int(3)}), nil)

	require.True(t, e.PyEq(values.RefV(a), values.RefV(b)))
	require.False(t, e.PyEq(values.RefV(a), values.RefV(c)))
}

// TestPyEqSelfReferentialDoesNotHang is spec §4.C's depth-guard requirement:
// a self-referential list compared to itself must terminate rather than
// recurse forever. Comparing a ref to itself short-circuits on identity
// before ever walking into the cycle.
func TestPyEqSelfReferentialDoesNotHang(t *testing.T) {
	e := newEnv()
	id, _ := e.Heap.Allocate(values.NewList(nil), nil)
	list := e.Heap.Get(id).(*values.ListPayload)
	list.Append(values.RefV(id))
	e.Heap.IncRef(id)

	require.True(t, e.PyEq(values.RefV(id), values.RefV(id)))
}

func TestPyCmpOrdersNumbersAndStrings(t *testing.T) {
	e := newEnv()
	c, ok := e.PyCmp(values.Int(1), values.Int(2))
	require.True(t, ok)
	require.Negative(t, c)

	sid := e.Interns.InternString("abc")
	tid := e.Interns.InternString("abd")
	c, ok = e.PyCmp(values.InternStr(sid), values.InternStr(tid))
	require.True(t, ok)
	require.Negative(t, c)
}

func TestPyCmpIncomparableReportsFalse(t *testing.T) {
	e := newEnv()
	id, _ := e.Heap.Allocate(values.NewDict(), nil)
	_, ok := e.PyCmp(values.Int(1), values.RefV(id))
	require.False(t, ok)
}

func TestHashUnhashableContainers(t *testing.T) {
	e := newEnv()
	id, _ := e.Heap.Allocate(values.NewList(nil), nil)
	_, ok := e.Hash(values.RefV(id))
	require.False(t, ok)

	_, ok = e.Hash(values.Int(5))
	require.True(t, ok)
}

func TestSortValuesStableAndReverse(t *testing.T) {
	e := newEnv()
	vs := []values.Value{values.Int(3), values.Int(1), values.Int(2)}
	err := e.SortValues(vs, nil, false)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, toInts(vs))

	err = e.SortValues(vs, nil, true)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 1}, toInts(vs))
}

func toInts(vs []values.Value) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = v.Data.(int64)
	}
	return out
}

// TestGetAttrDataclassFieldThenMethod is spec §3.8: declared fields resolve
// first, then extra attrs, then class methods.
func TestGetAttrDataclassFieldThenMethod(t *testing.T) {
	e := newEnv()
	cls := values.NewClass("Point", []string{"x", "y"}, false)
	cls.Methods["describe"] = values.Int(42)
	clsID, _ := e.Heap.Allocate(cls, nil)

	inst := values.NewDataclassInstance(clsID, []values.Value{values.Int(1), values.Int(2)})
	instID, _ := e.Heap.Allocate(inst, nil)

	v, ok := e.GetAttr(values.RefV(instID), "x")
	require.True(t, ok)
	require.Equal(t, int64(1), v.Data.(int64))

	v, ok = e.GetAttr(values.RefV(instID), "describe")
	require.True(t, ok)
	require.Equal(t, int64(42), v.Data.(int64))

	_, ok = e.GetAttr(values.RefV(instID), "missing")
	require.False(t, ok)
}
