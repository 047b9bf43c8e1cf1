package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

func newPointInstance(t *testing.T, m *vm.VM, frozen bool) values.Value {
	t.Helper()
	cls := values.NewClass("Point", []string{"x", "y"}, frozen)
	clsRef, err := m.Heap.Allocate(cls, nil)
	require.NoError(t, err)
	m.Classes = []*values.ClassPayload{cls}

	inst := values.NewDataclassInstance(clsRef, []values.Value{values.Int(1), values.Int(2)})
	instRef, err := m.Heap.Allocate(inst, nil)
	require.NoError(t, err)
	return values.RefV(instRef)
}

// TestGetAttrResolvesDataclassField is spec §3.8: a declared field resolves
// as a plain value, not a method dispatch.
func TestGetAttrResolvesDataclassField(t *testing.T) {
	m := newVM()
	inst := newPointInstance(t, m, false)

	res, exc := m.GetAttr(inst, "x", false)
	require.Nil(t, exc)
	require.Equal(t, vm.AttrPlain, res.Kind)
	require.Equal(t, int64(1), res.Value.Data.(int64))
}

// TestGetAttrUnknownNameOnDataclassIsMethodCall is the spec supplement: a
// dataclass instance's unmatched attribute is lazily dispatched to the host
// as a public method call rather than an immediate AttributeError.
func TestGetAttrUnknownNameOnDataclassIsMethodCall(t *testing.T) {
	m := newVM()
	inst := newPointInstance(t, m, false)

	res, exc := m.GetAttr(inst, "describe", false)
	require.Nil(t, exc)
	require.Equal(t, vm.AttrMethodCall, res.Kind)
	require.Equal(t, "describe", res.Method)
}

// TestGetAttrMissingOnNonRefIsAttributeError exercises the plain-value
// attribute-access failure path.
func TestGetAttrMissingOnNonRefIsAttributeError(t *testing.T) {
	m := newVM()
	_, exc := m.GetAttr(values.Int(5), "bit_length", false)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcAttributeError, exc.Kind)
}

// TestGetAttrImportMissingIsImportError exercises LOAD_ATTR_IMPORT's
// distinct failure kind for the same missing-attribute condition.
func TestGetAttrImportMissingIsImportError(t *testing.T) {
	m := newVM()
	_, exc := m.GetAttr(values.Int(5), "nope", true)
	require.NotNil(t, exc)
	require.Equal(t, values.ExcImportError, exc.Kind)
}

// TestSetAttrRejectsFrozenInstance is the spec supplement's
// FrozenInstanceError behavior for @dataclass(frozen=True).
func TestSetAttrRejectsFrozenInstance(t *testing.T) {
	m := newVM()
	inst := newPointInstance(t, m, true)

	exc := m.SetAttr(inst, "x", values.Int(99))
	require.NotNil(t, exc)
	require.Equal(t, values.ExcFrozenInstanceError, exc.Kind)
}

// TestSetAttrOverwritesFieldOnMutableInstance confirms a non-frozen instance
// accepts a field write and the old value is reported for the caller to
// drop (it is not leaked).
func TestSetAttrOverwritesFieldOnMutableInstance(t *testing.T) {
	m := newVM()
	inst := newPointInstance(t, m, false)

	exc := m.SetAttr(inst, "x", values.Int(99))
	require.Nil(t, exc)

	res, getExc := m.GetAttr(inst, "x", false)
	require.Nil(t, getExc)
	require.Equal(t, int64(99), res.Value.Data.(int64))
}

// TestSetAttrAddsExtraAttributeWhenNoFieldMatches exercises the
// extra-attribute bag for names outside the declared field list.
func TestSetAttrAddsExtraAttributeWhenNoFieldMatches(t *testing.T) {
	m := newVM()
	inst := newPointInstance(t, m, false)

	exc := m.SetAttr(inst, "label", values.Int(7))
	require.Nil(t, exc)

	res, getExc := m.GetAttr(inst, "label", false)
	require.Nil(t, getExc)
	require.Equal(t, vm.AttrPlain, res.Kind)
	require.Equal(t, int64(7), res.Value.Data.(int64))
}
