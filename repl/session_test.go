package repl_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/repl"
	"github.com/scinapse-labs/monty/runner"
	"github.com/scinapse-labs/monty/scheduler"
	"github.com/scinapse-labs/monty/tracker"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// scriptedCompiler is a test double for the external compiler collaborator:
// a fixed table from snippet source text to its prebuilt CompiledSnippet,
// the same role vm.CodeBuilder plays for every other package's tests (the
// real front end is out of scope, spec §1).
type scriptedCompiler struct {
	t       *testing.T
	byText  map[string]*repl.CompiledSnippet
	wantFID map[string]uint32
	wantCID map[string]uint32
}

func (c *scriptedCompiler) Compile(source, scriptName string, funcIDBase, classIDBase uint32) (*repl.CompiledSnippet, error) {
	snip, ok := c.byText[source]
	if !ok {
		return nil, fmt.Errorf("scriptedCompiler: no fixture for %q", source)
	}
	if want, ok := c.wantFID[source]; ok {
		require.Equal(c.t, want, funcIDBase, "funcIDBase for %q", source)
	}
	if want, ok := c.wantCID[source]; ok {
		require.Equal(c.t, want, classIDBase, "classIDBase for %q", source)
	}
	return snip, nil
}

func constInt(b *vm.CodeBuilder, i int64) uint32 { return b.AddConst(values.Int(i)) }

// assignSnippet builds `name = value` as a top-level snippet that stores the
// constant into the global and then returns None.
func assignSnippet(name string, value int64) *repl.CompiledSnippet {
	b := vm.NewCodeBuilder("<snippet>")
	g := b.AddGlobalName(name)
	b.Emit(opcodes.OP_LOAD_CONST, constInt(b, value), 0)
	b.Emit(opcodes.OP_STORE_GLOBAL, g, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.None()), 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return &repl.CompiledSnippet{Code: b.Build()}
}

func incrementSnippet(name string) *repl.CompiledSnippet {
	b := vm.NewCodeBuilder("<snippet>")
	g := b.AddGlobalName(name)
	b.Emit(opcodes.OP_LOAD_GLOBAL, g, 0)
	b.Emit(opcodes.OP_LOAD_CONST, constInt(b, 1), 0)
	b.Emit(opcodes.OP_BINARY_ADD, 0, 0)
	b.Emit(opcodes.OP_STORE_GLOBAL, g, 0)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.None()), 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return &repl.CompiledSnippet{Code: b.Build()}
}

func readSnippet(name string) *repl.CompiledSnippet {
	b := vm.NewCodeBuilder("<snippet>")
	g := b.AddGlobalName(name)
	b.Emit(opcodes.OP_LOAD_GLOBAL, g, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return &repl.CompiledSnippet{Code: b.Build()}
}

// defSnippet builds `def <name>(): return <ret>` as a top-level snippet
// (MAKE_FUNCTION + STORE_GLOBAL) plus the function's own body code object,
// numbered at funcID.
func defSnippet(name string, funcID uint32, ret int64) *repl.CompiledSnippet {
	body := vm.NewCodeBuilder(name)
	body.Emit(opcodes.OP_LOAD_CONST, constInt(body, ret), 0)
	body.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	top := vm.NewCodeBuilder("<snippet>")
	g := top.AddGlobalName(name)
	top.Emit(opcodes.OP_MAKE_FUNCTION, funcID, 0)
	top.Emit(opcodes.OP_STORE_GLOBAL, g, 0)
	top.Emit(opcodes.OP_LOAD_CONST, top.AddConst(values.None()), 0)
	top.Emit(opcodes.OP_RETURN_VALUE, 0, 0)

	return &repl.CompiledSnippet{
		Code:      top.Build(),
		Functions: []*vm.FunctionDef{{Code: body.Build()}},
	}
}

func callSnippet(name string) *repl.CompiledSnippet {
	b := vm.NewCodeBuilder("<snippet>")
	g := b.AddGlobalName(name)
	b.Emit(opcodes.OP_LOAD_GLOBAL, g, 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return &repl.CompiledSnippet{Code: b.Build()}
}

func intResult(t *testing.T, v values.Value) int64 {
	t.Helper()
	require.Equal(t, values.TypeInt, v.Type)
	return v.Data.(int64)
}

// TestReplNoReplay is spec §8 scenario 4: feeding `counter = 0`, then
// `counter = counter + 1`, then `counter` must observe Int(1), not Int(2) —
// the second snippet must run exactly once, not be replayed alongside the
// third.
func TestReplNoReplay(t *testing.T) {
	c := &scriptedCompiler{t: t, byText: map[string]*repl.CompiledSnippet{
		"counter = 0":         assignSnippet("counter", 0),
		"counter = counter + 1": incrementSnippet("counter"),
		"counter":             readSnippet("counter"),
	}}
	sess := repl.New(c, tracker.NoLimit{}, nil)

	_, exc, err := sess.Feed("counter = 0")
	require.NoError(t, err)
	require.Nil(t, exc)

	_, exc, err = sess.Feed("counter = counter + 1")
	require.NoError(t, err)
	require.Nil(t, exc)

	v, exc, err := sess.Feed("counter")
	require.NoError(t, err)
	require.Nil(t, exc)
	require.Equal(t, int64(1), intResult(t, v))
}

// TestReplRedefinition is spec §8 scenario 5: redefining f after it has
// already been called must be observed by the next call, since every caller
// resolves the global name at call time rather than through a cached Value.
func TestReplRedefinition(t *testing.T) {
	c := &scriptedCompiler{
		t: t,
		byText: map[string]*repl.CompiledSnippet{
			"def f(): return 1": defSnippet("f", 0, 1),
			"f()":                callSnippet("f"),
			"def f(): return 2": defSnippet("f", 1, 2),
		},
		wantFID: map[string]uint32{
			"def f(): return 1": 0,
			"def f(): return 2": 1,
		},
	}
	sess := repl.New(c, tracker.NoLimit{}, nil)

	_, exc, err := sess.Feed("def f(): return 1")
	require.NoError(t, err)
	require.Nil(t, exc)

	v, exc, err := sess.Feed("f()")
	require.NoError(t, err)
	require.Nil(t, exc)
	require.Equal(t, int64(1), intResult(t, v))

	_, exc, err = sess.Feed("def f(): return 2")
	require.NoError(t, err)
	require.Nil(t, exc)

	v, exc, err = sess.Feed("f()")
	require.NoError(t, err)
	require.Nil(t, exc)
	require.Equal(t, int64(2), intResult(t, v))
}

// raiseSnippet builds `y = 20; raise ValueError(0)`.
func raiseSnippet(yName string) *repl.CompiledSnippet {
	b := vm.NewCodeBuilder("<snippet>")
	gy := b.AddGlobalName(yName)
	b.Emit(opcodes.OP_LOAD_CONST, constInt(b, 20), 0)
	b.Emit(opcodes.OP_STORE_GLOBAL, gy, 0)

	// ValueError(0): the exception constructor builtin called with one
	// argument, then a single-operand RAISE_VARARGS of its result.
	b.Emit(opcodes.OP_LOAD_BUILTIN, uint32(values.BuiltinExcCtor), uint32(values.ExcValueError))
	msg := b.AddConst(values.Int(0)) // placeholder arg, exception ctor args aren't exercised here
	b.Emit(opcodes.OP_LOAD_CONST, msg, 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 1, 0)
	b.Emit(opcodes.OP_RAISE_VARARGS, 1, 0)
	return &repl.CompiledSnippet{Code: b.Build()}
}

func addSnippet(xName, yName string) *repl.CompiledSnippet {
	b := vm.NewCodeBuilder("<snippet>")
	gx := b.AddGlobalName(xName)
	gy := b.AddGlobalName(yName)
	b.Emit(opcodes.OP_LOAD_GLOBAL, gx, 0)
	b.Emit(opcodes.OP_LOAD_GLOBAL, gy, 0)
	b.Emit(opcodes.OP_BINARY_ADD, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return &repl.CompiledSnippet{Code: b.Build()}
}

// TestReplGlobalsPersistAcrossSnippets checks that globals assigned by
// earlier snippets (`x = 10`, then `y = 20`) are visible to a later snippet
// (`x + y` -> 30). No snippet here raises.
func TestReplGlobalsPersistAcrossSnippets(t *testing.T) {
	c := &scriptedCompiler{t: t, byText: map[string]*repl.CompiledSnippet{
		"x = 10":    assignSnippet("x", 10),
		"y = 20":    assignSnippet("y", 20),
		"x + y":     addSnippet("x", "y"),
	}}
	sess := repl.New(c, tracker.NoLimit{}, nil)

	_, exc, err := sess.Feed("x = 10")
	require.NoError(t, err)
	require.Nil(t, exc)

	_, exc, err = sess.Feed("y = 20")
	require.NoError(t, err)
	require.Nil(t, exc)

	v, exc, err := sess.Feed("x + y")
	require.NoError(t, err)
	require.Nil(t, exc)
	require.Equal(t, int64(30), intResult(t, v))
}

// TestReplScriptNamesAreMonotonic is spec §4.I's "<python-input-N>" naming
// guarantee: every Feed call advances the counter exactly once, regardless
// of whether the snippet succeeds.
func TestReplScriptNamesAreMonotonic(t *testing.T) {
	c := &scriptedCompiler{t: t, byText: map[string]*repl.CompiledSnippet{
		"counter = 0": assignSnippet("counter", 0),
		"counter":     readSnippet("counter"),
	}}
	sess := repl.New(c, tracker.NoLimit{}, nil)

	require.Equal(t, "<python-input-0>", sess.NextScriptName())
	_, _, err := sess.Feed("counter = 0")
	require.NoError(t, err)
	require.Equal(t, "<python-input-1>", sess.NextScriptName())
	_, _, err = sess.Feed("counter")
	require.NoError(t, err)
	require.Equal(t, "<python-input-2>", sess.NextScriptName())
}

// externalCallSnippet builds a snippet that calls a host-provided external
// function by name, pushing its eventual return value as the snippet's
// result — the genuine suspension path, not a builtin/user function call.
func externalCallSnippet(in *interns.Interns, name string) *repl.CompiledSnippet {
	b := vm.NewCodeBuilder("<snippet>")
	id, _ := in.InternOrAllocateString(name)
	b.Emit(opcodes.OP_LOAD_CONST, b.AddConst(values.ExternalFunctionV(id)), 0)
	b.Emit(opcodes.OP_CALL_FUNCTION, 0, 0)
	b.Emit(opcodes.OP_RETURN_VALUE, 0, 0)
	return &repl.CompiledSnippet{Code: b.Build()}
}

// TestReplFeedRejectsSuspendingSnippet checks Feed's documented contract: a
// snippet that calls an external function is not something Feed's direct
// path can answer (it never completes without host input) — Feed must
// report a protocol error rather than silently discarding the suspension.
// Start, by contrast, must report the ProgressFunctionCall record.
func TestReplFeedRejectsSuspendingSnippet(t *testing.T) {
	c := &scriptedCompiler{t: t, byText: map[string]*repl.CompiledSnippet{}}
	sess := repl.New(c, tracker.NoLimit{}, nil)
	c.byText["lookup()"] = externalCallSnippet(sess.Interns(), "lookup")

	_, _, err := sess.Feed("lookup()")
	require.Error(t, err)
}

func TestReplStartReportsFunctionCall(t *testing.T) {
	c := &scriptedCompiler{t: t, byText: map[string]*repl.CompiledSnippet{}}
	sess := repl.New(c, tracker.NoLimit{}, nil)
	c.byText["lookup()"] = externalCallSnippet(sess.Interns(), "lookup")

	prog, err := sess.Start("lookup()")
	require.NoError(t, err)
	require.Equal(t, runner.ProgressFunctionCall, prog.Kind)
	require.NotNil(t, prog.Call)
	require.Equal(t, "lookup", prog.Call.Name)

	prog, err = sess.Resolve([]scheduler.CallResult{{CallID: prog.Call.CallID, Result: vm.Return(values.Int(7))}})
	require.NoError(t, err)
	require.Equal(t, runner.ProgressComplete, prog.Kind)
	require.Nil(t, prog.Err)
	require.Equal(t, int64(7), intResult(t, prog.Result))
}
