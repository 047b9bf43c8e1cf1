package vm

import "github.com/scinapse-labs/monty/values"

// Namespace is a module-level (global) variable table. A session's REPL
// component keeps exactly one of these alive across snippets (spec §4.I);
// a one-shot run owns a fresh one per Program.
type Namespace struct {
	vars map[string]values.Value
}

func NewNamespace() *Namespace {
	return &Namespace{vars: make(map[string]values.Value)}
}

func (n *Namespace) Get(name string) (values.Value, bool) {
	v, ok := n.vars[name]
	return v, ok
}

// Set overwrites name's binding, returning the previous value (if any) for
// the caller to drop. Redefining a function name here is exactly the path
// the REPL's "existing callers pick up the new definition automatically"
// guarantee relies on (spec §4.I) — callers resolve by name at call time,
// never by a cached Value.
func (n *Namespace) Set(name string, v values.Value) (values.Value, bool) {
	old, existed := n.vars[name]
	n.vars[name] = v
	return old, existed
}

func (n *Namespace) Delete(name string) (values.Value, bool) {
	old, existed := n.vars[name]
	delete(n.vars, name)
	return old, existed
}

func (n *Namespace) Names() []string {
	out := make([]string, 0, len(n.vars))
	for k := range n.vars {
		out = append(out, k)
	}
	return out
}
