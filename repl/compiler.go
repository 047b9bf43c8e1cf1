// Package repl implements Monty's persistent interactive session
// (component I): one long-lived heap, interns table, and global namespace
// fed a sequence of already-compiled snippets, each run exactly once (spec
// §4.I "previously fed snippets are not replayed").
//
// Source parsing and compilation remain external collaborators (spec §1
// Non-goals) — Session never turns Python source into bytecode itself. The
// Compiler interface is the seam: a host wires in a real front end (lexer,
// parser, name-resolution/prepare pass) that compiles one snippet against
// the session's *current* symbol table and hands back a CodeObject plus any
// new function/class definitions it introduced.
package repl

import (
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// CompiledSnippet is one snippet's compiled output: its top-level code
// object (run once as a fresh frame against the session's persistent
// Globals) plus any new FunctionDef/ClassPayload entries it defined. The
// compiler must number any LOAD_CONST-embedded values.FunctionV/TypeRef ids
// it emits starting at funcIDBase/classIDBase — see Compiler.Compile.
type CompiledSnippet struct {
	Code      *vm.CodeObject
	Functions []*vm.FunctionDef
	Classes   []*values.ClassPayload
}

// Compiler is the external front-end collaborator (spec §1, §6 "compile").
// scriptName is the synthetic file name the Session has already assigned
// this snippet (e.g. "<python-input-3>") for traceback purposes.
// funcIDBase/classIDBase are the first free indices into the session's
// growing Functions/Classes tables — a `def`/dataclass this snippet
// introduces must be numbered starting there so its values.FunctionV(id)/
// class-ref constants resolve correctly once Session appends them.
type Compiler interface {
	Compile(source, scriptName string, funcIDBase, classIDBase uint32) (*CompiledSnippet, error)
}

// CompilerFunc adapts a plain function to the Compiler interface, the same
// pattern as http.HandlerFunc.
type CompilerFunc func(source, scriptName string, funcIDBase, classIDBase uint32) (*CompiledSnippet, error)

func (f CompilerFunc) Compile(source, scriptName string, funcIDBase, classIDBase uint32) (*CompiledSnippet, error) {
	return f(source, scriptName, funcIDBase, classIDBase)
}
