package runner

import (
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// Program is an already-compiled unit of work: a module's top-level code
// object, its function table, its class table, and the intern tables the
// compiler populated ahead of time. Source parsing and bytecode generation
// are external collaborators (spec Non-goals) — Program is built directly
// from their output, the same way vm.CodeBuilder lets tests construct a
// CodeObject without a real front end.
//
// A Program is immutable and may be reused to start any number of
// independent States (spec §5 "nothing is shared between sessions" — a
// Program is the one thing that legitimately is shared, since it is never
// mutated once built).
type Program struct {
	Name string

	TopLevel  *vm.CodeObject
	Functions []*vm.FunctionDef
	Classes   []*values.ClassPayload

	// TemplateInterns holds every string/bytes/long-int literal the compiler
	// baked in; a fresh State clones it as the starting point for its own
	// Interns table (spec §4.H "a session's Interns starts from the
	// program's compiled literal pool and grows from there").
	TemplateInterns *interns.Interns

	// ExternalFunctionNames/InputNames record, for host documentation
	// purposes only, which names the compiled program expects to suspend
	// out to (spec §6) — the VM itself resolves these by looked-up name at
	// call time, not through this list.
	ExternalFunctionNames []string
	InputNames            []string
}

// NewProgram wraps already-compiled artifacts into a reusable Program.
func NewProgram(name string, topLevel *vm.CodeObject, functions []*vm.FunctionDef, classes []*values.ClassPayload, tmpl *interns.Interns, externalNames, inputNames []string) *Program {
	return &Program{
		Name:                  name,
		TopLevel:              topLevel,
		Functions:             functions,
		Classes:               classes,
		TemplateInterns:       tmpl,
		ExternalFunctionNames: externalNames,
		InputNames:            inputNames,
	}
}

// codeRef is how a dumped Frame names its CodeObject without serializing the
// object itself: tag 0 means p.TopLevel, tag 1 means p.Functions[index].Code.
type codeRef struct {
	tag   byte
	index uint32
}

func (p *Program) resolveCode(ref codeRef) *vm.CodeObject {
	if ref.tag == 0 {
		return p.TopLevel
	}
	return p.Functions[ref.index].Code
}

func (p *Program) codeRefFor(code *vm.CodeObject) (codeRef, bool) {
	if code == p.TopLevel {
		return codeRef{tag: 0}, true
	}
	for i, fn := range p.Functions {
		if fn.Code == code {
			return codeRef{tag: 1, index: uint32(i)}, true
		}
	}
	return codeRef{}, false
}
