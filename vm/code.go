// Package vm implements Monty's bytecode interpreter (component F): frames,
// call conventions, attribute dispatch, and exception unwinding over a
// stack-machine instruction set (package opcodes).
//
// Source parsing, name resolution, and bytecode generation are external
// collaborators (spec Non-goals) — this package only consumes an already
// assembled CodeObject. CodeBuilder exists so tests (and, eventually, a real
// compiler) can construct one without that front end.
package vm

import (
	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
)

// CodeObject is one compiled unit of Python code: a function body, a class
// body, or a module's top-level statements (spec §4.F "code object").
type CodeObject struct {
	Name string

	Instructions []opcodes.Instruction
	Consts       []values.Value

	// LocalNames/CellNames/GlobalNames/AttrNames are the compiler's name
	// tables; bytecode operands index into these rather than embedding
	// strings directly.
	LocalNames  []string
	CellNames   []string
	GlobalNames []string
	AttrNames   []string

	// FormatSpecs holds FormatSpec constants precomputed by the compiler for
	// f-string conversions with an explicit format_spec; OP_FORMAT_VALUE's B
	// operand indexes into this table whenever its A operand carries
	// opcodes.HasFormatSpecFlag.
	FormatSpecs []values.FormatSpec

	ArgCount    int
	NumLocals   int
	IsGenerator bool
	IsAsync     bool

	// FreeCells names the cells this code object expects its enclosing
	// frame to supply at call time, in order (closure capture, spec §4.F
	// "cells injected from captured closure").
	FreeCells []string
}

// CodeBuilder assembles a CodeObject instruction-by-instruction. It exists
// for tests and for any future compiler front end; the VM itself never
// mutates a CodeObject once built.
type CodeBuilder struct {
	code *CodeObject
}

func NewCodeBuilder(name string) *CodeBuilder {
	return &CodeBuilder{code: &CodeObject{Name: name}}
}

func (b *CodeBuilder) Emit(op opcodes.Opcode, a, b2 uint32) int {
	idx := len(b.code.Instructions)
	b.code.Instructions = append(b.code.Instructions, opcodes.Instruction{Op: op, A: a, B: b2})
	return idx
}

// Patch overwrites a previously emitted instruction's A operand, used for
// back-patching forward jump targets once the target offset is known.
func (b *CodeBuilder) Patch(idx int, a uint32) {
	b.code.Instructions[idx].A = a
}

func (b *CodeBuilder) Here() int { return len(b.code.Instructions) }

func (b *CodeBuilder) AddConst(v values.Value) uint32 {
	b.code.Consts = append(b.code.Consts, v)
	return uint32(len(b.code.Consts) - 1)
}

// AddFormatSpec registers a parsed format_spec, returning the index
// OP_FORMAT_VALUE's B operand should carry alongside HasFormatSpecFlag.
func (b *CodeBuilder) AddFormatSpec(fs values.FormatSpec) uint32 {
	b.code.FormatSpecs = append(b.code.FormatSpecs, fs)
	return uint32(len(b.code.FormatSpecs) - 1)
}

func (b *CodeBuilder) AddLocal(name string) uint32 {
	for i, n := range b.code.LocalNames {
		if n == name {
			return uint32(i)
		}
	}
	b.code.LocalNames = append(b.code.LocalNames, name)
	return uint32(len(b.code.LocalNames) - 1)
}

func (b *CodeBuilder) AddGlobalName(name string) uint32 {
	for i, n := range b.code.GlobalNames {
		if n == name {
			return uint32(i)
		}
	}
	b.code.GlobalNames = append(b.code.GlobalNames, name)
	return uint32(len(b.code.GlobalNames) - 1)
}

func (b *CodeBuilder) AddAttrName(name string) uint32 {
	for i, n := range b.code.AttrNames {
		if n == name {
			return uint32(i)
		}
	}
	b.code.AttrNames = append(b.code.AttrNames, name)
	return uint32(len(b.code.AttrNames) - 1)
}

func (b *CodeBuilder) AddCell(name string) uint32 {
	for i, n := range b.code.CellNames {
		if n == name {
			return uint32(i)
		}
	}
	b.code.CellNames = append(b.code.CellNames, name)
	return uint32(len(b.code.CellNames) - 1)
}

func (b *CodeBuilder) SetArgCount(n int) { b.code.ArgCount = n }

func (b *CodeBuilder) Build() *CodeObject {
	b.code.NumLocals = len(b.code.LocalNames)
	return b.code
}
