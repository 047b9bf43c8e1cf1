// Package asm is a tiny textual bytecode assembler: a stand-in for the real
// Python front end (lexer/parser/compiler), which is an explicit external
// collaborator Monty itself never implements. It exists so cmd/monty's
// `run`/`repl`/`dump`/`resume` subcommands have something to feed vm.CodeBuilder
// without requiring an actual Python compiler — a host embedding Monty for real
// supplies its own front end and never touches this package.
package asm

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// jumpOps is the set of opcodes whose A operand is an absolute instruction
// index rather than a name-table index or immediate, matching vm/dispatch.go's
// treatment of control flow (f.PC = int(inst.A)).
var jumpOps = map[opcodes.Opcode]bool{
	opcodes.OP_JUMP: true, opcodes.OP_POP_JUMP_IF_TRUE: true, opcodes.OP_POP_JUMP_IF_FALSE: true,
	opcodes.OP_JUMP_IF_TRUE_OR_POP: true, opcodes.OP_JUMP_IF_FALSE_OR_POP: true,
	opcodes.OP_FOR_ITER: true, opcodes.OP_SETUP_FINALLY: true, opcodes.OP_SETUP_EXCEPT: true,
}

var opByName = func() map[string]opcodes.Opcode {
	m := make(map[string]opcodes.Opcode, 96)
	for op := opcodes.Opcode(0); op < 255; op++ {
		if name := op.String(); name != "UNKNOWN" {
			m[name] = op
		}
	}
	return m
}()

// nameTableOp reports which of a CodeBuilder's name tables (global, local,
// cell, attr) a given opcode's A operand indexes into, if any.
func nameTableOp(op opcodes.Opcode) string {
	switch op {
	case opcodes.OP_LOAD_GLOBAL, opcodes.OP_STORE_GLOBAL, opcodes.OP_DELETE_GLOBAL:
		return "global"
	case opcodes.OP_LOAD_LOCAL, opcodes.OP_STORE_LOCAL, opcodes.OP_DELETE_LOCAL:
		return "local"
	case opcodes.OP_LOAD_CELL, opcodes.OP_STORE_CELL, opcodes.OP_DELETE_CELL:
		return "cell"
	case opcodes.OP_LOAD_ATTR, opcodes.OP_LOAD_ATTR_IMPORT, opcodes.OP_STORE_ATTR, opcodes.OP_DELETE_ATTR:
		return "attr"
	}
	return ""
}

// Unit is one assembled top-level module: its own code object plus any
// function bodies its instructions reference by index (MAKE_FUNCTION/
// MAKE_CLOSURE's A operand), in declaration order — the same shape
// runner.NewProgram expects for its functions slice.
type Unit struct {
	Top       *vm.CodeObject
	Functions []*vm.FunctionDef
}

// Assemble parses src (one opcode or `.`-directive per line, `label:` lines,
// `;` comments, `.function name [argcount]` ... `.end` bodies) into a Unit, interning any string
// constants against in so the resulting code object's LOAD_CONST operands
// agree with whatever Interns table the host ultimately runs it against.
func Assemble(src string, in *interns.Interns) (*Unit, error) {
	p := &parser{in: in, funcIdx: map[string]uint32{}}
	if err := p.run(src); err != nil {
		return nil, err
	}
	return &Unit{Top: p.top.Build(), Functions: p.functions}, nil
}

type block struct {
	b      *vm.CodeBuilder
	labels map[string]int
	// fixups records (instruction index, label) pairs awaiting resolution
	// once every label in this block has been seen.
	fixups []fixup
}

type fixup struct {
	idx   int
	label string
}

type parser struct {
	in        *interns.Interns
	top       *vm.CodeBuilder
	functions []*vm.FunctionDef
	funcIdx   map[string]uint32
}

func (p *parser) run(src string) error {
	p.top = vm.NewCodeBuilder("<module>")
	cur := &block{b: p.top, labels: map[string]int{}}
	stack := []*block{cur}

	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := stripLineComment(sc.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		cur = stack[len(stack)-1]

		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			label := strings.TrimSuffix(line, ":")
			cur.labels[label] = cur.b.Here()
			continue
		}

		fields := strings.Fields(line)
		directive := fields[0]

		if strings.HasPrefix(directive, ".") {
			if err := p.directive(cur, directive, fields[1:], line, lineNo); err != nil {
				return err
			}
			if directive == ".function" {
				name := fields[1]
				nb := vm.NewCodeBuilder(name)
				if len(fields) > 2 {
					if n, err := strconv.Atoi(fields[2]); err == nil {
						nb.SetArgCount(n)
					}
				}
				nc := &block{b: nb, labels: map[string]int{}}
				stack = append(stack, nc)
			}
			if directive == ".end" {
				if len(stack) == 1 {
					return fmt.Errorf("asm: line %d: .end with no open .function", lineNo)
				}
				finished := stack[len(stack)-1]
				if err := resolveFixups(finished); err != nil {
					return errors.Wrapf(err, "asm: line %d", lineNo)
				}
				stack = stack[:len(stack)-1]
				p.functions = append(p.functions, &vm.FunctionDef{Code: finished.b.Build()})
			}
			continue
		}

		op, ok := opByName[strings.ToUpper(directive)]
		if !ok {
			return fmt.Errorf("asm: line %d: unknown opcode %q", lineNo, directive)
		}
		a, b2, err := p.operands(cur, op, fields[1:], lineNo)
		if err != nil {
			return err
		}
		cur.b.Emit(op, a, b2)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(stack) != 1 {
		return fmt.Errorf("asm: unterminated .function block(s)")
	}
	return resolveFixups(stack[0])
}

func (p *parser) directive(cur *block, name string, args []string, rawLine string, lineNo int) error {
	switch name {
	case ".function":
		if len(args) < 1 {
			return fmt.Errorf("asm: line %d: .function requires a name", lineNo)
		}
		// Stored as index+1: the function is appended to p.functions at its
		// .end, so this is its final index as long as no other .function
		// closes in between; operand() subtracts the 1 again.
		p.funcIdx[args[0]] = uint32(len(p.functions) + 1)
		return nil
	case ".end":
		return nil
	case ".global":
		for _, n := range args {
			cur.b.AddGlobalName(n)
		}
	case ".local":
		for _, n := range args {
			cur.b.AddLocal(n)
		}
	case ".cell":
		for _, n := range args {
			cur.b.AddCell(n)
		}
	case ".attr":
		for _, n := range args {
			cur.b.AddAttrName(n)
		}
	case ".argcount":
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("asm: line %d: bad .argcount: %v", lineNo, err)
		}
		cur.b.SetArgCount(n)
	case ".const":
		if len(args) < 1 {
			return fmt.Errorf("asm: line %d: .const requires a kind", lineNo)
		}
		v, err := p.constValue(args, rawLine, lineNo)
		if err != nil {
			return err
		}
		cur.b.AddConst(v)
	default:
		return fmt.Errorf("asm: line %d: unknown directive %q", lineNo, name)
	}
	return nil
}

func (p *parser) constValue(args []string, rawLine string, lineNo int) (values.Value, error) {
	kind := args[0]
	rest := strings.TrimSpace(strings.Join(args[1:], " "))
	switch kind {
	case "none":
		return values.None(), nil
	case "bool":
		return values.Bool(rest == "true"), nil
	case "int":
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return values.Value{}, fmt.Errorf("asm: line %d: bad int const: %v", lineNo, err)
		}
		return values.Int(n), nil
	case "float":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return values.Value{}, fmt.Errorf("asm: line %d: bad float const: %v", lineNo, err)
		}
		return values.Float(f), nil
	case "str":
		// Re-derive the quoted literal from the raw line rather than the
		// whitespace-split args, since a string constant may itself contain
		// spaces (".const str \"hello world\"").
		i := strings.Index(rawLine, `"`)
		if i < 0 {
			return values.Value{}, fmt.Errorf("asm: line %d: bad str const: missing opening quote", lineNo)
		}
		s, err := unquote(strings.TrimSpace(rawLine[i:]))
		if err != nil {
			return values.Value{}, fmt.Errorf("asm: line %d: bad str const: %v", lineNo, err)
		}
		id, _ := p.in.InternOrAllocateString(s)
		return values.InternStr(id), nil
	}
	return values.Value{}, fmt.Errorf("asm: line %d: unknown const kind %q", lineNo, kind)
}

// operands resolves a two-field instruction's A/B tokens: a bare decimal, a
// `%name` name-table reference, or (for jump opcodes) a label that may not
// have been defined yet — recorded as a fixup and resolved once the
// enclosing block is fully parsed.
func (p *parser) operands(cur *block, op opcodes.Opcode, fields []string, lineNo int) (uint32, uint32, error) {
	var a, b2 uint32
	if len(fields) > 0 {
		v, err := p.operand(cur, op, fields[0], lineNo, true)
		if err != nil {
			return 0, 0, err
		}
		a = v
	}
	if len(fields) > 1 {
		v, err := p.operand(cur, op, fields[1], lineNo, false)
		if err != nil {
			return 0, 0, err
		}
		b2 = v
	}
	return a, b2, nil
}

func (p *parser) operand(cur *block, op opcodes.Opcode, tok string, lineNo int, isA bool) (uint32, error) {
	if jumpOps[op] && isA {
		if n, ok := cur.labels[tok]; ok {
			return uint32(n), nil
		}
		// forward reference: patch once the label is seen.
		idx := cur.b.Here()
		cur.fixups = append(cur.fixups, fixup{idx: idx, label: tok})
		return 0, nil
	}
	if strings.HasPrefix(tok, "%") {
		name := tok[1:]
		switch nameTableOp(op) {
		case "global":
			return cur.b.AddGlobalName(name), nil
		case "local":
			return cur.b.AddLocal(name), nil
		case "cell":
			return cur.b.AddCell(name), nil
		case "attr":
			return cur.b.AddAttrName(name), nil
		}
		return 0, fmt.Errorf("asm: line %d: %s does not take a name operand", lineNo, op)
	}
	if op == opcodes.OP_MAKE_FUNCTION || op == opcodes.OP_MAKE_CLOSURE {
		if id, ok := p.funcIdx[tok]; ok {
			return id - 1, nil
		}
	}
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: bad operand %q: %v", lineNo, tok, err)
	}
	return uint32(n), nil
}

// resolveFixups rewrites the Emit-time placeholder A operand of every
// forward-referenced jump once every label in a block has a known offset.
// CodeBuilder has no public instruction reader, so this works directly
// against the block's own Patch calls, which is why fixups are collected
// per-block rather than globally.
func resolveFixups(b *block) error {
	for _, fx := range b.fixups {
		target, ok := b.labels[fx.label]
		if !ok {
			return fmt.Errorf("asm: undefined label %q", fx.label)
		}
		b.b.Patch(fx.idx, uint32(target))
	}
	return nil
}

func stripLineComment(s string) string {
	inQuote := false
	for i, ch := range s {
		if ch == '"' {
			inQuote = !inQuote
		}
		if ch == ';' && !inQuote {
			return s[:i]
		}
	}
	return s
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected a quoted string, got %q", s)
	}
	return strconv.Unquote(s)
}
