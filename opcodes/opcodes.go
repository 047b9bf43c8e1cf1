// Package opcodes defines Monty's bytecode instruction set: a stack machine
// (unlike the teacher's three-address Zend-style encoding), grouped into
// numbered families the way the teacher's own opcode table is laid out
// (spec §4.F "instruction families").
package opcodes

import "fmt"

// Opcode is a single bytecode instruction tag.
type Opcode byte

// Stack manipulation (0-9).
const (
	OP_NOP Opcode = iota
	OP_POP_TOP
	OP_DUP_TOP
	OP_DUP_TOP_TWO
	OP_ROT_TWO
	OP_ROT_THREE
)

// Constants and names (10-29).
const (
	OP_LOAD_CONST Opcode = iota + 10
	OP_LOAD_LOCAL
	OP_LOAD_GLOBAL
	OP_LOAD_CELL
	OP_STORE_LOCAL
	OP_STORE_GLOBAL
	OP_STORE_CELL
	OP_DELETE_LOCAL
	OP_DELETE_GLOBAL
	OP_DELETE_CELL
	OP_LOAD_BUILTIN
)

// Attributes (30-39).
const (
	OP_LOAD_ATTR Opcode = iota + 30
	// OP_LOAD_ATTR_IMPORT converts an AttributeError raised by the lookup
	// into an ImportError, for `from m import n`.
	OP_LOAD_ATTR_IMPORT
	OP_STORE_ATTR
	OP_DELETE_ATTR
)

// Subscript (40-49).
const (
	OP_BINARY_SUBSCR Opcode = iota + 40
	OP_STORE_SUBSCR
	OP_DELETE_SUBSCR
)

// Arithmetic and comparison (50-79).
const (
	OP_BINARY_ADD Opcode = iota + 50
	OP_BINARY_SUB
	OP_BINARY_MUL
	OP_BINARY_DIV
	OP_BINARY_FLOORDIV
	OP_BINARY_MOD
	OP_BINARY_POW
	OP_BINARY_LSHIFT
	OP_BINARY_RSHIFT
	OP_BINARY_AND
	OP_BINARY_OR
	OP_BINARY_XOR
	OP_BINARY_MATMUL
	OP_UNARY_NEGATIVE
	OP_UNARY_POSITIVE
	OP_UNARY_NOT
	OP_UNARY_INVERT
	OP_INPLACE_ADD
	OP_INPLACE_SUB
	OP_INPLACE_MUL
	OP_INPLACE_DIV
)

const (
	OP_COMPARE_EQ Opcode = iota + 71
	OP_COMPARE_NE
	OP_COMPARE_LT
	OP_COMPARE_LE
	OP_COMPARE_GT
	OP_COMPARE_GE
	OP_COMPARE_IS
	OP_COMPARE_IS_NOT
	OP_COMPARE_IN
	OP_COMPARE_NOT_IN
	// OP_COMPARE_MOD_EQ is a specialized comparison folding `x % n == k`
	// into one instruction (A = n, B = k), avoiding a materialized
	// intermediate int for the common modulus-test pattern.
	OP_COMPARE_MOD_EQ
)

// Containers (80-99).
const (
	OP_BUILD_LIST Opcode = iota + 82
	OP_BUILD_TUPLE
	OP_BUILD_DICT
	OP_BUILD_SET
	OP_BUILD_SLICE
	OP_LIST_APPEND
	OP_DICT_UPDATE
	OP_SET_UPDATE
	OP_UNPACK_SEQUENCE
	OP_UNPACK_EX
	OP_LIST_EXTEND
)

// Control flow (100-119).
const (
	OP_JUMP Opcode = iota + 100
	OP_POP_JUMP_IF_TRUE
	OP_POP_JUMP_IF_FALSE
	OP_JUMP_IF_TRUE_OR_POP
	OP_JUMP_IF_FALSE_OR_POP
	// OP_FOR_ITER advances the iterator at stack top; on exhaustion it pops
	// the iterator and jumps to A, otherwise it pushes the next value.
	OP_FOR_ITER
	// OP_GET_ITER pops the value the for-loop iterates over, wraps it in an
	// explicit iterator (source + cursor, spec §9 MontyIter) and pushes that
	// in its place. It errors if the value is not iterable.
	OP_GET_ITER
	OP_SETUP_FINALLY
	OP_SETUP_EXCEPT
	OP_POP_BLOCK
	OP_POP_EXCEPT
	OP_RERAISE
	OP_RAISE_VARARGS
	OP_WITH_ENTER
	OP_WITH_EXIT
)

// Calls (120-129).
const (
	OP_CALL_FUNCTION Opcode = iota + 120
	OP_CALL_FUNCTION_KW
	OP_CALL_METHOD
	OP_RETURN_VALUE
	OP_MAKE_FUNCTION
	OP_MAKE_CLOSURE
	OP_BUILD_CLASS
)

// F-strings (130-134).
const (
	// OP_FORMAT_VALUE's A operand packs the conversion (none/repr/str/ascii)
	// in the low bits and HasFormatSpecFlag in the high bit; when that flag
	// is set, B indexes the enclosing CodeObject's FormatSpecs table for the
	// spec to apply. No conversion plus no format_spec is plain str().
	OP_FORMAT_VALUE Opcode = iota + 130
	OP_BUILD_STRING
)

// Async (140-143), see spec §4.G.
const (
	OP_GET_AWAITABLE Opcode = iota + 140
	OP_YIELD_FROM_AWAIT
	OP_RESUME_AWAIT
	OP_GET_AITER
)

var opcodeNames = map[Opcode]string{
	OP_NOP: "NOP", OP_POP_TOP: "POP_TOP", OP_DUP_TOP: "DUP_TOP",
	OP_DUP_TOP_TWO: "DUP_TOP_TWO", OP_ROT_TWO: "ROT_TWO", OP_ROT_THREE: "ROT_THREE",

	OP_LOAD_CONST: "LOAD_CONST", OP_LOAD_LOCAL: "LOAD_LOCAL", OP_LOAD_GLOBAL: "LOAD_GLOBAL",
	OP_LOAD_CELL: "LOAD_CELL", OP_STORE_LOCAL: "STORE_LOCAL", OP_STORE_GLOBAL: "STORE_GLOBAL",
	OP_STORE_CELL: "STORE_CELL", OP_DELETE_LOCAL: "DELETE_LOCAL", OP_DELETE_GLOBAL: "DELETE_GLOBAL",
	OP_DELETE_CELL: "DELETE_CELL", OP_LOAD_BUILTIN: "LOAD_BUILTIN",

	OP_LOAD_ATTR: "LOAD_ATTR", OP_LOAD_ATTR_IMPORT: "LOAD_ATTR_IMPORT",
	OP_STORE_ATTR: "STORE_ATTR", OP_DELETE_ATTR: "DELETE_ATTR",

	OP_BINARY_SUBSCR: "BINARY_SUBSCR", OP_STORE_SUBSCR: "STORE_SUBSCR", OP_DELETE_SUBSCR: "DELETE_SUBSCR",

	OP_BINARY_ADD: "BINARY_ADD", OP_BINARY_SUB: "BINARY_SUB", OP_BINARY_MUL: "BINARY_MUL",
	OP_BINARY_DIV: "BINARY_DIV", OP_BINARY_FLOORDIV: "BINARY_FLOORDIV", OP_BINARY_MOD: "BINARY_MOD",
	OP_BINARY_POW: "BINARY_POW", OP_BINARY_LSHIFT: "BINARY_LSHIFT", OP_BINARY_RSHIFT: "BINARY_RSHIFT",
	OP_BINARY_AND: "BINARY_AND", OP_BINARY_OR: "BINARY_OR", OP_BINARY_XOR: "BINARY_XOR",
	OP_BINARY_MATMUL: "BINARY_MATMUL", OP_UNARY_NEGATIVE: "UNARY_NEGATIVE",
	OP_UNARY_POSITIVE: "UNARY_POSITIVE", OP_UNARY_NOT: "UNARY_NOT", OP_UNARY_INVERT: "UNARY_INVERT",
	OP_INPLACE_ADD: "INPLACE_ADD", OP_INPLACE_SUB: "INPLACE_SUB", OP_INPLACE_MUL: "INPLACE_MUL",
	OP_INPLACE_DIV: "INPLACE_DIV",

	OP_COMPARE_EQ: "COMPARE_EQ", OP_COMPARE_NE: "COMPARE_NE", OP_COMPARE_LT: "COMPARE_LT",
	OP_COMPARE_LE: "COMPARE_LE", OP_COMPARE_GT: "COMPARE_GT", OP_COMPARE_GE: "COMPARE_GE",
	OP_COMPARE_IS: "COMPARE_IS", OP_COMPARE_IS_NOT: "COMPARE_IS_NOT",
	OP_COMPARE_IN: "COMPARE_IN", OP_COMPARE_NOT_IN: "COMPARE_NOT_IN", OP_COMPARE_MOD_EQ: "COMPARE_MOD_EQ",

	OP_BUILD_LIST: "BUILD_LIST", OP_BUILD_TUPLE: "BUILD_TUPLE", OP_BUILD_DICT: "BUILD_DICT",
	OP_BUILD_SET: "BUILD_SET", OP_BUILD_SLICE: "BUILD_SLICE", OP_LIST_APPEND: "LIST_APPEND",
	OP_DICT_UPDATE: "DICT_UPDATE", OP_SET_UPDATE: "SET_UPDATE",
	OP_UNPACK_SEQUENCE: "UNPACK_SEQUENCE", OP_UNPACK_EX: "UNPACK_EX", OP_LIST_EXTEND: "LIST_EXTEND",

	OP_JUMP: "JUMP", OP_POP_JUMP_IF_TRUE: "POP_JUMP_IF_TRUE", OP_POP_JUMP_IF_FALSE: "POP_JUMP_IF_FALSE",
	OP_JUMP_IF_TRUE_OR_POP: "JUMP_IF_TRUE_OR_POP", OP_JUMP_IF_FALSE_OR_POP: "JUMP_IF_FALSE_OR_POP",
	OP_FOR_ITER: "FOR_ITER", OP_GET_ITER: "GET_ITER", OP_SETUP_FINALLY: "SETUP_FINALLY",
	OP_SETUP_EXCEPT: "SETUP_EXCEPT", OP_POP_BLOCK: "POP_BLOCK", OP_POP_EXCEPT: "POP_EXCEPT",
	OP_RERAISE: "RERAISE", OP_RAISE_VARARGS: "RAISE_VARARGS",
	OP_WITH_ENTER: "WITH_ENTER", OP_WITH_EXIT: "WITH_EXIT",

	OP_CALL_FUNCTION: "CALL_FUNCTION", OP_CALL_FUNCTION_KW: "CALL_FUNCTION_KW",
	OP_CALL_METHOD: "CALL_METHOD", OP_RETURN_VALUE: "RETURN_VALUE",
	OP_MAKE_FUNCTION: "MAKE_FUNCTION", OP_MAKE_CLOSURE: "MAKE_CLOSURE", OP_BUILD_CLASS: "BUILD_CLASS",

	OP_FORMAT_VALUE: "FORMAT_VALUE", OP_BUILD_STRING: "BUILD_STRING",

	OP_GET_AWAITABLE: "GET_AWAITABLE", OP_YIELD_FROM_AWAIT: "YIELD_FROM_AWAIT",
	OP_RESUME_AWAIT: "RESUME_AWAIT", OP_GET_AITER: "GET_AITER",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Instruction is one decoded bytecode instruction: a stack machine operation
// plus up to two small integer operands (constant pool index, jump target,
// local slot, etc. depending on Op). Unlike the teacher's three-address
// Zend-style Instruction, operands here never name an operand *value* — the
// value stack supplies those.
type Instruction struct {
	Op Opcode
	A  uint32
	B  uint32
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s %d %d", i.Op, i.A, i.B)
}

// FormatValue conversion flags packed into OP_FORMAT_VALUE's A operand.
const (
	ConvNone byte = iota
	ConvStr
	ConvRepr
	ConvAscii
)

// HasFormatSpecFlag, OR'd into OP_FORMAT_VALUE's A operand alongside the
// conversion flag, signals that B names a format_spec in the enclosing
// CodeObject's FormatSpecs table to apply instead of the default str()/
// repr() conversion.
const HasFormatSpecFlag byte = 0x80
