package vm

import (
	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/values"
)

// BlockKind distinguishes the two forms of exception-handling block markers
// a frame's block stack can hold (spec §4.F "SETUP_FINALLY, POP_BLOCK").
type BlockKind byte

const (
	BlockExcept BlockKind = iota
	BlockFinally
)

// Block is one entry of a frame's block stack: where to jump on an
// exception, and how far to unwind the value stack first.
type Block struct {
	Kind        BlockKind
	HandlerPC   int
	StackHeight int
}

// Frame is one activation record: local namespace, operand stack, block
// stack, program counter, and the code object being executed (spec §4.F).
type Frame struct {
	Code *CodeObject
	PC   int

	Locals []values.Value
	Cells  []heap.Ref // one CellPayload ref per Code.CellNames entry

	// FreeCells holds the closed-over cells supplied by the defining frame,
	// parallel to Code.FreeCells.
	FreeCells []heap.Ref

	Stack      []values.Value
	BlockStack []Block

	// FunctionName/Line are used only for traceback construction.
	FunctionName string
	Line         int

	// Pending{Kind,Receiver,Method} bridge LOAD_ATTR to the CALL_METHOD
	// that immediately follows it: attribute resolution only determines
	// *what kind* of callable an attribute is (spec §4.F "Attribute
	// dispatch"); the receiver and method name are held here rather than
	// re-encoded onto the operand stack, since the frame is already the
	// natural place for single-instruction-pair state.
	PendingKind     AttrResultKind
	PendingReceiver values.Value
	PendingMethod   string

	Parent *Frame
}

// NewFrame allocates a fresh frame for code, with args already unpacked into
// the first len(args) local slots and cells created for every name in
// Code.CellNames. freeCells must have exactly len(code.FreeCells) entries,
// each IncRef'd by the caller (the frame takes ownership of exactly the refs
// passed in).
func NewFrame(h *heap.Heap, code *CodeObject, args []values.Value, freeCells []heap.Ref) *Frame {
	locals := make([]values.Value, code.NumLocals)
	for i := range locals {
		locals[i] = values.Undefined
	}
	for i, a := range args {
		if i >= len(locals) {
			break
		}
		locals[i] = a
	}
	cells := make([]heap.Ref, len(code.CellNames))
	for i := range cells {
		ref, err := h.Allocate(values.NewCell(values.Undefined), nil)
		if err != nil {
			panic("vm: cell allocation must not fail with a nil admission policy")
		}
		cells[i] = ref
	}
	return &Frame{
		Code:         code,
		Locals:       locals,
		Cells:        cells,
		FreeCells:    freeCells,
		FunctionName: code.Name,
	}
}

func (f *Frame) Push(v values.Value) { f.Stack = append(f.Stack, v) }

func (f *Frame) Pop() values.Value {
	n := len(f.Stack) - 1
	v := f.Stack[n]
	f.Stack = f.Stack[:n]
	return v
}

func (f *Frame) Top() values.Value { return f.Stack[len(f.Stack)-1] }

func (f *Frame) PopN(n int) []values.Value {
	start := len(f.Stack) - n
	out := append([]values.Value(nil), f.Stack[start:]...)
	f.Stack = f.Stack[:start]
	return out
}

func (f *Frame) PushBlock(b Block) { f.BlockStack = append(f.BlockStack, b) }

func (f *Frame) PopBlock() (Block, bool) {
	n := len(f.BlockStack) - 1
	if n < 0 {
		return Block{}, false
	}
	b := f.BlockStack[n]
	f.BlockStack = f.BlockStack[:n]
	return b, true
}

// Destroy releases every value this frame still owns: the operand stack,
// locals, and cells (cell refcounts are decremented at frame destruction,
// spec §4.F "Frame lifecycle").
func (f *Frame) Destroy(h *heap.Heap) {
	values.DropSlice(h, f.Stack)
	f.Stack = nil
	if f.PendingKind != AttrPlain {
		values.DropValue(h, f.PendingReceiver)
		f.PendingKind = AttrPlain
	}
	for _, v := range f.Locals {
		if !v.IsUndefined() {
			values.DropValue(h, v)
		}
	}
	for _, ref := range f.Cells {
		h.DecRef(ref)
	}
	for _, ref := range f.FreeCells {
		h.DecRef(ref)
	}
}
