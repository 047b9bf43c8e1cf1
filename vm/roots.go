package vm

import (
	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/values"
)

// FrameRoots collects every heap.Ref directly reachable from stack: operand
// stack values, locals, cells, closed-over free cells, and a parked
// attribute receiver. The scheduler calls this for every task's call stack
// that is not the one currently executing, so a GC pass triggered mid-task
// never reclaims a value only a waiting sibling task still reaches (spec
// §4.G "single heap shared across every task in a session").
func FrameRoots(stack []*Frame) []heap.Ref {
	var roots []heap.Ref
	for _, f := range stack {
		for _, v := range f.Stack {
			if v.Type == values.TypeRef {
				roots = append(roots, v.Ref())
			}
		}
		for _, v := range f.Locals {
			if v.Type == values.TypeRef {
				roots = append(roots, v.Ref())
			}
		}
		roots = append(roots, f.Cells...)
		roots = append(roots, f.FreeCells...)
		if f.PendingKind != AttrPlain && f.PendingReceiver.Type == values.TypeRef {
			roots = append(roots, f.PendingReceiver.Ref())
		}
	}
	return roots
}

// gcRoots assembles the complete root set for a GC pass triggered while
// this VM is executing: the current call stack, the global namespace, every
// function's closed-over cells, every class's bound methods, and whatever
// the scheduler has staged in ExtraRoots for tasks parked elsewhere (spec
// §4.B "mark-and-sweep pass... rooted at the frames/globals currently
// live").
func (vm *VM) gcRoots() []heap.Ref {
	roots := FrameRoots(vm.CallStack)
	for _, v := range vm.Globals.vars {
		if v.Type == values.TypeRef {
			roots = append(roots, v.Ref())
		}
	}
	for _, fn := range vm.Functions {
		if fn == nil {
			continue
		}
		roots = append(roots, fn.FreeCells...)
	}
	for _, cls := range vm.Classes {
		if cls == nil {
			continue
		}
		for _, v := range cls.Methods {
			if v.Type == values.TypeRef {
				roots = append(roots, v.Ref())
			}
		}
	}
	roots = append(roots, vm.ExtraRoots...)
	return roots
}

// CollectGarbage runs a mark-and-sweep pass rooted at every reference this
// VM (plus whatever the scheduler staged via ExtraRoots) can currently
// reach, returning the number of slots reclaimed. Safe to call with a nil
// Tracker; callers typically gate this behind Tracker.ShouldGC.
func (vm *VM) CollectGarbage() int {
	return vm.Heap.CollectGarbage(vm.gcRoots())
}
