package values

import "github.com/scinapse-labs/monty/heap"

// CoroutinePayload is what calling an `async def` function produces instead
// of a running frame: a bound-but-not-started call (function id plus already
// -evaluated arguments), matching CPython's "calling a coroutine function
// doesn't run its body" rule closely enough to let `asyncio.gather` and a
// bare `await` decide when (and whether concurrently) it actually runs
// (spec §4.G, §9 "async def compiles to a task-spawning call").
type CoroutinePayload struct {
	FuncID uint32
	Args   []Value
	Kwargs map[string]Value
	// Started is set once a task has been spawned for this coroutine;
	// awaiting (or gathering) an already-started coroutine a second time is
	// a RuntimeError, mirroring CPython's "cannot reuse already awaited
	// coroutine".
	Started bool
}

func NewCoroutine(funcID uint32, args []Value, kwargs map[string]Value) *CoroutinePayload {
	return &CoroutinePayload{FuncID: funcID, Args: args, Kwargs: kwargs}
}

func (p *CoroutinePayload) ContainsRefs() bool {
	for _, a := range p.Args {
		if a.Type == TypeRef {
			return true
		}
	}
	for _, v := range p.Kwargs {
		if v.Type == TypeRef {
			return true
		}
	}
	return false
}

func (p *CoroutinePayload) WalkRefs(visit func(heap.Ref)) {
	for _, a := range p.Args {
		if a.Type == TypeRef {
			visit(a.Ref())
		}
	}
	for _, v := range p.Kwargs {
		if v.Type == TypeRef {
			visit(v.Ref())
		}
	}
}

// GatherPayload is the value produced by `asyncio.gather(c1, ..., cN)` —
// every child must be an unstarted coroutine; awaiting the gather result is
// what actually spawns the N child tasks (spec §4.G "gather").
type GatherPayload struct {
	Children []Value // each a Ref to a CoroutinePayload
}

func NewGather(children []Value) *GatherPayload {
	return &GatherPayload{Children: children}
}

func (p *GatherPayload) ContainsRefs() bool { return len(p.Children) > 0 }

func (p *GatherPayload) WalkRefs(visit func(heap.Ref)) {
	for _, c := range p.Children {
		if c.Type == TypeRef {
			visit(c.Ref())
		}
	}
}
