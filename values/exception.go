package values

import "github.com/scinapse-labs/monty/heap"

// ExcKind is the closed set of built-in exception types Monty raises
// natively (spec §5 error handling design; supplemented with the handful
// original_source/ raises that the distilled spec didn't enumerate —
// FrozenInstanceError, StopIteration, ImportError, NotImplementedError).
type ExcKind uint8

const (
	ExcException ExcKind = iota
	ExcValueError
	ExcTypeError
	ExcKeyError
	ExcIndexError
	ExcAttributeError
	ExcNameError
	ExcUnboundLocalError
	ExcZeroDivisionError
	ExcRuntimeError
	ExcStopIteration
	ExcStopAsyncIteration
	ExcAssertionError
	ExcImportError
	ExcNotImplementedError
	ExcFrozenInstanceError
	ExcOverflowError
	ExcRecursionError
	ExcKeyboardInterrupt
	ExcMemoryError
	ExcTimeoutError
)

func (k ExcKind) String() string {
	switch k {
	case ExcException:
		return "Exception"
	case ExcValueError:
		return "ValueError"
	case ExcTypeError:
		return "TypeError"
	case ExcKeyError:
		return "KeyError"
	case ExcIndexError:
		return "IndexError"
	case ExcAttributeError:
		return "AttributeError"
	case ExcNameError:
		return "NameError"
	case ExcUnboundLocalError:
		return "UnboundLocalError"
	case ExcZeroDivisionError:
		return "ZeroDivisionError"
	case ExcRuntimeError:
		return "RuntimeError"
	case ExcStopIteration:
		return "StopIteration"
	case ExcStopAsyncIteration:
		return "StopAsyncIteration"
	case ExcAssertionError:
		return "AssertionError"
	case ExcImportError:
		return "ImportError"
	case ExcNotImplementedError:
		return "NotImplementedError"
	case ExcFrozenInstanceError:
		return "FrozenInstanceError"
	case ExcOverflowError:
		return "OverflowError"
	case ExcRecursionError:
		return "RecursionError"
	case ExcKeyboardInterrupt:
		return "KeyboardInterrupt"
	case ExcMemoryError:
		return "MemoryError"
	case ExcTimeoutError:
		return "TimeoutError"
	default:
		return "Exception"
	}
}

// ExceptionFrame is one entry of a captured traceback — just enough to
// reconstruct a Python-shaped traceback line, not a full frame snapshot.
type ExceptionFrame struct {
	FunctionName string
	Line         int
}

// ExceptionPayload is the heap payload for a raised exception instance. Args
// holds the constructor arguments (e.g. KeyError's missing key, or a plain
// message string) so `str(exc)` and repr can reproduce CPython's formatting.
type ExceptionPayload struct {
	Kind      ExcKind
	Args      []Value
	Traceback []ExceptionFrame
	Cause     Value // explicit `raise ... from cause`; None if absent
}

func NewException(kind ExcKind, args []Value) *ExceptionPayload {
	return &ExceptionPayload{Kind: kind, Args: args, Cause: None()}
}

func (p *ExceptionPayload) ContainsRefs() bool {
	for _, a := range p.Args {
		if a.Type == TypeRef {
			return true
		}
	}
	return p.Cause.Type == TypeRef
}

func (p *ExceptionPayload) WalkRefs(visit func(heap.Ref)) {
	for _, a := range p.Args {
		if a.Type == TypeRef {
			visit(a.Ref())
		}
	}
	if p.Cause.Type == TypeRef {
		visit(p.Cause.Ref())
	}
}

// Error implements the standard error interface so *ExceptionPayload can be
// returned through Go error-typed signatures (e.g. sort key callbacks);
// resolving the full message needs Env/heap access, so this reports the
// exception kind only.
func (p *ExceptionPayload) Error() string { return p.Kind.String() }

func (p *ExceptionPayload) PushFrame(fn string, line int) {
	p.Traceback = append(p.Traceback, ExceptionFrame{FunctionName: fn, Line: line})
}
