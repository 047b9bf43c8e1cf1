package vm

import "github.com/scinapse-labs/monty/values"

// ExternalResultKind is the closed tag of what the host may send back across
// a suspension boundary (spec §3.6 "ExternalResult").
type ExternalResultKind byte

const (
	ExtReturn ExternalResultKind = iota
	ExtError
	// ExtFuture is the await-later sentinel: valid only as an answer to a
	// FunctionCall/OsCall the host cannot satisfy synchronously. The runner
	// converts it into a scheduler waiter rather than resuming the VM with
	// it directly.
	ExtFuture
)

// ExternalResult is the tagged value a host supplies on resume: a return
// value, a raised exception, or "not ready yet".
type ExternalResult struct {
	Kind  ExternalResultKind
	Value values.Value
	Err   *values.ExceptionPayload
}

func Return(v values.Value) ExternalResult { return ExternalResult{Kind: ExtReturn, Value: v} }
func Error(e *values.ExceptionPayload) ExternalResult {
	return ExternalResult{Kind: ExtError, Err: e}
}
func Future() ExternalResult { return ExternalResult{Kind: ExtFuture} }
