package runner

import "github.com/scinapse-labs/monty/values"

// ProgressKind is the RunProgress tagged union's discriminant (spec §4.H).
type ProgressKind byte

const (
	// ProgressComplete means the program (or REPL snippet) ran to
	// completion, successfully or with an escaped exception.
	ProgressComplete ProgressKind = iota
	// ProgressFunctionCall/ProgressOsCall report a single suspended call
	// directly, without the futures machinery, exactly when the scheduler
	// has one task and one pending call belonging to it (see buildProgress).
	ProgressFunctionCall
	ProgressOsCall
	// ProgressResolveFutures reports every currently resolvable call id at
	// once — the general case once more than one task/call is in flight.
	ProgressResolveFutures
)

// PendingCall mirrors one of vm.Suspension's host-visible fields: enough for
// the host to actually perform the call and answer with a CallResult.
type PendingCall struct {
	CallID     uint32
	Name       string
	Args       []values.Value
	Kwargs     map[string]values.Value
	MethodCall bool
	Receiver   values.Value
}

// PendingOsCall is PendingCall's OS-call counterpart, carrying the OsKind tag
// runner.ExecuteOsCall needs.
type PendingOsCall struct {
	PendingCall
	OsKind OsKindLabel
}

// OsKindLabel is a display-friendly copy of vm.OsKind so this package's
// public API doesn't force every host to import vm just to branch on it.
type OsKindLabel string

// RunProgress is what State.Run/State.Resolve/State.RunPending returns after
// draining the scheduler as far as it can go without further host input
// (spec §4.H "RunProgress").
type RunProgress struct {
	Kind ProgressKind

	// Result/Err are populated when Kind == ProgressComplete: the top-level
	// program's return value (conventionally None for a module body) or the
	// exception that escaped every handler.
	Result values.Value
	Err    *values.ExceptionPayload

	// Call/OsCall are populated for the two direct single-call variants.
	Call   *PendingCall
	OsCall *PendingOsCall

	// Pending lists every call id the host could resolve right now, for
	// Kind == ProgressResolveFutures (and, redundantly but harmlessly, for
	// the direct variants too — always exactly the one id in that case).
	Pending []PendingCall
}
