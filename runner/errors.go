// Package runner implements the host-facing embedding surface (component H):
// the protocol a host process drives to start a program, answer suspended
// external/OS calls, resolve async futures incrementally, and dump/restore a
// session across process boundaries (spec §4.H, §6).
package runner

import (
	"fmt"

	"github.com/pkg/errors"
)

// ProtocolError is a host-usage mistake distinct from a user-visible Python
// exception (values.ExceptionPayload travels separately, as program data —
// this is the runner's own API misuse surface, e.g. resolving a call id that
// was never issued). Grounded on the teacher's use of github.com/pkg/errors
// for host-facing Go error wrapping wherever a caller benefits from a stack
// trace attached at the point of failure, rather than only at the point of
// formatting.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return e.msg }

func newProtocolError(format string, args ...interface{}) error {
	return errors.WithStack(&ProtocolError{msg: fmt.Sprintf(format, args...)})
}

// errUnknownCallID reports a call id the scheduler never issued (spec §4.G
// "Unknown-id rejection" — distinct from an id that was issued but has
// already been consumed, which Resolve silently ignores instead).
func errUnknownCallID(id uint32) error {
	return newProtocolError("runner: unknown call id %d", id)
}

// ErrSessionBusy is returned by State methods when a concurrent call is
// already in flight on the same session (spec §5 "single-threaded and
// cooperative" — a session must never be driven by two goroutines at once).
var ErrSessionBusy = newProtocolError("runner: session is busy")
