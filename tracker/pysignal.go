package tracker

import (
	"sync/atomic"

	"github.com/scinapse-labs/monty/values"
)

// Tracker is the structural shape NoLimit, *Limited, and *PySignal all
// share — the same three methods vm.ResourceTracker expects, kept local so
// this package can compose trackers without importing vm.
type Tracker interface {
	AdmitAllocation(approxBytes int) error
	CheckDeadline() *values.ExceptionPayload
	ShouldGC(liveSlots int) bool
}

// PySignal wraps any Tracker with an interrupt flag a host can set from a
// signal handler (or any other goroutine) to force KeyboardInterrupt at the
// VM's next deadline check (spec §4.E "A PySignal variant wraps any tracker
// with an interrupt flag the host may set from a signal handler"). Allocation
// admission and the GC vote pass straight through to Inner.
type PySignal struct {
	Inner       Tracker
	interrupted atomic.Bool
}

// WrapPySignal builds a PySignal around inner. Passing tracker.NoLimit{}
// gives an otherwise-unlimited session an interrupt switch.
func WrapPySignal(inner Tracker) *PySignal {
	return &PySignal{Inner: inner}
}

func (p *PySignal) AdmitAllocation(approxBytes int) error {
	return p.Inner.AdmitAllocation(approxBytes)
}

func (p *PySignal) CheckDeadline() *values.ExceptionPayload {
	if p.interrupted.Load() {
		return values.NewException(values.ExcKeyboardInterrupt, nil)
	}
	return p.Inner.CheckDeadline()
}

func (p *PySignal) ShouldGC(liveSlots int) bool { return p.Inner.ShouldGC(liveSlots) }

// Interrupt raises the flag CheckDeadline consults. Safe to call from any
// goroutine, including an actual OS signal handler — this is the entire
// reason PySignal exists as a separate wrapper instead of a field on
// Limited (spec cancellation note: "delivered as an exception at the next
// check; there is no out-of-band kill").
func (p *PySignal) Interrupt() { p.interrupted.Store(true) }

// Interrupted reports whether Interrupt has been called, mainly for tests
// and host-side diagnostics.
func (p *PySignal) Interrupted() bool { return p.interrupted.Load() }

// LastResourceError reports ErrInterrupt once Interrupt has fired, whether
// or not the VM has checked the flag yet, falling back to Inner's own last resource
// error (e.g. an allocation or time limit) otherwise. Only *Limited tracks
// one; NoLimit never trips, so this type-asserts rather than widening the
// Tracker interface for one optional method.
func (p *PySignal) LastResourceError() *ResourceError {
	if p.interrupted.Load() {
		return &ResourceError{Kind: ErrInterrupt}
	}
	if lim, ok := p.Inner.(*Limited); ok {
		return lim.LastResourceError()
	}
	return nil
}
