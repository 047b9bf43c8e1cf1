package tracker

import (
	"sync"
	"time"

	"github.com/scinapse-labs/monty/values"
)

// ResourceErrorKind names which limit tripped (spec §7
// "Resource errors: allocation-limit, memory-limit, time-limit,
// recursion-limit, interrupt"). User-visible code never sees this directly
// — it only ever sees MemoryError/RecursionError/TimeoutError/
// KeyboardInterrupt — but a host can read it back through
// LastResourceError.
type ResourceErrorKind byte

const (
	ErrAllocationLimit ResourceErrorKind = iota
	ErrMemoryLimit
	ErrTimeLimit
	ErrRecursionLimit
	ErrInterrupt
)

func (k ResourceErrorKind) String() string {
	switch k {
	case ErrAllocationLimit:
		return "allocation-limit"
	case ErrMemoryLimit:
		return "memory-limit"
	case ErrTimeLimit:
		return "time-limit"
	case ErrRecursionLimit:
		return "recursion-limit"
	case ErrInterrupt:
		return "interrupt"
	default:
		return "resource-error"
	}
}

// ResourceError is the plain Go error AdmitAllocation/CheckDeadline return;
// it satisfies heap.Admission's bare `error` return without heap needing to
// know anything about tracker. A host can recover it from a wrapped error
// with errors.As, or read the latest one through LastResourceError.
type ResourceError struct {
	Kind ResourceErrorKind
}

func (e *ResourceError) Error() string { return "resource limit exceeded: " + e.Kind.String() }

// Limited is the configured resource tracker: an allocation counter and a
// rough memory estimate gate every heap allocation, a sampled wall clock
// gates deadline checks, and a watermark/cadence pair decides the GC vote
// (spec §4.E "Limited").
type Limited struct {
	cfg Config

	mu           sync.Mutex
	allocations  uint64
	memoryBytes  uint64
	allocSinceGC uint64
	lastErr      *ResourceError

	deadline    time.Time
	hasDeadline bool
}

// NewLimited builds a Limited tracker from cfg, stamping the wall-clock
// deadline from now if MaxDuration is set.
func NewLimited(cfg Config) *Limited {
	l := &Limited{cfg: cfg.withDefaults()}
	if cfg.MaxDuration > 0 {
		l.deadline = time.Now().Add(cfg.MaxDuration)
		l.hasDeadline = true
	}
	return l
}

func (l *Limited) AdmitAllocation(approxBytes int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.allocations++
	l.allocSinceGC++
	l.memoryBytes += uint64(approxBytes)

	if l.cfg.MaxAllocations > 0 && l.allocations > l.cfg.MaxAllocations {
		l.lastErr = &ResourceError{Kind: ErrAllocationLimit}
		return l.lastErr
	}
	if l.cfg.MaxMemoryBytes > 0 && l.memoryBytes > l.cfg.MaxMemoryBytes {
		l.lastErr = &ResourceError{Kind: ErrMemoryLimit}
		return l.lastErr
	}
	return nil
}

// CheckDeadline reports TimeoutError once the deadline has elapsed, nil
// otherwise. Called by the VM at a bounded interval, never per-instruction
// (spec §4.E "periodically samples the clock"). The interrupt flag itself
// lives on PySignal, which wraps a Limited (or NoLimit) to add it.
func (l *Limited) CheckDeadline() *values.ExceptionPayload {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hasDeadline && time.Now().After(l.deadline) {
		l.lastErr = &ResourceError{Kind: ErrTimeLimit}
		return values.NewException(values.ExcTimeoutError, nil)
	}
	return nil
}

// ShouldGC votes yes once live slots cross the configured watermark, or
// once enough allocations have accumulated since the last pass regardless
// of watermark, so a long session with a small working set still collects
// occasionally (spec §4.E "should_gc()... allocations-since-last-gc and
// live-slot watermark").
func (l *Limited) ShouldGC(liveSlots int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if liveSlots < l.cfg.GCWatermark && l.allocSinceGC < l.cfg.GCEveryAllocations {
		return false
	}
	l.allocSinceGC = 0
	return true
}

// LastResourceError reports which limit, if any, most recently tripped —
// a host can consult this when an escaped MemoryError/RecursionError/
// TimeoutError/KeyboardInterrupt needs to be reclassified as a
// ResourceError (spec §7).
func (l *Limited) LastResourceError() *ResourceError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Allocations reports the running allocation count, for example as an
// argument to Diagnostics.Summary.
func (l *Limited) Allocations() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocations
}

// MemoryBytes reports the running memory estimate, for example as an
// argument to Diagnostics.Summary.
func (l *Limited) MemoryBytes() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.memoryBytes
}
