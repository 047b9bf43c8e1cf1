package tracker

import "github.com/scinapse-labs/monty/values"

// NoLimit always admits, never interrupts, never votes to collect — the
// tracker a host uses when it trusts the script or is running the test
// suite (spec §4.E "NoLimit — always admits; never forces GC; cheap").
type NoLimit struct{}

func (NoLimit) AdmitAllocation(approxBytes int) error { return nil }
func (NoLimit) CheckDeadline() *values.ExceptionPayload { return nil }
func (NoLimit) ShouldGC(liveSlots int) bool { return false }
