package tracker

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Diagnostics is an opt-in counter set a host can attach to a session to
// get human-readable usage/limits reporting (spec's ambient logging
// pattern, adapted from the teacher's structured-logging step counters).
// Nothing in the VM requires this; it is purely observational bookkeeping.
// Neither the VM nor the runner updates it: the counters change only through
// RecordGC or direct writes by the host.
type Diagnostics struct {
	Steps       uint64
	GCPasses    uint64
	GCReclaimed uint64
	GCPauses    []time.Duration
}

// RecordGC appends one collection pass's outcome.
func (d *Diagnostics) RecordGC(reclaimed int, pause time.Duration) {
	d.GCPasses++
	d.GCReclaimed += uint64(reclaimed)
	d.GCPauses = append(d.GCPauses, pause)
}

// Summary renders a one-line human-readable report: step count, GC pass
// count and total slots reclaimed, and current limit usage against cfg
// (empty string for a limit that wasn't set).
func (d *Diagnostics) Summary(cfg Config, allocations, memoryBytes uint64) string {
	line := fmt.Sprintf("%s steps, %s GC passes (%s slots reclaimed)",
		humanize.Comma(int64(d.Steps)), humanize.Comma(int64(d.GCPasses)), humanize.Comma(int64(d.GCReclaimed)))

	if cfg.MaxAllocations > 0 {
		line += fmt.Sprintf(", allocations %s/%s",
			humanize.Comma(int64(allocations)), humanize.Comma(int64(cfg.MaxAllocations)))
	}
	if cfg.MaxMemoryBytes > 0 {
		line += fmt.Sprintf(", memory %s/%s",
			humanize.Bytes(memoryBytes), humanize.Bytes(cfg.MaxMemoryBytes))
	}
	return line
}

// MeanGCPause reports the average GC pause duration in human-readable form,
// or "n/a" if no pass has run yet.
func (d *Diagnostics) MeanGCPause() string {
	if len(d.GCPauses) == 0 {
		return "n/a"
	}
	var total time.Duration
	for _, p := range d.GCPauses {
		total += p
	}
	return (total / time.Duration(len(d.GCPauses))).String()
}
