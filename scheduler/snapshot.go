package scheduler

import "github.com/scinapse-labs/monty/vm"

// ReadyEntry is an exported view of one ready-queue slot, used by the
// runner package to dump and restore a scheduler's state (spec §6 "a dump
// captures... scheduler state"). readyItem stays private to the rest of
// this package; this is the one shape crossing the package boundary.
type ReadyEntry struct {
	TaskID    uint32
	HasResult bool
	Result    vm.ExternalResult
}

// Tasks exposes the task table directly; the runner package walks it to
// discover every call stack (live or parked) and the GatherNode pointers
// tasks share, neither of which it could otherwise reach from outside this
// package.
func (s *Scheduler) Tasks() map[uint32]*Task { return s.tasks }

// ReadyQueue reports the current ready queue in order.
func (s *Scheduler) ReadyQueue() []ReadyEntry {
	out := make([]ReadyEntry, len(s.ready))
	for i, it := range s.ready {
		out[i] = ReadyEntry{TaskID: it.TaskID}
		if it.Result != nil {
			out[i].HasResult = true
			out[i].Result = *it.Result
		}
	}
	return out
}

// Waiters reports every external call id currently awaited, mapped to the
// task parked on it.
func (s *Scheduler) Waiters() map[uint32]uint32 {
	out := make(map[uint32]uint32, len(s.waiters))
	for callID, w := range s.waiters {
		out[callID] = w.TaskID
	}
	return out
}

// NextTaskID reports the id the next spawned task will receive.
func (s *Scheduler) NextTaskID() uint32 { return s.nextTaskID }

// Restore rebuilds a Scheduler from previously-dumped task/ready/waiter
// state, bypassing New's task-0 bootstrap since every task — including 0 —
// is already fully formed by the caller (the runner package's snapshot
// load path).
func Restore(tasks map[uint32]*Task, ready []ReadyEntry, waiters map[uint32]uint32, nextTaskID uint32) *Scheduler {
	s := &Scheduler{
		tasks:      tasks,
		waiters:    make(map[uint32]waiterEntry, len(waiters)),
		nextTaskID: nextTaskID,
	}
	for callID, taskID := range waiters {
		s.waiters[callID] = waiterEntry{TaskID: taskID}
	}
	for _, r := range ready {
		item := readyItem{TaskID: r.TaskID}
		if r.HasResult {
			res := r.Result
			item.Result = &res
		}
		s.ready = append(s.ready, item)
	}
	return s
}
