package runner

import (
	"github.com/scinapse-labs/monty/scheduler"
	"github.com/scinapse-labs/monty/vm"
)

// buildProgress assembles the RunProgress the host sees after a drain. A
// lone pending call belonging to task 0 is reported directly as a
// FunctionCall/OsCall record so the common single-task, single-call case
// never forces the host through the futures protocol; every other shape
// (more than one task ever spawned, or more than one call pending) reports
// ResolveFutures instead (DESIGN.md's resolution of this ambiguity, spec
// §4.H/§6).
func (s *State) buildProgress() *RunProgress {
	root, _ := s.sch.Task(0)

	if root != nil && (root.Status == scheduler.TaskCompleted || root.Status == scheduler.TaskFailed) {
		if root.Status == scheduler.TaskFailed {
			return &RunProgress{Kind: ProgressComplete, Err: root.Err}
		}
		return &RunProgress{Kind: ProgressComplete, Result: root.Result}
	}

	ids := s.sch.PendingCallIDs()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 1 && s.sch.TaskCount() == 1 {
		if susp, ok := s.pending[ids[0]]; ok && susp.Kind != vm.SuspendAwait {
			call := suspensionToCall(susp)
			switch susp.Kind {
			case vm.SuspendOsCall:
				return &RunProgress{
					Kind:   ProgressOsCall,
					OsCall: &PendingOsCall{PendingCall: call, OsKind: OsKindLabel(susp.OsKind.String())},
					Pending: []PendingCall{call},
				}
			default:
				return &RunProgress{Kind: ProgressFunctionCall, Call: &call, Pending: []PendingCall{call}}
			}
		}
	}

	pending := make([]PendingCall, 0, len(ids))
	for _, id := range ids {
		if susp, ok := s.pending[id]; ok {
			pending = append(pending, suspensionToCall(susp))
		}
	}
	return &RunProgress{Kind: ProgressResolveFutures, Pending: pending}
}

func suspensionToCall(susp *vm.Suspension) PendingCall {
	return PendingCall{
		CallID:     susp.CallID,
		Name:       susp.Name,
		Args:       susp.Args,
		Kwargs:     susp.Kwargs,
		MethodCall: susp.MethodCall,
		Receiver:   susp.Receiver,
	}
}
