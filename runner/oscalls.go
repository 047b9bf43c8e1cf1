package runner

import (
	"crypto/rand"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/vm"
)

// ExecuteOsCall performs a suspended OS call against the real host operating
// system and returns the ExternalResult a host would otherwise have had to
// compute by hand (spec §6 "OS call enumeration" — answering these yourself
// is always an option; this is the convenience path that actually touches
// the OS, grounded on the domain dependencies golang.org/x/sys plus the
// standard crypto/rand/time packages). It needs heap/interns access to box
// string/bytes results, so it hangs off State rather than standing alone.
// Only meaningful for susp.Kind == vm.SuspendOsCall; any other kind answers
// NotImplementedError.
func (s *State) ExecuteOsCall(susp *vm.Suspension) vm.ExternalResult {
	if susp.Kind != vm.SuspendOsCall {
		return vm.Error(values.NewException(values.ExcNotImplementedError, nil))
	}
	switch susp.OsKind {
	case vm.OsTimeNow:
		return s.execTimeNow()
	case vm.OsRandomBytes:
		return s.execRandomBytes(susp.Args)
	case vm.OsEnvGet:
		return s.execEnvGet(susp.Args)
	default:
		// Open/Read/Write/Close carry no safe sandboxed default — the spec's
		// resource limits say nothing about filesystem scope, so Monty never
		// touches a real file on the host's behalf without the embedding
		// application answering the call itself (spec §6 "Unknown OS calls
		// fail with NotImplementedError" extended to "declined" calls too).
		return vm.Error(values.NewException(values.ExcNotImplementedError, nil))
	}
}

// execTimeNow reads the host wall clock via golang.org/x/sys/unix's
// clock_gettime when available (a cheaper, vDSO-backed path on Linux than
// going through the runtime's own time.Now() wrapper), falling back to the
// standard library elsewhere.
func (s *State) execTimeNow() vm.ExternalResult {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err == nil {
		return vm.Return(values.Float(float64(ts.Sec) + float64(ts.Nsec)/1e9))
	}
	return vm.Return(values.Float(float64(time.Now().UnixNano()) / 1e9))
}

func (s *State) execRandomBytes(args []values.Value) vm.ExternalResult {
	n := 0
	if len(args) > 0 && args[0].Type == values.TypeInt {
		n = int(args[0].Data.(int64))
	}
	if n < 0 {
		return vm.Error(values.NewException(values.ExcValueError, nil))
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return vm.Error(values.NewException(values.ExcRuntimeError, nil))
	}
	ref, err := s.vm.Heap.Allocate(values.NewBytes(buf), s.vm.Admission)
	if err != nil {
		return vm.Error(values.NewException(values.ExcMemoryError, nil))
	}
	return vm.Return(values.RefV(ref))
}

func (s *State) execEnvGet(args []values.Value) vm.ExternalResult {
	var name string
	if len(args) > 0 {
		name, _ = stringOperand(s, args[0])
	}
	val, ok := os.LookupEnv(name)
	if !ok {
		return vm.Return(values.None())
	}
	id, interned := s.vm.Interns.InternOrAllocateString(val)
	if interned {
		return vm.Return(values.InternStr(id))
	}
	ref, err := s.vm.Heap.Allocate(values.NewStr(val), s.vm.Admission)
	if err != nil {
		return vm.Error(values.NewException(values.ExcMemoryError, nil))
	}
	return vm.Return(values.RefV(ref))
}

// stringOperand reads an interned or heap str Value's content; OS-call
// argument values are already fully evaluated Python values by the time
// they reach here (they crossed the suspend boundary as part of
// vm.Suspension.Args).
func stringOperand(s *State, v values.Value) (string, bool) {
	switch v.Type {
	case values.TypeInternString:
		return s.vm.Interns.String(v.Data.(interns.StringID)), true
	case values.TypeRef:
		if p, ok := s.vm.Heap.Get(v.Ref()).(*values.StrPayload); ok {
			return p.Value(), true
		}
	}
	return "", false
}
