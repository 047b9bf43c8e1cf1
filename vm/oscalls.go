package vm

// OsKind is the closed enumeration of host-delegated syscalls (spec §6 "OS
// call enumeration"). Each variant specifies its own argument/return shape,
// documented alongside the runner package that actually executes them —
// this package only needs the tag to attach to a Suspension.
type OsKind byte

const (
	OsUnknown OsKind = iota
	OsOpen
	OsRead
	OsWrite
	OsClose
	OsEnvGet
	OsTimeNow
	OsRandomBytes
)

var osKindNames = map[string]OsKind{
	"open":         OsOpen,
	"read":         OsRead,
	"write":        OsWrite,
	"close":        OsClose,
	"environ_get":  OsEnvGet,
	"time_now":     OsTimeNow,
	"random_bytes": OsRandomBytes,
}

// LookupOsKind maps an OS-call method name (as dispatched by py_getattr's
// AttrOsCall marker) to its closed-enum tag. An unrecognized name yields
// OsUnknown; the runner rejects it with NotImplementedError at call time
// rather than here, since only the runner knows what it actually supports
// (spec §6 "Unknown OS calls fail with NotImplementedError").
func LookupOsKind(name string) OsKind {
	if k, ok := osKindNames[name]; ok {
		return k
	}
	return OsUnknown
}

func (k OsKind) String() string {
	switch k {
	case OsOpen:
		return "open"
	case OsRead:
		return "read"
	case OsWrite:
		return "write"
	case OsClose:
		return "close"
	case OsEnvGet:
		return "environ_get"
	case OsTimeNow:
		return "time_now"
	case OsRandomBytes:
		return "random_bytes"
	default:
		return "unknown"
	}
}
