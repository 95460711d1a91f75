package relay

import (
	"context"
	"sync/atomic"
)

// State is the lifecycle state of a transcoder handle.
type State int32

// Handle states. A handle only ever moves forward:
// Starting -> Running -> Draining|Failed -> Terminated.
const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateFailed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

func (s State) rank() int {
	switch s {
	case StateStarting:
		return 0
	case StateRunning:
		return 1
	case StateDraining, StateFailed:
		return 2
	default:
		return 3
	}
}

// ExitKind classifies how a handle's output ended.
type ExitKind int

const (
	// ExitExhausted means the source was fully consumed (exit status 0).
	ExitExhausted ExitKind = iota
	// ExitAbnormal means a nonzero exit, crash or read error.
	ExitAbnormal
	// ExitTerminated means the handle was terminated before it finished.
	ExitTerminated
)

func (k ExitKind) String() string {
	switch k {
	case ExitExhausted:
		return "exhausted"
	case ExitAbnormal:
		return "abnormal"
	default:
		return "terminated"
	}
}

// ExitState is the queryable outcome of a finished handle.
type ExitState struct {
	Kind ExitKind
	Code int
	// Err is an *ExitError for ExitAbnormal and ExitTerminated.
	Err error
}

// Engine launches transcoder handles.
type Engine interface {
	Name() string
	// Start launches a handle producing format-conformant bytes for src.
	// Errors wrap ErrSpawn.
	Start(ctx context.Context, src SourceDescriptor, format TargetFormat) (Handle, error)
}

// Handle is one live transcoder instance, owned by exactly one relay loop.
type Handle interface {
	// PID returns the OS process id, or 0 for in-process engines.
	PID() int
	// Read reads output bytes. io.EOF marks end of output; Exit then tells
	// exhaustion apart from abnormal termination.
	Read(p []byte) (int, error)
	State() State
	// Exit blocks until the handle has finished and returns how it ended.
	Exit(ctx context.Context) (ExitState, error)
	// Terminate interrupts the handle, force-kills it after the grace
	// period, reaps it and closes its pipes. Safe to call repeatedly and
	// concurrently; every caller returns once teardown is complete.
	Terminate() error
}

// lifecycle is a forward-only State holder.
type lifecycle struct {
	v atomic.Int32
}

func (l *lifecycle) get() State {
	return State(l.v.Load())
}

// advance moves to next if it is later in the lifecycle than the current
// state. It reports whether the transition happened.
func (l *lifecycle) advance(next State) bool {
	for {
		cur := State(l.v.Load())
		if next.rank() <= cur.rank() {
			return false
		}
		if l.v.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}
