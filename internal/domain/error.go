package domain

import (
	"errors"
	"fmt"
)

var (
	// Caller faults, never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("operation not allowed in current job state")

	// The job (or its handle) no longer exists in the native store.
	ErrNotFound = errors.New("job not found")

	// The acting identity lacks rights. Distinct from transport failure so
	// callers can elevate instead of retrying.
	ErrPermissionDenied = errors.New("permission denied")

	// Transient infrastructure failures, safe to retry later.
	ErrServiceUnavailable = errors.New("transfer service unavailable")
	ErrAgentUnreachable   = errors.New("agent unreachable")

	// A malformed wire message. Fatal to the connection, never to the job.
	ErrProtocolError = errors.New("protocol error")
)

// OpError annotates a sentinel with the operation, job and native code that
// produced it. Unwrap keeps errors.Is(err, domain.ErrX) working through it.
type OpError struct {
	Op         string
	JobID      string
	Kind       error
	NativeCode int32
	Msg        string
}

func (e *OpError) Error() string {
	s := e.Op
	if e.JobID != "" {
		s += " " + e.JobID
	}
	s += ": " + e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.NativeCode != 0 {
		s += fmt.Sprintf(" (native code %d)", e.NativeCode)
	}
	return s
}

func (e *OpError) Unwrap() error { return e.Kind }

// Errf builds an OpError with a formatted message.
func Errf(op, jobID string, kind error, format string, args ...any) error {
	return &OpError{Op: op, JobID: jobID, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
