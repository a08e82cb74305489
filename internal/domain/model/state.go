package model

import "transfer-agent/internal/native"

// JobState is the public job state machine:
//
//	Queued -> Connecting -> Transferring <-> TransientError
//	Transferring -> Transferred -> Acknowledged
//	Suspended reachable from Connecting/Transferring, resume -> Connecting
//	Error reachable from any non-terminal state
//	Cancelled reachable from any non-terminal state
//
// Acknowledged and Cancelled are terminal; the job is removed from the
// native store and further operations fail with NotFound.
type JobState string

const (
	StateQueued         JobState = "queued"
	StateConnecting     JobState = "connecting"
	StateTransferring   JobState = "transferring"
	StateSuspended      JobState = "suspended"
	StateError          JobState = "error"
	StateTransientError JobState = "transient_error"
	StateTransferred    JobState = "transferred"
	StateAcknowledged   JobState = "acknowledged"
	StateCancelled      JobState = "cancelled"

	// StateUnknown is the fallback for native codes this build does not
	// know about. Unknown codes must never crash the client.
	StateUnknown JobState = "unknown"
)

var nativeStates = map[native.StatusCode]JobState{
	native.StatusQueued:         StateQueued,
	native.StatusConnecting:     StateConnecting,
	native.StatusTransferring:   StateTransferring,
	native.StatusSuspended:      StateSuspended,
	native.StatusError:          StateError,
	native.StatusTransientError: StateTransientError,
	native.StatusTransferred:    StateTransferred,
	native.StatusAcknowledged:   StateAcknowledged,
	native.StatusCancelled:      StateCancelled,
}

// StateFromNative maps a native status code to the public state, degrading
// undocumented codes to StateUnknown.
func StateFromNative(code native.StatusCode) JobState {
	if s, ok := nativeStates[code]; ok {
		return s
	}
	return StateUnknown
}

// Terminal reports whether no further transition can occur. Error is
// terminal for monitoring purposes: it persists until an explicit cancel.
func (s JobState) Terminal() bool {
	switch s {
	case StateAcknowledged, StateCancelled, StateError:
		return true
	}
	return false
}

// InProgress reports whether the monitor should keep polling without
// surfacing anything special. TransientError is in progress: the native
// service retries it on its own.
func (s JobState) InProgress() bool {
	switch s {
	case StateQueued, StateConnecting, StateTransferring, StateTransientError, StateSuspended:
		return true
	}
	return false
}

// CanStart, CanSuspend, CanResume and CanComplete encode the operation
// transition table. Cancel is allowed from any non-terminal state and has
// no predicate of its own.
func (s JobState) CanStart() bool { return s == StateQueued }

func (s JobState) CanSuspend() bool {
	return s == StateConnecting || s == StateTransferring
}

func (s JobState) CanResume() bool { return s == StateSuspended }

func (s JobState) CanComplete() bool { return s == StateTransferred }

// CanAddFile: files may only be added while the job is still queued.
func (s JobState) CanAddFile() bool { return s == StateQueued }
