// Package native defines the contract of the host transfer service: an
// opaque, durable job store addressed by job id. Everything above this
// package treats it as the single source of truth for job state; nothing
// here implements transfer mechanics.
package native

import "context"

// StatusCode is the raw job state reported by the transfer service.
// Values outside the documented range must be tolerated by callers.
type StatusCode int32

const (
	StatusQueued StatusCode = iota
	StatusConnecting
	StatusTransferring
	StatusSuspended
	StatusError
	StatusTransientError
	StatusTransferred
	StatusAcknowledged
	StatusCancelled
)

// File is one entry of a job's file list. Byte counts are snapshots taken
// at status-query time, not live counters.
type File struct {
	Source           string `json:"source"`
	Destination      string `json:"destination"`
	BytesTransferred int64  `json:"bytes_transferred"`
	// BytesTotal is SizeUnknown until the remote side reports a length.
	BytesTotal int64 `json:"bytes_total"`
}

// SizeUnknown marks a file whose total length has not been determined yet.
const SizeUnknown int64 = -1

// JobError carries the service's error report for a job that entered an
// error state. Code is the service's own numeric code, passed through.
type JobError struct {
	Code    int32  `json:"code"`
	Context string `json:"context"`
	Message string `json:"message"`
}

// JobStatus is the full status report for one job.
type JobStatus struct {
	Code             StatusCode `json:"code"`
	DisplayName      string     `json:"display_name"`
	Download         bool       `json:"download"`
	Files            []File     `json:"files"`
	BytesTransferred int64      `json:"bytes_transferred"`
	BytesTotal       int64      `json:"bytes_total"`
	FilesTransferred int        `json:"files_transferred"`
	FilesTotal       int        `json:"files_total"`
	ErrorCount       int        `json:"error_count"`
	Err              *JobError  `json:"err,omitempty"`
}

// Service is the operation set of the native transfer service. All calls
// are synchronous: a nil error means the operation is durably applied.
//
// Implementations map their own failures onto the domain error sentinels
// (domain.ErrNotFound, domain.ErrInvalidState, ...) so backends can pass
// them through unchanged.
type Service interface {
	CreateJob(ctx context.Context, displayName string, download bool) (id string, err error)
	AddFile(ctx context.Context, id, source, destination string) error
	Start(ctx context.Context, id string) error
	Suspend(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) error
	SetPriority(ctx context.Context, id string, foreground bool) error
	SetCredentials(ctx context.Context, id string, credential []byte) error
	GetStatus(ctx context.Context, id string) (JobStatus, error)
}
