package model

import (
	"github.com/google/uuid"

	"transfer-agent/internal/domain"
	"transfer-agent/internal/native"
)

// Direction of a transfer job. Immutable after creation.
type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

func (d Direction) Valid() bool { return d == Download || d == Upload }

// JobID is the native store's identifier for a job. Assigned at creation,
// never reused, stable for the job's lifetime.
type JobID string

// ParseJobID rejects anything that is not a well-formed job identifier.
// The native store hands out UUIDs; a malformed id can never match a job,
// so it is an argument error rather than a lookup miss.
func ParseJobID(s string) (JobID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", domain.Errf("parse job id", s, domain.ErrInvalidArgument, "malformed job id")
	}
	return JobID(s), nil
}

func (id JobID) String() string { return string(id) }

// FileEntry is one file of a job. Byte counts are refreshed only by an
// explicit status query.
type FileEntry struct {
	Source           string `json:"source"`
	Destination      string `json:"destination"`
	BytesTransferred int64  `json:"bytes_transferred"`
	BytesTotal       int64  `json:"bytes_total"` // native.SizeUnknown until known
}

// ErrorInfo is the public rendering of a job's error report. Present on a
// snapshot if and only if the job is in an error state.
type ErrorInfo struct {
	Code    int32  `json:"code"`
	Context string `json:"context"`
	Message string `json:"message"`
}

// TransportContext marks an ErrorInfo synthesized by the monitor when the
// channel to the agent failed, as opposed to an error owned by the job.
const TransportContext = "transport"

// Credential is opaque authentication material for the transfer itself.
// Every layer passes it through unmodified; it is never logged or persisted.
type Credential []byte

// String keeps credentials out of logs and %v formatting.
func (Credential) String() string { return "***" }

// JobSnapshot is a point-in-time observation of one job.
type JobSnapshot struct {
	JobID            JobID       `json:"job_id"`
	DisplayName      string      `json:"display_name"`
	Direction        Direction   `json:"direction"`
	State            JobState    `json:"state"`
	Files            []FileEntry `json:"files"`
	BytesTransferred int64       `json:"bytes_transferred"`
	BytesTotal       int64       `json:"bytes_total"`
	FilesTransferred int         `json:"files_transferred"`
	FilesTotal       int         `json:"files_total"`
	ErrorCount       int         `json:"error_count"`
	Err              *ErrorInfo  `json:"err,omitempty"`
}

// SnapshotFromNative translates a native status report into the public
// snapshot type. Unknown native codes degrade to StateUnknown.
func SnapshotFromNative(id JobID, st native.JobStatus) JobSnapshot {
	dir := Upload
	if st.Download {
		dir = Download
	}
	files := make([]FileEntry, 0, len(st.Files))
	for _, f := range st.Files {
		files = append(files, FileEntry{
			Source:           f.Source,
			Destination:      f.Destination,
			BytesTransferred: f.BytesTransferred,
			BytesTotal:       f.BytesTotal,
		})
	}
	var ei *ErrorInfo
	if st.Err != nil {
		ei = &ErrorInfo{Code: st.Err.Code, Context: st.Err.Context, Message: st.Err.Message}
	}
	return JobSnapshot{
		JobID:            id,
		DisplayName:      st.DisplayName,
		Direction:        dir,
		State:            StateFromNative(st.Code),
		Files:            files,
		BytesTransferred: st.BytesTransferred,
		BytesTotal:       st.BytesTotal,
		FilesTransferred: st.FilesTransferred,
		FilesTotal:       st.FilesTotal,
		ErrorCount:       st.ErrorCount,
		Err:              ei,
	}
}
