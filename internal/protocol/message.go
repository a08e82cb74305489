package protocol

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/oklog/ulid/v2"

	"transfer-agent/internal/domain"
	"transfer-agent/internal/domain/model"
)

// Op tags one job-control operation on the wire.
type Op string

const (
	OpCreateJob      Op = "create_job"
	OpAddFile        Op = "add_file"
	OpStart          Op = "start"
	OpSuspend        Op = "suspend"
	OpResume         Op = "resume"
	OpCancel         Op = "cancel"
	OpComplete       Op = "complete"
	OpGetStatus      Op = "get_status"
	OpSetPriority    Op = "set_priority"
	OpSetCredentials Op = "set_credentials"
)

// Request is one job-control call. Fields beyond Corr/Op are populated per
// operation; credentials ride as opaque bytes and are never logged.
type Request struct {
	Corr        string `json:"corr"`
	Op          Op     `json:"op"`
	JobID       string `json:"job_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Direction   string `json:"direction,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Foreground  bool   `json:"foreground,omitempty"`
	Credential  []byte `json:"credential,omitempty"`
}

// WireError is the structured failure half of a Response.
type WireError struct {
	Kind       string `json:"kind"`
	NativeCode int32  `json:"native_code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Response answers exactly one Request, echoing its correlation id.
type Response struct {
	Corr     string             `json:"corr"`
	OK       bool               `json:"ok"`
	JobID    string             `json:"job_id,omitempty"`
	Snapshot *model.JobSnapshot `json:"snapshot,omitempty"`
	Err      *WireError         `json:"err,omitempty"`
}

// NewCorr mints a correlation id. ULIDs sort by time, which makes agent
// logs easy to follow.
func NewCorr() string { return ulid.Make().String() }

const (
	kindInvalidArgument    = "invalid_argument"
	kindInvalidState       = "invalid_state"
	kindNotFound           = "not_found"
	kindPermissionDenied   = "permission_denied"
	kindServiceUnavailable = "service_unavailable"
	kindAgentUnreachable   = "agent_unreachable"
	kindProtocolError      = "protocol_error"
)

var kindSentinels = map[string]error{
	kindInvalidArgument:    domain.ErrInvalidArgument,
	kindInvalidState:       domain.ErrInvalidState,
	kindNotFound:           domain.ErrNotFound,
	kindPermissionDenied:   domain.ErrPermissionDenied,
	kindServiceUnavailable: domain.ErrServiceUnavailable,
	kindAgentUnreachable:   domain.ErrAgentUnreachable,
	kindProtocolError:      domain.ErrProtocolError,
}

// WireErrorFrom flattens a domain error for transport. Errors outside the
// taxonomy travel as service_unavailable so the caller still gets a
// retryable classification instead of a crash.
func WireErrorFrom(err error) *WireError {
	we := &WireError{Kind: kindServiceUnavailable, Message: err.Error()}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			we.Kind = kind
			break
		}
	}
	var opErr *domain.OpError
	if errors.As(err, &opErr) {
		we.NativeCode = opErr.NativeCode
	}
	return we
}

// DomainError rebuilds the typed error on the client side of the wire.
func (we *WireError) DomainError(op Op, jobID string) error {
	sentinel, ok := kindSentinels[we.Kind]
	if !ok {
		sentinel = domain.ErrServiceUnavailable
	}
	return &domain.OpError{
		Op:         string(op),
		JobID:      jobID,
		Kind:       sentinel,
		NativeCode: we.NativeCode,
		Msg:        we.Message,
	}
}

// WriteRequest, ReadRequest, WriteResponse and ReadResponse frame one
// message each. Unmarshal failures are protocol errors: the stream is not
// resynchronized, the connection dies.

func WriteRequest(w io.Writer, req *Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return domain.Errf("write request", req.JobID, domain.ErrProtocolError, "marshal: %v", err)
	}
	return WriteFrame(w, b)
}

func ReadRequest(r io.Reader) (*Request, error) {
	b, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, domain.Errf("read request", "", domain.ErrProtocolError, "unmarshal: %v", err)
	}
	if req.Op == "" {
		return nil, domain.Errf("read request", "", domain.ErrProtocolError, "missing op tag")
	}
	return &req, nil
}

func WriteResponse(w io.Writer, resp *Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return domain.Errf("write response", resp.JobID, domain.ErrProtocolError, "marshal: %v", err)
	}
	return WriteFrame(w, b)
}

func ReadResponse(r io.Reader) (*Response, error) {
	b, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, domain.Errf("read response", "", domain.ErrProtocolError, "unmarshal: %v", err)
	}
	return &resp, nil
}
