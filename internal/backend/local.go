package backend

import (
	"context"

	"github.com/rs/zerolog"

	"transfer-agent/internal/domain"
	"transfer-agent/internal/domain/model"
	"transfer-agent/internal/native"
)

// Local executes job-control calls directly against the native service as
// the current identity. The agent embeds one to serve remote callers.
type Local struct {
	svc native.Service
	log *zerolog.Logger
}

var _ Backend = (*Local)(nil)

func NewLocal(svc native.Service, log *zerolog.Logger) *Local {
	return &Local{svc: svc, log: log}
}

func (b *Local) CreateJob(ctx context.Context, displayName string, dir model.Direction) (*JobHandle, error) {
	if displayName == "" {
		return nil, domain.Errf("create_job", "", domain.ErrInvalidArgument, "empty display name")
	}
	if !dir.Valid() {
		return nil, domain.Errf("create_job", "", domain.ErrInvalidArgument, "unknown direction %q", dir)
	}
	id, err := b.svc.CreateJob(ctx, displayName, dir == model.Download)
	if err != nil {
		return nil, err
	}
	jobID, err := model.ParseJobID(id)
	if err != nil {
		// The store handed back something that is not a job id; treat it
		// as the service misbehaving, not as caller fault.
		return nil, domain.Errf("create_job", id, domain.ErrServiceUnavailable, "service returned malformed id")
	}
	b.log.Debug().Str("job_id", id).Str("name", displayName).Msg("job created")
	return newHandle(b, jobID), nil
}

func (b *Local) AddFile(ctx context.Context, h *JobHandle, source, destination string) error {
	if err := checkHandle("add_file", b, h); err != nil {
		return err
	}
	if err := validateFile("add_file", h.ID.String(), source, destination); err != nil {
		return err
	}
	return b.svc.AddFile(ctx, h.ID.String(), source, destination)
}

func (b *Local) Start(ctx context.Context, h *JobHandle) error {
	if err := checkHandle("start", b, h); err != nil {
		return err
	}
	return b.svc.Start(ctx, h.ID.String())
}

func (b *Local) Suspend(ctx context.Context, h *JobHandle) error {
	if err := checkHandle("suspend", b, h); err != nil {
		return err
	}
	return b.svc.Suspend(ctx, h.ID.String())
}

func (b *Local) Resume(ctx context.Context, h *JobHandle) error {
	if err := checkHandle("resume", b, h); err != nil {
		return err
	}
	return b.svc.Resume(ctx, h.ID.String())
}

func (b *Local) Cancel(ctx context.Context, h *JobHandle) error {
	if err := checkHandle("cancel", b, h); err != nil {
		return err
	}
	return b.svc.Cancel(ctx, h.ID.String())
}

func (b *Local) Complete(ctx context.Context, h *JobHandle) error {
	if err := checkHandle("complete", b, h); err != nil {
		return err
	}
	return b.svc.Complete(ctx, h.ID.String())
}

func (b *Local) SetPriority(ctx context.Context, h *JobHandle, foreground bool) error {
	if err := checkHandle("set_priority", b, h); err != nil {
		return err
	}
	return b.svc.SetPriority(ctx, h.ID.String(), foreground)
}

func (b *Local) SetCredentials(ctx context.Context, h *JobHandle, cred model.Credential) error {
	if err := checkHandle("set_credentials", b, h); err != nil {
		return err
	}
	if len(cred) == 0 {
		return domain.Errf("set_credentials", h.ID.String(), domain.ErrInvalidArgument, "empty credential")
	}
	return b.svc.SetCredentials(ctx, h.ID.String(), cred)
}

func (b *Local) GetStatus(ctx context.Context, h *JobHandle) (model.JobSnapshot, error) {
	if err := checkHandle("get_status", b, h); err != nil {
		return model.JobSnapshot{}, err
	}
	st, err := b.svc.GetStatus(ctx, h.ID.String())
	if err != nil {
		return model.JobSnapshot{}, err
	}
	return model.SnapshotFromNative(h.ID, st), nil
}

func (b *Local) Close() error { return nil }

// Handle rebuilds a handle for a job id received over the wire. The agent
// uses this to serve decoded requests.
func (b *Local) Handle(op, jobID string) (*JobHandle, error) {
	id, err := model.ParseJobID(jobID)
	if err != nil {
		return nil, domain.Errf(op, jobID, domain.ErrInvalidArgument, "malformed job id")
	}
	return newHandle(b, id), nil
}
