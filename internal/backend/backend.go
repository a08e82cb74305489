// Package backend hides the two execution models behind one contract:
// Local talks straight to the native transfer service as the calling user,
// Remote marshals the same calls across the agent channel. Callers pick one
// at construction time and never branch on the kind again.
package backend

import (
	"context"
	"net/url"
	"strings"

	"transfer-agent/internal/domain"
	"transfer-agent/internal/domain/model"
)

// JobHandle is a lightweight reference to a job held by the native store.
// Dropping a handle never affects the job; only cancel or complete remove
// it. A handle is only meaningful against the backend that produced it.
type JobHandle struct {
	ID    model.JobID
	owner Backend
}

func newHandle(owner Backend, id model.JobID) *JobHandle {
	return &JobHandle{ID: id, owner: owner}
}

// OwnedBy reports whether b produced this handle.
func (h *JobHandle) OwnedBy(b Backend) bool { return h != nil && h.owner == b }

// Reattach builds a handle for a job id learned elsewhere, e.g. a job
// created in a previous process or session. The native store stays the
// authority on whether the id still names a live job.
func Reattach(b Backend, id model.JobID) *JobHandle { return newHandle(b, id) }

// Backend is the uniform job-control contract. Every mutating call is
// synchronous: on a nil error the operation is durably applied in the
// native store.
type Backend interface {
	CreateJob(ctx context.Context, displayName string, dir model.Direction) (*JobHandle, error)
	AddFile(ctx context.Context, h *JobHandle, source, destination string) error
	Start(ctx context.Context, h *JobHandle) error
	Suspend(ctx context.Context, h *JobHandle) error
	Resume(ctx context.Context, h *JobHandle) error
	Cancel(ctx context.Context, h *JobHandle) error
	Complete(ctx context.Context, h *JobHandle) error
	SetPriority(ctx context.Context, h *JobHandle, foreground bool) error
	SetCredentials(ctx context.Context, h *JobHandle, cred model.Credential) error
	GetStatus(ctx context.Context, h *JobHandle) (model.JobSnapshot, error)
	Close() error
}

// checkHandle guards against a handle crossing backend instances.
func checkHandle(op string, b Backend, h *JobHandle) error {
	if h == nil {
		return domain.Errf(op, "", domain.ErrInvalidArgument, "nil job handle")
	}
	if !h.OwnedBy(b) {
		return domain.Errf(op, h.ID.String(), domain.ErrInvalidArgument,
			"handle belongs to a different backend")
	}
	return nil
}

// validateFile rejects malformed locators before they reach the store.
// Sources are URLs or absolute paths; destinations are absolute paths.
func validateFile(op, jobID, source, destination string) error {
	if source == "" || destination == "" {
		return domain.Errf(op, jobID, domain.ErrInvalidArgument, "empty source or destination")
	}
	if !strings.HasPrefix(source, "/") {
		u, err := url.Parse(source)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return domain.Errf(op, jobID, domain.ErrInvalidArgument, "malformed source locator %q", source)
		}
	}
	if !strings.HasPrefix(destination, "/") {
		return domain.Errf(op, jobID, domain.ErrInvalidArgument,
			"destination %q is not an absolute path", destination)
	}
	return nil
}
