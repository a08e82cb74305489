package client

import (
	"context"
	"errors"
	"time"

	"transfer-agent/internal/backend"
	"transfer-agent/internal/domain"
	"transfer-agent/internal/domain/model"
)

// Monitor polls the job's status every cfg.PollInterval and sends each
// snapshot on the returned channel. The channel closes after the first
// terminal snapshot or when ctx is cancelled; the loop never mutates the
// job.
//
// TransientError is not a stop: the native service retries on its own, so
// those snapshots flow through as progress and polling continues. Up to
// cfg.MaxPollFailures consecutive poll failures are absorbed (the remote
// backend already retries the transport underneath); past the budget the
// stream ends with a transport-error snapshot instead of hanging.
//
// A NotFound after a successful complete or cancel is the store removing
// the job; the loop synthesizes the terminal snapshot the removal implied:
// Acknowledged if the job was last seen Transferred, Cancelled otherwise.
func (c *Client) Monitor(ctx context.Context, h *backend.JobHandle) <-chan model.JobSnapshot {
	ch := make(chan model.JobSnapshot)
	go c.monitorLoop(ctx, h, ch)
	return ch
}

func (c *Client) monitorLoop(ctx context.Context, h *backend.JobHandle, ch chan<- model.JobSnapshot) {
	defer close(ch)

	failures := 0
	lastState := model.StateUnknown
	var lastErr error

	for {
		snap, err := c.backend.GetStatus(ctx, h)
		switch {
		case err == nil:
			failures = 0
			lastState = snap.State
			if !c.emit(ctx, ch, snap) {
				return
			}
			if snap.State.Terminal() {
				return
			}

		case errors.Is(err, domain.ErrNotFound):
			terminal := model.StateCancelled
			if lastState == model.StateTransferred {
				terminal = model.StateAcknowledged
			}
			c.emit(ctx, ch, model.JobSnapshot{JobID: h.ID, State: terminal})
			return

		default:
			if ctx.Err() != nil {
				return
			}
			failures++
			lastErr = err
			c.log.Warn().Err(err).Str("job_id", h.ID.String()).
				Int("consecutive_failures", failures).Msg("status poll failed")
			if failures >= c.cfg.MaxPollFailures {
				c.emit(ctx, ch, model.JobSnapshot{
					JobID: h.ID,
					State: model.StateUnknown,
					Err: &model.ErrorInfo{
						Context: model.TransportContext,
						Message: lastErr.Error(),
					},
				})
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// emit delivers one snapshot unless the caller has gone away.
func (c *Client) emit(ctx context.Context, ch chan<- model.JobSnapshot, snap model.JobSnapshot) bool {
	select {
	case ch <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
