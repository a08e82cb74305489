package backend

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"transfer-agent/internal/config"
	"transfer-agent/internal/domain"
	"transfer-agent/internal/domain/model"
	"transfer-agent/internal/protocol"
	"transfer-agent/internal/trigger"
)

const tokenTTL = time.Minute

// Remote executes job-control calls through the agent. It owns one
// connection; concurrent callers are serialized on a mutex because the
// protocol allows a single outstanding request per connection.
//
// The first call pays the bootstrap cost: dial, wake the agent if the dial
// fails, then retry with exponential backoff under a total deadline. An
// established connection that drops gets exactly one reconnect before the
// error surfaces.
type Remote struct {
	cfg  config.ClientConfig
	trig trigger.Trigger
	log  *zerolog.Logger

	mu   chan struct{} // capacity-1 semaphore, lockable with ctx
	conn net.Conn
}

var _ Backend = (*Remote)(nil)

func NewRemote(cfg config.ClientConfig, trig trigger.Trigger, log *zerolog.Logger) *Remote {
	if trig == nil {
		trig = trigger.Noop{}
	}
	r := &Remote{cfg: cfg, trig: trig, log: log, mu: make(chan struct{}, 1)}
	r.mu <- struct{}{}
	return r
}

func (r *Remote) lock(ctx context.Context) error {
	select {
	case <-r.mu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Remote) unlock() { r.mu <- struct{}{} }

// bootstrap dials the agent, firing the trigger after the first failed
// attempt. Exhausting the attempt budget or the deadline yields
// AgentUnreachable.
func (r *Remote) bootstrap(ctx context.Context) (net.Conn, error) {
	deadline := time.Now().Add(r.cfg.ConnectDeadline)
	backoff := r.cfg.ConnectBackoff
	attempts := r.cfg.ConnectAttempts
	if attempts < 1 {
		// A zero-value config still dials once, so the failure below always
		// carries a real cause.
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		conn, err := r.dialOnce(ctx, deadline)
		if err == nil {
			r.log.Debug().Int("attempt", attempt+1).Str("addr", r.cfg.AgentAddr).Msg("agent connected")
			return conn, nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrProtocolError) {
			// Retrying cannot fix a rejected handshake.
			return nil, err
		}
		r.log.Debug().Err(err).Int("attempt", attempt+1).Msg("agent dial failed")

		if attempt == 0 {
			if terr := r.trig.Start(ctx); terr != nil {
				r.log.Warn().Err(terr).Msg("agent trigger failed, retrying anyway")
			}
		}
		if time.Now().After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, domain.Errf("connect", "", domain.ErrAgentUnreachable,
		"agent at %s not reachable: %v", r.cfg.AgentAddr, lastErr)
}

// dialOnce dials and runs the handshake on a fresh connection.
func (r *Remote) dialOnce(ctx context.Context, deadline time.Time) (net.Conn, error) {
	d := net.Dialer{Deadline: deadline}
	conn, err := d.DialContext(ctx, r.cfg.Network, r.cfg.AgentAddr)
	if err != nil {
		return nil, err
	}
	if err := r.handshake(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (r *Remote) handshake(conn net.Conn) error {
	token, err := protocol.MintToken(r.cfg.AuthSecret, tokenTTL)
	if err != nil {
		return domain.Errf("handshake", "", domain.ErrProtocolError, "mint token: %v", err)
	}
	_ = conn.SetDeadline(time.Now().Add(r.cfg.CallTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := protocol.WriteHello(conn, &protocol.Hello{Version: protocol.Version, Token: token}); err != nil {
		return err
	}
	ack, err := protocol.ReadHelloAck(conn)
	if err != nil {
		return err
	}
	if ack.Error != "" {
		return domain.Errf("handshake", "", domain.ErrPermissionDenied, "%s", ack.Error)
	}
	if ack.Version != protocol.Version {
		return domain.Errf("handshake", "", domain.ErrProtocolError,
			"agent speaks protocol %d, want %d", ack.Version, protocol.Version)
	}
	return nil
}

// call performs one request/response exchange, reconnecting once if the
// connection dropped underneath us. The resend makes delivery at-least-once:
// a mutation the agent applied just before the drop resurfaces on the retry
// as NotFound or InvalidState, the same answers a deliberate double-apply
// gets, so callers need no extra handling for it.
func (r *Remote) call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if err := r.lock(ctx); err != nil {
		return nil, err
	}
	defer r.unlock()

	if r.conn == nil {
		conn, err := r.bootstrap(ctx)
		if err != nil {
			return nil, err
		}
		r.conn = conn
	}

	resp, err := r.roundTrip(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, domain.ErrProtocolError) {
		// A corrupted stream is fatal; do not resend on it.
		r.dropConn()
		return nil, err
	}

	// Transport failure: one reconnect, one resend.
	r.log.Warn().Err(err).Str("op", string(req.Op)).Msg("connection lost, reconnecting once")
	r.dropConn()
	conn, derr := r.dialOnce(ctx, time.Now().Add(r.cfg.CallTimeout))
	if derr != nil {
		return nil, domain.Errf(string(req.Op), req.JobID, domain.ErrAgentUnreachable,
			"reconnect failed: %v", derr)
	}
	r.conn = conn
	resp, err = r.roundTrip(ctx, req)
	if err != nil {
		r.dropConn()
		return nil, domain.Errf(string(req.Op), req.JobID, domain.ErrAgentUnreachable,
			"request failed after reconnect: %v", err)
	}
	return resp, nil
}

func (r *Remote) roundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	deadline := time.Now().Add(r.cfg.CallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = r.conn.SetDeadline(deadline)
	defer r.conn.SetDeadline(time.Time{})

	if err := protocol.WriteRequest(r.conn, req); err != nil {
		return nil, err
	}
	resp, err := protocol.ReadResponse(r.conn)
	if err != nil {
		return nil, err
	}
	if resp.Corr != req.Corr {
		return nil, domain.Errf(string(req.Op), req.JobID, domain.ErrProtocolError,
			"correlation mismatch: sent %s, got %s", req.Corr, resp.Corr)
	}
	return resp, nil
}

func (r *Remote) dropConn() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// do sends a request and converts the wire-level outcome into the domain
// taxonomy.
func (r *Remote) do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	req.Corr = protocol.NewCorr()
	resp, err := r.call(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		if resp.Err == nil {
			return nil, domain.Errf(string(req.Op), req.JobID, domain.ErrProtocolError,
				"failure response without error")
		}
		return nil, resp.Err.DomainError(req.Op, req.JobID)
	}
	return resp, nil
}

func (r *Remote) CreateJob(ctx context.Context, displayName string, dir model.Direction) (*JobHandle, error) {
	if displayName == "" {
		return nil, domain.Errf("create_job", "", domain.ErrInvalidArgument, "empty display name")
	}
	if !dir.Valid() {
		return nil, domain.Errf("create_job", "", domain.ErrInvalidArgument, "unknown direction %q", dir)
	}
	resp, err := r.do(ctx, &protocol.Request{
		Op:          protocol.OpCreateJob,
		DisplayName: displayName,
		Direction:   string(dir),
	})
	if err != nil {
		return nil, err
	}
	id, err := model.ParseJobID(resp.JobID)
	if err != nil {
		return nil, domain.Errf("create_job", resp.JobID, domain.ErrProtocolError,
			"agent returned malformed job id")
	}
	return newHandle(r, id), nil
}

func (r *Remote) AddFile(ctx context.Context, h *JobHandle, source, destination string) error {
	if err := checkHandle("add_file", r, h); err != nil {
		return err
	}
	if err := validateFile("add_file", h.ID.String(), source, destination); err != nil {
		return err
	}
	_, err := r.do(ctx, &protocol.Request{
		Op:          protocol.OpAddFile,
		JobID:       h.ID.String(),
		Source:      source,
		Destination: destination,
	})
	return err
}

func (r *Remote) Start(ctx context.Context, h *JobHandle) error {
	return r.jobOp(ctx, protocol.OpStart, h)
}

func (r *Remote) Suspend(ctx context.Context, h *JobHandle) error {
	return r.jobOp(ctx, protocol.OpSuspend, h)
}

func (r *Remote) Resume(ctx context.Context, h *JobHandle) error {
	return r.jobOp(ctx, protocol.OpResume, h)
}

func (r *Remote) Cancel(ctx context.Context, h *JobHandle) error {
	return r.jobOp(ctx, protocol.OpCancel, h)
}

func (r *Remote) Complete(ctx context.Context, h *JobHandle) error {
	return r.jobOp(ctx, protocol.OpComplete, h)
}

func (r *Remote) jobOp(ctx context.Context, op protocol.Op, h *JobHandle) error {
	if err := checkHandle(string(op), r, h); err != nil {
		return err
	}
	_, err := r.do(ctx, &protocol.Request{Op: op, JobID: h.ID.String()})
	return err
}

func (r *Remote) SetPriority(ctx context.Context, h *JobHandle, foreground bool) error {
	if err := checkHandle("set_priority", r, h); err != nil {
		return err
	}
	_, err := r.do(ctx, &protocol.Request{
		Op:         protocol.OpSetPriority,
		JobID:      h.ID.String(),
		Foreground: foreground,
	})
	return err
}

func (r *Remote) SetCredentials(ctx context.Context, h *JobHandle, cred model.Credential) error {
	if err := checkHandle("set_credentials", r, h); err != nil {
		return err
	}
	if len(cred) == 0 {
		return domain.Errf("set_credentials", h.ID.String(), domain.ErrInvalidArgument, "empty credential")
	}
	_, err := r.do(ctx, &protocol.Request{
		Op:         protocol.OpSetCredentials,
		JobID:      h.ID.String(),
		Credential: cred,
	})
	return err
}

func (r *Remote) GetStatus(ctx context.Context, h *JobHandle) (model.JobSnapshot, error) {
	if err := checkHandle("get_status", r, h); err != nil {
		return model.JobSnapshot{}, err
	}
	resp, err := r.do(ctx, &protocol.Request{Op: protocol.OpGetStatus, JobID: h.ID.String()})
	if err != nil {
		return model.JobSnapshot{}, err
	}
	if resp.Snapshot == nil {
		return model.JobSnapshot{}, domain.Errf("get_status", h.ID.String(),
			domain.ErrProtocolError, "status response without snapshot")
	}
	return *resp.Snapshot, nil
}

func (r *Remote) Close() error {
	if err := r.lock(context.Background()); err != nil {
		return err
	}
	defer r.unlock()
	r.dropConn()
	return nil
}
