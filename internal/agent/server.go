// Package agent is the privileged half of the system: a long-running
// listener, executed under a fixed service identity, that authenticates
// callers and forwards decoded requests to its embedded local backend. It
// keeps no job state of its own; the native store is the sole source of
// truth, which makes restarts harmless to in-flight jobs.
package agent

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"transfer-agent/internal/backend"
	"transfer-agent/internal/config"
	"transfer-agent/internal/domain"
	"transfer-agent/internal/domain/model"
	"transfer-agent/internal/infra/logging"
	"transfer-agent/internal/infra/metrics"
	"transfer-agent/internal/protocol"
)

const handshakeTimeout = 10 * time.Second

type Server struct {
	cfg   config.AgentConfig
	local *backend.Local
	log   *zerolog.Logger

	ln      net.Listener
	connSeq atomic.Uint64
	wg      sync.WaitGroup
}

func New(cfg config.AgentConfig, local *backend.Local, log *zerolog.Logger) *Server {
	return &Server{cfg: cfg, local: local, log: log}
}

// Listen binds the control socket. Stale unix sockets from a previous run
// are removed first.
func (s *Server) Listen() error {
	if s.cfg.Network == "unix" {
		_ = os.Remove(s.cfg.Listen)
	}
	ln, err := net.Listen(s.cfg.Network, s.cfg.Listen)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info().Str("network", s.cfg.Network).Str("addr", s.cfg.Listen).Msg("agent listening")
	return nil
}

// Addr reports the bound address; useful when listening on ":0".
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is cancelled, then waits for open
// connections to drain.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	ctx = logging.WithConnID(ctx, s.connSeq.Add(1))
	log := logging.With(ctx, s.log)

	// Shutdown closes open connections; a blocked read must not outlive the
	// accept loop.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	metrics.ConnOpened()
	result := "closed"
	defer func() { metrics.ConnClosed(result) }()

	if err := s.handshake(conn); err != nil {
		log.Warn().Err(err).Msg("handshake rejected")
		result = "auth_failed"
		return
	}
	log.Debug().Msg("connection authenticated")

	// One request, one response, strictly in order. A malformed request
	// kills the connection; there is no resynchronizing a corrupt stream.
	for {
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, domain.ErrProtocolError):
				log.Warn().Err(err).Msg("malformed request, closing connection")
				_ = protocol.WriteResponse(conn, &protocol.Response{
					Err: protocol.WireErrorFrom(err),
				})
				result = "protocol_error"
			default:
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("read failed")
				}
			}
			return
		}

		resp := s.dispatch(ctx, req)
		if err := protocol.WriteResponse(conn, resp); err != nil {
			log.Warn().Err(err).Msg("write failed")
			return
		}
	}
}

func (s *Server) handshake(conn net.Conn) error {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	hello, err := protocol.ReadHello(conn)
	if err != nil {
		return err
	}
	if hello.Version != protocol.Version {
		_ = protocol.WriteHelloAck(conn, &protocol.HelloAck{
			Version: protocol.Version,
			Error:   "unsupported protocol version",
		})
		return domain.Errf("handshake", "", domain.ErrProtocolError,
			"client speaks protocol %d, want %d", hello.Version, protocol.Version)
	}
	if err := protocol.VerifyToken(s.cfg.AuthSecret, hello.Token); err != nil {
		_ = protocol.WriteHelloAck(conn, &protocol.HelloAck{
			Version: protocol.Version,
			Error:   "authentication failed",
		})
		return err
	}
	return protocol.WriteHelloAck(conn, &protocol.HelloAck{Version: protocol.Version})
}

// dispatch runs one decoded request against the embedded local backend and
// shapes the reply. Every failure becomes a structured wire error; nothing
// is swallowed.
func (s *Server) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	start := time.Now()
	ctx = logging.WithCorrID(ctx, req.Corr)
	if req.JobID != "" {
		ctx = logging.WithJobID(ctx, req.JobID)
	}
	log := logging.With(ctx, s.log)
	defer logging.TraceDuration(log, "agent.dispatch")()

	resp := &protocol.Response{Corr: req.Corr, JobID: req.JobID}

	err := s.run(ctx, req, resp)
	outcome := "ok"
	if err != nil {
		we := protocol.WireErrorFrom(err)
		resp.Err = we
		outcome = we.Kind
		log.Debug().Str("op", string(req.Op)).Str("outcome", outcome).Err(err).Msg("request failed")
	} else {
		resp.OK = true
		log.Debug().Str("op", string(req.Op)).Str("job_id", resp.JobID).Msg("request served")
	}
	metrics.ObserveRequest(string(req.Op), outcome, float64(time.Since(start).Milliseconds()))
	return resp
}

func (s *Server) run(ctx context.Context, req *protocol.Request, resp *protocol.Response) error {
	if req.Op == protocol.OpCreateJob {
		h, err := s.local.CreateJob(ctx, req.DisplayName, model.Direction(req.Direction))
		if err != nil {
			return err
		}
		resp.JobID = h.ID.String()
		return nil
	}

	h, err := s.local.Handle(string(req.Op), req.JobID)
	if err != nil {
		return err
	}
	switch req.Op {
	case protocol.OpAddFile:
		return s.local.AddFile(ctx, h, req.Source, req.Destination)
	case protocol.OpStart:
		return s.local.Start(ctx, h)
	case protocol.OpSuspend:
		return s.local.Suspend(ctx, h)
	case protocol.OpResume:
		return s.local.Resume(ctx, h)
	case protocol.OpCancel:
		return s.local.Cancel(ctx, h)
	case protocol.OpComplete:
		return s.local.Complete(ctx, h)
	case protocol.OpSetPriority:
		return s.local.SetPriority(ctx, h, req.Foreground)
	case protocol.OpSetCredentials:
		return s.local.SetCredentials(ctx, h, req.Credential)
	case protocol.OpGetStatus:
		snap, err := s.local.GetStatus(ctx, h)
		if err != nil {
			return err
		}
		resp.Snapshot = &snap
		return nil
	default:
		return domain.Errf(string(req.Op), req.JobID, domain.ErrProtocolError,
			"unknown operation")
	}
}
