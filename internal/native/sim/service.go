// Package sim is a stand-in for the host's transfer service: a durable job
// store whose jobs advance through the transfer state machine on a clock
// instead of by moving real bytes. The agent embeds it where no host
// service exists; tests drive it tick by tick.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transfer-agent/internal/domain"
	"transfer-agent/internal/domain/model"
	"transfer-agent/internal/infra/metrics"
	"transfer-agent/internal/native"
)

// Options tune the simulated transfer clock.
type Options struct {
	// FileSize is the total length assigned to each file once the job
	// leaves Connecting.
	FileSize int64
	// ChunkPerTick is how many bytes each file advances per tick.
	ChunkPerTick int64
}

func (o *Options) defaults() {
	if o.FileSize <= 0 {
		o.FileSize = 4 << 20
	}
	if o.ChunkPerTick <= 0 {
		o.ChunkPerTick = 1 << 20
	}
}

// Service implements native.Service on top of a Badger job store.
type Service struct {
	store *store
	opts  Options
	log   *zerolog.Logger

	mu    sync.Mutex
	creds map[string][]byte // never persisted
}

var _ native.Service = (*Service)(nil)

// New opens the store at dir (in-memory when dir is empty).
func New(dir string, opts Options, log *zerolog.Logger) (*Service, error) {
	st, err := openStore(dir)
	if err != nil {
		return nil, err
	}
	opts.defaults()
	return &Service{store: st, opts: opts, log: log, creds: map[string][]byte{}}, nil
}

func (s *Service) Close() error { return s.store.Close() }

// Run advances jobs every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", interval).Msg("sim transfer clock started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sim transfer clock stopped")
			return
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				s.log.Error().Err(err).Msg("sim tick failed")
			}
		}
	}
}

func (s *Service) CreateJob(ctx context.Context, displayName string, download bool) (string, error) {
	if displayName == "" {
		return "", domain.Errf("create_job", "", domain.ErrInvalidArgument, "empty display name")
	}
	id := uuid.NewString()
	rec := &record{
		ID:          id,
		DisplayName: displayName,
		Download:    download,
		Code:        native.StatusQueued,
		Created:     time.Now().UTC(),
	}
	err := s.store.db.Update(func(txn *badger.Txn) error {
		return putRecord(txn, rec)
	})
	if err != nil {
		return "", storeErr("create_job", id, err)
	}
	s.log.Debug().Str("job_id", id).Str("name", displayName).Msg("job created")
	return id, nil
}

func (s *Service) AddFile(ctx context.Context, id, source, destination string) error {
	if source == "" || destination == "" {
		return domain.Errf("add_file", id, domain.ErrInvalidArgument, "empty source or destination")
	}
	return s.update("add_file", id, func(rec *record) error {
		if !state(rec).CanAddFile() {
			return domain.Errf("add_file", id, domain.ErrInvalidState, "job is %s", state(rec))
		}
		rec.Files = append(rec.Files, native.File{
			Source:      source,
			Destination: destination,
			BytesTotal:  native.SizeUnknown,
		})
		return nil
	})
}

func (s *Service) Start(ctx context.Context, id string) error {
	return s.update("start", id, func(rec *record) error {
		if !state(rec).CanStart() {
			return domain.Errf("start", id, domain.ErrInvalidState, "job is %s", state(rec))
		}
		if len(rec.Files) == 0 {
			return domain.Errf("start", id, domain.ErrInvalidState, "job has no files")
		}
		rec.Code = native.StatusConnecting
		return nil
	})
}

func (s *Service) Suspend(ctx context.Context, id string) error {
	return s.update("suspend", id, func(rec *record) error {
		if !state(rec).CanSuspend() {
			return domain.Errf("suspend", id, domain.ErrInvalidState, "job is %s", state(rec))
		}
		rec.Code = native.StatusSuspended
		return nil
	})
}

func (s *Service) Resume(ctx context.Context, id string) error {
	return s.update("resume", id, func(rec *record) error {
		if !state(rec).CanResume() {
			return domain.Errf("resume", id, domain.ErrInvalidState, "job is %s", state(rec))
		}
		rec.Code = native.StatusConnecting
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, id string) error {
	err := s.store.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if state(rec).Terminal() && rec.Code != native.StatusError {
			// Terminal jobs have already been removed; this branch only
			// defends against a racing tick.
			return badger.ErrKeyNotFound
		}
		return txn.Delete(key(id))
	})
	if err != nil {
		return storeErr("cancel", id, err)
	}
	s.dropCredential(id)
	metrics.IncJobOutcome(string(model.StateCancelled))
	s.log.Debug().Str("job_id", id).Msg("job cancelled and removed")
	return nil
}

func (s *Service) Complete(ctx context.Context, id string) error {
	err := s.store.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if !state(rec).CanComplete() {
			return domain.Errf("complete", id, domain.ErrInvalidState, "job is %s", state(rec))
		}
		return txn.Delete(key(id))
	})
	if err != nil {
		return storeErr("complete", id, err)
	}
	s.dropCredential(id)
	metrics.IncJobOutcome(string(model.StateAcknowledged))
	s.log.Debug().Str("job_id", id).Msg("job acknowledged and removed")
	return nil
}

func (s *Service) SetPriority(ctx context.Context, id string, foreground bool) error {
	return s.update("set_priority", id, func(rec *record) error {
		rec.Foreground = foreground
		return nil
	})
}

func (s *Service) SetCredentials(ctx context.Context, id string, credential []byte) error {
	if len(credential) == 0 {
		return domain.Errf("set_credentials", id, domain.ErrInvalidArgument, "empty credential")
	}
	// Existence check only; the material itself stays in memory.
	err := s.store.db.View(func(txn *badger.Txn) error {
		_, err := getRecord(txn, id)
		return err
	})
	if err != nil {
		return storeErr("set_credentials", id, err)
	}
	s.mu.Lock()
	s.creds[id] = append([]byte(nil), credential...)
	s.mu.Unlock()
	return nil
}

func (s *Service) GetStatus(ctx context.Context, id string) (native.JobStatus, error) {
	var st native.JobStatus
	err := s.store.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		st = statusOf(rec)
		return nil
	})
	if err != nil {
		return native.JobStatus{}, storeErr("get_status", id, err)
	}
	return st, nil
}

// FailJob forces a job into an error state: transient failures are retried
// by the next tick, fatal ones persist until cancel.
func (s *Service) FailJob(id string, code int32, msg string, transient bool) error {
	return s.update("fail_job", id, func(rec *record) error {
		if state(rec).Terminal() {
			return domain.Errf("fail_job", id, domain.ErrInvalidState, "job is %s", state(rec))
		}
		if transient {
			rec.Code = native.StatusTransientError
		} else {
			rec.Code = native.StatusError
		}
		rec.ErrorCount++
		rec.Err = &native.JobError{Code: code, Context: "general_transport", Message: msg}
		return nil
	})
}

// Tick advances every live job one step of the simulated clock.
func (s *Service) Tick() error {
	ids, err := s.store.listIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		err := s.store.db.Update(func(txn *badger.Txn) error {
			rec, err := getRecord(txn, id)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return nil // removed between list and update
				}
				return err
			}
			if advance(rec, s.opts) {
				return putRecord(txn, rec)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// advance mutates rec one step and reports whether anything changed.
func advance(rec *record, opts Options) bool {
	switch rec.Code {
	case native.StatusConnecting:
		for i := range rec.Files {
			if rec.Files[i].BytesTotal == native.SizeUnknown {
				rec.Files[i].BytesTotal = opts.FileSize
			}
		}
		rec.Code = native.StatusTransferring
		return true
	case native.StatusTransientError:
		// The native service retries transient failures on its own.
		rec.Err = nil
		rec.Code = native.StatusTransferring
		return true
	case native.StatusTransferring:
		done := true
		for i := range rec.Files {
			f := &rec.Files[i]
			if f.BytesTransferred < f.BytesTotal {
				f.BytesTransferred += opts.ChunkPerTick
				if f.BytesTransferred > f.BytesTotal {
					f.BytesTransferred = f.BytesTotal
				}
			}
			if f.BytesTransferred < f.BytesTotal {
				done = false
			}
		}
		if done {
			rec.Code = native.StatusTransferred
		}
		return true
	}
	return false
}

func statusOf(rec *record) native.JobStatus {
	st := native.JobStatus{
		Code:        rec.Code,
		DisplayName: rec.DisplayName,
		Download:    rec.Download,
		Files:       append([]native.File(nil), rec.Files...),
		FilesTotal:  len(rec.Files),
		ErrorCount:  rec.ErrorCount,
		Err:         rec.Err,
	}
	for _, f := range rec.Files {
		st.BytesTransferred += f.BytesTransferred
		if f.BytesTotal == native.SizeUnknown {
			st.BytesTotal = native.SizeUnknown
		} else if st.BytesTotal != native.SizeUnknown {
			st.BytesTotal += f.BytesTotal
		}
		if f.BytesTotal != native.SizeUnknown && f.BytesTransferred == f.BytesTotal {
			st.FilesTransferred++
		}
	}
	return st
}

// state translates a record's native code through the public table.
func state(rec *record) model.JobState { return model.StateFromNative(rec.Code) }

func (s *Service) dropCredential(id string) {
	s.mu.Lock()
	delete(s.creds, id)
	s.mu.Unlock()
}

func (s *Service) update(op, id string, mutate func(*record) error) error {
	err := s.store.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if err := mutate(rec); err != nil {
			return err
		}
		return putRecord(txn, rec)
	})
	return storeErr(op, id, err)
}

// storeErr maps store-level failures onto the domain taxonomy; domain
// errors from mutate callbacks pass through untouched.
func storeErr(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return domain.Errf(op, id, domain.ErrNotFound, "no such job")
	default:
		var opErr *domain.OpError
		if errors.As(err, &opErr) {
			return err
		}
		return domain.Errf(op, id, domain.ErrServiceUnavailable, "job store: %v", err)
	}
}
