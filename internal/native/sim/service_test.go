package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"transfer-agent/internal/domain"
	"transfer-agent/internal/native"
)

func newService(t *testing.T) *Service {
	t.Helper()
	log := zerolog.Nop()
	svc, err := New("", Options{FileSize: 3, ChunkPerTick: 1}, &log)
	if err != nil {
		t.Fatalf("open in-memory service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func startedJob(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()
	id, err := svc.CreateJob(ctx, "T1", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.AddFile(ctx, id, "http://example/test.bin", "/tmp/test.bin"); err != nil {
		t.Fatalf("add file: %v", err)
	}
	if err := svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	return id
}

func tick(t *testing.T, svc *Service, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := svc.Tick(); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
}

func code(t *testing.T, svc *Service, id string) native.StatusCode {
	t.Helper()
	st, err := svc.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	return st.Code
}

func TestJobRunsToTransferred(t *testing.T) {
	svc := newService(t)
	id := startedJob(t, svc)

	if got := code(t, svc, id); got != native.StatusConnecting {
		t.Fatalf("after start: code %d, want connecting", got)
	}
	tick(t, svc, 1)
	if got := code(t, svc, id); got != native.StatusTransferring {
		t.Fatalf("after 1 tick: code %d, want transferring", got)
	}
	// FileSize 3, ChunkPerTick 1: three more ticks finish the file.
	tick(t, svc, 3)
	if got := code(t, svc, id); got != native.StatusTransferred {
		t.Fatalf("after transfer ticks: code %d, want transferred", got)
	}

	st, err := svc.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if st.BytesTransferred != 3 || st.BytesTotal != 3 || st.FilesTransferred != 1 {
		t.Fatalf("progress = %d/%d files %d, want 3/3 files 1",
			st.BytesTransferred, st.BytesTotal, st.FilesTransferred)
	}
}

func TestCompleteRemovesJob(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	id := startedJob(t, svc)
	tick(t, svc, 4)

	if err := svc.Complete(ctx, id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.GetStatus(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("status after complete: %v, want NotFound", err)
	}
	// Second attempt must be NotFound, nothing else.
	if err := svc.Complete(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("double complete: %v, want NotFound", err)
	}
}

func TestCancelQueuedJobNeverTransfers(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	id, err := svc.CreateJob(ctx, "never started", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}
	if _, err := svc.GetStatus(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("status after cancel: %v, want NotFound", err)
	}
	if err := svc.Cancel(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("double cancel: %v, want NotFound", err)
	}
}

func TestTransitionGuards(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	id, err := svc.CreateJob(ctx, "guards", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// No files yet: start is refused.
	if err := svc.Start(ctx, id); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("start with no files: %v, want InvalidState", err)
	}
	if err := svc.AddFile(ctx, id, "http://example/a", "/tmp/a"); err != nil {
		t.Fatalf("add file: %v", err)
	}
	// Suspend from Queued is forbidden.
	if err := svc.Suspend(ctx, id); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("suspend queued: %v, want InvalidState", err)
	}
	if err := svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Files may only be added while queued.
	if err := svc.AddFile(ctx, id, "http://example/b", "/tmp/b"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("add file after start: %v, want InvalidState", err)
	}
	// Double start is forbidden.
	if err := svc.Start(ctx, id); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("double start: %v, want InvalidState", err)
	}
	// Complete before Transferred is forbidden.
	if err := svc.Complete(ctx, id); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("early complete: %v, want InvalidState", err)
	}

	// Suspend/resume round trip.
	if err := svc.Suspend(ctx, id); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if got := code(t, svc, id); got != native.StatusSuspended {
		t.Fatalf("after suspend: code %d", got)
	}
	tick(t, svc, 5)
	if got := code(t, svc, id); got != native.StatusSuspended {
		t.Fatalf("suspended job advanced to %d", got)
	}
	if err := svc.Resume(ctx, id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := code(t, svc, id); got != native.StatusConnecting {
		t.Fatalf("after resume: code %d, want connecting", got)
	}
}

func TestTransientErrorRetriesFatalSticks(t *testing.T) {
	svc := newService(t)
	id := startedJob(t, svc)
	tick(t, svc, 1) // transferring

	if err := svc.FailJob(id, 7, "flaky network", true); err != nil {
		t.Fatalf("inject transient: %v", err)
	}
	if got := code(t, svc, id); got != native.StatusTransientError {
		t.Fatalf("after transient failure: code %d", got)
	}
	tick(t, svc, 1)
	if got := code(t, svc, id); got != native.StatusTransferring {
		t.Fatalf("transient failure did not auto-retry: code %d", got)
	}

	if err := svc.FailJob(id, 8, "disk gone", false); err != nil {
		t.Fatalf("inject fatal: %v", err)
	}
	tick(t, svc, 3)
	st, err := svc.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if st.Code != native.StatusError {
		t.Fatalf("fatal error did not stick: code %d", st.Code)
	}
	if st.Err == nil || st.Err.Code != 8 {
		t.Fatalf("error report missing: %+v", st.Err)
	}
	if st.ErrorCount != 2 {
		t.Fatalf("error count = %d, want 2", st.ErrorCount)
	}
}

func TestUnknownJobIsNotFound(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, op := range []func() error{
		func() error { return svc.Start(ctx, "11111111-1111-1111-1111-111111111111") },
		func() error { _, e := svc.GetStatus(ctx, "11111111-1111-1111-1111-111111111111"); return e },
		func() error {
			return svc.SetCredentials(ctx, "11111111-1111-1111-1111-111111111111", []byte("x"))
		},
	} {
		if err := op(); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("unknown job: %v, want NotFound", err)
		}
	}
}
