package protocol

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-agent/internal/domain"
	"transfer-agent/internal/domain/model"
)

func TestRequestRoundTripAllOps(t *testing.T) {
	reqs := []*Request{
		{Op: OpCreateJob, DisplayName: "T1", Direction: "download"},
		{Op: OpAddFile, JobID: "j1", Source: "http://example/test.bin", Destination: "/tmp/test.bin"},
		{Op: OpAddFile, JobID: "j1", Source: "::not a url::", Destination: "relative/path"},
		{Op: OpStart, JobID: "j1"},
		{Op: OpSuspend, JobID: "j1"},
		{Op: OpResume, JobID: "j1"},
		{Op: OpCancel, JobID: "j1"},
		{Op: OpComplete, JobID: "j1"},
		{Op: OpGetStatus, JobID: "j1"},
		{Op: OpSetPriority, JobID: "j1", Foreground: true},
		{Op: OpSetCredentials, JobID: "j1", Credential: []byte{0x00, 0xff, 0x10}},
	}
	for _, req := range reqs {
		t.Run(string(req.Op), func(t *testing.T) {
			req.Corr = NewCorr()
			var buf bytes.Buffer
			require.NoError(t, WriteRequest(&buf, req))

			got, err := ReadRequest(&buf)
			require.NoError(t, err)
			assert.Equal(t, req, got)
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	snaps := []*model.JobSnapshot{
		nil,
		{JobID: "j1", State: model.StateQueued}, // empty file list
		{
			JobID: "j1", State: model.StateTransferring,
			Files: []model.FileEntry{
				{Source: "http://example/a", Destination: "/tmp/a", BytesTransferred: 10, BytesTotal: 100},
			},
			BytesTransferred: 10, BytesTotal: 100, FilesTotal: 1,
		},
		{
			JobID: "j2", State: model.StateError, ErrorCount: 3,
			Files: []model.FileEntry{
				{Source: "http://example/a", Destination: "/tmp/a"},
				{Source: "http://example/b", Destination: "/tmp/b"},
			},
			Err: &model.ErrorInfo{Code: 404, Context: "remote_file", Message: "gone"},
		},
	}
	for _, snap := range snaps {
		resp := &Response{Corr: NewCorr(), OK: true, JobID: "j1", Snapshot: snap}
		var buf bytes.Buffer
		require.NoError(t, WriteResponse(&buf, resp))
		got, err := ReadResponse(&buf)
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	}
}

func TestFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFrame+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProtocolError)

	// A forged oversize header must be rejected before allocation.
	buf.Reset()
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, domain.ErrProtocolError)
}

func TestFrameShortReadIsIOError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	// Truncate mid-payload: the reader must fail cleanly, not misparse.
	trunc := bytes.NewReader(buf.Bytes()[:6])
	_, err := ReadFrame(trunc)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrProtocolError)
}

func TestMalformedJSONIsProtocolError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("{not json")))
	_, err := ReadRequest(&buf)
	assert.ErrorIs(t, err, domain.ErrProtocolError)

	buf.Reset()
	require.NoError(t, WriteFrame(&buf, []byte(`{"corr":"x"}`))) // missing op
	_, err = ReadRequest(&buf)
	assert.ErrorIs(t, err, domain.ErrProtocolError)
}

func TestWireErrorMapsTaxonomyBothWays(t *testing.T) {
	cases := []error{
		domain.ErrInvalidArgument,
		domain.ErrInvalidState,
		domain.ErrNotFound,
		domain.ErrPermissionDenied,
		domain.ErrServiceUnavailable,
		domain.ErrAgentUnreachable,
		domain.ErrProtocolError,
	}
	for _, sentinel := range cases {
		we := WireErrorFrom(domain.Errf("start", "j1", sentinel, "boom"))
		back := we.DomainError(OpStart, "j1")
		assert.ErrorIs(t, back, sentinel, "kind %s", we.Kind)
	}

	// Unclassified errors travel as retryable.
	we := WireErrorFrom(errors.New("mystery"))
	assert.ErrorIs(t, we.DomainError(OpStart, "j1"), domain.ErrServiceUnavailable)
}

func TestTokenMintAndVerify(t *testing.T) {
	tok, err := MintToken("secret", time.Minute)
	require.NoError(t, err)
	require.NoError(t, VerifyToken("secret", tok))

	err = VerifyToken("other-secret", tok)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	expired, err := MintToken("secret", -time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyToken("secret", expired), domain.ErrPermissionDenied)
}

func TestHelloRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHello(&buf, &Hello{Version: Version, Token: "tok"}))
	h, err := ReadHello(&buf)
	require.NoError(t, err)
	assert.Equal(t, Version, h.Version)
	assert.Equal(t, "tok", h.Token)

	buf.Reset()
	require.NoError(t, WriteHelloAck(&buf, &HelloAck{Version: Version}))
	ack, err := ReadHelloAck(&buf)
	require.NoError(t, err)
	assert.Empty(t, ack.Error)
}
