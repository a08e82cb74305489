package agent_test

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-agent/internal/agent"
	"transfer-agent/internal/backend"
	"transfer-agent/internal/config"
	"transfer-agent/internal/native/sim"
	"transfer-agent/internal/protocol"
)

const testSecret = "test-secret"

func startAgent(t *testing.T) string {
	t.Helper()
	log := zerolog.Nop()
	svc, err := sim.New("", sim.Options{}, &log)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	sock := filepath.Join(t.TempDir(), "agent.sock")
	srv := agent.New(config.AgentConfig{
		Network:    "unix",
		Listen:     sock,
		AuthSecret: testSecret,
	}, backend.NewLocal(svc, &log), &log)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sock
}

func dialAndAuth(t *testing.T, sock string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", sock, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	token, err := protocol.MintToken(testSecret, time.Minute)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteHello(conn, &protocol.Hello{Version: protocol.Version, Token: token}))
	ack, err := protocol.ReadHelloAck(conn)
	require.NoError(t, err)
	require.Empty(t, ack.Error)
	return conn
}

func TestMalformedRequestKillsConnectionNotJobs(t *testing.T) {
	sock := startAgent(t)
	conn := dialAndAuth(t, sock)

	// Garbage after a clean handshake: one ProtocolError response, then
	// the agent hangs up without trying to resynchronize.
	require.NoError(t, protocol.WriteFrame(conn, []byte("{broken")))

	resp, err := protocol.ReadResponse(conn)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Err)
	assert.Equal(t, "protocol_error", resp.Err.Kind)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = protocol.ReadFrame(conn)
	assert.ErrorIs(t, err, io.EOF)

	// A fresh connection still works: the corrupted stream hurt nothing
	// but itself.
	conn2 := dialAndAuth(t, sock)
	corr := protocol.NewCorr()
	require.NoError(t, protocol.WriteRequest(conn2, &protocol.Request{
		Corr: corr, Op: protocol.OpCreateJob, DisplayName: "survivor", Direction: "download",
	}))
	resp2, err := protocol.ReadResponse(conn2)
	require.NoError(t, err)
	assert.True(t, resp2.OK)
	assert.Equal(t, corr, resp2.Corr)
	assert.NotEmpty(t, resp2.JobID)
}

func TestVersionMismatchRejected(t *testing.T) {
	sock := startAgent(t)
	conn, err := net.DialTimeout("unix", sock, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	token, err := protocol.MintToken(testSecret, time.Minute)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteHello(conn, &protocol.Hello{Version: 99, Token: token}))

	ack, err := protocol.ReadHelloAck(conn)
	require.NoError(t, err)
	assert.NotEmpty(t, ack.Error)
}

func TestUnknownOpIsProtocolError(t *testing.T) {
	sock := startAgent(t)
	conn := dialAndAuth(t, sock)

	corr := protocol.NewCorr()
	require.NoError(t, protocol.WriteRequest(conn, &protocol.Request{
		Corr: corr, Op: protocol.Op("defragment"),
		JobID: "4f6a1c8e-74a1-4f0a-9a79-2a31fd0aa2a1",
	}))
	resp, err := protocol.ReadResponse(conn)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, corr, resp.Corr)
	require.NotNil(t, resp.Err)
	assert.Equal(t, "protocol_error", resp.Err.Kind)
}
