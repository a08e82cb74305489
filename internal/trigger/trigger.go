// Package trigger wakes an on-demand agent. The activation mechanism is an
// external collaborator; this package only promises "request start", the
// remote backend's retry loop supplies "eventually reachable".
package trigger

import (
	"context"
	"os/exec"

	"github.com/rs/zerolog"
)

type Trigger interface {
	// Start requests that the agent be started. It must not block on the
	// agent becoming reachable.
	Start(ctx context.Context) error
}

// Noop is used when the agent is managed externally (systemd socket
// activation, an always-on daemon, tests).
type Noop struct{}

func (Noop) Start(context.Context) error { return nil }

// Exec launches a configured command line, e.g. a systemd or task-scheduler
// invocation that brings the agent up. The process is released, not waited
// on.
type Exec struct {
	argv []string
	log  *zerolog.Logger
}

func NewExec(argv []string, log *zerolog.Logger) *Exec {
	return &Exec{argv: argv, log: log}
}

func (t *Exec) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.argv[0], t.argv[1:]...)
	if err := cmd.Start(); err != nil {
		t.log.Error().Err(err).Strs("argv", t.argv).Msg("agent trigger failed")
		return err
	}
	t.log.Debug().Strs("argv", t.argv).Int("pid", cmd.Process.Pid).Msg("agent trigger launched")
	return cmd.Process.Release()
}

// FromCommand builds the right trigger for a config value: an empty
// command means nobody to wake.
func FromCommand(argv []string, log *zerolog.Logger) Trigger {
	if len(argv) == 0 {
		return Noop{}
	}
	return NewExec(argv, log)
}
