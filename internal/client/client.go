// Package client is the public entry point for job control. A Client wraps
// exactly one backend, chosen at construction: in-process against the
// native service, or remote through the agent. Every operation is
// synchronous; Monitor is the only piece meant to run concurrently with
// other caller activity.
package client

import (
	"context"

	"github.com/rs/zerolog"

	"transfer-agent/internal/backend"
	"transfer-agent/internal/config"
	"transfer-agent/internal/domain/model"
	"transfer-agent/internal/native"
	"transfer-agent/internal/trigger"
)

type Client struct {
	backend backend.Backend
	cfg     config.ClientConfig
	log     *zerolog.Logger
}

// NewInProcess acts directly as the calling user against svc.
func NewInProcess(svc native.Service, cfg config.ClientConfig, log *zerolog.Logger) *Client {
	return &Client{backend: backend.NewLocal(svc, log), cfg: cfg, log: log}
}

// NewRemote dispatches through the agent at cfg.AgentAddr, waking it via
// cfg.TriggerCommand when the first dial fails.
func NewRemote(cfg config.ClientConfig, log *zerolog.Logger) *Client {
	trig := trigger.FromCommand(cfg.TriggerCommand, log)
	return &Client{backend: backend.NewRemote(cfg, trig, log), cfg: cfg, log: log}
}

// NewWithBackend wires an explicit backend; tests use this.
func NewWithBackend(b backend.Backend, cfg config.ClientConfig, log *zerolog.Logger) *Client {
	return &Client{backend: b, cfg: cfg, log: log}
}

func (c *Client) CreateJob(ctx context.Context, displayName string, dir model.Direction) (*backend.JobHandle, error) {
	return c.backend.CreateJob(ctx, displayName, dir)
}

func (c *Client) AddFile(ctx context.Context, h *backend.JobHandle, source, destination string) error {
	return c.backend.AddFile(ctx, h, source, destination)
}

func (c *Client) Start(ctx context.Context, h *backend.JobHandle) error {
	return c.backend.Start(ctx, h)
}

func (c *Client) Suspend(ctx context.Context, h *backend.JobHandle) error {
	return c.backend.Suspend(ctx, h)
}

func (c *Client) Resume(ctx context.Context, h *backend.JobHandle) error {
	return c.backend.Resume(ctx, h)
}

func (c *Client) Cancel(ctx context.Context, h *backend.JobHandle) error {
	return c.backend.Cancel(ctx, h)
}

func (c *Client) Complete(ctx context.Context, h *backend.JobHandle) error {
	return c.backend.Complete(ctx, h)
}

func (c *Client) SetPriority(ctx context.Context, h *backend.JobHandle, foreground bool) error {
	return c.backend.SetPriority(ctx, h, foreground)
}

func (c *Client) SetCredentials(ctx context.Context, h *backend.JobHandle, cred model.Credential) error {
	return c.backend.SetCredentials(ctx, h, cred)
}

func (c *Client) GetStatus(ctx context.Context, h *backend.JobHandle) (model.JobSnapshot, error) {
	return c.backend.GetStatus(ctx, h)
}

func (c *Client) Close() error { return c.backend.Close() }
