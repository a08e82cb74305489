package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// AgentConfig configures the privileged agent daemon.
type AgentConfig struct {
	// Network is "unix" or "tcp"; Listen is the socket path or host:port.
	Network string `yaml:"network"`
	Listen  string `yaml:"listen"`
	// AuthSecret signs and verifies the per-connection caller token.
	AuthSecret string `yaml:"auth_secret"`
	// AdminPort serves /healthz and /metrics.
	AdminPort int `yaml:"admin_port"`
	// StorePath is the simulated service's job store directory;
	// empty means in-memory.
	StorePath string `yaml:"store_path"`
	// TickInterval is the simulated transfer clock period.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// ClientConfig configures remote backends.
type ClientConfig struct {
	Network    string `yaml:"network"`
	AgentAddr  string `yaml:"agent_addr"`
	AuthSecret string `yaml:"auth_secret"`

	// TriggerCommand is executed once when the first dial fails, to wake
	// an on-demand agent. Empty disables triggering.
	TriggerCommand []string `yaml:"trigger_command"`

	// Connection bootstrap: retry with exponential backoff starting at
	// ConnectBackoff, at most ConnectAttempts dials, all within
	// ConnectDeadline. The very first remote call pays this cold-start
	// cost, so the deadline is deliberately configurable.
	ConnectBackoff  time.Duration `yaml:"connect_backoff"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectDeadline time.Duration `yaml:"connect_deadline"`

	// CallTimeout bounds each request/response round trip.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Monitor loop: poll period and how many consecutive transport
	// failures to absorb before giving up on the stream.
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollFailures int           `yaml:"max_poll_failures"`
}

type Config struct {
	Log    LogConfig    `yaml:"log"`
	Agent  AgentConfig  `yaml:"agent"`
	Client ClientConfig `yaml:"client"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	// Minimal validation
	if cfg.Agent.Network != "unix" && cfg.Agent.Network != "tcp" {
		return nil, fmt.Errorf("agent.network must be unix or tcp, got %q", cfg.Agent.Network)
	}
	if cfg.Agent.Listen == "" {
		return nil, errors.New("agent.listen is required")
	}
	if cfg.Agent.AuthSecret == "" {
		return nil, errors.New("agent.auth_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero values in place; exported so tests can build
// configs without a file.
func (cfg *Config) ApplyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Agent.Network == "" {
		cfg.Agent.Network = "unix"
	}
	if cfg.Agent.TickInterval <= 0 {
		cfg.Agent.TickInterval = 500 * time.Millisecond
	}
	if cfg.Client.Network == "" {
		cfg.Client.Network = cfg.Agent.Network
	}
	if cfg.Client.AgentAddr == "" {
		cfg.Client.AgentAddr = cfg.Agent.Listen
	}
	if cfg.Client.AuthSecret == "" {
		cfg.Client.AuthSecret = cfg.Agent.AuthSecret
	}
	if cfg.Client.ConnectBackoff <= 0 {
		cfg.Client.ConnectBackoff = 50 * time.Millisecond
	}
	if cfg.Client.ConnectAttempts <= 0 {
		cfg.Client.ConnectAttempts = 8
	}
	if cfg.Client.ConnectDeadline <= 0 {
		cfg.Client.ConnectDeadline = 10 * time.Second
	}
	if cfg.Client.CallTimeout <= 0 {
		cfg.Client.CallTimeout = 30 * time.Second
	}
	if cfg.Client.PollInterval <= 0 {
		cfg.Client.PollInterval = time.Second
	}
	if cfg.Client.MaxPollFailures <= 0 {
		cfg.Client.MaxPollFailures = 5
	}
}
