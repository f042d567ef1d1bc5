// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable read by [Load].
const EnvVar = "PASEO_CONFIG"

// Adapter modes for the relay session table.
const (
	AdapterMemory      = "memory"
	AdapterHibernating = "hibernating"
)

// Config is the top-level configuration file.
type Config struct {
	Relay  RelayConfig  `yaml:"relay"`
	Daemon DaemonConfig `yaml:"daemon"`
}

// RelayConfig configures paseo-relay.
type RelayConfig struct {
	// Listen is the TCP address the HTTP server binds.
	// Default: :8787
	Listen string `yaml:"listen"`

	// Path is the WebSocket endpoint path.
	// Default: /ws
	Path string `yaml:"path"`

	// Adapter selects how session tables are held: "memory" keeps them
	// in process; "hibernating" rebuilds them from per-socket identity
	// on every event and stores pending frames in the durable queue.
	// Default: memory
	Adapter string `yaml:"adapter"`

	// SyncDelay is how long a client may wait for its data socket
	// before the control socket is nudged with a sync message.
	// Default: 10s
	SyncDelay time.Duration `yaml:"sync_delay"`

	// CloseDelay is how long after the nudge the relay waits before
	// closing an unresponsive control socket.
	// Default: 5s
	CloseDelay time.Duration `yaml:"close_delay"`

	// PendingLimit caps frames buffered per client while its data
	// socket is absent. The oldest frame is discarded first.
	// Default: 200
	PendingLimit int `yaml:"pending_limit"`

	// PendingCompression is the durable queue codec: zstd, lz4, or none.
	// Default: zstd
	PendingCompression string `yaml:"pending_compression"`

	// PendingDir holds the durable queue in hibernating mode, one file
	// per client buffer.
	// Default: ${HOME}/.paseo/relay-pending
	PendingDir string `yaml:"pending_dir"`

	// PingPeriod is the WebSocket keepalive interval. Peers that miss
	// two periods are dropped.
	// Default: 30s
	PingPeriod time.Duration `yaml:"ping_period"`

	// WriteTimeout bounds each frame write.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxFrameBytes bounds an inbound frame.
	// Default: 4194304
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`
}

// DaemonConfig configures paseo-daemon.
type DaemonConfig struct {
	// RelayURL is the relay WebSocket endpoint.
	// Default: ws://127.0.0.1:8787/ws
	RelayURL string `yaml:"relay_url"`

	// ServerID names this daemon's session on the relay. Required.
	ServerID string `yaml:"server_id"`

	// EventsFile is the JSONL file the daemon tails for agent events.
	// Default: ${HOME}/.paseo/events.jsonl
	EventsFile string `yaml:"events_file"`

	// Reconnect is the backoff schedule after the control socket
	// drops. The last entry repeats.
	// Default: [1s, 2s, 5s, 10s, 30s]
	Reconnect []time.Duration `yaml:"reconnect"`

	// PingPeriod is the interval between control-channel pings.
	// Default: 20s
	PingPeriod time.Duration `yaml:"ping_period"`

	// DefaultLimit is the window size used when a request omits one.
	// Default: 50
	DefaultLimit int `yaml:"default_limit"`
}

// Default returns the configuration every loaded file is merged over.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Listen:             ":8787",
			Path:               "/ws",
			Adapter:            AdapterMemory,
			SyncDelay:          10 * time.Second,
			CloseDelay:         5 * time.Second,
			PendingLimit:       200,
			PendingCompression: "zstd",
			PendingDir:         "${HOME}/.paseo/relay-pending",
			PingPeriod:         30 * time.Second,
			WriteTimeout:       10 * time.Second,
			MaxFrameBytes:      4 << 20,
		},
		Daemon: DaemonConfig{
			RelayURL:     "ws://127.0.0.1:8787/ws",
			EventsFile:   "${HOME}/.paseo/events.jsonl",
			Reconnect:    []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second},
			PingPeriod:   20 * time.Second,
			DefaultLimit: 50,
		},
	}
}

// Load reads the file named by PASEO_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; set it to the path of your paseo config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads path over [Default], expands path variables, and
// validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over [Default]. ext selects the syntax the same
// way a file extension does for [LoadFile].
func Parse(data []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Relay.PendingDir = expandVars(c.Relay.PendingDir)
	c.Daemon.EventsFile = expandVars(c.Daemon.EventsFile)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} with environment
// values.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{AdapterMemory, AdapterHibernating}, c.Relay.Adapter) {
		errs = append(errs, fmt.Errorf("relay.adapter must be %q or %q, got %q", AdapterMemory, AdapterHibernating, c.Relay.Adapter))
	}
	if !slices.Contains([]string{"zstd", "lz4", "none"}, c.Relay.PendingCompression) {
		errs = append(errs, fmt.Errorf("relay.pending_compression must be zstd, lz4, or none, got %q", c.Relay.PendingCompression))
	}
	if !strings.HasPrefix(c.Relay.Path, "/") {
		errs = append(errs, fmt.Errorf("relay.path must start with /, got %q", c.Relay.Path))
	}
	if c.Relay.Adapter == AdapterHibernating && c.Relay.PendingDir == "" {
		errs = append(errs, errors.New("relay.pending_dir is required with the hibernating adapter"))
	}
	if c.Relay.SyncDelay <= 0 || c.Relay.CloseDelay <= 0 {
		errs = append(errs, errors.New("relay.sync_delay and relay.close_delay must be positive"))
	}
	if c.Relay.PendingLimit <= 0 {
		errs = append(errs, fmt.Errorf("relay.pending_limit must be positive, got %d", c.Relay.PendingLimit))
	}
	if c.Relay.PingPeriod <= 0 || c.Daemon.PingPeriod <= 0 {
		errs = append(errs, errors.New("relay.ping_period and daemon.ping_period must be positive"))
	}
	if len(c.Daemon.Reconnect) == 0 {
		errs = append(errs, errors.New("daemon.reconnect needs at least one delay"))
	}
	if c.Daemon.DefaultLimit <= 0 {
		errs = append(errs, fmt.Errorf("daemon.default_limit must be positive, got %d", c.Daemon.DefaultLimit))
	}

	return errors.Join(errs...)
}
