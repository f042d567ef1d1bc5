// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
}

func TestLoadFileYAML(t *testing.T) {
	t.Setenv("HOME", "/home/operator")

	path := filepath.Join(t.TempDir(), "paseo.yaml")
	content := `
relay:
  listen: 127.0.0.1:9000
  adapter: hibernating
  sync_delay: 3s
  pending_compression: lz4
daemon:
  server_id: laptop
  events_file: ${HOME}/agents/events.jsonl
  reconnect: [500ms, 4s]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Relay.Listen != "127.0.0.1:9000" || cfg.Relay.Adapter != AdapterHibernating {
		t.Errorf("relay: got listen %q adapter %q", cfg.Relay.Listen, cfg.Relay.Adapter)
	}
	if cfg.Relay.SyncDelay != 3*time.Second {
		t.Errorf("sync_delay: got %v, want 3s", cfg.Relay.SyncDelay)
	}
	if cfg.Relay.CloseDelay != 5*time.Second {
		t.Errorf("close_delay: got %v, want the 5s default", cfg.Relay.CloseDelay)
	}
	if cfg.Relay.PendingDir != "/home/operator/.paseo/relay-pending" {
		t.Errorf("pending_dir: got %q", cfg.Relay.PendingDir)
	}
	if cfg.Daemon.EventsFile != "/home/operator/agents/events.jsonl" {
		t.Errorf("events_file: got %q", cfg.Daemon.EventsFile)
	}
	if want := []time.Duration{500 * time.Millisecond, 4 * time.Second}; !slices.Equal(cfg.Daemon.Reconnect, want) {
		t.Errorf("reconnect: got %v, want %v", cfg.Daemon.Reconnect, want)
	}
}

func TestParseJSONC(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		// local relay for development
		"relay": {
			"path": "/relay",
			"ping_period": "15s",
		},
		"daemon": {"server_id": "desk", "default_limit": 20},
	}`)

	cfg, err := Parse(data, ".jsonc")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Relay.Path != "/relay" || cfg.Relay.PingPeriod != 15*time.Second {
		t.Errorf("relay: got path %q ping %v", cfg.Relay.Path, cfg.Relay.PingPeriod)
	}
	if cfg.Daemon.ServerID != "desk" || cfg.Daemon.DefaultLimit != 20 {
		t.Errorf("daemon: got %+v", cfg.Daemon)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Relay.Adapter = "durable-object"
	cfg.Relay.PendingCompression = "gzip"
	cfg.Relay.PendingLimit = 0
	cfg.Daemon.Reconnect = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, field := range []string{"relay.adapter", "relay.pending_compression", "relay.pending_limit", "daemon.reconnect"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error does not mention %s: %v", field, err)
		}
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv(EnvVar, "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), EnvVar) {
		t.Errorf("Load: got %v, want an error naming %s", err, EnvVar)
	}
}

func TestExpandVarsDefault(t *testing.T) {
	t.Setenv("PASEO_TEST_UNSET", "")

	if got := expandVars("${PASEO_TEST_UNSET:-/var/lib/paseo}/events.jsonl"); got != "/var/lib/paseo/events.jsonl" {
		t.Errorf("expandVars: got %q", got)
	}
}
