// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paseo-dev/paseo/lib/config"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	parsed, err := parseFlags([]string{"--config", "/etc/paseo.yaml", "--listen", ":9000", "--adapter", "hibernating", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	want := options{ConfigPath: "/etc/paseo.yaml", Listen: ":9000", Adapter: "hibernating", LogLevel: "debug"}
	if parsed != want {
		t.Errorf("got %+v, want %+v", parsed, want)
	}

	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Error("positional argument: got nil error")
	}
	if _, err := parseFlags([]string{"--listne", ":1"}); err == nil {
		t.Error("unknown flag: got nil error")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Parallel()
	pendingDir := t.TempDir()
	path := writeConfig(t, "relay.yaml", `
relay:
  listen: ":7000"
  sync_delay: 3s
  pending_limit: 20
  pending_dir: `+pendingDir+`
`)

	cfg, err := loadConfig(options{ConfigPath: path})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Listen != ":7000" || cfg.SyncDelay != 3*time.Second || cfg.PendingLimit != 20 {
		t.Errorf("file values: got %+v", cfg)
	}
	if cfg.CloseDelay != 5*time.Second {
		t.Errorf("close delay default: got %v, want 5s", cfg.CloseDelay)
	}

	cfg, err = loadConfig(options{ConfigPath: path, Listen: ":7001", Adapter: config.AdapterHibernating})
	if err != nil {
		t.Fatalf("loadConfig with overrides: %v", err)
	}
	if cfg.Listen != ":7001" || cfg.Adapter != config.AdapterHibernating {
		t.Errorf("overrides: got listen %q adapter %q", cfg.Listen, cfg.Adapter)
	}

	if _, err := loadConfig(options{ConfigPath: path, Adapter: "sqlite"}); err == nil || !strings.Contains(err.Error(), "relay.adapter") {
		t.Errorf("bad adapter: got %v, want relay.adapter error", err)
	}
}

func TestNewServerHibernating(t *testing.T) {
	t.Parallel()
	pendingDir := filepath.Join(t.TempDir(), "pending")
	cfg := config.Default().Relay
	cfg.Adapter = config.AdapterHibernating
	cfg.PendingDir = pendingDir
	cfg.PendingCompression = "lz4"

	server, err := newServer(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if info, err := os.Stat(pendingDir); err != nil || !info.IsDir() {
		t.Errorf("pending dir not created: %v", err)
	}

	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()
	response, err := http.Get(httpServer.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("healthz status: got %d, want 200", response.StatusCode)
	}

	cfg.PendingCompression = "brotli"
	if _, err := newServer(cfg, slog.New(slog.DiscardHandler)); err == nil {
		t.Error("unknown compression: got nil error")
	}
}
