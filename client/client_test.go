// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/paseo-dev/paseo/daemon"
	"github.com/paseo-dev/paseo/lib/testutil"
	"github.com/paseo-dev/paseo/lib/timeline"
	"github.com/paseo-dev/paseo/lib/timelinesync"
	"github.com/paseo-dev/paseo/relay"
)

// startSession runs a relay and a daemon linked to it, and returns the
// daemon's log and the relay URL.
func startSession(t *testing.T) (*daemon.Log, string) {
	t.Helper()
	server := relay.NewServer(relay.ServerConfig{})
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	relayURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"

	history := daemon.NewLog(daemon.LogConfig{})
	link, err := daemon.NewLink(daemon.LinkConfig{RelayURL: relayURL, ServerID: "laptop", Log: history})
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, waitTimeout, "link stopping")
	})
	return history, relayURL
}

func TestClientEndToEnd(t *testing.T) {
	t.Parallel()
	history, relayURL := startSession(t)
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		history.Append("agent", "claude", timeline.Item{Type: timeline.ItemUserMessage, Text: text})
	}

	client, err := Dial(context.Background(), Config{RelayURL: relayURL, ServerID: "laptop", ClientID: "tab"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	runDone := make(chan error, 1)
	go func() { runDone <- client.Run() }()

	agent := client.Timeline("agent")
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := agent.Bootstrap(ctx, 3); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if got := rowSeqs(agent.Rows()); !slices.Equal(got, []int64{3, 4, 5}) {
		t.Errorf("bootstrap rows: got %v, want [3 4 5]", got)
	}
	if cursor := agent.Cursor(); cursor == nil || cursor.Epoch != history.Epoch("agent") {
		t.Errorf("cursor: got %+v, want epoch %s", cursor, history.Epoch("agent"))
	}

	history.Append("agent", "claude", timeline.Item{Type: timeline.ItemAssistantMessage, Text: "live"})
	testutil.RequireEventually(t, waitTimeout, func() bool {
		return slices.Equal(rowSeqs(agent.Rows()), []int64{3, 4, 5, 6})
	}, "live row applied")

	if err := agent.LoadOlder(10); err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	testutil.RequireEventually(t, waitTimeout, func() bool {
		return slices.Equal(rowSeqs(agent.Rows()), []int64{1, 2, 3, 4, 5, 6})
	}, "older rows prepended")

	ghost := client.Timeline("ghost")
	if err := ghost.Bootstrap(ctx, 3); !errors.Is(err, timelinesync.ErrResponseFailed) {
		t.Errorf("Bootstrap of an unknown agent: got %v, want ErrResponseFailed", err)
	}

	client.Close()
	testutil.RequireReceive(t, runDone, waitTimeout, "Run returning")
}

func TestClientCloseRejectsBootstrap(t *testing.T) {
	t.Parallel()
	_, relayURL := startSession(t)

	// No daemon data socket answers for this server ID, so the
	// bootstrap request stays buffered in the relay.
	client, err := Dial(context.Background(), Config{RelayURL: relayURL, ServerID: "elsewhere"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if client.ID() == "" {
		t.Error("client ID not generated")
	}
	runDone := make(chan error, 1)
	go func() { runDone <- client.Run() }()

	result := make(chan error, 1)
	go func() { result <- client.Timeline("agent").Bootstrap(context.Background(), 10) }()
	testutil.RequireEventually(t, waitTimeout, func() bool { return client.registry.Len() == 1 },
		"bootstrap waiting")

	client.Close()
	if err := testutil.RequireReceive(t, result, waitTimeout, "bootstrap"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Bootstrap: got %v, want ErrConnectionClosed", err)
	}
	testutil.RequireReceive(t, runDone, waitTimeout, "Run returning")
}
