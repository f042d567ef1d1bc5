// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/paseo-dev/paseo/lib/clock"
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

var errFakeSendFailed = errors.New("fake send failed")

// fakeSocket records what the router does to it.
type fakeSocket struct {
	attachment []byte

	mu          sync.Mutex
	sent        []Frame
	closed      bool
	closeCode   int
	closeReason string
	failSends   bool
}

func (socket *fakeSocket) Send(frame Frame) error {
	socket.mu.Lock()
	defer socket.mu.Unlock()
	if socket.closed || socket.failSends {
		return errFakeSendFailed
	}
	socket.sent = append(socket.sent, frame)
	return nil
}

func (socket *fakeSocket) Close(code int, reason string) {
	socket.mu.Lock()
	defer socket.mu.Unlock()
	if socket.closed {
		return
	}
	socket.closed = true
	socket.closeCode = code
	socket.closeReason = reason
}

func (socket *fakeSocket) Attachment() []byte { return socket.attachment }

func (socket *fakeSocket) isClosed() (bool, int, string) {
	socket.mu.Lock()
	defer socket.mu.Unlock()
	return socket.closed, socket.closeCode, socket.closeReason
}

func (socket *fakeSocket) frames() []Frame {
	socket.mu.Lock()
	defer socket.mu.Unlock()
	return slices.Clone(socket.sent)
}

func (socket *fakeSocket) payloads() []string {
	var payloads []string
	for _, frame := range socket.frames() {
		payloads = append(payloads, string(frame.Data))
	}
	return payloads
}

// controlMessages decodes every frame sent to a control socket.
func (socket *fakeSocket) controlMessages(t *testing.T) []ControlMessage {
	t.Helper()
	var messages []ControlMessage
	for _, frame := range socket.frames() {
		var message ControlMessage
		if err := sonic.ConfigStd.Unmarshal(frame.Data, &message); err != nil {
			t.Fatalf("control frame %q is not a control message: %v", frame.Data, err)
		}
		messages = append(messages, message)
	}
	return messages
}

func countType(messages []ControlMessage, messageType string) int {
	count := 0
	for _, message := range messages {
		if message.Type == messageType {
			count++
		}
	}
	return count
}

// fakeHost is the socket table of a hibernating runtime.
type fakeHost struct {
	mu       sync.Mutex
	sockets  []*fakeSocket
	released map[*fakeSocket]bool
}

func (host *fakeHost) Sockets() []Socket {
	host.mu.Lock()
	defer host.mu.Unlock()
	var sockets []Socket
	for _, socket := range host.sockets {
		if closed, _, _ := socket.isClosed(); !closed && !host.released[socket] {
			sockets = append(sockets, socket)
		}
	}
	return sockets
}

func (host *fakeHost) Release(socket Socket) bool {
	fake := socket.(*fakeSocket)
	host.mu.Lock()
	defer host.mu.Unlock()
	if host.released[fake] || !slices.Contains(host.sockets, fake) {
		return false
	}
	host.released[fake] = true
	return true
}

func (host *fakeHost) accept(socket *fakeSocket) {
	host.mu.Lock()
	defer host.mu.Unlock()
	host.sockets = append(host.sockets, socket)
}

func (host *fakeHost) forget(socket *fakeSocket) {
	host.mu.Lock()
	defer host.mu.Unlock()
	host.sockets = slices.DeleteFunc(host.sockets, func(candidate *fakeSocket) bool { return candidate == socket })
	delete(host.released, socket)
}

// harness drives a router the way a transport would.
type harness struct {
	t       *testing.T
	router  *Router
	clock   *clock.FakeClock
	pending *MemoryPending
	host    *fakeHost
}

type registryKind string

const (
	memoryRegistry      registryKind = "memory"
	hibernatingRegistry registryKind = "hibernating"
)

var registryKinds = []registryKind{memoryRegistry, hibernatingRegistry}

func newHarness(t *testing.T, kind registryKind) *harness {
	t.Helper()
	h := &harness{t: t, clock: clock.Fake(testEpoch), pending: NewMemoryPending(0)}
	var registry Registry = NewMemoryRegistry()
	if kind == hibernatingRegistry {
		h.host = &fakeHost{released: make(map[*fakeSocket]bool)}
		registry = NewHibernatingRegistry(h.host)
	}
	h.router = NewRouter(RouterConfig{
		Registry: registry,
		Pending:  h.pending,
		Clock:    h.clock,
	})
	return h
}

func (h *harness) open(identity Identity) *fakeSocket {
	h.t.Helper()
	identity.CreatedAt = h.clock.Now()
	attachment, err := EncodeIdentity(identity)
	if err != nil {
		h.t.Fatalf("EncodeIdentity: %v", err)
	}
	socket := &fakeSocket{attachment: attachment}
	if h.host != nil {
		h.host.accept(socket)
	}
	h.router.Connect(socket)
	return socket
}

func (h *harness) control(serverID string) *fakeSocket {
	return h.open(Identity{ServerID: serverID, Role: RoleServer, Protocol: 2})
}

func (h *harness) data(serverID, clientID string) *fakeSocket {
	return h.open(Identity{ServerID: serverID, Role: RoleServer, ClientID: clientID, Protocol: 2})
}

func (h *harness) client(serverID, clientID string) *fakeSocket {
	return h.open(Identity{ServerID: serverID, Role: RoleClient, ClientID: clientID, Protocol: 2})
}

// disconnect reports that the peer of socket went away.
func (h *harness) disconnect(socket *fakeSocket) {
	socket.Close(1000, "")
	h.router.Disconnect(socket)
	if h.host != nil {
		h.host.forget(socket)
	}
}

func (h *harness) send(socket *fakeSocket, payload string) {
	h.router.Message(socket, Frame{Data: []byte(payload)})
}

func requireClosedWith(t *testing.T, socket *fakeSocket, code int, reason string) {
	t.Helper()
	closed, gotCode, gotReason := socket.isClosed()
	if !closed {
		t.Fatalf("socket open, want closed with %d %q", code, reason)
	}
	if gotCode != code || gotReason != reason {
		t.Errorf("close: got %d %q, want %d %q", gotCode, gotReason, code, reason)
	}
}

func requireOpen(t *testing.T, socket *fakeSocket) {
	t.Helper()
	if closed, code, reason := socket.isClosed(); closed {
		t.Fatalf("socket closed with %d %q, want open", code, reason)
	}
}
