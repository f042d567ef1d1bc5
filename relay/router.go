// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/paseo-dev/paseo/lib/clock"
)

// Control-channel message types.
const (
	ControlSync               = "sync"
	ControlClientConnected    = "client_connected"
	ControlClientDisconnected = "client_disconnected"
	ControlPing               = "ping"
	ControlPong               = "pong"
)

// ControlMessage is a JSON message on the control socket.
type ControlMessage struct {
	Type      string   `json:"type"`
	ClientID  string   `json:"clientId,omitempty"`
	ClientIDs []string `json:"clientIds,omitempty"`
	TS        int64    `json:"ts,omitempty"`
}

// Default health check delays.
const (
	DefaultSyncDelay  = 10 * time.Second
	DefaultCloseDelay = 5 * time.Second
)

// RouterConfig configures a [Router].
type RouterConfig struct {
	Registry Registry
	Pending  PendingStore
	Clock    clock.Clock
	Logger   *slog.Logger

	// SyncDelay is how long after a client connects the control socket
	// is nudged if no data socket has appeared. CloseDelay is how long
	// after the nudge it is closed.
	SyncDelay  time.Duration
	CloseDelay time.Duration
}

// Router applies connect, message, and disconnect events to session
// tables. Events for one session are handled one at a time; different
// sessions never share a lock.
type Router struct {
	registry   Registry
	pending    PendingStore
	clock      clock.Clock
	logger     *slog.Logger
	syncDelay  time.Duration
	closeDelay time.Duration

	// mu guards locks and checks. It is never held while a session
	// lock is being acquired.
	mu     sync.Mutex
	locks  map[string]*sessionLock
	checks map[PendingKey]*healthCheck
	nextID uint64
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type healthCheck struct {
	id    uint64
	timer clock.Timer
}

// NewRouter returns a router. Nil fields of config get in-memory
// defaults and the real clock.
func NewRouter(config RouterConfig) *Router {
	router := &Router{
		registry:   config.Registry,
		pending:    config.Pending,
		clock:      config.Clock,
		logger:     config.Logger,
		syncDelay:  config.SyncDelay,
		closeDelay: config.CloseDelay,
		locks:      make(map[string]*sessionLock),
		checks:     make(map[PendingKey]*healthCheck),
	}
	if router.registry == nil {
		router.registry = NewMemoryRegistry()
	}
	if router.pending == nil {
		router.pending = NewMemoryPending(DefaultPendingLimit)
	}
	if router.clock == nil {
		router.clock = clock.Real()
	}
	if router.logger == nil {
		router.logger = slog.New(slog.DiscardHandler)
	}
	if router.syncDelay <= 0 {
		router.syncDelay = DefaultSyncDelay
	}
	if router.closeDelay <= 0 {
		router.closeDelay = DefaultCloseDelay
	}
	return router
}

// Sessions returns the number of live sessions.
func (router *Router) Sessions() int { return router.registry.Len() }

// Connect handles a newly accepted socket. Its identity is read from
// the attachment.
func (router *Router) Connect(socket Socket) {
	identity, ok := router.identify(socket)
	if !ok {
		return
	}
	unlock := router.lockSession(identity.ServerID)
	defer unlock()

	router.registry.Add(socket, identity)
	session := router.registry.Session(identity.ServerID)
	logger := router.logger.With("server_id", identity.ServerID, "role", identity.Tag())
	logger.Debug("socket connected")

	switch identity.Kind() {
	case KindControl:
		router.replaceLocked(session.Controls(), socket)
		if clientIDs := session.ClientIDs(); len(clientIDs) > 0 {
			router.sendControlLocked(identity.ServerID, ControlMessage{Type: ControlSync, ClientIDs: clientIDs})
		}

	case KindData:
		router.replaceLocked(session.Data(identity.ClientID), socket)
		key := PendingKey{ServerID: identity.ServerID, ClientID: identity.ClientID}
		router.stopHealthCheck(key)
		frames, err := router.pending.Drain(key)
		if err != nil {
			logger.Error("draining pending frames failed", "error", err)
		}
		for _, frame := range frames {
			if err := socket.Send(frame); err != nil {
				logger.Warn("flushing pending frame failed", "error", err)
				router.closeLocked(socket, CloseInternalError, ReasonSendFailed)
				return
			}
		}
		if len(frames) > 0 {
			logger.Debug("flushed pending frames", "count", len(frames))
		}

	case KindClient:
		router.sendControlLocked(identity.ServerID, ControlMessage{Type: ControlClientConnected, ClientID: identity.ClientID})
		router.startHealthCheck(PendingKey{ServerID: identity.ServerID, ClientID: identity.ClientID})

	case KindLegacyServer:
		router.replaceLocked(session.Legacy(KindLegacyServer), socket)
	}
}

// Message routes one frame received on socket.
func (router *Router) Message(socket Socket, frame Frame) {
	identity, ok := router.identify(socket)
	if !ok {
		return
	}
	unlock := router.lockSession(identity.ServerID)
	defer unlock()

	session := router.registry.Session(identity.ServerID)
	switch identity.Kind() {
	case KindClient:
		targets := session.Data(identity.ClientID)
		if len(targets) == 0 {
			key := PendingKey{ServerID: identity.ServerID, ClientID: identity.ClientID}
			if err := router.pending.Push(key, frame); err != nil {
				router.logger.Error("buffering frame failed",
					"server_id", identity.ServerID, "client_id", identity.ClientID, "error", err)
			}
			return
		}
		router.forwardLocked(targets, frame)

	case KindData:
		router.forwardLocked(session.Clients(identity.ClientID), frame)

	case KindControl:
		router.handleControlLocked(socket, identity, frame)

	case KindLegacyServer:
		router.forwardLocked(session.Legacy(KindLegacyClient), frame)

	case KindLegacyClient:
		router.forwardLocked(session.Legacy(KindLegacyServer), frame)
	}
}

// Disconnect handles a socket the peer closed or that failed. Sockets
// the router closed itself were already accounted for and are ignored.
func (router *Router) Disconnect(socket Socket) {
	identity, ok := router.identify(socket)
	if !ok {
		return
	}
	unlock := router.lockSession(identity.ServerID)
	defer unlock()

	if router.registry.Remove(socket) {
		router.logger.Debug("socket disconnected", "server_id", identity.ServerID, "role", identity.Tag())
		router.departedLocked(identity)
	}
}

func (router *Router) identify(socket Socket) (Identity, bool) {
	identity, err := DecodeIdentity(socket.Attachment())
	if err != nil {
		router.logger.Error("socket without a usable identity", "error", err)
		socket.Close(CloseInternalError, "Missing identity")
		return Identity{}, false
	}
	return identity, true
}

// replaceLocked closes every socket in existing except current.
func (router *Router) replaceLocked(existing []Socket, current Socket) {
	for _, socket := range existing {
		if socket != current {
			router.closeLocked(socket, ClosePolicyViolation, ReasonReplaced)
		}
	}
}

// closeLocked closes socket and, if it was still registered, applies
// the consequences of its departure.
func (router *Router) closeLocked(socket Socket, code int, reason string) {
	removed := router.registry.Remove(socket)
	socket.Close(code, reason)
	if !removed {
		return
	}
	if identity, err := DecodeIdentity(socket.Attachment()); err == nil {
		router.logger.Info("closed socket",
			"server_id", identity.ServerID, "role", identity.Tag(), "code", code, "reason", reason)
		router.departedLocked(identity)
	}
}

// departedLocked applies the consequences of a socket leaving the
// session. The socket is already out of the registry.
func (router *Router) departedLocked(identity Identity) {
	session := router.registry.Session(identity.ServerID)

	switch identity.Kind() {
	case KindClient:
		if len(session.Clients(identity.ClientID)) > 0 {
			return
		}
		key := PendingKey{ServerID: identity.ServerID, ClientID: identity.ClientID}
		router.stopHealthCheck(key)
		if err := router.pending.Drop(key); err != nil {
			router.logger.Error("dropping pending frames failed",
				"server_id", identity.ServerID, "client_id", identity.ClientID, "error", err)
		}
		for _, data := range session.Data(identity.ClientID) {
			router.closeLocked(data, CloseGoingAway, ReasonClientDisconnected)
		}
		router.sendControlLocked(identity.ServerID, ControlMessage{Type: ControlClientDisconnected, ClientID: identity.ClientID})

	case KindData:
		// A data socket that was replaced leaves its successor in
		// place; the clients stay.
		if len(session.Data(identity.ClientID)) > 0 {
			return
		}
		for _, client := range session.Clients(identity.ClientID) {
			router.closeLocked(client, CloseServiceRestarting, ReasonServerDisconnected)
		}

	case KindLegacyServer:
		if len(session.Legacy(KindLegacyServer)) > 0 {
			return
		}
		for _, client := range session.Legacy(KindLegacyClient) {
			router.closeLocked(client, CloseServiceRestarting, ReasonServerDisconnected)
		}
	}
}

func (router *Router) forwardLocked(targets []Socket, frame Frame) {
	for _, target := range targets {
		if err := target.Send(frame); err != nil {
			router.logger.Warn("forwarding frame failed", "error", err)
			router.closeLocked(target, CloseInternalError, ReasonSendFailed)
		}
	}
}

// sendControlLocked sends message to the session's control socket, if
// one is connected. A control socket that cannot take the message is
// closed so the daemon reconnects.
func (router *Router) sendControlLocked(serverID string, message ControlMessage) {
	data, err := sonic.ConfigStd.Marshal(message)
	if err != nil {
		router.logger.Error("encoding control message failed", "type", message.Type, "error", err)
		return
	}
	for _, control := range router.registry.Session(serverID).Controls() {
		if err := control.Send(Frame{Data: data}); err != nil {
			router.logger.Warn("control send failed", "server_id", serverID, "type", message.Type, "error", err)
			router.closeLocked(control, CloseInternalError, ReasonControlSendFailed)
		}
	}
}

func (router *Router) handleControlLocked(socket Socket, identity Identity, frame Frame) {
	if frame.Binary {
		return
	}
	var message ControlMessage
	if err := sonic.ConfigStd.Unmarshal(frame.Data, &message); err != nil {
		router.logger.Debug("ignoring malformed control message", "server_id", identity.ServerID, "error", err)
		return
	}
	if message.Type != ControlPing {
		return
	}
	pong, err := sonic.ConfigStd.Marshal(ControlMessage{Type: ControlPong, TS: router.clock.Now().UnixMilli()})
	if err != nil {
		return
	}
	if err := socket.Send(Frame{Data: pong}); err != nil {
		router.closeLocked(socket, CloseInternalError, ReasonControlSendFailed)
	}
}

// lockSession acquires the lock for serverID and returns its release.
// Lock entries are reference counted so idle sessions leave nothing
// behind.
func (router *Router) lockSession(serverID string) func() {
	router.mu.Lock()
	entry := router.locks[serverID]
	if entry == nil {
		entry = &sessionLock{}
		router.locks[serverID] = entry
	}
	entry.refs++
	router.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		router.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(router.locks, serverID)
		}
		router.mu.Unlock()
	}
}
