// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"slices"
	"sync"
)

// Registry tracks which sockets are open in which session.
type Registry interface {
	// Add records an accepted socket.
	Add(socket Socket, identity Identity)

	// Remove forgets socket and reports whether it was registered.
	// The router acts on a socket's departure only when Remove
	// returns true, so a socket is never handled as gone twice.
	Remove(socket Socket) bool

	// Session returns a snapshot of the open sockets of serverID, or
	// nil if there are none.
	Session(serverID string) *Session

	// Len returns the number of sessions with at least one socket.
	Len() int
}

// Session is a snapshot of one server's sockets.
type Session struct {
	ServerID string
	sockets  map[Socket]Identity
}

func newSession(serverID string) *Session {
	return &Session{ServerID: serverID, sockets: make(map[Socket]Identity)}
}

func (session *Session) clone() *Session {
	copied := newSession(session.ServerID)
	for socket, identity := range session.sockets {
		copied.sockets[socket] = identity
	}
	return copied
}

func (session *Session) find(match func(Identity) bool) []Socket {
	if session == nil {
		return nil
	}
	var sockets []Socket
	for socket, identity := range session.sockets {
		if match(identity) {
			sockets = append(sockets, socket)
		}
	}
	return sockets
}

// Len returns the number of sockets in the session.
func (session *Session) Len() int {
	if session == nil {
		return 0
	}
	return len(session.sockets)
}

// Controls returns the control sockets. Outside the instant of a
// replacement there is at most one.
func (session *Session) Controls() []Socket {
	return session.find(func(identity Identity) bool { return identity.Kind() == KindControl })
}

// Clients returns every client socket for clientID.
func (session *Session) Clients(clientID string) []Socket {
	return session.find(func(identity Identity) bool {
		return identity.Kind() == KindClient && identity.ClientID == clientID
	})
}

// Data returns the data sockets for clientID.
func (session *Session) Data(clientID string) []Socket {
	return session.find(func(identity Identity) bool {
		return identity.Kind() == KindData && identity.ClientID == clientID
	})
}

// ClientIDs returns the sorted IDs of clients with at least one open
// socket.
func (session *Session) ClientIDs() []string {
	var ids []string
	for _, socket := range session.find(func(identity Identity) bool { return identity.Kind() == KindClient }) {
		ids = append(ids, session.sockets[socket].ClientID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Legacy returns the version 1 sockets of the given kind.
func (session *Session) Legacy(kind Kind) []Socket {
	return session.find(func(identity Identity) bool { return identity.Kind() == kind })
}

// MemoryRegistry keeps sessions in process memory. A session is
// deleted as soon as its last socket is removed.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	owners   map[Socket]string
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]*Session),
		owners:   make(map[Socket]string),
	}
}

func (registry *MemoryRegistry) Add(socket Socket, identity Identity) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	session := registry.sessions[identity.ServerID]
	if session == nil {
		session = newSession(identity.ServerID)
		registry.sessions[identity.ServerID] = session
	}
	session.sockets[socket] = identity
	registry.owners[socket] = identity.ServerID
}

func (registry *MemoryRegistry) Remove(socket Socket) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	serverID, ok := registry.owners[socket]
	if !ok {
		return false
	}
	delete(registry.owners, socket)
	session := registry.sessions[serverID]
	delete(session.sockets, socket)
	if len(session.sockets) == 0 {
		delete(registry.sessions, serverID)
	}
	return true
}

func (registry *MemoryRegistry) Session(serverID string) *Session {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	session := registry.sessions[serverID]
	if session == nil {
		return nil
	}
	return session.clone()
}

func (registry *MemoryRegistry) Len() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.sessions)
}

// Host is the socket table of a runtime that may discard process state
// between events. Only the host knows which sockets are open; their
// identities live in the attachments.
type Host interface {
	// Sockets lists the open sockets that have not been released.
	Sockets() []Socket

	// Release marks socket as gone and reports whether it was listed.
	Release(socket Socket) bool
}

// HibernatingRegistry derives every session from the host's socket
// list on each call. It holds no state of its own.
type HibernatingRegistry struct {
	host Host
}

// NewHibernatingRegistry returns a registry backed by host.
func NewHibernatingRegistry(host Host) *HibernatingRegistry {
	return &HibernatingRegistry{host: host}
}

// Add is a no-op: the host lists a socket from the moment it is
// accepted.
func (registry *HibernatingRegistry) Add(Socket, Identity) {}

func (registry *HibernatingRegistry) Remove(socket Socket) bool {
	return registry.host.Release(socket)
}

func (registry *HibernatingRegistry) Session(serverID string) *Session {
	var session *Session
	for _, socket := range registry.host.Sockets() {
		identity, err := DecodeIdentity(socket.Attachment())
		if err != nil || identity.ServerID != serverID {
			continue
		}
		if session == nil {
			session = newSession(serverID)
		}
		session.sockets[socket] = identity
	}
	return session
}

func (registry *HibernatingRegistry) Len() int {
	servers := make(map[string]struct{})
	for _, socket := range registry.host.Sockets() {
		if identity, err := DecodeIdentity(socket.Attachment()); err == nil {
			servers[identity.ServerID] = struct{}{}
		}
	}
	return len(servers)
}
