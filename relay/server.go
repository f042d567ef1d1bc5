// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/paseo-dev/paseo/lib/clock"
	"github.com/paseo-dev/paseo/lib/version"
	"github.com/paseo-dev/paseo/lib/wsconn"
)

// ServerConfig configures a [Server].
type ServerConfig struct {
	// Path is the WebSocket endpoint. Default: /ws
	Path string

	// Hibernating selects the [HibernatingRegistry], which rebuilds
	// each session from socket attachments on every event. Otherwise
	// sessions live in a [MemoryRegistry].
	Hibernating bool

	// Pending buffers frames for clients without a data socket.
	// Default: a [MemoryPending] with [DefaultPendingLimit].
	Pending PendingStore

	SyncDelay  time.Duration
	CloseDelay time.Duration

	// Conn tunes every accepted socket.
	Conn wsconn.Config

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server accepts relay sockets over HTTP and feeds their events to a
// [Router]. It also serves GET /healthz.
type Server struct {
	router   *Router
	clock    clock.Clock
	logger   *slog.Logger
	path     string
	conn     wsconn.Config
	upgrader websocket.Upgrader

	mu           sync.Mutex
	sockets      map[*serverSocket]struct{}
	shuttingDown bool
	active       sync.WaitGroup
}

// serverSocket is an accepted connection with its identity attached.
type serverSocket struct {
	conn       *wsconn.Conn
	attachment []byte

	// released is guarded by Server.mu.
	released bool
}

func (socket *serverSocket) Send(frame Frame) error       { return socket.conn.Send(frame) }
func (socket *serverSocket) Close(code int, reason string) { socket.conn.Close(code, reason) }
func (socket *serverSocket) Attachment() []byte            { return socket.attachment }

// NewServer returns a server with its router.
func NewServer(config ServerConfig) *Server {
	if config.Path == "" {
		config.Path = "/ws"
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	config.Conn.Clock = config.Clock

	server := &Server{
		clock:   config.Clock,
		logger:  config.Logger,
		path:    config.Path,
		conn:    config.Conn,
		sockets: make(map[*serverSocket]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Daemons and clients connect from arbitrary origins; the
			// relay authenticates nothing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	var registry Registry = NewMemoryRegistry()
	if config.Hibernating {
		registry = NewHibernatingRegistry(server)
	}
	server.router = NewRouter(RouterConfig{
		Registry:   registry,
		Pending:    config.Pending,
		Clock:      config.Clock,
		Logger:     config.Logger,
		SyncDelay:  config.SyncDelay,
		CloseDelay: config.CloseDelay,
	})
	return server
}

// Handler returns the HTTP handler for the relay endpoint and
// /healthz.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+server.path, server.serveSocket)
	mux.HandleFunc("GET /healthz", server.serveHealth)
	return mux
}

func (server *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := ParseParams(r.URL.Query())
	if err != nil {
		var paramError *ParamError
		if errors.As(err, &paramError) {
			http.Error(w, paramError.Err.Error(), paramError.Status)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity.CreatedAt = server.clock.Now()
	attachment, err := EncodeIdentity(identity)
	if err != nil {
		server.logger.Error("encoding identity failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	raw, err := server.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		server.logger.Debug("upgrade failed", "error", err)
		return
	}

	socket := &serverSocket{conn: wsconn.New(raw, server.conn), attachment: attachment}
	if !server.track(socket) {
		socket.Close(CloseGoingAway, ReasonShuttingDown)
		return
	}
	defer server.untrack(socket)

	server.router.Connect(socket)
	err = socket.conn.Run(func(frame Frame) {
		server.router.Message(socket, frame)
	})
	server.logger.Debug("socket read loop ended",
		"server_id", identity.ServerID, "role", identity.Tag(), "code", wsconn.CloseCode(err))
	server.router.Disconnect(socket)
}

func (server *Server) track(socket *serverSocket) bool {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.shuttingDown {
		return false
	}
	server.sockets[socket] = struct{}{}
	server.active.Add(1)
	return true
}

func (server *Server) untrack(socket *serverSocket) {
	server.mu.Lock()
	delete(server.sockets, socket)
	server.mu.Unlock()
	server.active.Done()
}

// Sockets lists open sockets the router has not released. It makes
// the server the [Host] of a [HibernatingRegistry].
func (server *Server) Sockets() []Socket {
	server.mu.Lock()
	defer server.mu.Unlock()
	sockets := make([]Socket, 0, len(server.sockets))
	for socket := range server.sockets {
		if !socket.released && !socket.conn.Closed() {
			sockets = append(sockets, socket)
		}
	}
	return sockets
}

// Release marks socket as gone for the router.
func (server *Server) Release(socket Socket) bool {
	accepted, ok := socket.(*serverSocket)
	if !ok {
		return false
	}
	server.mu.Lock()
	defer server.mu.Unlock()
	if _, tracked := server.sockets[accepted]; !tracked || accepted.released {
		return false
	}
	accepted.released = true
	return true
}

// HealthStatus is the body of GET /healthz.
type HealthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
	Sockets  int    `json:"sockets"`
}

// Health reports the current session and socket counts.
func (server *Server) Health() HealthStatus {
	server.mu.Lock()
	sockets := len(server.sockets)
	shuttingDown := server.shuttingDown
	server.mu.Unlock()

	status := HealthStatus{Status: "ok", Version: version.Short(), Sessions: server.router.Sessions(), Sockets: sockets}
	if shuttingDown {
		status.Status = "shutting_down"
	}
	return status
}

func (server *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	status := server.Health()
	body, err := sonic.ConfigStd.Marshal(status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write(body)
}

// Shutdown refuses new sockets, closes every open socket with 1001,
// and waits for their read loops to finish or ctx to end.
func (server *Server) Shutdown(ctx context.Context) error {
	server.mu.Lock()
	server.shuttingDown = true
	sockets := make([]*serverSocket, 0, len(server.sockets))
	for socket := range server.sockets {
		sockets = append(sockets, socket)
	}
	server.mu.Unlock()

	for _, socket := range sockets {
		socket.Close(CloseGoingAway, ReasonShuttingDown)
	}

	finished := make(chan struct{})
	go func() {
		server.active.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
