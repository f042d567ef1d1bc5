// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/paseo-dev/paseo/lib/clock"
	"github.com/paseo-dev/paseo/lib/timeline"
	"github.com/paseo-dev/paseo/lib/wsconn"
	"github.com/paseo-dev/paseo/relay"
)

// DefaultReconnect is the backoff schedule used when LinkConfig leaves
// it empty. The last delay repeats.
var DefaultReconnect = []time.Duration{
	time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second,
}

// DefaultControlPingPeriod is the interval between control pings.
const DefaultControlPingPeriod = 20 * time.Second

// LinkConfig configures a [Link].
type LinkConfig struct {
	// RelayURL is the relay WebSocket endpoint, without query
	// parameters. Required.
	RelayURL string

	// ServerID names the session. Required.
	ServerID string

	// Log answers requests and supplies live events. Required.
	Log *Log

	Reconnect  []time.Duration
	PingPeriod time.Duration

	// Conn tunes every socket the link opens.
	Conn wsconn.Config

	Clock  clock.Clock
	Logger *slog.Logger
}

// Link connects a [Log] to a relay session.
type Link struct {
	endpoint   *url.URL
	serverID   string
	history    *Log
	reconnect  []time.Duration
	pingPeriod time.Duration
	conn       wsconn.Config
	clock      clock.Clock
	logger     *slog.Logger

	mu   sync.Mutex
	data map[string]*dataSocket
}

// dataSocket is the link's socket for one client. conn is nil while
// the socket is being dialed.
type dataSocket struct {
	clientID string
	conn     *wsconn.Conn
}

// NewLink validates config and returns a link. Call [Link.Run] to
// connect.
func NewLink(config LinkConfig) (*Link, error) {
	if config.ServerID == "" {
		return nil, errors.New("link: server ID is required")
	}
	if config.Log == nil {
		return nil, errors.New("link: log is required")
	}
	endpoint, err := url.Parse(config.RelayURL)
	if err != nil {
		return nil, fmt.Errorf("link: parsing relay URL: %w", err)
	}
	if endpoint.Scheme != "ws" && endpoint.Scheme != "wss" {
		return nil, fmt.Errorf("link: relay URL must be ws:// or wss://, got %q", config.RelayURL)
	}
	if len(config.Reconnect) == 0 {
		config.Reconnect = DefaultReconnect
	}
	if config.PingPeriod <= 0 {
		config.PingPeriod = DefaultControlPingPeriod
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	config.Conn.Clock = config.Clock

	return &Link{
		endpoint:   endpoint,
		serverID:   config.ServerID,
		history:    config.Log,
		reconnect:  config.Reconnect,
		pingPeriod: config.PingPeriod,
		conn:       config.Conn,
		clock:      config.Clock,
		logger:     config.Logger.With("server_id", config.ServerID),
		data:       make(map[string]*dataSocket),
	}, nil
}

// Run keeps the link attached until ctx is done. After the control
// socket drops, or fails to connect, it waits the next delay of the
// reconnect schedule and tries again; a session that got as far as
// connecting restarts the schedule. Run returns nil when ctx ends.
func (link *Link) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := link.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempt = 0
		}
		delay := link.reconnect[min(attempt, len(link.reconnect)-1)]
		attempt++
		link.logger.Warn("relay connection lost, reconnecting",
			"error", err, "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-link.clock.After(delay):
		}
	}
}

// Clients returns the IDs of clients with an open data socket, sorted.
func (link *Link) Clients() []string {
	link.mu.Lock()
	defer link.mu.Unlock()
	var ids []string
	for id, socket := range link.data {
		if socket.conn != nil && !socket.conn.Closed() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// session runs one control connection to completion. It reports
// whether the control socket connected at all.
func (link *Link) session(ctx context.Context) (bool, error) {
	control, err := wsconn.Dial(ctx, link.url(""), link.conn)
	if err != nil {
		return false, err
	}
	link.logger.Info("control socket connected")

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	unsubscribe := link.history.Subscribe(link.broadcast)
	defer unsubscribe()

	workers.Add(2)
	go func() {
		defer workers.Done()
		<-sessionCtx.Done()
		control.Close(1000, "daemon stopping")
	}()
	go func() {
		defer workers.Done()
		link.pingLoop(sessionCtx, control)
	}()

	err = control.Run(func(frame wsconn.Frame) {
		link.handleControl(sessionCtx, &workers, frame)
	})
	link.logger.Info("control socket closed",
		"code", wsconn.CloseCode(err), "reason", wsconn.CloseReason(err))

	cancel()
	link.closeAllData()
	workers.Wait()
	return true, err
}

func (link *Link) pingLoop(ctx context.Context, control *wsconn.Conn) {
	ticker := link.clock.NewTicker(link.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			ping, err := sonic.ConfigStd.Marshal(relay.ControlMessage{Type: relay.ControlPing, TS: link.clock.Now().UnixMilli()})
			if err != nil {
				return
			}
			if err := control.Send(wsconn.Frame{Data: ping}); err != nil {
				link.logger.Debug("control ping not sent", "error", err)
			}
		}
	}
}

func (link *Link) handleControl(ctx context.Context, workers *sync.WaitGroup, frame wsconn.Frame) {
	var message relay.ControlMessage
	if err := sonic.ConfigStd.Unmarshal(frame.Data, &message); err != nil {
		link.logger.Warn("ignoring malformed control message", "error", err)
		return
	}
	switch message.Type {
	case relay.ControlClientConnected:
		link.openData(ctx, workers, message.ClientID)
	case relay.ControlSync:
		for _, clientID := range message.ClientIDs {
			link.openData(ctx, workers, clientID)
		}
	case relay.ControlClientDisconnected:
		link.closeData(message.ClientID, "Client disconnected")
	case relay.ControlPong:
	default:
		link.logger.Debug("ignoring control message", "type", message.Type)
	}
}

// openData starts a data socket for clientID unless one is open or
// being dialed.
func (link *Link) openData(ctx context.Context, workers *sync.WaitGroup, clientID string) {
	if clientID == "" {
		return
	}
	link.mu.Lock()
	if existing := link.data[clientID]; existing != nil && (existing.conn == nil || !existing.conn.Closed()) {
		link.mu.Unlock()
		return
	}
	socket := &dataSocket{clientID: clientID}
	link.data[clientID] = socket
	link.mu.Unlock()

	workers.Add(1)
	go func() {
		defer workers.Done()
		link.serveData(ctx, socket)
	}()
}

func (link *Link) serveData(ctx context.Context, socket *dataSocket) {
	logger := link.logger.With("client_id", socket.clientID)
	conn, err := wsconn.Dial(ctx, link.url(socket.clientID), link.conn)

	link.mu.Lock()
	current := link.data[socket.clientID] == socket
	switch {
	case err != nil && current:
		delete(link.data, socket.clientID)
	case err == nil && current:
		socket.conn = conn
	}
	link.mu.Unlock()

	if err != nil {
		logger.Warn("data socket dial failed", "error", err)
		return
	}
	if !current {
		conn.Close(1000, "Client disconnected")
		return
	}
	logger.Debug("data socket connected")

	err = conn.Run(func(frame wsconn.Frame) {
		link.handleRequest(conn, logger, frame)
	})

	link.mu.Lock()
	if link.data[socket.clientID] == socket {
		delete(link.data, socket.clientID)
	}
	link.mu.Unlock()
	logger.Debug("data socket closed", "code", wsconn.CloseCode(err), "reason", wsconn.CloseReason(err))
}

func (link *Link) closeData(clientID, reason string) {
	link.mu.Lock()
	socket := link.data[clientID]
	delete(link.data, clientID)
	link.mu.Unlock()
	if socket != nil && socket.conn != nil {
		socket.conn.Close(1000, reason)
	}
}

func (link *Link) closeAllData() {
	link.mu.Lock()
	sockets := link.data
	link.data = make(map[string]*dataSocket)
	link.mu.Unlock()
	for _, socket := range sockets {
		if socket.conn != nil {
			socket.conn.Close(1000, "Control disconnected")
		}
	}
}

// handleRequest answers one frame from a client. Anything other than a
// fetch request is ignored.
func (link *Link) handleRequest(conn *wsconn.Conn, logger *slog.Logger, frame wsconn.Frame) {
	envelope, err := timeline.DecodeEnvelope(frame.Data)
	if err != nil {
		logger.Warn("ignoring malformed client frame", "error", err)
		return
	}
	if envelope.Type != timeline.MessageFetchTimelineRequest {
		logger.Debug("ignoring client message", "type", envelope.Type)
		return
	}

	var request timeline.FetchRequest
	if err := envelope.DecodePayload(&request); err != nil {
		link.reply(conn, logger, envelope.RequestID, timeline.FailedResponse("", "", err.Error()))
		return
	}
	response, err := link.history.Window(request)
	if err != nil {
		response = timeline.FailedResponse(request.AgentID, request.Direction, err.Error())
	}
	link.reply(conn, logger, envelope.RequestID, response)
}

func (link *Link) reply(conn *wsconn.Conn, logger *slog.Logger, requestID string, response timeline.TimelineResponse) {
	frame, err := timeline.EncodeEnvelope(timeline.MessageFetchTimelineResponse, requestID, response)
	if err != nil {
		logger.Error("encoding timeline response failed", "error", err)
		return
	}
	if err := conn.Send(wsconn.Frame{Data: frame}); err != nil {
		logger.Warn("timeline response not sent", "request_id", requestID, "error", err)
	}
}

// broadcast sends a live event to every connected client. It runs
// under the log's lock.
func (link *Link) broadcast(message timeline.AgentStreamMessage) {
	frame, err := timeline.EncodeEnvelope(timeline.MessageAgentStream, "", message)
	if err != nil {
		link.logger.Error("encoding stream event failed", "agent_id", message.AgentID, "error", err)
		return
	}

	link.mu.Lock()
	defer link.mu.Unlock()
	for clientID, socket := range link.data {
		if socket.conn == nil {
			continue
		}
		if err := socket.conn.Send(wsconn.Frame{Data: frame}); err != nil {
			// The client sees a gap on its next event and catches up.
			link.logger.Warn("stream event dropped", "client_id", clientID, "agent_id", message.AgentID, "error", err)
		}
	}
}

func (link *Link) url(clientID string) string {
	endpoint := *link.endpoint
	query := endpoint.Query()
	query.Set("serverId", link.serverID)
	query.Set("role", string(relay.RoleServer))
	query.Set("v", "2")
	if clientID != "" {
		query.Set("clientId", clientID)
	} else {
		query.Del("clientId")
	}
	endpoint.RawQuery = query.Encode()
	return endpoint.String()
}
