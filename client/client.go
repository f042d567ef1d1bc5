// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/paseo-dev/paseo/lib/clock"
	"github.com/paseo-dev/paseo/lib/timeline"
	"github.com/paseo-dev/paseo/lib/timelinesync"
	"github.com/paseo-dev/paseo/lib/wsconn"
	"github.com/paseo-dev/paseo/relay"
)

// ErrConnectionClosed rejects bootstraps still waiting when the relay
// connection ends.
var ErrConnectionClosed = errors.New("relay connection closed")

// Config configures [Dial].
type Config struct {
	// RelayURL is the relay WebSocket endpoint. Required.
	RelayURL string

	// ServerID names the daemon's session. Required.
	ServerID string

	// ClientID identifies this client across its tabs. Default: a
	// random UUID.
	ClientID string

	// Projected makes bootstrap limits count projected entries for
	// every timeline of this client.
	Projected bool

	Conn   wsconn.Config
	Clock  clock.Clock
	Logger *slog.Logger
}

// Client is one client socket on a relay session.
type Client struct {
	serverID  string
	clientID  string
	projected bool
	conn      *wsconn.Conn
	clock     clock.Clock
	logger    *slog.Logger
	registry  *timelinesync.InitRegistry

	mu        sync.Mutex
	timelines map[string]*Timeline
}

// Dial connects to the relay as client:<ClientID>. Call [Client.Run]
// to start receiving.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.ServerID == "" {
		return nil, errors.New("client: server ID is required")
	}
	if config.ClientID == "" {
		config.ClientID = uuid.NewString()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	config.Conn.Clock = config.Clock

	endpoint, err := url.Parse(config.RelayURL)
	if err != nil {
		return nil, fmt.Errorf("client: parsing relay URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("serverId", config.ServerID)
	query.Set("role", string(relay.RoleClient))
	query.Set("clientId", config.ClientID)
	query.Set("v", "2")
	endpoint.RawQuery = query.Encode()

	conn, err := wsconn.Dial(ctx, endpoint.String(), config.Conn)
	if err != nil {
		return nil, err
	}
	return &Client{
		serverID:  config.ServerID,
		clientID:  config.ClientID,
		projected: config.Projected,
		conn:      conn,
		clock:     config.Clock,
		logger:    config.Logger.With("server_id", config.ServerID, "client_id", config.ClientID),
		registry:  timelinesync.NewInitRegistry(),
		timelines: make(map[string]*Timeline),
	}, nil
}

// ID returns the client ID.
func (client *Client) ID() string { return client.clientID }

// Timeline returns the controller for agentID, creating it on first
// use.
func (client *Client) Timeline(agentID string) *Timeline {
	client.mu.Lock()
	defer client.mu.Unlock()
	controller := client.timelines[agentID]
	if controller == nil {
		controller = NewTimeline(TimelineConfig{
			ServerID:  client.serverID,
			AgentID:   agentID,
			Send:      client.Request,
			Registry:  client.registry,
			Projected: client.projected,
			Clock:     client.clock,
			Logger:    client.logger,
		})
		client.timelines[agentID] = controller
	}
	return controller
}

// Request sends a fetch request under a fresh request ID.
func (client *Client) Request(request timeline.FetchRequest) error {
	frame, err := timeline.EncodeEnvelope(timeline.MessageFetchTimelineRequest, uuid.NewString(), request)
	if err != nil {
		return err
	}
	if err := client.conn.Send(wsconn.Frame{Data: frame}); err != nil {
		return fmt.Errorf("sending %s request for %s: %w", request.Direction, request.AgentID, err)
	}
	return nil
}

// Run receives until the connection ends and returns the error that
// ended it. Bootstraps still waiting are then rejected with
// [ErrConnectionClosed].
func (client *Client) Run() error {
	err := client.conn.Run(client.dispatch)

	client.mu.Lock()
	agents := make([]string, 0, len(client.timelines))
	for agentID := range client.timelines {
		agents = append(agents, agentID)
	}
	client.mu.Unlock()
	for _, agentID := range agents {
		client.registry.Reject(timelinesync.InitKey{ServerID: client.serverID, AgentID: agentID}, ErrConnectionClosed)
	}
	return err
}

// Close closes the connection; [Client.Run] then returns.
func (client *Client) Close() {
	client.conn.Close(1000, "client closing")
}

func (client *Client) dispatch(frame wsconn.Frame) {
	envelope, err := timeline.DecodeEnvelope(frame.Data)
	if err != nil {
		client.logger.Warn("ignoring malformed frame", "error", err)
		return
	}

	switch envelope.Type {
	case timeline.MessageFetchTimelineResponse:
		var response timeline.TimelineResponse
		if err := envelope.DecodePayload(&response); err != nil {
			client.logger.Warn("ignoring malformed response", "request_id", envelope.RequestID, "error", err)
			return
		}
		if controller := client.lookup(response.AgentID); controller != nil {
			controller.HandleResponse(response)
		}
	case timeline.MessageAgentStream:
		var message timeline.AgentStreamMessage
		if err := envelope.DecodePayload(&message); err != nil {
			client.logger.Warn("ignoring malformed stream event", "error", err)
			return
		}
		if controller := client.lookup(message.AgentID); controller != nil {
			controller.HandleStream(message)
		}
	default:
		client.logger.Debug("ignoring message", "type", envelope.Type)
	}
}

func (client *Client) lookup(agentID string) *Timeline {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.timelines[agentID]
}
