// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/paseo-dev/paseo/lib/clock"
	"github.com/paseo-dev/paseo/lib/timeline"
)

// ErrUnknownAgent is returned for requests naming an agent the log has
// never seen.
var ErrUnknownAgent = errors.New("unknown agent")

// ErrMissingCursor is returned for before and after requests without a
// cursor.
var ErrMissingCursor = errors.New("cursor required")

// DefaultWindowLimit is the window size used when neither the request
// nor the log configuration sets one.
const DefaultWindowLimit = 50

// LogConfig configures a [Log].
type LogConfig struct {
	Clock clock.Clock

	// NewEpoch returns a fresh epoch identifier. Default: a random UUID.
	NewEpoch func() string

	// DefaultLimit applies to requests with no limit.
	// Default: DefaultWindowLimit
	DefaultLimit int
}

// Log is the canonical timeline of every agent on this host. Each
// agent's rows are numbered from 1 within an epoch; [Log.Reset] starts
// a new epoch. All methods are safe for concurrent use.
type Log struct {
	clock        clock.Clock
	newEpoch     func() string
	defaultLimit int

	mu          sync.Mutex
	agents      map[string]*agentLog
	subscribers map[uint64]func(timeline.AgentStreamMessage)
	nextID      uint64
}

type agentLog struct {
	epoch string
	rows  []timeline.Entry
}

// NewLog returns an empty log.
func NewLog(config LogConfig) *Log {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.NewEpoch == nil {
		config.NewEpoch = uuid.NewString
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultWindowLimit
	}
	return &Log{
		clock:        config.Clock,
		newEpoch:     config.NewEpoch,
		defaultLimit: config.DefaultLimit,
		agents:       make(map[string]*agentLog),
		subscribers:  make(map[uint64]func(timeline.AgentStreamMessage)),
	}
}

// Subscribe registers fn to receive every stream message the log
// publishes, in publication order, and returns a function that removes
// it. fn runs with the log locked and must not call back into the log.
func (history *Log) Subscribe(fn func(timeline.AgentStreamMessage)) (unsubscribe func()) {
	history.mu.Lock()
	defer history.mu.Unlock()
	history.nextID++
	id := history.nextID
	history.subscribers[id] = fn
	return func() {
		history.mu.Lock()
		defer history.mu.Unlock()
		delete(history.subscribers, id)
	}
}

// Append adds item as the agent's next row and publishes it as a
// timeline stream event.
func (history *Log) Append(agentID, provider string, item timeline.Item) timeline.Entry {
	history.mu.Lock()
	defer history.mu.Unlock()

	agent := history.agentLocked(agentID)
	seq := int64(1)
	if len(agent.rows) > 0 {
		seq = agent.rows[len(agent.rows)-1].Seq + 1
	}
	entry := timeline.Entry{
		Seq:       seq,
		Epoch:     agent.epoch,
		Provider:  provider,
		Item:      item,
		Timestamp: history.clock.Now(),
	}
	agent.rows = append(agent.rows, entry)

	history.publishLocked(timeline.AgentStreamMessage{
		AgentID: agentID,
		Event: timeline.StreamEvent{
			Type:     timeline.StreamTimeline,
			Provider: provider,
			Item:     &entry.Item,
		},
		Seq:       &entry.Seq,
		Epoch:     entry.Epoch,
		Timestamp: entry.Timestamp,
	})
	return entry
}

// Publish sends a non-timeline event for the agent. It does not touch
// the agent's rows.
func (history *Log) Publish(agentID string, event timeline.StreamEvent) {
	history.mu.Lock()
	defer history.mu.Unlock()
	history.agentLocked(agentID)
	history.publishLocked(timeline.AgentStreamMessage{
		AgentID:   agentID,
		Event:     event,
		Timestamp: history.clock.Now(),
	})
}

// Reset discards the agent's rows and starts a new epoch, which it
// returns.
func (history *Log) Reset(agentID string) string {
	history.mu.Lock()
	defer history.mu.Unlock()
	agent := history.agentLocked(agentID)
	agent.epoch = history.newEpoch()
	agent.rows = nil
	return agent.epoch
}

// Epoch returns the agent's current epoch, or "" for an unknown agent.
func (history *Log) Epoch(agentID string) string {
	history.mu.Lock()
	defer history.mu.Unlock()
	if agent := history.agents[agentID]; agent != nil {
		return agent.epoch
	}
	return ""
}

// Len returns the number of rows in the agent's current epoch.
func (history *Log) Len(agentID string) int {
	history.mu.Lock()
	defer history.mu.Unlock()
	if agent := history.agents[agentID]; agent != nil {
		return len(agent.rows)
	}
	return 0
}

// Agents returns the known agent IDs, sorted.
func (history *Log) Agents() []string {
	history.mu.Lock()
	defer history.mu.Unlock()
	ids := make([]string, 0, len(history.agents))
	for id := range history.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Window answers a fetch request.
//
// A tail request returns the newest rows. An after request returns the
// oldest rows above the cursor and a before request the newest rows
// below it. A before or after cursor from another epoch cannot be
// interpreted, so the log answers with the tail of the current epoch
// and sets Reset; a tail request sets Reset when its cursor, if any,
// names another epoch. With Projected the limit counts projected
// entries and the rows are widened until every entry is whole.
func (history *Log) Window(request timeline.FetchRequest) (timeline.TimelineResponse, error) {
	if _, err := timeline.ParseDirection(string(request.Direction)); err != nil {
		return timeline.TimelineResponse{}, err
	}

	history.mu.Lock()
	agent := history.agents[request.AgentID]
	if agent == nil {
		history.mu.Unlock()
		return timeline.TimelineResponse{}, fmt.Errorf("%w: %q", ErrUnknownAgent, request.AgentID)
	}
	epoch := agent.epoch
	rows := slices.Clone(agent.rows)
	history.mu.Unlock()

	limit := request.Limit
	if limit <= 0 {
		limit = history.defaultLimit
	}

	response := timeline.TimelineResponse{
		AgentID:   request.AgentID,
		Direction: request.Direction,
		Epoch:     epoch,
	}
	cursor := request.Cursor
	stale := cursor != nil && cursor.Epoch != "" && cursor.Epoch != epoch

	var selected []timeline.Entry
	switch {
	case request.Direction == timeline.DirectionTail || stale:
		response.Reset = stale
		selected = selectRows(rows, timeline.DirectionTail, limit, request.Projected)
	case cursor == nil:
		return timeline.TimelineResponse{}, fmt.Errorf("%w for %s requests", ErrMissingCursor, request.Direction)
	case request.Direction == timeline.DirectionAfter:
		above := slices.DeleteFunc(rows, func(row timeline.Entry) bool { return row.Seq <= cursor.Seq })
		selected = selectRows(above, timeline.DirectionAfter, limit, request.Projected)
	default:
		below := slices.DeleteFunc(rows, func(row timeline.Entry) bool { return row.Seq >= cursor.Seq })
		selected = selectRows(below, timeline.DirectionBefore, limit, request.Projected)
	}

	response.Entries = make([]timeline.Entry, len(selected))
	for index, row := range selected {
		row.Epoch = ""
		response.Entries[index] = row
	}
	if len(selected) > 0 {
		response.StartCursor = &timeline.SeqCursor{Epoch: epoch, Seq: selected[0].Seq}
		response.EndCursor = &timeline.SeqCursor{Epoch: epoch, Seq: selected[len(selected)-1].Seq}
	}
	return response, nil
}

// selectRows takes limit rows, or limit projected entries, from the
// front of rows for DirectionAfter and from the back otherwise.
func selectRows(rows []timeline.Entry, direction timeline.Direction, limit int, projected bool) []timeline.Entry {
	if projected {
		return timeline.SelectWindowByProjectedLimit(timeline.WindowRequest{
			Rows:      rows,
			Direction: direction,
			Limit:     limit,
		}).Rows
	}
	if len(rows) <= limit {
		return rows
	}
	if direction == timeline.DirectionAfter {
		return rows[:limit]
	}
	return rows[len(rows)-limit:]
}

func (history *Log) agentLocked(agentID string) *agentLog {
	agent := history.agents[agentID]
	if agent == nil {
		agent = &agentLog{epoch: history.newEpoch()}
		history.agents[agentID] = agent
	}
	return agent
}

func (history *Log) publishLocked(message timeline.AgentStreamMessage) {
	ids := make([]uint64, 0, len(history.subscribers))
	for id := range history.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		history.subscribers[id](message)
	}
}
