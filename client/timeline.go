// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/paseo-dev/paseo/lib/clock"
	"github.com/paseo-dev/paseo/lib/timeline"
	"github.com/paseo-dev/paseo/lib/timelinesync"
)

// TimelineConfig configures a [Timeline].
type TimelineConfig struct {
	ServerID string
	AgentID  string

	// Send delivers a request to the daemon. Required.
	Send func(timeline.FetchRequest) error

	// Registry holds bootstrap waits. It may be shared by every
	// timeline of a connection. Default: a private registry.
	Registry *timelinesync.InitRegistry

	// Projected makes bootstrap limits count projected entries.
	Projected bool

	// CatchUpLimit bounds each catch-up request. Zero leaves the
	// daemon's default in place.
	CatchUpLimit int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Timeline is the client-side state of one agent's log.
//
// Responses and live events are applied through the reducers in
// lib/timelinesync; the controller stores the state they return and
// executes their effects. All methods are safe for concurrent use.
type Timeline struct {
	key          timelinesync.InitKey
	send         func(timeline.FetchRequest) error
	registry     *timelinesync.InitRegistry
	projected    bool
	catchUpLimit int
	clock        clock.Clock
	logger       *slog.Logger

	mu           sync.Mutex
	state        timelinesync.State
	agent        timelinesync.AgentSnapshot
	initializing bool

	// catchUpTarget is the newest seq a gap has revealed. Catch-up
	// requests continue until the cursor reaches it.
	catchUpTarget *timeline.SeqCursor

	updates chan struct{}
}

// NewTimeline returns an empty controller.
func NewTimeline(config TimelineConfig) *Timeline {
	if config.Registry == nil {
		config.Registry = timelinesync.NewInitRegistry()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Timeline{
		key:          timelinesync.InitKey{ServerID: config.ServerID, AgentID: config.AgentID},
		send:         config.Send,
		registry:     config.Registry,
		projected:    config.Projected,
		catchUpLimit: config.CatchUpLimit,
		clock:        config.Clock,
		logger:       config.Logger.With("agent_id", config.AgentID),
		agent:        timelinesync.AgentSnapshot{Status: timelinesync.AgentInitializing},
		updates:      make(chan struct{}, 1),
	}
}

// Updates receives a value after any change worth redrawing. Changes
// that arrive before the previous value is consumed are coalesced.
func (controller *Timeline) Updates() <-chan struct{} { return controller.updates }

// Bootstrap requests the newest limit rows and waits until that
// response has been applied. A response in another direction does not
// end the wait. An error response, a later Bootstrap, the connection
// closing, or ctx ending does.
func (controller *Timeline) Bootstrap(ctx context.Context, limit int) error {
	controller.mu.Lock()
	wait := controller.registry.Create(controller.key, timeline.DirectionTail)
	controller.initializing = true
	request := timeline.FetchRequest{
		AgentID:   controller.key.AgentID,
		Direction: timeline.DirectionTail,
		Limit:     limit,
		Projected: controller.projected,
	}
	if cursor := controller.state.Cursor; cursor != nil {
		request.Cursor = &timeline.SeqCursor{Epoch: cursor.Epoch, Seq: cursor.EndSeq}
	}
	controller.mu.Unlock()

	if err := controller.send(request); err != nil {
		controller.registry.Reject(controller.key, err)
		return err
	}

	err := wait.Wait(ctx)
	if ctx.Err() != nil {
		if active, ok := controller.registry.Active(controller.key); ok && active == wait {
			controller.registry.Reject(controller.key, ctx.Err())
		}
	}
	return err
}

// LoadOlder requests up to limit rows before the oldest one held. It
// does nothing before the first row has arrived.
func (controller *Timeline) LoadOlder(limit int) error {
	controller.mu.Lock()
	cursor := controller.state.Cursor
	controller.mu.Unlock()
	if cursor == nil || cursor.StartSeq <= 1 {
		return nil
	}
	return controller.send(timeline.FetchRequest{
		AgentID:   controller.key.AgentID,
		Direction: timeline.DirectionBefore,
		Cursor:    &timeline.SeqCursor{Epoch: cursor.Epoch, Seq: cursor.StartSeq},
		Limit:     limit,
	})
}

// HandleResponse applies a window response and returns the error it
// carried, if any.
func (controller *Timeline) HandleResponse(response timeline.TimelineResponse) error {
	controller.mu.Lock()
	init := timelinesync.InitContext{IsInitializing: controller.initializing}
	if wait, ok := controller.registry.Active(controller.key); ok {
		init.HasActiveInitDeferred = true
		init.RequestedDirection = wait.Direction()
	}
	result := timelinesync.ProcessTimelineResponse(response, controller.state, init)
	controller.state = result.State
	// A response in another direction leaves the bootstrap waiting, so
	// the tail response that ends it still replaces.
	waiting := init.HasActiveInitDeferred && result.InitResolution == timelinesync.InitUnchanged
	if result.ClearInitializing && !waiting {
		controller.initializing = false
	}
	effects := result.Effects
	if containsCatchUp(effects) && response.EndCursor != nil {
		controller.targetLocked(response.EndCursor.Epoch, response.EndCursor.Seq)
	}
	if followUp, ok := controller.followUpLocked(response, result); ok {
		effects = append(effects, followUp)
	}
	controller.mu.Unlock()

	switch result.InitResolution {
	case timelinesync.InitResolve:
		controller.registry.Resolve(controller.key)
	case timelinesync.InitReject:
		controller.registry.Reject(controller.key, result.Err)
	}
	if result.Err != nil {
		controller.logger.Warn("timeline request failed", "error", result.Err)
	}
	controller.execute(effects)
	return result.Err
}

// targetLocked raises the catch-up target to seq.
func (controller *Timeline) targetLocked(epoch string, seq int64) {
	target := controller.catchUpTarget
	if target != nil && target.Epoch == epoch && target.Seq >= seq {
		return
	}
	controller.catchUpTarget = &timeline.SeqCursor{Epoch: epoch, Seq: seq}
}

// followUpLocked returns the next catch-up after an after-direction
// response that left the cursor short of the target. The target is
// dropped once reached, after an epoch change, or when a response
// makes no progress.
func (controller *Timeline) followUpLocked(response timeline.TimelineResponse, result timelinesync.ResponseResult) (timelinesync.CatchUp, bool) {
	target := controller.catchUpTarget
	if target == nil || response.Direction != timeline.DirectionAfter {
		return timelinesync.CatchUp{}, false
	}
	cursor := controller.state.Cursor
	if result.Err != nil || !result.CursorChanged || cursor == nil || cursor.Epoch != target.Epoch || cursor.EndSeq >= target.Seq {
		controller.catchUpTarget = nil
		return timelinesync.CatchUp{}, false
	}
	if containsCatchUp(result.Effects) {
		return timelinesync.CatchUp{}, false
	}
	return timelinesync.CatchUp{Cursor: timelinesync.CatchUpCursor{Epoch: cursor.Epoch, EndSeq: cursor.EndSeq}}, true
}

func containsCatchUp(effects []timelinesync.Effect) bool {
	return slices.ContainsFunc(effects, func(effect timelinesync.Effect) bool {
		_, ok := effect.(timelinesync.CatchUp)
		return ok
	})
}

// HandleStream applies a live event.
func (controller *Timeline) HandleStream(message timeline.AgentStreamMessage) {
	controller.mu.Lock()
	now := controller.clock.Now()
	agent := controller.agent
	result := timelinesync.ProcessAgentStreamEvent(timelinesync.StreamInput{
		Event:     message.Event,
		Seq:       message.Seq,
		Epoch:     message.Epoch,
		Cursor:    controller.state.Cursor,
		Head:      controller.state.Head,
		Agent:     &agent,
		Timestamp: message.Timestamp,
		Now:       now,
	})
	controller.state.Head = result.Head
	controller.state.Cursor = result.Cursor

	effects := result.Effects
	if containsCatchUp(effects) && message.Seq != nil {
		controller.targetLocked(message.Epoch, *message.Seq)
	}
	switch {
	case result.AgentPatch != nil:
		controller.agent = result.AgentPatch.Apply(controller.agent)
		effects = append(effects, timelinesync.FlushPendingUpdates{})
	case message.Event.Type == timeline.StreamTurnStarted:
		controller.agent.Status = timelinesync.AgentRunning
		controller.agent.UpdatedAt = later(now, controller.agent.UpdatedAt)
		controller.agent.LastActivityAt = later(now, controller.agent.LastActivityAt)
		effects = append(effects, timelinesync.FlushPendingUpdates{})
	case result.Appended:
		controller.agent.LastActivityAt = later(message.Timestamp, controller.agent.LastActivityAt)
	}
	controller.mu.Unlock()

	controller.execute(effects)
}

// execute carries out reducer effects in order.
func (controller *Timeline) execute(effects []timelinesync.Effect) {
	for _, effect := range effects {
		switch effect := effect.(type) {
		case timelinesync.CatchUp:
			err := controller.send(timeline.FetchRequest{
				AgentID:   controller.key.AgentID,
				Direction: timeline.DirectionAfter,
				Cursor:    &timeline.SeqCursor{Epoch: effect.Cursor.Epoch, Seq: effect.Cursor.EndSeq},
				Limit:     controller.catchUpLimit,
			})
			if err != nil {
				controller.logger.Warn("catch-up request not sent", "error", err)
			}
		case timelinesync.FlushPendingUpdates:
			select {
			case controller.updates <- struct{}{}:
			default:
			}
		}
	}
}

// Rows returns the materialized rows in order.
func (controller *Timeline) Rows() []timeline.Entry {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	return controller.state.Rows()
}

// Cursor returns a copy of the cursor, or nil before the first row.
func (controller *Timeline) Cursor() *timeline.Cursor {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	if controller.state.Cursor == nil {
		return nil
	}
	cursor := *controller.state.Cursor
	return &cursor
}

// Agent returns the tracked agent state.
func (controller *Timeline) Agent() timelinesync.AgentSnapshot {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	return controller.agent
}

// Project returns the display entries for the materialized rows.
func (controller *Timeline) Project(mode timeline.Mode) []timeline.ProjectionEntry {
	return timeline.Project(controller.Rows(), mode)
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
