// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timelinesync

import (
	"time"

	"github.com/paseo-dev/paseo/lib/timeline"
)

// AgentStatus is the client's last known run state of an agent.
type AgentStatus string

const (
	AgentInitializing AgentStatus = "initializing"
	AgentIdle         AgentStatus = "idle"
	AgentRunning      AgentStatus = "running"
	AgentError        AgentStatus = "error"
	AgentClosed       AgentStatus = "closed"
)

// AgentSnapshot is the tracked agent state an optimistic patch is
// computed against.
type AgentSnapshot struct {
	Status         AgentStatus
	UpdatedAt      time.Time
	LastActivityAt time.Time
}

// AgentStatusPatch is an optimistic status change derived from a turn
// event before the daemon confirms it.
type AgentStatusPatch struct {
	Status         AgentStatus
	UpdatedAt      time.Time
	LastActivityAt time.Time
}

// Apply returns snapshot with the patch applied.
func (patch AgentStatusPatch) Apply(snapshot AgentSnapshot) AgentSnapshot {
	snapshot.Status = patch.Status
	snapshot.UpdatedAt = patch.UpdatedAt
	snapshot.LastActivityAt = patch.LastActivityAt
	return snapshot
}

// StreamInput is one live event plus the state it applies to.
type StreamInput struct {
	Event timeline.StreamEvent

	// Seq and Epoch identify timeline events in the canonical log. A
	// timeline event without Seq cannot be ordered and is dropped.
	Seq   *int64
	Epoch string

	Cursor *timeline.Cursor
	Head   []timeline.Entry

	// Agent is nil when the client does not track the agent.
	Agent *AgentSnapshot

	Timestamp time.Time

	// Now is the local time the event is applied at. Patches take the
	// later of Now and the agent's known times. Zero means Timestamp.
	Now time.Time
}

// StreamResult is the outcome of [ProcessAgentStreamEvent].
type StreamResult struct {
	Head          []timeline.Entry
	Cursor        *timeline.Cursor
	CursorChanged bool

	// Appended is true when the event was accepted into Head.
	Appended bool

	Effects    []Effect
	AgentPatch *AgentStatusPatch
}

// ProcessAgentStreamEvent applies one live event.
//
// Timeline events are classified against the cursor exactly as window
// entries are: accepted events extend Head by one and advance the
// cursor, a gap returns a [CatchUp] anchored at the current cursor and
// changes nothing else, and stale or foreign-epoch events are ignored.
// Turn completion and failure events never touch the cursor; they
// produce an optimistic status patch when the agent is known to be
// running.
func ProcessAgentStreamEvent(input StreamInput) StreamResult {
	result := StreamResult{Head: input.Head, Cursor: input.Cursor}
	now := input.Now
	if now.IsZero() {
		now = input.Timestamp
	}

	switch input.Event.Type {
	case timeline.StreamTimeline:
	case timeline.StreamTurnCompleted:
		result.AgentPatch = turnEndPatch(input.Agent, AgentIdle, now)
		return result
	case timeline.StreamTurnFailed:
		result.AgentPatch = turnEndPatch(input.Agent, AgentError, now)
		return result
	default:
		return result
	}

	if input.Seq == nil || input.Event.Item == nil {
		return result
	}
	seq := *input.Seq

	entry := timeline.Entry{
		Seq:       seq,
		Epoch:     input.Epoch,
		Provider:  input.Event.Provider,
		Item:      *input.Event.Item,
		Timestamp: input.Timestamp,
	}

	switch timeline.Classify(input.Cursor, input.Epoch, seq) {
	case timeline.DecisionInit:
		result.Cursor = &timeline.Cursor{Epoch: input.Epoch, StartSeq: seq, EndSeq: seq}
	case timeline.DecisionAccept:
		advanced := *input.Cursor
		advanced.EndSeq = seq
		result.Cursor = &advanced
	case timeline.DecisionGap:
		result.Effects = []Effect{CatchUp{Cursor: CatchUpCursor{Epoch: input.Cursor.Epoch, EndSeq: input.Cursor.EndSeq}}}
		return result
	default:
		return result
	}

	head := make([]timeline.Entry, 0, len(input.Head)+1)
	head = append(head, input.Head...)
	result.Head = append(head, entry)
	result.CursorChanged = true
	result.Appended = true
	result.Effects = []Effect{FlushPendingUpdates{}}
	return result
}

// turnEndPatch moves a running agent to status. Timestamps only move
// forward.
func turnEndPatch(agent *AgentSnapshot, status AgentStatus, now time.Time) *AgentStatusPatch {
	if agent == nil || agent.Status != AgentRunning {
		return nil
	}
	return &AgentStatusPatch{
		Status:         status,
		UpdatedAt:      latest(now, agent.UpdatedAt),
		LastActivityAt: latest(now, agent.LastActivityAt),
	}
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
