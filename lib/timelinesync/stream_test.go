// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timelinesync

import (
	"slices"
	"testing"
	"time"

	"github.com/paseo-dev/paseo/lib/timeline"
)

func timelineEvent(text string) timeline.StreamEvent {
	return timeline.StreamEvent{
		Type:     timeline.StreamTimeline,
		Provider: "claude",
		Item:     &timeline.Item{Type: timeline.ItemAssistantMessage, Text: text},
	}
}

func seqPointer(seq int64) *int64 { return &seq }

func TestProcessAgentStreamEventTimeline(t *testing.T) {
	t.Parallel()

	cursor := &timeline.Cursor{Epoch: "e1", StartSeq: 1, EndSeq: 4}
	head := entryRange("e1", 3, 4)

	tests := []struct {
		name         string
		cursor       *timeline.Cursor
		epoch        string
		seq          *int64
		wantHead     []int64
		wantCursor   *timeline.Cursor
		wantAppended bool
		wantCatchUp  []CatchUpCursor
	}{
		{
			name:         "accept",
			cursor:       cursor,
			epoch:        "e1",
			seq:          seqPointer(5),
			wantHead:     []int64{3, 4, 5},
			wantCursor:   &timeline.Cursor{Epoch: "e1", StartSeq: 1, EndSeq: 5},
			wantAppended: true,
		},
		{
			name:        "gap",
			cursor:      cursor,
			epoch:       "e1",
			seq:         seqPointer(9),
			wantHead:    []int64{3, 4},
			wantCursor:  cursor,
			wantCatchUp: []CatchUpCursor{{Epoch: "e1", EndSeq: 4}},
		},
		{
			name:       "stale",
			cursor:     cursor,
			epoch:      "e1",
			seq:        seqPointer(4),
			wantHead:   []int64{3, 4},
			wantCursor: cursor,
		},
		{
			name:       "foreign epoch",
			cursor:     cursor,
			epoch:      "e2",
			seq:        seqPointer(5),
			wantHead:   []int64{3, 4},
			wantCursor: cursor,
		},
		{
			name:       "missing seq",
			cursor:     cursor,
			epoch:      "e1",
			wantHead:   []int64{3, 4},
			wantCursor: cursor,
		},
		{
			name:         "init",
			epoch:        "e1",
			seq:          seqPointer(40),
			wantHead:     []int64{3, 4, 40},
			wantCursor:   &timeline.Cursor{Epoch: "e1", StartSeq: 40, EndSeq: 40},
			wantAppended: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			result := ProcessAgentStreamEvent(StreamInput{
				Event:     timelineEvent("hi"),
				Seq:       test.seq,
				Epoch:     test.epoch,
				Cursor:    test.cursor,
				Head:      head,
				Timestamp: testEpochStart,
			})
			if got := seqsOf(result.Head); !slices.Equal(got, test.wantHead) {
				t.Errorf("head: got %v, want %v", got, test.wantHead)
			}
			if !result.Cursor.Equal(test.wantCursor) {
				t.Errorf("cursor: got %+v, want %+v", result.Cursor, test.wantCursor)
			}
			if result.Appended != test.wantAppended || result.CursorChanged != test.wantAppended {
				t.Errorf("appended/changed: got %v/%v, want %v", result.Appended, result.CursorChanged, test.wantAppended)
			}
			if got := catchUps(result.Effects); !slices.Equal(got, test.wantCatchUp) {
				t.Errorf("catch-ups: got %v, want %v", got, test.wantCatchUp)
			}
			if result.AgentPatch != nil {
				t.Errorf("timeline event produced a status patch: %+v", result.AgentPatch)
			}
		})
	}

	if len(head) != 2 || cursor.EndSeq != 4 {
		t.Errorf("inputs modified: head %d entries, cursor end %d", len(head), cursor.EndSeq)
	}
}

func TestProcessAgentStreamEventReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	input := StreamInput{
		Event:  timelineEvent("once"),
		Seq:    seqPointer(5),
		Epoch:  "e1",
		Cursor: &timeline.Cursor{Epoch: "e1", StartSeq: 1, EndSeq: 4},
	}
	first := ProcessAgentStreamEvent(input)

	input.Cursor = first.Cursor
	input.Head = first.Head
	second := ProcessAgentStreamEvent(input)

	if second.Appended || second.CursorChanged {
		t.Errorf("replay: appended=%v changed=%v", second.Appended, second.CursorChanged)
	}
	if second.Cursor.EndSeq != 5 || len(second.Head) != 1 {
		t.Errorf("replay: cursor end %d head %d, want 5 and 1", second.Cursor.EndSeq, len(second.Head))
	}
}

func TestProcessAgentStreamEventTurnPatches(t *testing.T) {
	t.Parallel()

	now := testEpochStart.Add(time.Minute)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name          string
		eventType     timeline.StreamEventType
		agent         *AgentSnapshot
		clockNow      time.Time
		wantPatch     bool
		wantStatus    AgentStatus
		wantUpdatedAt time.Time
	}{
		{
			name:          "completed while running",
			eventType:     timeline.StreamTurnCompleted,
			agent:         &AgentSnapshot{Status: AgentRunning, UpdatedAt: earlier, LastActivityAt: earlier},
			wantPatch:     true,
			wantStatus:    AgentIdle,
			wantUpdatedAt: now,
		},
		{
			name:          "failed while running",
			eventType:     timeline.StreamTurnFailed,
			agent:         &AgentSnapshot{Status: AgentRunning, UpdatedAt: earlier},
			wantPatch:     true,
			wantStatus:    AgentError,
			wantUpdatedAt: now,
		},
		{
			name:          "timestamps never move backward",
			eventType:     timeline.StreamTurnCompleted,
			agent:         &AgentSnapshot{Status: AgentRunning, UpdatedAt: later, LastActivityAt: later},
			wantPatch:     true,
			wantStatus:    AgentIdle,
			wantUpdatedAt: later,
		},
		{
			name:          "local clock ahead of the event",
			eventType:     timeline.StreamTurnCompleted,
			agent:         &AgentSnapshot{Status: AgentRunning, UpdatedAt: earlier, LastActivityAt: earlier},
			clockNow:      later,
			wantPatch:     true,
			wantStatus:    AgentIdle,
			wantUpdatedAt: later,
		},
		{
			name:      "completed while idle",
			eventType: timeline.StreamTurnCompleted,
			agent:     &AgentSnapshot{Status: AgentIdle},
		},
		{
			name:      "untracked agent",
			eventType: timeline.StreamTurnFailed,
		},
		{
			name:      "turn started",
			eventType: timeline.StreamTurnStarted,
			agent:     &AgentSnapshot{Status: AgentRunning},
		},
	}

	cursor := &timeline.Cursor{Epoch: "e1", StartSeq: 1, EndSeq: 4}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			result := ProcessAgentStreamEvent(StreamInput{
				Event:     timeline.StreamEvent{Type: test.eventType},
				Seq:       seqPointer(5),
				Epoch:     "e1",
				Cursor:    cursor,
				Agent:     test.agent,
				Timestamp: now,
				Now:       test.clockNow,
			})
			if result.Cursor != cursor || result.CursorChanged || result.Appended {
				t.Errorf("turn event touched the cursor: %+v", result.Cursor)
			}
			if !test.wantPatch {
				if result.AgentPatch != nil {
					t.Errorf("patch: got %+v, want nil", result.AgentPatch)
				}
				return
			}
			if result.AgentPatch == nil {
				t.Fatal("patch: got nil")
			}
			if result.AgentPatch.Status != test.wantStatus {
				t.Errorf("status: got %s, want %s", result.AgentPatch.Status, test.wantStatus)
			}
			if !result.AgentPatch.UpdatedAt.Equal(test.wantUpdatedAt) {
				t.Errorf("UpdatedAt: got %v, want %v", result.AgentPatch.UpdatedAt, test.wantUpdatedAt)
			}
			if result.AgentPatch.LastActivityAt.Before(test.agent.LastActivityAt) {
				t.Errorf("LastActivityAt moved backward: %v < %v", result.AgentPatch.LastActivityAt, test.agent.LastActivityAt)
			}
		})
	}
}
