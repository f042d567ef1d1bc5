// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timelinesync

import (
	"errors"
	"fmt"
	"slices"

	"github.com/paseo-dev/paseo/lib/timeline"
)

// ErrResponseFailed wraps the error string of a window response the
// daemon could not serve.
var ErrResponseFailed = errors.New("timeline response failed")

// State is a client's materialized view of one agent's log.
//
// Tail holds rows received in window responses and Head holds rows
// received as live events since. Rendering order is Tail followed by
// Head. Cursor covers both buffers; it is nil until the first row is
// accepted.
type State struct {
	Tail   []timeline.Entry
	Head   []timeline.Entry
	Cursor *timeline.Cursor
}

// Rows returns Tail followed by Head as a new slice.
func (state State) Rows() []timeline.Entry {
	rows := make([]timeline.Entry, 0, len(state.Tail)+len(state.Head))
	rows = append(rows, state.Tail...)
	return append(rows, state.Head...)
}

// InitContext describes the bootstrap wait at the time a response is
// processed.
type InitContext struct {
	IsInitializing        bool
	HasActiveInitDeferred bool

	// RequestedDirection is the direction of the request that the
	// pending bootstrap is waiting on.
	RequestedDirection timeline.Direction
}

// InitResolution tells the caller what to do with a pending bootstrap
// wait.
type InitResolution string

const (
	InitUnchanged InitResolution = ""
	InitResolve   InitResolution = "resolve"
	InitReject    InitResolution = "reject"
)

// ResponseResult is the outcome of [ProcessTimelineResponse].
type ResponseResult struct {
	State             State
	CursorChanged     bool
	InitResolution    InitResolution
	ClearInitializing bool
	Effects           []Effect

	// Err is set when the response carried an error. State is then the
	// input state, untouched.
	Err error
}

// ProcessTimelineResponse applies one window response to state.
//
// A failed response leaves state alone and rejects the pending
// bootstrap, if any. Otherwise [ResolveBootstrapPolicy] picks between
// replacing the buffers and an incremental merge. In the incremental
// merge each entry is classified against the running cursor: accepted
// entries are appended in order, stale and foreign-epoch entries are
// skipped, and the first gap stops the batch with a [CatchUp] anchored
// at the cursor as it stood before the gap. A before-direction batch
// prepends the contiguous run of older rows below the cursor's start.
func ProcessTimelineResponse(payload timeline.TimelineResponse, state State, init InitContext) ResponseResult {
	if message, failed := payload.Failure(); failed {
		result := ResponseResult{
			State:             state,
			ClearInitializing: true,
			Err:               fmt.Errorf("%w: agent %s: %s", ErrResponseFailed, payload.AgentID, message),
		}
		if init.HasActiveInitDeferred {
			result.InitResolution = InitReject
		}
		return result
	}

	policy := ResolveBootstrapPolicy(BootstrapInput{
		Direction:             payload.Direction,
		Reset:                 payload.Reset,
		Epoch:                 payload.Epoch,
		EndCursor:             payload.EndCursor,
		IsInitializing:        init.IsInitializing,
		HasActiveInitDeferred: init.HasActiveInitDeferred,
	})

	var result ResponseResult
	switch {
	case policy.Replace:
		result = replaceState(payload, state, policy)
	case payload.Direction == timeline.DirectionBefore && state.Cursor != nil:
		result = prependOlder(payload, state)
	default:
		result = mergeIncremental(payload, state)
	}

	result.Effects = append(result.Effects, FlushPendingUpdates{})
	result.ClearInitializing = init.IsInitializing
	if init.HasActiveInitDeferred && ShouldResolveTimelineInit(init.RequestedDirection, payload.Direction) {
		result.InitResolution = InitResolve
	}
	return result
}

func replaceState(payload timeline.TimelineResponse, state State, policy BootstrapPolicy) ResponseResult {
	entries := payload.StampedEntries()

	var cursor *timeline.Cursor
	switch {
	case len(entries) > 0:
		cursor = &timeline.Cursor{Epoch: payload.Epoch, StartSeq: entries[0].Seq, EndSeq: entries[0].Seq}
		for _, entry := range entries[1:] {
			cursor.StartSeq = min(cursor.StartSeq, entry.Seq)
			cursor.EndSeq = max(cursor.EndSeq, entry.Seq)
		}
	case payload.StartCursor != nil && payload.EndCursor != nil:
		cursor = &timeline.Cursor{Epoch: payload.Epoch, StartSeq: payload.StartCursor.Seq, EndSeq: payload.EndCursor.Seq}
	}

	result := ResponseResult{
		State:         State{Tail: entries, Cursor: cursor},
		CursorChanged: !cursor.Equal(state.Cursor),
	}
	if policy.CatchUpCursor != nil {
		result.Effects = append(result.Effects, CatchUp{Cursor: *policy.CatchUpCursor})
	}
	return result
}

func mergeIncremental(payload timeline.TimelineResponse, state State) ResponseResult {
	var running *timeline.Cursor
	if state.Cursor != nil {
		copied := *state.Cursor
		running = &copied
	}

	var accepted []timeline.Entry
	var effects []Effect
entries:
	for _, entry := range payload.StampedEntries() {
		switch timeline.Classify(running, payload.Epoch, entry.Seq) {
		case timeline.DecisionInit:
			running = &timeline.Cursor{Epoch: payload.Epoch, StartSeq: entry.Seq, EndSeq: entry.Seq}
			accepted = append(accepted, entry)
		case timeline.DecisionAccept:
			running.EndSeq = entry.Seq
			accepted = append(accepted, entry)
		case timeline.DecisionGap:
			effects = append(effects, CatchUp{Cursor: CatchUpCursor{Epoch: running.Epoch, EndSeq: running.EndSeq}})
			break entries
		}
	}

	next := state
	if len(accepted) > 0 {
		// Accepted rows follow everything the cursor covered, including
		// live rows already in head, so head is folded into tail first.
		tail := make([]timeline.Entry, 0, len(state.Tail)+len(state.Head)+len(accepted))
		tail = append(tail, state.Tail...)
		tail = append(tail, state.Head...)
		next = State{Tail: append(tail, accepted...), Cursor: running}
	}
	return ResponseResult{
		State:         next,
		CursorChanged: !next.Cursor.Equal(state.Cursor),
		Effects:       effects,
	}
}

func prependOlder(payload timeline.TimelineResponse, state State) ResponseResult {
	cursor := *state.Cursor
	if payload.Epoch != cursor.Epoch {
		return ResponseResult{State: state}
	}

	entries := payload.StampedEntries()
	var older []timeline.Entry
	for index := len(entries) - 1; index >= 0; index-- {
		if entries[index].Seq != cursor.StartSeq-1 {
			continue
		}
		older = append(older, entries[index])
		cursor.StartSeq--
	}
	if len(older) == 0 {
		return ResponseResult{State: state}
	}
	slices.Reverse(older)

	next := State{
		Tail:   append(older, state.Tail...),
		Head:   state.Head,
		Cursor: &cursor,
	}
	return ResponseResult{State: next, CursorChanged: true}
}
