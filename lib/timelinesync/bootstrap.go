// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timelinesync

import "github.com/paseo-dev/paseo/lib/timeline"

// BootstrapInput is the part of a window response and the client's
// init state that the bootstrap policy looks at.
type BootstrapInput struct {
	Direction timeline.Direction
	Reset     bool
	Epoch     string
	EndCursor *timeline.SeqCursor

	// IsInitializing is true until the first response after attach has
	// been processed.
	IsInitializing bool

	// HasActiveInitDeferred is true while a bootstrap caller is blocked
	// waiting for its response.
	HasActiveInitDeferred bool
}

// BootstrapPolicy says how to apply a window response.
type BootstrapPolicy struct {
	// Replace discards the local tail and head and installs the
	// response entries as the new baseline.
	Replace bool

	// CatchUpCursor, when set, requires a catch-up request after the
	// replacement. Live events that arrived before the baseline landed
	// are re-fetched against it.
	CatchUpCursor *CatchUpCursor
}

// ResolveBootstrapPolicy decides whether a response replaces local
// state. An explicit reset always replaces without a catch-up. A tail
// response that lands while a bootstrap is pending replaces and
// schedules a catch-up from its end cursor. Everything else is applied
// incrementally.
func ResolveBootstrapPolicy(input BootstrapInput) BootstrapPolicy {
	if input.Reset {
		return BootstrapPolicy{Replace: true}
	}
	if input.Direction == timeline.DirectionTail && input.IsInitializing && input.HasActiveInitDeferred {
		policy := BootstrapPolicy{Replace: true}
		if input.EndCursor != nil {
			policy.CatchUpCursor = &CatchUpCursor{Epoch: input.Epoch, EndSeq: input.EndCursor.Seq}
		}
		return policy
	}
	return BootstrapPolicy{}
}

// ShouldResolveTimelineInit reports whether a response in the received
// direction satisfies a bootstrap wait for the requested direction.
// Only an exact match resolves; anything else leaves the wait pending.
func ShouldResolveTimelineInit(requested, received timeline.Direction) bool {
	return requested != "" && requested == received
}
