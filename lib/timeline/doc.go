// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeline defines the canonical agent event log as clients see
// it and the pure functions that interpret it.
//
// A daemon numbers every [Entry] of an agent's log with a seq that is
// unique and contiguous within an epoch. The epoch is an opaque string
// that changes whenever the daemon restarts or replaces the session, and
// a change invalidates every cursor built against the old generation.
//
// [Classify] is the single source of truth for whether an incoming
// (epoch, seq) pair can be applied to a [Cursor] right now. It is a
// total function with no hidden state.
//
// [Project] compacts a contiguous slice of the log for display: streamed
// assistant chunks merge into one entry and every update sharing a tool
// call ID folds into the call's first entry. Each [ProjectionEntry]
// records the exact canonical seqs it absorbed, so
// [SelectWindowByProjectedLimit] can map a page of projected entries
// back to the smallest canonical range that reproduces it.
//
// The wire types ([TimelineResponse], [FetchRequest],
// [AgentStreamMessage], [Envelope]) are the JSON frames carried over a
// relay data socket between a daemon and its clients.
package timeline
