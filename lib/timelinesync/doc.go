// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package timelinesync applies timeline window responses and live agent
// events to a client's local view of an agent log.
//
// The reducers in this package are pure: [ProcessTimelineResponse] and
// [ProcessAgentStreamEvent] take the current [State] and return the
// next one together with a list of [Effect] values. They never perform
// I/O. The caller (the client controller, in practice) decides when and
// how to execute a [CatchUp] request or honor a [FlushPendingUpdates],
// which keeps ordering logic independent of transport timing.
//
// A client's first window request races against the live stream.
// [ResolveBootstrapPolicy] decides whether a response replaces local
// state and whether a catch-up must follow, and [InitRegistry] tracks
// the pending bootstrap wait per (server, agent) pair.
package timelinesync
