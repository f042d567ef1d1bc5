// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package client connects to a relay session as a client and keeps a
// materialized timeline per agent.
//
// A [Client] owns one client socket and dispatches the daemon's
// responses and live events to [Timeline] controllers. Each controller
// feeds them through the reducers in lib/timelinesync and carries out
// the effects they return: catch-up requests go back to the daemon and
// flushes are delivered on [Timeline.Updates].
package client
