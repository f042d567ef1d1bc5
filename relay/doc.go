// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay routes WebSocket frames between one daemon and any
// number of clients per session.
//
// A session is identified by the daemon's server ID. The daemon holds
// one control socket per session and opens one data socket per client
// ID; clients may open several sockets under the same client ID (one
// per browser tab or terminal). Frames from a client go to the data
// socket for its client ID and are buffered in a [PendingStore] until
// that socket exists. Frames from a data socket fan out to every
// socket of its client. The control socket carries session signaling
// only and is never forwarded.
//
// Every socket carries its [Identity] as an encoded attachment, and
// the [Router] reads it back on each event instead of holding
// per-connection state. The same router therefore serves a long-lived
// process with a [MemoryRegistry] and a host that may rebuild its
// state between events with a [HibernatingRegistry].
//
// When a client connects and no data socket follows, a two-stage
// health check first nudges the control socket with a sync message and
// then closes it, forcing the daemon to reconnect.
//
// [Server] adapts the router to gorilla/websocket over HTTP.
package relay
