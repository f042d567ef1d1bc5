// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// paseo-relay accepts daemon and client WebSocket connections and
// routes frames between them, one session per server ID.
//
// Configuration comes from the relay section of the file named by
// --config or PASEO_CONFIG; without either, built-in defaults apply.
// Flags override the file. SIGINT or SIGTERM closes every socket with
// 1001 and exits once the HTTP server has drained.
package main
