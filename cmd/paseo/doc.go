// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// paseo is the operator CLI. It attaches to a relay session as a
// client, the same way an app tab does, and reads agent timelines:
//
//	paseo timeline show --server laptop --agent a1
//	paseo timeline watch --server laptop --agent a1
//
// Relay URL and server ID default to the daemon section of the file
// named by --config or PASEO_CONFIG.
package main
