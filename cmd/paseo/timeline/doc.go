// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeline implements "paseo timeline": commands that attach
// to a relay session as a client and display one agent's timeline.
//
// "show" bootstraps the newest entries and prints them, styled for a
// terminal or as JSON lines. "watch" keeps the connection open and
// renders the live projection in a scrolling terminal UI.
package timeline
