// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// paseo-daemon serves agent timelines to remote clients through a
// relay.
//
// It tails a JSONL file of agent events into an in-memory timeline log
// and holds a control socket on the relay under its server ID. For
// every client the relay announces, it opens a data socket, answers
// timeline window requests, and streams new events live.
package main
