// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon is the agent-host side of a relay session.
//
// A [Log] holds each agent's canonical timeline under an epoch and
// answers window requests. A [Link] attaches the log to a relay: it
// keeps the control socket open, opens one data socket per connected
// client, answers fetch requests on those sockets, and streams every
// appended row to all of them. A [Tailer] feeds the log from a JSONL
// event file written by the agent runtime.
package daemon
