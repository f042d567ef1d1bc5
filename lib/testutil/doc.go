// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the wall-clock safety valves shared by paseo
// tests. Logic under test runs on a fake clock; these helpers only
// bound how long a test waits for a goroutine or a socket before
// failing instead of hanging.
package testutil
