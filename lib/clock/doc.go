// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every timer in paseo: relay
// health checks, daemon reconnect backoff, and keepalive pings.
//
// Components take a [Clock] field instead of calling the time package.
// Binaries pass [Real]; tests pass a [FakeClock] from [Fake] and move
// time forward with [FakeClock.Advance], which runs due callbacks
// synchronously in deadline order. Tests never sleep waiting for a
// timer.
package clock
