// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is a source of time and timers.
type Clock interface {
	Now() time.Time

	// After returns a channel that receives the time once d elapses.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d elapses. The real clock runs f in its
	// own goroutine; the fake clock runs it inside Advance.
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker delivers ticks every d. It panics if d <= 0.
	NewTicker(d time.Duration) Ticker
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop cancels the call. It reports whether the call was still
	// pending.
	Stop() bool
}

// Ticker delivers periodic ticks on a channel of capacity one. A tick
// that finds the channel full is dropped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}
