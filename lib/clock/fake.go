// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a manually advanced [Clock]. It is safe for concurrent
// use.
//
// Callbacks registered with AfterFunc run in the goroutine that calls
// [FakeClock.Advance], without the clock's lock held, so they may
// schedule further timers. They must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	nextID  uint64
	pending []*scheduled
	changed *sync.Cond
}

type scheduled struct {
	id       uint64
	deadline time.Time
	period   time.Duration
	callback func()
	channel  chan time.Time
	canceled bool
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	clock := &FakeClock{now: start}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (clock *FakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

// After returns a channel that receives when the clock passes now+d.
func (clock *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	clock.mu.Lock()
	defer clock.mu.Unlock()
	if d <= 0 {
		channel <- clock.now
		return channel
	}
	clock.scheduleLocked(&scheduled{deadline: clock.now.Add(d), channel: channel})
	return channel
}

// AfterFunc schedules f. With d <= 0, f runs before AfterFunc returns.
func (clock *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	if d <= 0 {
		f()
		return fakeTimer{}
	}
	clock.mu.Lock()
	defer clock.mu.Unlock()
	entry := &scheduled{deadline: clock.now.Add(d), callback: f}
	clock.scheduleLocked(entry)
	return fakeTimer{clock: clock, entry: entry}
}

// NewTicker returns a ticker that fires each time the clock passes
// another multiple of d.
func (clock *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	clock.mu.Lock()
	defer clock.mu.Unlock()
	entry := &scheduled{deadline: clock.now.Add(d), period: d, channel: make(chan time.Time, 1)}
	clock.scheduleLocked(entry)
	return fakeTicker{clock: clock, entry: entry}
}

// Advance moves the clock forward by d and fires everything due, in
// deadline order. Timers scheduled by a callback fire in the same call
// if their deadline is also due.
func (clock *FakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	target := clock.now.Add(d)
	clock.mu.Unlock()

	for {
		clock.mu.Lock()
		entry := clock.popDueLocked(target)
		if entry == nil {
			clock.now = target
			clock.mu.Unlock()
			return
		}
		clock.now = entry.deadline
		if entry.period > 0 {
			entry.deadline = entry.deadline.Add(entry.period)
			clock.scheduleLocked(entry)
		}
		fireAt := clock.now
		clock.mu.Unlock()

		if entry.callback != nil {
			entry.callback()
			continue
		}
		select {
		case entry.channel <- fireAt:
		default:
		}
	}
}

// WaitForTimers blocks until at least n timers or tickers are pending.
// Tests use it to avoid advancing before a goroutine has scheduled its
// timer.
func (clock *FakeClock) WaitForTimers(n int) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	for len(clock.pending) < n {
		clock.changed.Wait()
	}
}

// Pending returns the number of scheduled timers and tickers.
func (clock *FakeClock) Pending() int {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return len(clock.pending)
}

func (clock *FakeClock) scheduleLocked(entry *scheduled) {
	clock.nextID++
	entry.id = clock.nextID
	// Ordered by deadline, then by scheduling order.
	index, _ := slices.BinarySearchFunc(clock.pending, entry, func(a, b *scheduled) int {
		if c := a.deadline.Compare(b.deadline); c != 0 {
			return c
		}
		return compareIDs(a.id, b.id)
	})
	clock.pending = slices.Insert(clock.pending, index, entry)
	clock.changed.Broadcast()
}

func (clock *FakeClock) popDueLocked(target time.Time) *scheduled {
	if len(clock.pending) == 0 || clock.pending[0].deadline.After(target) {
		return nil
	}
	entry := clock.pending[0]
	clock.pending = clock.pending[1:]
	return entry
}

func (clock *FakeClock) cancel(entry *scheduled) bool {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	if entry.canceled {
		return false
	}
	index := slices.Index(clock.pending, entry)
	if index < 0 {
		return false
	}
	entry.canceled = true
	clock.pending = slices.Delete(clock.pending, index, index+1)
	return true
}

func compareIDs(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type fakeTimer struct {
	clock *FakeClock
	entry *scheduled
}

func (timer fakeTimer) Stop() bool {
	if timer.clock == nil {
		return false
	}
	return timer.clock.cancel(timer.entry)
}

type fakeTicker struct {
	clock *FakeClock
	entry *scheduled
}

func (ticker fakeTicker) C() <-chan time.Time { return ticker.entry.channel }
func (ticker fakeTicker) Stop()               { ticker.clock.cancel(ticker.entry) }
