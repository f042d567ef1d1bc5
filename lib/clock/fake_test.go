// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestFakeAfterFuncOrder(t *testing.T) {
	t.Parallel()

	clock := Fake(epoch)
	var fired []string
	clock.AfterFunc(15*time.Second, func() { fired = append(fired, "close") })
	clock.AfterFunc(10*time.Second, func() { fired = append(fired, "sync") })
	clock.AfterFunc(10*time.Second, func() { fired = append(fired, "sync-2") })

	clock.Advance(9 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("fired early: %v", fired)
	}
	clock.Advance(6 * time.Second)
	if want := []string{"sync", "sync-2", "close"}; !slices.Equal(fired, want) {
		t.Errorf("fired: got %v, want %v", fired, want)
	}
	if got := clock.Now(); !got.Equal(epoch.Add(15 * time.Second)) {
		t.Errorf("Now: got %v, want %v", got, epoch.Add(15*time.Second))
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	t.Parallel()

	clock := Fake(epoch)
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop on a pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}
	clock.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
	if clock.Pending() != 0 {
		t.Errorf("Pending: got %d, want 0", clock.Pending())
	}
}

func TestFakeCallbackSchedulesFollowUp(t *testing.T) {
	t.Parallel()

	clock := Fake(epoch)
	var at []time.Time
	clock.AfterFunc(10*time.Second, func() {
		at = append(at, clock.Now())
		clock.AfterFunc(5*time.Second, func() { at = append(at, clock.Now()) })
	})

	clock.Advance(15 * time.Second)
	want := []time.Time{epoch.Add(10 * time.Second), epoch.Add(15 * time.Second)}
	if !slices.EqualFunc(at, want, time.Time.Equal) {
		t.Errorf("fire times: got %v, want %v", at, want)
	}
}

func TestFakeTicker(t *testing.T) {
	t.Parallel()

	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	clock.Advance(time.Second)
	select {
	case tick := <-ticker.C():
		if !tick.Equal(epoch.Add(time.Second)) {
			t.Errorf("tick: got %v, want %v", tick, epoch.Add(time.Second))
		}
	default:
		t.Fatal("no tick after one period")
	}

	// Three periods with nobody reading: the channel holds one tick.
	clock.Advance(3 * time.Second)
	<-ticker.C()
	select {
	case tick := <-ticker.C():
		t.Errorf("unexpected buffered tick %v", tick)
	default:
	}
}

func TestFakeAfter(t *testing.T) {
	t.Parallel()

	clock := Fake(epoch)
	channel := clock.After(time.Minute)
	clock.WaitForTimers(1)
	clock.Advance(time.Minute)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire")
	}

	select {
	case <-clock.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}
