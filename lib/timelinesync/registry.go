// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timelinesync

import (
	"context"
	"errors"
	"sync"

	"github.com/paseo-dev/paseo/lib/timeline"
)

var (
	// ErrInitSuperseded rejects a bootstrap wait replaced by a newer
	// one for the same key.
	ErrInitSuperseded = errors.New("timeline init superseded")

	// ErrInitEvicted rejects a bootstrap wait removed by [InitRegistry.Evict].
	ErrInitEvicted = errors.New("timeline init evicted")
)

// InitKey identifies one agent timeline on one server.
type InitKey struct {
	ServerID string
	AgentID  string
}

// InitWait is a pending bootstrap. It completes exactly once, either
// resolved (Err returns nil) or rejected.
type InitWait struct {
	direction timeline.Direction
	done      chan struct{}
	once      sync.Once
	err       error
}

func newInitWait(direction timeline.Direction) *InitWait {
	return &InitWait{direction: direction, done: make(chan struct{})}
}

// Direction is the request direction that resolves this wait.
func (wait *InitWait) Direction() timeline.Direction { return wait.direction }

// Done is closed when the wait completes.
func (wait *InitWait) Done() <-chan struct{} { return wait.done }

// Err returns the rejection error once Done is closed. It returns nil
// for a resolved wait and for a wait that has not completed.
func (wait *InitWait) Err() error {
	select {
	case <-wait.done:
		return wait.err
	default:
		return nil
	}
}

// Wait blocks until the wait completes or ctx is done.
func (wait *InitWait) Wait(ctx context.Context) error {
	select {
	case <-wait.done:
		return wait.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wait *InitWait) complete(err error) bool {
	completed := false
	wait.once.Do(func() {
		wait.err = err
		close(wait.done)
		completed = true
	})
	return completed
}

// InitRegistry holds at most one pending bootstrap wait per [InitKey].
// It is safe for concurrent use.
type InitRegistry struct {
	mu    sync.Mutex
	waits map[InitKey]*InitWait
}

// NewInitRegistry returns an empty registry.
func NewInitRegistry() *InitRegistry {
	return &InitRegistry{waits: make(map[InitKey]*InitWait)}
}

// Create registers a wait for key that resolves on a response in
// direction. An existing wait for key is rejected with
// [ErrInitSuperseded].
func (registry *InitRegistry) Create(key InitKey, direction timeline.Direction) *InitWait {
	wait := newInitWait(direction)

	registry.mu.Lock()
	previous := registry.waits[key]
	registry.waits[key] = wait
	registry.mu.Unlock()

	if previous != nil {
		previous.complete(ErrInitSuperseded)
	}
	return wait
}

// Active returns the pending wait for key.
func (registry *InitRegistry) Active(key InitKey) (*InitWait, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	wait, ok := registry.waits[key]
	return wait, ok
}

// Resolve completes the pending wait for key successfully and removes
// it. It returns false when no wait was pending.
func (registry *InitRegistry) Resolve(key InitKey) bool {
	wait := registry.take(key)
	return wait != nil && wait.complete(nil)
}

// Reject completes the pending wait for key with err and removes it.
// It returns false when no wait was pending.
func (registry *InitRegistry) Reject(key InitKey, err error) bool {
	wait := registry.take(key)
	return wait != nil && wait.complete(err)
}

// Evict rejects and removes the pending wait for key, if any.
func (registry *InitRegistry) Evict(key InitKey) {
	registry.Reject(key, ErrInitEvicted)
}

// Len returns the number of pending waits.
func (registry *InitRegistry) Len() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.waits)
}

func (registry *InitRegistry) take(key InitKey) *InitWait {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	wait := registry.waits[key]
	delete(registry.waits, key)
	return wait
}
