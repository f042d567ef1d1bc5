// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "sync"

// DefaultPendingLimit is the per-client buffer cap.
const DefaultPendingLimit = 200

// PendingKey names one client's buffer.
type PendingKey struct {
	ServerID string
	ClientID string
}

// PendingStore buffers frames from a client whose data socket has not
// connected yet. Each buffer holds at most its store's limit; pushing
// onto a full buffer discards the oldest frame.
type PendingStore interface {
	Push(key PendingKey, frame Frame) error

	// Drain returns the buffered frames in arrival order and empties
	// the buffer.
	Drain(key PendingKey) ([]Frame, error)

	// Drop discards the buffer.
	Drop(key PendingKey) error
}

// MemoryPending is a [PendingStore] held in process memory.
type MemoryPending struct {
	limit   int
	mu      sync.Mutex
	buffers map[PendingKey][]Frame
}

// NewMemoryPending returns a store capped at limit frames per client.
// A limit of zero or less means [DefaultPendingLimit].
func NewMemoryPending(limit int) *MemoryPending {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return &MemoryPending{limit: limit, buffers: make(map[PendingKey][]Frame)}
}

func (store *MemoryPending) Push(key PendingKey, frame Frame) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.buffers[key] = appendBounded(store.buffers[key], frame, store.limit)
	return nil
}

func (store *MemoryPending) Drain(key PendingKey) ([]Frame, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	frames := store.buffers[key]
	delete(store.buffers, key)
	return frames, nil
}

func (store *MemoryPending) Drop(key PendingKey) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.buffers, key)
	return nil
}

// Len returns the number of frames buffered for key.
func (store *MemoryPending) Len(key PendingKey) int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.buffers[key])
}

// appendBounded appends frame and trims the front so at most limit
// frames remain.
func appendBounded(frames []Frame, frame Frame, limit int) []Frame {
	frames = append(frames, frame)
	if excess := len(frames) - limit; excess > 0 {
		frames = append(frames[:0:0], frames[excess:]...)
	}
	return frames
}
