// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ErrKeyNotFound is returned by [KV.Get] for an absent key.
var ErrKeyNotFound = errors.New("key not found")

// KV is the storage a hibernating host keeps across restarts.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// DurablePending is a [PendingStore] that survives process restarts.
// Each client's buffer is one KV record: a CBOR array of frames,
// compressed, behind a one-byte codec tag.
type DurablePending struct {
	kv          KV
	limit       int
	compression Compression

	// mu serializes read-modify-write cycles on the same store.
	mu sync.Mutex
}

// NewDurablePending returns a store over kv capped at limit frames per
// client. A limit of zero or less means [DefaultPendingLimit].
func NewDurablePending(kv KV, limit int, compression Compression) *DurablePending {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return &DurablePending{kv: kv, limit: limit, compression: compression}
}

type storedFrame struct {
	Binary bool   `cbor:"1,keyasint,omitempty"`
	Data   []byte `cbor:"2,keyasint"`
}

func pendingStorageKey(key PendingKey) string {
	return "pending/" + url.PathEscape(key.ServerID) + "/" + url.PathEscape(key.ClientID)
}

func (store *DurablePending) Push(key PendingKey, frame Frame) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	frames, err := store.load(key)
	if err != nil {
		return err
	}
	return store.save(key, appendBounded(frames, frame, store.limit))
}

func (store *DurablePending) Drain(key PendingKey) ([]Frame, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	frames, err := store.load(key)
	if err != nil {
		return nil, err
	}
	if err := store.kv.Delete(pendingStorageKey(key)); err != nil {
		return nil, fmt.Errorf("clearing pending frames: %w", err)
	}
	return frames, nil
}

func (store *DurablePending) Drop(key PendingKey) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := store.kv.Delete(pendingStorageKey(key)); err != nil {
		return fmt.Errorf("dropping pending frames: %w", err)
	}
	return nil
}

func (store *DurablePending) load(key PendingKey) ([]Frame, error) {
	record, err := store.kv.Get(pendingStorageKey(key))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pending frames: %w", err)
	}
	data, err := openRecord(record)
	if err != nil {
		return nil, err
	}
	var stored []storedFrame
	if err := cbor.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decoding pending frames: %w", err)
	}
	frames := make([]Frame, len(stored))
	for index, entry := range stored {
		frames[index] = Frame{Binary: entry.Binary, Data: entry.Data}
	}
	return frames, nil
}

func (store *DurablePending) save(key PendingKey, frames []Frame) error {
	stored := make([]storedFrame, len(frames))
	for index, frame := range frames {
		stored[index] = storedFrame{Binary: frame.Binary, Data: frame.Data}
	}
	data, err := identityEncMode.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding pending frames: %w", err)
	}
	record, err := sealRecord(data, store.compression)
	if err != nil {
		return err
	}
	if err := store.kv.Put(pendingStorageKey(key), record); err != nil {
		return fmt.Errorf("writing pending frames: %w", err)
	}
	return nil
}

// MemoryKV is a [KV] in process memory.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryKV returns an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (kv *MemoryKV) Get(key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	value, ok := kv.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (kv *MemoryKV) Put(key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.values[key] = append([]byte(nil), value...)
	return nil
}

func (kv *MemoryKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.values, key)
	return nil
}

// DirKV is a [KV] with one file per key under a directory. Writes go
// through a temporary file and a rename, so a crash leaves either the
// old record or the new one.
type DirKV struct {
	root string
}

// NewDirKV creates root if needed and returns a store in it.
func NewDirKV(root string) (*DirKV, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating pending directory: %w", err)
	}
	return &DirKV{root: root}, nil
}

func (kv *DirKV) path(key string) string {
	return filepath.Join(kv.root, url.PathEscape(key))
}

func (kv *DirKV) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(kv.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	return data, err
}

func (kv *DirKV) Put(key string, value []byte) error {
	temporary, err := os.CreateTemp(kv.root, ".pending-*")
	if err != nil {
		return err
	}
	if _, err := temporary.Write(value); err != nil {
		temporary.Close()
		os.Remove(temporary.Name())
		return err
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return err
	}
	return os.Rename(temporary.Name(), kv.path(key))
}

func (kv *DirKV) Delete(key string) error {
	err := os.Remove(kv.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
