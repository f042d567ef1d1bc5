// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"

	"github.com/paseo-dev/paseo/lib/timeline"
)

// eventLine is one line of the agent event file. A line carries either
// an Item, which is appended to the agent's timeline, or an Event,
// which names a turn transition.
type eventLine struct {
	AgentID  string                   `json:"agentId"`
	Provider string                   `json:"provider,omitempty"`
	Item     *timeline.Item           `json:"item,omitempty"`
	Event    timeline.StreamEventType `json:"event,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// TailerConfig configures a [Tailer].
type TailerConfig struct {
	// Path is the JSONL event file. It need not exist yet.
	Path string

	// Log receives the parsed events. Required.
	Log *Log

	Logger *slog.Logger
}

// Tailer follows an append-only JSONL file of agent events and feeds
// it into a [Log].
//
// The file is read from the start. A line is processed once its
// newline has been written. If the file shrinks, or is removed and
// recreated, reading restarts at offset zero and every agent seen so
// far gets a new epoch, since its rows are about to be replayed.
type Tailer struct {
	path    string
	history *Log
	logger  *slog.Logger

	offset  int64
	partial []byte
	seen    map[string]struct{}
}

// NewTailer returns a tailer. Call [Tailer.Run] to start following.
func NewTailer(config TailerConfig) (*Tailer, error) {
	if config.Path == "" {
		return nil, errors.New("tailer: path is required")
	}
	if config.Log == nil {
		return nil, errors.New("tailer: log is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	path, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("tailer: %w", err)
	}
	return &Tailer{
		path:    path,
		history: config.Log,
		logger:  config.Logger.With("path", path),
		seen:    make(map[string]struct{}),
	}, nil
}

// Run reads what the file already holds and then follows it until ctx
// is done. The parent directory is watched rather than the file, so
// the file may be created or replaced while Run is active.
func (tailer *Tailer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	directory := filepath.Dir(tailer.path)
	if err := watcher.Add(directory); err != nil {
		return fmt.Errorf("watching %s: %w", directory, err)
	}
	tailer.poll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != tailer.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				tailer.restart("file removed")
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				tailer.poll()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			tailer.logger.Warn("file watcher error", "error", err)
		}
	}
}

// poll reads everything appended since the last call and processes
// each complete line.
func (tailer *Tailer) poll() {
	file, err := os.Open(tailer.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		tailer.logger.Warn("opening event file failed", "error", err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		tailer.logger.Warn("reading event file size failed", "error", err)
		return
	}
	if info.Size() < tailer.offset {
		tailer.restart("file truncated")
	}

	if _, err := file.Seek(tailer.offset, io.SeekStart); err != nil {
		tailer.logger.Warn("seeking event file failed", "error", err)
		return
	}
	appended, err := io.ReadAll(file)
	if err != nil {
		tailer.logger.Warn("reading event file failed", "error", err)
	}
	tailer.offset += int64(len(appended))

	buffered := append(tailer.partial, appended...)
	for {
		newline := bytes.IndexByte(buffered, '\n')
		if newline < 0 {
			break
		}
		tailer.handleLine(buffered[:newline])
		buffered = buffered[newline+1:]
	}
	tailer.partial = bytes.Clone(buffered)
}

// restart rewinds to the start of the file and gives every agent seen
// so far a new epoch.
func (tailer *Tailer) restart(reason string) {
	agents := make([]string, 0, len(tailer.seen))
	for agentID := range tailer.seen {
		agents = append(agents, agentID)
	}
	sort.Strings(agents)
	tailer.logger.Info("restarting event file", "reason", reason, "agents", len(agents))

	for _, agentID := range agents {
		tailer.history.Reset(agentID)
	}
	tailer.offset = 0
	tailer.partial = nil
	clear(tailer.seen)
}

func (tailer *Tailer) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	var parsed eventLine
	if err := sonic.ConfigStd.Unmarshal(line, &parsed); err != nil {
		tailer.logger.Warn("skipping malformed event line", "error", err)
		return
	}
	if parsed.AgentID == "" {
		tailer.logger.Warn("skipping event line without agentId")
		return
	}
	tailer.seen[parsed.AgentID] = struct{}{}

	switch {
	case parsed.Item != nil:
		tailer.history.Append(parsed.AgentID, parsed.Provider, *parsed.Item)
	case parsed.Event == timeline.StreamTurnStarted,
		parsed.Event == timeline.StreamTurnCompleted,
		parsed.Event == timeline.StreamTurnFailed:
		tailer.history.Publish(parsed.AgentID, timeline.StreamEvent{
			Type:     parsed.Event,
			Provider: parsed.Provider,
			Error:    parsed.Error,
		})
	default:
		tailer.logger.Warn("skipping event line with neither item nor turn event",
			"agent_id", parsed.AgentID, "event", parsed.Event)
	}
}
