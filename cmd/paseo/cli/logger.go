// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger returns a logger writing to stderr: text records
// when stderr is a terminal, JSON records otherwise.
func NewCommandLogger() *slog.Logger {
	return NewLogger(os.Stderr, slog.LevelInfo)
}

// NewLogger is [NewCommandLogger] for an arbitrary file. The paseo-relay
// and paseo-daemon binaries use it with their --log-level.
func NewLogger(file *os.File, level slog.Level) *slog.Logger {
	return newLogger(file, IsTerminal(file), level)
}

func newLogger(w io.Writer, terminal bool, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if terminal {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// IsTerminal reports whether file is attached to a terminal.
func IsTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}
