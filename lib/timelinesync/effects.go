// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timelinesync

// Effect is a follow-up action returned by a reducer. The set of
// implementations is closed: [CatchUp] and [FlushPendingUpdates].
type Effect interface {
	effect()
}

// CatchUpCursor anchors a catch-up request: fetch everything after
// EndSeq in Epoch.
type CatchUpCursor struct {
	Epoch  string `json:"epoch"`
	EndSeq int64  `json:"endSeq"`
}

// CatchUp asks the caller to issue an "after" window request starting
// at Cursor.
type CatchUp struct {
	Cursor CatchUpCursor
}

// FlushPendingUpdates asks the caller to push buffered state to the
// renderer.
type FlushPendingUpdates struct{}

func (CatchUp) effect()             {}
func (FlushPendingUpdates) effect() {}
