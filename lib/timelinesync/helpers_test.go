// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timelinesync

import (
	"fmt"
	"time"

	"github.com/paseo-dev/paseo/lib/timeline"
)

var testEpochStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func entry(epoch string, seq int64) timeline.Entry {
	return timeline.Entry{
		Seq:       seq,
		Epoch:     epoch,
		Provider:  "claude",
		Item:      timeline.Item{Type: timeline.ItemAssistantMessage, Text: fmt.Sprintf("chunk %d ", seq)},
		Timestamp: testEpochStart.Add(time.Duration(seq) * time.Second),
	}
}

func entryRange(epoch string, first, last int64) []timeline.Entry {
	var entries []timeline.Entry
	for seq := first; seq <= last; seq++ {
		entries = append(entries, entry(epoch, seq))
	}
	return entries
}

func seqsOf(entries []timeline.Entry) []int64 {
	seqs := make([]int64, len(entries))
	for index, entry := range entries {
		seqs[index] = entry.Seq
	}
	return seqs
}

func response(direction timeline.Direction, epoch string, entries []timeline.Entry) timeline.TimelineResponse {
	payload := timeline.TimelineResponse{
		AgentID:   "agent-a",
		Direction: direction,
		Epoch:     epoch,
		Entries:   entries,
	}
	if len(entries) > 0 {
		payload.StartCursor = &timeline.SeqCursor{Seq: entries[0].Seq}
		payload.EndCursor = &timeline.SeqCursor{Seq: entries[len(entries)-1].Seq}
	}
	return payload
}

func catchUps(effects []Effect) []CatchUpCursor {
	var cursors []CatchUpCursor
	for _, effect := range effects {
		if catchUp, ok := effect.(CatchUp); ok {
			cursors = append(cursors, catchUp.Cursor)
		}
	}
	return cursors
}

func hasFlush(effects []Effect) bool {
	for _, effect := range effects {
		if _, ok := effect.(FlushPendingUpdates); ok {
			return true
		}
	}
	return false
}
