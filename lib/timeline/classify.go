// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

// Decision is the outcome of classifying an incoming (epoch, seq) pair
// against a cursor.
type Decision string

const (
	// DecisionInit: no cursor exists; this is the first entry seen.
	DecisionInit Decision = "init"

	// DecisionDropEpoch: the entry belongs to a different generation.
	// The caller must not advance any state.
	DecisionDropEpoch Decision = "drop_epoch"

	// DecisionDropStale: the entry was already applied (duplicate or
	// replay). Applying it again is a no-op.
	DecisionDropStale Decision = "drop_stale"

	// DecisionAccept: the entry is exactly the next expected seq.
	DecisionAccept Decision = "accept"

	// DecisionGap: at least one entry between the cursor and this seq
	// is missing. The caller must catch up before accepting it.
	DecisionGap Decision = "gap"
)

// Classify decides whether the entry (epoch, seq) can be applied on top
// of cursor. The checks run in priority order: missing cursor, epoch
// mismatch, stale, next, gap.
func Classify(cursor *Cursor, epoch string, seq int64) Decision {
	switch {
	case cursor == nil:
		return DecisionInit
	case epoch != cursor.Epoch:
		return DecisionDropEpoch
	case seq <= cursor.EndSeq:
		return DecisionDropStale
	case seq == cursor.EndSeq+1:
		return DecisionAccept
	default:
		return DecisionGap
	}
}
