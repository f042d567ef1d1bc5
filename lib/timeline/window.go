// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

// WindowRequest selects a page of projected entries from Rows.
type WindowRequest struct {
	// Rows is the canonical log, in ascending seq order.
	Rows []Entry

	// Direction DirectionAfter takes the first Limit projected entries;
	// any other direction takes the last Limit.
	Direction Direction

	// Limit counts projected entries, not canonical rows. Zero or
	// negative selects everything.
	Limit int
}

// Window is the result of [SelectWindowByProjectedLimit].
type Window struct {
	// Rows is the contiguous slice of canonical rows that reproduces
	// Entries exactly when projected on its own.
	Rows []Entry

	// Entries is the projection of Rows.
	Entries []ProjectionEntry

	// MinSeq and MaxSeq bound Rows. Both are zero when Rows is empty.
	MinSeq int64
	MaxSeq int64

	// Iterations is the number of expansion passes run before the
	// range stopped changing.
	Iterations int
}

// SelectWindowByProjectedLimit picks Limit projected entries from one
// end of the log and returns the smallest canonical range that yields
// them.
//
// Tool lifecycle collapse makes this more than a slice: a call that
// starts early and completes late produces an entry whose seqs straddle
// other entries. The selected range therefore grows until every
// projected entry touching it lies wholly inside it. Each pass either
// stops or strictly widens the range, so the loop ends within
// len(Rows)+1 passes.
func SelectWindowByProjectedLimit(request WindowRequest) Window {
	rows := request.Rows
	if len(rows) == 0 {
		return Window{}
	}

	projected := Project(rows, ModeProjected)
	selected := projected
	if request.Limit > 0 && request.Limit < len(projected) {
		if request.Direction == DirectionAfter {
			selected = projected[:request.Limit]
		} else {
			selected = projected[len(projected)-request.Limit:]
		}
	}

	minSeq, maxSeq := selected[0].SeqStart, selected[0].SeqEnd
	for _, entry := range selected[1:] {
		minSeq = min(minSeq, entry.SeqStart)
		maxSeq = max(maxSeq, entry.SeqEnd)
	}

	iterations := 0
	for iterations <= len(rows) {
		iterations++
		nextMin, nextMax := minSeq, maxSeq
		for _, entry := range projected {
			if entry.SeqStart <= maxSeq && entry.SeqEnd >= minSeq {
				nextMin = min(nextMin, entry.SeqStart)
				nextMax = max(nextMax, entry.SeqEnd)
			}
		}
		if nextMin == minSeq && nextMax == maxSeq {
			break
		}
		minSeq, maxSeq = nextMin, nextMax
	}

	windowRows := rowsInRange(rows, minSeq, maxSeq)
	return Window{
		Rows:       windowRows,
		Entries:    Project(windowRows, ModeProjected),
		MinSeq:     minSeq,
		MaxSeq:     maxSeq,
		Iterations: iterations,
	}
}

func rowsInRange(rows []Entry, minSeq, maxSeq int64) []Entry {
	var selected []Entry
	for _, row := range rows {
		if row.Seq >= minSeq && row.Seq <= maxSeq {
			selected = append(selected, row)
		}
	}
	return selected
}
