// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"slices"
	"time"
)

// Mode selects how [Project] treats the canonical rows.
type Mode string

const (
	// ModeCanonical emits one entry per row, unchanged.
	ModeCanonical Mode = "canonical"

	// ModeProjected collapses tool call lifecycles and merges adjacent
	// assistant chunks.
	ModeProjected Mode = "projected"
)

// CollapseRule names a reduction applied while building a
// [ProjectionEntry].
type CollapseRule string

const (
	CollapseAssistantMerge CollapseRule = "assistant_merge"
	CollapseToolLifecycle  CollapseRule = "tool_lifecycle"
)

// SeqRange is an inclusive range of canonical seqs.
type SeqRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ProjectionEntry is a display entry derived from one or more canonical
// rows. It is never persisted.
//
// SourceSeqRanges lists every canonical seq folded into the entry,
// sorted and with adjacent ranges merged. SeqStart and SeqEnd are the
// smallest and largest of those seqs. Rows between them that belong to
// other entries are not listed: a tool call that completes after an
// unrelated message has a hole in its ranges.
type ProjectionEntry struct {
	Item            Item           `json:"item"`
	Provider        string         `json:"provider,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	SeqStart        int64          `json:"seqStart"`
	SeqEnd          int64          `json:"seqEnd"`
	SourceSeqRanges []SeqRange     `json:"sourceSeqRanges"`
	Collapsed       []CollapseRule `json:"collapsed,omitempty"`
}

// Project transforms rows, which must be in ascending seq order, into
// display entries. Rows are never modified; merged items are fresh
// copies.
//
// In projected mode two passes run. The first folds every tool_call
// row into the first row that carried the same call ID (see
// mergeToolCall). The second merges an assistant_message into the
// previous output entry when that entry is also an assistant_message
// and ends exactly one seq before it.
func Project(rows []Entry, mode Mode) []ProjectionEntry {
	if mode != ModeProjected {
		entries := make([]ProjectionEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, entryFromRow(row))
		}
		return entries
	}
	return mergeAssistantChunks(collapseToolLifecycles(rows))
}

func entryFromRow(row Entry) ProjectionEntry {
	return ProjectionEntry{
		Item:            row.Item,
		Provider:        row.Provider,
		Timestamp:       row.Timestamp,
		SeqStart:        row.Seq,
		SeqEnd:          row.Seq,
		SourceSeqRanges: []SeqRange{{Start: row.Seq, End: row.Seq}},
	}
}

func collapseToolLifecycles(rows []Entry) []ProjectionEntry {
	entries := make([]ProjectionEntry, 0, len(rows))
	anchors := make(map[string]int)

	for _, row := range rows {
		if row.Item.Type == ItemToolCall && row.Item.CallID != "" {
			if index, seen := anchors[row.Item.CallID]; seen {
				anchor := &entries[index]
				anchor.Item = mergeToolCall(anchor.Item, row.Item)
				anchor.SeqStart = min(anchor.SeqStart, row.Seq)
				anchor.SeqEnd = max(anchor.SeqEnd, row.Seq)
				anchor.SourceSeqRanges = addSeqRange(anchor.SourceSeqRanges, SeqRange{Start: row.Seq, End: row.Seq})
				anchor.Collapsed = addCollapseRule(anchor.Collapsed, CollapseToolLifecycle)
				continue
			}
			anchors[row.Item.CallID] = len(entries)
		}
		entries = append(entries, entryFromRow(row))
	}
	return entries
}

func mergeAssistantChunks(entries []ProjectionEntry) []ProjectionEntry {
	merged := make([]ProjectionEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Item.Type == ItemAssistantMessage && len(merged) > 0 {
			previous := &merged[len(merged)-1]
			if previous.Item.Type == ItemAssistantMessage && previous.SeqEnd+1 == entry.SeqStart {
				previous.Item.Text += entry.Item.Text
				previous.SeqEnd = entry.SeqEnd
				for _, sourceRange := range entry.SourceSeqRanges {
					previous.SourceSeqRanges = addSeqRange(previous.SourceSeqRanges, sourceRange)
				}
				previous.Collapsed = addCollapseRule(previous.Collapsed, CollapseAssistantMerge)
				for _, rule := range entry.Collapsed {
					previous.Collapsed = addCollapseRule(previous.Collapsed, rule)
				}
				continue
			}
		}
		merged = append(merged, entry)
	}
	return merged
}

// mergeToolCall folds a later update of a tool call into the anchor.
//
// The later status always wins. Detail prefers a concrete value over
// the unknown placeholder from either side, and the later value when
// both are concrete; two placeholders merge field by field. Error is
// cleared once the call completes or is canceled, set when it fails,
// and otherwise carried through.
func mergeToolCall(anchor, update Item) Item {
	merged := anchor
	if update.Name != "" {
		merged.Name = update.Name
	}
	if update.Status != "" {
		merged.Status = update.Status
	}
	merged.Detail = mergeToolDetail(anchor.Detail, update.Detail)

	switch merged.Status {
	case ToolCallCompleted, ToolCallCanceled:
		merged.Error = nil
	case ToolCallFailed:
		switch {
		case update.Error != nil:
			merged.Error = cloneToolError(update.Error)
		case anchor.Error != nil:
			merged.Error = cloneToolError(anchor.Error)
		default:
			merged.Error = &ToolCallError{Message: "tool call failed"}
		}
	default:
		if update.Error != nil {
			merged.Error = cloneToolError(update.Error)
		} else {
			merged.Error = cloneToolError(anchor.Error)
		}
	}
	return merged
}

func mergeToolDetail(previous, next *ToolCallDetail) *ToolCallDetail {
	switch {
	case next.Concrete():
		return cloneToolDetail(next)
	case previous.Concrete():
		return cloneToolDetail(previous)
	case previous == nil:
		return cloneToolDetail(next)
	case next == nil:
		return cloneToolDetail(previous)
	}

	merged := &ToolCallDetail{Type: next.Type}
	if merged.Type == "" {
		merged.Type = previous.Type
	}
	merged.Input = next.Input
	if len(merged.Input) == 0 {
		merged.Input = previous.Input
	}
	merged.Output = next.Output
	if len(merged.Output) == 0 {
		merged.Output = previous.Output
	}
	return merged
}

func cloneToolDetail(detail *ToolCallDetail) *ToolCallDetail {
	if detail == nil {
		return nil
	}
	clone := *detail
	return &clone
}

func cloneToolError(toolError *ToolCallError) *ToolCallError {
	if toolError == nil {
		return nil
	}
	clone := *toolError
	return &clone
}

// addSeqRange inserts addition into ranges, keeping them sorted and
// merging any that overlap or touch. The input slice is not modified.
func addSeqRange(ranges []SeqRange, addition SeqRange) []SeqRange {
	combined := make([]SeqRange, 0, len(ranges)+1)
	combined = append(combined, ranges...)
	combined = append(combined, addition)
	slices.SortFunc(combined, func(a, b SeqRange) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	result := combined[:1]
	for _, current := range combined[1:] {
		last := &result[len(result)-1]
		if current.Start <= last.End+1 {
			last.End = max(last.End, current.End)
			continue
		}
		result = append(result, current)
	}
	return result
}

func addCollapseRule(rules []CollapseRule, rule CollapseRule) []CollapseRule {
	if slices.Contains(rules, rule) {
		return rules
	}
	return append(slices.Clone(rules), rule)
}

// SourceSeqs expands the source ranges of entries into the flat list of
// canonical seqs they cover, in ascending order.
func SourceSeqs(entries []ProjectionEntry) []int64 {
	var seqs []int64
	for _, entry := range entries {
		for _, sourceRange := range entry.SourceSeqRanges {
			for seq := sourceRange.Start; seq <= sourceRange.End; seq++ {
				seqs = append(seqs, seq)
			}
		}
	}
	slices.Sort(seqs)
	return seqs
}

// Covers reports whether seq is one of the entry's source seqs.
func (entry ProjectionEntry) Covers(seq int64) bool {
	for _, sourceRange := range entry.SourceSeqRanges {
		if seq >= sourceRange.Start && seq <= sourceRange.End {
			return true
		}
	}
	return false
}
