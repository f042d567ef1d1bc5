// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"encoding/json"
	"time"
)

// ItemType discriminates the payload carried by an [Item].
type ItemType string

const (
	ItemUserMessage      ItemType = "user_message"
	ItemAssistantMessage ItemType = "assistant_message"
	ItemReasoning        ItemType = "reasoning"
	ItemToolCall         ItemType = "tool_call"
	ItemTodo             ItemType = "todo"
	ItemError            ItemType = "error"
)

// ToolCallStatus is the lifecycle state of a tool call.
type ToolCallStatus string

const (
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
	ToolCallCanceled  ToolCallStatus = "canceled"
)

// DetailUnknown is the placeholder detail type a provider emits before
// it knows what a tool call is doing.
const DetailUnknown = "unknown"

// Item is one timeline event. Type selects which of the remaining
// fields are meaningful:
//
//   - user_message, assistant_message, reasoning: Text (and MessageID
//     when the provider supplies one)
//   - tool_call: CallID, Name, Status, Detail, Error
//   - todo: Todos
//   - error: Message
type Item struct {
	Type      ItemType        `json:"type"`
	Text      string          `json:"text,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	CallID    string          `json:"callId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Status    ToolCallStatus  `json:"status,omitempty"`
	Detail    *ToolCallDetail `json:"detail,omitempty"`
	Error     *ToolCallError  `json:"error,omitempty"`
	Todos     []TodoItem      `json:"items,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ToolCallDetail describes what a tool call does. Type is
// provider-specific ("shell", "read", "edit", ...) or [DetailUnknown].
// Input and Output are kept as raw JSON; their shape belongs to the
// provider.
type ToolCallDetail struct {
	Type   string          `json:"type"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// Concrete reports whether the detail carries a known type.
func (detail *ToolCallDetail) Concrete() bool {
	return detail != nil && detail.Type != "" && detail.Type != DetailUnknown
}

// ToolCallError is the failure reported for a failed tool call.
type ToolCallError struct {
	Message string `json:"message"`
}

// TodoItem is one line of an agent's task list.
type TodoItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Entry is one canonical timeline event. Seq is unique and contiguous
// within Epoch.
//
// On the wire the seq travels as "seqStart" (a canonical entry covers
// exactly one seq) and the epoch is carried once per response rather
// than per entry, so Epoch is often filled in by the decoder.
type Entry struct {
	Seq       int64     `json:"seqStart"`
	Epoch     string    `json:"epoch,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Item      Item      `json:"item"`
	Timestamp time.Time `json:"timestamp"`
}

// Cursor describes the contiguous window of one epoch that a consumer
// has fully materialized: every seq in [StartSeq, EndSeq] is present
// with no gaps. A nil *Cursor means nothing has been seen yet.
type Cursor struct {
	Epoch    string
	StartSeq int64
	EndSeq   int64
}

// Equal reports whether two possibly-nil cursors describe the same
// window.
func (cursor *Cursor) Equal(other *Cursor) bool {
	if cursor == nil || other == nil {
		return cursor == nil && other == nil
	}
	return *cursor == *other
}

// SeqCursor is the wire form of a position in the log.
type SeqCursor struct {
	Epoch string `json:"epoch,omitempty"`
	Seq   int64  `json:"seq"`
}
