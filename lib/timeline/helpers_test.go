// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"encoding/json"
	"time"
)

var testEpochStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func row(seq int64, item Item) Entry {
	return Entry{
		Seq:       seq,
		Epoch:     "e1",
		Provider:  "claude",
		Item:      item,
		Timestamp: testEpochStart.Add(time.Duration(seq) * time.Second),
	}
}

func userMessage(text string) Item {
	return Item{Type: ItemUserMessage, Text: text}
}

func assistantChunk(text string) Item {
	return Item{Type: ItemAssistantMessage, Text: text}
}

func toolCall(callID string, status ToolCallStatus, detail *ToolCallDetail) Item {
	return Item{Type: ItemToolCall, CallID: callID, Name: "shell", Status: status, Detail: detail}
}

func unknownDetail() *ToolCallDetail {
	return &ToolCallDetail{Type: DetailUnknown}
}

func shellDetail(command string) *ToolCallDetail {
	input, _ := json.Marshal(map[string]string{"command": command})
	return &ToolCallDetail{Type: "shell", Input: input}
}
