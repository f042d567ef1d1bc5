// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"

	timelinelib "github.com/paseo-dev/paseo/lib/timeline"
	"github.com/paseo-dev/paseo/lib/timelinesync"
)

// theme is the palette for entry rendering, in ANSI 256-color codes.
type theme struct {
	Faint     lipgloss.Color
	User      lipgloss.Color
	Assistant lipgloss.Color
	Reasoning lipgloss.Color
	Tool      lipgloss.Color
	Failure   lipgloss.Color
	Success   lipgloss.Color
	Header    lipgloss.Color
}

var defaultTheme = theme{
	Faint:     lipgloss.Color("243"),
	User:      lipgloss.Color("81"),
	Assistant: lipgloss.Color("252"),
	Reasoning: lipgloss.Color("140"),
	Tool:      lipgloss.Color("214"),
	Failure:   lipgloss.Color("203"),
	Success:   lipgloss.Color("114"),
	Header:    lipgloss.Color("75"),
}

// entryRenderer formats projection entries as terminal lines. Colors
// follow the renderer's detected profile, so output to a pipe or a
// buffer is plain text.
type entryRenderer struct {
	faint     lipgloss.Style
	header    lipgloss.Style
	labels    map[timelinelib.ItemType]lipgloss.Style
	failure   lipgloss.Style
	success   lipgloss.Style
	labelSize int
}

func newEntryRenderer(renderer *lipgloss.Renderer, palette theme) *entryRenderer {
	label := func(color lipgloss.Color) lipgloss.Style {
		return renderer.NewStyle().Foreground(color).Bold(true)
	}
	return &entryRenderer{
		faint:  renderer.NewStyle().Foreground(palette.Faint),
		header: renderer.NewStyle().Foreground(palette.Header).Bold(true),
		labels: map[timelinelib.ItemType]lipgloss.Style{
			timelinelib.ItemUserMessage:      label(palette.User),
			timelinelib.ItemAssistantMessage: label(palette.Assistant),
			timelinelib.ItemReasoning:        label(palette.Reasoning),
			timelinelib.ItemToolCall:         label(palette.Tool),
			timelinelib.ItemTodo:             label(palette.Tool),
			timelinelib.ItemError:            label(palette.Failure),
		},
		failure:   renderer.NewStyle().Foreground(palette.Failure),
		success:   renderer.NewStyle().Foreground(palette.Success),
		labelSize: len("assistant"),
	}
}

// Entry renders one projection entry. Continuation lines of multi-line
// text are indented under the body.
func (r *entryRenderer) Entry(entry timelinelib.ProjectionEntry) string {
	prefix := fmt.Sprintf("%-9s %s ", seqLabel(entry), entry.Timestamp.UTC().Format("15:04:05"))
	label := itemLabel(entry.Item.Type)
	style, ok := r.labels[entry.Item.Type]
	if !ok {
		style = r.faint
	}
	body := r.body(entry.Item)
	indent := strings.Repeat(" ", len(prefix)+r.labelSize+1)
	body = strings.ReplaceAll(body, "\n", "\n"+indent)
	return r.faint.Render(prefix) + style.Render(fmt.Sprintf("%-*s", r.labelSize, label)) + " " + body
}

// Entries renders entries one per line. An empty list renders a
// placeholder.
func (r *entryRenderer) Entries(entries []timelinelib.ProjectionEntry) string {
	if len(entries) == 0 {
		return r.faint.Render("(no entries)")
	}
	lines := make([]string, len(entries))
	for index, entry := range entries {
		lines[index] = r.Entry(entry)
	}
	return strings.Join(lines, "\n")
}

// Header renders the status line for an agent.
func (r *entryRenderer) Header(agentID string, agent timelinesync.AgentSnapshot, mode timelinelib.Mode) string {
	status := string(agent.Status)
	switch agent.Status {
	case timelinesync.AgentRunning:
		status = r.success.Render(status)
	case timelinesync.AgentError:
		status = r.failure.Render(status)
	default:
		status = r.faint.Render(status)
	}
	return r.header.Render(agentID) + " " + status + " " + r.faint.Render(string(mode))
}

func (r *entryRenderer) body(item timelinelib.Item) string {
	switch item.Type {
	case timelinelib.ItemToolCall:
		name := item.Name
		if name == "" {
			name = item.CallID
		}
		if item.Detail.Concrete() {
			name += " " + r.faint.Render(item.Detail.Type)
		}
		status := string(item.Status)
		switch item.Status {
		case timelinelib.ToolCallFailed:
			status = r.failure.Render(status)
		case timelinelib.ToolCallCompleted:
			status = r.success.Render(status)
		}
		line := name + " [" + status + "]"
		if item.Error != nil {
			line += " " + r.failure.Render(item.Error.Message)
		}
		return line
	case timelinelib.ItemTodo:
		done := 0
		for _, todo := range item.Todos {
			if todo.Completed {
				done++
			}
		}
		lines := []string{fmt.Sprintf("%d/%d done", done, len(item.Todos))}
		for _, todo := range item.Todos {
			mark := "[ ]"
			if todo.Completed {
				mark = "[x]"
			}
			lines = append(lines, mark+" "+todo.Text)
		}
		return strings.Join(lines, "\n")
	case timelinelib.ItemError:
		return r.failure.Render(item.Message)
	default:
		return item.Text
	}
}

func itemLabel(itemType timelinelib.ItemType) string {
	switch itemType {
	case timelinelib.ItemUserMessage:
		return "user"
	case timelinelib.ItemAssistantMessage:
		return "assistant"
	case timelinelib.ItemToolCall:
		return "tool"
	default:
		return string(itemType)
	}
}

func seqLabel(entry timelinelib.ProjectionEntry) string {
	if entry.SeqStart == entry.SeqEnd {
		return fmt.Sprintf("#%d", entry.SeqStart)
	}
	return fmt.Sprintf("#%d-%d", entry.SeqStart, entry.SeqEnd)
}

// writeJSONLines writes one JSON object per entry.
func writeJSONLines(w io.Writer, entries []timelinelib.ProjectionEntry) error {
	encoder := sonic.ConfigStd.NewEncoder(w)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("writing entry %s: %w", seqLabel(entry), err)
		}
	}
	return nil
}
