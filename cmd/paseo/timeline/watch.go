// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	timelinelib "github.com/paseo-dev/paseo/lib/timeline"
	"github.com/paseo-dev/paseo/lib/timelinesync"
)

// source is the part of a client timeline the watch UI reads.
type source interface {
	Project(mode timelinelib.Mode) []timelinelib.ProjectionEntry
	Agent() timelinesync.AgentSnapshot
	Updates() <-chan struct{}
	LoadOlder(limit int) error
}

// updatedMsg reports a flush from the timeline controller.
type updatedMsg struct{}

// closedMsg reports that the relay connection ended.
type closedMsg struct{ err error }

// watchModel renders the live projection of one agent in a viewport.
// It stays pinned to the bottom while the user has not scrolled up.
type watchModel struct {
	agentID   string
	source    source
	closed    <-chan error
	renderer  *entryRenderer
	mode      timelinelib.Mode
	pageLimit int

	viewport viewport.Model
	ready    bool
	width    int
	height   int

	notice string
	err    error
}

func newWatchModel(agentID string, source source, closed <-chan error, renderer *entryRenderer, mode timelinelib.Mode, pageLimit int) watchModel {
	return watchModel{
		agentID:   agentID,
		source:    source,
		closed:    closed,
		renderer:  renderer,
		mode:      mode,
		pageLimit: pageLimit,
		viewport:  viewport.New(0, 0),
	}
}

func (model watchModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(model.source.Updates()), waitForClose(model.closed))
}

func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return updatedMsg{}
	}
}

func waitForClose(closed <-chan error) tea.Cmd {
	if closed == nil {
		return nil
	}
	return func() tea.Msg {
		return closedMsg{err: <-closed}
	}
}

func (model watchModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch message.String() {
		case "q", "ctrl+c", "esc":
			return model, tea.Quit
		case "m":
			if model.mode == timelinelib.ModeProjected {
				model.mode = timelinelib.ModeCanonical
			} else {
				model.mode = timelinelib.ModeProjected
			}
			model.refresh(false)
			return model, nil
		case "o":
			if err := model.source.LoadOlder(model.pageLimit); err != nil {
				model.notice = err.Error()
			} else {
				model.notice = "loading older entries"
			}
			return model, nil
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.viewport.Width = message.Width
		model.viewport.Height = max(message.Height-2, 1)
		model.ready = true
		model.refresh(true)
		return model, nil

	case updatedMsg:
		model.notice = ""
		model.refresh(model.viewport.AtBottom())
		return model, waitForUpdate(model.source.Updates())

	case closedMsg:
		model.err = message.err
		return model, tea.Quit
	}

	var command tea.Cmd
	model.viewport, command = model.viewport.Update(message)
	return model, command
}

// refresh re-projects the timeline into the viewport. pin keeps the
// view at the newest entry.
func (model *watchModel) refresh(pin bool) {
	if !model.ready {
		return
	}
	model.viewport.SetContent(model.renderer.Entries(model.source.Project(model.mode)))
	if pin {
		model.viewport.GotoBottom()
	}
}

func (model watchModel) View() string {
	if !model.ready {
		return "connecting..."
	}
	footer := "q quit · m toggle canonical/projected · o load older · ↑/↓ scroll"
	if model.notice != "" {
		footer = model.notice
	}
	return model.renderer.Header(model.agentID, model.source.Agent(), model.mode) + "\n" +
		model.viewport.View() + "\n" +
		model.renderer.faint.Render(footer)
}
