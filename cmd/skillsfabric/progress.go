// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skillsfabric/core/internal/obsv"
)

// stageMsg carries one ProgressReporter.Report call into the bubbletea
// event loop.
type stageMsg struct {
	stage       string
	step, total int
}

// doneMsg signals the driven task finished; err is nil on success.
type doneMsg struct{ err error }

// progressModel renders the six-stage workflow (spec §4.12) as a
// spinner plus a "step/total" counter, the bubbletea analogue of the
// teacher's podman-stats spinner in cmd_chat.go.
type progressModel struct {
	spinner  spinner.Model
	stage    string
	step     int
	total    int
	err      error
	finished bool
	updates  <-chan stageMsg
	done     <-chan doneMsg
}

var stageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#20B9B4")).Bold(true)

func newProgressModel(updates <-chan stageMsg, done <-chan doneMsg) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7"))
	return progressModel{spinner: s, updates: updates, done: done}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForStage(m.updates), waitForDone(m.done))
}

func waitForStage(ch <-chan stageMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func waitForDone(ch <-chan doneMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return doneMsg{}
		}
		return msg
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stageMsg:
		m.stage, m.step, m.total = msg.stage, msg.step, msg.total
		return m, waitForStage(m.updates)
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.finished {
		if m.err != nil {
			return fmt.Sprintf("failed: %v\n", m.err)
		}
		return "done\n"
	}
	if m.stage == "" {
		return fmt.Sprintf("%s starting...\n", m.spinner.View())
	}
	return fmt.Sprintf("%s %s (%d/%d)\n", m.spinner.View(), stageStyle.Render(m.stage), m.step, m.total)
}

// teaReporter implements internal/obsv.ProgressReporter by forwarding
// every Report call onto a channel consumed by a running tea.Program.
// Non-blocking: a stage the UI hasn't drained yet is simply dropped in
// favor of the newer one, since only the latest stage matters visually.
type teaReporter struct {
	updates chan stageMsg
}

func newTeaReporter() *teaReporter {
	return &teaReporter{updates: make(chan stageMsg, 1)}
}

func (r *teaReporter) Report(stage string, step, total int) {
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- stageMsg{stage: stage, step: step, total: total}:
	default:
	}
}

var _ obsv.ProgressReporter = (*teaReporter)(nil)

// runWithProgress drives task on a goroutine while a bubbletea spinner
// renders its ProgressReporter updates, when stdout is a TTY and rich
// output is enabled. Non-interactive runs call task directly.
func runWithProgress(interactive bool, task func(obsv.ProgressReporter) error) error {
	if !interactive {
		return task(obsv.NopReporter{})
	}

	reporter := newTeaReporter()
	done := make(chan doneMsg, 1)
	go func() {
		done <- doneMsg{err: task(reporter)}
		close(reporter.updates)
	}()

	p := tea.NewProgram(newProgressModel(reporter.updates, done))
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := finalModel.(progressModel); ok {
		return fm.err
	}
	return nil
}
