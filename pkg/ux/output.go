// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides the CLI's styled terminal output: colored status
// lines, boxed summaries, and a JSON-mode switch that disables all of
// it so scripted callers get plain machine-readable lines instead.
package ux

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#5C6B73")
	ColorAccent  = lipgloss.Color("#20B9B4")
)

var Styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(0, 1),
}

// Mode selects how output is rendered, set once from the -q/-v/-j
// global flags before any command runs.
type Mode int

const (
	ModeRich Mode = iota
	ModeQuiet
	ModeJSON
)

var mode = ModeRich

// SetMode fixes the output mode for the rest of the process.
func SetMode(m Mode) { mode = m }

// IsTTY reports whether stdout is an interactive terminal — used to
// decide whether the bubbletea progress view should render at all.
func IsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Title prints a styled section heading; a no-op in quiet/json mode.
func Title(text string) {
	if mode != ModeRich {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a checkmark line.
func Success(text string) {
	switch mode {
	case ModeJSON:
		return
	case ModeQuiet:
		return
	default:
		fmt.Printf("%s %s\n", Styles.Success.Render("✓"), text)
	}
}

// Warning prints a warning line to stderr.
func Warning(text string) {
	if mode == ModeJSON {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", Styles.Warning.Render("⚠"), text)
}

// Info prints an informational line, suppressed in quiet/json mode.
func Info(text string) {
	if mode != ModeRich {
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Error prints an error line to stderr; always shown, even in quiet
// mode, since it reports a failure the caller needs to see.
func Error(text string) {
	if mode == ModeJSON {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", Styles.Error.Render("✗"), text)
}

// Box prints a titled, bordered block.
func Box(title, content string) {
	if mode != ModeRich {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	fmt.Println(Styles.Box.Width(70).Render(Styles.Title.Render(title) + "\n" + content))
}

// EmitJSON marshals v to stdout when in JSON mode and reports whether
// it did so, so callers can fall back to rich/quiet rendering otherwise.
func EmitJSON(v any) bool {
	if mode != ModeJSON {
		return false
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
	return true
}

// EmitJSONError writes {"error": msg} to stdout in JSON mode.
func EmitJSONError(msg string) bool {
	if mode != ModeJSON {
		return false
	}
	return EmitJSON(map[string]string{"error": msg})
}
