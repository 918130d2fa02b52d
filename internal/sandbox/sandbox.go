// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sandbox is the boolean verification oracle spec §1/§6 treat
// as an external collaborator: it answers whether a skill's code runs
// without deciding anything about grounding. internal/workflow's
// verify stage consumes it through the narrow SandboxOracle interface
// and never second-guesses its verdict (spec §9 Open Question 2).
package sandbox

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillsfabric/core/internal/errs"
)

// Language is a supported sandbox runtime. The oracle picks the
// interpreter by extension; an unrecognized language is rejected
// rather than guessed at.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageTypeScript Language = "typescript"
	LanguageGo         Language = "go"
)

// Interpreter maps a Language to the command line used to run it.
// Overridable so tests and CI images without every toolchain can swap
// in stubs.
type Interpreter struct {
	Command string
	Args    []string // appended before the script path
	Ext     string
}

// DefaultInterpreters mirrors the languages the original's
// SkillFactory._node_verify sandbox accepted.
func DefaultInterpreters() map[Language]Interpreter {
	return map[Language]Interpreter{
		LanguagePython:     {Command: "python3", Ext: ".py"},
		LanguageTypeScript: {Command: "npx", Args: []string{"-y", "tsx"}, Ext: ".ts"},
		LanguageGo:         {Command: "go", Args: []string{"run"}, Ext: ".go"},
	}
}

// LocalOracle runs skill code in a subprocess and reports only whether
// it exited cleanly within the timeout — spec §6's "boolean oracle".
// It never classifies failures (a syntax error and a runtime panic are
// both simply "false"); that ambiguity belongs to the caller, not this
// package, per the documented Open Question.
type LocalOracle struct {
	Interpreters map[Language]Interpreter
	WorkDir      string
	Timeout      time.Duration
}

// NewLocalOracle constructs an oracle using the default interpreter
// table. workDir is where scratch scripts are written; empty uses
// os.TempDir().
func NewLocalOracle(workDir string, timeout time.Duration) *LocalOracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &LocalOracle{Interpreters: DefaultInterpreters(), WorkDir: workDir, Timeout: timeout}
}

// Verify implements workflow.SandboxOracle: write code to a scratch
// file for the detected language and run it, returning true iff the
// process exits zero before the deadline.
func (o *LocalOracle) Verify(ctx context.Context, code string) (bool, error) {
	return o.VerifyLanguage(ctx, code, detectLanguage(code))
}

// VerifyLanguage runs code under the interpreter for an explicitly
// named language, bypassing detection.
func (o *LocalOracle) VerifyLanguage(ctx context.Context, code string, lang Language) (bool, error) {
	interp, ok := o.Interpreters[lang]
	if !ok {
		return false, &errs.ConfigError{Key: "sandbox.language", Reason: "no interpreter registered for " + string(lang)}
	}

	scratch, err := os.CreateTemp(o.WorkDir, "skill-*"+interp.Ext)
	if err != nil {
		return false, err
	}
	defer os.Remove(scratch.Name())

	if _, err := scratch.WriteString(code); err != nil {
		scratch.Close()
		return false, err
	}
	if err := scratch.Close(); err != nil {
		return false, err
	}

	runCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	args := append(append([]string{}, interp.Args...), scratch.Name())
	cmd := exec.CommandContext(runCtx, interp.Command, args...)
	cmd.Dir = filepath.Dir(scratch.Name())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return false, &errs.ExternalServiceError{Provider: "sandbox", Err: runCtx.Err()}
		}
		return false, nil
	}
	return true, nil
}

// detectLanguage guesses a language from code shape well enough to
// pick an interpreter for skills that don't carry an explicit tag.
// This is intentionally crude — the sandbox run is the authority, not
// this heuristic.
func detectLanguage(code string) Language {
	trimmed := strings.TrimSpace(code)
	switch {
	case strings.Contains(trimmed, "package main") || strings.Contains(trimmed, "func main("):
		return LanguageGo
	case strings.Contains(trimmed, "import type") || strings.Contains(trimmed, ": string") || strings.Contains(trimmed, "interface "):
		return LanguageTypeScript
	default:
		return LanguagePython
	}
}
