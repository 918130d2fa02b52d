// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skillsfabric/core/internal/audit"
	"github.com/skillsfabric/core/internal/citation"
	"github.com/skillsfabric/core/internal/hallm"
	"github.com/skillsfabric/core/internal/multiaudit"
	"github.com/skillsfabric/core/internal/validate"
	"github.com/skillsfabric/core/internal/workflow/understanding"
)

const fixtureGo = `package sample

// Greet returns a friendly greeting for name.
func Greet(name string) string {
	return "hello, " + name
}
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sample.go"), []byte(fixtureGo), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return dir
}

func newEnsemble() *multiaudit.Auditor {
	validator := validate.New([]validate.Source{validate.NewFileContentSource()}, false)
	return multiaudit.New(audit.New(validator, nil, hallm.New(), 0.5))
}

type fakeOracle struct{ ok bool }

func (f fakeOracle) Verify(ctx context.Context, code string) (bool, error) { return f.ok, nil }

type memStore struct{ stored []SkillRecord }

func (m *memStore) StoreSkills(ctx context.Context, skills []SkillRecord) error {
	m.stored = append(m.stored, skills...)
	return nil
}

type fakeDrafter struct {
	prose string
	err   error
}

func (d fakeDrafter) Draft(ctx context.Context, concept Concept, symbol, file string, line int, snippet string) (string, error) {
	return d.prose, d.err
}

func TestRunEndToEnd(t *testing.T) {
	root := writeFixture(t)
	store := &memStore{}

	sup := New(understanding.New(), newEnsemble(), fakeOracle{ok: true}, store, nil, 2)
	state := sup.Run(context.Background(), root)

	if len(state.MinedSymbols) == 0 {
		t.Fatalf("expected mined symbols, got none; stage errors: %v", state.StageErrors)
	}
	if len(state.ProvenLinks) == 0 {
		t.Fatalf("expected at least one proven link, got none")
	}
	if len(state.Skills) == 0 {
		t.Fatalf("expected at least one skill, got none")
	}
	found := false
	for _, s := range state.Skills {
		if s.Verified {
			found = true
		}
	}
	if !found {
		t.Errorf("expected at least one verified skill")
	}
	if len(store.stored) == 0 {
		t.Errorf("expected the oracle-verified skill to reach the store")
	}
}

func TestRunEmptyRepoStopsAtMining(t *testing.T) {
	root := t.TempDir()
	sup := New(understanding.New(), newEnsemble(), fakeOracle{ok: true}, &memStore{}, nil, 1)
	state := sup.Run(context.Background(), root)

	if _, ok := state.StageErrors["mining"]; !ok {
		t.Fatalf("expected a mining stage error for an empty repo, got %v", state.StageErrors)
	}
	if len(state.Skills) != 0 {
		t.Errorf("expected no skills once mining finds nothing")
	}
}

func TestWriteUsesDrafterWithTemplateFallback(t *testing.T) {
	root := writeFixture(t)
	sup := New(understanding.New(), newEnsemble(), fakeOracle{ok: true}, &memStore{}, nil, 1)
	sup.Drafter = fakeDrafter{prose: "Greet builds a greeting string from name."}

	state := &WorkflowState{RepoRoot: root, StageErrors: make(map[string]error)}
	sup.mine(context.Background(), state)
	sup.link(context.Background(), state)
	sup.write(context.Background(), state)

	if len(state.Skills) == 0 {
		t.Fatalf("expected skills to be written")
	}
	var sawDrafted bool
	for _, s := range state.Skills {
		if strings.Contains(s.Content, "Greet builds a greeting") {
			sawDrafted = true
			if !strings.Contains(s.Content, "func Greet") {
				t.Errorf("drafted content must still embed the grounding snippet, got %q", s.Content)
			}
		}
	}
	if !sawDrafted {
		t.Errorf("expected at least one skill to carry the drafted prose")
	}
}

type stageLog struct {
	started   []string
	completed []string
}

func (l *stageLog) StageStarted(ctx context.Context, stage string) {
	l.started = append(l.started, stage)
}
func (l *stageLog) StageCompleted(ctx context.Context, stage string, learnings string) {
	l.completed = append(l.completed, stage)
}

func TestRunNotifiesWorkTrackerPerStage(t *testing.T) {
	root := writeFixture(t)
	log := &stageLog{}
	sup := New(understanding.New(), newEnsemble(), fakeOracle{ok: true}, &memStore{}, nil, 1)
	sup.Tracker = log

	sup.Run(context.Background(), root)

	want := []string{"mining", "linking", "writing", "auditing", "verifying", "storing"}
	if len(log.started) != len(want) || len(log.completed) != len(want) {
		t.Fatalf("expected %d stage notifications, got started=%v completed=%v", len(want), log.started, log.completed)
	}
	for i, stage := range want {
		if log.started[i] != stage || log.completed[i] != stage {
			t.Errorf("stage %d: want %q, got started=%q completed=%q", i, stage, log.started[i], log.completed[i])
		}
	}
}

func TestWriteAddsCitationsToDraftedProse(t *testing.T) {
	root := writeFixture(t)
	sup := New(understanding.New(), newEnsemble(), fakeOracle{ok: true}, &memStore{}, nil, 1)
	sup.Drafter = fakeDrafter{prose: "Call `Greet` to build a greeting."}
	sup.Citer = citation.New(citation.FormatInline, "")

	state := &WorkflowState{RepoRoot: root, StageErrors: make(map[string]error)}
	sup.mine(context.Background(), state)
	sup.link(context.Background(), state)
	sup.write(context.Background(), state)

	if len(state.Skills) == 0 {
		t.Fatalf("expected skills to be written")
	}
	var cited bool
	for _, s := range state.Skills {
		if strings.Contains(s.Content, "`Greet` (sample.go:") {
			cited = true
		}
	}
	if !cited {
		t.Errorf("expected the drafted prose to carry an inline citation for Greet")
	}
}

func TestLinkExactMatchOnlyDropsWeakerStrategies(t *testing.T) {
	root := writeFixture(t)
	sup := New(understanding.New(), newEnsemble(), fakeOracle{ok: true}, &memStore{}, nil, 1)
	sup.ExactMatchOnly = true

	state := &WorkflowState{
		RepoRoot:    root,
		StageErrors: make(map[string]error),
		// "sample" matches by filename (confidence 0.7), not by name.
		Concepts: []Concept{{Name: "sample", Description: ""}},
	}
	sup.mine(context.Background(), state)
	sup.link(context.Background(), state)

	for _, link := range state.ProvenLinks {
		if link.Strategy != "exact_name" {
			t.Errorf("exact-match-only run produced a %q link", link.Strategy)
		}
	}
}

func TestWriteFallsBackOnDrafterError(t *testing.T) {
	root := writeFixture(t)
	sup := New(understanding.New(), newEnsemble(), fakeOracle{ok: true}, &memStore{}, nil, 1)
	sup.Drafter = fakeDrafter{err: context.DeadlineExceeded}

	state := &WorkflowState{RepoRoot: root, StageErrors: make(map[string]error)}
	sup.mine(context.Background(), state)
	sup.link(context.Background(), state)
	sup.write(context.Background(), state)

	if len(state.Skills) == 0 {
		t.Fatalf("expected skills to be written")
	}
	for _, s := range state.Skills {
		if !strings.Contains(s.Content, "func Greet") {
			t.Errorf("expected snippet-only fallback, got %q", s.Content)
		}
	}
}
