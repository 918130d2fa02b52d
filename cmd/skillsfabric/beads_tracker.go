// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"

	"github.com/skillsfabric/core/internal/logx"
	"github.com/skillsfabric/core/internal/memory/beads"
	"github.com/skillsfabric/core/internal/storage/graphstore"
)

// beadTracker mirrors the supervisor's six stages into the beads
// work-item graph: one bead per stage, each depending on the previous,
// so an external observer (or a later run) can see exactly how far a
// pipeline got and what each stage learned. Tracking failures are
// logged and swallowed — a work-item bookkeeping problem must never
// fail a generation run.
type beadTracker struct {
	store   *beads.Store
	graph   *graphstore.Store
	logger  *logx.Logger
	byStage map[string]string
}

var pipelineStages = []string{"mining", "linking", "writing", "auditing", "verifying", "storing"}

// newBeadTracker opens a bead store under dir and seeds the six-stage
// dependency chain. Each stage bead is blocked on its predecessor;
// beads.Recompute promotes the next one as stages complete.
func newBeadTracker(dir string, logger *logx.Logger) (*beadTracker, error) {
	graph, err := graphstore.Open(dir)
	if err != nil {
		return nil, err
	}
	t := &beadTracker{
		store:   beads.New(graph),
		graph:   graph,
		logger:  logger,
		byStage: make(map[string]string, len(pipelineStages)),
	}

	ctx := context.Background()
	var prev string
	for i, stage := range pipelineStages {
		var deps []string
		if prev != "" {
			deps = []string{prev}
		}
		bead, err := t.store.Create(ctx, stage, len(pipelineStages)-i, deps)
		if err != nil {
			graph.Close()
			return nil, err
		}
		t.byStage[stage] = bead.ID
		prev = bead.ID
	}
	return t, nil
}

func (t *beadTracker) StageStarted(ctx context.Context, stage string) {
	id, ok := t.byStage[stage]
	if !ok {
		return
	}
	if _, err := t.store.Transition(ctx, id, beads.StatusInProgress); err != nil {
		t.logger.Debug("bead transition failed", "stage", stage, "error", err)
	}
}

func (t *beadTracker) StageCompleted(ctx context.Context, stage string, learnings string) {
	id, ok := t.byStage[stage]
	if !ok {
		return
	}
	if learnings != "" {
		if _, err := t.store.SetLearnings(ctx, id, learnings); err != nil {
			t.logger.Debug("bead learnings update failed", "stage", stage, "error", err)
		}
	}
	if _, err := t.store.Transition(ctx, id, beads.StatusDone); err != nil {
		t.logger.Debug("bead transition failed", "stage", stage, "error", err)
		return
	}
	if _, err := t.store.Recompute(ctx); err != nil {
		t.logger.Debug("bead recompute failed", "error", err)
	}
}

// Abandon marks every unfinished stage bead ABANDONED, for runs that
// stop early (mining found nothing, loop aborted).
func (t *beadTracker) Abandon(ctx context.Context) {
	for stage, id := range t.byStage {
		bead, found, err := t.store.Get(ctx, id)
		if err != nil || !found || bead.Status == beads.StatusDone {
			continue
		}
		if _, err := t.store.Transition(ctx, id, beads.StatusAbandoned); err != nil {
			t.logger.Debug("bead abandon failed", "stage", stage, "error", err)
		}
	}
}

func (t *beadTracker) Close() error { return t.graph.Close() }
