// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package beads implements the work-item dependency graph of spec §3's
// Bead type, grounded on code_buddy/memory/store.go's persisted-record
// shape (generated ID, validated fields, status enum) but backed by
// internal/storage/graphstore instead of Weaviate: beads are small,
// locally-owned records with no semantic-search need, so the embedded
// Badger store already wired for the concept/skill graph serves them
// directly rather than paying for a second backend.
package beads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillsfabric/core/internal/storage/graphstore"
)

// Status is one of a Bead's five lifecycle states (spec §3).
type Status string

const (
	StatusReady      Status = "READY"
	StatusBlocked    Status = "BLOCKED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusAbandoned  Status = "ABANDONED"
)

// DependsOn is the graph edge kind linking a bead to the beads it
// depends on.
const DependsOn graphstore.EdgeKind = "DEPENDS_ON"

const labelBead graphstore.Label = "Bead"

// Bead is a unit of work in the temporal dependency graph (spec §3).
type Bead struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       Status    `json:"status"`
	Priority     int       `json:"priority"`
	Dependencies []string  `json:"dependencies"`
	Learnings    string    `json:"learnings"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists beads and their dependency edges in a graphstore.Store.
type Store struct {
	graph *graphstore.Store
}

// New wraps an already-open graphstore.Store.
func New(graph *graphstore.Store) *Store {
	return &Store{graph: graph}
}

// Create inserts a new bead. A bead with no dependencies starts READY;
// one with dependencies starts BLOCKED until Recompute promotes it.
func (s *Store) Create(ctx context.Context, title string, priority int, dependencies []string) (Bead, error) {
	if ctx.Err() != nil {
		return Bead{}, ctx.Err()
	}
	now := time.Now().UTC()
	bead := Bead{
		ID:           uuid.NewString(),
		Title:        title,
		Status:       StatusBlocked,
		Priority:     priority,
		Dependencies: dependencies,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if len(dependencies) == 0 {
		bead.Status = StatusReady
	}
	if err := s.put(bead); err != nil {
		return Bead{}, err
	}
	for _, dep := range dependencies {
		if err := s.graph.CreateEdge(graphstore.Edge{Kind: DependsOn, From: bead.ID, To: dep}); err != nil {
			return Bead{}, fmt.Errorf("beads: link dependency %s: %w", dep, err)
		}
	}
	return bead, nil
}

// Get looks up a bead by ID.
func (s *Store) Get(ctx context.Context, id string) (Bead, bool, error) {
	if ctx.Err() != nil {
		return Bead{}, false, ctx.Err()
	}
	node, found, err := s.graph.GetNode(labelBead, id)
	if err != nil || !found {
		return Bead{}, found, err
	}
	return decodeBead(node)
}

// List returns every persisted bead.
func (s *Store) List(ctx context.Context) ([]Bead, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	nodes, err := s.graph.NodesByLabel(labelBead)
	if err != nil {
		return nil, err
	}
	beads := make([]Bead, 0, len(nodes))
	for _, n := range nodes {
		bead, _, err := decodeBead(n)
		if err != nil {
			return nil, err
		}
		beads = append(beads, bead)
	}
	return beads, nil
}

// Transition moves a bead to a new status. Transitions are monotonic
// (spec §3) — BLOCKED -> READY -> IN_PROGRESS -> DONE, or any live state
// -> ABANDONED — except the explicit re-queue IN_PROGRESS -> READY,
// which is the one allowed backward move.
func (s *Store) Transition(ctx context.Context, id string, next Status) (Bead, error) {
	bead, found, err := s.Get(ctx, id)
	if err != nil {
		return Bead{}, err
	}
	if !found {
		return Bead{}, fmt.Errorf("beads: no such bead %s", id)
	}
	if !allowedTransition(bead.Status, next) {
		return Bead{}, fmt.Errorf("beads: illegal transition %s -> %s for %s", bead.Status, next, id)
	}
	bead.Status = next
	bead.UpdatedAt = time.Now().UTC()
	if err := s.put(bead); err != nil {
		return Bead{}, err
	}
	return bead, nil
}

// SetLearnings appends accumulated learnings text to a bead, the way
// an agent records what it discovered while working an item.
func (s *Store) SetLearnings(ctx context.Context, id, learnings string) (Bead, error) {
	bead, found, err := s.Get(ctx, id)
	if err != nil {
		return Bead{}, err
	}
	if !found {
		return Bead{}, fmt.Errorf("beads: no such bead %s", id)
	}
	if bead.Learnings != "" {
		bead.Learnings += "\n" + learnings
	} else {
		bead.Learnings = learnings
	}
	bead.UpdatedAt = time.Now().UTC()
	return bead, s.put(bead)
}

// Recompute promotes every BLOCKED bead whose dependencies are all
// DONE to READY, per spec §3's "ready iff all dependencies done"
// invariant. Call after any dependency bead transitions to DONE.
func (s *Store) Recompute(ctx context.Context) ([]Bead, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Bead, len(all))
	for _, b := range all {
		byID[b.ID] = b
	}
	var promoted []Bead
	for _, b := range all {
		if b.Status != StatusBlocked {
			continue
		}
		if allDependenciesDone(b, byID) {
			b.Status = StatusReady
			b.UpdatedAt = time.Now().UTC()
			if err := s.put(b); err != nil {
				return nil, err
			}
			promoted = append(promoted, b)
		}
	}
	return promoted, nil
}

func allDependenciesDone(bead Bead, byID map[string]Bead) bool {
	for _, dep := range bead.Dependencies {
		depBead, ok := byID[dep]
		if !ok || depBead.Status != StatusDone {
			return false
		}
	}
	return true
}

func allowedTransition(from, to Status) bool {
	if to == StatusAbandoned {
		return from != StatusDone
	}
	switch from {
	case StatusBlocked:
		return to == StatusReady
	case StatusReady:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusDone || to == StatusReady
	case StatusDone, StatusAbandoned:
		return false
	default:
		return false
	}
}

func (s *Store) put(bead Bead) error {
	props := map[string]any{
		"title":        bead.Title,
		"status":       string(bead.Status),
		"priority":     bead.Priority,
		"dependencies": bead.Dependencies,
		"learnings":    bead.Learnings,
		"created_at":   bead.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   bead.UpdatedAt.Format(time.RFC3339Nano),
	}
	return s.graph.CreateNode(graphstore.Node{Label: labelBead, Key: bead.ID, Properties: props})
}

func decodeBead(node graphstore.Node) (Bead, bool, error) {
	bead := Bead{ID: node.Key}
	if v, ok := node.Properties["title"].(string); ok {
		bead.Title = v
	}
	if v, ok := node.Properties["status"].(string); ok {
		bead.Status = Status(v)
	}
	if v, ok := node.Properties["priority"].(float64); ok {
		bead.Priority = int(v)
	}
	if v, ok := node.Properties["learnings"].(string); ok {
		bead.Learnings = v
	}
	if deps, ok := node.Properties["dependencies"].([]any); ok {
		for _, d := range deps {
			if s, ok := d.(string); ok {
				bead.Dependencies = append(bead.Dependencies, s)
			}
		}
	}
	if v, ok := node.Properties["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			bead.CreatedAt = t
		}
	}
	if v, ok := node.Properties["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			bead.UpdatedAt = t
		}
	}
	return bead, true, nil
}
