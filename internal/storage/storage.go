// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage implements the persisted-state layout of spec §6: a
// local cache directory holding a sessions JSON file, with optional
// mirroring of completed session archives to Google Cloud Storage.
// Catalog parses and Hall_m history are explicitly not persisted here
// (spec §6: "rebuilt each run" / "in-memory unless exported").
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/skillsfabric/core/internal/errs"
	"github.com/skillsfabric/core/internal/storage/graphstore"
	"github.com/skillsfabric/core/internal/workflow"
)

// StrategyAdjustment is one entry of a session's adjustment log (spec §6).
type StrategyAdjustment struct {
	Timestamp time.Time      `json:"timestamp"`
	Changes   map[string]any `json:"changes"`
}

// Session is one run of the pipeline against a library (spec §6's
// exact JSON shape).
type Session struct {
	SessionID       string               `json:"session_id"`
	StartedAt       time.Time            `json:"started_at"`
	EndedAt         *time.Time           `json:"ended_at,omitempty"`
	Library         string               `json:"library"`
	SkillsCreated   int                  `json:"skills_created"`
	SkillsVerified  int                  `json:"skills_verified"`
	SkillsRejected  int                  `json:"skills_rejected"`
	Iterations      int                  `json:"iterations"`
	StrategyAdjusts []StrategyAdjustment `json:"strategy_adjustments"`
	Errors          []string             `json:"errors"`
	Notes           string               `json:"notes"`
}

// sessionsFile is the on-disk shape: {"sessions": [...]}.
type sessionsFile struct {
	Sessions []Session `json:"sessions"`
}

// SessionStore persists sessions to a JSON file in the cache
// directory. All writes go through a full read-modify-write-atomic-
// rename cycle — sessions are appended rarely (once per pipeline run)
// so the lock-free race window this leaves is accepted, matching the
// original's "best-effort local cache" framing rather than a
// durability guarantee.
type SessionStore struct {
	path string
}

// NewSessionStore resolves cacheDir (expanding a leading "~") and
// returns a store over <cacheDir>/sessions.json, creating the
// directory if needed.
func NewSessionStore(cacheDir string) (*SessionStore, error) {
	resolved, err := expandHome(cacheDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create cache dir: %w", err)
	}
	return &SessionStore{path: filepath.Join(resolved, "sessions.json")}, nil
}

// Append adds a session to the file, preserving all previously
// recorded sessions.
func (s *SessionStore) Append(session Session) error {
	all, err := s.Load()
	if err != nil {
		return err
	}
	all = append(all, session)
	return s.write(all)
}

// Load reads all recorded sessions; a missing file is an empty,
// non-error result (first run).
func (s *SessionStore) Load() ([]Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var file sessionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("storage: parse sessions file: %w", err)
	}
	return file.Sessions, nil
}

func (s *SessionStore) write(sessions []Session) error {
	data, err := json.MarshalIndent(sessionsFile{Sessions: sessions}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// GCSArchiver mirrors completed session artifacts to a GCS bucket, the
// way the teacher's cmd/aleutian/gcs.Client uploads build artifacts.
// Optional: a pipeline with no GCS configuration simply never
// constructs one.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

// NewGCSArchiver constructs an archiver authenticated via a service
// account key file.
func NewGCSArchiver(ctx context.Context, bucket, serviceAccountKeyPath string) (*GCSArchiver, error) {
	if _, err := os.Stat(serviceAccountKeyPath); err != nil {
		return nil, &errs.ConfigError{Key: "gcs.service_account_key", Reason: err.Error()}
	}
	client, err := storage.NewClient(ctx, option.WithCredentialsFile(serviceAccountKeyPath))
	if err != nil {
		return nil, fmt.Errorf("storage: create gcs client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket}, nil
}

// ArchiveFile uploads localPath to gs://bucket/objectPath.
func (a *GCSArchiver) ArchiveFile(ctx context.Context, localPath, objectPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", localPath, err)
	}
	defer f.Close()

	writer := a.client.Bucket(a.bucket).Object(objectPath).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, f); err != nil {
		return fmt.Errorf("storage: upload %s: %w", objectPath, err)
	}
	return writer.Close()
}

// ArchiveSession serializes session to JSON and uploads it under
// sessions/<session_id>.json.
func (a *GCSArchiver) ArchiveSession(ctx context.Context, session Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	objectPath := "sessions/" + session.SessionID + ".json"
	writer := a.client.Bucket(a.bucket).Object(objectPath).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		return err
	}
	return writer.Close()
}

// Close releases the underlying GCS client.
func (a *GCSArchiver) Close() error { return a.client.Close() }

// SkillStore persists verified skills as one JSON file per concept
// (<concept>.json) under the cache directory, and satisfies
// internal/workflow.SkillStore.
type SkillStore struct {
	dir string
}

// NewSkillStore returns a store writing to <cacheDir>/skills.
func NewSkillStore(cacheDir string) (*SkillStore, error) {
	resolved, err := expandHome(cacheDir)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(resolved, "skills")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create skills dir: %w", err)
	}
	return &SkillStore{dir: dir}, nil
}

// skillDocument is the on-disk shape for one persisted skill.
type skillDocument struct {
	Concept       string               `json:"concept"`
	Question      string               `json:"question"`
	Content       string               `json:"content"`
	Sources       []workflow.SourceRef `json:"sources"`
	Verified      bool                 `json:"verified"`
	Hallucination float64              `json:"hallucination_rate"`
}

// StoreSkills writes each verified skill to <dir>/<concept>.json,
// overwriting any prior run's file for the same concept.
func (s *SkillStore) StoreSkills(ctx context.Context, skills []workflow.SkillRecord) error {
	for _, skill := range skills {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		doc := skillDocument{
			Concept:       skill.Concept.Name,
			Question:      skill.Question,
			Content:       skill.Content,
			Sources:       skill.Sources,
			Verified:      skill.Verified,
			Hallucination: skill.AuditResult.HallucinationRate,
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		name := sanitizeFilename(skill.Concept.Name) + ".json"
		if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
			return fmt.Errorf("storage: write skill %s: %w", skill.Concept.Name, err)
		}
	}
	return nil
}

// GraphConceptSource loads Concept nodes from a graphstore.Store,
// satisfying internal/workflow.ConceptSource. An empty store (no
// concepts persisted yet) returns an empty slice so the supervisor
// falls back to its mined-symbol concept synthesis, per spec §4.12.
type GraphConceptSource struct {
	store *graphstore.Store
}

// NewGraphConceptSource wraps an already-open graphstore.Store.
func NewGraphConceptSource(store *graphstore.Store) *GraphConceptSource {
	return &GraphConceptSource{store: store}
}

// LoadConcepts implements internal/workflow.ConceptSource.
func (g *GraphConceptSource) LoadConcepts(ctx context.Context) ([]workflow.Concept, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	nodes, err := g.store.NodesByLabel(graphstore.LabelConcept)
	if err != nil {
		return nil, err
	}
	concepts := make([]workflow.Concept, 0, len(nodes))
	for _, n := range nodes {
		desc, _ := n.Properties["description"].(string)
		concepts = append(concepts, workflow.Concept{Name: n.Key, Description: desc})
	}
	return concepts, nil
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "skill"
	}
	return b.String()
}
