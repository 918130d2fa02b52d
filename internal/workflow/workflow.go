// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workflow is the agent supervisor (spec §4.12): it sequences
// mining, linking, writing, auditing, verifying, and storing into one
// in-memory WorkflowState, routing AgentMessages between stages and
// reporting progress. Stages run as a strict pipeline — each is a
// synchronous barrier — but the per-item work inside a stage runs
// across a configurable worker pool, the same channel-plus-waitgroup
// shape the teacher's graph refresher uses to parse files concurrently.
package workflow

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/skillsfabric/core/internal/audit"
	"github.com/skillsfabric/core/internal/citation"
	"github.com/skillsfabric/core/internal/ddr"
	"github.com/skillsfabric/core/internal/multiaudit"
	"github.com/skillsfabric/core/internal/obsv"
	"github.com/skillsfabric/core/internal/workflow/understanding"
)

// Concept is a unit of documentation intent loaded from storage (or,
// absent storage, synthesized from mined symbols as a fallback).
type Concept struct {
	Name        string
	Description string
}

// ProvenLink ties a Concept to a mined symbol via one of three match
// strategies, each scored independently.
type ProvenLink struct {
	Concept    Concept
	Symbol     string
	File       string
	Line       int
	Confidence float64
	Strategy   string
}

const linkConfidenceFloor = 0.5

// SourceRef is a grounding reference a skill's audit trail cites.
type SourceRef struct {
	Symbol string
	File   string
	Line   int
}

// SkillRecord is one generated skill document, threaded through
// auditing, verification, and storage.
type SkillRecord struct {
	Concept        Concept
	Question       string
	Content        string
	Sources        []SourceRef
	UncitedSymbols []string
	AuditResult    audit.Result
	Ensemble       *multiaudit.Report
	Passed         bool
	Verified       bool
}

// AgentMessage is routed between stages via the supervisor's shared
// queue and timestamped on receipt.
type AgentMessage struct {
	From      string
	Kind      string
	Payload   string
	Timestamp time.Time
}

// WorkflowState is threaded through all six stages.
type WorkflowState struct {
	RepoRoot             string
	MinedSymbols         []understanding.Symbol
	MinedSnippets        []understanding.Snippet
	Concepts             []Concept
	ProvenLinks          []ProvenLink
	Skills               []SkillRecord
	Messages             []AgentMessage
	AvgHallucinationRate float64
	StageErrors          map[string]error
}

// ConceptSource loads concepts to link mined symbols against. A
// storage-backed implementation and a mined-symbol fallback both
// satisfy this.
type ConceptSource interface {
	LoadConcepts(ctx context.Context) ([]Concept, error)
}

// SkillStore persists verified skills. internal/storage's
// implementation satisfies this.
type SkillStore interface {
	StoreSkills(ctx context.Context, skills []SkillRecord) error
}

// SandboxOracle is the boolean verification authority (spec §9 Open
// Question 2): its verdict is final, the supervisor never second-guesses it.
type SandboxOracle interface {
	Verify(ctx context.Context, code string) (bool, error)
}

// Drafter generates a skill's prose body for a proven link. Set only
// when `generate --factory` is requested; a nil Drafter keeps the
// write stage on its deterministic, always-grounded template path.
// Any error or empty result from a Drafter falls back to the template
// snippet rather than emitting an empty skill.
type Drafter interface {
	Draft(ctx context.Context, concept Concept, symbol, file string, line int, snippet string) (string, error)
}

// StageTimer observes how long each supervisor stage took. Satisfied
// by *internal/obsv.Metrics; nil disables stage-duration recording.
type StageTimer interface {
	ObserveWorkflowStage(stage string, d time.Duration)
}

// WorkTracker observes stage lifecycle for an external work-item
// store. Satisfied by the beads-backed tracker in cmd/; nil disables
// tracking. Implementations must tolerate repeated runs (a Ralph loop
// replays the supervisor with an adjusted strategy).
type WorkTracker interface {
	StageStarted(ctx context.Context, stage string)
	StageCompleted(ctx context.Context, stage string, learnings string)
}

// Supervisor sequences the six stages over a worker pool. Auditing
// fans each skill out to the four-specialist ensemble; the combined
// verdict is recorded alongside the documentation agent's claim-level
// AuditResult, which remains the accept/reject authority for a skill.
type Supervisor struct {
	Miner    *understanding.Miner
	Ensemble *multiaudit.Auditor
	Oracle   SandboxOracle
	Store    SkillStore
	Concepts ConceptSource
	Drafter  Drafter
	Citer    *citation.System
	Workers  int
	Reporter obsv.ProgressReporter
	Timer    StageTimer
	Tracker  WorkTracker

	// Link-stage knobs the Ralph loop tunes between runs: a floor on
	// match confidence and an exact-name-only restriction.
	LinkFloor      float64
	ExactMatchOnly bool

	mu       sync.Mutex
	messages []AgentMessage
}

// New constructs a Supervisor. workers <= 0 defaults to
// runtime.NumCPU(), the spec's documented default worker-pool size.
func New(miner *understanding.Miner, ensemble *multiaudit.Auditor, oracle SandboxOracle, store SkillStore, concepts ConceptSource, workers int) *Supervisor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Supervisor{
		Miner:     miner,
		Ensemble:  ensemble,
		Oracle:    oracle,
		Store:     store,
		Concepts:  concepts,
		Workers:   workers,
		LinkFloor: linkConfidenceFloor,
	}
}

// Run executes all six stages in sequence against repoRoot, returning
// the final WorkflowState. A failure in one stage is recorded in
// StageErrors and does not halt the workflow unless that stage's
// output is empty in a way that would make every downstream stage
// meaningless (no symbols mined, no links proven, no skills written).
func (s *Supervisor) Run(ctx context.Context, repoRoot string) *WorkflowState {
	state := &WorkflowState{RepoRoot: repoRoot, StageErrors: make(map[string]error)}

	s.report(state, "mining", 0, 6)
	s.timed(ctx, "mining", state, func() { s.mine(ctx, state) })
	if len(state.MinedSymbols) == 0 {
		state.StageErrors["mining"] = fmt.Errorf("no symbols mined from %s", repoRoot)
		return state
	}

	s.report(state, "linking", 1, 6)
	s.timed(ctx, "linking", state, func() { s.link(ctx, state) })
	if len(state.ProvenLinks) == 0 {
		state.StageErrors["linking"] = fmt.Errorf("no concept-to-symbol links proven")
		return state
	}

	s.report(state, "writing", 2, 6)
	s.timed(ctx, "writing", state, func() { s.write(ctx, state) })
	if len(state.Skills) == 0 {
		state.StageErrors["writing"] = fmt.Errorf("no skills drafted from proven links")
		return state
	}

	s.report(state, "auditing", 3, 6)
	s.timed(ctx, "auditing", state, func() { s.audit(ctx, state) })

	s.report(state, "verifying", 4, 6)
	s.timed(ctx, "verifying", state, func() { s.verify(ctx, state) })

	s.report(state, "storing", 5, 6)
	s.timed(ctx, "storing", state, func() { s.store(ctx, state) })

	s.report(state, "done", 6, 6)
	state.Messages = s.drainMessages()
	return state
}

func (s *Supervisor) report(state *WorkflowState, stage string, step, total int) {
	s.route(AgentMessage{From: "supervisor", Kind: "stage_start", Payload: stage})
	if s.Reporter != nil {
		s.Reporter.Report(stage, step, total)
	}
}

// timed runs a stage, recording its wall-clock duration through Timer
// and its lifecycle through Tracker when either is configured.
func (s *Supervisor) timed(ctx context.Context, stage string, state *WorkflowState, fn func()) {
	if s.Tracker != nil {
		s.Tracker.StageStarted(ctx, stage)
	}
	start := time.Now()
	fn()
	if s.Timer != nil {
		s.Timer.ObserveWorkflowStage(stage, time.Since(start))
	}
	if s.Tracker != nil {
		learnings := ""
		if err, failed := state.StageErrors[stage]; failed {
			learnings = err.Error()
		}
		s.Tracker.StageCompleted(ctx, stage, learnings)
	}
}

// route appends a message to the shared queue, timestamped on arrival.
func (s *Supervisor) route(msg AgentMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.Timestamp = time.Now()
	s.messages = append(s.messages, msg)
}

func (s *Supervisor) drainMessages() []AgentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages
	s.messages = nil
	return out
}

// mine is stage 1.
func (s *Supervisor) mine(ctx context.Context, state *WorkflowState) {
	if s.Miner == nil {
		return
	}
	symbols, snippets, err := s.Miner.Mine(ctx, state.RepoRoot)
	if err != nil {
		state.StageErrors["mining"] = err
	}
	state.MinedSymbols = symbols
	state.MinedSnippets = snippets
	s.route(AgentMessage{From: "miner", Kind: "mined", Payload: fmt.Sprintf("%d symbols", len(symbols))})
}

// link is stage 2: runParallel over concepts, each matched against
// mined symbols by the three strategies, confidence floor 0.5.
func (s *Supervisor) link(ctx context.Context, state *WorkflowState) {
	concepts := state.Concepts
	if s.Concepts != nil {
		if loaded, err := s.Concepts.LoadConcepts(ctx); err == nil && len(loaded) > 0 {
			concepts = loaded
		}
	}
	if len(concepts) == 0 {
		concepts = conceptsFromSymbols(state.MinedSymbols)
	}
	state.Concepts = concepts

	floor := s.LinkFloor
	if floor <= 0 {
		floor = linkConfidenceFloor
	}
	results := runParallel(ctx, s.Workers, concepts, func(c Concept) []ProvenLink {
		return matchConcept(c, state.MinedSymbols, floor, s.ExactMatchOnly)
	})
	for _, links := range results {
		state.ProvenLinks = append(state.ProvenLinks, links...)
	}
	s.route(AgentMessage{From: "linker", Kind: "linked", Payload: fmt.Sprintf("%d proven links", len(state.ProvenLinks))})
}

func conceptsFromSymbols(symbols []understanding.Symbol) []Concept {
	seen := make(map[string]bool)
	var concepts []Concept
	for _, sym := range symbols {
		if seen[sym.Name] {
			continue
		}
		seen[sym.Name] = true
		concepts = append(concepts, Concept{Name: sym.Name, Description: sym.Kind + " " + sym.Name})
	}
	return concepts
}

func matchConcept(c Concept, symbols []understanding.Symbol, floor float64, exactOnly bool) []ProvenLink {
	var links []ProvenLink
	lowerName := strings.ToLower(c.Name)
	for _, sym := range symbols {
		conf, strategy, ok := matchStrategies(lowerName, c.Description, sym)
		if !ok || conf < floor {
			continue
		}
		if exactOnly && strategy != "exact_name" {
			continue
		}
		links = append(links, ProvenLink{
			Concept: c, Symbol: sym.Name, File: sym.File, Line: sym.Line,
			Confidence: conf, Strategy: strategy,
		})
	}
	return links
}

// matchStrategies tries exact name, filename, then content containment,
// returning the strongest match.
func matchStrategies(lowerConceptName, description string, sym understanding.Symbol) (float64, string, bool) {
	lowerSymbol := strings.ToLower(sym.Name)

	if lowerSymbol == lowerConceptName {
		return 1.0, "exact_name", true
	}
	if strings.Contains(strings.ToLower(sym.File), lowerConceptName) {
		return 0.7, "filename", true
	}
	if description != "" && strings.Contains(strings.ToLower(description), lowerSymbol) {
		return 0.5, "content", true
	}
	return 0, "", false
}

// write is stage 3: template a question per link's inferred symbol
// kind and attach the best snippet. When a Drafter is configured
// (`generate --factory`), its prose is prepended to the snippet so the
// auditing stage still has the literal symbol text to ground claims
// against; a failed or empty draft silently falls back to the
// snippet-only template rather than emitting a hallucination-prone gap.
func (s *Supervisor) write(ctx context.Context, state *WorkflowState) {
	snippetByKey := make(map[string]string, len(state.MinedSnippets))
	for _, snip := range state.MinedSnippets {
		snippetByKey[snip.File+":"+snip.Symbol] = snip.Content
	}
	kindBySymbol := make(map[string]string, len(state.MinedSymbols))
	for _, sym := range state.MinedSymbols {
		kindBySymbol[sym.File+":"+sym.Name] = sym.Kind
	}

	results := runParallel(ctx, s.Workers, state.ProvenLinks, func(link ProvenLink) SkillRecord {
		key := link.File + ":" + link.Symbol
		kind := kindBySymbol[key]
		snippet := snippetByKey[key]
		content := snippet

		if s.Drafter != nil {
			prose, err := s.Drafter.Draft(ctx, link.Concept, link.Symbol, link.File, link.Line, snippet)
			if err == nil && strings.TrimSpace(prose) != "" {
				content = prose + "\n\n```\n" + snippet + "\n```"
			}
		}

		record := SkillRecord{
			Concept:  link.Concept,
			Question: questionFor(kind, link.Symbol),
			Content:  content,
			Sources:  []SourceRef{{Symbol: link.Symbol, File: link.File, Line: link.Line}},
		}

		// Ground every backtick-quoted symbol mention with a file:line
		// citation; symbols no ref covers surface as uncited instead of
		// getting a fabricated reference.
		if s.Citer != nil {
			cited := s.Citer.AddCitations(record.Content, []citation.Ref{
				{Symbol: link.Symbol, File: link.File, Line: link.Line},
			})
			record.Content = cited.CitedContent
			record.UncitedSymbols = cited.UncitedSymbols
		}

		return record
	})
	state.Skills = results
	s.route(AgentMessage{From: "writer", Kind: "written", Payload: fmt.Sprintf("%d skills drafted", len(results))})
}

var questionTemplates = map[string]string{
	"function": "How does %s work, and when should it be called?",
	"method":   "What does the %s method do, and what does it operate on?",
	"class":    "What is %s responsible for, and how is it constructed?",
	"type":     "What does the %s type represent?",
	"default":  "What is %s and how is it used?",
}

func questionFor(kind, symbol string) string {
	tmpl, ok := questionTemplates[kind]
	if !ok {
		tmpl = questionTemplates["default"]
	}
	return fmt.Sprintf(tmpl, symbol)
}

// audit is stage 4: build a SourceRef-derived provided-ref list per
// skill and fan it out to the four-specialist ensemble. The
// documentation agent runs the claim auditor in lenient mode; its
// result decides acceptance, while the full ensemble report rides
// along for the verdict's code-quality dimensions.
func (s *Supervisor) audit(ctx context.Context, state *WorkflowState) {
	if s.Ensemble == nil {
		return
	}
	results := runParallel(ctx, s.Workers, state.Skills, func(skill SkillRecord) SkillRecord {
		var providedRefs []ddr.SourceRef
		for _, link := range state.ProvenLinks {
			if strings.Contains(skill.Content, link.Symbol) {
				providedRefs = append(providedRefs, ddr.SourceRef{
					SymbolName: link.Symbol,
					FilePath:   link.File,
					LineNumber: link.Line,
					Validated:  true,
				})
			}
		}

		report, err := s.Ensemble.Audit(ctx, skill.Content, providedRefs, state.RepoRoot)
		if err != nil {
			return skill
		}
		skill.Ensemble = &report
		skill.AuditResult = report.AuditResult
		skill.Passed = report.AuditResult.Passed
		return skill
	})

	state.Skills = results

	var total float64
	var n int
	for _, skill := range state.Skills {
		if skill.AuditResult.TotalClaims > 0 {
			total += skill.AuditResult.HallucinationRate
			n++
		}
	}
	if n > 0 {
		state.AvgHallucinationRate = total / float64(n)
	}
	s.route(AgentMessage{From: "auditor", Kind: "audited", Payload: fmt.Sprintf("avg hall_m %.4f", state.AvgHallucinationRate)})
}

// verify is stage 5: run the sandbox oracle on every audited skill
// that passed, keeping only those the oracle accepts.
func (s *Supervisor) verify(ctx context.Context, state *WorkflowState) {
	if s.Oracle == nil {
		return
	}
	var toVerify []SkillRecord
	for _, skill := range state.Skills {
		if skill.Passed {
			toVerify = append(toVerify, skill)
		}
	}

	results := runParallel(ctx, s.Workers, toVerify, func(skill SkillRecord) SkillRecord {
		ok, err := s.Oracle.Verify(ctx, skill.Content)
		skill.Verified = err == nil && ok
		return skill
	})

	bySymbol := make(map[string]SkillRecord, len(results))
	for _, r := range results {
		bySymbol[r.Concept.Name] = r
	}
	for i, skill := range state.Skills {
		if updated, ok := bySymbol[skill.Concept.Name]; ok {
			state.Skills[i] = updated
		}
	}
	s.route(AgentMessage{From: "verifier", Kind: "verified", Payload: fmt.Sprintf("%d of %d verified", len(results), len(toVerify))})
}

// store is stage 6: persist every verified skill.
func (s *Supervisor) store(ctx context.Context, state *WorkflowState) {
	if s.Store == nil {
		return
	}
	var verified []SkillRecord
	for _, skill := range state.Skills {
		if skill.Verified {
			verified = append(verified, skill)
		}
	}
	if err := s.Store.StoreSkills(ctx, verified); err != nil {
		state.StageErrors["storing"] = err
		return
	}
	s.route(AgentMessage{From: "storer", Kind: "stored", Payload: fmt.Sprintf("%d skills persisted", len(verified))})
}

// runParallel fans work out across a bounded worker pool and collects
// results in input order, the same channel-plus-waitgroup shape the
// teacher's graph refresher uses for parallel file parsing.
func runParallel[I, O any](ctx context.Context, workers int, items []I, fn func(I) O) []O {
	if len(items) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	type job struct {
		item I
		idx  int
	}
	type outcome struct {
		value O
		idx   int
	}

	jobs := make(chan job, len(items))
	results := make(chan outcome, len(items))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- outcome{value: fn(j.item), idx: j.idx}
			}
		}()
	}

	for i, item := range items {
		jobs <- job{item: item, idx: i}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]O, len(items))
	got := make([]bool, len(items))
	for r := range results {
		ordered[r.idx] = r.value
		got[r.idx] = true
	}

	out := make([]O, 0, len(items))
	for i, ok := range got {
		if ok {
			out = append(out, ordered[i])
		}
	}
	return out
}
