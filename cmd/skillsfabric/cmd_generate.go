// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillsfabric/core/internal/audit"
	"github.com/skillsfabric/core/internal/catalog"
	"github.com/skillsfabric/core/internal/citation"
	"github.com/skillsfabric/core/internal/ddr"
	"github.com/skillsfabric/core/internal/failtrack"
	"github.com/skillsfabric/core/internal/llm"
	"github.com/skillsfabric/core/internal/llm/anthropic"
	"github.com/skillsfabric/core/internal/llm/openaicompat"
	"github.com/skillsfabric/core/internal/multiaudit"
	"github.com/skillsfabric/core/internal/obsv"
	"github.com/skillsfabric/core/internal/promise"
	"github.com/skillsfabric/core/internal/ralph"
	"github.com/skillsfabric/core/internal/sandbox"
	"github.com/skillsfabric/core/internal/storage"
	"github.com/skillsfabric/core/internal/validate"
	"github.com/skillsfabric/core/internal/validate/astsrc"
	"github.com/skillsfabric/core/internal/validate/tsitter"
	"github.com/skillsfabric/core/internal/workflow"
	"github.com/skillsfabric/core/internal/workflow/draft"
	"github.com/skillsfabric/core/internal/workflow/understanding"
	"github.com/skillsfabric/core/pkg/ux"
)

// runGenerate implements the `generate` subcommand: the Ralph Wiggum
// loop (spec §4.11) wrapped around the full mine→link→write→audit→
// verify→store pipeline (spec §4.12), replaying with an adjusted
// strategy until the standard skill-generation promises hold or
// --depth iterations are exhausted.
//
// --factory swaps the deterministic template writer for an
// internal/llm-backed draft (internal/workflow/draft.LLMDrafter),
// still grounded in the same mined snippet and still subject to the
// existing audit stage — drafting never bypasses auditing. It
// requires a provider API key; without one, --factory degrades to the
// template writer and the session record notes why.
func runGenerate(cmd *cobra.Command, args []string) error {
	library := args[0]

	a, err := loadApp("generate")
	if err != nil {
		exitWith(fail(err))
		return nil
	}
	defer a.metrics.Shutdown(cmd.Context())

	cacheDir := a.cfg.CacheDir
	if genSavePath != "" {
		cacheDir = genSavePath
	}

	var sources []validate.Source
	sources = append(sources, astsrc.New(), tsitter.New(), validate.NewFileContentSource())
	validator := validate.New(sources, false)

	index := catalog.Index{}
	if genCodewikiPath != "" {
		content, err := os.ReadFile(genCodewikiPath)
		if err != nil {
			exitWith(fail(fmt.Errorf("reading codewiki catalog: %w", err)))
			return nil
		}
		index = catalog.Parse(string(content), nil)
	}
	retriever := ddr.New(index, genRepoPath, validator, a.hallM)
	retriever.SetRecorder(a.metrics)
	auditor := audit.New(validator, retriever, a.hallM, a.cfg.HallMThreshold)
	auditor.SetDurationRecorder(a.metrics)
	ensemble := multiaudit.New(auditor)

	skillStore, err := storage.NewSkillStore(cacheDir)
	if err != nil {
		exitWith(fail(fmt.Errorf("opening skill store: %w", err)))
		return nil
	}

	miner := understanding.New()
	supervisor := workflow.New(miner, ensemble, nil, skillStore, nil, 0)
	supervisor.Citer = citation.New(citation.FormatInline, "")
	supervisor.Reporter = obsv.NewLogReporter(a.logger)
	supervisor.Timer = a.metrics

	tracker, err := newBeadTracker(filepath.Join(cacheDir, "beads"), a.logger)
	if err != nil {
		a.logger.Warn("bead tracking disabled", "error", err)
	} else {
		supervisor.Tracker = tracker
		defer tracker.Close()
	}

	if addr := os.Getenv("SKILLS_FABRIC_OBSERVABILITY_ADDR"); addr != "" {
		obsSrv := obsv.NewServer(a.metrics, a.logger)
		go func() {
			if err := obsSrv.Serve(addr); err != nil {
				a.logger.Warn("observability server exited", "error", err)
			}
		}()
		supervisor.Reporter = obsSrv.Reporter()
	}

	factoryNote := ""
	if genFactory {
		if a.cfg.LLM.APIKey == "" {
			factoryNote = "factory drafting requested but no provider API key configured; template writer used"
		} else {
			provider := anthropic.New(a.cfg.LLM, a.cfg.Retry, 60*time.Second)
			client := llm.New(provider, a.metrics.ThinkingRequests)
			// Thinking failures fall back to the plain chat-completions
			// path against the same backend, which has no reasoning
			// channel to misbehave.
			client.SetFallbackProvider(openaicompat.New(a.cfg.LLM.APIKey, a.cfg.LLM.Model, a.cfg.LLM.BaseURL))
			supervisor.Drafter = draft.New(client, a.cfg.LLM.Model, llm.GenerationParams{
				MaxTokens:          768,
				EnableThinking:     true,
				ThinkingBudget:     a.cfg.LLM.ThinkingBudget,
				AutoIncreaseBudget: true,
			})
			factoryNote = "factory drafting enabled"
		}
	}

	started := time.Now()

	var state *workflow.WorkflowState
	task := func(ctx context.Context, strategy failtrack.Strategy) (promise.SkillGenerationResult, error) {
		supervisor.ExactMatchOnly = strategy.RequireExactMatch
		supervisor.Oracle = sandbox.NewLocalOracle("", time.Duration(strategy.TimeoutSeconds)*time.Second)

		state = supervisor.Run(ctx, genRepoPath)
		return skillPromiseResult(state, genRepoPath), nil
	}

	loop := ralph.New(genDepth, promise.StandardSkillSet(1))
	runLoop := func(reporter obsv.ProgressReporter) ralph.Result[promise.SkillGenerationResult] {
		if reporter != nil {
			supervisor.Reporter = reporter
		}
		return loop.Run(cmd.Context(), task, func(it ralph.Iteration[promise.SkillGenerationResult]) {
			if !it.Success {
				a.logger.Info("generation iteration incomplete", "iteration", it.Number)
			}
		}, func(s failtrack.Strategy) {
			a.logger.Info("strategy adjusted",
				"search_depth", s.SearchDepth,
				"require_exact_match", s.RequireExactMatch,
				"timeout_seconds", s.TimeoutSeconds)
		})
	}

	interactive := ux.IsTTY() && !quiet && !jsonOutput
	var result ralph.Result[promise.SkillGenerationResult]
	if interactive {
		if err := runWithProgress(true, func(reporter obsv.ProgressReporter) error {
			result = runLoop(reporter)
			return nil
		}); err != nil {
			exitWith(fail(err))
			return nil
		}
	} else {
		result = runLoop(nil)
	}

	if tracker != nil && !result.Success() {
		tracker.Abandon(cmd.Context())
	}
	if state == nil {
		exitWith(fail(fmt.Errorf("generation aborted before the first iteration completed")))
		return nil
	}

	verified := 0
	for _, s := range state.Skills {
		if s.Verified {
			verified++
		}
	}
	endedAt := time.Now()
	session := storage.Session{
		SessionID:      fmt.Sprintf("%s-%d", library, started.Unix()),
		StartedAt:      started,
		EndedAt:        &endedAt,
		Library:        library,
		SkillsCreated:  len(state.Skills),
		SkillsVerified: verified,
		SkillsRejected: len(state.Skills) - verified,
		Iterations:     result.TotalIterations,
	}
	if changes := strategyDelta(result.FinalStrategy); len(changes) > 0 {
		session.StrategyAdjusts = append(session.StrategyAdjusts,
			storage.StrategyAdjustment{Timestamp: endedAt, Changes: changes})
	}
	if factoryNote != "" {
		session.Notes = factoryNote
	}
	for stage, stageErr := range state.StageErrors {
		session.Errors = append(session.Errors, fmt.Sprintf("%s: %v", stage, stageErr))
	}
	if err := a.sessions.Append(session); err != nil {
		ux.Warning(fmt.Sprintf("failed to persist session record: %v", err))
	}

	if ux.EmitJSON(state) {
		if !result.Success() {
			exitWith(exitError)
		}
		return nil
	}

	ux.Title(fmt.Sprintf("generate: %s", library))
	for stage, stageErr := range state.StageErrors {
		ux.Warning(fmt.Sprintf("%s: %v", stage, stageErr))
	}
	for _, s := range state.Skills {
		status := "✗"
		if s.Verified {
			status = "✓"
		}
		ux.Info(fmt.Sprintf("%s %s — %s", status, s.Concept.Name, s.Question))
	}
	ux.Box("summary", fmt.Sprintf(
		"mined=%d symbols, %d proven links, %d skills drafted, %d verified, avg_hallucination_rate=%.4f, iterations=%d (%s)",
		len(state.MinedSymbols), len(state.ProvenLinks), len(state.Skills), verified,
		state.AvgHallucinationRate, result.TotalIterations, result.Status,
	))

	if !result.Success() {
		if result.FailureReport != "" && verbose {
			ux.Info(result.FailureReport)
		}
		exitWith(exitError)
	}
	return nil
}

// skillPromiseResult projects a workflow state into the shape the
// standard skill-generation promise set (spec §4.9) checks: skill
// count, citation-to-file resolution, and sandbox pass count.
func skillPromiseResult(state *workflow.WorkflowState, repoRoot string) promise.SkillGenerationResult {
	result := promise.SkillGenerationResult{
		SkillsCreated: len(state.Skills),
		ExistingFiles: make(map[string]bool),
	}
	for _, skill := range state.Skills {
		if skill.Verified {
			result.SandboxPassedCount++
		}
		for _, src := range skill.Sources {
			result.GroundedCitations = append(result.GroundedCitations, src.File)
			if _, seen := result.ExistingFiles[src.File]; seen {
				continue
			}
			_, err := os.Stat(filepath.Join(repoRoot, src.File))
			result.ExistingFiles[src.File] = err == nil
		}
	}
	return result
}

// strategyDelta lists the non-default strategy knobs, for the session
// record's strategy_adjustments trail.
func strategyDelta(s failtrack.Strategy) map[string]any {
	deltas := make(map[string]any)
	if s.SearchDepth > 1 {
		deltas["search_depth"] = s.SearchDepth
	}
	if s.RequireExactMatch {
		deltas["require_exact_match"] = true
	}
	if s.FallbackToAST {
		deltas["fallback_to_ast"] = true
	}
	if s.TimeoutSeconds > 10 {
		deltas["timeout_seconds"] = s.TimeoutSeconds
	}
	if !s.RetryExternalServices {
		deltas["retry_external_services"] = false
	}
	return deltas
}
