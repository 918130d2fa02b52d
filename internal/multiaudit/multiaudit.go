// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package multiaudit runs four specialist agents — bug, smell,
// security, documentation — concurrently over the same content and
// composes their analyses into one weighted verdict (spec §4.7). The
// specialists detect complementary issue classes, so the fan-out is a
// hard requirement, not an optimization: serializing them would also
// serialize the detection patterns they were designed to diversify.
package multiaudit

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skillsfabric/core/internal/audit"
	"github.com/skillsfabric/core/internal/claims"
	"github.com/skillsfabric/core/internal/ddr"
)

// Agent names, fixed by spec §4.7's specialist table.
const (
	AgentBug           = "bug"
	AgentSmell         = "smell"
	AgentSecurity      = "security"
	AgentDocumentation = "documentation"
)

// weight is spec §4.7's composite-score table: bug 0.30, smell 0.15,
// security 0.25, documentation 0.30.
var weight = map[string]float64{
	AgentBug:           0.30,
	AgentSmell:         0.15,
	AgentSecurity:      0.25,
	AgentDocumentation: 0.30,
}

// Issue is one specialist's flagged problem.
type Issue struct {
	Category    string
	Severity    claims.Severity
	Description string
	Location    string
	Confidence  float64
	Agent       string
}

// AgentAnalysis is one specialist's complete verdict over a content
// item.
type AgentAnalysis struct {
	AgentName     string
	Issues        []Issue
	Passed        bool
	Score         float64
	ExecutionTime time.Duration
}

// Report is the composed four-agent verdict. HallucinationRate is the
// documentation agent's attached rate; AuditResult carries its full
// claim-level breakdown.
type Report struct {
	Analyses          map[string]AgentAnalysis
	Composite         float64
	Passed            bool
	CriticalIssues    int
	HighIssues        int
	MediumIssues      int
	LowIssues         int
	HallucinationRate float64
	AuditResult       audit.Result
}

// Issues returns every agent's issues flattened, in agent-table order.
func (r Report) Issues() []Issue {
	var all []Issue
	for _, name := range []string{AgentBug, AgentSmell, AgentSecurity, AgentDocumentation} {
		all = append(all, r.Analyses[name].Issues...)
	}
	return all
}

// scanner is one code-quality specialist's detection pass. The bug,
// smell, and security scanners are pure functions over content; only
// the documentation agent suspends (it drives the claim auditor).
type scanner func(content string) []Issue

// Auditor fans the four specialists out in parallel and joins on a
// barrier before composing. Construct once; safe for concurrent use.
type Auditor struct {
	doc      *audit.Auditor
	scanners map[string]scanner
}

// New builds the standard four-specialist ensemble. docAuditor drives
// the documentation agent's hallucination detection.
func New(docAuditor *audit.Auditor) *Auditor {
	return &Auditor{
		doc: docAuditor,
		scanners: map[string]scanner{
			AgentBug:      scanBugs,
			AgentSmell:    scanSmells,
			AgentSecurity: scanSecurity,
		},
	}
}

// Audit runs all four agents in parallel over content. providedRefs
// and repoRoot feed the documentation agent's claim audit; the other
// three inspect content alone. The combined result is visible only
// after every agent's analysis has been recorded (the errgroup Wait is
// the join barrier spec §5 requires).
func (a *Auditor) Audit(ctx context.Context, content string, providedRefs []ddr.SourceRef, repoRoot string) (Report, error) {
	analyses := make(map[string]AgentAnalysis, 4)
	results := make(chan AgentAnalysis, 4)

	g, gctx := errgroup.WithContext(ctx)

	for name, scan := range a.scanners {
		name, scan := name, scan
		g.Go(func() error {
			start := time.Now()
			issues := scan(content)
			results <- analyze(name, issues, time.Since(start))
			return nil
		})
	}

	var docResult audit.Result
	g.Go(func() error {
		start := time.Now()
		result, err := a.doc.Audit(gctx, content, providedRefs, repoRoot, audit.ModeLenient, false, claims.Options{ExtractBehaviors: true})
		if err != nil {
			return err
		}
		docResult = result
		analysis := analyze(AgentDocumentation, docIssues(result), time.Since(start))
		analysis.Passed = result.HallucinationRate < 0.02
		analysis.Score = 1 - result.HallucinationRate
		results <- analysis
		return nil
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	close(results)
	for analysis := range results {
		analyses[analysis.AgentName] = analysis
	}

	return compose(analyses, docResult), nil
}

// compose applies spec §4.7's combination rule: composite = Σ weight ·
// score, passed ⇔ no criticals anywhere, at most two highs, and the
// documentation agent (the hallucination detector) passed.
func compose(analyses map[string]AgentAnalysis, docResult audit.Result) Report {
	report := Report{
		Analyses:          analyses,
		AuditResult:       docResult,
		HallucinationRate: docResult.HallucinationRate,
	}
	for _, analysis := range analyses {
		report.Composite += weight[analysis.AgentName] * analysis.Score
		for _, issue := range analysis.Issues {
			switch issue.Severity {
			case claims.SeverityCritical:
				report.CriticalIssues++
			case claims.SeverityHigh:
				report.HighIssues++
			case claims.SeverityMedium:
				report.MediumIssues++
			case claims.SeverityLow:
				report.LowIssues++
			}
		}
	}

	report.Passed = report.CriticalIssues == 0 &&
		report.HighIssues <= 2 &&
		analyses[AgentDocumentation].Passed

	return report
}

// severityPenalty is the score deduction for the first issue of each
// severity; each further issue of the same severity costs half the
// previous one, so a pile of duplicate low-grade findings cannot zero
// an agent the way a single critical nearly does.
var severityPenalty = map[claims.Severity]float64{
	claims.SeverityCritical: 0.5,
	claims.SeverityHigh:     0.2,
	claims.SeverityMedium:   0.1,
	claims.SeverityLow:      0.05,
}

func analyze(name string, issues []Issue, elapsed time.Duration) AgentAnalysis {
	score := 1.0
	counts := make(map[claims.Severity]int)
	for _, issue := range issues {
		counts[issue.Severity]++
		score -= severityPenalty[issue.Severity] / float64(int(1)<<uint(counts[issue.Severity]-1))
	}
	if score < 0 {
		score = 0
	}

	passed := counts[claims.SeverityCritical] == 0
	if name == AgentSmell {
		passed = passed && counts[claims.SeverityHigh] == 0
	}

	return AgentAnalysis{
		AgentName:     name,
		Issues:        issues,
		Passed:        passed,
		Score:         score,
		ExecutionTime: elapsed,
	}
}

// docIssues projects the claim auditor's unverified claims into the
// shared Issue shape so the combined severity totals see them.
func docIssues(result audit.Result) []Issue {
	var issues []Issue
	for _, v := range result.Verifications {
		if v.Verified {
			continue
		}
		issues = append(issues, Issue{
			Category:    "hallucination",
			Severity:    v.Claim.Severity,
			Description: v.RejectionReason,
			Location:    v.Claim.FileCited,
			Confidence:  1 - v.Confidence,
			Agent:       AgentDocumentation,
		})
	}
	return issues
}
