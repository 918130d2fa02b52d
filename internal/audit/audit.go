// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit implements the Claim Auditor: for each claim extracted
// from generated content, attempt a cascade of verification strategies
// and aggregate the results into an AuditResult.
package audit

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skillsfabric/core/internal/claims"
	"github.com/skillsfabric/core/internal/ddr"
	"github.com/skillsfabric/core/internal/hallm"
	"github.com/skillsfabric/core/internal/validate"
)

// Source identifies which verification strategy confirmed a claim —
// spec §3's ValidationSource set, used for the is_high_confidence
// (>= 2 sources) rule.
type Source string

const (
	SourceProvidedRef Source = "provided_ref"
	SourceValidator   Source = "validator"
	SourceDDR         Source = "ddr"
	SourceDirectCite  Source = "direct_citation"
	SourceCategory    Source = "category_fallback"
)

// Verification is a Claim plus its audit verdict (spec §3's
// ClaimVerification).
type Verification struct {
	Claim            claims.Claim
	Verified         bool
	Confidence       float64
	SourcesConfirmed map[Source]bool
	RejectionReason  string
	ActualLine       int
	ActualType       string
	Discrepancies    []string
	DiscrepancyDiff  string
}

// IsHighConfidence mirrors is_high_confidence <=> |sources_confirmed| >= 2.
func (v Verification) IsHighConfidence() bool { return len(v.SourcesConfirmed) >= 2 }

// Result is the AuditResult aggregate from spec §3/§4.6.
type Result struct {
	Passed               bool
	TotalClaims          int
	VerifiedClaims       int
	UnverifiedClaims     int
	HallucinationRate    float64
	ByType               map[claims.Type]int
	UnverifiedBySeverity map[claims.Severity]int
	MultiSourceCount     int
	HighConfidenceCount  int
	Verifications        []Verification
}

// Mode selects the aggregate pass rule (spec §4.6).
type Mode int

const (
	// ModeStrict: passed <=> critical_unverified == 0 && unverified == 0.
	ModeStrict Mode = iota
	// ModeLenient: passed <=> hallucination_rate < threshold.
	ModeLenient
)

// DurationRecorder is notified with the wall-clock duration of each
// Audit call, so a metrics backend can track the AuditDuration
// histogram without Auditor importing one.
type DurationRecorder interface {
	RecordAuditDuration(d time.Duration)
}

// Auditor runs the five-step verification cascade per claim.
type Auditor struct {
	validator *validate.Validator
	retriever *ddr.Retriever
	metric    *hallm.HallMetric
	threshold float64
	recorder  DurationRecorder
}

// New constructs an Auditor. threshold applies only in ModeLenient
// (default 0.02 per spec §4.6).
func New(validator *validate.Validator, retriever *ddr.Retriever, metric *hallm.HallMetric, threshold float64) *Auditor {
	if threshold <= 0 {
		threshold = 0.02
	}
	return &Auditor{validator: validator, retriever: retriever, metric: metric, threshold: threshold}
}

// SetDurationRecorder attaches a metrics DurationRecorder; nil disables
// reporting.
func (a *Auditor) SetDurationRecorder(rec DurationRecorder) {
	a.recorder = rec
}

// Audit extracts claims from content and verifies each through the
// cascade, then aggregates under mode. providedRefs are the caller's
// already-validated SourceRefs (spec §4.6 step 1); repoRoot resolves
// file existence/line-count checks for step 4.
func (a *Auditor) Audit(ctx context.Context, content string, providedRefs []ddr.SourceRef, repoRoot string, mode Mode, failOnHallMExceed bool, opts claims.Options) (Result, error) {
	started := time.Now()
	if a.recorder != nil {
		defer func() { a.recorder.RecordAuditDuration(time.Since(started)) }()
	}

	extracted := claims.Extract(content, opts)

	result := Result{
		TotalClaims:          len(extracted),
		ByType:               make(map[claims.Type]int),
		UnverifiedBySeverity: make(map[claims.Severity]int),
	}

	for _, c := range extracted {
		result.ByType[c.ClaimType]++
		v := a.verifyClaim(ctx, c, providedRefs, repoRoot)
		result.Verifications = append(result.Verifications, v)

		if v.Verified {
			result.VerifiedClaims++
		} else {
			result.UnverifiedClaims++
			result.UnverifiedBySeverity[c.Severity]++
		}
		if len(v.SourcesConfirmed) >= 2 {
			result.MultiSourceCount++
		}
		if v.IsHighConfidence() {
			result.HighConfidenceCount++
		}
	}

	if result.TotalClaims > 0 {
		result.HallucinationRate = float64(result.UnverifiedClaims) / float64(result.TotalClaims)
	}

	switch mode {
	case ModeStrict:
		result.Passed = result.UnverifiedBySeverity[claims.SeverityCritical] == 0 && result.UnverifiedClaims == 0
	case ModeLenient:
		result.Passed = result.HallucinationRate < a.threshold
	}

	if a.metric != nil {
		contentLabel := "content:" + strconv.Itoa(len(content)) + "chars"
		if err := a.metric.RecordAndCheck(result.VerifiedClaims, result.UnverifiedClaims, "audit", contentLabel, failOnHallMExceed); err != nil {
			return result, err
		}
	}

	return result, nil
}

// verifyClaim runs the five-step cascade, stopping at the first
// success (spec §4.6).
func (a *Auditor) verifyClaim(ctx context.Context, c claims.Claim, providedRefs []ddr.SourceRef, repoRoot string) Verification {
	v := Verification{Claim: c, SourcesConfirmed: make(map[Source]bool)}

	// Step 1: provided refs.
	for _, ref := range providedRefs {
		if refMatches(ref, c) {
			v.Verified = true
			v.Confidence = 1.0
			v.SourcesConfirmed[SourceProvidedRef] = true
			v.ActualLine = ref.LineNumber
			v.ActualType = string(ref.SymbolType)
			return v
		}
	}

	// Step 2: multi-source validator, if file+line are known.
	file, line := claimLocation(c)
	if a.validator != nil && file != "" && line > 0 {
		content, err := os.ReadFile(joinRepo(repoRoot, file))
		if err == nil {
			verdict := a.validator.Validate(ctx, c.SymbolMentioned, file, line, c.ExpectedType, content)
			if verdict.IsValid {
				v.Verified = true
				v.Confidence = verdict.Confidence
				v.SourcesConfirmed[SourceValidator] = true
				v.ActualLine = verdict.ActualLine
				v.ActualType = verdict.SymbolKind
				v.Discrepancies = verdict.Discrepancies
				v.DiscrepancyDiff = validate.FormatDiscrepancyDiff(c.SymbolMentioned, line, verdict.ActualLine, content)
				return v
			}
		}
	}

	// Step 3: DDR lookup for symbol-bearing claims.
	if a.retriever != nil && c.SymbolMentioned != "" {
		ddrResult, err := a.retriever.Retrieve(ctx, c.SymbolMentioned, 3, false)
		if err == nil {
			for _, el := range ddrResult.Elements {
				if strings.EqualFold(el.SourceRef.SymbolName, c.SymbolMentioned) {
					v.Verified = true
					v.Confidence = 0.7
					v.SourcesConfirmed[SourceDDR] = true
					v.ActualLine = el.SourceRef.LineNumber
					v.ActualType = string(el.SourceRef.SymbolType)
					return v
				}
			}
		}
	}

	// Step 4: direct citation check — file exists, line <= file_line_count.
	if c.FileCited != "" {
		content, err := os.ReadFile(joinRepo(repoRoot, c.FileCited))
		if err == nil {
			lineCount := strings.Count(string(content), "\n") + 1
			if c.LineCited <= lineCount {
				v.Verified = true
				v.Confidence = 0.8
				v.SourcesConfirmed[SourceDirectCite] = true
				v.ActualLine = c.LineCited
				return v
			}
		}
		v.RejectionReason = "cited file line exceeds file length"
	}

	// Step 5: category-specific fallback.
	switch c.ClaimType {
	case claims.TypePattern:
		v.Verified = false
		v.Confidence = 0.3
		v.SourcesConfirmed[SourceCategory] = true
		v.RejectionReason = "pattern claims resolve inconclusively"
	case claims.TypeBehavior:
		v.Verified = false
		v.RejectionReason = "behavior claim's symbol not found in source"
	default:
		if v.RejectionReason == "" {
			v.RejectionReason = "no verification strategy confirmed this claim"
		}
	}

	return v
}

func refMatches(ref ddr.SourceRef, c claims.Claim) bool {
	if c.SymbolMentioned != "" && ref.SymbolName != "" {
		a := strings.ToLower(ref.SymbolName)
		b := strings.ToLower(c.SymbolMentioned)
		if strings.Contains(a, b) || strings.Contains(b, a) {
			return true
		}
	}
	if c.FileCited != "" && ref.FilePath != "" && c.FileCited == ref.FilePath {
		if absInt(c.LineCited-ref.LineNumber) <= 3 {
			return true
		}
	}
	return false
}

func claimLocation(c claims.Claim) (string, int) {
	if c.FileCited != "" {
		return c.FileCited, c.LineCited
	}
	return "", 0
}

func joinRepo(root, file string) string {
	if root == "" {
		return file
	}
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(file, "/")
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
