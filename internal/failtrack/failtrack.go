// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package failtrack records failed iterations and turns repeated
// failure patterns into monotonic strategy adjustments — deeper
// search after repeated misses, AST-only fallback after repeated
// sandbox failures, and so on (spec §4.10). Adjustments never
// reverse: once a threshold trips, the strategy stays adjusted for
// the life of the tracker.
package failtrack

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skillsfabric/core/internal/errs"
)

// FailureType categorizes a failed iteration for pattern analysis.
type FailureType string

const (
	FailureSourceNotFound  FailureType = "source_not_found"
	FailureSandboxFailed   FailureType = "sandbox_failed"
	FailureLowConfidence   FailureType = "low_confidence"
	FailureHallucination   FailureType = "hallucination"
	FailureTimeout         FailureType = "timeout"
	FailureExternalService FailureType = "external_service"
	FailureUnknown         FailureType = "unknown"
)

// Record is one recorded failure.
type Record struct {
	Iteration   int
	FailureType FailureType
	Message     string
	Timestamp   time.Time
	Details     map[string]string
}

// Adjustment is a recommended (and, once returned, already-applied)
// strategy change.
type Adjustment struct {
	Parameter string
	OldValue  interface{}
	NewValue  interface{}
	Reason    string
}

// Strategy is the mutable parameter set suggest_adjustments tunes.
type Strategy struct {
	SearchDepth           int
	RequireExactMatch     bool
	FallbackToAST         bool
	TimeoutSeconds        int
	RetryExternalServices bool
	MinConfidence         float64
}

func defaultStrategy() Strategy {
	return Strategy{
		SearchDepth:           1,
		RequireExactMatch:     false,
		FallbackToAST:         false,
		TimeoutSeconds:        10,
		RetryExternalServices: true,
		MinConfidence:         0.7,
	}
}

// Tracker accumulates failure records and derives strategy
// adjustments. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	failures []Record
	strategy Strategy
	now      func() time.Time
}

// New constructs a Tracker with the default strategy.
func New() *Tracker {
	return &Tracker{strategy: defaultStrategy(), now: time.Now}
}

// Record appends a failure.
func (t *Tracker) Record(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.Timestamp.IsZero() {
		r.Timestamp = t.now()
	}
	t.failures = append(t.failures, r)
}

// RecordFromError classifies err into a FailureType and records it.
func (t *Tracker) RecordFromError(iteration int, err error) Record {
	r := Record{
		Iteration:   iteration,
		FailureType: ClassifyError(err),
		Message:     err.Error(),
		Details:     map[string]string{"exception_type": fmt.Sprintf("%T", err)},
	}
	t.Record(r)
	return r
}

// ClassifyError maps an error to a FailureType the way
// FailureTracker._classify_exception does, using the internal/errs
// sentinel and typed-error taxonomy in place of Python's exception
// hierarchy.
func ClassifyError(err error) FailureType {
	var svcErr *errs.ExternalServiceError
	switch {
	case isErr(err, errs.ErrNotFound), isErr(err, errs.ErrValidationFailed), isErr(err, errs.ErrEmptyQuery):
		return FailureSourceNotFound
	case isErr(err, errs.ErrAborted):
		return FailureSandboxFailed
	case isErr(err, errs.ErrVerificationFailed):
		return FailureHallucination
	case asType(err, &svcErr):
		if svcErr.Timeout() {
			return FailureTimeout
		}
		return FailureExternalService
	case isErr(err, errs.ErrExternalService):
		return FailureExternalService
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return FailureTimeout
	default:
		return FailureUnknown
	}
}

func isErr(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}

func asType(err error, target **errs.ExternalServiceError) bool {
	for err != nil {
		if e, ok := err.(*errs.ExternalServiceError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// FailureCounts returns a count per FailureType observed so far.
func (t *Tracker) FailureCounts() map[FailureType]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[FailureType]int)
	for _, f := range t.failures {
		counts[f.FailureType]++
	}
	return counts
}

// DominantFailure returns the most common FailureType, or "" if no
// failures have been recorded. Ties break toward the FailureType whose
// name sorts first, for determinism.
func (t *Tracker) DominantFailure() FailureType {
	counts := t.FailureCounts()
	if len(counts) == 0 {
		return ""
	}
	types := make([]FailureType, 0, len(counts))
	for ft := range counts {
		types = append(types, ft)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})
	return types[0]
}

// SuggestAdjustments applies spec §4.10's five monotonic strategy
// deltas against the accumulated failure counts and returns the
// adjustments made this call. Already-applied adjustments (e.g.
// search_depth already at 5) produce no further Adjustment.
func (t *Tracker) SuggestAdjustments() []Adjustment {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[FailureType]int)
	for _, f := range t.failures {
		counts[f.FailureType]++
	}

	var adjustments []Adjustment

	if counts[FailureSourceNotFound] >= 2 {
		newDepth := min(5, t.strategy.SearchDepth+1)
		if newDepth != t.strategy.SearchDepth {
			adjustments = append(adjustments, Adjustment{
				Parameter: "search_depth",
				OldValue:  t.strategy.SearchDepth,
				NewValue:  newDepth,
				Reason:    fmt.Sprintf("%d source-not-found failures", counts[FailureSourceNotFound]),
			})
			t.strategy.SearchDepth = newDepth
		}
	}

	if counts[FailureSandboxFailed] >= 3 && !t.strategy.FallbackToAST {
		adjustments = append(adjustments, Adjustment{
			Parameter: "fallback_to_ast",
			OldValue:  false,
			NewValue:  true,
			Reason:    fmt.Sprintf("%d sandbox failures", counts[FailureSandboxFailed]),
		})
		t.strategy.FallbackToAST = true
	}

	if counts[FailureLowConfidence] >= 2 && !t.strategy.RequireExactMatch {
		adjustments = append(adjustments, Adjustment{
			Parameter: "require_exact_match",
			OldValue:  false,
			NewValue:  true,
			Reason:    fmt.Sprintf("%d low-confidence failures", counts[FailureLowConfidence]),
		})
		t.strategy.RequireExactMatch = true
	}

	if counts[FailureTimeout] >= 2 {
		newTimeout := min(60, t.strategy.TimeoutSeconds*2)
		if newTimeout != t.strategy.TimeoutSeconds {
			adjustments = append(adjustments, Adjustment{
				Parameter: "timeout_seconds",
				OldValue:  t.strategy.TimeoutSeconds,
				NewValue:  newTimeout,
				Reason:    fmt.Sprintf("%d timeout failures", counts[FailureTimeout]),
			})
			t.strategy.TimeoutSeconds = newTimeout
		}
	}

	if counts[FailureExternalService] >= 3 && t.strategy.RetryExternalServices {
		adjustments = append(adjustments, Adjustment{
			Parameter: "retry_external_services",
			OldValue:  true,
			NewValue:  false,
			Reason:    fmt.Sprintf("%d external service failures", counts[FailureExternalService]),
		})
		t.strategy.RetryExternalServices = false
	}

	return adjustments
}

// AdjustedStrategy applies any pending adjustments and returns the
// resulting strategy by value.
func (t *Tracker) AdjustedStrategy() Strategy {
	t.SuggestAdjustments()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.strategy
}

// Report renders a human-readable failure analysis, in the same shape
// as generate_report: a fixed-width banner, a failure-type breakdown
// sorted by count, the adjustments made, and the resulting strategy.
func (t *Tracker) Report() string {
	banner := strings.Repeat("=", 60)
	var b strings.Builder

	fmt.Fprintln(&b, banner)
	fmt.Fprintln(&b, "FAILURE ANALYSIS REPORT")
	fmt.Fprintln(&b, banner)
	fmt.Fprintln(&b)

	t.mu.Lock()
	total := len(t.failures)
	t.mu.Unlock()
	fmt.Fprintf(&b, "Total Failures: %d\n\n", total)

	fmt.Fprintln(&b, "Failure Type Breakdown:")
	counts := t.FailureCounts()
	types := make([]FailureType, 0, len(counts))
	for ft := range counts {
		types = append(types, ft)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})
	for _, ft := range types {
		fmt.Fprintf(&b, "  - %s: %d\n", ft, counts[ft])
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Strategy Adjustments Made:")
	adjustments := t.SuggestAdjustments()
	if len(adjustments) == 0 {
		fmt.Fprintln(&b, "  (none)")
	} else {
		for _, a := range adjustments {
			fmt.Fprintf(&b, "  - %s: %v -> %v\n", a.Parameter, a.OldValue, a.NewValue)
			fmt.Fprintf(&b, "    Reason: %s\n", a.Reason)
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Current Strategy:")
	s := t.AdjustedStrategy()
	fmt.Fprintf(&b, "  - search_depth: %d\n", s.SearchDepth)
	fmt.Fprintf(&b, "  - require_exact_match: %t\n", s.RequireExactMatch)
	fmt.Fprintf(&b, "  - fallback_to_ast: %t\n", s.FallbackToAST)
	fmt.Fprintf(&b, "  - timeout_seconds: %d\n", s.TimeoutSeconds)
	fmt.Fprintf(&b, "  - retry_external_services: %t\n", s.RetryExternalServices)
	fmt.Fprintf(&b, "  - min_confidence: %v\n", s.MinConfidence)

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, banner)

	return b.String()
}

// ApplyInitial overwrites the current strategy wholesale, for callers
// that seed a loop with a non-default starting strategy before any
// failures have been recorded.
func (t *Tracker) ApplyInitial(s Strategy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.strategy = s
}

// Reset clears all recorded failures and restores the default strategy.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = nil
	t.strategy = defaultStrategy()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
