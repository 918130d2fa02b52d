// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package failtrack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfabric/core/internal/errs"
)

func recordN(t *Tracker, ft FailureType, n int) {
	for i := 0; i < n; i++ {
		t.Record(Record{Iteration: i, FailureType: ft, Message: string(ft)})
	}
}

func TestSuggestAdjustments_SourceNotFoundIncreasesSearchDepthCappedAtFive(t *testing.T) {
	tr := New()
	recordN(tr, FailureSourceNotFound, 2)

	adj := tr.SuggestAdjustments()
	require.Len(t, adj, 1)
	assert.Equal(t, "search_depth", adj[0].Parameter)
	assert.Equal(t, 2, adj[0].NewValue)

	for i := 0; i < 10; i++ {
		recordN(tr, FailureSourceNotFound, 1)
		tr.SuggestAdjustments()
	}
	strategy := tr.AdjustedStrategy()
	assert.Equal(t, 5, strategy.SearchDepth)
}

func TestSuggestAdjustments_SandboxFailedSetsFallbackToAST(t *testing.T) {
	tr := New()
	recordN(tr, FailureSandboxFailed, 3)

	adj := tr.SuggestAdjustments()
	require.Len(t, adj, 1)
	assert.Equal(t, "fallback_to_ast", adj[0].Parameter)
	assert.Equal(t, true, adj[0].NewValue)
	assert.True(t, tr.AdjustedStrategy().FallbackToAST)
}

func TestSuggestAdjustments_LowConfidenceRequiresExactMatch(t *testing.T) {
	tr := New()
	recordN(tr, FailureLowConfidence, 2)

	adj := tr.SuggestAdjustments()
	require.Len(t, adj, 1)
	assert.Equal(t, "require_exact_match", adj[0].Parameter)
	assert.True(t, tr.AdjustedStrategy().RequireExactMatch)
}

func TestSuggestAdjustments_TimeoutDoublesSecondsCappedAtSixty(t *testing.T) {
	tr := New()
	recordN(tr, FailureTimeout, 2)

	adj := tr.SuggestAdjustments()
	require.Len(t, adj, 1)
	assert.Equal(t, "timeout_seconds", adj[0].Parameter)
	assert.Equal(t, 20, adj[0].NewValue)

	for i := 0; i < 5; i++ {
		recordN(tr, FailureTimeout, 1)
		tr.SuggestAdjustments()
	}
	assert.Equal(t, 60, tr.AdjustedStrategy().TimeoutSeconds)
}

func TestSuggestAdjustments_ExternalServiceDisablesRetry(t *testing.T) {
	tr := New()
	recordN(tr, FailureExternalService, 3)

	adj := tr.SuggestAdjustments()
	require.Len(t, adj, 1)
	assert.Equal(t, "retry_external_services", adj[0].Parameter)
	assert.Equal(t, false, adj[0].NewValue)
	assert.False(t, tr.AdjustedStrategy().RetryExternalServices)
}

func TestSuggestAdjustments_RepeatedCallsStepOnlySearchDepth(t *testing.T) {
	tr := New()
	recordN(tr, FailureSourceNotFound, 2)
	recordN(tr, FailureSandboxFailed, 3)

	first := tr.SuggestAdjustments()
	require.Len(t, first, 2)

	second := tr.SuggestAdjustments()
	require.Len(t, second, 1)
	assert.Equal(t, "search_depth", second[0].Parameter)
}

func TestDominantFailure_BreaksTiesByName(t *testing.T) {
	tr := New()
	recordN(tr, FailureTimeout, 1)
	recordN(tr, FailureHallucination, 1)

	assert.Equal(t, FailureHallucination, tr.DominantFailure())
}

func TestDominantFailure_EmptyTrackerReturnsEmptyString(t *testing.T) {
	tr := New()
	assert.Equal(t, FailureType(""), tr.DominantFailure())
}

func TestClassifyError_MapsSentinelsToExpectedTypes(t *testing.T) {
	assert.Equal(t, FailureSourceNotFound, ClassifyError(errs.ErrNotFound))
	assert.Equal(t, FailureSandboxFailed, ClassifyError(errs.ErrAborted))
	assert.Equal(t, FailureHallucination, ClassifyError(errs.ErrVerificationFailed))
	assert.Equal(t, FailureUnknown, ClassifyError(errors.New("something else entirely")))
}

func TestClassifyError_ExternalServiceErrorDistinguishesTimeout(t *testing.T) {
	svc := &errs.ExternalServiceError{Provider: "perplexity", StatusCode: 503, Err: errors.New("bad gateway")}
	assert.Equal(t, FailureExternalService, ClassifyError(svc))
}

func TestReset_ClearsFailuresAndStrategy(t *testing.T) {
	tr := New()
	recordN(tr, FailureSourceNotFound, 2)
	tr.SuggestAdjustments()
	require.Equal(t, 3, tr.AdjustedStrategy().SearchDepth)

	tr.Reset()
	assert.Empty(t, tr.FailureCounts())
	assert.Equal(t, 1, tr.AdjustedStrategy().SearchDepth)
}

func TestReport_ContainsBreakdownAndStrategy(t *testing.T) {
	tr := New()
	recordN(tr, FailureSourceNotFound, 2)

	report := tr.Report()
	assert.Contains(t, report, "FAILURE ANALYSIS REPORT")
	assert.Contains(t, report, "source_not_found: 2")
	assert.Contains(t, report, "search_depth: 3")
}
