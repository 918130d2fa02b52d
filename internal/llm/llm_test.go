// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls     []GenerationParams
	responses []RawResponse
	errs      []error
}

func (s *stubProvider) Complete(_ context.Context, _ []Message, params GenerationParams) (RawResponse, error) {
	i := len(s.calls)
	s.calls = append(s.calls, params)
	var resp RawResponse
	var err error
	if i < len(s.responses) {
		resp = s.responses[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return resp, err
}

func TestGenerateWithFallback_SuccessOnFirstAttempt(t *testing.T) {
	p := &stubProvider{responses: []RawResponse{
		{Content: "hello", Thinking: "reasoning", Usage: Usage{ThinkingTokens: 10, ThinkingBudget: 1000}},
	}}
	c := New(p, nil)

	resp, err := c.GenerateWithFallback(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{EnableThinking: true, ThinkingBudget: 1000})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Content)
	assert.False(t, resp.UsedFallback)
	assert.Equal(t, QualityExcellent, resp.ReasoningQuality)
	assert.Len(t, p.calls, 1)
}

func TestGenerateWithFallback_EmptyThinkingFallsBackToDisabled(t *testing.T) {
	p := &stubProvider{responses: []RawResponse{
		{Content: "partial"},
		{Content: "fallback content"},
	}}
	c := New(p, nil)

	resp, err := c.GenerateWithFallback(context.Background(), nil, GenerationParams{EnableThinking: true, ThinkingBudget: 1000})
	require.NoError(t, err)

	assert.True(t, resp.UsedFallback)
	assert.Equal(t, FailureEmptyThinking, resp.FailureType)
	assert.Equal(t, QualityFailed, resp.ReasoningQuality)
	assert.Equal(t, "fallback content", resp.Content)
	require.Len(t, p.calls, 2)
	assert.False(t, p.calls[1].EnableThinking)
}

func TestGenerateWithFallback_BudgetExhaustedDoublesOnce(t *testing.T) {
	p := &stubProvider{responses: []RawResponse{
		{Content: "x", Thinking: "reasoning", Usage: Usage{ThinkingTokens: 990, ThinkingBudget: 1000}},
		{Content: "y", Thinking: "more reasoning", Usage: Usage{ThinkingTokens: 500, ThinkingBudget: 2000}},
	}}
	c := New(p, nil)

	resp, err := c.GenerateWithFallback(context.Background(), nil, GenerationParams{EnableThinking: true, ThinkingBudget: 1000, AutoIncreaseBudget: true})
	require.NoError(t, err)

	require.Len(t, p.calls, 2)
	assert.Equal(t, 2000, p.calls[1].ThinkingBudget)
	assert.False(t, resp.UsedFallback)
	assert.Equal(t, "y", resp.Content)
}

func TestGenerateWithFallback_PromotesThinkingWhenContentEmpty(t *testing.T) {
	p := &stubProvider{responses: []RawResponse{
		{Content: "", Thinking: "the actual answer", Usage: Usage{ThinkingTokens: 10, ThinkingBudget: 1000}},
	}}
	c := New(p, nil)

	resp, err := c.GenerateWithFallback(context.Background(), nil, GenerationParams{EnableThinking: true, ThinkingBudget: 1000})
	require.NoError(t, err)
	assert.Equal(t, "the actual answer", resp.Content)
}

func TestGenerateWithFallback_PropagatesFallbackCallError(t *testing.T) {
	p := &stubProvider{
		responses: []RawResponse{{}, {}},
		errs:      []error{errors.New("timeout"), errors.New("still broken")},
	}
	c := New(p, nil)

	_, err := c.GenerateWithFallback(context.Background(), nil, GenerationParams{EnableThinking: true, ThinkingBudget: 1000})
	assert.Error(t, err)
}

func TestUsage_ExhaustedAndBudgetPercent(t *testing.T) {
	u := Usage{ThinkingTokens: 950, ThinkingBudget: 1000}
	assert.True(t, u.Exhausted())
	assert.InDelta(t, 95.0, u.BudgetUsedPercent(), 1e-9)

	zero := Usage{}
	assert.False(t, zero.Exhausted())
	assert.Equal(t, 0.0, zero.BudgetUsedPercent())
}

func TestCostRates_Cost(t *testing.T) {
	rates := CostRates{InputPerToken: 0.001, OutputPerToken: 0.002}
	u := Usage{PromptTokens: 100, CompletionTokens: 50, ThinkingTokens: 20}
	assert.InDelta(t, 0.1+0.14, rates.Cost(u), 1e-9)
}

func TestGenerateWithFallback_RoutesFallbackToSecondaryProvider(t *testing.T) {
	primary := &stubProvider{responses: []RawResponse{
		{Content: "partial"}, // thinking enabled but empty -> EMPTY_THINKING
	}}
	secondary := &stubProvider{responses: []RawResponse{
		{Content: "from the fallback backend"},
	}}
	c := New(primary, nil)
	c.SetFallbackProvider(secondary)

	resp, err := c.GenerateWithFallback(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{EnableThinking: true, ThinkingBudget: 1000})
	require.NoError(t, err)

	assert.True(t, resp.UsedFallback)
	assert.Equal(t, FailureEmptyThinking, resp.FailureType)
	assert.Equal(t, "from the fallback backend", resp.Content)
	assert.Len(t, primary.calls, 1)
	require.Len(t, secondary.calls, 1)
	assert.False(t, secondary.calls[0].EnableThinking)
}
