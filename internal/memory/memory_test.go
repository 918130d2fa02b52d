// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCompile_BucketsByRecencyWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	compiler := New(fixedClock(now), nil)

	entries := []Entry{
		{ID: "hot", Content: "recent work", Recency: now.Add(-1 * time.Minute)},
		{ID: "warm", Content: "earlier today", Recency: now.Add(-1 * time.Hour)},
		{ID: "cold", Content: "long ago", Recency: now.Add(-48 * time.Hour)},
	}

	compiled, err := compiler.Compile(context.Background(), entries, "", 1000)
	require.NoError(t, err)
	require.Len(t, compiled, 3)

	byID := make(map[string]Tier, len(compiled))
	for _, e := range compiled {
		byID[e.ID] = e.Tier
	}
	assert.Equal(t, TierHot, byID["hot"])
	assert.Equal(t, TierWarm, byID["warm"])
	assert.Equal(t, TierCold, byID["cold"])
}

func TestCompile_PinnedEntryAlwaysIncludedFirst(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	compiler := New(fixedClock(now), nil)

	entries := []Entry{
		{ID: "stale-pinned", Content: "pin me", Recency: now.Add(-72 * time.Hour), Pinned: true},
		{ID: "hot", Content: "recent", Recency: now.Add(-1 * time.Minute)},
	}

	compiled, err := compiler.Compile(context.Background(), entries, "", 1000)
	require.NoError(t, err)
	require.Len(t, compiled, 2)
	assert.Equal(t, "stale-pinned", compiled[0].ID)
	assert.Equal(t, TierHot, compiled[0].Tier)
}

func TestCompile_NeverExceedsBudget(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	compiler := New(fixedClock(now), nil)

	entries := []Entry{
		{ID: "a", Content: "0123456789", Recency: now.Add(-1 * time.Minute)},
		{ID: "b", Content: "0123456789", Recency: now.Add(-2 * time.Minute)},
		{ID: "c", Content: "0123456789", Recency: now.Add(-3 * time.Minute)},
	}

	compiled, err := compiler.Compile(context.Background(), entries, "", 15)
	require.NoError(t, err)

	total := 0
	for _, e := range compiled {
		total += len(e.Content)
	}
	assert.LessOrEqual(t, total, 15)
	assert.Len(t, compiled, 1, "only the most recent entry fits within budget")
}

type stubRetriever struct {
	entries []Entry
}

func (s stubRetriever) SimilarTo(ctx context.Context, query string, limit int) ([]Entry, error) {
	return s.entries, nil
}

func TestCompile_SemanticTierFillsRemainingBudgetOutsideRecencyWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	semantic := stubRetriever{entries: []Entry{
		{ID: "semantic-hit", Content: "relevant old answer", Recency: now.Add(-1000 * time.Hour), Relevance: 0.9},
	}}
	compiler := New(fixedClock(now), semantic)

	compiled, err := compiler.Compile(context.Background(), nil, "how does retrieval work", 1000)
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, TierSemantic, compiled[0].Tier)
}

func TestCompile_SemanticTierSkippedWithoutQuery(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	semantic := stubRetriever{entries: []Entry{{ID: "semantic-hit", Content: "x", Recency: now}}}
	compiler := New(fixedClock(now), semantic)

	compiled, err := compiler.Compile(context.Background(), nil, "", 1000)
	require.NoError(t, err)
	assert.Empty(t, compiled)
}

func TestEstimatedTokens_AppliesCharsPerTokenRatio(t *testing.T) {
	entries := []ContextEntry{{Entry: Entry{Content: "0123456789"}}}
	assert.Equal(t, 2, EstimatedTokens(entries))
}
