// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory implements the tiered (MIRIX-style) context compiler
// named in spec §3's Agent Memory expansion, grounded on
// code_buddy/context/types.go's budget-allocation approach: entries are
// bucketed into hot/warm/cold tiers by recency and packed into a char
// budget tier-by-tier, cheapest (most recent) first, the way the
// teacher's Context Assembler packs code/types/docs percentages rather
// than overflowing a hard limit.
//
// A semantic tier backed by github.com/weaviate/weaviate-go-client/v5
// is wired in when a Retriever is configured; with none configured the
// compiler runs in pure recency mode and ignores the query (ADK-stub
// mode, spec §3's "MIRIX / ADK stubs").
package memory

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Tier is the recency bucket an entry falls into at compile time.
type Tier string

const (
	TierHot      Tier = "hot"
	TierWarm     Tier = "warm"
	TierCold     Tier = "cold"
	TierSemantic Tier = "semantic"
)

// Default recency thresholds separating hot/warm/cold, grounded on the
// teacher's DefaultTokenBudget-style named constants.
const (
	DefaultHotWindow  = 10 * time.Minute
	DefaultWarmWindow = 2 * time.Hour

	// charsPerToken mirrors the teacher's CharsPerToken approximation
	// so a char-counted Entry.Content can stand in for a token budget.
	charsPerToken = 3.5
)

// Entry is one unit of candidate context before compilation.
type Entry struct {
	ID        string
	Content   string
	Recency   time.Time
	Relevance float64 // 0..1, used only by the semantic tier
	Pinned    bool
}

// ContextEntry is one compiled context entry, tagged with the tier it
// was drawn from so a caller can explain why it was included.
type ContextEntry struct {
	Entry
	Tier Tier
}

// Retriever supplies a semantic (embedding-similarity) tier. Satisfied
// by a thin wrapper over weaviate-go-client when configured; callers
// with no vector store simply leave Compiler.Semantic nil.
type Retriever interface {
	SimilarTo(ctx context.Context, query string, limit int) ([]Entry, error)
}

// Compiler assembles a budget-bounded context window from a pool of
// candidate entries, tiered by recency, with an optional semantic
// tier for relevance-based recall outside the recency window.
type Compiler struct {
	Now        func() time.Time
	HotWindow  time.Duration
	WarmWindow time.Duration
	Semantic   Retriever
}

// New returns a Compiler with the default hot/warm windows. now lets
// callers inject a fixed clock (e.g. in tests); pass nil for
// time.Now.
func New(now func() time.Time, semantic Retriever) *Compiler {
	if now == nil {
		now = time.Now
	}
	return &Compiler{Now: now, HotWindow: DefaultHotWindow, WarmWindow: DefaultWarmWindow, Semantic: semantic}
}

// Compile packs entries into a context window of at most budget
// characters, in the order: pinned entries first (regardless of
// tier), then hot, then warm, then cold, then (if a query and
// Semantic retriever are supplied) semantically similar entries
// outside the recency window. Within a tier, entries are ordered by
// most-recent first. Compile never exceeds budget; an entry that
// would overflow it is dropped rather than truncated mid-content, so
// every returned entry is whole.
func (c *Compiler) Compile(ctx context.Context, entries []Entry, query string, budget int) ([]ContextEntry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	now := c.Now()

	var pinned, hot, warm, cold []Entry
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.ID] = true
		switch {
		case e.Pinned:
			pinned = append(pinned, e)
		case now.Sub(e.Recency) <= c.hotWindow():
			hot = append(hot, e)
		case now.Sub(e.Recency) <= c.warmWindow():
			warm = append(warm, e)
		default:
			cold = append(cold, e)
		}
	}
	byRecencyDesc := func(xs []Entry) {
		sort.Slice(xs, func(i, j int) bool { return xs[i].Recency.After(xs[j].Recency) })
	}
	byRecencyDesc(pinned)
	byRecencyDesc(hot)
	byRecencyDesc(warm)
	byRecencyDesc(cold)

	var compiled []ContextEntry
	remaining := budget

	appendTier := func(tier Tier, xs []Entry) {
		for _, e := range xs {
			cost := entryCost(e)
			if cost > remaining {
				continue
			}
			compiled = append(compiled, ContextEntry{Entry: e, Tier: tier})
			remaining -= cost
		}
	}
	appendTier(TierHot, pinned)
	appendTier(TierHot, hot)
	appendTier(TierWarm, warm)
	appendTier(TierCold, cold)

	if query != "" && c.Semantic != nil && remaining > 0 {
		similar, err := c.Semantic.SimilarTo(ctx, query, 10)
		if err != nil {
			return nil, err
		}
		sort.Slice(similar, func(i, j int) bool { return similar[i].Relevance > similar[j].Relevance })
		for _, e := range similar {
			if seen[e.ID] {
				continue
			}
			cost := entryCost(e)
			if cost > remaining {
				continue
			}
			compiled = append(compiled, ContextEntry{Entry: e, Tier: TierSemantic})
			remaining -= cost
			seen[e.ID] = true
		}
	}
	return compiled, nil
}

func (c *Compiler) hotWindow() time.Duration {
	if c.HotWindow > 0 {
		return c.HotWindow
	}
	return DefaultHotWindow
}

func (c *Compiler) warmWindow() time.Duration {
	if c.WarmWindow > 0 {
		return c.WarmWindow
	}
	return DefaultWarmWindow
}

func entryCost(e Entry) int {
	return len(strings.TrimSpace(e.Content))
}

// EstimatedTokens approximates the token count of a compiled window
// using the teacher's chars-per-token ratio, for callers that want a
// token-budget comparison rather than a raw char count.
func EstimatedTokens(entries []ContextEntry) int {
	chars := 0
	for _, e := range entries {
		chars += len(e.Content)
	}
	return int(float64(chars) / charsPerToken)
}
