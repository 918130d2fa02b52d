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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillsfabric/core/internal/errs"
	"github.com/skillsfabric/core/internal/failtrack"
	"github.com/skillsfabric/core/internal/memory"
	"github.com/skillsfabric/core/internal/promise"
	"github.com/skillsfabric/core/internal/ralph"
	"github.com/skillsfabric/core/internal/search"
	"github.com/skillsfabric/core/pkg/ux"
)

// researchStep is one round's accumulated findings, the Ralph loop's
// type parameter for the `research` subcommand.
type researchStep struct {
	Query     string
	Answer    string
	Citations []search.Citation
}

// researchPromises requires at least one citation before a round
// counts as satisfied — an uncited answer is exactly the kind of
// ungrounded claim the rest of the pipeline refuses to trust.
func researchPromises() promise.Set[researchStep] {
	return promise.New(true, promise.Promise[researchStep]{
		Name:        "has_citation",
		Description: "the round produced at least one citation",
		Required:    true,
		TrustLevel:  promise.TrustVerified,
		Check: func(r researchStep) bool {
			return len(r.Citations) > 0
		},
		ErrorMessage: "no citations returned for this query",
	})
}

// runResearch implements the `research` subcommand: a bounded,
// strategy-adjusting loop (spec §4.11) over the Perplexity
// collaborator, refining the query each failed round by widening its
// search context size with the escalating strategy.
func runResearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	a, err := loadApp("research")
	if err != nil {
		exitWith(fail(err))
		return nil
	}
	defer a.metrics.Shutdown(cmd.Context())
	if a.cfg.Search.PerplexityAPIKey == "" {
		exitWith(fail(fmt.Errorf("research requires PERPLEXITY_API_KEY")))
		return nil
	}
	client := search.NewPerplexityClient(a.cfg.Search.PerplexityAPIKey, "", a.cfg.Retry, a.cfg.Search.BraveTimeout)

	if !resIterative {
		resp, err := client.Search(cmd.Context(), search.PerplexityRequest{
			Query:             query,
			Model:             a.cfg.Search.PerplexityModel,
			ReturnCitations:   true,
			SearchContextSize: search.ContextMedium,
		})
		if err != nil {
			exitWith(fail(err))
			return nil
		}
		if ux.EmitJSON(resp) {
			return nil
		}
		ux.Title(fmt.Sprintf("research: %q", query))
		ux.Info(resp.Content)
		for _, c := range resp.Citations {
			ux.Success(fmt.Sprintf("%s — %s", c.Title, c.URL))
		}
		return nil
	}

	// Earlier rounds feed later ones through the tiered context
	// compiler: each answer becomes a memory entry, and the next
	// round's query carries whatever fits the budget, most recent
	// first.
	compiler := memory.New(nil, nil)
	var entries []memory.Entry
	const contextBudget = 2000

	task := func(ctx context.Context, strategy failtrack.Strategy) (researchStep, error) {
		contextSize := search.ContextMedium
		if strategy.SearchDepth >= 3 {
			contextSize = search.ContextHigh
		}

		roundQuery := query
		if compiled, err := compiler.Compile(ctx, entries, query, contextBudget); err == nil && len(compiled) > 0 {
			var prior []string
			for _, e := range compiled {
				prior = append(prior, e.Content)
			}
			roundQuery = query + "\n\nFindings so far:\n" + strings.Join(prior, "\n")
		}

		resp, err := client.Search(ctx, search.PerplexityRequest{
			Query:                  roundQuery,
			Model:                  a.cfg.Search.PerplexityModel,
			ReturnCitations:        true,
			ReturnRelatedQuestions: true,
			SearchContextSize:      contextSize,
		})
		if err != nil {
			return researchStep{}, err
		}
		entries = append(entries, memory.Entry{
			ID:      fmt.Sprintf("round-%d", len(entries)+1),
			Content: resp.Content,
			Recency: time.Now(),
		})
		return researchStep{Query: roundQuery, Answer: resp.Content, Citations: resp.Citations}, nil
	}

	loop := ralph.New(resDepth, researchPromises())
	result := loop.Run(cmd.Context(), task, func(it ralph.Iteration[researchStep]) {
		if !it.Success {
			ux.Info(fmt.Sprintf("round %d did not satisfy completion promises, retrying", it.Number))
		}
	}, func(s failtrack.Strategy) {
		ux.Info(fmt.Sprintf("strategy adjusted: search_depth=%d", s.SearchDepth))
	})

	if ux.EmitJSON(result) {
		if !result.Success() {
			exitWith(exitError)
		}
		return nil
	}

	ux.Title(fmt.Sprintf("research: %q", query))
	ux.Info(result.Value.Answer)
	for _, c := range result.Value.Citations {
		ux.Success(fmt.Sprintf("%s — %s", c.Title, c.URL))
	}
	ux.Info(fmt.Sprintf("status=%s iterations=%d", result.Status, result.TotalIterations))

	if !result.Success() {
		if err := ralph.AsError(result); err != nil && err != errs.ErrAborted {
			ux.Warning(err.Error())
		}
		exitWith(exitError)
	}
	return nil
}
