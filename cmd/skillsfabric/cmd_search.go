// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillsfabric/core/internal/search"
	"github.com/skillsfabric/core/pkg/ux"
)

// runSearch implements the `search` subcommand: a direct call to
// whichever web search collaborator the query favors, bypassing the
// research loop's strategy adjustment entirely.
func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	a, err := loadApp("search")
	if err != nil {
		exitWith(fail(err))
		return nil
	}
	defer a.metrics.Shutdown(cmd.Context())

	var freshness search.Freshness
	switch searchFreshness {
	case "":
	case "day":
		freshness = search.FreshnessDay
	case "week":
		freshness = search.FreshnessWeek
	case "month":
		freshness = search.FreshnessMonth
	case "year":
		freshness = search.FreshnessYear
	default:
		exitWith(fail(fmt.Errorf("invalid --freshness %q: must be day, week, month, or year", searchFreshness)))
		return nil
	}

	if searchTechnical || searchAcademic {
		if a.cfg.Search.PerplexityAPIKey == "" {
			exitWith(fail(fmt.Errorf("--technical/--academic search requires PERPLEXITY_API_KEY")))
			return nil
		}
		client := search.NewPerplexityClient(a.cfg.Search.PerplexityAPIKey, "", a.cfg.Retry, a.cfg.Search.BraveTimeout)
		req := search.PerplexityRequest{
			Query:                  query,
			Model:                  a.cfg.Search.PerplexityModel,
			ReturnCitations:        true,
			ReturnRelatedQuestions: true,
			SearchContextSize:      search.ContextMedium,
		}
		if searchAcademic {
			req.SearchContextSize = search.ContextHigh
		}
		resp, err := client.Search(cmd.Context(), req)
		if err != nil {
			exitWith(fail(err))
			return nil
		}
		if ux.EmitJSON(resp) {
			return nil
		}
		ux.Title(fmt.Sprintf("search: %q (perplexity)", query))
		ux.Info(resp.Content)
		for _, c := range resp.Citations {
			ux.Success(fmt.Sprintf("%s — %s", c.Title, c.URL))
		}
		return nil
	}

	if a.cfg.Search.BraveAPIKey == "" {
		exitWith(fail(fmt.Errorf("search requires BRAVE_API_KEY (or --technical/--academic with PERPLEXITY_API_KEY)")))
		return nil
	}
	client := search.NewBraveClient(a.cfg.Search.BraveAPIKey, a.cfg.Retry, a.cfg.Search.BraveTimeout)
	results, err := client.Search(cmd.Context(), search.BraveRequest{
		Query:      query,
		Count:      searchCount,
		Freshness:  freshness,
		SafeSearch: "moderate",
	})
	if err != nil {
		exitWith(fail(err))
		return nil
	}
	if ux.EmitJSON(results) {
		return nil
	}
	ux.Title(fmt.Sprintf("search: %q (brave)", query))
	if len(results) == 0 {
		ux.Warning("no results")
	}
	for _, r := range results {
		ux.Success(fmt.Sprintf("%s — %s", r.Title, r.URL))
		ux.Info(r.Description)
	}
	return nil
}
