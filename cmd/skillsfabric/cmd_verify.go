// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillsfabric/core/internal/catalog"
	"github.com/skillsfabric/core/internal/ddr"
	"github.com/skillsfabric/core/internal/validate"
	"github.com/skillsfabric/core/internal/validate/astsrc"
	"github.com/skillsfabric/core/internal/validate/lsp"
	"github.com/skillsfabric/core/internal/validate/tsitter"
	"github.com/skillsfabric/core/pkg/ux"
)

// runVerify implements the `verify` subcommand: resolve <query> against
// an optional codewiki catalog, confirm every candidate against the
// repository with the Multi-Source Validator, and report only what
// survives (spec §4.4).
func runVerify(cmd *cobra.Command, args []string) error {
	query := args[0]

	a, err := loadApp("verify")
	if err != nil {
		exitWith(fail(err))
		return nil
	}
	defer a.metrics.Shutdown(cmd.Context())

	index := catalog.Index{}
	if verCodewikiPath != "" {
		content, err := os.ReadFile(verCodewikiPath)
		if err != nil {
			exitWith(fail(fmt.Errorf("reading codewiki catalog: %w", err)))
			return nil
		}
		index = catalog.Parse(string(content), catalog.GitHubBlobLinkParser)
	}

	var sources []validate.Source
	if verNoMultiSrc {
		sources = []validate.Source{validate.NewFileContentSource()}
	} else {
		sources = []validate.Source{astsrc.New(), tsitter.New(), validate.NewFileContentSource()}
	}
	if verUseLSP {
		sources = append(sources, lsp.New(nil))
	}
	validator := validate.New(sources, verUseLSP)

	retriever := ddr.New(index, verRepoPath, validator, a.hallM)
	retriever.SetRecorder(a.metrics)

	result, err := retriever.Retrieve(cmd.Context(), query, verMaxResults, verStrict)
	if err != nil {
		exitWith(fail(err))
		return nil
	}

	if ux.EmitJSON(result) {
		if verStrict && !result.Success() {
			exitWith(exitError)
		}
		return nil
	}

	ux.Title(fmt.Sprintf("verify: %q", query))
	if len(result.Elements) == 0 {
		ux.Warning("no validated elements found")
	}
	for _, el := range result.Elements {
		ux.Success(fmt.Sprintf("%s (%s) — %s", el.SourceRef.SymbolName, el.SourceRef.SymbolType, el.SourceRef.Citation()))
	}
	ux.Info(fmt.Sprintf("validated=%d rejected=%d hallucination_rate=%.3f", result.ValidatedCount, result.RejectedCount, result.HallucinationRate))

	if verShowMetrics {
		summary := a.hallM.Summary()
		ux.Box("Hall_m summary", fmt.Sprintf("validated=%d rejected=%d rate=%.4f threshold=%.4f", summary.ValidatedTotal, summary.RejectedTotal, summary.CumulativeRate, summary.Threshold))
	}

	if verStrict && !result.Success() {
		exitWith(exitError)
	}
	return nil
}
