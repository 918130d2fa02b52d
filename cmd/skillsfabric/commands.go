// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/skillsfabric/core/pkg/ux"
)

// --- Global flags, shared by every subcommand ---
var (
	quiet      bool
	verbose    bool
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "skillsfabric",
		Short: "Zero-hallucination code-skill generation pipeline",
		Long: `skillsfabric mines a repository's structure, links it to a set of
named concepts, drafts a skill document per concept, and audits every
claim in that document against the repository itself before it is
allowed to land. Nothing it writes down is trusted until a source file,
an AST, or an LSP server confirms it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ux.SetMode(outputMode())
			return nil
		},
	}

	// --- generate ---
	generateCmd = &cobra.Command{
		Use:   "generate <library>",
		Short: "Generate audited skill documents for a library's concepts",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	genDepth        int
	genSavePath     string
	genRepoPath     string
	genCodewikiPath string
	genFactory      bool

	// --- verify ---
	verifyCmd = &cobra.Command{
		Use:   "verify <query>",
		Short: "Retrieve and multi-source-validate code elements for a query",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	verCodewikiPath string
	verRepoPath     string
	verMaxResults   int
	verStrict       bool
	verNoMultiSrc   bool
	verUseLSP       bool
	verShowMetrics  bool

	// --- analyze ---
	analyzeCmd = &cobra.Command{
		Use:   "analyze <path>",
		Short: "Mine symbols and snippets out of source files",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	anaDirectory bool
	anaAnalyzer  string
	anaKind      string
	anaNoLSP     bool
	anaSaveTree  string

	// --- research ---
	researchCmd = &cobra.Command{
		Use:   "research <query>",
		Short: "Run a bounded, strategy-adjusting research loop over search collaborators",
		Args:  cobra.ExactArgs(1),
		RunE:  runResearch,
	}
	resIterative bool
	resDepth     int

	// --- search ---
	searchCmd = &cobra.Command{
		Use:   "search <query>",
		Short: "Query the configured web search collaborators directly",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
	searchCount     int
	searchTechnical bool
	searchAcademic  bool
	searchFreshness string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "emit machine-readable JSON instead of styled output")

	generateCmd.Flags().IntVar(&genDepth, "depth", 2, "maximum generate-loop iterations (values <= 0 use the loop default of 10)")
	generateCmd.Flags().StringVar(&genSavePath, "save", "", "override the session/skill cache directory (default: config cache dir)")
	generateCmd.Flags().StringVar(&genRepoPath, "repo-path", ".", "path to the repository to mine concepts from")
	generateCmd.Flags().StringVar(&genCodewikiPath, "codewiki-path", "", "path to a prior codewiki catalog to seed concept linking from")
	generateCmd.Flags().BoolVar(&genFactory, "factory", false, "draft skill bodies with the configured LLM instead of the template writer")

	verifyCmd.Flags().StringVar(&verCodewikiPath, "codewiki", "", "path to a codewiki markdown catalog to resolve the query against")
	verifyCmd.Flags().StringVar(&verRepoPath, "repo", ".", "repository root used to confirm retrieved elements")
	verifyCmd.Flags().IntVar(&verMaxResults, "max-results", 5, "maximum validated elements to return")
	verifyCmd.Flags().BoolVar(&verStrict, "strict", false, "exit 1 when the cumulative hallucination rate reaches the configured threshold")
	verifyCmd.Flags().BoolVar(&verNoMultiSrc, "no-multi-source", false, "validate with the file-content source only, skipping AST/tree-sitter/LSP")
	verifyCmd.Flags().BoolVar(&verUseLSP, "use-lsp", false, "include the LSP validation slot (no concrete client bundled; it confirms only when a DefinitionClient is wired in)")
	verifyCmd.Flags().BoolVar(&verShowMetrics, "show-metrics", false, "print the cumulative Hall_m summary after the result")

	analyzeCmd.Flags().BoolVar(&anaDirectory, "directory", false, "treat <path> as a directory to mine recursively")
	analyzeCmd.Flags().StringVar(&anaAnalyzer, "analyzer", "auto", "parsing backend: auto (go/ast for .go, tree-sitter otherwise), ast, or tree-sitter")
	analyzeCmd.Flags().StringVar(&anaKind, "kind", "", "restrict output to one symbol kind: class, function, or method")
	analyzeCmd.Flags().BoolVar(&anaNoLSP, "no-lsp", false, "exclude the LSP validation slot when cross-checking mined symbols")
	analyzeCmd.Flags().StringVar(&anaSaveTree, "save-tree", "", "write a progressive-understanding tree of the mined symbols to this JSON file")

	researchCmd.Flags().BoolVar(&resIterative, "iterative", false, "keep refining the query across rounds instead of a single pass")
	researchCmd.Flags().IntVar(&resDepth, "depth", 3, "maximum research loop iterations")

	searchCmd.Flags().IntVarP(&searchCount, "count", "n", 5, "number of results to request")
	searchCmd.Flags().BoolVar(&searchTechnical, "technical", false, "send the query to Perplexity (medium search context) instead of Brave")
	searchCmd.Flags().BoolVar(&searchAcademic, "academic", false, "send the query to Perplexity (high search context) instead of Brave")
	searchCmd.Flags().StringVar(&searchFreshness, "freshness", "", "restrict results by recency: day, week, month, or year")

	rootCmd.AddCommand(generateCmd, verifyCmd, analyzeCmd, researchCmd, searchCmd)
}
