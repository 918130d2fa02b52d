// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCitations_MarkdownFormat(t *testing.T) {
	sys := New(FormatMarkdown, "")
	refs := []Ref{{Symbol: "StateGraph", File: "langgraph/graph/state.py", Line: 50}}

	result := sys.AddCitations("Use `StateGraph` to build flows.", refs)

	assert.Equal(t, "Use [`StateGraph`](langgraph/graph/state.py#L50) to build flows.", result.CitedContent)
	assert.Equal(t, 1, result.CitationsAdded)
	assert.Empty(t, result.UncitedSymbols)
	assert.True(t, result.AllGrounded())
}

func TestAddCitations_InlineFormat(t *testing.T) {
	sys := New(FormatInline, "")
	refs := []Ref{{Symbol: "Retrieve", File: "internal/ddr/ddr.go", Line: 100}}

	result := sys.AddCitations("Call `Retrieve` with a query.", refs)

	assert.Equal(t, "Call `Retrieve` (internal/ddr/ddr.go:100) with a query.", result.CitedContent)
}

func TestAddCitations_GitHubFormatWithEndLine(t *testing.T) {
	sys := New(FormatGitHub, "https://github.com/example/repo/blob/main")
	refs := []Ref{{Symbol: "Retriever", File: "internal/ddr/ddr.go", Line: 90, EndLine: 95}}

	result := sys.AddCitations("The `Retriever` type.", refs)

	assert.Equal(t, "The [`Retriever`](https://github.com/example/repo/blob/main/internal/ddr/ddr.go#L90-L95) type.", result.CitedContent)
}

func TestAddCitations_UncitedSymbolWhenNoMatchingRef(t *testing.T) {
	sys := New(FormatMarkdown, "")

	result := sys.AddCitations("Use `WormholeGraph` to teleport.", nil)

	require.Len(t, result.UncitedSymbols, 1)
	assert.Equal(t, "WormholeGraph", result.UncitedSymbols[0])
	assert.False(t, result.AllGrounded())
	assert.Zero(t, result.CitationsAdded)
}

func TestAddCitations_OnlyCitesFirstOccurrence(t *testing.T) {
	sys := New(FormatMarkdown, "")
	refs := []Ref{{Symbol: "Retrieve", File: "ddr.go", Line: 10}}

	result := sys.AddCitations("`Retrieve` does X. Later, `Retrieve` does it again.", refs)

	assert.Equal(t, 1, result.CitationsAdded)
}

func TestAddCitations_IsIdempotent(t *testing.T) {
	for _, format := range []Format{FormatMarkdown, FormatInline, FormatGitHub} {
		sys := New(format, "https://github.com/example/repo/blob/main")
		refs := []Ref{{Symbol: "StateGraph", File: "langgraph/graph/state.py", Line: 50}}

		first := sys.AddCitations("Use `StateGraph` here.", refs)
		require.Equal(t, 1, first.CitationsAdded, "format=%s", format)

		second := sys.AddCitations(first.CitedContent, refs)
		assert.Zero(t, second.CitationsAdded, "format=%s should be idempotent", format)
		assert.Equal(t, first.CitedContent, second.CitedContent, "format=%s", format)
	}
}

func TestAddCitations_MatchesViaLastDottedSegment(t *testing.T) {
	sys := New(FormatMarkdown, "")
	refs := []Ref{{Symbol: "pkg.Func", File: "pkg/pkg.go", Line: 5}}

	result := sys.AddCitations("Call `Func` directly.", refs)

	assert.Equal(t, 1, result.CitationsAdded)
	assert.Contains(t, result.CitedContent, "pkg/pkg.go#L5")
}
