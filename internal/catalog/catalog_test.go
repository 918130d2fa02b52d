// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MarkdownLink(t *testing.T) {
	content := "[`StateGraph`](https://github.com/org/repo/blob/abc123/src/state.py#L50)"
	idx := Parse(content, nil)

	entries := idx["stategraph"]
	require.Len(t, entries, 1)
	assert.Equal(t, "src/state.py", entries[0].File)
	assert.Equal(t, 50, entries[0].Line)
	assert.Equal(t, "class", entries[0].Type)
}

func TestParse_MarkdownLink_LineRange(t *testing.T) {
	content := "[`helper`](https://github.com/org/repo/blob/abc123/src/util.py#L10-L20)"
	idx := Parse(content, nil)

	entries := idx["helper"]
	require.Len(t, entries, 1)
	assert.Equal(t, 10, entries[0].Line)
	assert.Equal(t, "function", entries[0].Type)
}

func TestParse_FileHeading(t *testing.T) {
	content := "### `src/state.py`\n- Line 19: `StateGraph` (class)\n- Line 42: `add_node` (method)\n"
	idx := Parse(content, nil)

	assert.Equal(t, "src/state.py", idx["stategraph"][0].File)
	assert.Equal(t, 19, idx["stategraph"][0].Line)
	assert.Equal(t, "src/state.py", idx["add_node"][0].File)
	assert.Equal(t, 42, idx["add_node"][0].Line)
}

func TestParse_Table(t *testing.T) {
	content := "## src/state.py\n| Symbol | Type | Line | Signature |\n| StateGraph | class | 50 | class StateGraph: |\n"
	idx := Parse(content, nil)

	entries := idx["stategraph"]
	require.Len(t, entries, 1)
	assert.Equal(t, "src/state.py", entries[0].File)
	assert.Equal(t, 50, entries[0].Line)
	assert.Equal(t, "class StateGraph:", entries[0].Signature)
}

func TestParse_InterleavedFormatsRetainDuplicates(t *testing.T) {
	content := "[`StateGraph`](https://github.com/org/repo/blob/abc/src/state.py#L50)\n" +
		"### `src/state.py`\n- Line 50: `StateGraph` (class)\n"
	idx := Parse(content, nil)

	assert.Len(t, idx["stategraph"], 2)
}

func TestParse_MalformedLinesSkippedSilently(t *testing.T) {
	content := "### `broken`\n- not a line entry\nnonsense text\n"
	idx := Parse(content, nil)

	assert.Empty(t, idx)
}

func TestGitHubBlobLinkParser_NonGitHubHostMisparsesToEmpty(t *testing.T) {
	file, line := GitHubBlobLinkParser("https://gitlab.example.com/org/repo/file.py#L10")
	assert.Empty(t, file)
	assert.Zero(t, line)
}

func TestFormatMarkdownLinks_RoundTrips(t *testing.T) {
	original := []Entry{
		{Symbol: "StateGraph", Type: "class", File: "src/state.py", Line: 50},
		{Symbol: "compile_graph", Type: "function", File: "src/state.py", Line: 120},
		{Symbol: "Runner", Type: "class", File: "src/runner.py", Line: 8},
	}

	formatted := FormatMarkdownLinks(original, "https://github.com/org/repo", "abc123")
	idx := Parse(formatted, nil)

	var reparsed []Entry
	for _, entries := range idx {
		for _, e := range entries {
			e.URL = ""
			reparsed = append(reparsed, e)
		}
	}
	assert.ElementsMatch(t, original, reparsed)
}

func TestFormatMarkdownLinks_OrdersByFileThenLine(t *testing.T) {
	formatted := FormatMarkdownLinks([]Entry{
		{Symbol: "late", File: "b.py", Line: 9},
		{Symbol: "early", File: "a.py", Line: 3},
	}, "https://github.com/org/repo", "abc123")

	lines := strings.Split(strings.TrimSpace(formatted), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "a.py")
	assert.Contains(t, lines[1], "b.py")
}
