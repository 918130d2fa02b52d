// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package claims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_S1_SymbolAndCitation(t *testing.T) {
	content := "Use `StateGraph` defined at `langgraph/graph/state.py:50` to build flows."
	extracted := Extract(content, Options{})

	var symbolSeen, citationSeen bool
	for _, c := range extracted {
		if c.ClaimType == TypeSymbol && c.SymbolMentioned == "StateGraph" {
			symbolSeen = true
			assert.Equal(t, SeverityCritical, c.Severity)
		}
		if c.ClaimType == TypeCitation {
			citationSeen = true
			assert.Equal(t, "langgraph/graph/state.py", c.FileCited)
			assert.Equal(t, 50, c.LineCited)
		}
	}
	assert.True(t, symbolSeen)
	assert.True(t, citationSeen)
	assert.Len(t, extracted, 2)
}

func TestExtract_S2_HallucinatedSymbolAndImport(t *testing.T) {
	content := "Use `WormholeGraph` to teleport state. Import from `langgraph.nonexistent`."
	extracted := Extract(content, Options{})

	var criticalCount int
	for _, c := range extracted {
		if c.Severity == SeverityCritical {
			criticalCount++
		}
	}
	assert.GreaterOrEqual(t, criticalCount, 1)
}

func TestExtract_Deduplication(t *testing.T) {
	content := "`Foo` does a thing. Later `Foo` is mentioned again."
	extracted := Extract(content, Options{})
	count := 0
	for _, c := range extracted {
		if c.SymbolMentioned == "Foo" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtract_PythonFenceSkipsInit(t *testing.T) {
	content := "```python\nclass Widget:\n    def __init__(self):\n        pass\n    def render(self):\n        pass\n```"
	extracted := Extract(content, Options{})

	var names []string
	for _, c := range extracted {
		if c.ClaimType == TypeCodeBlock {
			names = append(names, c.SymbolMentioned)
		}
	}
	assert.Contains(t, names, "Widget")
	assert.Contains(t, names, "render")
	assert.NotContains(t, names, "__init__")
}

func TestExtract_DesignPattern(t *testing.T) {
	content := "This implements the factory pattern for object creation."
	extracted := Extract(content, Options{})
	require.Len(t, extracted, 1)
	assert.Equal(t, TypePattern, extracted[0].ClaimType)
	assert.Equal(t, SeverityLow, extracted[0].Severity)
}

func TestExtract_BehaviorClaimsGatedByOption(t *testing.T) {
	content := "`parse_file` returns a list of symbols."
	withoutBehaviors := Extract(content, Options{ExtractBehaviors: false})
	withBehaviors := Extract(content, Options{ExtractBehaviors: true})

	assert.Empty(t, filterType(withoutBehaviors, TypeBehavior))
	assert.NotEmpty(t, filterType(withBehaviors, TypeBehavior))
}

func filterType(cs []Claim, t Type) []Claim {
	var out []Claim
	for _, c := range cs {
		if c.ClaimType == t {
			out = append(out, c)
		}
	}
	return out
}
