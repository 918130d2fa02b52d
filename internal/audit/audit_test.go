// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfabric/core/internal/claims"
	"github.com/skillsfabric/core/internal/ddr"
	"github.com/skillsfabric/core/internal/hallm"
)

// S1 (strict audit passes): content has one SYMBOL claim and one
// CITATION claim, both backed by a provided SourceRef. Strict mode
// requires critical_unverified == 0 && unverified == 0.
func TestAudit_S1_StrictPassesWithProvidedRefs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "state.py")
	lines := make([]byte, 0, 60*6)
	for i := 1; i <= 60; i++ {
		lines = append(lines, []byte("line\n")...)
	}
	require.NoError(t, os.WriteFile(file, lines, 0o644))

	content := "Use `StateGraph` defined at `state.py:50` to build flows."
	refs := []ddr.SourceRef{
		{SymbolName: "StateGraph", SymbolType: ddr.SymbolClass, FilePath: "state.py", LineNumber: 50, Validated: true},
	}

	a := New(nil, nil, hallm.New(), 0)
	result, err := a.Audit(context.Background(), content, refs, dir, ModeStrict, false, claims.Options{})
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, 0, result.UnverifiedClaims)
	assert.Equal(t, 2, result.TotalClaims)
}

// S2 (strict audit fails on a hallucinated symbol): no provided refs,
// no retriever, no file on disk -- the SYMBOL claim cannot be verified
// by any step in the cascade, so strict mode must fail.
func TestAudit_S2_StrictFailsOnUnverifiedCriticalSymbol(t *testing.T) {
	content := "Use `WormholeGraph` to teleport state."

	a := New(nil, nil, hallm.New(), 0)
	result, err := a.Audit(context.Background(), content, nil, "", ModeStrict, false, claims.Options{})
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, 1, result.UnverifiedBySeverity[claims.SeverityCritical])
}

// Strict-mode soundness invariant: a Passed=true strict result must
// never carry an unverified critical claim.
func TestAudit_StrictSoundnessInvariant(t *testing.T) {
	contents := []string{
		"Use `WormholeGraph` to teleport state.",
		"This implements the factory pattern for object creation.",
		"no claims here at all",
	}
	a := New(nil, nil, hallm.New(), 0)
	for _, c := range contents {
		result, err := a.Audit(context.Background(), c, nil, "", ModeStrict, false, claims.Options{})
		require.NoError(t, err)
		if result.Passed {
			assert.Equal(t, 0, result.UnverifiedBySeverity[claims.SeverityCritical])
			assert.Equal(t, 0, result.UnverifiedClaims)
		}
	}
}

func TestAudit_LenientPassesBelowThreshold(t *testing.T) {
	content := "Use `StateGraph` to build flows."
	a := New(nil, nil, hallm.New(), 0.5)
	refs := []ddr.SourceRef{{SymbolName: "StateGraph", LineNumber: 1}}
	result, err := a.Audit(context.Background(), content, refs, "", ModeLenient, false, claims.Options{})
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestAudit_DirectCitationStepVerifiesInBoundsLine(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(file, []byte("a\nb\nc\nd\ne\n"), 0o644))

	content := "See `mod.py:3` for details."
	a := New(nil, nil, hallm.New(), 0)
	result, err := a.Audit(context.Background(), content, nil, dir, ModeLenient, false, claims.Options{})
	require.NoError(t, err)

	require.Len(t, result.Verifications, 1)
	assert.True(t, result.Verifications[0].Verified)
	assert.True(t, result.Verifications[0].SourcesConfirmed[SourceDirectCite])
}

func TestAudit_HighConfidenceRequiresTwoSources(t *testing.T) {
	v := Verification{SourcesConfirmed: map[Source]bool{SourceProvidedRef: true}}
	assert.False(t, v.IsHighConfidence())
	v.SourcesConfirmed[SourceDDR] = true
	assert.True(t, v.IsHighConfidence())
}
