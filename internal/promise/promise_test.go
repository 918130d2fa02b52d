// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package promise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_ANDRequiresAllRequiredToPass(t *testing.T) {
	set := New(true,
		Promise[int]{Name: "a", Required: true, Check: func(n int) bool { return n > 0 }},
		Promise[int]{Name: "b", Required: true, Check: func(n int) bool { return n < 10 }},
	)

	passed, outcomes := set.Evaluate(5)
	assert.True(t, passed)
	require.Len(t, outcomes, 2)

	passed, _ = set.Evaluate(-1)
	assert.False(t, passed)
}

func TestEvaluate_ANDIgnoresNonRequiredFailures(t *testing.T) {
	set := New(true,
		Promise[int]{Name: "required", Required: true, Check: func(int) bool { return true }},
		Promise[int]{Name: "optional", Required: false, Check: func(int) bool { return false }},
	)
	passed, _ := set.Evaluate(0)
	assert.True(t, passed)
}

func TestEvaluate_ORPassesIfAnyPromisePasses(t *testing.T) {
	set := New(false,
		Promise[int]{Name: "a", Check: func(n int) bool { return n == 1 }},
		Promise[int]{Name: "b", Check: func(n int) bool { return n == 2 }},
	)
	passed, _ := set.Evaluate(2)
	assert.True(t, passed)

	passed, _ = set.Evaluate(3)
	assert.False(t, passed)
}

func TestEvaluate_PanicInCheckCountsAsFailureWithReason(t *testing.T) {
	set := New(true,
		Promise[int]{Name: "panics", Required: true, Check: func(int) bool { panic("boom") }},
	)
	passed, outcomes := set.Evaluate(1)
	assert.False(t, passed)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Passed)
	assert.Contains(t, outcomes[0].Reason, "boom")
}

func TestStandardSkillSet_S5_AllThreeRequiredPromisesPass(t *testing.T) {
	set := StandardSkillSet(2)
	result := SkillGenerationResult{
		SkillsCreated:      3,
		GroundedCitations:  []string{"src/a.py"},
		ExistingFiles:      map[string]bool{"src/a.py": true},
		SandboxPassedCount: 1,
	}
	passed, outcomes := set.Evaluate(result)
	assert.True(t, passed)
	require.Len(t, outcomes, 3)
}

func TestStandardSkillSet_FailsWhenCitationDoesNotResolve(t *testing.T) {
	set := StandardSkillSet(1)
	result := SkillGenerationResult{
		SkillsCreated:      1,
		GroundedCitations:  []string{"src/missing.py"},
		ExistingFiles:      map[string]bool{},
		SandboxPassedCount: 1,
	}
	passed, outcomes := set.Evaluate(result)
	assert.False(t, passed)

	var sourceGrounded Outcome
	for _, o := range outcomes {
		if o.Name == "source_grounded" {
			sourceGrounded = o
		}
	}
	assert.False(t, sourceGrounded.Passed)
}
