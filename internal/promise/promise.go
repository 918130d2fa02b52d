// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package promise implements completion promises: named predicates a
// workflow run must satisfy before it is allowed to declare success
// (spec §4.9). A PromiseSet evaluates under AND or OR semantics and
// never lets a panicking check escape — a panic counts as a failed
// check with the recovered value as its reason.
package promise

import "fmt"

// TrustLevel records how far a promise's evidence is trusted. The
// numbering is inverse to trust: a lower value is stronger trust
// (TrustCanonical=1 < TrustVerified=2 < TrustUntrusted=3). The zero
// value means no level was set.
type TrustLevel int

const (
	TrustCanonical TrustLevel = iota + 1
	TrustVerified
	TrustUntrusted
)

// Promise is one named, checkable condition (spec §3/§4.9).
type Promise[T any] struct {
	Name         string
	Description  string
	Check        func(result T) bool
	TrustLevel   TrustLevel
	Required     bool
	ErrorMessage string
}

// Outcome is one promise's evaluation result.
type Outcome struct {
	Name     string
	Passed   bool
	Reason   string
	Required bool
}

// Set holds a collection of promises and the AND/OR combination rule.
type Set[T any] struct {
	Promises   []Promise[T]
	RequireAll bool
}

// New constructs a Set. requireAll selects AND (true) or OR (false)
// semantics.
func New[T any](requireAll bool, promises ...Promise[T]) Set[T] {
	return Set[T]{Promises: promises, RequireAll: requireAll}
}

// Evaluate runs every promise's Check against result and combines them
// per spec §4.9: under AND, passed iff every required promise passed;
// under OR, passed iff at least one promise (required or not) passed.
func (s Set[T]) Evaluate(result T) (bool, []Outcome) {
	outcomes := make([]Outcome, 0, len(s.Promises))
	for _, p := range s.Promises {
		outcomes = append(outcomes, evaluateOne(p, result))
	}

	if s.RequireAll {
		passed := true
		for _, o := range outcomes {
			if o.Required && !o.Passed {
				passed = false
				break
			}
		}
		return passed, outcomes
	}

	passed := false
	for _, o := range outcomes {
		if o.Passed {
			passed = true
			break
		}
	}
	return passed, outcomes
}

func evaluateOne[T any](p Promise[T], result T) (outcome Outcome) {
	outcome = Outcome{Name: p.Name, Required: p.Required}
	defer func() {
		if r := recover(); r != nil {
			outcome.Passed = false
			outcome.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	if p.Check(result) {
		outcome.Passed = true
		return outcome
	}
	outcome.Passed = false
	outcome.Reason = p.ErrorMessage
	return outcome
}

// SkillGenerationResult is the minimal shape the standard
// skill-generation promise set (spec §4.9) checks against.
type SkillGenerationResult struct {
	SkillsCreated      int
	GroundedCitations  []string
	ExistingFiles      map[string]bool
	SandboxPassedCount int
}

// StandardSkillSet builds spec §4.9's standard AND set: at least
// minSkills skills created, every citation resolves to a file that
// exists, and at least one skill passed sandbox verification.
func StandardSkillSet(minSkills int) Set[SkillGenerationResult] {
	return New(true,
		Promise[SkillGenerationResult]{
			Name:        "minimum_skills_created",
			Description: fmt.Sprintf("at least %d skills were created", minSkills),
			Required:    true,
			TrustLevel:  TrustVerified,
			Check: func(r SkillGenerationResult) bool {
				return r.SkillsCreated >= minSkills
			},
			ErrorMessage: fmt.Sprintf("fewer than %d skills were created", minSkills),
		},
		Promise[SkillGenerationResult]{
			Name:        "source_grounded",
			Description: "every citation resolves to an existing file",
			Required:    true,
			TrustLevel:  TrustVerified,
			Check: func(r SkillGenerationResult) bool {
				for _, c := range r.GroundedCitations {
					if !r.ExistingFiles[c] {
						return false
					}
				}
				return true
			},
			ErrorMessage: "at least one citation does not resolve to an existing file",
		},
		Promise[SkillGenerationResult]{
			Name:        "sandbox_verified",
			Description: "at least one skill passed sandbox verification",
			Required:    true,
			TrustLevel:  TrustCanonical,
			Check: func(r SkillGenerationResult) bool {
				return r.SandboxPassedCount >= 1
			},
			ErrorMessage: "no skill passed sandbox verification",
		},
	)
}
