// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package multiaudit

import (
	"regexp"
	"strings"

	"github.com/skillsfabric/core/internal/claims"
)

// Bug agent patterns (spec §4.7's bug row): undefined names in example
// code, file/network operations with no error handling in sight, and
// return-type statements in prose that contradict the code. SQL
// injection detection lives in the security agent, not here.
var (
	defNamePattern    = regexp.MustCompile(`(?m)^\s*(?:def|class)\s+([A-Za-z_]\w*)`)
	assignNamePattern = regexp.MustCompile(`(?m)^\s*([A-Za-z_]\w*)\s*=[^=]`)
	importNamePattern = regexp.MustCompile(`(?m)^\s*(?:from\s+[\w.]+\s+)?import\s+(.+)$`)
	callSitePattern   = regexp.MustCompile(`\b([A-Za-z_]\w*)\(`)
	riskyOpPattern    = regexp.MustCompile(`\b(open|urlopen|connect)\(|requests\.\w+\(|socket\.`)
	proseReturns      = regexp.MustCompile("`([A-Za-z_]\\w*)(?:\\(\\))?` returns (?:a |an )?`?([A-Za-z_][\\w.\\[\\]]*)`?")
	defReturnType     = regexp.MustCompile(`def\s+([A-Za-z_]\w*)\([^)]*\)\s*->\s*([A-Za-z_][\w.\[\]]*)`)
)

// pythonBuiltins are names an example may call without defining.
var pythonBuiltins = map[string]bool{
	"print": true, "len": true, "range": true, "str": true, "int": true,
	"float": true, "bool": true, "list": true, "dict": true, "set": true,
	"tuple": true, "open": true, "isinstance": true, "enumerate": true,
	"zip": true, "map": true, "filter": true, "sorted": true, "sum": true,
	"min": true, "max": true, "abs": true, "type": true, "super": true,
	"repr": true, "hasattr": true, "getattr": true, "setattr": true,
	"iter": true, "next": true, "any": true, "all": true, "format": true,
	"vars": true, "id": true, "round": true, "input": true, "ValueError": true,
	"TypeError": true, "KeyError": true, "RuntimeError": true, "Exception": true,
}

// scanBugs inspects content's fenced python examples for calls to
// names the example never defines or imports, risky I/O with no
// try/except, and prose return-type statements the code contradicts.
func scanBugs(content string) []Issue {
	var issues []Issue

	declaredReturns := make(map[string]string)
	fences := pythonCode(content)
	for _, code := range fences {
		issues = append(issues, undefinedNames(code)...)
		issues = append(issues, unhandledRiskyOps(code)...)
		for _, m := range defReturnType.FindAllStringSubmatch(code, -1) {
			declaredReturns[m[1]] = m[2]
		}
	}

	for _, m := range proseReturns.FindAllStringSubmatch(content, -1) {
		name, claimed := m[1], m[2]
		actual, ok := declaredReturns[name]
		if !ok || strings.EqualFold(actual, claimed) {
			continue
		}
		issues = append(issues, Issue{
			Category:    "type_inconsistency",
			Severity:    claims.SeverityMedium,
			Description: "prose says " + name + " returns " + claimed + " but its annotation says " + actual,
			Confidence:  0.7,
			Agent:       AgentBug,
		})
	}

	return issues
}

func undefinedNames(code string) []Issue {
	defined := make(map[string]bool)
	for _, m := range defNamePattern.FindAllStringSubmatch(code, -1) {
		defined[m[1]] = true
	}
	for _, m := range assignNamePattern.FindAllStringSubmatch(code, -1) {
		defined[m[1]] = true
	}
	for _, m := range importNamePattern.FindAllStringSubmatch(code, -1) {
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if idx := strings.Index(part, " as "); idx >= 0 {
				part = part[idx+4:]
			}
			if dot := strings.IndexByte(part, '.'); dot >= 0 {
				part = part[:dot]
			}
			if part != "" {
				defined[strings.TrimSpace(part)] = true
			}
		}
	}

	var issues []Issue
	seen := make(map[string]bool)
	for _, m := range callSitePattern.FindAllStringSubmatchIndex(code, -1) {
		name := code[m[2]:m[3]]
		if defined[name] || pythonBuiltins[name] || seen[name] {
			continue
		}
		// Method calls resolve through their receiver, not the local scope.
		if m[0] > 0 && code[m[0]-1] == '.' {
			continue
		}
		seen[name] = true
		issues = append(issues, Issue{
			Category:    "undefined_name",
			Severity:    claims.SeverityHigh,
			Description: name + " is called but never defined or imported in the example",
			Confidence:  0.8,
			Agent:       AgentBug,
		})
	}
	return issues
}

func unhandledRiskyOps(code string) []Issue {
	if !riskyOpPattern.MatchString(code) {
		return nil
	}
	if strings.Contains(code, "try:") || strings.Contains(code, "with ") {
		return nil
	}
	return []Issue{{
		Category:    "missing_error_handling",
		Severity:    claims.SeverityHigh,
		Description: "file or network operation with no try/except or context manager",
		Confidence:  0.6,
		Agent:       AgentBug,
	}}
}

// fencePattern delimits fenced code blocks for the code-quality
// scanners. They tolerate a looser grammar than the claim extractor's
// commonmark pass: scanners grade style, they do not assert grounding.
var fencePattern = regexp.MustCompile("(?s)```(?:python)?\\n(.*?)```")

func pythonCode(content string) []string {
	var blocks []string
	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		blocks = append(blocks, m[1])
	}
	return blocks
}
