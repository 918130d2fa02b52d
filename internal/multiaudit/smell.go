// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package multiaudit

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/skillsfabric/core/internal/claims"
)

// Smell agent thresholds (spec §4.7's smell row).
const (
	maxExampleLines = 30
	maxNestingDepth = 4
	indentWidth     = 4
	// proseBlockChars is the length past which uninterrupted prose with
	// no code example reads as a wall of text in a code-skill context.
	proseBlockChars = 1200
)

// acceptedMagicNumbers are the conventional constants the magic-number
// check ignores.
var acceptedMagicNumbers = map[int]bool{
	0: true, 1: true, -1: true, 2: true, 100: true, 200: true,
	404: true, 500: true, 1000: true,
}

// acceptedShortNames are the single-letter variables idiomatic enough
// to pass.
var acceptedShortNames = map[string]bool{
	"i": true, "j": true, "k": true, "n": true, "x": true, "y": true, "_": true,
}

var (
	numberLiteral   = regexp.MustCompile(`\b(-?\d+)\b`)
	shortVarPattern = regexp.MustCompile(`(?m)^\s*([a-zA-Z])\s*=[^=]`)
)

// scanSmells grades example ergonomics: length, nesting, magic
// numbers, cryptic names, and prose-only stretches. Everything here is
// medium or low — smells cost polish points, they do not veto.
func scanSmells(content string) []Issue {
	var issues []Issue

	fences := pythonCode(content)
	for _, code := range fences {
		lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
		if len(lines) > maxExampleLines {
			issues = append(issues, smell("long_example", claims.SeverityMedium,
				"example is "+strconv.Itoa(len(lines))+" lines; keep skills under "+strconv.Itoa(maxExampleLines)))
		}
		if depth := maxIndentDepth(lines); depth > maxNestingDepth {
			issues = append(issues, smell("deep_nesting", claims.SeverityMedium,
				"nesting reaches depth "+strconv.Itoa(depth)))
		}
		issues = append(issues, magicNumbers(code)...)
		issues = append(issues, crypticNames(code)...)
	}

	if len(fences) == 0 && len(content) > proseBlockChars {
		issues = append(issues, smell("prose_without_code", claims.SeverityMedium,
			"long prose block with no code example"))
	}

	return issues
}

func smell(category string, severity claims.Severity, description string) Issue {
	return Issue{
		Category:    category,
		Severity:    severity,
		Description: description,
		Confidence:  0.7,
		Agent:       AgentSmell,
	}
}

func maxIndentDepth(lines []string) int {
	depth := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := 0
		for _, r := range line {
			if r == ' ' {
				indent++
			} else if r == '\t' {
				indent += indentWidth
			} else {
				break
			}
		}
		if d := indent / indentWidth; d > depth {
			depth = d
		}
	}
	return depth
}

func magicNumbers(code string) []Issue {
	var issues []Issue
	seen := make(map[string]bool)
	for _, m := range numberLiteral.FindAllStringSubmatch(code, -1) {
		value, err := strconv.Atoi(m[1])
		if err != nil || acceptedMagicNumbers[value] || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		issues = append(issues, smell("magic_number", claims.SeverityLow,
			"unexplained numeric literal "+m[1]))
	}
	return issues
}

func crypticNames(code string) []Issue {
	var issues []Issue
	seen := make(map[string]bool)
	for _, m := range shortVarPattern.FindAllStringSubmatch(code, -1) {
		name := m[1]
		if acceptedShortNames[name] || seen[name] {
			continue
		}
		seen[name] = true
		issues = append(issues, smell("single_letter_name", claims.SeverityLow,
			"single-letter variable "+name+" outside the accepted set"))
	}
	return issues
}
