// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package claims extracts typed, verifiable facts from generated prose
// and code. Each of the thirteen recognized patterns emits at most one
// claim per unique payload; duplicates within the same content item are
// suppressed after their first occurrence (spec §4.5).
package claims

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"gitlab.com/golang-commonmark/markdown"
)

// Type is the claim_type enumeration from spec §3.
type Type string

const (
	TypeSymbol    Type = "SYMBOL"
	TypeBehavior  Type = "BEHAVIOR"
	TypeAPI       Type = "API"
	TypePattern   Type = "PATTERN"
	TypeCitation  Type = "CITATION"
	TypeCodeBlock Type = "CODE_BLOCK"
	TypeImport    Type = "IMPORT"
	TypeDocstring Type = "DOCSTRING"
)

// Severity is the claim severity enumeration from spec §3.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Claim is a typed fact extracted from generated content (spec §3).
type Claim struct {
	Text            string
	ClaimType       Type
	Severity        Severity
	SymbolMentioned string
	ExpectedType    string
	FileCited       string
	LineCited       int
	Parameters      []string
	ReturnType      string
	BehaviorVerb    string
	Context         string
}

// Options toggles optional extraction categories.
type Options struct {
	ExtractBehaviors bool
}

var (
	camelClassPattern  = regexp.MustCompile("`([A-Z][A-Za-z0-9]*)`")
	snakeFuncPattern   = regexp.MustCompile("`([a-z_][a-z0-9_]*)\\(\\)`")
	theClassPattern    = regexp.MustCompile("the `([A-Za-z_][A-Za-z0-9_]*)` class")
	fileLinePattern    = regexp.MustCompile(`([\w./-]+\.(?:py|ts|tsx|js|jsx)):(\d+)`)
	methodCallPattern  = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_]*)\\.([A-Za-z_][A-Za-z0-9_]*)\\(\\)`")
	paramPattern       = regexp.MustCompile("the `([A-Za-z_][A-Za-z0-9_]*)` (?:parameter|argument)")
	fromImportPattern  = regexp.MustCompile(`from\s+([\w.]+)\s+import\s+([\w, ]+)`)
	importPattern      = regexp.MustCompile(`(?m)^import\s+([\w.]+)(?:\s+as\s+(\w+))?`)
	returnsPattern     = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_.]*)` returns ([\\w\\s.,]+?)[.\\n]")
	acceptsPattern     = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_.]*)` (?:accepts|takes) ([\\w\\s.,]+?) parameter")
	createsPattern     = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_.]*)` (?:creates|builds|generates) ([\\w\\s.,]+?)[.\\n]")
	classDefPattern    = regexp.MustCompile(`(?m)^class\s+([A-Za-z_]\w*)`)
	defPattern         = regexp.MustCompile(`(?m)^\s*def\s+([A-Za-z_]\w*)`)
	patternNamePattern = regexp.MustCompile(`(?i)the (factory|singleton|observer|decorator|adapter|strategy|builder|proxy|facade|composite) pattern`)

	fencedCodeBlockPattern = regexp.MustCompile(`(?s)<pre><code class="language-([\w+-]*)">(.*?)</code></pre>`)
)

// fenceRenderer renders a markdown document down to its fenced-code
// HTML so pythonFences can pull exact fence boundaries (including
// tilde fences and indented closers) from the same commonmark grammar
// the rest of the ecosystem renders with, instead of a hand-rolled
// fence regex that breaks on edge cases like a fenced block containing
// a literal "```" in its prose.
var fenceRenderer = markdown.New(markdown.LangPrefix("language-"))

// pythonFences extracts the literal content of every ```python fenced
// code block in content.
func pythonFences(content string) []string {
	rendered := fenceRenderer.RenderToString([]byte(content))
	var blocks []string
	for _, m := range fencedCodeBlockPattern.FindAllStringSubmatch(rendered, -1) {
		lang, body := m[1], m[2]
		if lang != "python" {
			continue
		}
		blocks = append(blocks, html.UnescapeString(body))
	}
	return blocks
}

const contextRadius = 50

// Extract scans content and returns the ordered, de-duplicated list of
// claims the thirteen patterns recognize.
func Extract(content string, opts Options) []Claim {
	var claims []Claim
	seenSymbols := make(map[string]bool)
	seenCitations := make(map[string]bool)

	emit := func(c Claim) {
		if c.SymbolMentioned != "" {
			key := strings.ToLower(c.SymbolMentioned)
			if seenSymbols[key] {
				return
			}
			seenSymbols[key] = true
		}
		if c.FileCited != "" {
			key := c.FileCited + ":" + strconv.Itoa(c.LineCited)
			if seenCitations[key] {
				return
			}
			seenCitations[key] = true
		}
		c.Context = contextAround(content, c.Text)
		claims = append(claims, c)
	}

	// 1. `CamelCaseName` -> SYMBOL/class critical.
	for _, m := range camelClassPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		emit(Claim{Text: content[m[0]:m[1]], ClaimType: TypeSymbol, Severity: SeverityCritical, SymbolMentioned: name, ExpectedType: "class"})
	}

	// 2. `snake_name()` -> SYMBOL/function critical.
	for _, m := range snakeFuncPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		emit(Claim{Text: content[m[0]:m[1]], ClaimType: TypeSymbol, Severity: SeverityCritical, SymbolMentioned: name, ExpectedType: "function"})
	}

	// 3. "the `Name` class" -> SYMBOL/class.
	for _, m := range theClassPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		emit(Claim{Text: content[m[0]:m[1]], ClaimType: TypeSymbol, Severity: SeverityCritical, SymbolMentioned: name, ExpectedType: "class"})
	}

	// 4. path/to/file.{py,ts,tsx,js,jsx}:NNN -> CITATION critical.
	for _, m := range fileLinePattern.FindAllStringSubmatch(content, -1) {
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		emit(Claim{Text: m[0], ClaimType: TypeCitation, Severity: SeverityCritical, FileCited: m[1], LineCited: line})
	}

	// 5. `obj.method()` -> API/method critical.
	for _, m := range methodCallPattern.FindAllStringSubmatchIndex(content, -1) {
		method := content[m[4]:m[5]]
		emit(Claim{Text: content[m[0]:m[1]], ClaimType: TypeAPI, Severity: SeverityCritical, SymbolMentioned: method, ExpectedType: "method"})
	}

	// 6. "the `param` parameter|argument" -> API/parameter high.
	for _, m := range paramPattern.FindAllStringSubmatchIndex(content, -1) {
		param := content[m[2]:m[3]]
		emit(Claim{Text: content[m[0]:m[1]], ClaimType: TypeAPI, Severity: SeverityHigh, SymbolMentioned: param, ExpectedType: "parameter", Parameters: []string{param}})
	}

	// 7. "from MOD import S1, S2" -> IMPORT/S* critical.
	for _, m := range fromImportPattern.FindAllStringSubmatch(content, -1) {
		module := m[1]
		for _, sym := range strings.Split(m[2], ",") {
			sym = strings.TrimSpace(sym)
			if sym == "" {
				continue
			}
			_ = module
			emit(Claim{Text: m[0], ClaimType: TypeImport, Severity: SeverityCritical, SymbolMentioned: sym})
		}
	}

	// 8. line-start "import MOD[ as A]" -> IMPORT/MOD high.
	for _, m := range importPattern.FindAllStringSubmatch(content, -1) {
		emit(Claim{Text: m[0], ClaimType: TypeImport, Severity: SeverityHigh, SymbolMentioned: m[1]})
	}

	if opts.ExtractBehaviors {
		// 9. "`X` returns Y" -> BEHAVIOR/returns high.
		for _, m := range returnsPattern.FindAllStringSubmatch(content, -1) {
			emit(Claim{Text: m[0], ClaimType: TypeBehavior, Severity: SeverityHigh, SymbolMentioned: m[1], BehaviorVerb: "returns", ReturnType: strings.TrimSpace(m[2])})
		}

		// 10. "`X` accepts|takes Y parameter" -> BEHAVIOR/accepts high.
		for _, m := range acceptsPattern.FindAllStringSubmatch(content, -1) {
			emit(Claim{Text: m[0], ClaimType: TypeBehavior, Severity: SeverityHigh, SymbolMentioned: m[1], BehaviorVerb: "accepts"})
		}

		// 11. "`X` creates|builds|generates Y" -> BEHAVIOR/creates medium.
		for _, m := range createsPattern.FindAllStringSubmatch(content, -1) {
			emit(Claim{Text: m[0], ClaimType: TypeBehavior, Severity: SeverityMedium, SymbolMentioned: m[1], BehaviorVerb: "creates"})
		}
	}

	// 12. classes/defs inside ```python fences -> CODE_BLOCK medium (skip __init__).
	for _, body := range pythonFences(content) {
		for _, m := range classDefPattern.FindAllStringSubmatch(body, -1) {
			emit(Claim{Text: m[0], ClaimType: TypeCodeBlock, Severity: SeverityMedium, SymbolMentioned: m[1], ExpectedType: "class"})
		}
		for _, m := range defPattern.FindAllStringSubmatch(body, -1) {
			if m[1] == "__init__" {
				continue
			}
			emit(Claim{Text: m[0], ClaimType: TypeCodeBlock, Severity: SeverityMedium, SymbolMentioned: m[1], ExpectedType: "function"})
		}
	}

	// 13. "the {pattern} pattern" -> PATTERN low.
	seenPatterns := make(map[string]bool)
	for _, m := range patternNamePattern.FindAllStringSubmatch(content, -1) {
		name := strings.ToLower(m[1])
		if seenPatterns[name] {
			continue
		}
		seenPatterns[name] = true
		emit(Claim{Text: m[0], ClaimType: TypePattern, Severity: SeverityLow, BehaviorVerb: name})
	}

	return claims
}

func contextAround(content, match string) string {
	idx := strings.Index(content, match)
	if idx == -1 {
		return ""
	}
	start := idx - contextRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(match) + contextRadius
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}
