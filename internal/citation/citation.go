// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package citation implements the Citation System (spec §4.13): given
// prose and a list of already-validated source references, it appends
// verifiable file:line citations to every referenced symbol, flagging
// anything it cannot ground rather than fabricating a reference for
// it. Grounded on the teacher's citation_checker.go regex-matching
// idiom, turned from a validator (checking citations already present)
// into a generator (adding citations that are missing).
package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Format selects the rendered citation shape (spec §4.13).
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatInline   Format = "inline"
	FormatGitHub   Format = "github"
)

// Ref is a validated grounding reference eligible to be cited. Only
// refs the caller asserts are already validated should be passed in —
// this package never validates on its own behalf.
type Ref struct {
	Symbol  string
	File    string
	Line    int
	EndLine int
}

// markerPattern matches `Identifier` or `Identifier.sub.sub` spans
// (spec §4.13).
var markerPattern = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_]*(?:\\.[A-Za-z_][A-Za-z0-9_]*)*)`")

// System rewrites prose content, replacing backtick-quoted identifiers
// that match a registered ref with a formatted citation.
type System struct {
	Format     Format
	GitHubBase string // required when Format == FormatGitHub
}

// New constructs a citation System.
func New(format Format, githubBase string) *System {
	return &System{Format: format, GitHubBase: githubBase}
}

// Result is AddCitations' output.
type Result struct {
	CitedContent   string
	CitationsAdded int
	UncitedSymbols []string
}

// AddCitations registers refs under their lowercase symbol name (and
// again under the last dotted segment, so `pkg.Func` also matches a
// bare `Func` marker), then collects marker matches left-to-right and
// applies the replacements right-to-left so replacement offsets never
// shift unprocessed matches (spec §4.13).
func (s *System) AddCitations(content string, refs []Ref) Result {
	byName := make(map[string]Ref, len(refs)*2)
	for _, r := range refs {
		lower := strings.ToLower(r.Symbol)
		if _, exists := byName[lower]; !exists {
			byName[lower] = r
		}
		if idx := strings.LastIndexByte(r.Symbol, '.'); idx >= 0 {
			lastSeg := strings.ToLower(r.Symbol[idx+1:])
			if _, exists := byName[lastSeg]; !exists {
				byName[lastSeg] = r
			}
		}
	}

	matches := markerPattern.FindAllStringSubmatchIndex(content, -1)

	type citedSpan struct {
		start, end int
		text       string
	}
	var spans []citedSpan
	seen := make(map[string]bool)
	var uncited []string
	uncitedSeen := make(map[string]bool)

	for _, m := range matches {
		fullStart, fullEnd := m[0], m[1]
		nameStart, nameEnd := m[2], m[3]
		name := content[nameStart:nameEnd]
		lower := strings.ToLower(name)

		ref, ok := byName[lower]
		if !ok {
			if !uncitedSeen[lower] {
				uncitedSeen[lower] = true
				uncited = append(uncited, name)
			}
			continue
		}

		if s.alreadyCited(content, fullStart, fullEnd) {
			continue
		}

		key := ref.Symbol
		if seen[key] {
			// Already cited once; leave subsequent mentions as plain
			// backtick code spans rather than repeating the citation.
			continue
		}
		seen[key] = true
		spans = append(spans, citedSpan{start: fullStart, end: fullEnd, text: s.render(name, ref)})
	}

	// Right-to-left application so earlier offsets stay valid.
	sort.Slice(spans, func(i, j int) bool { return spans[i].start > spans[j].start })

	out := content
	for _, span := range spans {
		out = out[:span.start] + span.text + out[span.end:]
	}

	return Result{CitedContent: out, CitationsAdded: len(spans), UncitedSymbols: uncited}
}

// afterCitationSuffix matches the inline format's trailing
// " (path:line)" so re-running AddCitations over already-cited inline
// content doesn't wrap it a second time.
var afterCitationSuffix = regexp.MustCompile(`^ \([^()\s]+:\d+\)`)

// alreadyCited detects a marker that is already part of a citation
// this package previously emitted, so re-running AddCitations is
// idempotent (spec §8 property 6) instead of nesting citations.
func (s *System) alreadyCited(content string, fullStart, fullEnd int) bool {
	switch s.Format {
	case FormatInline:
		return afterCitationSuffix.MatchString(content[fullEnd:])
	case FormatMarkdown, FormatGitHub:
		if fullStart == 0 || content[fullStart-1] != '[' {
			return false
		}
		return strings.HasPrefix(content[fullEnd:], "](")
	default:
		return false
	}
}

func (s *System) render(symbol string, ref Ref) string {
	path := ref.File
	line := ref.Line
	switch s.Format {
	case FormatInline:
		return fmt.Sprintf("`%s` (%s:%d)", symbol, path, line)
	case FormatGitHub:
		anchor := "#L" + strconv.Itoa(line)
		if ref.EndLine > line {
			anchor += "-L" + strconv.Itoa(ref.EndLine)
		}
		return fmt.Sprintf("[`%s`](%s/%s%s)", symbol, strings.TrimRight(s.GitHubBase, "/"), path, anchor)
	case FormatMarkdown:
		fallthrough
	default:
		anchor := "#L" + strconv.Itoa(line)
		if ref.EndLine > line {
			anchor += "-L" + strconv.Itoa(ref.EndLine)
		}
		return fmt.Sprintf("[`%s`](%s%s)", symbol, path, anchor)
	}
}

// AllGrounded mirrors spec §4.13's invariant: len(uncited_symbols) == 0
// iff every referenced symbol is grounded.
func (r Result) AllGrounded() bool { return len(r.UncitedSymbols) == 0 }
