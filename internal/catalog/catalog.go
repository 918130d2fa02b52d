// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog parses a symbol-catalog document into a searchable
// index of symbol name to the locations where that symbol is declared.
//
// Three formats may interleave in the same document (spec §4.1):
// hyperlinked GitHub permalinks, "file heading" sections with bulleted
// line references, and pipe tables scoped to a preceding "## path"
// heading. Duplicates across formats are retained — a symbol redefined
// in two files (or indexed twice by two different catalog emitters)
// keeps both entries; downstream validation decides which survive.
package catalog

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Entry is one parsed catalog row: a symbol claimed to live at file:line.
type Entry struct {
	Symbol    string
	Type      string
	File      string
	Line      int
	Signature string
	URL       string
}

// Index maps a lower-cased symbol name to every Entry recorded for it.
type Index map[string][]Entry

// SourceLinkParser splits a catalog hyperlink URL into (file, line).
// The default implementation assumes GitHub-style "/blob/<commit>/"
// permalinks (spec §9 Open Question 3); alternate hosts can supply
// their own parser without touching Parse's call sites.
type SourceLinkParser func(url string) (file string, line int)

// GitHubBlobLinkParser implements the documented "/blob/" split: the
// commit segment immediately after /blob/ is dropped, and a trailing
// "#Lnnn" (or "#Lnnn-Lmmm") fragment yields the line number. URLs from
// non-GitHub hosts are silently misparsed into an empty file — this is
// a known, documented limitation, not a bug to paper over.
func GitHubBlobLinkParser(url string) (string, int) {
	idx := strings.Index(url, "/blob/")
	if idx == -1 {
		return "", 0
	}
	rest := url[idx+len("/blob/"):]
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return "", 0
	}
	fileAndLine := rest[slash+1:]

	hashIdx := strings.Index(fileAndLine, "#L")
	if hashIdx == -1 {
		return fileAndLine, 0
	}
	file := fileAndLine[:hashIdx]
	lineStr := fileAndLine[hashIdx+2:]
	if dash := strings.IndexByte(lineStr, '-'); dash != -1 {
		lineStr = lineStr[:dash]
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil {
		return file, 0
	}
	return file, line
}

var (
	mdLinkPattern      = regexp.MustCompile("\\[`([^`]+)`\\]\\(([^)]+)\\)")
	fileHeadingPattern = regexp.MustCompile("^###\\s+`([^`]+)`")
	lineEntryPattern   = regexp.MustCompile("^-\\s+Line\\s+(\\d+):\\s+`([^`]+)`\\s+\\((\\w+)\\)")
)

// Parse builds an Index from catalog text, applying the three formats
// from spec §4.1 in three separate passes: hyperlinks over the whole
// text, then "### file" headings with "- Line N" entries, then the
// table format with its own "## file" heading tracking. Every format
// is tried on every line, so a line that matches more than one format
// yields an entry for each. Malformed or empty lines are skipped
// silently — the caller logs at DEBUG if desired.
func Parse(content string, linkParser SourceLinkParser) Index {
	if linkParser == nil {
		linkParser = GitHubBlobLinkParser
	}
	index := make(Index)

	for _, m := range mdLinkPattern.FindAllStringSubmatch(content, -1) {
		symbol, url := m[1], m[2]
		file, line := linkParser(url)
		index.add(Entry{
			Symbol: symbol,
			Type:   inferType(symbol),
			File:   file,
			Line:   line,
			URL:    url,
		})
	}

	var currentFile string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if m := fileHeadingPattern.FindStringSubmatch(line); m != nil {
			currentFile = m[1]
			continue
		}
		if currentFile == "" {
			continue
		}
		if m := lineEntryPattern.FindStringSubmatch(line); m != nil {
			lineNum, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			index.add(Entry{
				Symbol: m[2],
				Type:   m[3],
				File:   currentFile,
				Line:   lineNum,
			})
		}
	}

	currentFile = ""
	scanner = bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "## Symbols") && !strings.HasPrefix(line, "## By") {
			currentFile = strings.TrimSpace(line[3:])
			continue
		}
		if currentFile == "" || !strings.HasPrefix(line, "|") || strings.HasPrefix(line, "| Symbol") {
			continue
		}
		parts := splitAndTrim(line, "|")
		if len(parts) < 5 {
			continue
		}
		symbol := parts[1]
		if symbol == "" || symbol == "---" {
			continue
		}
		lineNum, _ := strconv.Atoi(parts[3])
		index.add(Entry{
			Symbol:    symbol,
			Type:      parts[2],
			Line:      lineNum,
			Signature: parts[4],
			File:      currentFile,
		})
	}

	return index
}

func (idx Index) add(e Entry) {
	key := strings.ToLower(e.Symbol)
	idx[key] = append(idx[key], e)
}

func inferType(symbol string) string {
	switch {
	case symbol == "":
		return "unknown"
	case symbol[0] >= 'A' && symbol[0] <= 'Z':
		return "class"
	default:
		return "function"
	}
}

// FormatMarkdownLinks renders entries back out in the hyperlink
// format (one "[`Symbol`](url)" line per entry), ordered by
// (file, line) so re-parsing a formatted catalog reproduces the same
// entry set regardless of the input order. baseURL and commit build
// GitHub-style "/blob/" permalinks the default link parser round-trips.
func FormatMarkdownLinks(entries []Entry, baseURL, commit string) string {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].File != ordered[j].File {
			return ordered[i].File < ordered[j].File
		}
		return ordered[i].Line < ordered[j].Line
	})

	var b strings.Builder
	for _, e := range ordered {
		fmt.Fprintf(&b, "[`%s`](%s/blob/%s/%s#L%d)\n",
			e.Symbol, strings.TrimRight(baseURL, "/"), commit, e.File, e.Line)
	}
	return b.String()
}

func splitAndTrim(s, sep string) []string {
	raw := strings.Split(s, sep)
	out := make([]string, len(raw))
	for i, p := range raw {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
