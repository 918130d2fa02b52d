// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ddr implements the Direct Dependency Retriever: a free-text
// query resolves to validated source references only. An element that
// cannot be proven to exist in source is never returned — the
// zero-hallucination guarantee the rest of the pipeline depends on.
package ddr

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skillsfabric/core/internal/catalog"
	"github.com/skillsfabric/core/internal/hallm"
	"github.com/skillsfabric/core/internal/validate"
)

// SymbolType mirrors spec §3's SourceRef.symbol_type enumeration.
type SymbolType string

const (
	SymbolClass    SymbolType = "class"
	SymbolFunction SymbolType = "function"
	SymbolMethod   SymbolType = "method"
	SymbolVariable SymbolType = "variable"
	SymbolImport   SymbolType = "import"
	SymbolUnknown  SymbolType = "unknown"
)

// SourceRef is a claimed-or-verified location (spec §3). Validated may
// only be set true by the Multi-Source Validator or direct file/line
// proof; downstream consumers must reject a SourceRef otherwise.
type SourceRef struct {
	SymbolName string
	SymbolType SymbolType
	FilePath   string
	LineNumber int
	EndLine    int
	Signature  string
	Docstring  string
	Validated  bool
}

// Citation renders the human-readable "file:line" form.
func (r SourceRef) Citation() string {
	return r.FilePath + ":" + strconv.Itoa(r.LineNumber)
}

// CodeElement is a SourceRef plus the extracted content of its
// definition (spec §3).
type CodeElement struct {
	SourceRef SourceRef
	Content   string
	Context   string
}

// IsValid mirrors CodeElement.is_valid == source_ref.validated.
func (e CodeElement) IsValid() bool { return e.SourceRef.Validated }

// Result is the DDRResult from spec §4.4.
type Result struct {
	Query             string
	Elements          []CodeElement
	ValidatedCount    int
	RejectedCount     int
	HallucinationRate float64
}

// Success mirrors success <=> validated_count > 0 && hallucination_rate < 0.02.
func (r Result) Success() bool {
	return r.ValidatedCount > 0 && r.HallucinationRate < 0.02
}

// Recorder is notified once per Retrieve call with its outcome, so a
// metrics backend can track retrieval success/failure independently of
// Hall_m's own counters.
type Recorder interface {
	RecordDDRRetrieval(outcome string)
}

// Retriever is the Direct Dependency Retriever. It is safe to construct
// once per pipeline run; the symbol index is immutable once loaded and
// is read-shared without locks across concurrent retrieve calls.
type Retriever struct {
	index     catalog.Index
	repoPath  string
	validator *validate.Validator
	useLSP    bool
	metric    *hallm.HallMetric
	recorder  Recorder
}

// New constructs a Retriever over an already-parsed catalog index. repoPath
// may be empty, in which case validation falls back to the weaker
// catalog-provenance check described in spec §4.4 step 2.
func New(index catalog.Index, repoPath string, validator *validate.Validator, metric *hallm.HallMetric) *Retriever {
	return &Retriever{index: index, repoPath: repoPath, validator: validator, metric: metric}
}

// SetRecorder attaches a metrics Recorder; nil disables reporting.
func (r *Retriever) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Retrieve implements spec §4.4's four-step algorithm: search, validate,
// stop at maxResults validated, record against Hall_m.
func (r *Retriever) Retrieve(ctx context.Context, query string, maxResults int, failOnHallMExceed bool) (Result, error) {
	candidates := r.search(query)

	var validated []CodeElement
	rejected := 0

	overFetch := maxResults * 2
	if overFetch > len(candidates) {
		overFetch = len(candidates)
	}

	for _, candidate := range candidates[:overFetch] {
		element, ok := r.validateAndExtract(ctx, candidate)
		if ok {
			validated = append(validated, element)
			if len(validated) >= maxResults {
				break
			}
		} else {
			rejected++
		}
	}

	total := len(validated) + rejected
	rate := 0.0
	if total > 0 {
		rate = float64(rejected) / float64(total)
	}

	result := Result{
		Query:             query,
		Elements:          validated,
		ValidatedCount:    len(validated),
		RejectedCount:     rejected,
		HallucinationRate: rate,
	}

	if r.recorder != nil {
		outcome := "success"
		if !result.Success() {
			outcome = "failure"
		}
		r.recorder.RecordDDRRetrieval(outcome)
	}

	if r.metric != nil {
		if err := r.metric.RecordAndCheck(len(validated), rejected, "ddr_retrieve", query, failOnHallMExceed); err != nil {
			return result, err
		}
	}

	return result, nil
}

// search implements spec §4.4 step 1's three priority buckets,
// concatenated in that order with within-bucket order preserved.
func (r *Retriever) search(query string) []catalog.Entry {
	queryLower := strings.ToLower(query)
	var queryParts []string
	for _, p := range strings.Fields(queryLower) {
		if len(p) > 2 {
			queryParts = append(queryParts, p)
		}
	}

	var exact, partial, word []catalog.Entry

	for symbolName, entries := range r.index {
		if symbolName == queryLower {
			exact = append(exact, entries...)
			continue
		}
		if strings.Contains(symbolName, queryLower) {
			partial = append(partial, entries...)
			continue
		}
		for _, qp := range queryParts {
			if strings.Contains(symbolName, qp) {
				word = append(word, entries...)
				break
			}
		}
	}

	result := make([]catalog.Entry, 0, len(exact)+len(partial)+len(word))
	result = append(result, exact...)
	result = append(result, partial...)
	result = append(result, word...)
	return result
}

// validateAndExtract implements spec §4.4 step 2: consult the
// validator when a repository path resolves the candidate file, else
// accept on the weaker "non-zero line and non-empty file" provenance
// check.
func (r *Retriever) validateAndExtract(ctx context.Context, candidate catalog.Entry) (CodeElement, bool) {
	ref := SourceRef{
		SymbolName: candidate.Symbol,
		SymbolType: symbolTypeOf(candidate.Type),
		FilePath:   candidate.File,
		LineNumber: candidate.Line,
		Signature:  candidate.Signature,
	}

	if r.repoPath != "" && candidate.File != "" {
		fullPath := filepath.Join(r.repoPath, candidate.File)
		if content, err := os.ReadFile(fullPath); err == nil {
			if r.validator != nil {
				verdict := r.validator.Validate(ctx, candidate.Symbol, fullPath, candidate.Line, string(ref.SymbolType), content)
				if verdict.IsValid {
					ref.Validated = true
					text, context := extractWindow(content, candidate.Line)
					return CodeElement{SourceRef: ref, Content: text, Context: context}, true
				}
				return CodeElement{}, false
			}
		}
	}

	// Weaker evidence: a catalog entry with a traceable file and line
	// is trusted as already extracted from real source.
	if candidate.File != "" && candidate.Line > 0 {
		ref.Validated = true
		return CodeElement{
			SourceRef: ref,
			Content:   "# " + candidate.Symbol + "\n# Location: " + candidate.File + ":" + strconv.Itoa(candidate.Line),
		}, true
	}

	return CodeElement{}, false
}

func extractWindow(content []byte, line int) (string, string) {
	lines := strings.Split(string(content), "\n")
	if line <= 0 || line > len(lines) {
		return "", ""
	}
	startIdx := line - 1
	endIdx := startIdx + 1

	indent := leadingWhitespace(lines[startIdx])
	limit := startIdx + 100
	if limit > len(lines) {
		limit = len(lines)
	}
	for i := startIdx + 1; i < limit; i++ {
		l := lines[i]
		trimmed := strings.TrimSpace(l)
		if trimmed != "" && !strings.HasPrefix(l, indent+" ") && !strings.HasPrefix(l, indent+"\t") {
			if !strings.HasPrefix(trimmed, "#") {
				endIdx = i
				break
			}
		}
		endIdx = i + 1
	}

	content1 := strings.Join(lines[startIdx:endIdx], "\n")
	ctxStart := startIdx - 5
	if ctxStart < 0 {
		ctxStart = 0
	}
	context := strings.Join(lines[ctxStart:startIdx], "\n")
	return content1, context
}

func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

func symbolTypeOf(t string) SymbolType {
	switch t {
	case "class":
		return SymbolClass
	case "function":
		return SymbolFunction
	case "method":
		return SymbolMethod
	case "variable":
		return SymbolVariable
	case "import":
		return SymbolImport
	default:
		return SymbolUnknown
	}
}
