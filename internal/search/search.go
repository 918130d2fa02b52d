// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search implements the pluggable web-search evidence
// collaborators named in spec §1/§6: Perplexity sonar and Brave Web
// Search. Neither is part of the zero-hallucination guarantee surface
// — they feed the research/search CLI commands, not the DDR — so both
// clients return whatever the provider says without any grounding
// claim of their own.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/skillsfabric/core/internal/config"
	"github.com/skillsfabric/core/internal/httpx"
)

// SearchContextSize controls how much supporting context Perplexity
// attaches to its answer (spec §6).
type SearchContextSize string

const (
	ContextLow    SearchContextSize = "low"
	ContextMedium SearchContextSize = "medium"
	ContextHigh   SearchContextSize = "high"
)

// PerplexityRequest mirrors the sonar chat/completions request shape
// (spec §6).
type PerplexityRequest struct {
	Query                  string
	Model                  string
	ReturnCitations        bool
	ReturnRelatedQuestions bool
	SearchDomainFilter     []string
	SearchRecencyFilter    string
	SearchContextSize      SearchContextSize
}

// Citation is either a bare URL or a provider-supplied detail object
// (spec §6: "citations: [url|{url,title,snippet}]").
type Citation struct {
	URL     string
	Title   string
	Snippet string
}

// RelatedQuestion is either a bare string or a scored object (spec §6).
type RelatedQuestion struct {
	Question       string
	RelevanceScore float64
}

// PerplexityResponse is the parsed sonar reply.
type PerplexityResponse struct {
	Content          string
	Citations        []Citation
	RelatedQuestions []RelatedQuestion
	PromptTokens     int
	CompletionTokens int
}

// PerplexityClient wraps the Perplexity sonar chat/completions
// endpoint behind internal/httpx's shared retry policy.
type PerplexityClient struct {
	http    *httpx.Client
	apiKey  string
	baseURL string
}

// NewPerplexityClient constructs a client. baseURL defaults to the
// public API root when empty.
func NewPerplexityClient(apiKey, baseURL string, retry config.RetryConfig, timeout time.Duration) *PerplexityClient {
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	return &PerplexityClient{
		http:    httpx.New("perplexity", retry, timeout).WithRateLimit(1, 2),
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

type perplexityWireRequest struct {
	Model                  string              `json:"model"`
	Messages               []perplexityMessage `json:"messages"`
	ReturnCitations        bool                `json:"return_citations,omitempty"`
	ReturnRelatedQuestions bool                `json:"return_related_questions,omitempty"`
	SearchDomainFilter     []string            `json:"search_domain_filter,omitempty"`
	SearchRecencyFilter    string              `json:"search_recency_filter,omitempty"`
	SearchContextSize      string              `json:"search_context_size,omitempty"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityWireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	// Citations and RelatedQuestions can each be either a list of
	// strings or a list of objects (spec §6); json.RawMessage defers
	// the decision to parseCitations/parseRelated.
	Citations        []json.RawMessage `json:"citations"`
	RelatedQuestions []json.RawMessage `json:"related_questions"`
	Usage            struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Search performs one sonar chat/completions call.
func (c *PerplexityClient) Search(ctx context.Context, req PerplexityRequest) (PerplexityResponse, error) {
	model := req.Model
	if model == "" {
		model = "sonar"
	}
	wire := perplexityWireRequest{
		Model:                  model,
		Messages:               []perplexityMessage{{Role: "user", Content: req.Query}},
		ReturnCitations:        req.ReturnCitations,
		ReturnRelatedQuestions: req.ReturnRelatedQuestions,
		SearchDomainFilter:     req.SearchDomainFilter,
		SearchRecencyFilter:    req.SearchRecencyFilter,
		SearchContextSize:      string(req.SearchContextSize),
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return PerplexityResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return PerplexityResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return PerplexityResponse{}, err
	}
	defer resp.Body.Close()

	var wireResp perplexityWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return PerplexityResponse{}, fmt.Errorf("search: decode perplexity response: %w", err)
	}

	out := PerplexityResponse{
		PromptTokens:     wireResp.Usage.PromptTokens,
		CompletionTokens: wireResp.Usage.CompletionTokens,
		Citations:        parseCitations(wireResp.Citations),
		RelatedQuestions: parseRelated(wireResp.RelatedQuestions),
	}
	if len(wireResp.Choices) > 0 {
		out.Content = wireResp.Choices[0].Message.Content
	}
	return out, nil
}

func parseCitations(raw []json.RawMessage) []Citation {
	out := make([]Citation, 0, len(raw))
	for _, r := range raw {
		var asString string
		if err := json.Unmarshal(r, &asString); err == nil {
			out = append(out, Citation{URL: asString})
			continue
		}
		var asObj struct {
			URL     string `json:"url"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		}
		if err := json.Unmarshal(r, &asObj); err == nil {
			out = append(out, Citation{URL: asObj.URL, Title: asObj.Title, Snippet: asObj.Snippet})
		}
	}
	return out
}

func parseRelated(raw []json.RawMessage) []RelatedQuestion {
	out := make([]RelatedQuestion, 0, len(raw))
	for _, r := range raw {
		var asString string
		if err := json.Unmarshal(r, &asString); err == nil {
			out = append(out, RelatedQuestion{Question: asString})
			continue
		}
		var asObj struct {
			Question       string  `json:"question"`
			RelevanceScore float64 `json:"relevance_score"`
		}
		if err := json.Unmarshal(r, &asObj); err == nil {
			out = append(out, RelatedQuestion{Question: asObj.Question, RelevanceScore: asObj.RelevanceScore})
		}
	}
	return out
}

// Freshness is Brave's recency filter enumeration (spec §6).
type Freshness string

const (
	FreshnessDay   Freshness = "pd"
	FreshnessWeek  Freshness = "pw"
	FreshnessMonth Freshness = "pm"
	FreshnessYear  Freshness = "py"
)

// BraveRequest mirrors the GET /web/search parameter set (spec §6).
type BraveRequest struct {
	Query        string // max 400 chars; Search truncates longer queries
	Count        int    // max 20
	Freshness    Freshness
	SafeSearch   string
	Country      string
	SearchLang   string
	UILang       string
	UseNewsIndex bool // true routes to /news/search instead of /web/search
}

// BraveResult is one entry of web.results[] (spec §6).
type BraveResult struct {
	Title          string
	URL            string
	Description    string
	Age            string
	Language       string
	FamilyFriendly bool
	ExtraSnippets  []string
}

// BraveClient wraps the Brave Search API.
type BraveClient struct {
	http    *httpx.Client
	apiKey  string
	baseURL string
}

// NewBraveClient constructs a client against the public Brave API.
func NewBraveClient(apiKey string, retry config.RetryConfig, timeout time.Duration) *BraveClient {
	return &BraveClient{
		http:    httpx.New("brave", retry, timeout).WithRateLimit(1, 2),
		apiKey:  apiKey,
		baseURL: "https://api.search.brave.com/res/v1",
	}
}

type braveWireResponse struct {
	Web struct {
		Results []struct {
			Title          string   `json:"title"`
			URL            string   `json:"url"`
			Description    string   `json:"description"`
			Age            string   `json:"age"`
			Language       string   `json:"language"`
			FamilyFriendly bool     `json:"family_friendly"`
			ExtraSnippets  []string `json:"extra_snippets"`
		} `json:"results"`
	} `json:"web"`
}

// Search performs one Brave web (or news, per UseNewsIndex) search.
func (c *BraveClient) Search(ctx context.Context, req BraveRequest) ([]BraveResult, error) {
	query := req.Query
	if len(query) > 400 {
		query = query[:400]
	}
	count := req.Count
	if count <= 0 {
		count = 10
	}
	if count > 20 {
		count = 20
	}

	path := "/web/search"
	if req.UseNewsIndex {
		path = "/news/search"
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	if req.Freshness != "" {
		params.Set("freshness", string(req.Freshness))
	}
	if req.SafeSearch != "" {
		params.Set("safesearch", req.SafeSearch)
	}
	if req.Country != "" {
		params.Set("country", req.Country)
	}
	if req.SearchLang != "" {
		params.Set("search_lang", req.SearchLang)
	}
	if req.UILang != "" {
		params.Set("ui_lang", req.UILang)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Subscription-Token", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire braveWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("search: decode brave response: %w", err)
	}

	out := make([]BraveResult, 0, len(wire.Web.Results))
	for _, r := range wire.Web.Results {
		out = append(out, BraveResult{
			Title: r.Title, URL: r.URL, Description: r.Description,
			Age: r.Age, Language: r.Language, FamilyFriendly: r.FamilyFriendly,
			ExtraSnippets: r.ExtraSnippets,
		})
	}
	return out, nil
}
