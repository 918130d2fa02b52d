// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfabric/core/internal/config"
)

func testRetry() config.RetryConfig {
	return config.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond}
}

func TestPerplexityClient_Search_ParsesMixedCitationShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "StateGraph builds flows."}},
			},
			"citations": []any{
				"https://example.com/a",
				map[string]any{"url": "https://example.com/b", "title": "B", "snippet": "snip"},
			},
			"related_questions": []any{
				"what is a flow?",
				map[string]any{"question": "how to build one?", "relevance_score": 0.9},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20},
		})
	}))
	defer srv.Close()

	client := NewPerplexityClient("test-key", srv.URL, testRetry(), 5*time.Second)
	resp, err := client.Search(context.Background(), PerplexityRequest{Query: "StateGraph", ReturnCitations: true})
	require.NoError(t, err)

	assert.Equal(t, "StateGraph builds flows.", resp.Content)
	require.Len(t, resp.Citations, 2)
	assert.Equal(t, "https://example.com/a", resp.Citations[0].URL)
	assert.Equal(t, "B", resp.Citations[1].Title)
	require.Len(t, resp.RelatedQuestions, 2)
	assert.Equal(t, "what is a flow?", resp.RelatedQuestions[0].Question)
	assert.Equal(t, 0.9, resp.RelatedQuestions[1].RelevanceScore)
	assert.Equal(t, 10, resp.PromptTokens)
}

func TestBraveClient_Search_CapsCountAndSetsAuthHeader(t *testing.T) {
	var gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "brave-token", r.Header.Get("X-Subscription-Token"))
		gotCount = r.URL.Query().Get("count")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"web": map[string]any{
				"results": []map[string]any{
					{"title": "Go docs", "url": "https://go.dev", "description": "lang", "family_friendly": true},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewBraveClient("brave-token", testRetry(), 5*time.Second)
	client.baseURL = srv.URL

	results, err := client.Search(context.Background(), BraveRequest{Query: "golang", Count: 50})
	require.NoError(t, err)
	assert.Equal(t, "20", gotCount)
	require.Len(t, results, 1)
	assert.Equal(t, "Go docs", results[0].Title)
	assert.True(t, results[0].FamilyFriendly)
}
