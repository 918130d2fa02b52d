// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package anthropic implements internal/llm.Provider against a
// chat-completions-compatible endpoint (spec §6: POST
// /chat/completions, bearer auth, SSE streamed as
// choices[0].delta.{content,thinking}). The package name follows the
// teacher's llm/anthropic_llm.go, whose request-building and
// thinking-budget adjustment idiom this file carries over even though
// the wire shape here targets the OpenAI-style contract the pipeline's
// configured provider (GLM/ZAI) actually speaks.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/awnumar/memguard"

	"github.com/skillsfabric/core/internal/config"
	"github.com/skillsfabric/core/internal/httpx"
	"github.com/skillsfabric/core/internal/llm"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinkingParams struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type preserveThinking struct {
	EnableThinking bool `json:"enable_thinking"`
	ClearThinking  bool `json:"clear_thinking"`
}

type chatRequest struct {
	Model            string            `json:"model"`
	Messages         []chatMessage     `json:"messages"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	Temperature      *float32          `json:"temperature,omitempty"`
	TopP             *float32          `json:"top_p,omitempty"`
	TopK             *int              `json:"top_k,omitempty"`
	Stop             []string          `json:"stop,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	Thinking         *thinkingParams   `json:"thinking,omitempty"`
	PreserveThinking *preserveThinking `json:"preserve_thinking,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	ThinkingTokens   int `json:"thinking_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// reasoningField names are provider-specific; some OpenAI-compatible
// backends emit "thinking", others "reasoning_content" (spec §4.8).
// chatChoiceRaw captures both so decoding never drops either shape.
type chatChoiceRaw struct {
	Message struct {
		Content          string `json:"content"`
		Thinking         string `json:"thinking"`
		ReasoningContent string `json:"reasoning_content"`
	} `json:"message"`
	Delta struct {
		Content          string `json:"content"`
		Thinking         string `json:"thinking"`
		ReasoningContent string `json:"reasoning_content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type chatResponseRaw struct {
	Choices []chatChoiceRaw `json:"choices"`
	Usage   chatUsage       `json:"usage"`
	Error   *chatError      `json:"error,omitempty"`
}

// Provider is an llm.Provider backed by a chat/completions endpoint.
// The API key is sealed in a memguard Enclave rather than held as a
// plain string field, so a process memory dump or an accidental log of
// the Provider struct never exposes it — it is only ever decrypted for
// the span of building one request's Authorization header.
type Provider struct {
	client    *httpx.Client
	apiKey    *memguard.Enclave
	model     string
	baseURL   string
	useCoding bool
}

// New constructs a Provider from an already-loaded LLMConfig, building
// its own retrying httpx.Client. timeout bounds a single HTTP round
// trip before retry kicks in.
func New(cfg config.LLMConfig, retry config.RetryConfig, timeout time.Duration) *Provider {
	return NewWithClient(cfg, httpx.New("llm", retry, timeout))
}

// NewWithClient constructs a Provider over an already-built httpx.Client
// — useful when the caller wants the LLM provider and the search
// collaborators (internal/search) to share one retry client.
func NewWithClient(cfg config.LLMConfig, client *httpx.Client) *Provider {
	return &Provider{
		apiKey:    memguard.NewEnclave([]byte(cfg.APIKey)),
		model:     cfg.Model,
		baseURL:   cfg.BaseURL,
		useCoding: cfg.UseCoding,
		client:    client,
	}
}

// authHeader decrypts the sealed API key just long enough to format the
// bearer header, then destroys the buffer.
func (p *Provider) authHeader() (string, error) {
	buf, err := p.apiKey.Open()
	if err != nil {
		return "", fmt.Errorf("anthropic: unseal api key: %w", err)
	}
	defer buf.Destroy()
	return "Bearer " + string(buf.Bytes()), nil
}

// Complete implements llm.Provider. It always requests a non-streaming
// response; streaming is exposed separately via CompleteStream for
// callers that want token-by-token delivery (spec §6's SSE contract).
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (llm.RawResponse, error) {
	reqPayload := p.buildRequest(messages, params, false)

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return llm.RawResponse{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return llm.RawResponse{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	auth, err := p.authHeader()
	if err != nil {
		return llm.RawResponse{}, err
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("authorization", auth)
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := p.client.Do(ctx, httpReq)
	if err != nil {
		return llm.RawResponse{}, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.RawResponse{}, fmt.Errorf("anthropic: read response: %w", err)
	}

	var raw chatResponseRaw
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		slog.Debug("anthropic: malformed response body", "error", err, "snippet", truncate(string(bodyBytes), 200))
		return llm.RawResponse{Malformed: true}, nil
	}
	if raw.Error != nil {
		return llm.RawResponse{}, fmt.Errorf("anthropic: provider error: %s", raw.Error.Message)
	}
	if len(raw.Choices) == 0 {
		return llm.RawResponse{Malformed: true}, nil
	}

	choice := raw.Choices[0]
	thinking := choice.Message.Thinking
	if thinking == "" {
		thinking = choice.Message.ReasoningContent
	}

	return llm.RawResponse{
		Content:  choice.Message.Content,
		Thinking: thinking,
		Usage: llm.Usage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			ThinkingTokens:   raw.Usage.ThinkingTokens,
			TotalTokens:      raw.Usage.TotalTokens,
			ThinkingBudget:   params.ThinkingBudget,
		},
		Truncated: choice.FinishReason == "length",
	}, nil
}

// CompleteStream drains an SSE response, invoking onToken for content
// deltas and onThinking for reasoning deltas, and returns the final
// aggregated RawResponse (spec §6's streamed choices[0].delta shape).
func (p *Provider) CompleteStream(ctx context.Context, messages []llm.Message, params llm.GenerationParams, onToken, onThinking func(string) error) (llm.RawResponse, error) {
	reqPayload := p.buildRequest(messages, params, true)

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return llm.RawResponse{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return llm.RawResponse{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	auth, err := p.authHeader()
	if err != nil {
		return llm.RawResponse{}, err
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("authorization", auth)
	httpReq.Header.Set("accept", "text/event-stream")

	resp, err := p.client.Do(ctx, httpReq)
	if err != nil {
		return llm.RawResponse{}, err
	}
	defer resp.Body.Close()

	var content, thinking string
	var usage chatUsage
	var truncated bool

	scanErr := httpx.ScanSSE(resp.Body, func(ev httpx.SSEEvent) error {
		if ev.Done {
			return nil
		}
		var chunk chatResponseRaw
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return nil
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content += delta.Content
			if onToken != nil {
				if err := onToken(delta.Content); err != nil {
					return err
				}
			}
		}
		reasoning := delta.Thinking
		if reasoning == "" {
			reasoning = delta.ReasoningContent
		}
		if reasoning != "" {
			thinking += reasoning
			if onThinking != nil {
				if err := onThinking(reasoning); err != nil {
					return err
				}
			}
		}
		if chunk.Choices[0].FinishReason == "length" {
			truncated = true
		}
		if chunk.Usage.TotalTokens > 0 {
			usage = chunk.Usage
		}
		return nil
	})
	if scanErr != nil {
		return llm.RawResponse{}, scanErr
	}

	return llm.RawResponse{
		Content:  content,
		Thinking: thinking,
		Usage: llm.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			ThinkingTokens:   usage.ThinkingTokens,
			TotalTokens:      usage.TotalTokens,
			ThinkingBudget:   params.ThinkingBudget,
		},
		Truncated: truncated,
	}, nil
}

// buildRequest mirrors anthropic_llm.go's Chat: map generic messages,
// grow max_tokens to fit the thinking budget, and attach the
// thinking/preserve_thinking blocks spec §4.8 describes.
func (p *Provider) buildRequest(messages []llm.Message, params llm.GenerationParams, stream bool) chatRequest {
	apiMessages := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, chatMessage{Role: m.Role, Content: m.Content})
	}

	req := chatRequest{
		Model:       p.model,
		Messages:    apiMessages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		Stop:        params.Stop,
		Stream:      stream,
	}

	if params.EnableThinking {
		req.Thinking = &thinkingParams{Type: "enabled", BudgetTokens: params.ThinkingBudget}
		minRequired := params.ThinkingBudget + 2048
		if req.MaxTokens < minRequired {
			slog.Debug("anthropic: growing max_tokens to fit thinking budget", "old", req.MaxTokens, "new", minRequired)
			req.MaxTokens = minRequired
		}
		if params.PreserveThinking {
			req.PreserveThinking = &preserveThinking{EnableThinking: true, ClearThinking: false}
		}
	} else if req.Thinking == nil {
		req.Thinking = &thinkingParams{Type: "disabled"}
	}

	return req
}

// endpoint picks the coding-plan path when the account was provisioned
// for it (ZAI's GLM coding plan serves a distinct path from its
// general chat plan, both OpenAI-compatible).
func (p *Provider) endpoint() string {
	if p.useCoding {
		return p.baseURL + "/coding/chat/completions"
	}
	return p.baseURL + "/chat/completions"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
