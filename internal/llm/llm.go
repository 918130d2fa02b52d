// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides a provider-agnostic chat-completion client that
// treats reasoning ("thinking") as first-class output: it is tracked
// independently of content, budgeted, and falls back to a
// thinking-disabled retry when the reasoning channel misbehaves.
//
// # Thread Safety
//
// Client is safe for concurrent use; it holds no mutable conversation
// state of its own.
package llm

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// GenerationParams controls one generate call (spec §4.8's public
// contract).
type GenerationParams struct {
	Temperature        *float32
	TopK               *int
	TopP               *float32
	MaxTokens          int
	Stop               []string
	EnableThinking     bool
	PreserveThinking   bool
	ThinkingBudget     int
	AutoIncreaseBudget bool
	Stream             bool
}

// FailureType is one of the six ways a thinking request can misbehave
// (spec §4.8).
type FailureType string

const (
	FailureNone              FailureType = ""
	FailureBudgetExhausted   FailureType = "BUDGET_EXHAUSTED"
	FailureEmptyThinking     FailureType = "EMPTY_THINKING"
	FailureAPIError          FailureType = "API_ERROR"
	FailureTimeout           FailureType = "TIMEOUT"
	FailureMalformedResponse FailureType = "MALFORMED_RESPONSE"
	FailureTruncatedOutput   FailureType = "TRUNCATED_OUTPUT"
)

// ReasoningQuality classifies how well a thinking request performed.
type ReasoningQuality string

const (
	QualityFailed    ReasoningQuality = "failed"
	QualityDegraded  ReasoningQuality = "degraded"
	QualityGood      ReasoningQuality = "good"
	QualityExcellent ReasoningQuality = "excellent"
)

// maxAutoBudget is the ceiling generate-with-fallback's budget-doubling
// retry may not exceed (spec §4.8).
const maxAutoBudget = 64000

// exhaustionRatio is the fraction of budget at which thinking is
// considered exhausted (spec §4.8: thinking_tokens >= 0.95 * budget).
const exhaustionRatio = 0.95

// Usage tracks token consumption across prompt, completion, and
// thinking channels.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ThinkingTokens   int
	TotalTokens      int
	ThinkingBudget   int
}

// BudgetUsedPercent is the share of the thinking budget consumed, in
// [0, 100+]. Returns 0 when no budget was requested.
func (u Usage) BudgetUsedPercent() float64 {
	if u.ThinkingBudget <= 0 {
		return 0
	}
	return 100 * float64(u.ThinkingTokens) / float64(u.ThinkingBudget)
}

// Exhausted mirrors spec §4.8: thinking_tokens >= 0.95 * budget.
func (u Usage) Exhausted() bool {
	if u.ThinkingBudget <= 0 {
		return false
	}
	return float64(u.ThinkingTokens) >= exhaustionRatio*float64(u.ThinkingBudget)
}

// Response is the parsed result of a generate call, with thinking
// promoted to a first-class field per spec §4.8's parse rules.
type Response struct {
	Content          string
	Thinking         string
	Usage            Usage
	UsedFallback     bool
	FailureType      FailureType
	ReasoningQuality ReasoningQuality
}

// RawResponse is what a Provider returns before reasoning-quality
// classification. Malformed and Truncated are the provider's own
// detection of a broken or cut-off response body.
type RawResponse struct {
	Content   string
	Thinking  string
	Usage     Usage
	Malformed bool
	Truncated bool
}

// Provider is a single backend's raw completion call (Claude, GLM,
// OpenAI, ...). Implementations perform exactly one HTTP round trip
// (or SSE drain) per call; retry and fallback policy live in Client.
type Provider interface {
	Complete(ctx context.Context, messages []Message, params GenerationParams) (RawResponse, error)
}

// CostRates are the configuration-supplied per-token price constants
// from spec §4.8's cost model; rate constants are configuration, not
// contract, so callers that don't need cost tracking may leave both at
// zero.
type CostRates struct {
	InputPerToken  float64
	OutputPerToken float64
}

// Cost computes input_cost + output_cost per spec §4.8.
func (r CostRates) Cost(u Usage) float64 {
	return float64(u.PromptTokens)*r.InputPerToken + float64(u.CompletionTokens+u.ThinkingTokens)*r.OutputPerToken
}

// Client wraps a Provider with the generate-with-fallback policy and
// optional Prometheus counters.
type Client struct {
	provider        Provider
	fallback        Provider
	thinkingCounter *prometheus.CounterVec
}

// New constructs a Client. counter may be nil; when set, it must carry
// a single "result" label (the skillsfabric_llm_thinking_requests_total
// collector from internal/obsv).
func New(provider Provider, counter *prometheus.CounterVec) *Client {
	return &Client{provider: provider, thinkingCounter: counter}
}

// SetFallbackProvider routes GenerateWithFallback's thinking-disabled
// reissue to a separate backend (typically a plain chat-completions
// provider with no reasoning channel). Nil keeps the primary provider
// for fallback calls.
func (c *Client) SetFallbackProvider(p Provider) {
	c.fallback = p
}

// Generate is the non-fallback single-shot call: whatever the provider
// returns is returned as-is, classified but not retried.
func (c *Client) Generate(ctx context.Context, messages []Message, params GenerationParams) (Response, error) {
	raw, err := c.provider.Complete(ctx, messages, params)
	if err != nil {
		return Response{}, err
	}
	failure := classifyFailure(raw, nil, params)
	return classify(raw, params, false, failure), nil
}

// GenerateWithFallback implements spec §4.8's generate-with-fallback
// algorithm: attempt the thinking request once; on BUDGET_EXHAUSTED
// with AutoIncreaseBudget, retry once with double the budget (capped
// at 64000); any other failure (or a still-failing doubled retry)
// re-issues the same messages with thinking disabled and marks
// used_fallback. Per invariant 10, this either returns a response with
// non-empty content or returns an error.
func (c *Client) GenerateWithFallback(ctx context.Context, messages []Message, params GenerationParams) (Response, error) {
	c.count("requested")

	raw, err := c.provider.Complete(ctx, messages, params)
	failure := classifyFailure(raw, err, params)

	if failure == FailureBudgetExhausted && params.AutoIncreaseBudget {
		retryParams := params
		retryParams.ThinkingBudget = minInt(params.ThinkingBudget*2, maxAutoBudget)
		raw, err = c.provider.Complete(ctx, messages, retryParams)
		failure = classifyFailure(raw, err, retryParams)
		params = retryParams
	}

	if failure == FailureNone {
		resp := classify(raw, params, false, FailureNone)
		c.count("success")
		return resp, nil
	}

	c.count("failed")
	c.count(string(failureMetricLabel(failure)))

	fallbackParams := params
	fallbackParams.EnableThinking = false
	fallbackProvider := c.provider
	if c.fallback != nil {
		fallbackProvider = c.fallback
	}
	raw, err = fallbackProvider.Complete(ctx, messages, fallbackParams)
	if err != nil {
		return Response{}, err
	}
	if raw.Content == "" {
		return Response{}, errors.New("llm: fallback request returned empty content")
	}

	resp := classify(raw, fallbackParams, true, failure)
	c.count("fallback")
	return resp, nil
}

func (c *Client) count(result string) {
	if c.thinkingCounter == nil {
		return
	}
	c.thinkingCounter.WithLabelValues(result).Inc()
}

func failureMetricLabel(f FailureType) string {
	switch f {
	case FailureBudgetExhausted:
		return "budget_exhausted"
	case FailureEmptyThinking:
		return "empty_thinking"
	case FailureAPIError:
		return "api_error"
	case FailureTimeout:
		return "timeout"
	case FailureMalformedResponse:
		return "malformed_response"
	case FailureTruncatedOutput:
		return "truncated_output"
	default:
		return "unknown"
	}
}

// timeouter is implemented by errors that know whether they represent
// a timeout (internal/errs.ExternalServiceError among them).
type timeouter interface{ Timeout() bool }

func classifyFailure(raw RawResponse, err error, params GenerationParams) FailureType {
	if err != nil {
		var t timeouter
		if errors.As(err, &t) && t.Timeout() {
			return FailureTimeout
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return FailureTimeout
		}
		return FailureAPIError
	}
	if raw.Malformed {
		return FailureMalformedResponse
	}
	if raw.Truncated {
		return FailureTruncatedOutput
	}
	if params.EnableThinking {
		if raw.Usage.Exhausted() {
			return FailureBudgetExhausted
		}
		if raw.Thinking == "" {
			return FailureEmptyThinking
		}
	}
	return FailureNone
}

// classify builds the caller-facing Response, applying the "promote
// thinking into content when content is empty" quirk and the
// reasoning-quality table from spec §4.8.
func classify(raw RawResponse, params GenerationParams, usedFallback bool, originalFailure FailureType) Response {
	content := raw.Content
	if content == "" && raw.Thinking != "" {
		content = raw.Thinking
	}

	resp := Response{
		Content:      content,
		Thinking:     raw.Thinking,
		Usage:        raw.Usage,
		UsedFallback: usedFallback,
		FailureType:  originalFailure,
	}
	resp.ReasoningQuality = reasoningQuality(resp, params)
	return resp
}

func reasoningQuality(resp Response, params GenerationParams) ReasoningQuality {
	if resp.UsedFallback || !params.EnableThinking || resp.Thinking == "" {
		return QualityFailed
	}
	if resp.Usage.Exhausted() {
		return QualityDegraded
	}
	if resp.Usage.BudgetUsedPercent() > 80 {
		return QualityGood
	}
	return QualityExcellent
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
