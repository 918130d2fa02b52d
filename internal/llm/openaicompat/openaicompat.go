// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package openaicompat implements internal/llm.Provider over
// go-openai, for backends that speak the plain chat-completions
// contract with no reasoning/thinking channel (spec §4.8: thinking
// is "disabled" for these providers, so generate-with-fallback has
// nothing to fall back from — every call succeeds or returns the
// provider's own error). Grounded on the teacher's
// services/llm/openai_llm.go, which wraps the same SDK the same way.
package openaicompat

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skillsfabric/core/internal/llm"
)

// Provider wraps go-openai's client as a thinking-less llm.Provider.
type Provider struct {
	client *openai.Client
	model  string
}

// New builds a Provider. baseURL may be empty to use OpenAI's default
// endpoint, or set to target any OpenAI-compatible backend.
func New(apiKey, model, baseURL string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: openai.NewClientWithConfig(cfg), model: model}
}

// Complete implements internal/llm.Provider.
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (llm.RawResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return llm.RawResponse{}, fmt.Errorf("openaicompat: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.RawResponse{Malformed: true}, nil
	}

	choice := resp.Choices[0]
	return llm.RawResponse{
		Content: choice.Message.Content,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Truncated: choice.FinishReason == openai.FinishReasonLength,
	}, nil
}

func toOpenAIMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
