// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package draft implements internal/workflow.Drafter by prompting an
// internal/llm.Client for prose, keeping the snippet in the prompt so
// the model has no reason to invent behavior the symbol doesn't show.
package draft

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/prompts"

	"github.com/skillsfabric/core/internal/llm"
	"github.com/skillsfabric/core/internal/workflow"
)

// LLMDrafter backs `generate --factory`: one conversation turn per
// proven link, grounded entirely in the mined snippet. Conversation
// state (including preserved thinking) lives in per-worker llm.Agents
// drawn from a pool — an Agent is single-threaded by contract, so
// parallel write-stage workers each converse through their own.
type LLMDrafter struct {
	Client *llm.Client
	Model  string
	Params llm.GenerationParams

	agents sync.Pool
}

// New constructs an LLMDrafter. params.MaxTokens defaults to 512 when
// left zero.
func New(client *llm.Client, model string, params llm.GenerationParams) *LLMDrafter {
	if params.MaxTokens == 0 {
		params.MaxTokens = 512
	}
	d := &LLMDrafter{Client: client, Model: model, Params: params}
	d.agents.New = func() any {
		return llm.NewAgent(client, systemPrompt, d.Params)
	}
	return d
}

// maxConversationTurns bounds a pooled agent's history; past it the
// conversation restarts from the system prompt rather than dragging an
// ever-growing context into every draft.
const maxConversationTurns = 40

const systemPrompt = `You write short, precise explanations of source code for a developer skill library.
Only describe what the given snippet actually shows. Do not invent parameters, return values,
error conditions, or call sites the snippet does not contain. If the snippet is insufficient to
answer fully, say what is visible and stop there.`

// userPromptTemplate fills six named fields, routed through
// langchaingo's prompt templating so the
// variable list is named and validated (Format rejects a call missing
// one) instead of positional %s verbs that silently shift if the
// argument order ever drifts.
var userPromptTemplate = prompts.NewPromptTemplate(
	"Concept: {{.concept}} — {{.description}}\n\n"+
		"Symbol: {{.symbol}} ({{.file}}:{{.line}})\n\n"+
		"Source:\n```\n{{.snippet}}\n```\n\n"+
		"Explain what {{.symbol}} does and how it should be used, citing only what the source shows.",
	[]string{"concept", "description", "symbol", "file", "line", "snippet"},
)

// Draft asks the configured provider to explain symbol using only
// snippet as grounding, returning an error the caller should treat as
// "fall back to the template" rather than fatal.
func (d *LLMDrafter) Draft(ctx context.Context, concept workflow.Concept, symbol, file string, line int, snippet string) (string, error) {
	if d == nil || d.Client == nil {
		return "", fmt.Errorf("draft: no client configured")
	}
	user, err := userPromptTemplate.Format(map[string]any{
		"concept":     concept.Name,
		"description": concept.Description,
		"symbol":      symbol,
		"file":        file,
		"line":        line,
		"snippet":     snippet,
	})
	if err != nil {
		return "", fmt.Errorf("draft: formatting prompt: %w", err)
	}
	agent := d.agents.Get().(*llm.Agent)
	defer d.agents.Put(agent)
	if len(agent.History()) > maxConversationTurns {
		agent.Reset()
	}

	resp, err := agent.Ask(ctx, user)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
