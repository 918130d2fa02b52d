// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "context"

// Agent owns one conversation's state: the message history, the
// accumulated thinking tokens, and the fallback count. Preserved
// thinking is modeled exactly as spec §9 directs — conversation state
// owned by a single agent instance, never shared across workers; a
// pool of parallel writers holds a pool of separate Agents.
//
// Agent is NOT safe for concurrent use.
type Agent struct {
	client         *Client
	params         GenerationParams
	messages       []Message
	thinkingTokens int
	fallbacks      int
}

// NewAgent starts a conversation. system, if non-empty, seeds the
// history with a system turn. PreserveThinking is forced on so the
// provider retains reasoning across the agent's turns.
func NewAgent(client *Client, system string, params GenerationParams) *Agent {
	params.PreserveThinking = true
	a := &Agent{client: client, params: params}
	if system != "" {
		a.messages = append(a.messages, Message{Role: "system", Content: system})
	}
	return a
}

// Ask appends a user turn, generates with fallback over the full
// history, and appends the assistant's reply. The user turn is kept in
// the history even when the call fails, so a retry resumes the same
// conversation rather than silently dropping the question.
func (a *Agent) Ask(ctx context.Context, user string) (Response, error) {
	a.messages = append(a.messages, Message{Role: "user", Content: user})

	resp, err := a.client.GenerateWithFallback(ctx, a.messages, a.params)
	if err != nil {
		return Response{}, err
	}

	a.messages = append(a.messages, Message{Role: "assistant", Content: resp.Content})
	a.thinkingTokens += resp.Usage.ThinkingTokens
	if resp.UsedFallback {
		a.fallbacks++
	}
	return resp, nil
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []Message {
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// TotalThinkingTokens is the sum of thinking tokens across every turn.
func (a *Agent) TotalThinkingTokens() int { return a.thinkingTokens }

// FallbackCount is how many turns degraded to the thinking-disabled
// path.
func (a *Agent) FallbackCount() int { return a.fallbacks }

// Reset clears the conversation, keeping any system turn.
func (a *Agent) Reset() {
	var system []Message
	if len(a.messages) > 0 && a.messages[0].Role == "system" {
		system = a.messages[:1]
	}
	a.messages = system
	a.thinkingTokens = 0
	a.fallbacks = 0
}
