// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package draft

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/skillsfabric/core/internal/llm"
	"github.com/skillsfabric/core/internal/workflow"
)

type fakeProvider struct {
	content string
	err     error
}

func (p fakeProvider) Complete(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (llm.RawResponse, error) {
	if p.err != nil {
		return llm.RawResponse{}, p.err
	}
	return llm.RawResponse{Content: p.content}, nil
}

func TestDraftReturnsProviderContent(t *testing.T) {
	client := llm.New(fakeProvider{content: "Greet concatenates a greeting with name."}, nil)
	d := New(client, "test-model", llm.GenerationParams{})

	prose, err := d.Draft(context.Background(), workflow.Concept{Name: "Greet"}, "Greet", "sample.go", 4, "func Greet(name string) string {\n\treturn \"hello, \" + name\n}")
	if err != nil {
		t.Fatalf("Draft returned error: %v", err)
	}
	if !strings.Contains(prose, "Greet") {
		t.Errorf("expected drafted prose to mention the symbol, got %q", prose)
	}
}

func TestDraftPropagatesProviderError(t *testing.T) {
	client := llm.New(fakeProvider{err: errors.New("boom")}, nil)
	d := New(client, "test-model", llm.GenerationParams{})

	if _, err := d.Draft(context.Background(), workflow.Concept{Name: "Greet"}, "Greet", "sample.go", 4, "snippet"); err == nil {
		t.Fatalf("expected an error from a failing provider")
	}
}

func TestDraftNilClient(t *testing.T) {
	var d *LLMDrafter
	if _, err := d.Draft(context.Background(), workflow.Concept{}, "Sym", "file.go", 1, "snippet"); err == nil {
		t.Fatalf("expected an error for a nil drafter")
	}
}

type countingProvider struct {
	content  string
	messages [][]llm.Message
}

func (p *countingProvider) Complete(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (llm.RawResponse, error) {
	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	p.messages = append(p.messages, snapshot)
	return llm.RawResponse{Content: p.content}, nil
}

func TestDraftCarriesConversationAcrossCalls(t *testing.T) {
	provider := &countingProvider{content: "prose"}
	client := llm.New(provider, nil)
	d := New(client, "test-model", llm.GenerationParams{})

	for i := 0; i < 2; i++ {
		if _, err := d.Draft(context.Background(), workflow.Concept{Name: "Greet"}, "Greet", "sample.go", 4, "snippet"); err != nil {
			t.Fatalf("Draft returned error: %v", err)
		}
	}

	if len(provider.messages) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(provider.messages))
	}
	// The single-worker pool reuses one agent, so the second call's
	// history includes the first exchange: system + 2*(user, assistant).
	if got := len(provider.messages[1]); got != 4 {
		t.Errorf("expected the second call to carry 4 prior messages, got %d", got)
	}
}
