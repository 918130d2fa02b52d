// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ContextEntryClassName is the Weaviate class backing the optional
// semantic tier, named distinctly from code_buddy's CodeMemory class
// since it stores compiled context entries rather than learned
// constraints.
const ContextEntryClassName = "SkillsFabricContextEntry"

// ContextEntrySchema mirrors code_buddy/memory/schema.go's
// GetCodeMemorySchema shape, adapted to the narrower Entry fields this
// package actually compiles over.
func ContextEntrySchema() *models.Class {
	skipVectorization := true
	return &models.Class{
		Class:       ContextEntryClassName,
		Description: "Compiled agent-memory context entries, embedded for semantic recall outside the recency window",
		Vectorizer:  "text2vec-transformers",
		ModuleConfig: map[string]interface{}{
			"text2vec-transformers": map[string]interface{}{"vectorizeClassName": false},
		},
		Properties: []*models.Property{
			{Name: "entryId", DataType: []string{"text"}, ModuleConfig: vectorizeSkip(skipVectorization)},
			{Name: "content", DataType: []string{"text"}},
			{Name: "recency", DataType: []string{"date"}, ModuleConfig: vectorizeSkip(skipVectorization)},
		},
	}
}

func vectorizeSkip(skip bool) map[string]interface{} {
	return map[string]interface{}{
		"text2vec-transformers": map[string]interface{}{"skip": skip},
	}
}

// EnsureContextEntrySchema creates the class if it does not already exist.
func EnsureContextEntrySchema(ctx context.Context, client *weaviate.Client) error {
	_, err := client.Schema().ClassGetter().WithClassName(ContextEntryClassName).Do(ctx)
	if err == nil {
		return nil
	}
	return client.Schema().ClassCreator().WithClass(ContextEntrySchema()).Do(ctx)
}

// WeaviateRetriever implements Retriever via Weaviate's nearText
// search, the way code_buddy/memory.MemoryStore queries its
// CodeMemory class with client.GraphQL().Get(). An unconfigured
// pipeline never constructs one, and Compiler.Compile degrades to its
// pure recency tiers (spec §3's "ADK-stub mode").
type WeaviateRetriever struct {
	client *weaviate.Client
}

// NewWeaviateRetriever wraps an already-constructed weaviate.Client.
func NewWeaviateRetriever(client *weaviate.Client) *WeaviateRetriever {
	return &WeaviateRetriever{client: client}
}

// Store upserts an entry's content so it becomes semantically
// retrievable once outside the recency window.
func (w *WeaviateRetriever) Store(ctx context.Context, e Entry) error {
	_, err := w.client.Data().Creator().
		WithClassName(ContextEntryClassName).
		WithID(e.ID).
		WithProperties(map[string]interface{}{
			"entryId": e.ID,
			"content": e.Content,
			"recency": e.Recency.UTC().Format(time.RFC3339),
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("memory: store context entry %s: %w", e.ID, err)
	}
	return nil
}

// SimilarTo implements Retriever via a nearText GraphQL query.
func (w *WeaviateRetriever) SimilarTo(ctx context.Context, query string, limit int) ([]Entry, error) {
	nearText := w.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})

	result, err := w.client.GraphQL().Get().
		WithClassName(ContextEntryClassName).
		WithFields(
			graphql.Field{Name: "entryId"},
			graphql.Field{Name: "content"},
			graphql.Field{Name: "recency"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
		).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: semantic search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("memory: semantic search: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := data[ContextEntryClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	entries := make([]Entry, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		entry := Entry{
			ID:      stringField(obj, "entryId"),
			Content: stringField(obj, "content"),
		}
		if recency := stringField(obj, "recency"); recency != "" {
			if t, err := time.Parse(time.RFC3339, recency); err == nil {
				entry.Recency = t
			}
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				entry.Relevance = certainty
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func stringField(obj map[string]interface{}, key string) string {
	v, _ := obj[key].(string)
	return v
}
