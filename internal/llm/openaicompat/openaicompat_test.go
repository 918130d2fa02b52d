// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package openaicompat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillsfabric/core/internal/llm"
)

func TestToOpenAIMessages_PreservesRoleAndContentOrder(t *testing.T) {
	in := []llm.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}
	out := toOpenAIMessages(in)

	assert.Len(t, out, 2)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "be terse", out[0].Content)
	assert.Equal(t, "user", out[1].Role)
	assert.Equal(t, "hi", out[1].Content)
}

func TestNew_AcceptsEmptyBaseURL(t *testing.T) {
	p := New("key", "gpt-4o-mini", "")
	assert.Equal(t, "gpt-4o-mini", p.model)
	assert.NotNil(t, p.client)
}
