// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tsitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource_CanHandle(t *testing.T) {
	s := New()
	assert.True(t, s.CanHandle(".py"))
	assert.True(t, s.CanHandle(".go"))
	assert.True(t, s.CanHandle(".tsx"))
	assert.False(t, s.CanHandle(".rb"))
}

func TestSource_ConfirmsPythonFunction(t *testing.T) {
	s := New()
	content := []byte("def greet():\n    return 'hi'\n")
	conf, ok, err := s.Confirm(context.Background(), "demo.py", content, "greet", 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, conf.ActualLine)
	assert.Equal(t, "function", conf.SymbolKind)
}

func TestSource_ConfirmsPythonClass(t *testing.T) {
	s := New()
	content := []byte("class Widget:\n    pass\n")
	conf, ok, err := s.Confirm(context.Background(), "demo.py", content, "Widget", 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "class", conf.SymbolKind)
}

func TestSource_RejectsOutOfToleranceLine(t *testing.T) {
	s := New()
	content := []byte("def greet():\n    return 'hi'\n")
	_, ok, err := s.Confirm(context.Background(), "demo.py", content, "greet", 99)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSource_UnsupportedExtensionNotFound(t *testing.T) {
	s := New()
	_, ok, err := s.Confirm(context.Background(), "demo.rb", []byte("def greet; end"), "greet", 1)
	assert.NoError(t, err)
	assert.False(t, ok)
}
