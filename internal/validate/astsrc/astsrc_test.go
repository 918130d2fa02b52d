// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package astsrc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sample = `package demo

func Greet() string {
	return "hi"
}

type Widget struct {
	Name string
}

var DefaultWidget = Widget{}
`

func TestSource_CanHandle(t *testing.T) {
	s := New()
	assert.True(t, s.CanHandle(".go"))
	assert.False(t, s.CanHandle(".py"))
}

func TestSource_ConfirmsFunction(t *testing.T) {
	s := New()
	conf, ok, err := s.Confirm(context.Background(), "demo.go", []byte(sample), "Greet", 3)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, conf.ActualLine)
	assert.Equal(t, "function", conf.SymbolKind)
}

func TestSource_ConfirmsStructAsClass(t *testing.T) {
	s := New()
	conf, ok, err := s.Confirm(context.Background(), "demo.go", []byte(sample), "Widget", 7)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "class", conf.SymbolKind)
}

func TestSource_ToleratesLineDrift(t *testing.T) {
	s := New()
	conf, ok, err := s.Confirm(context.Background(), "demo.go", []byte(sample), "Greet", 5)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, conf.ActualLine)
}

func TestSource_RejectsOutOfToleranceLine(t *testing.T) {
	s := New()
	_, ok, err := s.Confirm(context.Background(), "demo.go", []byte(sample), "Greet", 50)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSource_UnknownSymbolNotFound(t *testing.T) {
	s := New()
	_, ok, err := s.Confirm(context.Background(), "demo.go", []byte(sample), "Nonexistent", 3)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSource_MalformedFileDoesNotPanic(t *testing.T) {
	s := New()
	_, ok, _ := s.Confirm(context.Background(), "demo.go", []byte("not even close to go source {{{"), "Greet", 1)
	assert.False(t, ok)
}
