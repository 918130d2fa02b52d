// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfabric/core/internal/errs"
)

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LanguageGo, detectLanguage("package main\nfunc main() {}\n"))
	assert.Equal(t, LanguageTypeScript, detectLanguage("interface Widget {\n  name: string\n}\n"))
	assert.Equal(t, LanguagePython, detectLanguage("def greet():\n    return 'hi'\n"))
}

func TestLocalOracle_VerifyLanguage_Passes(t *testing.T) {
	o := NewLocalOracle(t.TempDir(), time.Second)
	o.Interpreters[LanguagePython] = Interpreter{Command: "true", Ext: ".py"}
	ok, err := o.VerifyLanguage(context.Background(), "irrelevant", LanguagePython)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalOracle_VerifyLanguage_Fails(t *testing.T) {
	o := NewLocalOracle(t.TempDir(), time.Second)
	o.Interpreters[LanguagePython] = Interpreter{Command: "false", Ext: ".py"}
	ok, err := o.VerifyLanguage(context.Background(), "irrelevant", LanguagePython)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalOracle_UnknownLanguage(t *testing.T) {
	o := NewLocalOracle(t.TempDir(), time.Second)
	_, err := o.VerifyLanguage(context.Background(), "x", Language("ruby"))
	assert.Error(t, err)
}

func TestLocalOracle_TimeoutClassifiedAsExternalServiceError(t *testing.T) {
	o := NewLocalOracle(t.TempDir(), 10*time.Millisecond)
	o.Interpreters[LanguagePython] = Interpreter{Command: "bash", Args: []string{"-c", "sleep 5"}, Ext: ".py"}
	_, err := o.VerifyLanguage(context.Background(), "irrelevant", LanguagePython)
	require.Error(t, err)
	var svc *errs.ExternalServiceError
	assert.ErrorAs(t, err, &svc)
}

func TestNewLocalOracle_Defaults(t *testing.T) {
	o := NewLocalOracle("", 0)
	assert.Equal(t, 10*time.Second, o.Timeout)
	assert.NotEmpty(t, o.WorkDir)
}
