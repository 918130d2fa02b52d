// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lsp is the optional, opt-in-per-call language-server evidence
// source (weight 0.2). It is deliberately narrow: a DefinitionClient
// abstraction the caller wires to whatever server is configured (gopls,
// pyright, ...), queried only for "does any reported definition fall
// within the tolerance window" — nothing richer is asked of it.
package lsp

import (
	"context"

	"github.com/skillsfabric/core/internal/validate"
)

// Definition is one location an LSP server reports for a symbol.
type Definition struct {
	Line int
}

// DefinitionClient is the narrow contract this source needs from a
// language server connection. Concrete implementations speak whatever
// wire protocol the server requires (typically JSON-RPC over stdio);
// that plumbing lives outside the core per spec §1's out-of-scope list.
type DefinitionClient interface {
	Definitions(ctx context.Context, file string, symbol string) ([]Definition, error)
}

// Source confirms symbols via an external language server. Because it
// is slower than AST/tree-sitter/file-content, it is only polled when
// the caller opts in (Validator.useLSP).
type Source struct {
	client DefinitionClient
	ext    map[string]bool
}

// New constructs an lsp.Source backed by client, restricted to the
// given file extensions (the server's supported languages).
func New(client DefinitionClient, extensions ...string) *Source {
	set := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		set[e] = true
	}
	return &Source{client: client, ext: set}
}

func (s *Source) Name() string { return "lsp" }

func (s *Source) CanHandle(ext string) bool { return s.ext[ext] }

func (s *Source) Confirm(ctx context.Context, file string, content []byte, symbol string, line int) (validate.Confirmation, bool, error) {
	defs, err := s.client.Definitions(ctx, file, symbol)
	if err != nil {
		return validate.Confirmation{}, false, validate.WrapParseError(s.Name(), file, err)
	}
	for _, d := range defs {
		if absInt(d.Line-line) <= 3 {
			return validate.Confirmation{ActualLine: d.Line}, true, nil
		}
	}
	return validate.Confirmation{}, false, nil
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
