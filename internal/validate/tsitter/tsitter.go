// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tsitter is the multi-language evidence source (weight 0.3):
// tree-sitter parsing, broader language coverage than astsrc but
// coarser metadata (it reports a kind taken from the definition
// node's type rather than a full language-specific AST).
package tsitter

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/skillsfabric/core/internal/validate"
)

var languagesByExt = map[string]func() *sitter.Language{
	".py":  python.GetLanguage,
	".go":  golang.GetLanguage,
	".js":  javascript.GetLanguage,
	".jsx": javascript.GetLanguage,
	".ts":  typescript.GetLanguage,
	".tsx": typescript.GetLanguage,
}

// defKinds lists the tree-sitter node types that count as a "definition"
// across the supported grammars. Coarser than a real per-language AST:
// Python methods are function_definition nodes and surface as
// "function"; only JavaScript/TypeScript method_definition nodes
// surface as "method".
var defKinds = map[string]string{
	"function_definition":  "function",
	"function_declaration": "function",
	"method_definition":    "method",
	"class_definition":     "class",
	"class_declaration":    "class",
	"type_spec":            "type",
	"lexical_declaration":  "variable",
}

// Source confirms symbols via tree-sitter across Python, Go,
// JavaScript, and TypeScript.
type Source struct{}

// New constructs the tree-sitter evidence source.
func New() *Source { return &Source{} }

func (s *Source) Name() string { return "tree-sitter" }

func (s *Source) CanHandle(ext string) bool {
	_, ok := languagesByExt[ext]
	return ok
}

func (s *Source) Confirm(ctx context.Context, file string, content []byte, symbol string, line int) (validate.Confirmation, bool, error) {
	langFn, ok := languagesByExt[extOf(file)]
	if !ok {
		return validate.Confirmation{}, false, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(langFn())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return validate.Confirmation{}, false, validate.WrapParseError(s.Name(), file, err)
	}
	defer tree.Close()

	var best validate.Confirmation
	var found bool

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if kind, ok := defKinds[n.Type()]; ok {
			if name := nameOf(n, content); name == symbol {
				declLine := int(n.StartPoint().Row) + 1
				if absInt(declLine-line) <= 3 {
					if !found || absInt(declLine-line) < absInt(best.ActualLine-line) {
						best = validate.Confirmation{ActualLine: declLine, SymbolKind: kind}
						found = true
					}
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	return best, found, nil
}

// nameOf extracts the identifier child of a definition node. Tree-sitter
// grammars name this child "name" across the grammars this source
// supports; a definition without one (e.g. an anonymous function
// expression) simply fails to match and is treated as "not found" here.
func nameOf(n *sitter.Node, content []byte) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return nameNode.Content(content)
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
