// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package understanding implements the workflow supervisor's mining
// stage (spec §4.12 step 1): enumerate source files under a repo
// root and extract candidate symbols and their snippets. In the
// default auto mode .go files are parsed with go/ast and other files
// with tree-sitter, the same multi-language parser
// internal/validate/tsitter uses for confirmation; the ast mode mines
// only .go files, and the tree-sitter mode parses .go files too.
package understanding

import (
	"bytes"
	"context"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Symbol is one mined candidate definition.
type Symbol struct {
	Name string
	Kind string
	File string
	Line int
}

// Snippet is the source text mined alongside a Symbol, truncated to a
// reasonable skill-writing size.
type Snippet struct {
	Symbol  string
	File    string
	Line    int
	Content string
}

const maxSnippetLines = 40

var languagesByExt = map[string]func() *sitter.Language{
	".py":  python.GetLanguage,
	".go":  golang.GetLanguage,
	".js":  javascript.GetLanguage,
	".jsx": javascript.GetLanguage,
	".ts":  typescript.GetLanguage,
	".tsx": typescript.GetLanguage,
}

var defKinds = map[string]string{
	"function_definition":  "function",
	"function_declaration": "function",
	"method_definition":    "method",
	"class_definition":     "class",
	"class_declaration":    "class",
	"type_spec":            "type",
	"lexical_declaration":  "variable",
}

// skipDirs mirrors the teacher's refresher.go file-walk exclusions —
// vendored/generated trees carry no useful skill material.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, "_examples": true,
}

// Analyzer selects the parsing backend a Miner uses.
const (
	// AnalyzerAuto parses .go files through go/ast and everything else
	// through tree-sitter.
	AnalyzerAuto = "auto"
	// AnalyzerAST restricts mining to the AST-capable language (.go via
	// go/ast); other files are skipped.
	AnalyzerAST = "ast"
	// AnalyzerTreeSitter parses every supported language through
	// tree-sitter, including .go.
	AnalyzerTreeSitter = "tree-sitter"
)

// Miner walks a repo tree and extracts symbols + snippets for every
// file in a supported language.
type Miner struct {
	analyzer string
}

// New constructs a Miner in auto mode.
func New() *Miner { return &Miner{analyzer: AnalyzerAuto} }

// NewWithAnalyzer constructs a Miner pinned to one parsing backend.
// Unknown values fall back to auto.
func NewWithAnalyzer(analyzer string) *Miner {
	switch analyzer {
	case AnalyzerAST, AnalyzerTreeSitter:
		return &Miner{analyzer: analyzer}
	default:
		return &Miner{analyzer: AnalyzerAuto}
	}
}

// Mine enumerates files under root, parses each supported file, and
// returns every definition found plus its source snippet. ctx is
// checked between files so a large repo can be cancelled mid-walk.
func (m *Miner) Mine(ctx context.Context, root string) ([]Symbol, []Snippet, error) {
	var symbols []Symbol
	var snippets []Snippet

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)

		useGoAST := ext == ".go" && m.analyzer != AnalyzerTreeSitter
		if m.analyzer == AnalyzerAST && !useGoAST {
			return nil
		}
		langFn, supported := languagesByExt[ext]
		if !useGoAST && !supported {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}

		var fileSyms []Symbol
		var fileSnips []Snippet
		if useGoAST {
			fileSyms, fileSnips = mineGoFile(path, content)
		} else {
			fileSyms, fileSnips = mineFile(ctx, path, content, langFn)
		}
		symbols = append(symbols, fileSyms...)
		snippets = append(snippets, fileSnips...)
		return nil
	})
	if err != nil {
		return symbols, snippets, err
	}
	return symbols, snippets, nil
}

// mineGoFile is the go/ast mining path: the same definition walk
// astsrc's evidence source does, applied to extraction instead of
// confirmation.
func mineGoFile(path string, content []byte) ([]Symbol, []Snippet) {
	fset := token.NewFileSet()
	astFile, _ := goparser.ParseFile(fset, path, content, goparser.AllErrors)
	if astFile == nil {
		return nil, nil
	}

	var symbols []Symbol
	var snippets []Snippet
	lines := bytes.Split(content, []byte("\n"))

	record := func(name, kind string, start, end token.Pos) {
		line := fset.Position(start).Line
		symbols = append(symbols, Symbol{Name: name, Kind: kind, File: path, Line: line})
		snippets = append(snippets, Snippet{
			Symbol:  name,
			File:    path,
			Line:    line,
			Content: snippetAround(lines, line-1, fset.Position(end).Line-1),
		})
	}

	ast.Inspect(astFile, func(n ast.Node) bool {
		switch d := n.(type) {
		case *ast.FuncDecl:
			kind := "function"
			if d.Recv != nil {
				kind = "method"
			}
			record(d.Name.Name, kind, d.Pos(), d.End())
		case *ast.TypeSpec:
			kind := "type"
			if _, ok := d.Type.(*ast.StructType); ok {
				kind = "class"
			}
			record(d.Name.Name, kind, d.Pos(), d.End())
		}
		return true
	})

	return symbols, snippets
}

func mineFile(ctx context.Context, path string, content []byte, langFn func() *sitter.Language) ([]Symbol, []Snippet) {
	parser := sitter.NewParser()
	parser.SetLanguage(langFn())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, nil
	}
	defer tree.Close()

	var symbols []Symbol
	var snippets []Snippet
	lines := bytes.Split(content, []byte("\n"))

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if kind, ok := defKinds[n.Type()]; ok {
			if name := nameOf(n, content); name != "" {
				line := int(n.StartPoint().Row) + 1
				symbols = append(symbols, Symbol{Name: name, Kind: kind, File: path, Line: line})
				snippets = append(snippets, Snippet{
					Symbol:  name,
					File:    path,
					Line:    line,
					Content: snippetAround(lines, int(n.StartPoint().Row), int(n.EndPoint().Row)),
				})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	return symbols, snippets
}

func nameOf(n *sitter.Node, content []byte) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return nameNode.Content(content)
}

func snippetAround(lines [][]byte, startRow, endRow int) string {
	if endRow-startRow+1 > maxSnippetLines {
		endRow = startRow + maxSnippetLines - 1
	}
	if endRow >= len(lines) {
		endRow = len(lines) - 1
	}
	if startRow < 0 || startRow >= len(lines) {
		return ""
	}
	var b strings.Builder
	for i := startRow; i <= endRow; i++ {
		b.Write(lines[i])
		b.WriteByte('\n')
	}
	return b.String()
}
