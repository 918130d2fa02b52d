// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package understanding

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGo = `package sample

func Greet(name string) string {
	return "hello " + name
}

type Widget struct {
	ID int
}
`

func TestMine_ExtractsFunctionAndTypeFromGoFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(sampleGo), 0o644))

	// Auto mode routes .go files through go/ast, which reports structs
	// with the same "class" kind astsrc uses.
	m := New()
	symbols, snippets, err := m.Mine(context.Background(), dir)
	require.NoError(t, err)

	names := map[string]string{}
	for _, s := range symbols {
		names[s.Name] = s.Kind
	}
	assert.Equal(t, "function", names["Greet"])
	assert.Equal(t, "class", names["Widget"])
	assert.Len(t, snippets, len(symbols))
}

func TestMine_ASTModeSkipsNonGoFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(sampleGo), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.py"), []byte("def helper():\n    pass\n"), 0o644))

	m := NewWithAnalyzer(AnalyzerAST)
	symbols, _, err := m.Mine(context.Background(), dir)
	require.NoError(t, err)

	for _, s := range symbols {
		assert.Equal(t, ".go", filepath.Ext(s.File))
	}
	names := map[string]bool{}
	for _, s := range symbols {
		names[s.Name] = true
	}
	assert.True(t, names["Greet"])
	assert.False(t, names["helper"])
}

func TestMine_TreeSitterModeParsesGoWithTreeSitterKinds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(sampleGo), 0o644))

	m := NewWithAnalyzer(AnalyzerTreeSitter)
	symbols, _, err := m.Mine(context.Background(), dir)
	require.NoError(t, err)

	names := map[string]string{}
	for _, s := range symbols {
		names[s.Name] = s.Kind
	}
	assert.Equal(t, "function", names["Greet"])
	assert.Equal(t, "type", names["Widget"])
}

func TestMine_SkipsUnsupportedExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("no symbols here"), 0o644))

	m := New()
	symbols, snippets, err := m.Mine(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, symbols)
	assert.Empty(t, snippets)
}

func TestMine_SkipsVendorDirectories(t *testing.T) {
	dir := t.TempDir()
	vendorDir := filepath.Join(dir, "vendor")
	require.NoError(t, os.MkdirAll(vendorDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vendorDir, "dep.go"), []byte(sampleGo), 0o644))

	m := New()
	symbols, _, err := m.Mine(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestTree_AddNodeAndLookup(t *testing.T) {
	tree := NewTree("langgraph", "github.com/org/langgraph", "abc123", "graph runtime overview")

	child, err := tree.AddNode(tree.RootID, "StateGraph", "builds state machines", []string{"graph", "state"}, []TreeSourceRef{
		{FilePath: "langgraph/graph/state.py", Line: 50, Commit: "abc123", Repo: "github.com/org/langgraph", SymbolName: "StateGraph", SymbolKind: "class"},
	})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if child.Level != 1 {
		t.Errorf("expected child at level 1, got %d", child.Level)
	}

	got, ok := tree.Node(child.ID)
	if !ok || got.Title != "StateGraph" {
		t.Errorf("lookup by id failed: ok=%v node=%+v", ok, got)
	}
	root, _ := tree.Node(tree.RootID)
	if len(root.ChildrenIDs) != 1 || root.ChildrenIDs[0] != child.ID {
		t.Errorf("root children not updated: %v", root.ChildrenIDs)
	}
}

func TestTree_RejectsNodesPastMaxLevel(t *testing.T) {
	tree := NewTree("lib", "repo", "c0ffee", "")
	parentID := tree.RootID
	for i := 0; i < 5; i++ {
		node, err := tree.AddNode(parentID, "level", "", nil, nil)
		if err != nil {
			t.Fatalf("AddNode at depth %d: %v", i+1, err)
		}
		parentID = node.ID
	}
	if _, err := tree.AddNode(parentID, "too deep", "", nil, nil); err == nil {
		t.Fatalf("expected an error past level 5")
	}
}

func TestTree_SaveLoadRoundTrip(t *testing.T) {
	tree := NewTree("langgraph", "github.com/org/langgraph", "abc123", "overview")
	if _, err := tree.AddNode(tree.RootID, "StateGraph", "builds flows", nil, nil); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tree.json")
	if err := tree.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadTree(path)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}

	if loaded.RootID != tree.RootID || len(loaded.Nodes) != len(tree.Nodes) {
		t.Errorf("round trip mismatch: got root %s with %d nodes", loaded.RootID, len(loaded.Nodes))
	}
}
