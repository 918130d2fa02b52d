// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package understanding

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// TreeSourceRef grounds a tree node in a concrete source location,
// pinned to a commit so the reference stays checkable after the
// repository moves on.
type TreeSourceRef struct {
	FilePath   string `json:"file_path"`
	Line       int    `json:"line"`
	Commit     string `json:"commit"`
	Repo       string `json:"repo"`
	SymbolName string `json:"symbol_name"`
	SymbolKind string `json:"symbol_kind"`
}

// TreeNode is one level of progressively-disclosed understanding:
// level 0 is the root overview, deeper levels narrow toward concrete
// symbols.
type TreeNode struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Level       int             `json:"level"`
	Content     string          `json:"content"`
	ParentID    string          `json:"parent_id,omitempty"`
	ChildrenIDs []string        `json:"children_ids"`
	Keywords    []string        `json:"keywords"`
	SourceRefs  []TreeSourceRef `json:"source_refs"`
}

// maxTreeLevel bounds node depth; levels run 0 (overview) through 5
// (individual symbols).
const maxTreeLevel = 5

// Tree is a progressive-understanding tree for one repository at one
// commit. It serializes to the documented JSON layout:
// {name, repo, commit, root_id, nodes: {id: ...}}.
type Tree struct {
	Name   string               `json:"name"`
	Repo   string               `json:"repo"`
	Commit string               `json:"commit"`
	RootID string               `json:"root_id"`
	Nodes  map[string]*TreeNode `json:"nodes"`
}

// NewTree creates a tree with a level-0 root node titled name.
func NewTree(name, repo, commit, overview string) *Tree {
	root := &TreeNode{
		ID:      uuid.NewString(),
		Title:   name,
		Level:   0,
		Content: overview,
	}
	return &Tree{
		Name:   name,
		Repo:   repo,
		Commit: commit,
		RootID: root.ID,
		Nodes:  map[string]*TreeNode{root.ID: root},
	}
}

// AddNode attaches a child under parentID at the parent's level + 1.
func (t *Tree) AddNode(parentID, title, content string, keywords []string, refs []TreeSourceRef) (*TreeNode, error) {
	parent, ok := t.Nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("understanding: no such parent node %s", parentID)
	}
	if parent.Level >= maxTreeLevel {
		return nil, fmt.Errorf("understanding: parent %s is already at max level %d", parentID, maxTreeLevel)
	}
	node := &TreeNode{
		ID:         uuid.NewString(),
		Title:      title,
		Level:      parent.Level + 1,
		Content:    content,
		ParentID:   parentID,
		Keywords:   keywords,
		SourceRefs: refs,
	}
	t.Nodes[node.ID] = node
	parent.ChildrenIDs = append(parent.ChildrenIDs, node.ID)
	return node, nil
}

// Node looks a node up by id.
func (t *Tree) Node(id string) (*TreeNode, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// Save writes the tree as JSON to path.
func (t *Tree) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("understanding: marshal tree: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("understanding: write tree: %w", err)
	}
	return nil
}

// LoadTree reads a tree back from path.
func LoadTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("understanding: read tree: %w", err)
	}
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("understanding: parse tree: %w", err)
	}
	if t.Nodes == nil {
		t.Nodes = make(map[string]*TreeNode)
	}
	return &t, nil
}
