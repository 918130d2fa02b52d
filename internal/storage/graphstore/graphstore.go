// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graphstore implements the narrow graph-database contract of
// spec §6: typed nodes (Concept, Symbol, Skill, TestResult) and typed
// edges (PROVEN, TEACHES, USES, VERIFIED_BY), every query parameterized
// rather than string-interpolated. No graph database driver appears
// anywhere in the retrieved corpus, so this substitutes
// github.com/dgraph-io/badger/v4 (a direct teacher dependency) as a
// single-node embedded KV engine: nodes are stored under
// "node:<label>:<key>" prefixes and edges under
// "edge:<kind>:<from>:<to>", both serialized as parameter structs —
// never formatted strings — preserving the parameterized-query
// invariant without a fabricated graph driver dependency (see
// DESIGN.md).
package graphstore

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Label is one of the four node labels spec §6 names.
type Label string

const (
	LabelConcept    Label = "Concept"
	LabelSymbol     Label = "Symbol"
	LabelSkill      Label = "Skill"
	LabelTestResult Label = "TestResult"
)

// EdgeKind is one of the four edge relations spec §6 names.
type EdgeKind string

const (
	EdgeProven     EdgeKind = "PROVEN"
	EdgeTeaches    EdgeKind = "TEACHES"
	EdgeUses       EdgeKind = "USES"
	EdgeVerifiedBy EdgeKind = "VERIFIED_BY"
)

// Node is a labeled record keyed by its primary key (name for Concept
// and Symbol, id for Skill and TestResult, per spec §6).
type Node struct {
	Label      Label          `json:"label"`
	Key        string         `json:"key"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Edge carries the relation-specific properties spec §6 attaches to
// PROVEN (confidence, match_type); other edge kinds carry none.
type Edge struct {
	Kind       EdgeKind       `json:"kind"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Store is a Badger-backed implementation of the graph contract, for
// single-node operation. All methods take structured parameters; no
// caller ever builds a query string, so there is nothing for user
// input to be interpolated into.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("graphstore: open badger at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func nodeKey(label Label, key string) []byte {
	return []byte("node:" + string(label) + ":" + key)
}

func edgeKey(kind EdgeKind, from, to string) []byte {
	return []byte("edge:" + string(kind) + ":" + from + ":" + to)
}

// CreateNode upserts a node under its (label, key) primary key.
func (s *Store) CreateNode(node Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(node.Label, node.Key), data)
	})
}

// GetNode looks up a node by its primary key; ok is false if absent.
func (s *Store) GetNode(label Label, key string) (Node, bool, error) {
	var node Node
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(label, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		})
	})
	return node, found, err
}

// CreateEdge creates a typed edge. Per spec §6, duplicate PROVEN edges
// between the same pair are no-ops — overwriting identical properties
// rather than erroring, since Badger's Set already makes this call
// idempotent by key.
func (s *Store) CreateEdge(edge Edge) error {
	data, err := json.Marshal(edge)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(edgeKey(edge.Kind, edge.From, edge.To), data)
	})
}

// EdgesFrom returns every edge of kind originating at from.
func (s *Store) EdgesFrom(kind EdgeKind, from string) ([]Edge, error) {
	prefix := []byte("edge:" + string(kind) + ":" + from + ":")
	var edges []Edge
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var edge Edge
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &edge)
			}); err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	return edges, err
}

// NodesByLabel returns every node with the given label.
func (s *Store) NodesByLabel(label Label) ([]Node, error) {
	prefix := []byte("node:" + string(label) + ":")
	var nodes []Node
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var node Node
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &node)
			}); err != nil {
				return err
			}
			nodes = append(nodes, node)
		}
		return nil
	})
	return nodes, err
}
