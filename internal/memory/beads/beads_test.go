// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package beads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfabric/core/internal/storage/graphstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	graph, err := graphstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = graph.Close() })
	return New(graph)
}

func TestCreate_NoDependencies_StartsReady(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	bead, err := store.Create(ctx, "mine symbols", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, bead.Status)
}

func TestCreate_WithDependencies_StartsBlocked(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	dep, err := store.Create(ctx, "mine symbols", 1, nil)
	require.NoError(t, err)

	bead, err := store.Create(ctx, "write skill", 2, []string{dep.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, bead.Status)
}

func TestRecompute_PromotesBlockedBeadWhenDependencyDone(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	dep, err := store.Create(ctx, "mine symbols", 1, nil)
	require.NoError(t, err)
	child, err := store.Create(ctx, "write skill", 2, []string{dep.ID})
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, child.Status)

	_, err = store.Transition(ctx, dep.ID, StatusInProgress)
	require.NoError(t, err)
	_, err = store.Transition(ctx, dep.ID, StatusDone)
	require.NoError(t, err)

	promoted, err := store.Recompute(ctx)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, child.ID, promoted[0].ID)

	reloaded, found, err := store.Get(ctx, child.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusReady, reloaded.Status)
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	bead, err := store.Create(ctx, "mine symbols", 1, nil)
	require.NoError(t, err)

	_, err = store.Transition(ctx, bead.ID, StatusDone)
	assert.Error(t, err, "READY cannot jump directly to DONE")
}

func TestTransition_AllowsInProgressRequeueToReady(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	bead, err := store.Create(ctx, "mine symbols", 1, nil)
	require.NoError(t, err)

	_, err = store.Transition(ctx, bead.ID, StatusInProgress)
	require.NoError(t, err)

	requeued, err := store.Transition(ctx, bead.ID, StatusReady)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, requeued.Status)
}

func TestTransition_AbandonedIsTerminalFromAnyLiveState(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	bead, err := store.Create(ctx, "mine symbols", 1, nil)
	require.NoError(t, err)

	abandoned, err := store.Transition(ctx, bead.ID, StatusAbandoned)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, abandoned.Status)

	_, err = store.Transition(ctx, bead.ID, StatusReady)
	assert.Error(t, err, "ABANDONED must not transition further")
}

func TestSetLearnings_AppendsAcrossCalls(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	bead, err := store.Create(ctx, "mine symbols", 1, nil)
	require.NoError(t, err)

	_, err = store.SetLearnings(ctx, bead.ID, "first finding")
	require.NoError(t, err)
	updated, err := store.SetLearnings(ctx, bead.ID, "second finding")
	require.NoError(t, err)

	assert.Equal(t, "first finding\nsecond finding", updated.Learnings)
}
