// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ralph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfabric/core/internal/errs"
	"github.com/skillsfabric/core/internal/failtrack"
	"github.com/skillsfabric/core/internal/promise"
)

func TestRun_SucceedsOnFirstIterationWhenPromisesPass(t *testing.T) {
	promises := promise.New(true, promise.Promise[int]{
		Name: "positive", Required: true, Check: func(n int) bool { return n > 0 },
	})
	loop := New(5, promises)

	result := loop.Run(context.Background(), func(ctx context.Context, s failtrack.Strategy) (int, error) {
		return 42, nil
	}, nil, nil)

	assert.True(t, result.Success())
	assert.Equal(t, 1, result.SuccessfulAt)
	assert.Equal(t, 42, result.Value)
}

func TestRun_RetriesOnErrorUntilTaskSucceeds(t *testing.T) {
	promises := promise.New(true, promise.Promise[int]{
		Name: "any", Required: true, Check: func(int) bool { return true },
	})
	loop := New(5, promises)

	attempt := 0
	result := loop.Run(context.Background(), func(ctx context.Context, s failtrack.Strategy) (int, error) {
		attempt++
		if attempt < 3 {
			return 0, errors.New("not ready yet")
		}
		return attempt, nil
	}, nil, nil)

	assert.True(t, result.Success())
	assert.Equal(t, 3, result.SuccessfulAt)
	require.Len(t, result.Iterations, 3)
	assert.False(t, result.Iterations[0].Success)
	assert.True(t, result.Iterations[2].Success)
}

func TestRun_ReturnsMaxIterationsWhenNeverSatisfied(t *testing.T) {
	promises := promise.New(true, promise.Promise[int]{
		Name: "never", Required: true, Check: func(int) bool { return false },
	})
	loop := New(3, promises)

	result := loop.Run(context.Background(), func(ctx context.Context, s failtrack.Strategy) (int, error) {
		return 0, nil
	}, nil, nil)

	assert.Equal(t, StatusMaxIterations, result.Status)
	assert.False(t, result.Success())
	assert.Equal(t, 3, result.TotalIterations)
	assert.ErrorIs(t, AsError(result), ErrMaxIterationsExceeded)
}

func TestRun_AbortsWhenContextCancelledBetweenIterations(t *testing.T) {
	promises := promise.New(true, promise.Promise[int]{
		Name: "never", Required: true, Check: func(int) bool { return false },
	})
	loop := New(10, promises)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	result := loop.Run(ctx, func(ctx context.Context, s failtrack.Strategy) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, nil
	}, nil, nil)

	assert.Equal(t, StatusAborted, result.Status)
	assert.LessOrEqual(t, calls, 3)
}

func TestRun_StrategyTightensAfterRepeatedSandboxFailures(t *testing.T) {
	promises := promise.New(true, promise.Promise[int]{
		Name: "never", Required: true, Check: func(int) bool { return false },
	})
	loop := New(4, promises)

	var strategiesSeen []failtrack.Strategy
	result := loop.Run(context.Background(), func(ctx context.Context, s failtrack.Strategy) (int, error) {
		strategiesSeen = append(strategiesSeen, s)
		return 0, errs.ErrAborted
	}, nil, nil)

	require.Len(t, strategiesSeen, 4)
	assert.False(t, strategiesSeen[0].FallbackToAST)
	assert.True(t, result.FinalStrategy.FallbackToAST)
}

func TestRun_InvokesOnIterationAndOnStrategyChangeCallbacks(t *testing.T) {
	promises := promise.New(true, promise.Promise[int]{
		Name: "never", Required: true, Check: func(int) bool { return false },
	})
	loop := New(3, promises)

	var iterCount int
	var strategyChanges int
	loop.Run(context.Background(), func(ctx context.Context, s failtrack.Strategy) (int, error) {
		return 0, errs.ErrNotFound
	}, func(i Iteration[int]) {
		iterCount++
	}, func(s failtrack.Strategy) {
		strategyChanges++
	})

	assert.Equal(t, 3, iterCount)
	assert.GreaterOrEqual(t, strategyChanges, 1)
}

func TestRun_S5_SearchDepthRaisedAfterRepeatedSourceMisses(t *testing.T) {
	type outcome struct{ SkillsCreated int }
	promises := promise.New(true, promise.Promise[outcome]{
		Name:     "skills_created",
		Required: true,
		Check:    func(o outcome) bool { return o.SkillsCreated >= 1 },
	})
	loop := New(5, promises)

	attempt := 0
	result := loop.Run(context.Background(), func(ctx context.Context, s failtrack.Strategy) (outcome, error) {
		attempt++
		if attempt < 3 {
			return outcome{}, errs.ErrNotFound
		}
		// Two source-not-found failures must have deepened the search
		// before the succeeding attempt runs.
		assert.GreaterOrEqual(t, s.SearchDepth, 2)
		return outcome{SkillsCreated: 1}, nil
	}, nil, nil)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 3, result.SuccessfulAt)
	assert.GreaterOrEqual(t, result.FinalStrategy.SearchDepth, 2)
}
