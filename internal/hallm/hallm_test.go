// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hallm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfabric/core/internal/errs"
)

func TestHallMetric_MonotonicityWhenAllClean(t *testing.T) {
	h := New()
	h.Record(5, 0, "op", "")
	first := h.Summary().CumulativeRate

	h.Record(5, 0, "op", "")
	second := h.Summary().CumulativeRate

	assert.LessOrEqual(t, second, first)
	assert.Zero(t, second)
}

func TestHallMetric_IncreasesWhenRejectionsOccur(t *testing.T) {
	h := New()
	h.Record(10, 0, "op", "")
	first := h.Summary().CumulativeRate

	h.Record(0, 1, "op", "")
	second := h.Summary().CumulativeRate

	assert.Greater(t, second, first)
}

// S4: record(10,0), record(5,1), record(0,1, fail_on_exceed=true, threshold=0.10)
// -> third call raises HallMetricExceeded because 2/17 > 0.10.
func TestHallMetric_S4_ThresholdTriggers(t *testing.T) {
	h := NewWithThreshold(0.10)

	require.NoError(t, h.RecordAndCheck(10, 0, "op", "", true))
	require.NoError(t, h.RecordAndCheck(5, 1, "op", "", true))

	err := h.RecordAndCheck(0, 1, "op", "", true)
	require.Error(t, err)

	var exceeded *errs.HallMetricExceeded
	require.True(t, errors.As(err, &exceeded))
	assert.InDelta(t, 2.0/17.0, exceeded.Rate, 1e-9)
	assert.Equal(t, 15, exceeded.ValidatedTotal)
	assert.Equal(t, 2, exceeded.RejectedTotal)
}

func TestHallMetric_ZeroDenominatorIsZero(t *testing.T) {
	h := New()
	assert.Zero(t, h.Summary().CumulativeRate)
}

func TestHallMetric_Reset(t *testing.T) {
	h := New()
	h.Record(1, 1, "op", "")
	h.Reset()

	summary := h.Summary()
	assert.Zero(t, summary.Observations)
	assert.Zero(t, summary.ValidatedTotal)
	assert.Zero(t, summary.RejectedTotal)
}
