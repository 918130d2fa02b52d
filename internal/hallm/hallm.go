// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hallm tracks the cumulative hallucination rate (Hall_m) for a
// pipeline run: rejected observations divided by total observations. A
// HallMetric is shared mutable state — every mutation is serialized
// under a single mutex so readers always see an internally consistent
// snapshot of (validated_total, rejected_total, cumulative rate).
package hallm

import (
	"sync"
	"time"

	"github.com/skillsfabric/core/internal/errs"
)

// Record is one (validated, rejected) observation appended to a
// HallMetric's history.
type Record struct {
	Validated int
	Rejected  int
	Operation string
	Context   string
	At        time.Time
}

// Summary is the snapshot returned by HallMetric.Summary.
type Summary struct {
	Observations   int
	CumulativeRate float64
	Threshold      float64
	ValidatedTotal int
	RejectedTotal  int
}

// Observer is notified on every recorded observation, so a metrics
// backend can export HallMetric's state without HallMetric importing
// one. Called with the HallMetric's internal mutex held, so
// implementations must not call back into the same HallMetric.
type Observer interface {
	ObserveHallM(outcome string, cumulativeRate float64)
}

// HallMetric is a process- or pipeline-scoped hallucination tracker.
// Default threshold is 0.02, matching spec §4.3.
type HallMetric struct {
	mu             sync.Mutex
	records        []Record
	validatedTotal int
	rejectedTotal  int
	threshold      float64
	now            func() time.Time
	observer       Observer
}

// SetObserver attaches a metrics Observer; nil disables reporting.
func (h *HallMetric) SetObserver(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = o
}

// New creates a HallMetric at the default 0.02 threshold.
func New() *HallMetric {
	return &HallMetric{threshold: 0.02, now: time.Now}
}

// NewWithThreshold creates a HallMetric at a caller-specified threshold.
func NewWithThreshold(threshold float64) *HallMetric {
	return &HallMetric{threshold: threshold, now: time.Now}
}

// Record appends an observation and updates the running totals. Totals
// are monotonically non-decreasing; cumulative_hall_m is recomputed
// each call so concurrent readers of Summary never observe a partial
// update.
func (h *HallMetric) Record(validated, rejected int, operation, context string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recordLocked(validated, rejected, operation, context)
	h.notifyLocked(rejected > 0)
}

func (h *HallMetric) recordLocked(validated, rejected int, operation, context string) {
	h.records = append(h.records, Record{
		Validated: validated,
		Rejected:  rejected,
		Operation: operation,
		Context:   context,
		At:        h.now(),
	})
	h.validatedTotal += validated
	h.rejectedTotal += rejected
}

// RecordAndCheck is Record, followed by a threshold check when
// failOnExceed is set: if the new cumulative rate is at or above the
// threshold, it returns *errs.HallMetricExceeded. The record is kept
// either way — a caller that chooses to ignore the error has still
// logged the observation.
func (h *HallMetric) RecordAndCheck(validated, rejected int, operation, context string, failOnExceed bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recordLocked(validated, rejected, operation, context)
	h.notifyLocked(rejected > 0)

	rate := h.cumulativeRateLocked()
	if failOnExceed && rate >= h.threshold {
		return &errs.HallMetricExceeded{
			Rate:           rate,
			Threshold:      h.threshold,
			ValidatedTotal: h.validatedTotal,
			RejectedTotal:  h.rejectedTotal,
		}
	}
	return nil
}

func (h *HallMetric) notifyLocked(rejected bool) {
	if h.observer == nil {
		return
	}
	outcome := "validated"
	if rejected {
		outcome = "rejected"
	}
	h.observer.ObserveHallM(outcome, h.cumulativeRateLocked())
}

func (h *HallMetric) cumulativeRateLocked() float64 {
	total := h.validatedTotal + h.rejectedTotal
	if total == 0 {
		return 0
	}
	return float64(h.rejectedTotal) / float64(total)
}

// Summary returns an atomic snapshot of the metric's state.
func (h *HallMetric) Summary() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Summary{
		Observations:   len(h.records),
		CumulativeRate: h.cumulativeRateLocked(),
		Threshold:      h.threshold,
		ValidatedTotal: h.validatedTotal,
		RejectedTotal:  h.rejectedTotal,
	}
}

// Reset clears all history and totals, keeping the configured threshold.
func (h *HallMetric) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
	h.validatedTotal = 0
	h.rejectedTotal = 0
}
