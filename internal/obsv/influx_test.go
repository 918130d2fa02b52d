// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package obsv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) ObserveHallM(outcome string, cumulativeRate float64) {
	r.calls = append(r.calls, outcome)
}

func TestMultiObserver_FansOutToEveryObserver(t *testing.T) {
	a := &recordingObserver{}
	b := &recordingObserver{}
	multi := NewMultiObserver(a, b, nil)

	multi.ObserveHallM("validated", 0.01)

	assert.Equal(t, []string{"validated"}, a.calls)
	assert.Equal(t, []string{"validated"}, b.calls)
}

func TestMultiObserver_EmptyIsNoop(t *testing.T) {
	multi := NewMultiObserver()
	assert.NotPanics(t, func() { multi.ObserveHallM("rejected", 0.5) })
}
