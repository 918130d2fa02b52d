// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package obsv

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/skillsfabric/core/internal/logx"
)

func TestLogSink_CountsRecordsByLevel(t *testing.T) {
	m := New("test")
	logger := logx.New(logx.Config{Level: logx.LevelInfo, Quiet: true, Sink: m.LogSink()})

	logger.Info("one")
	logger.Info("two")
	logger.Warn("three")
	logger.Debug("filtered out by level")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LogRecords.WithLabelValues("INFO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LogRecords.WithLabelValues("WARN")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LogRecords.WithLabelValues("DEBUG")))
}
