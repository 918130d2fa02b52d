// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package obsv

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skillsfabric/core/internal/hallm"
)

// InfluxExporter writes every Hall_m observation as a time-series
// point, implementing the "Hall_m history is in-memory unless the
// observability collaborator exports it" escape hatch spec §6 names.
// A pipeline that never configures INFLUX_* simply never constructs
// one, and Hall_m stays in-memory as the spec's default describes.
type InfluxExporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
}

// NewInfluxExporter opens a blocking write client against url/org/bucket.
func NewInfluxExporter(url, token, org, bucket string) *InfluxExporter {
	client := influxdb2.NewClient(url, token)
	return &InfluxExporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		bucket:   bucket,
	}
}

// ObserveHallM implements hallm.Observer.
func (e *InfluxExporter) ObserveHallM(outcome string, cumulativeRate float64) {
	point := influxdb2.NewPoint(
		"hallm_observation",
		map[string]string{"outcome": outcome},
		map[string]interface{}{"cumulative_rate": cumulativeRate},
		time.Now(),
	)
	// Best-effort: a down Influx instance must never fail the pipeline
	// run it's merely observing.
	_ = e.writeAPI.WritePoint(context.Background(), point)
}

// Close releases the underlying HTTP client.
func (e *InfluxExporter) Close() {
	e.client.Close()
}

// MultiObserver fans a single Hall_m observation out to every attached
// observer (e.g. the Prometheus/OTel Metrics bundle alongside an
// InfluxExporter), since HallMetric.SetObserver only holds one slot.
type MultiObserver struct {
	observers []hallm.Observer
}

// NewMultiObserver combines observers into one hallm.Observer.
func NewMultiObserver(observers ...hallm.Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

// ObserveHallM implements hallm.Observer.
func (m *MultiObserver) ObserveHallM(outcome string, cumulativeRate float64) {
	for _, o := range m.observers {
		if o != nil {
			o.ObserveHallM(outcome, cumulativeRate)
		}
	}
}
