// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package obsv wires Prometheus metrics and OpenTelemetry tracing for
// the pipeline. Components accept a *Metrics and record through it
// rather than reaching for global registries, so tests can substitute a
// throwaway registry.
package obsv

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillsfabric/core/internal/logx"
)

// ProgressReporter is notified as the supervisor advances through a
// named stage, so a CLI can render a progress bar without the
// workflow package importing a terminal UI library directly.
type ProgressReporter interface {
	Report(stage string, step, total int)
}

// LogReporter is a ProgressReporter that logs each step through logx,
// the default for non-interactive runs (no TTY, `-q`, or CI).
type LogReporter struct {
	logger *logx.Logger
}

// NewLogReporter wraps logger; passing nil uses logx.Default().
func NewLogReporter(logger *logx.Logger) *LogReporter {
	if logger == nil {
		logger = logx.Default()
	}
	return &LogReporter{logger: logger}
}

// Report implements ProgressReporter.
func (r *LogReporter) Report(stage string, step, total int) {
	r.logger.Info("workflow progress", "stage", stage, "step", step, "total", total)
}

// NopReporter discards progress notifications.
type NopReporter struct{}

// Report implements ProgressReporter.
func (NopReporter) Report(string, int, int) {}

// Metrics bundles the Prometheus collectors the pipeline exposes. A
// parallel OpenTelemetry meter (bridged onto the same registry via
// otel/exporters/prometheus) mirrors the workflow-stage histogram, the
// way the teacher's OTelSink takes a metric.MeterProvider alongside its
// own tracer — one recording call, two export paths, so either a raw
// /metrics scrape or an OTel collector can consume it.
type Metrics struct {
	Registry *prometheus.Registry

	HallMObservations *prometheus.CounterVec
	HallMCurrentRate  prometheus.Gauge
	DDRRetrievals     *prometheus.CounterVec
	AuditDuration     prometheus.Histogram
	ThinkingRequests  *prometheus.CounterVec
	WorkflowStageDur  *prometheus.HistogramVec
	LogRecords        *prometheus.CounterVec

	tracer        trace.Tracer
	meterProvider *sdkmetric.MeterProvider
	otelStageHist otelmetric.Float64Histogram
}

// New creates a Metrics bundle registered against a fresh registry.
func New(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		HallMObservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillsfabric_hallm_observations_total",
			Help: "Validated/rejected observations recorded against Hall_m, by outcome.",
		}, []string{"outcome"}),
		HallMCurrentRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillsfabric_hallm_cumulative_rate",
			Help: "Current cumulative hallucination rate (rejected / total).",
		}),
		DDRRetrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillsfabric_ddr_retrievals_total",
			Help: "DDR retrieve() calls, by success/failure.",
		}, []string{"outcome"}),
		AuditDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "skillsfabric_audit_duration_seconds",
			Help: "Wall-clock duration of ClaimAuditor.Audit calls.",
		}),
		ThinkingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillsfabric_llm_thinking_requests_total",
			Help: "LLM thinking requests, by result (success/failed/fallback).",
		}, []string{"result"}),
		WorkflowStageDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "skillsfabric_workflow_stage_duration_seconds",
			Help: "Wall-clock duration per supervisor stage.",
		}, []string{"stage"}),
		LogRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillsfabric_log_records_total",
			Help: "Log records emitted through internal/logx, by level.",
		}, []string{"level"}),
	}

	reg.MustRegister(
		m.HallMObservations, m.HallMCurrentRate, m.DDRRetrievals,
		m.AuditDuration, m.ThinkingRequests, m.WorkflowStageDur,
		m.LogRecords,
	)
	// Create both Hall_m outcome series up front so /metrics lists the
	// counter, at zero, before the first observation.
	m.HallMObservations.WithLabelValues("validated")
	m.HallMObservations.WithLabelValues("rejected")

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	m.tracer = tp.Tracer(serviceName)

	if exporter, err := otelprom.New(otelprom.WithRegisterer(reg), otelprom.WithNamespace("skillsfabric_otel")); err == nil {
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		otel.SetMeterProvider(mp)
		m.meterProvider = mp

		meter := mp.Meter(serviceName)
		if hist, err := meter.Float64Histogram(
			"workflow_stage_duration_seconds",
			otelmetric.WithDescription("Wall-clock duration per supervisor stage, OTel mirror of the Prometheus histogram."),
		); err == nil {
			m.otelStageHist = hist
		}
	}

	return m
}

// NewWithStdoutTracing is New, but exports spans to stdout — useful for
// local `generate`/`verify` runs where no collector is configured.
func NewWithStdoutTracing(serviceName string) (*Metrics, func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	m := New(serviceName)
	m.tracer = tp.Tracer(serviceName)
	return m, tp.Shutdown, nil
}

// Tracer returns the component tracer for starting spans around
// suspending operations (validator calls, LLM calls, HTTP requests).
func (m *Metrics) Tracer() trace.Tracer { return m.tracer }

// StartSpan is a convenience wrapper used at every suspension point
// named in spec §5 ("invoke the validator", "call the LLM", "HTTP
// request", "record against Hall_m with fail-fast").
func (m *Metrics) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name)
}

// ObserveHallM implements internal/hallm.Observer.
func (m *Metrics) ObserveHallM(outcome string, cumulativeRate float64) {
	m.HallMObservations.WithLabelValues(outcome).Inc()
	m.HallMCurrentRate.Set(cumulativeRate)
}

// RecordDDRRetrieval implements internal/ddr.Recorder.
func (m *Metrics) RecordDDRRetrieval(outcome string) {
	m.DDRRetrievals.WithLabelValues(outcome).Inc()
}

// RecordAuditDuration implements internal/audit.DurationRecorder.
func (m *Metrics) RecordAuditDuration(d time.Duration) {
	m.AuditDuration.Observe(d.Seconds())
}

// ObserveWorkflowStage implements internal/workflow.StageTimer.
func (m *Metrics) ObserveWorkflowStage(stage string, d time.Duration) {
	m.WorkflowStageDur.WithLabelValues(stage).Observe(d.Seconds())
	if m.otelStageHist != nil {
		m.otelStageHist.Record(context.Background(), d.Seconds(), otelmetric.WithAttributes(
			attribute.String("stage", stage),
		))
	}
}

// LogSink returns a slog.Handler that counts log records by level, for
// logx.Config.Sink — log volume lands on the same registry as every
// other pipeline signal.
func (m *Metrics) LogSink() slog.Handler {
	return logCounter{vec: m.LogRecords}
}

type logCounter struct {
	vec *prometheus.CounterVec
}

func (logCounter) Enabled(context.Context, slog.Level) bool { return true }

func (c logCounter) Handle(_ context.Context, r slog.Record) error {
	c.vec.WithLabelValues(r.Level.String()).Inc()
	return nil
}

func (c logCounter) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c logCounter) WithGroup(string) slog.Handler      { return c }

// Shutdown flushes the OTel meter provider, if one was constructed.
// Safe to call on a Metrics built without tracing/metrics export.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.meterProvider == nil {
		return nil
	}
	return m.meterProvider.Shutdown(ctx)
}
