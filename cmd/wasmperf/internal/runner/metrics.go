// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
)

var tracer = otel.Tracer("wasmperf.runner")

// =============================================================================
// Prometheus Metrics for the Run Phase
// =============================================================================

// Metrics holds the run-phase collectors.
//
// The CLI registers them on a private registry and dumps it in text format
// next to the build tree after each run, so a lab machine needs no scrape
// endpoint.
type Metrics struct {
	// attempts counts repetitions.
	// Labels: kind, runtime ("" for native), status (ok, failed)
	attempts *prometheus.CounterVec

	// attemptDuration measures wall time per repetition.
	// Labels: kind
	attemptDuration *prometheus.HistogramVec

	// samples counts values appended to native logs.
	// Labels: algorithm
	samples *prometheus.CounterVec

	// specErrors counts specs whose execution aborted (log unwritable,
	// cancellation).
	// Labels: kind
	specErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmperf",
			Subsystem: "runner",
			Name:      "attempts_total",
			Help:      "Benchmark repetitions by outcome",
		}, []string{"kind", "runtime", "status"}),

		attemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wasmperf",
			Subsystem: "runner",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of one benchmark repetition",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"kind"}),

		samples: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmperf",
			Subsystem: "runner",
			Name:      "samples_total",
			Help:      "Samples appended to native logs",
		}, []string{"algorithm"}),

		specErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmperf",
			Subsystem: "runner",
			Name:      "spec_errors_total",
			Help:      "Specs whose execution aborted",
		}, []string{"kind"}),
	}
}

// recordResult records every attempt of one spec.
func (m *Metrics) recordResult(spec experiment.Spec, result *experiment.Result) {
	if m == nil || result == nil {
		return
	}
	kind := spec.Kind().Tag()
	for _, a := range result.Attempts {
		status := "ok"
		if !a.OK() {
			status = "failed"
		}
		m.attempts.WithLabelValues(kind, a.Runtime, status).Inc()
		m.attemptDuration.WithLabelValues(kind).Observe(a.Duration.Seconds())
	}
	if n := result.Samples(); n > 0 {
		m.samples.WithLabelValues(spec.Algorithm()).Add(float64(n))
	}
}

func (m *Metrics) recordSpecError(spec experiment.Spec) {
	if m == nil {
		return
	}
	m.specErrors.WithLabelValues(spec.Kind().Tag()).Inc()
}

// =============================================================================
// Tracing
// =============================================================================

// startSpecSpan creates a span around one spec's execution.
func startSpecSpan(ctx context.Context, spec experiment.Spec) (context.Context, trace.Span) {
	return tracer.Start(ctx, "runner.Spec",
		trace.WithAttributes(
			attribute.String("spec.name", spec.DirName()),
			attribute.String("spec.kind", spec.Kind().Tag()),
			attribute.Int("spec.repetitions", spec.Repetitions()),
			attribute.StringSlice("spec.runtimes", spec.Runtimes()),
		),
	)
}

// setSpecSpanResult sets the result attributes on a spec span.
func setSpecSpanResult(span trace.Span, result *experiment.Result) {
	if result == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("spec.attempts", len(result.Attempts)),
		attribute.Int("spec.succeeded", result.Succeeded()),
		attribute.Int("spec.samples", result.Samples()),
	)
}
