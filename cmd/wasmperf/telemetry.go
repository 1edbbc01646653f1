// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const tracerName = "wasmperf.lab"

// tracer covers the lab phases; the runner adds one span per experiment
// below them. initTracing rebinds it to the session provider.
var tracer = otel.Tracer(tracerName)

// initTracing installs a TracerProvider that writes spans to path.
//
// # Description
//
// With an empty path the global no-op provider stays in place and the
// returned shutdown does nothing. Otherwise spans are batched and written
// as JSON to the file, which is closed on shutdown.
//
// # Outputs
//
//   - shutdown: Flushes spans and closes the file. Must be called.
//   - error: Non-nil if the file or exporter cannot be created.
func initTracing(path, runID string) (shutdown func(context.Context) error, err error) {
	if path == "" {
		return func(context.Context) error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f), stdouttrace.WithPrettyPrint())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "wasmperf"),
		attribute.String("wasmperf.run_id", runID),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(tracerName)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), f.Close())
	}, nil
}
