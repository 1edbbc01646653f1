// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner executes built experiments.
//
// # Concurrency
//
// Specs own disjoint directories and log files, so independent specs run in
// parallel on a bounded pool. Repetitions within one spec always run one
// after another because they append to the same log.
package runner

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
)

// Config configures a Runner.
type Config struct {
	// Parallelism bounds how many specs run at once. Default: 1.
	Parallelism int

	// Append keeps existing log content instead of truncating it.
	Append bool
}

// SpecError is a spec whose execution aborted before all attempts ran.
type SpecError struct {
	Spec experiment.Spec
	Err  error
}

// Summary is the outcome of one run phase.
type Summary struct {
	// Results holds one entry per spec, in input order. An entry can hold
	// partial attempts when the spec aborted.
	Results []*experiment.Result

	// SpecErrors lists aborted specs.
	SpecErrors []SpecError

	Duration time.Duration
}

// Attempts counts every attempt across all specs.
func (s *Summary) Attempts() int {
	n := 0
	for _, r := range s.Results {
		if r != nil {
			n += len(r.Attempts)
		}
	}
	return n
}

// Failures collects every execution failure across all specs.
func (s *Summary) Failures() []*experiment.ExecutionFailure {
	var out []*experiment.ExecutionFailure
	for _, r := range s.Results {
		if r != nil {
			out = append(out, r.Failures()...)
		}
	}
	return out
}

// Runner drives Spec.Execute for a list of specs.
type Runner struct {
	exec    experiment.Executor
	config  Config
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics records run metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner.
func New(exec experiment.Executor, config Config, opts ...Option) *Runner {
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}
	r := &Runner{exec: exec, config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every spec.
//
// # Description
//
// Specs are scheduled on an errgroup limited to Parallelism workers. A
// spec's failed repetitions are recorded in its Result; a spec that aborts
// is recorded in SpecErrors. Neither affects any other spec, so the worker
// functions never return an error to the group. Cancelling ctx stops
// scheduling and aborts running specs at their next repetition.
//
// # Outputs
//
//   - *Summary: Always non-nil.
//   - error: ctx.Err() if the run was cancelled, nil otherwise.
func (r *Runner) Run(ctx context.Context, specs []experiment.Spec) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Results: make([]*experiment.Result, len(specs))}
	specErrs := make([]error, len(specs))

	r.logger.Info("run started", "specs", len(specs), "parallelism", r.config.Parallelism, "append", r.config.Append)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallelism)

	for i, spec := range specs {
		if gCtx.Err() != nil {
			break
		}
		i, spec := i, spec
		g.Go(func() error {
			summary.Results[i], specErrs[i] = r.runSpec(gCtx, spec)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range specErrs {
		if err != nil {
			summary.SpecErrors = append(summary.SpecErrors, SpecError{Spec: specs[i], Err: err})
		}
	}
	summary.Duration = time.Since(start)

	r.logger.Info("run finished",
		"specs", len(specs),
		"attempts", summary.Attempts(),
		"failed_attempts", len(summary.Failures()),
		"aborted_specs", len(summary.SpecErrors),
		"duration", summary.Duration,
	)
	return summary, ctx.Err()
}

func (r *Runner) runSpec(ctx context.Context, spec experiment.Spec) (*experiment.Result, error) {
	ctx, span := startSpecSpan(ctx, spec)
	defer span.End()

	logger := r.logger.With("spec", spec.DirName())
	logger.Info("measuring", "label", spec.String(), "repetitions", spec.Repetitions())

	result, err := spec.Execute(ctx, r.exec, experiment.ExecOptions{Append: r.config.Append, Logger: r.logger})
	r.metrics.recordResult(spec, result)
	setSpecSpanResult(span, result)

	if err != nil {
		logger.Error("spec aborted", "error", err)
		r.metrics.recordSpecError(spec)
		span.RecordError(err)
		span.SetStatus(codes.Error, "spec aborted")
		return result, err
	}
	if result != nil && len(result.Attempts) > result.Succeeded() {
		span.SetStatus(codes.Error, "some repetitions failed")
	}
	logger.Info("finished measuring", "succeeded", result.Succeeded(), "attempts", len(result.Attempts))
	return result, nil
}
