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
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/egemengol/wasmperf/cmd/wasmperf/config"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/buildplan"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/infra/process"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/matrix"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/runner"
)

// MetricsFileName is the Prometheus textfile written after each run.
const MetricsFileName = "metrics.prom"

var (
	// ErrUnknownAlgorithm is returned when --alg names no matrix algorithm.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrRunIncomplete is returned when some repetitions failed. Their
	// siblings' samples are still in the logs.
	ErrRunIncomplete = errors.New("run incomplete")
)

// =============================================================================
// Lab
// =============================================================================

// lab wires the lab phases to one config.
type lab struct {
	cfg    config.LabConfig
	logger *slog.Logger
	exec   process.Runner
	out    io.Writer
}

func newLab(cfg config.LabConfig, logger *slog.Logger, out io.Writer) *lab {
	return &lab{cfg: cfg, logger: logger, exec: process.NewManager(logger), out: out}
}

// expand loads the matrix and returns the selected specs.
//
// # Description
//
// Skipped architectures and invalid runs are reported but do not fail the
// expansion; only an unreadable matrix or an --alg name that matches no
// algorithm does.
func (l *lab) expand(ctx context.Context, algs []string) ([]experiment.Spec, error) {
	_, span := tracer.Start(ctx, "lab.expand")
	defer span.End()

	m, err := matrix.Load(l.cfg.Matrix)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "matrix")
		return nil, err
	}
	for _, name := range algs {
		if !slices.ContainsFunc(m.Algorithms, func(a matrix.Algorithm) bool { return a.Name == name }) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
		}
	}

	factory := experiment.NewFactory(l.cfg.Layout(), l.cfg.ExperimentToolchain())
	expander := matrix.NewExpander(factory,
		matrix.WithLogger(l.logger),
		matrix.WithDefaultBrowsers(l.cfg.Run.DefaultBrowsers...),
	)
	expansion := expander.Expand(m)
	for _, w := range expansion.Warnings {
		printWarning(l.out, "skipped %s", w)
	}
	for _, err := range expansion.Errors {
		printWarning(l.out, "skipped experiment: %v", err)
	}

	specs := expansion.ForAlgorithms(algs...)
	span.SetAttributes(
		attribute.Int("specs", len(specs)),
		attribute.Int("warnings", len(expansion.Warnings)),
		attribute.Int("config_errors", len(expansion.Errors)),
	)
	l.logger.Info("matrix expanded", "matrix", l.cfg.Matrix, "specs", len(specs),
		"skipped_architectures", len(expansion.Warnings), "invalid_runs", len(expansion.Errors))
	return specs, nil
}

// plan computes and validates the build plan for specs. Nothing is written.
func (l *lab) plan(ctx context.Context, specs []experiment.Spec) (*buildplan.BuildFile, error) {
	_, span := tracer.Start(ctx, "lab.plan")
	defer span.End()

	bf, err := buildplan.Plan(specs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan")
		return nil, err
	}
	span.SetAttributes(attribute.Int("targets", len(bf.Rules)))
	return bf, nil
}

// writePlan writes bf as the Makefile in the output directory.
func (l *lab) writePlan(bf *buildplan.BuildFile) (string, error) {
	path := filepath.Join(l.cfg.Paths.Out, buildplan.MakefileName)
	if err := bf.WriteFile(path); err != nil {
		return "", err
	}
	l.logger.Info("build plan written", "path", path, "targets", len(bf.Rules))
	return path, nil
}

// clearLogs removes the logs a pipeline pass is about to regenerate. With an
// algorithm filter only the selected specs' logs go; otherwise the whole
// log directory is emptied.
func (l *lab) clearLogs(specs []experiment.Spec, filtered bool) error {
	if !filtered {
		if err := os.RemoveAll(l.cfg.Paths.Logs); err != nil {
			return fmt.Errorf("clear logs: %w", err)
		}
		l.logger.Info("logs cleared", "dir", l.cfg.Paths.Logs)
		return nil
	}
	removed := 0
	for _, spec := range specs {
		for _, path := range spec.LogPaths() {
			err := os.Remove(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return fmt.Errorf("clear log %s: %w", path, err)
			}
			removed++
		}
	}
	l.logger.Info("logs cleared", "dir", l.cfg.Paths.Logs, "files", removed)
	return nil
}

// prepare creates spec directories and installs the shell page.
func (l *lab) prepare(ctx context.Context, specs []experiment.Spec) error {
	_, span := tracer.Start(ctx, "lab.prepare")
	defer span.End()

	if err := buildplan.Prepare(specs, l.cfg.Paths.Logs, l.cfg.Paths.ShellPage); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare")
		return err
	}
	return nil
}

// build runs make. jobs and keepGoing override the config when set.
func (l *lab) build(ctx context.Context, jobs int, keepGoing bool) error {
	ctx, span := tracer.Start(ctx, "lab.build")
	defer span.End()

	bc := buildplan.BuilderConfig{
		Tool:      l.cfg.Build.Tool,
		OutDir:    l.cfg.Paths.Out,
		Jobs:      l.cfg.Build.Jobs,
		KeepGoing: l.cfg.Build.KeepGoing || keepGoing,
	}
	if jobs > 0 {
		bc.Jobs = jobs
	}
	if err := buildplan.NewBuilder(bc, l.exec, l.logger).Build(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "make failed")
		return err
	}
	return nil
}

// measure runs specs and writes the metrics textfile.
func (l *lab) measure(ctx context.Context, specs []experiment.Spec, parallel int, appendLogs bool) (*runner.Summary, error) {
	ctx, span := tracer.Start(ctx, "lab.run")
	defer span.End()

	rc := runner.Config{
		Parallelism: l.cfg.Run.ParallelSpecs,
		Append:      l.cfg.Run.Append || appendLogs,
	}
	if parallel > 0 {
		rc.Parallelism = parallel
	}

	reg := prometheus.NewRegistry()
	r := runner.New(l.exec, rc, runner.WithLogger(l.logger), runner.WithMetrics(runner.NewMetrics(reg)))
	summary, runErr := r.Run(ctx, specs)

	metricsPath := filepath.Join(l.cfg.Paths.Out, MetricsFileName)
	if err := os.MkdirAll(l.cfg.Paths.Out, 0755); err == nil {
		if err := prometheus.WriteToTextfile(metricsPath, reg); err != nil {
			l.logger.Warn("could not write metrics", "path", metricsPath, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("attempts", summary.Attempts()),
		attribute.Int("failures", len(summary.Failures())),
	)
	printRunSummary(l.out, summary)
	if runErr != nil {
		span.SetStatus(codes.Error, "cancelled")
		return summary, runErr
	}
	if len(summary.Failures()) > 0 || len(summary.SpecErrors) > 0 {
		span.SetStatus(codes.Error, "incomplete")
		return summary, fmt.Errorf("%w: %d failed repetitions, %d aborted experiments",
			ErrRunIncomplete, len(summary.Failures()), len(summary.SpecErrors))
	}
	return summary, nil
}

// lock takes the lab lock in the output directory so two measuring
// processes never share the machine.
func (l *lab) lock() (*process.LabLock, error) {
	lock := process.NewLabLock(process.LockConfig{Dir: l.cfg.Paths.Out})
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	return lock, nil
}

// pipelineOptions are the per-invocation knobs of the full lab flow.
type pipelineOptions struct {
	Algorithms []string
	Parallel   int
	Jobs       int
	KeepGoing  bool
	Append     bool
}

// pipeline runs the whole lab: expand, plan, clear logs, prepare, build, run.
//
// # Description
//
// Logs are cleared only after the matrix expanded and the build plan
// validated, so a typo in the matrix or a missing source never destroys
// previous results. With an algorithm filter only the selected experiments'
// logs are cleared. A failed build is reported and the run phase still
// starts: targets that compiled are measured and missing artifacts surface
// as execution failures.
func (l *lab) pipeline(ctx context.Context, opts pipelineOptions) error {
	ctx, span := tracer.Start(ctx, "lab.pipeline")
	defer span.End()

	lock, err := l.lock()
	if err != nil {
		return err
	}
	defer lock.Release()

	specs, err := l.expand(ctx, opts.Algorithms)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		printWarning(l.out, "nothing to run")
		return nil
	}
	bf, err := l.plan(ctx, specs)
	if err != nil {
		return err
	}

	if !opts.Append && !l.cfg.Run.Append {
		if err := l.clearLogs(specs, len(opts.Algorithms) > 0); err != nil {
			return err
		}
	}

	if _, err := l.writePlan(bf); err != nil {
		return err
	}
	if err := l.prepare(ctx, specs); err != nil {
		return err
	}
	if err := l.build(ctx, opts.Jobs, opts.KeepGoing); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		printWarning(l.out, "build failed, measuring what was built: %v", err)
	}

	_, err = l.measure(ctx, specs, opts.Parallel, opts.Append)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func runInit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefault(configPath); err != nil {
		return err
	}
	printSuccess(cmd.OutOrStdout(), "wrote %s", configPath)
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	l := newLab(session.cfg, session.Slog(), cmd.OutOrStdout())
	ctx := cmd.Context()

	specs, err := l.expand(ctx, algorithms)
	if err != nil {
		return err
	}
	bf, err := l.plan(ctx, specs)
	if err != nil {
		return err
	}
	path, err := l.writePlan(bf)
	if err != nil {
		return err
	}
	if err := l.prepare(ctx, specs); err != nil {
		return err
	}
	printSuccess(l.out, "%d targets in %s", len(bf.Rules), path)
	return nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	l := newLab(session.cfg, session.Slog(), cmd.OutOrStdout())
	if err := l.build(cmd.Context(), buildJobs, keepGoing); err != nil {
		return err
	}
	printSuccess(l.out, "build finished")
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	l := newLab(session.cfg, session.Slog(), cmd.OutOrStdout())
	ctx := cmd.Context()

	lock, err := l.lock()
	if err != nil {
		return err
	}
	defer lock.Release()

	specs, err := l.expand(ctx, algorithms)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.cfg.Paths.Logs, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	_, err = l.measure(ctx, specs, parallelSpecs, appendLogs)
	return err
}

func runPipeline(cmd *cobra.Command, args []string) error {
	l := newLab(session.cfg, session.Slog(), cmd.OutOrStdout())
	return l.pipeline(cmd.Context(), pipelineOptions{
		Algorithms: algorithms,
		Parallel:   parallelSpecs,
		Jobs:       buildJobs,
		KeepGoing:  keepGoing,
		Append:     appendLogs,
	})
}
