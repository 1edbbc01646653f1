// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package experiment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/util"
)

// wasm holds what both browser-hosted variants share.
type wasm struct {
	base

	// runtimes are browser commands as written in the matrix; tags are
	// their base names and logNames the encoded per-runtime identities.
	runtimes []string
	tags     []string
	logNames []string

	variantFlags []string
}

// TargetPath returns "<dir>/t.js".
func (w *wasm) TargetPath() string {
	return filepath.Join(w.DirPath(), "t.js")
}

// Runtimes returns the browser commands in matrix order.
func (w *wasm) Runtimes() []string {
	return slices.Clone(w.runtimes)
}

// RuntimeTag returns the log-name tag of a browser command: its base name,
// so "/usr/bin/firefox" and "firefox" share a tag.
func RuntimeTag(runtime string) string {
	return filepath.Base(runtime)
}

// LogPaths returns "<logs>/<stem>!<tag>" for every runtime.
func (w *wasm) LogPaths() []string {
	out := make([]string, len(w.logNames))
	for i := range w.logNames {
		out[i] = w.logPath(i)
	}
	return out
}

func (w *wasm) logPath(i int) string {
	return filepath.Join(w.layout.LogDir, w.logNames[i])
}

// Recipe removes every per-runtime log and compiles with the web compiler.
func (w *wasm) Recipe() []string {
	return []string{
		removeLine(w.LogPaths()),
		w.compileLine(w.tc.WebCompiler, w.tc.WebFlags, w.TargetPath(), w.variantFlags),
	}
}

// Execute runs every (runtime, repetition) pair through the browser runner.
//
// # Description
//
// The runner writes stdout to the per-runtime log itself and stderr to the
// shared "err" sideband. Unless opts.Append, each runtime's log is removed
// before its first repetition. Every pair is an independent attempt; a
// failure is recorded and the next pair still runs.
//
// # Outputs
//
//   - *Result: One attempt per pair started, runtimes in matrix order.
//   - error: Non-nil when ctx is cancelled or a stale log cannot be removed.
func (w *wasm) execute(ctx context.Context, self Spec, exec Executor, opts ExecOptions) (*Result, error) {
	logger := opts.logger().With("spec", w.stem)
	result := &Result{Spec: self}

	if err := os.MkdirAll(w.layout.LogDir, 0755); err != nil {
		return result, fmt.Errorf("create log directory: %w", err)
	}
	errLog := filepath.Join(w.layout.LogDir, ErrLogName)

	for i, runtime := range w.runtimes {
		logPath := w.logPath(i)
		if !opts.Append {
			if err := os.Remove(logPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return result, fmt.Errorf("truncate log %s: %w", logPath, err)
			}
		}

		for rep := 0; rep < w.reps; rep++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			args := []string{"--browser", runtime}
			args = append(args, w.tc.BrowserRunnerFlags...)
			args = append(args,
				"--serve_root", w.DirPath(),
				"--log_stdout", logPath,
				"--log_stderr", errLog,
				ShellPage,
			)

			start := time.Now()
			_, err := exec.RunIn(ctx, w.DirPath(), w.tc.BrowserRunner, args...)
			attempt := Attempt{Runtime: runtime, Repetition: rep, Duration: time.Since(start)}
			if err != nil {
				attempt.Err = &ExecutionFailure{Spec: w.stem, Runtime: runtime, Repetition: rep, Err: err}
				logger.Warn("repetition failed", "runtime", runtime, "repetition", rep, "error", err,
					"stderr", util.ExtractStderr(err))
			} else {
				logger.Debug("repetition finished", "runtime", runtime, "repetition", rep, "duration", attempt.Duration)
			}
			result.record(attempt)
		}
	}
	return result, nil
}

// WasmSingle is a single-threaded WebAssembly experiment.
type WasmSingle struct {
	wasm
}

// Execute implements Spec.
func (s *WasmSingle) Execute(ctx context.Context, exec Executor, opts ExecOptions) (*Result, error) {
	return s.execute(ctx, s, exec, opts)
}

// WasmMulti is a pthread-enabled WebAssembly experiment.
type WasmMulti struct {
	wasm
}

// Execute implements Spec.
func (m *WasmMulti) Execute(ctx context.Context, exec Executor, opts ExecOptions) (*Result, error) {
	return m.execute(ctx, m, exec, opts)
}

var (
	_ Spec = (*Native)(nil)
	_ Spec = (*WasmSingle)(nil)
	_ Spec = (*WasmMulti)(nil)
)
