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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/util"
)

// Native is an experiment compiled for and run on the host.
type Native struct {
	base
}

// nativeBinary is the executable name inside a native spec directory.
const nativeBinary = "main"

// TargetPath returns "<dir>/main".
func (n *Native) TargetPath() string {
	return filepath.Join(n.DirPath(), nativeBinary)
}

// Runtimes returns nil; native specs have a single implicit runtime.
func (n *Native) Runtimes() []string {
	return nil
}

// LogPaths returns the single log file, named by the encoded identity.
func (n *Native) LogPaths() []string {
	return []string{n.logPath()}
}

func (n *Native) logPath() string {
	return filepath.Join(n.layout.LogDir, n.stem)
}

// Recipe removes the stale log and compiles with the native compiler.
func (n *Native) Recipe() []string {
	return []string{
		removeLine(n.LogPaths()),
		n.compileLine(n.tc.NativeCompiler, n.tc.NativeFlags, n.TargetPath(), nil),
	}
}

// Execute runs the binary Repetitions times and appends its samples.
//
// # Description
//
// The log file is opened once for the whole loop (truncated first unless
// opts.Append) and closed on every exit path. A repetition is accepted only
// when it exits zero and prints at least one line, every line a number; its
// samples are written immediately so partial progress survives a crash.
// Rejected repetitions are recorded as *ExecutionFailure and write nothing.
//
// # Outputs
//
//   - *Result: One attempt per repetition started.
//   - error: Non-nil only when the log cannot be opened or written, or when
//     ctx is cancelled. The Result is still returned in the latter case.
func (n *Native) Execute(ctx context.Context, exec Executor, opts ExecOptions) (*Result, error) {
	logger := opts.logger().With("spec", n.stem)
	result := &Result{Spec: n}

	if err := os.MkdirAll(n.layout.LogDir, 0755); err != nil {
		return result, fmt.Errorf("create log directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !opts.Append {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(n.logPath(), flags, 0644)
	if err != nil {
		return result, fmt.Errorf("open log %s: %w", n.logPath(), err)
	}
	defer f.Close()

	for rep := 0; rep < n.reps; rep++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		start := time.Now()
		// Relative to the spec directory, which is the working directory.
		out, runErr := exec.RunIn(ctx, n.DirPath(), "./"+nativeBinary)
		attempt := Attempt{Repetition: rep, Duration: time.Since(start)}

		var samples []string
		if runErr == nil {
			samples, runErr = parseSamples(out)
		}
		if runErr != nil {
			attempt.Err = &ExecutionFailure{Spec: n.stem, Repetition: rep, Err: runErr}
			logger.Warn("repetition failed", "repetition", rep, "error", runErr,
				"stderr", util.ExtractStderr(runErr))
			result.record(attempt)
			continue
		}

		if _, err := f.WriteString(strings.Join(samples, "\n") + "\n"); err != nil {
			return result, fmt.Errorf("append to log %s: %w", n.logPath(), err)
		}
		attempt.Samples = len(samples)
		logger.Debug("repetition finished", "repetition", rep, "samples", len(samples), "duration", attempt.Duration)
		result.record(attempt)
	}

	if err := f.Close(); err != nil {
		return result, fmt.Errorf("close log %s: %w", n.logPath(), err)
	}
	return result, nil
}

// parseSamples validates benchmark stdout and returns its trimmed lines.
func parseSamples(out []byte) ([]string, error) {
	var samples []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return nil, fmt.Errorf("%w: line %d %q", ErrMalformedOutput, line, text)
		}
		samples = append(samples, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no output", ErrMalformedOutput)
	}
	return samples, nil
}
