// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package buildplan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
)

// MakefileName is the build file written into the output directory.
const MakefileName = "Makefile"

// Prepare creates the directories a build and run need.
//
// # Description
//
// Creates every spec directory and the log directory, then copies the HTML
// shell page into each WASM spec directory as "index.html", which is the
// page the browser runner serves.
//
// # Inputs
//
//   - specs: Experiments to prepare.
//   - logDir: Log directory to create.
//   - shellPage: Path of the HTML page. Required when any spec is WASM.
func Prepare(specs []experiment.Spec, logDir, shellPage string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	for _, spec := range specs {
		if err := os.MkdirAll(spec.DirPath(), 0755); err != nil {
			return fmt.Errorf("create %s: %w", spec.DirPath(), err)
		}
		if !spec.Kind().IsWasm() {
			continue
		}
		if err := copyFile(shellPage, filepath.Join(spec.DirPath(), experiment.ShellPage)); err != nil {
			return fmt.Errorf("install shell page for %s: %w", spec, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// -----------------------------------------------------------------------------
// Builder
// -----------------------------------------------------------------------------

// Executor runs a command in a working directory. *process.Manager
// satisfies it.
type Executor interface {
	RunIn(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// Tool is the make binary. Default: "make".
	Tool string

	// OutDir is the build directory holding the Makefile. make runs with it
	// as its working directory.
	OutDir string

	// Jobs is make's -j value. Default: 4.
	Jobs int

	// KeepGoing passes -k so one failing target does not stop the others.
	KeepGoing bool
}

// Builder invokes make on a written plan.
type Builder struct {
	config BuilderConfig
	exec   Executor
	logger *slog.Logger
}

// NewBuilder creates a Builder. A nil logger uses slog.Default().
func NewBuilder(config BuilderConfig, exec Executor, logger *slog.Logger) *Builder {
	if config.Tool == "" {
		config.Tool = "make"
	}
	if config.Jobs <= 0 {
		config.Jobs = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{config: config, exec: exec, logger: logger}
}

// Args returns the make arguments, exposed for logging and tests.
func (b *Builder) Args() []string {
	args := []string{"-j" + strconv.Itoa(b.config.Jobs), "-f", MakefileName}
	if b.config.KeepGoing {
		args = append(args, "-k")
	}
	return append(args, AllTarget)
}

// Build runs make in OutDir.
//
// # Description
//
// The output directory is passed to the subprocess as its working
// directory; the current process never changes directory. A failing build
// returns the executor's error (a *util.CommandError for the default
// executor). Targets that did build remain usable, so callers normally log
// the error and carry on to the run phase, where missing artifacts surface
// as execution failures.
func (b *Builder) Build(ctx context.Context) error {
	start := time.Now()
	b.logger.Info("building", "dir", b.config.OutDir, "tool", b.config.Tool, "jobs", b.config.Jobs)

	_, err := b.exec.RunIn(ctx, b.config.OutDir, b.config.Tool, b.Args()...)
	if err != nil {
		b.logger.Error("build failed", "duration", time.Since(start), "error", err)
		return fmt.Errorf("build: %w", err)
	}
	b.logger.Info("build finished", "duration", time.Since(start))
	return nil
}
