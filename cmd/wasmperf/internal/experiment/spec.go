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
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/naming"
)

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// Executor runs an external program in a working directory and returns its
// standard output. *process.Manager satisfies it.
type Executor interface {
	RunIn(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// Spec is one buildable, runnable experiment.
//
// # Description
//
// Every accessor is a pure function of the spec's identity, layout and
// toolchain; calling it twice returns the same value.
//
// # Thread Safety
//
// Specs are immutable and safe to share. Execute must not be called
// concurrently on the same spec because runs append to its log files.
type Spec interface {
	// Identity is the base identity, without a runtime tag.
	Identity() naming.Identity
	Kind() naming.Kind
	Algorithm() string
	Repetitions() int

	// Runtimes lists the browsers of a WASM spec in matrix order; nil for native.
	Runtimes() []string

	// DirName is the encoded stem; DirPath is it joined under the output dir.
	DirName() string
	DirPath() string

	// TargetPath is the build artifact: "<dir>/main" or "<dir>/t.js".
	TargetPath() string

	// Source is "<sources>/<algorithm>.cpp".
	Source() string

	// Macros are "KEY=VALUE" in parameter order with the original key case.
	Macros() []string

	// LogPaths has one entry for native, one per runtime for WASM.
	LogPaths() []string

	// Recipe is the build commands: stale log removal, then compilation.
	Recipe() []string

	// Execute runs every repetition (and every runtime) and appends the
	// output to the log files.
	Execute(ctx context.Context, exec Executor, opts ExecOptions) (*Result, error)

	String() string

	sealed()
}

// ExecOptions controls one execution pass.
type ExecOptions struct {
	// Append keeps existing log content. By default a pass truncates the
	// logs it writes so a rerun never mixes stale samples with new ones.
	Append bool

	// Logger receives per-repetition events. Nil uses slog.Default().
	Logger *slog.Logger
}

func (o ExecOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// -----------------------------------------------------------------------------
// Layout and Toolchain
// -----------------------------------------------------------------------------

// Layout locates sources, build output and logs on disk.
type Layout struct {
	SourceDir string
	OutDir    string
	LogDir    string
}

// ErrLogName is the stderr sideband file written by the browser runner into
// the log directory. It is not a sample log.
const ErrLogName = "err"

// ShellPage is the HTML page served to browsers from each WASM directory.
const ShellPage = "index.html"

// Toolchain holds compiler and runner command lines.
type Toolchain struct {
	NativeCompiler string
	NativeFlags    []string

	WebCompiler     string
	WebFlags        []string
	WasmSingleFlags []string
	WasmMultiFlags  []string

	BrowserRunner      string
	BrowserRunnerFlags []string
}

// DefaultToolchain returns the clang++/emcc/emrun setup of the lab.
func DefaultToolchain() Toolchain {
	return Toolchain{
		NativeCompiler: "clang++",
		NativeFlags:    []string{"-O3", "-pthread", "-std=c++17", "-DNDEBUG"},

		WebCompiler: "emcc",
		WebFlags: []string{
			"-std=c++17", "-Os", "-DNDEBUG", "--llvm-lto", "1",
			"-s", "TOTAL_MEMORY=1073741824", "--emrun",
		},
		WasmSingleFlags: []string{"-s", "NO_FILESYSTEM=1"},
		WasmMultiFlags: []string{
			"-s", "USE_PTHREADS=1", "-s", "PTHREAD_POOL_SIZE=7",
			"-s", "PROXY_TO_PTHREAD=1", "--memory-init-file", "0",
		},

		BrowserRunner:      "emrun",
		BrowserRunnerFlags: []string{"--serve_after_close", "--verbose"},
	}
}

// -----------------------------------------------------------------------------
// Shared Base
// -----------------------------------------------------------------------------

// base carries the state and accessors shared by all variants.
type base struct {
	id     naming.Identity
	params naming.Params
	reps   int
	stem   string
	layout Layout
	tc     Toolchain
}

func (b *base) sealed() {}

func (b *base) Identity() naming.Identity { return b.id }
func (b *base) Kind() naming.Kind         { return b.id.Kind }
func (b *base) Algorithm() string         { return b.id.Algorithm }
func (b *base) Repetitions() int          { return b.reps }
func (b *base) DirName() string           { return b.stem }
func (b *base) DirPath() string           { return filepath.Join(b.layout.OutDir, b.stem) }

func (b *base) Source() string {
	return filepath.Join(b.layout.SourceDir, b.id.Algorithm+".cpp")
}

func (b *base) Macros() []string {
	out := make([]string, len(b.params))
	for i, kv := range b.params {
		out[i] = kv.Key + "=" + kv.Value
	}
	return out
}

func (b *base) String() string {
	label := b.id.Algorithm + " " + b.id.Kind.Tag()
	if len(b.id.Params) > 0 {
		label += " " + b.id.Params.String()
	}
	return label
}

// compileLine renders "<compiler> <flags> -o <target> <variant flags>
// -D K=V ... <source>".
func (b *base) compileLine(compiler string, flags []string, target string, variant []string) string {
	args := []string{compiler}
	args = append(args, flags...)
	args = append(args, "-o", target)
	args = append(args, variant...)
	for _, m := range b.Macros() {
		args = append(args, "-D", m)
	}
	args = append(args, b.Source())
	return shellJoin(args)
}

// removeLine renders "rm -f <paths>".
func removeLine(paths []string) string {
	return shellJoin(append([]string{"rm", "-f"}, paths...))
}

// -----------------------------------------------------------------------------
// Shell Quoting
// -----------------------------------------------------------------------------

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./!-]+$`)

// shellQuote single-quotes s unless it is made of characters the shell
// passes through unchanged.
func shellQuote(s string) string {
	if s != "" && shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellJoin(args []string) string {
	quoted := slices.Clone(args)
	for i, a := range quoted {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}
