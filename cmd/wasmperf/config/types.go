// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
)

// DefaultFileName is the lab config looked up in the working directory.
const DefaultFileName = "wasmperf.yaml"

type LabConfig struct {
	// Matrix is the experiment matrix file.
	Matrix string `yaml:"matrix" validate:"required"`

	Paths     PathsConfig     `yaml:"paths"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Build     BuildConfig     `yaml:"build"`
	Run       RunConfig       `yaml:"run"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PathsConfig struct {
	Sources   string `yaml:"sources" validate:"required"`    // <alg>.cpp files
	Out       string `yaml:"out" validate:"required"`        // per-spec build dirs + Makefile
	Logs      string `yaml:"logs" validate:"required"`       // sample logs
	ShellPage string `yaml:"shell_page" validate:"required"` // copied as index.html
}

type ToolchainConfig struct {
	NativeCompiler     string   `yaml:"native_compiler" validate:"required"`
	NativeFlags        []string `yaml:"native_flags"`
	WebCompiler        string   `yaml:"web_compiler" validate:"required"`
	WebFlags           []string `yaml:"web_flags"`
	WasmSingleFlags    []string `yaml:"wasm_single_flags"`
	WasmMultiFlags     []string `yaml:"wasm_multi_flags"`
	BrowserRunner      string   `yaml:"browser_runner" validate:"required"`
	BrowserRunnerFlags []string `yaml:"browser_runner_flags"`
}

type BuildConfig struct {
	Tool      string `yaml:"tool" validate:"required"`
	Jobs      int    `yaml:"jobs" validate:"gte=1,lte=256"`
	KeepGoing bool   `yaml:"keep_going"`
}

type RunConfig struct {
	// ParallelSpecs bounds concurrently running specs. Browser benchmarks
	// compete for the same machine, so 1 is the honest default.
	ParallelSpecs   int      `yaml:"parallel_specs" validate:"gte=1,lte=64"`
	Append          bool     `yaml:"append"`
	DefaultBrowsers []string `yaml:"default_browsers" validate:"dive,required"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the lab layout: sources in src/, build output in
// out/, logs in logs/.
func DefaultConfig() LabConfig {
	tc := experiment.DefaultToolchain()
	return LabConfig{
		Matrix: "experiments.yaml",
		Paths: PathsConfig{
			Sources:   "src",
			Out:       "out",
			Logs:      "logs",
			ShellPage: "shell.html",
		},
		Toolchain: ToolchainConfig{
			NativeCompiler:     tc.NativeCompiler,
			NativeFlags:        tc.NativeFlags,
			WebCompiler:        tc.WebCompiler,
			WebFlags:           tc.WebFlags,
			WasmSingleFlags:    tc.WasmSingleFlags,
			WasmMultiFlags:     tc.WasmMultiFlags,
			BrowserRunner:      tc.BrowserRunner,
			BrowserRunnerFlags: tc.BrowserRunnerFlags,
		},
		Build: BuildConfig{
			Tool: "make",
			Jobs: 4,
		},
		Run: RunConfig{
			ParallelSpecs: 1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Layout returns the experiment directory layout.
func (c LabConfig) Layout() experiment.Layout {
	return experiment.Layout{
		SourceDir: c.Paths.Sources,
		OutDir:    c.Paths.Out,
		LogDir:    c.Paths.Logs,
	}
}

// ExperimentToolchain converts the toolchain section.
func (c LabConfig) ExperimentToolchain() experiment.Toolchain {
	t := c.Toolchain
	return experiment.Toolchain{
		NativeCompiler:     t.NativeCompiler,
		NativeFlags:        t.NativeFlags,
		WebCompiler:        t.WebCompiler,
		WebFlags:           t.WebFlags,
		WasmSingleFlags:    t.WasmSingleFlags,
		WasmMultiFlags:     t.WasmMultiFlags,
		BrowserRunner:      t.BrowserRunner,
		BrowserRunnerFlags: t.BrowserRunnerFlags,
	}
}
