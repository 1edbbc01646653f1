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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "experiments.yaml"), cfg.Matrix)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.Paths.Out)
	assert.Equal(t, "make", cfg.Build.Tool)
	assert.Equal(t, 4, cfg.Build.Jobs)
	assert.Equal(t, 1, cfg.Run.ParallelSpecs)
	assert.Equal(t, "clang++", cfg.Toolchain.NativeCompiler)
	assert.Empty(t, cfg.Logging.Dir)
}

func TestLoad_OverridesAndResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
matrix: lab/matrix.yaml
paths:
  logs: /var/lab/logs
run:
  parallel_specs: 2
  default_browsers: [firefox]
build:
  keep_going: true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "lab", "matrix.yaml"), cfg.Matrix)
	assert.Equal(t, "/var/lab/logs", cfg.Paths.Logs)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.Paths.Sources, "unset keys keep defaults")
	assert.Equal(t, 2, cfg.Run.ParallelSpecs)
	assert.Equal(t, []string{"firefox"}, cfg.Run.DefaultBrowsers)
	assert.True(t, cfg.Build.KeepGoing)
	assert.Equal(t, 4, cfg.Build.Jobs)

	layout := cfg.Layout()
	assert.Equal(t, cfg.Paths.Out, layout.OutDir)
	assert.Equal(t, "emcc", cfg.ExperimentToolchain().WebCompiler)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero jobs", "build:\n  jobs: 0\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"empty browser", "run:\n  default_browsers: ['']\n"},
		{"no compiler", "toolchain:\n  web_compiler: ''\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))

			_, err := Load(path)
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("build: [unclosed\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab", DefaultFileName)

	require.NoError(t, WriteDefault(path))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Toolchain, cfg.Toolchain)

	assert.ErrorIs(t, WriteDefault(path), ErrConfigExists)
}
