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
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egemengol/wasmperf/cmd/wasmperf/config"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/buildplan"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/infra/process"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/logstore"
)

const testMatrix = `
algorithms:
  merge:
    - architectures:
        - NATIVE
        - WASM_SINGLE - firefox
        - ARM64
      runs:
        - parameters:
            SIZE: 100
          repetitions: 2
`

// newTestLab lays out a lab in a temp dir and returns it with a mock
// executor that plays make, the native binaries and the browser runner.
func newTestLab(t *testing.T) (*lab, *process.MockManager, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Matrix = filepath.Join(root, "experiments.yaml")
	cfg.Paths = config.PathsConfig{
		Sources:   filepath.Join(root, "src"),
		Out:       filepath.Join(root, "out"),
		Logs:      filepath.Join(root, "logs"),
		ShellPage: filepath.Join(root, "shell.html"),
	}

	require.NoError(t, os.WriteFile(cfg.Matrix, []byte(testMatrix), 0644))
	require.NoError(t, os.MkdirAll(cfg.Paths.Sources, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Sources, "merge.cpp"), []byte("int main(){}"), 0644))
	require.NoError(t, os.WriteFile(cfg.Paths.ShellPage, []byte("<html></html>"), 0644))

	mock := &process.MockManager{RunInFunc: func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		switch {
		case name == "make":
			return nil, nil
		case name == "emrun":
			i := slices.Index(args, "--log_stdout")
			f, err := os.OpenFile(args[i+1], os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			_, err = f.WriteString("3.0\n")
			return nil, err
		case strings.HasSuffix(name, "/main"):
			return []byte("2.5\n"), nil
		}
		return nil, errors.New("unexpected command " + name)
	}}

	out := &bytes.Buffer{}
	l := &lab{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		exec:   mock,
		out:    out,
	}
	return l, mock, out
}

func TestPipeline_EndToEnd(t *testing.T) {
	l, mock, out := newTestLab(t)

	// A stale log from an earlier pass must not survive.
	require.NoError(t, os.MkdirAll(l.cfg.Paths.Logs, 0755))
	stale := filepath.Join(l.cfg.Paths.Logs, "merge!native!size+100")
	require.NoError(t, os.WriteFile(stale, []byte("99\n99\n99\n"), 0644))

	require.NoError(t, l.pipeline(context.Background(), pipelineOptions{}))

	assert.FileExists(t, filepath.Join(l.cfg.Paths.Out, buildplan.MakefileName))
	assert.FileExists(t, filepath.Join(l.cfg.Paths.Out, MetricsFileName))
	assert.FileExists(t, filepath.Join(l.cfg.Paths.Out, "merge!wasm_single!size+100", experiment.ShellPage))
	assert.Contains(t, out.String(), "ARM64", "skipped architecture is reported")

	calls := mock.GetCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "make", calls[0].Name)
	assert.Equal(t, l.cfg.Paths.Out, calls[0].Dir)

	result, err := logstore.New(l.cfg.Paths.Logs).Load("")
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Records, 2)
	assert.Equal(t, []float64{2.5, 2.5}, result.Records[0].Samples)
	assert.Equal(t, "firefox", result.Records[1].Runtime())
	assert.Equal(t, []float64{3.0, 3.0}, result.Records[1].Samples)

	metrics, err := os.ReadFile(filepath.Join(l.cfg.Paths.Out, MetricsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "wasmperf_runner_samples_total")
}

func TestPipeline_BuildFailureStillMeasures(t *testing.T) {
	l, mock, out := newTestLab(t)
	base := mock.RunInFunc
	mock.RunInFunc = func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		if name == "make" {
			return nil, errors.New("exit status 2")
		}
		if strings.HasSuffix(name, "/main") {
			return nil, errors.New("no such file or directory")
		}
		return base(ctx, dir, name, args...)
	}

	err := l.pipeline(context.Background(), pipelineOptions{})
	assert.ErrorIs(t, err, ErrRunIncomplete)
	assert.Contains(t, out.String(), "build failed")

	result, err := logstore.New(l.cfg.Paths.Logs).Load("")
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Empty(t, result.Records[0].Samples, "native log opened but nothing accepted")
	assert.Equal(t, "firefox", result.Records[1].Runtime())
	assert.Len(t, result.Records[1].Samples, 2, "wasm target still measured")
}

func TestPipeline_UnknownAlgorithmKeepsLogs(t *testing.T) {
	l, mock, _ := newTestLab(t)
	require.NoError(t, os.MkdirAll(l.cfg.Paths.Logs, 0755))
	keep := filepath.Join(l.cfg.Paths.Logs, "merge!native!size+100")
	require.NoError(t, os.WriteFile(keep, []byte("1\n"), 0644))

	err := l.pipeline(context.Background(), pipelineOptions{Algorithms: []string{"quicksort"}})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	assert.FileExists(t, keep)
	assert.Empty(t, mock.GetCalls())
}

func TestPipeline_PlanFailureKeepsLogs(t *testing.T) {
	l, mock, _ := newTestLab(t)
	require.NoError(t, os.Remove(filepath.Join(l.cfg.Paths.Sources, "merge.cpp")))
	require.NoError(t, os.MkdirAll(l.cfg.Paths.Logs, 0755))
	keep := filepath.Join(l.cfg.Paths.Logs, "merge!native!size+100")
	require.NoError(t, os.WriteFile(keep, []byte("1\n"), 0644))

	err := l.pipeline(context.Background(), pipelineOptions{})
	assert.ErrorIs(t, err, buildplan.ErrMissingSource)
	assert.FileExists(t, keep)
	assert.NoFileExists(t, filepath.Join(l.cfg.Paths.Out, buildplan.MakefileName))
	assert.Empty(t, mock.GetCalls())
}

func TestPipeline_AlgorithmFilterKeepsOtherLogs(t *testing.T) {
	l, _, _ := newTestLab(t)
	require.NoError(t, os.MkdirAll(l.cfg.Paths.Logs, 0755))
	other := filepath.Join(l.cfg.Paths.Logs, "quick!native!n+5")
	require.NoError(t, os.WriteFile(other, []byte("7\n"), 0644))
	stale := filepath.Join(l.cfg.Paths.Logs, "merge!native!size+100")
	require.NoError(t, os.WriteFile(stale, []byte("99\n"), 0644))

	require.NoError(t, l.pipeline(context.Background(), pipelineOptions{Algorithms: []string{"merge"}}))

	data, err := os.ReadFile(other)
	require.NoError(t, err)
	assert.Equal(t, "7\n", string(data))

	rec, err := logstore.LoadFile(stale)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 2.5}, rec.Samples)
}

func TestPipeline_LockHeld(t *testing.T) {
	l, _, _ := newTestLab(t)
	held := process.NewLabLock(process.LockConfig{Dir: l.cfg.Paths.Out})
	require.NoError(t, held.Acquire())
	defer held.Release()

	err := l.pipeline(context.Background(), pipelineOptions{})
	var lockErr *process.ErrLockHeld
	assert.ErrorAs(t, err, &lockErr)
}

func TestMeasure_AppendKeepsSamples(t *testing.T) {
	l, _, _ := newTestLab(t)
	ctx := context.Background()
	specs, err := l.expand(ctx, []string{"merge"})
	require.NoError(t, err)
	require.NoError(t, l.prepare(ctx, specs))

	_, err = l.measure(ctx, specs, 2, false)
	require.NoError(t, err)
	_, err = l.measure(ctx, specs, 2, true)
	require.NoError(t, err)

	rec, err := logstore.LoadFile(specs[0].LogPaths()[0])
	require.NoError(t, err)
	assert.Len(t, rec.Samples, 4)
}

func TestClean_KeepsLockFile(t *testing.T) {
	l, _, out := newTestLab(t)
	require.NoError(t, l.pipeline(context.Background(), pipelineOptions{}))

	lock, err := l.lock()
	require.NoError(t, err)
	defer lock.Release()

	require.NoError(t, clean(l, true, true, filepath.Base(lock.Path())))

	entries, err := os.ReadDir(l.cfg.Paths.Out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(lock.Path()), entries[0].Name())

	entries, err = os.ReadDir(l.cfg.Paths.Logs)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Contains(t, out.String(), "cleaned")
}

func TestRenderGroups(t *testing.T) {
	l, _, _ := newTestLab(t)
	require.NoError(t, l.pipeline(context.Background(), pipelineOptions{}))

	result, err := logstore.New(l.cfg.Paths.Logs).Load("merge")
	require.NoError(t, err)

	var buf bytes.Buffer
	renderGroups(&buf, logstore.GroupRecords(result.Records))
	text := buf.String()
	assert.Contains(t, text, "merge size=100")
	assert.Contains(t, text, "firefox")
	assert.Contains(t, text, "2.500")
	assert.Contains(t, text, "3.000")
}
