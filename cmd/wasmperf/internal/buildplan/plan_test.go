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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/infra/process"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/naming"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/util"
)

type lab struct {
	root    string
	factory *experiment.Factory
}

func newLab(t *testing.T, sources ...string) *lab {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	for _, s := range sources {
		require.NoError(t, os.WriteFile(filepath.Join(src, s+".cpp"), []byte("int main(){}"), 0644))
	}
	return &lab{
		root: root,
		factory: experiment.NewFactory(experiment.Layout{
			SourceDir: src,
			OutDir:    filepath.Join(root, "out"),
			LogDir:    filepath.Join(root, "logs"),
		}, experiment.DefaultToolchain()),
	}
}

func (l *lab) spec(t *testing.T, kind naming.Kind, alg string, params naming.Params, runtimes ...string) experiment.Spec {
	t.Helper()
	s, err := l.factory.New(kind, alg, params, 1, runtimes)
	require.NoError(t, err)
	return s
}

// =============================================================================
// Plan
// =============================================================================

func TestPlan_OneRulePerSpec(t *testing.T) {
	l := newLab(t, "merge")
	specs := []experiment.Spec{
		l.spec(t, naming.KindNative, "merge", naming.Params{{Key: "SIZE", Value: "100"}}),
		l.spec(t, naming.KindWasmSingle, "merge", naming.Params{{Key: "SIZE", Value: "100"}}, "firefox"),
	}

	bf, err := Plan(specs)
	require.NoError(t, err)
	require.Len(t, bf.Rules, 2)

	for i, r := range bf.Rules {
		assert.Equal(t, specs[i].TargetPath(), r.Target)
		assert.Equal(t, specs[i].Source(), r.Dependency)
		require.Len(t, r.Recipe, 2)
		assert.True(t, strings.HasPrefix(r.Recipe[0], "rm -f "), "stale logs removed first")
	}
	assert.Equal(t, []string{specs[0].TargetPath(), specs[1].TargetPath()}, bf.Targets())
}

func TestPlan_DuplicateTarget(t *testing.T) {
	l := newLab(t, "merge")
	a := l.spec(t, naming.KindNative, "merge", naming.Params{{Key: "SIZE", Value: "1"}})
	b := l.spec(t, naming.KindNative, "merge", naming.Params{{Key: "size", Value: "1"}})

	_, err := Plan([]experiment.Spec{a, b})
	require.Error(t, err)

	var planErr *PlanError
	require.True(t, errors.As(err, &planErr))
	assert.ErrorIs(t, err, ErrDuplicateTarget)
	assert.Equal(t, b.TargetPath(), planErr.Target)
}

func TestPlan_MissingSource(t *testing.T) {
	l := newLab(t)
	_, err := Plan([]experiment.Spec{l.spec(t, naming.KindNative, "merge", nil)})

	var planErr *PlanError
	require.True(t, errors.As(err, &planErr))
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestPlan_Empty(t *testing.T) {
	bf, err := Plan(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = bf.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "all:\n\n.PHONY: all\n", buf.String())
}

// =============================================================================
// Rendering
// =============================================================================

func TestWriteTo_Format(t *testing.T) {
	bf := &BuildFile{Rules: []Rule{
		{Target: "/o/a!native/main", Dependency: "/s/a.cpp", Recipe: []string{"rm -f /l/a!native", "clang++ -o /o/a!native/main /s/a.cpp"}},
		{Target: "/o/b!wasm_single/t.js", Dependency: "/s/b.cpp", Recipe: []string{"emcc -o /o/b!wasm_single/t.js /s/b.cpp"}},
	}}

	var buf bytes.Buffer
	n, err := bf.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	want := "all: /o/a!native/main /o/b!wasm_single/t.js\n" +
		"\n" +
		"/o/a!native/main: /s/a.cpp\n" +
		"\trm -f /l/a!native\n" +
		"\tclang++ -o /o/a!native/main /s/a.cpp\n" +
		"\n" +
		"/o/b!wasm_single/t.js: /s/b.cpp\n" +
		"\temcc -o /o/b!wasm_single/t.js /s/b.cpp\n" +
		"\n" +
		".PHONY: all\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTo_EscapesMakeSyntax(t *testing.T) {
	bf := &BuildFile{Rules: []Rule{
		{Target: "/o/my dir/main", Dependency: "/s/x#1.cpp", Recipe: []string{"echo $HOME"}},
	}}

	var buf bytes.Buffer
	_, err := bf.WriteTo(&buf)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `/o/my\ dir/main: /s/x\#1.cpp`)
	assert.Contains(t, buf.String(), "\techo $$HOME\n")
}

func TestWriteFile_DeterministicAndAtomic(t *testing.T) {
	l := newLab(t, "merge", "sort")
	specs := []experiment.Spec{
		l.spec(t, naming.KindNative, "merge", naming.Params{{Key: "SIZE", Value: "10"}}),
		l.spec(t, naming.KindWasmMulti, "sort", naming.Params{{Key: "N", Value: "8"}}, "firefox", "chromium"),
	}
	bf, err := Plan(specs)
	require.NoError(t, err)

	path := filepath.Join(l.root, "out", MakefileName)
	require.NoError(t, bf.WriteFile(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	again, err := Plan(specs)
	require.NoError(t, err)
	require.NoError(t, again.WriteFile(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(string(first), "all: "))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

// =============================================================================
// Prepare / Build
// =============================================================================

func TestPrepare_CopiesShellPageIntoWasmDirs(t *testing.T) {
	l := newLab(t, "merge")
	page := filepath.Join(l.root, "index.html")
	require.NoError(t, os.WriteFile(page, []byte("<html></html>"), 0644))

	native := l.spec(t, naming.KindNative, "merge", nil)
	wasm := l.spec(t, naming.KindWasmSingle, "merge", nil, "firefox")
	logDir := filepath.Join(l.root, "logs")

	require.NoError(t, Prepare([]experiment.Spec{native, wasm}, logDir, page))

	assert.DirExists(t, native.DirPath())
	assert.DirExists(t, logDir)
	assert.NoFileExists(t, filepath.Join(native.DirPath(), experiment.ShellPage))

	data, err := os.ReadFile(filepath.Join(wasm.DirPath(), experiment.ShellPage))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestPrepare_MissingShellPage(t *testing.T) {
	l := newLab(t, "merge")
	wasm := l.spec(t, naming.KindWasmSingle, "merge", nil, "firefox")

	err := Prepare([]experiment.Spec{wasm}, filepath.Join(l.root, "logs"), filepath.Join(l.root, "nope.html"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuilder_RunsMakeInOutDir(t *testing.T) {
	mock := &process.MockManager{}
	b := NewBuilder(BuilderConfig{OutDir: "/lab/out", Jobs: 8, KeepGoing: true}, mock, nil)

	require.NoError(t, b.Build(context.Background()))

	calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/lab/out", calls[0].Dir)
	assert.Equal(t, "make", calls[0].Name)
	assert.Equal(t, []string{"-j8", "-f", "Makefile", "-k", "all"}, calls[0].Args)
}

func TestBuilder_DefaultsAndFailure(t *testing.T) {
	cmdErr := util.NewCommandError("make -j4 -f Makefile all", 2, "clang++: error", nil)
	mock := &process.MockManager{RunInFunc: func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		return nil, cmdErr
	}}
	b := NewBuilder(BuilderConfig{OutDir: "/lab/out"}, mock, nil)

	assert.Equal(t, []string{"-j4", "-f", "Makefile", "all"}, b.Args())

	err := b.Build(context.Background())
	var got *util.CommandError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, 2, got.ExitCode)
}
