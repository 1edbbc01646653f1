// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/util"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Runner executes an external command in a given working directory.
//
// # Description
//
// RunIn runs name with args, waits for it, and returns its standard output.
// A non-zero exit or launch failure returns a *util.CommandError carrying the
// tail of standard error. Output captured before the failure is still
// returned.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Runner interface {
	RunIn(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Default Implementation
// -----------------------------------------------------------------------------

// Manager is the production Runner backed by os/exec.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a Manager. A nil logger uses slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// RunIn implements Runner.
//
// # Inputs
//
//   - ctx: Cancelling it kills the subprocess.
//   - dir: Working directory of the subprocess ("" inherits ours).
//   - name, args: Program and arguments, passed without a shell.
//
// # Outputs
//
//   - []byte: Standard output.
//   - error: *util.CommandError on failure.
func (m *Manager) RunIn(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	m.logger.Debug("subprocess finished",
		"command", util.CommandLine(name, args),
		"dir", dir,
		"duration", time.Since(start),
		"ok", err == nil,
	)
	if err != nil {
		return stdout.Bytes(), util.FromExec(err, name, args, stderr.String())
	}
	return stdout.Bytes(), nil
}

var _ Runner = (*Manager)(nil)

// -----------------------------------------------------------------------------
// Mock Implementation
// -----------------------------------------------------------------------------

// MockManager is a Runner for tests.
//
// RunInFunc decides the outcome of each call; when nil every call succeeds
// with empty output. All calls are recorded in order.
type MockManager struct {
	RunInFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

	mu    sync.Mutex
	Calls []Call
}

// Call records one RunIn invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// RunIn implements Runner.
func (m *MockManager) RunIn(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Dir: dir, Name: name, Args: append([]string(nil), args...)})
	m.mu.Unlock()

	if m.RunInFunc != nil {
		return m.RunInFunc(ctx, dir, name, args...)
	}
	return nil, nil
}

// GetCalls returns a copy of the recorded calls.
func (m *MockManager) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Reset clears recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

var _ Runner = (*MockManager)(nil)
