// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package util holds small helpers shared by the wasmperf command packages.
package util

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// maxStderr bounds the stderr kept on a CommandError. Compilers can print
// megabytes of diagnostics; the tail carries the failing line.
const maxStderr = 4096

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError wraps a subprocess failure with stderr context.
//
// # Description
//
// Returned by the process executor for every non-zero exit or launch
// failure: compiler invocations through make, native benchmark binaries and
// the browser runner. Supports errors.Is/As through Unwrap.
//
// # Thread Safety
//
// CommandError is immutable after creation and safe for concurrent reads.
//
// # Example
//
//	err := NewCommandError("make -j4 all", 2, "main.cpp:3: error", originalErr)
//	fmt.Println(err.Error()) // "make -j4 all (exit 2): main.cpp:3: error"
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    fmt.Println(cmdErr.ExitCode) // 2
//	}
type CommandError struct {
	// Command is the command line that was executed.
	Command string

	// ExitCode is the process exit code (-1 if the process never ran).
	ExitCode int

	// Stderr is the trimmed tail of standard error.
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Error returns "<command> (exit N): <stderr or wrapped error>".
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

var _ error = (*CommandError)(nil)

// =============================================================================
// Constructor Functions
// =============================================================================

// NewCommandError creates a CommandError, trimming stderr and keeping only
// its last 4 KiB.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderr {
		cut := len(stderr) - maxStderr
		for cut < len(stderr) && !utf8.RuneStart(stderr[cut]) {
			cut++
		}
		stderr = "..." + stderr[cut:]
	}
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   stderr,
		Wrapped:  wrapped,
	}
}

// FromExec builds a CommandError from an exec error, deriving the exit code.
//
// # Inputs
//
//   - err: Error from exec.Cmd.Run (nil returns nil).
//   - name, args: The command line, joined for display.
//   - stderr: Captured standard error.
//
// # Outputs
//
//   - *CommandError: ExitCode is the process status for *exec.ExitError and
//     -1 otherwise (binary not found, context cancelled before start).
func FromExec(err error, name string, args []string, stderr string) *CommandError {
	if err == nil {
		return nil
	}
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return NewCommandError(CommandLine(name, args), exitCode, stderr, err)
}

// CommandLine joins a command and its arguments for logs and errors.
func CommandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// ExtractStderr walks the error chain and returns the first captured stderr.
func ExtractStderr(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return ""
}
