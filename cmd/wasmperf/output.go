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
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/runner"
)

var (
	colorTeal    = lipgloss.Color("#2CD7C7")
	colorDeep    = lipgloss.Color("#16858E")
	colorSlate   = lipgloss.Color("#2C4A54")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
)

var styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Border  lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorTeal),
	Muted:   lipgloss.NewStyle().Foreground(colorSlate),
	Success: lipgloss.NewStyle().Foreground(colorTeal),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Foreground(colorError),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(colorTeal).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
	Border:  lipgloss.NewStyle().Foreground(colorDeep),
}

const (
	iconSuccess = "✓"
	iconWarning = "⚠"
	iconError   = "✗"
)

// printRunSummary writes the end-of-run report.
func printRunSummary(w io.Writer, s *runner.Summary) {
	failures := s.Failures()
	ok := s.Attempts() - len(failures)

	fmt.Fprintln(w, styles.Title.Render("Run summary"))
	fmt.Fprintf(w, "  %s %d/%d repetitions recorded in %s\n",
		styles.Success.Render(iconSuccess), ok, s.Attempts(), s.Duration.Round(time.Millisecond))

	for _, f := range failures {
		fmt.Fprintf(w, "  %s %s\n", styles.Error.Render(iconError), f.Error())
	}
	for _, se := range s.SpecErrors {
		fmt.Fprintf(w, "  %s %s aborted: %v\n", styles.Error.Render(iconError), se.Spec.DirName(), se.Err)
	}
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", styles.Warning.Render(iconWarning), fmt.Sprintf(format, args...))
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", styles.Success.Render(iconSuccess), fmt.Sprintf(format, args...))
}
