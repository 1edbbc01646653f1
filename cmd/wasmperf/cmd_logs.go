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
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/logstore"
)

func runLogs(cmd *cobra.Command, args []string) error {
	store := logstore.New(session.cfg.Paths.Logs)
	out := cmd.OutOrStdout()

	if followLogs {
		fmt.Fprintln(out, styles.Muted.Render("watching "+store.Dir()+" (Ctrl-C to stop)"))
		return store.Watch(cmd.Context(), func(u logstore.Update) {
			printUpdate(out, u, logsAlgorithm)
		})
	}

	result, err := store.Load(logsAlgorithm)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		printWarning(out, "%v", e)
	}
	if len(result.Records) == 0 {
		fmt.Fprintln(out, styles.Muted.Render("no logs in "+store.Dir()))
		return nil
	}
	renderGroups(out, logstore.GroupRecords(result.Records))
	return nil
}

// renderGroups prints one table per workload with a row per target.
func renderGroups(w io.Writer, groups []logstore.Group) {
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		title := g.Algorithm
		if len(g.Params) > 0 {
			title += " " + g.Params.String()
		}
		fmt.Fprintln(w, styles.Title.Render(title))

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(styles.Border).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return styles.Header
				}
				return styles.Cell
			}).
			Headers("KIND", "RUNTIME", "SAMPLES", "MEAN")
		for _, r := range g.Records {
			t.Row(
				r.Identity.Kind.Tag(),
				r.Runtime(),
				strconv.Itoa(r.Count()),
				formatSample(r),
			)
		}
		fmt.Fprintln(w, t.Render())
	}
}

func formatSample(r logstore.Record) string {
	if r.Count() == 0 {
		return "-"
	}
	return strconv.FormatFloat(r.Mean(), 'f', 3, 64)
}

func printUpdate(w io.Writer, u logstore.Update, algorithm string) {
	if u.Err != nil {
		printWarning(w, "%v", u.Err)
		return
	}
	if algorithm != "" && u.Record.Identity.Algorithm != algorithm {
		return
	}
	last := "-"
	if n := u.Record.Count(); n > 0 {
		last = strconv.FormatFloat(u.Record.Samples[n-1], 'f', -1, 64)
	}
	fmt.Fprintf(w, "%s  n=%d  last=%s  mean=%s\n",
		styles.Title.Render(filepath.Base(u.Record.Path)), u.Record.Count(), last, formatSample(u.Record))
}
