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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func runClean(cmd *cobra.Command, args []string) error {
	// No flag means both.
	if !cleanOut && !cleanLogs {
		cleanOut, cleanLogs = true, true
	}
	l := newLab(session.cfg, session.Slog(), cmd.OutOrStdout())

	// Refuse while a pipeline holds the lab.
	lock, err := l.lock()
	if err != nil {
		return err
	}
	defer lock.Release()

	return clean(l, cleanOut, cleanLogs, filepath.Base(lock.Path()))
}

// clean removes the selected directories. keep (the lock file) survives so
// a concurrent pipeline start still sees the lab held.
func clean(l *lab, out, logs bool, keep string) error {
	var dirs []string
	if logs {
		dirs = append(dirs, l.cfg.Paths.Logs)
	}
	if out {
		dirs = append(dirs, l.cfg.Paths.Out)
	}
	for _, dir := range dirs {
		if err := removeContents(dir, keep); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		l.logger.Info("cleaned", "dir", dir)
		printSuccess(l.out, "cleaned %s", dir)
	}
	return nil
}

// removeContents empties dir except for keep. A missing dir is not an error.
func removeContents(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
