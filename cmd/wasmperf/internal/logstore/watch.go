// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Update is delivered by Watch for every changed log file.
type Update struct {
	Record Record

	// Err is set instead of Record when the file failed to decode or parse.
	Err error
}

// Watch reports log files as runs append to them.
//
// # Description
//
// Watches the log directory (not recursively) and reloads a file on every
// create or write event, skipping the "err" sideband. fn is called from the
// watching goroutine, one update at a time. Watch blocks until ctx is done.
//
// # Outputs
//
//   - error: Non-nil if the watcher cannot start or fails; nil on ctx done.
func (s *Store) Watch(ctx context.Context, fn func(Update)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isSampleLog(filepath.Base(event.Name)) {
				continue
			}
			rec, err := LoadFile(event.Name)
			if err != nil {
				fn(Update{Err: err})
				continue
			}
			fn(Update{Record: rec})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", s.dir, err)
		case <-ctx.Done():
			return nil
		}
	}
}
