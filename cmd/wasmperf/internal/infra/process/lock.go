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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// LockConfig configures a LabLock.
type LockConfig struct {
	// Dir holds the lock file. Created if missing.
	Dir string

	// Name is the lock file stem. Default: "wasmperf".
	Name string
}

// LabLock is an exclusive, non-blocking flock with the holder's PID written
// into the lock file for diagnostics.
//
// # Thread Safety
//
// Acquire and Release are safe for concurrent use; the lock itself is per
// process, not per goroutine.
type LabLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// ErrLockHeld is returned by Acquire when another process holds the lock.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another wasmperf pipeline is running (PID %d, lock %s)", e.HolderPID, e.LockPath)
	}
	return fmt.Sprintf("another wasmperf pipeline is running (lock %s)", e.LockPath)
}

// NewLabLock creates an unacquired lock.
func NewLabLock(config LockConfig) *LabLock {
	if config.Dir == "" {
		config.Dir = os.TempDir()
	}
	if config.Name == "" {
		config.Name = "wasmperf"
	}
	return &LabLock{path: filepath.Join(config.Dir, "."+config.Name+".lock")}
}

// Path returns the lock file path.
func (l *LabLock) Path() string {
	return l.path
}

// Acquire takes the lock or fails immediately with *ErrLockHeld.
// Calling Acquire on a held lock is a no-op.
func (l *LabLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", l.path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &ErrLockHeld{HolderPID: readPID(l.path), LockPath: l.path}
		}
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}

	// The PID is informational only; a failed write does not void the lock.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	l.file = f
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *LabLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether this LabLock currently holds the lock.
func (l *LabLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
