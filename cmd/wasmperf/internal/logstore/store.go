// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logstore loads the benchmark log corpus.
//
// Each file in the log directory is one experiment on one runtime: its name
// decodes to the experiment identity and its lines are the samples, one
// floating-point value per line. No other metadata exists or is needed.
package logstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/naming"
)

// =============================================================================
// Errors
// =============================================================================

// LogParseError reports a sample line that is not a number.
//
// Fatal for that file only: the file is excluded from the result and the
// scan moves on.
type LogParseError struct {
	Path string

	// Line is 1-based.
	Line int
	Text string
	Err  error
}

func (e *LogParseError) Error() string {
	return fmt.Sprintf("%s:%d: invalid sample %q: %v", e.Path, e.Line, e.Text, e.Err)
}

func (e *LogParseError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Records
// =============================================================================

// Record is one decoded log file.
type Record struct {
	Identity naming.Identity
	Path     string

	// Samples in file order. Exactly the values written; never padded.
	Samples []float64
}

// Count returns the number of samples.
func (r Record) Count() int {
	return len(r.Samples)
}

// Mean returns the arithmetic mean, or 0 for an empty record.
func (r Record) Mean() float64 {
	if len(r.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range r.Samples {
		sum += s
	}
	return sum / float64(len(r.Samples))
}

// Runtime returns the runtime column used in listings: the runtime tag for
// WASM records and "native" for native ones.
func (r Record) Runtime() string {
	if r.Identity.RuntimeTag != "" {
		return r.Identity.RuntimeTag
	}
	return r.Identity.Kind.Tag()
}

// LoadResult is the outcome of a directory scan.
type LoadResult struct {
	// Records sorted by file name.
	Records []Record

	// Errors holds one *naming.DecodeError or *LogParseError per bad file.
	Errors []error
}

// =============================================================================
// Store
// =============================================================================

// Store reads logs from one directory.
type Store struct {
	dir string
}

// New creates a Store over dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the log directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load scans the log directory.
//
// # Description
//
// Files are visited in name order. Directories and the browser runner's
// "err" sideband are skipped. A file whose name does not decode, or that
// contains a non-numeric line, is reported in LoadResult.Errors and
// excluded; every other file still loads.
//
// # Inputs
//
//   - algorithm: Exact algorithm name to keep; "" keeps all.
//
// # Outputs
//
//   - *LoadResult: Records and per-file errors.
//   - error: Non-nil only when the directory itself cannot be read.
func (s *Store) Load(algorithm string) (*LoadResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read log directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	result := &LoadResult{}
	for _, entry := range entries {
		if entry.IsDir() || !isSampleLog(entry.Name()) {
			continue
		}
		id, err := naming.Decode(entry.Name())
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if algorithm != "" && id.Algorithm != algorithm {
			continue
		}
		rec, err := readRecord(filepath.Join(s.dir, entry.Name()), id)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// LoadFile decodes and parses a single log file.
func LoadFile(path string) (Record, error) {
	id, err := naming.Decode(filepath.Base(path))
	if err != nil {
		return Record{}, err
	}
	return readRecord(path, id)
}

// isSampleLog filters out the err sideband and hidden temp files.
func isSampleLog(name string) bool {
	return name != experiment.ErrLogName && !strings.HasPrefix(name, ".")
}

func readRecord(path string, id naming.Identity) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	rec := Record{Identity: id, Path: path}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Record{}, &LogParseError{Path: path, Line: line, Text: text, Err: err}
		}
		rec.Samples = append(rec.Samples, v)
	}
	if err := scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("read log %s: %w", path, err)
	}
	return rec, nil
}

// =============================================================================
// Grouping
// =============================================================================

// Group is every record sharing an algorithm and parameter set, i.e. the
// same workload measured on different targets.
type Group struct {
	Algorithm string
	Params    naming.Params
	Records   []Record
}

// GroupRecords groups records by algorithm and parameters, keeping the
// order in which each group first appears.
func GroupRecords(records []Record) []Group {
	var groups []Group
	index := map[string]int{}
	for _, r := range records {
		key := r.Identity.Algorithm + "\x00" + r.Identity.Params.String()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Algorithm: r.Identity.Algorithm, Params: r.Identity.Params})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}
