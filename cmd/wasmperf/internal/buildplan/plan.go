// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package buildplan turns specs into a Makefile and drives the build.
//
// The planner emits one rule per spec plus an "all" aggregate target, in
// spec order, so an unchanged matrix always produces a byte-identical file
// and make's own timestamp checks skip up-to-date targets.
package buildplan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrDuplicateTarget indicates two specs share a build target, which
	// means the name encoding is not injective over the matrix.
	ErrDuplicateTarget = errors.New("duplicate build target")

	// ErrMissingSource indicates a spec whose source file does not exist.
	ErrMissingSource = errors.New("missing source file")
)

// PlanError aborts the whole planning phase.
type PlanError struct {
	// Spec is the label of the spec being planned when the error occurred.
	Spec string

	// Target is the offending target path.
	Target string

	Err error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan %s (%s): %v", e.Spec, e.Target, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Build File
// =============================================================================

// AllTarget is the aggregate target listing every artifact.
const AllTarget = "all"

// Rule is one make rule.
type Rule struct {
	Target     string
	Dependency string
	Recipe     []string
}

// BuildFile is a planned Makefile.
type BuildFile struct {
	Rules []Rule
}

// Targets returns every rule target in order.
func (b *BuildFile) Targets() []string {
	out := make([]string, len(b.Rules))
	for i, r := range b.Rules {
		out[i] = r.Target
	}
	return out
}

// Plan builds the rule set for specs.
//
// # Description
//
// Each spec contributes "TargetPath: Source" with its recipe. A target seen
// twice fails fast; so does a source that does not exist. Both abort the
// whole plan because a partial Makefile would silently drop experiments.
//
// # Inputs
//
//   - specs: Experiments in the order their rules should appear.
//
// # Outputs
//
//   - *BuildFile: The plan.
//   - error: *PlanError wrapping ErrDuplicateTarget or ErrMissingSource.
func Plan(specs []experiment.Spec) (*BuildFile, error) {
	bf := &BuildFile{Rules: make([]Rule, 0, len(specs))}
	seen := make(map[string]string, len(specs))

	for _, spec := range specs {
		target := spec.TargetPath()
		if prev, dup := seen[target]; dup {
			return nil, &PlanError{
				Spec:   spec.String(),
				Target: target,
				Err:    fmt.Errorf("%w: also produced by %s", ErrDuplicateTarget, prev),
			}
		}
		seen[target] = spec.String()

		if _, err := os.Stat(spec.Source()); err != nil {
			return nil, &PlanError{
				Spec:   spec.String(),
				Target: target,
				Err:    fmt.Errorf("%w: %v", ErrMissingSource, err),
			}
		}

		bf.Rules = append(bf.Rules, Rule{
			Target:     target,
			Dependency: spec.Source(),
			Recipe:     spec.Recipe(),
		})
	}
	return bf, nil
}

// WriteTo renders the Makefile.
//
// The output is "all: t1 t2 ..." followed by one blank-line-separated rule
// per spec with tab-indented recipe lines. "$" is escaped as "$$" so that
// make passes recipes to the shell unchanged.
func (b *BuildFile) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	fmt.Fprintf(cw, "%s:", AllTarget)
	for _, r := range b.Rules {
		fmt.Fprintf(cw, " %s", makeEscape(r.Target))
	}
	fmt.Fprint(cw, "\n")

	for _, r := range b.Rules {
		fmt.Fprintf(cw, "\n%s: %s\n", makeEscape(r.Target), makeEscape(r.Dependency))
		for _, line := range r.Recipe {
			fmt.Fprintf(cw, "\t%s\n", strings.ReplaceAll(line, "$", "$$"))
		}
	}
	fmt.Fprintf(cw, "\n.PHONY: %s\n", AllTarget)

	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, bw.Flush()
}

// WriteFile writes the Makefile atomically: a temp file in the same
// directory is renamed over path, so make never reads a half-written plan.
func (b *BuildFile) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create build directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".Makefile-*")
	if err != nil {
		return fmt.Errorf("create temp build file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := b.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write build file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close build file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod build file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("install build file: %w", err)
	}
	return nil
}

// makeEscape escapes characters that make treats specially in rule lines.
func makeEscape(s string) string {
	s = strings.ReplaceAll(s, "$", "$$")
	s = strings.ReplaceAll(s, " ", `\ `)
	return strings.ReplaceAll(s, "#", `\#`)
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
