// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matrix

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/experiment"
	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/naming"
)

// -----------------------------------------------------------------------------
// Architecture Tokens
// -----------------------------------------------------------------------------

const (
	nativeToken     = "NATIVE"
	wasmSingleToken = "WASM_SINGLE"
	wasmMultiToken  = "WASM_MULTI"

	// runtimeSeparator splits an architecture token into its kind and its
	// browsers. Browser names may contain "-" on their own.
	runtimeSeparator = " - "
)

// Architecture is a parsed architecture token.
type Architecture struct {
	Kind     naming.Kind
	Runtimes []string
}

// ParseArchitecture parses "NATIVE", "WASM_SINGLE - b1 - b2" or
// "WASM_MULTI - b1".
//
// # Description
//
// NATIVE must match exactly. A WASM kind is recognized when the first
// " - "-separated field starts with WASM_SINGLE or WASM_MULTI; the remaining
// fields are the browsers, trimmed, with empty fields dropped. A WASM token
// without browsers returns a nil Runtimes slice.
//
// # Outputs
//
//   - Architecture: Kind and runtimes.
//   - error: Wraps ErrUnknownArchitecture.
func ParseArchitecture(token string) (Architecture, error) {
	if token == nativeToken {
		return Architecture{Kind: naming.KindNative}, nil
	}

	fields := strings.Split(token, runtimeSeparator)
	head := strings.TrimSpace(fields[0])

	var kind naming.Kind
	switch {
	case strings.HasPrefix(head, wasmSingleToken):
		kind = naming.KindWasmSingle
	case strings.HasPrefix(head, wasmMultiToken):
		kind = naming.KindWasmMulti
	default:
		return Architecture{}, fmt.Errorf("%w: %q", ErrUnknownArchitecture, token)
	}

	arch := Architecture{Kind: kind}
	for _, f := range fields[1:] {
		if f = strings.TrimSpace(f); f != "" {
			arch.Runtimes = append(arch.Runtimes, f)
		}
	}
	return arch, nil
}

// -----------------------------------------------------------------------------
// Expander
// -----------------------------------------------------------------------------

// SpecFactory builds one spec. *experiment.Factory satisfies it.
type SpecFactory interface {
	New(kind naming.Kind, algorithm string, params naming.Params, repetitions int, runtimes []string) (experiment.Spec, error)
}

// Warning is a non-fatal problem found while expanding.
type Warning struct {
	Algorithm string
	Token     string
	Reason    string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %q: %s", w.Algorithm, w.Token, w.Reason)
}

// Expansion is the flat result of expanding a matrix.
type Expansion struct {
	// Specs in document order: algorithm, comparison, architecture, run.
	Specs []experiment.Spec

	// Warnings lists skipped architecture tokens.
	Warnings []Warning

	// Errors holds one *experiment.ConfigError per spec that failed to build.
	Errors []error
}

// ForAlgorithms returns the specs of the named algorithms, in order. No
// names returns every spec.
func (e *Expansion) ForAlgorithms(names ...string) []experiment.Spec {
	if len(names) == 0 {
		return slices.Clone(e.Specs)
	}
	var out []experiment.Spec
	for _, s := range e.Specs {
		if slices.Contains(names, s.Algorithm()) {
			out = append(out, s)
		}
	}
	return out
}

// Expander turns a Matrix into specs.
type Expander struct {
	factory         SpecFactory
	logger          *slog.Logger
	defaultBrowsers []string
}

// Option configures an Expander.
type Option func(*Expander)

// WithLogger sets the logger for skip warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Expander) { e.logger = logger }
}

// WithDefaultBrowsers sets the browsers used by WASM tokens that name none.
func WithDefaultBrowsers(browsers ...string) Option {
	return func(e *Expander) { e.defaultBrowsers = slices.Clone(browsers) }
}

// NewExpander creates an Expander.
func NewExpander(factory SpecFactory, opts ...Option) *Expander {
	e := &Expander{factory: factory, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand produces the full cross product of architectures and runs.
//
// # Description
//
// For every comparison, every architecture token is crossed with every run,
// architectures outermost. An unrecognized token, or a WASM token with no
// browsers and no configured defaults, contributes zero specs and a
// warning. A run whose parameters fail validation contributes zero specs
// and a ConfigError. Neither stops the expansion.
//
// # Outputs
//
//   - *Expansion: Deterministic for a given matrix and factory.
func (e *Expander) Expand(m *Matrix) *Expansion {
	out := &Expansion{}
	for _, alg := range m.Algorithms {
		for _, comp := range alg.Comparisons {
			for _, token := range comp.Architectures {
				arch, err := ParseArchitecture(token)
				if err != nil {
					e.warn(out, alg.Name, token, "unsupported architecture")
					continue
				}
				if arch.Kind.IsWasm() && len(arch.Runtimes) == 0 {
					if len(e.defaultBrowsers) == 0 {
						e.warn(out, alg.Name, token, "no browsers given and no default browsers configured")
						continue
					}
					arch.Runtimes = slices.Clone(e.defaultBrowsers)
				}

				for _, run := range comp.Runs {
					spec, err := e.factory.New(arch.Kind, alg.Name, run.Parameters, run.Repetitions, arch.Runtimes)
					if err != nil {
						e.logger.Error("invalid experiment", "algorithm", alg.Name, "line", run.Line, "error", err)
						out.Errors = append(out.Errors, err)
						continue
					}
					out.Specs = append(out.Specs, spec)
				}
			}
		}
	}
	return out
}

func (e *Expander) warn(out *Expansion, alg, token, reason string) {
	e.logger.Warn("skipping architecture", "algorithm", alg, "token", token, "reason", reason)
	out.Warnings = append(out.Warnings, Warning{Algorithm: alg, Token: token, Reason: reason})
}
