// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package experiment

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/naming"
)

var (
	macroName  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	macroValue = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)
)

// reservedMacros are defined by the build flags or the toolchain itself.
var reservedMacros = []string{"NDEBUG", "EMSCRIPTEN"}

// Factory constructs validated specs for one lab layout and toolchain.
type Factory struct {
	Layout    Layout
	Toolchain Toolchain
}

// NewFactory creates a Factory.
func NewFactory(layout Layout, toolchain Toolchain) *Factory {
	return &Factory{Layout: layout, Toolchain: toolchain}
}

// New builds one spec.
//
// # Description
//
// Validates the parameters as C preprocessor macros and as name fields,
// then returns the variant for kind. Parameter keys keep their case in the
// macros and are lowercased in the identity.
//
// # Inputs
//
//   - kind: Execution target.
//   - algorithm: Algorithm name; the source is "<sources>/<algorithm>.cpp".
//   - params: Ordered build parameters.
//   - repetitions: Runs per runtime, >= 0.
//   - runtimes: Browser commands for WASM kinds, ignored for native.
//
// # Outputs
//
//   - Spec: *Native, *WasmSingle or *WasmMulti.
//   - error: *ConfigError.
//
// # Examples
//
//	spec, err := factory.New(naming.KindNative, "merge",
//	    naming.Params{{Key: "SIZE", Value: "100"}}, 5, nil)
//	// spec.DirName() == "merge!native!size+100"
func (f *Factory) New(kind naming.Kind, algorithm string, params naming.Params, repetitions int, runtimes []string) (Spec, error) {
	label := algorithm + " " + kind.Tag()
	if len(params) > 0 {
		label += " " + params.String()
	}
	fail := func(field string, err error) (Spec, error) {
		return nil, &ConfigError{Spec: label, Field: field, Err: err}
	}

	if repetitions < 0 {
		return fail("repetitions", fmt.Errorf("%w: got %d", ErrNegativeRepetitions, repetitions))
	}
	for _, kv := range params {
		if err := checkMacro(kv); err != nil {
			return fail(kv.Key, err)
		}
	}

	id, err := naming.NewIdentity(algorithm, kind, params)
	if err != nil {
		return fail("", err)
	}
	stem, err := naming.Stem(id)
	if err != nil {
		return fail("", err)
	}

	b := base{
		id:     id,
		params: slices.Clone(params),
		reps:   repetitions,
		stem:   stem,
		layout: f.Layout,
		tc:     f.Toolchain,
	}

	if kind == naming.KindNative {
		return &Native{base: b}, nil
	}

	if len(runtimes) == 0 {
		return fail("runtimes", ErrNoRuntimes)
	}
	w := wasm{base: b, runtimes: slices.Clone(runtimes)}
	for _, runtime := range runtimes {
		tag := RuntimeTag(runtime)
		name, err := naming.Encode(id.WithRuntime(tag))
		if err != nil {
			return fail("runtime "+runtime, err)
		}
		if slices.Contains(w.tags, tag) {
			return fail("runtime "+runtime, fmt.Errorf("%w: %s", ErrDuplicateRuntime, tag))
		}
		w.tags = append(w.tags, tag)
		w.logNames = append(w.logNames, name)
	}

	if kind == naming.KindWasmMulti {
		w.variantFlags = f.Toolchain.WasmMultiFlags
		return &WasmMulti{wasm: w}, nil
	}
	w.variantFlags = f.Toolchain.WasmSingleFlags
	return &WasmSingle{wasm: w}, nil
}

// checkMacro rejects keys that are not C identifiers or that collide with
// reserved macros, and values the build file cannot carry verbatim.
func checkMacro(kv naming.Param) error {
	if !macroName.MatchString(kv.Key) {
		return fmt.Errorf("%w: %q", ErrInvalidMacroName, kv.Key)
	}
	upper := strings.ToUpper(kv.Key)
	if slices.Contains(reservedMacros, upper) ||
		strings.HasPrefix(kv.Key, "__") ||
		len(kv.Key) > 1 && kv.Key[0] == '_' && kv.Key[1] >= 'A' && kv.Key[1] <= 'Z' {
		return fmt.Errorf("%w: %q", ErrReservedMacro, kv.Key)
	}
	if !macroValue.MatchString(kv.Value) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, kv.Key, kv.Value)
	}
	return nil
}
