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
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrReservedMacro indicates a parameter key that collides with a macro
	// the compiler or the build flags already define.
	ErrReservedMacro = errors.New("parameter collides with reserved macro")

	// ErrInvalidMacroName indicates a parameter key that is not a C identifier.
	ErrInvalidMacroName = errors.New("parameter key is not a valid macro name")

	// ErrInvalidValue indicates a parameter value outside [A-Za-z0-9._+-].
	ErrInvalidValue = errors.New("parameter value contains unsupported characters")

	// ErrNegativeRepetitions indicates repetitions < 0.
	ErrNegativeRepetitions = errors.New("repetitions must be >= 0")

	// ErrNoRuntimes indicates a WASM spec without any browser.
	ErrNoRuntimes = errors.New("wasm experiment has no runtime environments")

	// ErrDuplicateRuntime indicates two runtimes mapping to the same log name.
	ErrDuplicateRuntime = errors.New("duplicate runtime tag")

	// ErrMalformedOutput indicates a benchmark run that printed nothing or
	// printed a line that is not a number.
	ErrMalformedOutput = errors.New("malformed benchmark output")
)

// =============================================================================
// ConfigError
// =============================================================================

// ConfigError reports a spec that cannot be constructed.
//
// # Description
//
// Fatal for that one spec only. The matrix expander collects ConfigErrors
// and keeps expanding the rest of the matrix.
type ConfigError struct {
	// Spec is a human-readable label of the offending spec.
	Spec string

	// Field names the parameter or attribute at fault, if any.
	Field string

	Err error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("spec %s: %s: %v", e.Spec, e.Field, e.Err)
	}
	return fmt.Sprintf("spec %s: %v", e.Spec, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ExecutionFailure
// =============================================================================

// ExecutionFailure reports one failed repetition.
//
// # Description
//
// The repetition contributes no sample. Sibling repetitions, runtimes and
// specs are unaffected.
type ExecutionFailure struct {
	// Spec is the encoded stem of the spec.
	Spec string

	// Runtime is the browser for WASM specs, "" for native.
	Runtime string

	// Repetition is zero-based.
	Repetition int

	Err error
}

func (e *ExecutionFailure) Error() string {
	if e.Runtime != "" {
		return fmt.Sprintf("%s on %s, repetition %d: %v", e.Spec, e.Runtime, e.Repetition, e.Err)
	}
	return fmt.Sprintf("%s, repetition %d: %v", e.Spec, e.Repetition, e.Err)
}

func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}

var (
	_ error = (*ConfigError)(nil)
	_ error = (*ExecutionFailure)(nil)
)
