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
	"time"
)

// Attempt is the outcome of one repetition on one runtime.
type Attempt struct {
	// Runtime is the browser for WASM specs, "" for native.
	Runtime string

	// Repetition is zero-based.
	Repetition int

	Duration time.Duration

	// Samples is the number of values appended to the log. Always 0 for
	// WASM attempts, whose output is written by the browser runner.
	Samples int

	// Err is an *ExecutionFailure, nil on success.
	Err error
}

// OK reports whether the attempt succeeded.
func (a Attempt) OK() bool {
	return a.Err == nil
}

// Result collects the attempts of one Execute call in execution order.
type Result struct {
	Spec     Spec
	Attempts []Attempt
}

// Succeeded counts successful attempts.
func (r *Result) Succeeded() int {
	n := 0
	for _, a := range r.Attempts {
		if a.OK() {
			n++
		}
	}
	return n
}

// Samples sums the samples written by all attempts.
func (r *Result) Samples() int {
	n := 0
	for _, a := range r.Attempts {
		n += a.Samples
	}
	return n
}

// Failures returns the execution failures in order.
func (r *Result) Failures() []*ExecutionFailure {
	var out []*ExecutionFailure
	for _, a := range r.Attempts {
		var failure *ExecutionFailure
		if errors.As(a.Err, &failure) {
			out = append(out, failure)
		}
	}
	return out
}

func (r *Result) record(a Attempt) {
	r.Attempts = append(r.Attempts, a)
}
