// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package naming

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity validation.
var (
	// ErrReservedCharacter indicates a field contains '!', '/', whitespace,
	// or (for algorithms, keys and runtime tags) '+'.
	ErrReservedCharacter = errors.New("reserved character in name field")

	// ErrEmptyField indicates an algorithm, key, or value is empty.
	ErrEmptyField = errors.New("empty name field")

	// ErrDuplicateKey indicates two parameters share a key after lowercasing.
	ErrDuplicateKey = errors.New("duplicate parameter key")

	// ErrUnknownKind indicates an identity with an unset or invalid kind.
	ErrUnknownKind = errors.New("unknown experiment kind")

	// ErrRuntimeTag indicates a runtime tag on a native identity, or a
	// missing one where a WASM log name is required.
	ErrRuntimeTag = errors.New("invalid runtime tag")
)

// DecodeError reports a name that cannot be decoded.
//
// # Description
//
// Token is the offending field so the log file can be fixed by hand. A
// DecodeError is fatal for one file only; scanners report it and move on.
type DecodeError struct {
	Name   string
	Token  string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %q: %s at %q", e.Name, e.Reason, e.Token)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the validation error, if any.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
