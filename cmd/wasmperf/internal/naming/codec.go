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
	"fmt"
	"strings"
)

const (
	// FieldSeparator separates the top-level fields of a name.
	FieldSeparator = '!'

	// PairSeparator separates a parameter key from its value. Only the
	// first occurrence in a field splits.
	PairSeparator = '+'
)

// Encode renders a full identity as a name.
//
// # Description
//
// WASM identities must carry a runtime tag because the encoded name is a log
// file name. Use Stem for the runtime-free form.
//
// # Outputs
//
//   - string: e.g. "merge!wasm_multi!size+100!firefox".
//   - error: Validation error, or ErrRuntimeTag when a WASM identity has no tag.
func Encode(id Identity) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	if id.Kind.IsWasm() && id.RuntimeTag == "" {
		return "", fmt.Errorf("%w: %s identity requires a runtime tag", ErrRuntimeTag, id.Kind)
	}
	return join(id), nil
}

// Stem renders an identity without its runtime tag.
//
// The stem names the build directory of a spec and, for WASM specs, is the
// prefix shared by every per-runtime log name.
func Stem(id Identity) (string, error) {
	base := id.Base()
	if err := base.Validate(); err != nil {
		return "", err
	}
	return join(base), nil
}

func join(id Identity) string {
	var b strings.Builder
	b.WriteString(id.Algorithm)
	b.WriteRune(FieldSeparator)
	b.WriteString(id.Kind.Tag())
	for _, kv := range id.Params {
		b.WriteRune(FieldSeparator)
		b.WriteString(kv.Key)
		b.WriteRune(PairSeparator)
		b.WriteString(kv.Value)
	}
	if id.RuntimeTag != "" {
		b.WriteRune(FieldSeparator)
		b.WriteString(id.RuntimeTag)
	}
	return b.String()
}

// Decode parses a name produced by Encode.
//
// # Description
//
// Field 0 is the algorithm and field 1 the kind tag. For WASM kinds the last
// field is taken as the runtime tag, so at least three fields are required.
// Every remaining field must be a "key+value" pair, split on its first "+".
//
// # Outputs
//
//   - Identity: The decoded identity.
//   - error: *DecodeError naming the offending field.
//
// # Limitations
//
//   - Native names never carry a runtime tag; a trailing field without "+"
//     is rejected rather than guessed at.
func Decode(name string) (Identity, error) {
	fields := strings.Split(name, string(FieldSeparator))
	if len(fields) < 2 {
		return Identity{}, &DecodeError{Name: name, Token: name, Reason: "expected at least algorithm and kind"}
	}

	id := Identity{Algorithm: fields[0]}
	if id.Algorithm == "" {
		return Identity{}, &DecodeError{Name: name, Token: "", Reason: "empty algorithm"}
	}

	kind, ok := KindFromTag(fields[1])
	if !ok {
		return Identity{}, &DecodeError{Name: name, Token: fields[1], Reason: "unknown kind tag"}
	}
	id.Kind = kind

	rest := fields[2:]
	if kind.IsWasm() {
		if len(rest) == 0 {
			return Identity{}, &DecodeError{Name: name, Token: fields[1], Reason: "missing runtime tag"}
		}
		id.RuntimeTag = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
		if strings.ContainsRune(id.RuntimeTag, PairSeparator) {
			return Identity{}, &DecodeError{Name: name, Token: id.RuntimeTag, Reason: "missing runtime tag"}
		}
		if id.RuntimeTag == "" {
			return Identity{}, &DecodeError{Name: name, Token: id.RuntimeTag, Reason: "empty runtime tag"}
		}
	}

	if len(rest) > 0 {
		id.Params = make(Params, 0, len(rest))
	}
	for _, field := range rest {
		key, value, found := strings.Cut(field, string(PairSeparator))
		if !found {
			return Identity{}, &DecodeError{Name: name, Token: field, Reason: "parameter is missing '+'"}
		}
		if key == "" || value == "" {
			return Identity{}, &DecodeError{Name: name, Token: field, Reason: "empty parameter key or value"}
		}
		id.Params = append(id.Params, Param{Key: key, Value: value})
	}

	if err := id.Validate(); err != nil {
		return Identity{}, &DecodeError{Name: name, Token: name, Reason: "invalid identity", Err: err}
	}
	return id, nil
}
