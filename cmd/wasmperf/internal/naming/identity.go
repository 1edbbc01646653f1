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
	"slices"
	"strings"
)

// =============================================================================
// Kind
// =============================================================================

// Kind is the execution target of an experiment.
type Kind int

const (
	// KindNative is a host executable.
	KindNative Kind = iota + 1

	// KindWasmSingle is a single-threaded WebAssembly build run in a browser.
	KindWasmSingle

	// KindWasmMulti is a pthread-enabled WebAssembly build run in a browser.
	KindWasmMulti
)

// Tag returns the name field for the kind ("native", "wasm_single",
// "wasm_multi"), or "" for the zero value.
func (k Kind) Tag() string {
	switch k {
	case KindNative:
		return "native"
	case KindWasmSingle:
		return "wasm_single"
	case KindWasmMulti:
		return "wasm_multi"
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if tag := k.Tag(); tag != "" {
		return tag
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsWasm reports whether the kind runs in a browser.
func (k Kind) IsWasm() bool {
	return k == KindWasmSingle || k == KindWasmMulti
}

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	return k.Tag() != ""
}

// KindFromTag is the inverse of Kind.Tag.
func KindFromTag(tag string) (Kind, bool) {
	for _, k := range []Kind{KindNative, KindWasmSingle, KindWasmMulti} {
		if k.Tag() == tag {
			return k, true
		}
	}
	return 0, false
}

// =============================================================================
// Params
// =============================================================================

// Param is one key/value pair of an experiment's build parameters.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list. Order is part of the identity.
type Params []Param

// Equal reports whether both lists hold the same pairs in the same order.
func (p Params) Equal(other Params) bool {
	return slices.Equal(p, other)
}

// String renders "k=v k=v", the form used in human-readable labels.
func (p Params) String() string {
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = kv.Key + "=" + kv.Value
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Identity
// =============================================================================

// Identity is the decoded form of an experiment name.
//
// # Description
//
// Identity carries everything a name encodes. RuntimeTag is set only for a
// WASM identity that names a concrete log segment (one browser); the base
// identity of a spec, used for its directory, leaves it empty.
//
// # Thread Safety
//
// Identity is a value type. Treat Params as read-only once constructed.
type Identity struct {
	Algorithm  string
	Kind       Kind
	Params     Params
	RuntimeTag string
}

// NewIdentity builds a validated base identity.
//
// # Description
//
// Parameter keys are lowercased here, which is what makes Encode and Decode
// exact inverses for every identity the matrix expander produces. Values are
// kept verbatim.
//
// # Inputs
//
//   - algorithm: Algorithm name, e.g. "merge".
//   - kind: Execution target.
//   - params: Ordered parameters in their original case.
//
// # Outputs
//
//   - Identity: The validated identity, without a runtime tag.
//   - error: Wraps ErrReservedCharacter, ErrEmptyField, ErrDuplicateKey or
//     ErrUnknownKind.
//
// # Examples
//
//	id, err := NewIdentity("merge", KindNative, Params{{"SIZE", "100"}})
//	// id.Params[0].Key == "size"
func NewIdentity(algorithm string, kind Kind, params Params) (Identity, error) {
	var lowered Params
	for _, kv := range params {
		lowered = append(lowered, Param{Key: strings.ToLower(kv.Key), Value: kv.Value})
	}
	id := Identity{Algorithm: algorithm, Kind: kind, Params: lowered}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// WithRuntime returns a copy of a WASM identity tagged with runtime.
func (id Identity) WithRuntime(runtime string) Identity {
	out := id
	out.Params = slices.Clone(id.Params)
	out.RuntimeTag = runtime
	return out
}

// Base returns a copy of id without its runtime tag.
func (id Identity) Base() Identity {
	out := id
	out.RuntimeTag = ""
	return out
}

// Equal compares identities field by field, parameter order included.
func (id Identity) Equal(other Identity) bool {
	return id.Algorithm == other.Algorithm &&
		id.Kind == other.Kind &&
		id.RuntimeTag == other.RuntimeTag &&
		id.Params.Equal(other.Params)
}

// Validate checks that every field can be encoded without ambiguity.
func (id Identity) Validate() error {
	if err := checkField("algorithm", id.Algorithm, true); err != nil {
		return err
	}
	if !id.Kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(id.Kind))
	}

	seen := make(map[string]struct{}, len(id.Params))
	for _, kv := range id.Params {
		if err := checkField("parameter key", kv.Key, true); err != nil {
			return err
		}
		if err := checkField("parameter "+kv.Key, kv.Value, false); err != nil {
			return err
		}
		folded := strings.ToLower(kv.Key)
		if _, dup := seen[folded]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, kv.Key)
		}
		seen[folded] = struct{}{}
	}

	if id.RuntimeTag != "" {
		if !id.Kind.IsWasm() {
			return fmt.Errorf("%w: %s identity cannot carry %q", ErrRuntimeTag, id.Kind, id.RuntimeTag)
		}
		if err := checkField("runtime tag", id.RuntimeTag, true); err != nil {
			return err
		}
	}
	return nil
}

// checkField rejects empty fields and characters the format reserves.
// strict additionally forbids PairSeparator (algorithms, keys, runtime tags).
func checkField(what, value string, strict bool) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrEmptyField, what)
	}
	for _, r := range value {
		switch {
		case r == FieldSeparator, r == '/', r == '\\', r == 0:
			return fmt.Errorf("%w: %s %q contains %q", ErrReservedCharacter, what, value, r)
		case strict && r == PairSeparator:
			return fmt.Errorf("%w: %s %q contains %q", ErrReservedCharacter, what, value, r)
		case r == ' ', r == '\t', r == '\n', r == '\r':
			return fmt.Errorf("%w: %s %q contains whitespace", ErrReservedCharacter, what, value)
		}
	}
	return nil
}
