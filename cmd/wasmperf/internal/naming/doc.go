// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package naming encodes experiment identities into flat names and back.
//
// A name doubles as the build directory of an experiment and as the file name
// of its log, so the log corpus is self-describing: no index file is needed to
// recover which algorithm, target and parameters produced a sample.
//
// # Format
//
//	<algorithm>!<kind>[!<key>+<value>...][!<runtime>]
//
// The kind is one of "native", "wasm_single" or "wasm_multi". Parameters
// follow in insertion order with lowercased keys. The runtime tag is present
// only on WASM log names and is always the last field:
//
//	merge!native!size+100!n_levels+2
//	merge!wasm_single!size+100!firefox
//
// # Invariants
//
//   - Decode(Encode(id)) == id for every identity built with NewIdentity.
//   - "!" never appears inside a field; "+" never appears inside a key.
//   - This package is the only place that joins or splits names.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package naming
