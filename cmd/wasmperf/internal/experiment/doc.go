// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package experiment defines the three kinds of benchmark experiment and how
// each is built and executed.
//
// # Variants
//
//   - Native: compiled with the host C++ compiler into "<dir>/main" and run
//     directly, stdout appended to one log file.
//   - WasmSingle: compiled with the WebAssembly toolchain into "<dir>/t.js"
//     and run in each configured browser through the browser runner.
//   - WasmMulti: as WasmSingle with pthreads enabled.
//
// Spec is a sealed interface; only this package can add variants. All
// variants are immutable after construction and derive their directory, log
// paths, build recipe and execution procedure from their identity.
//
// # Failure Isolation
//
// A bad parameter set fails construction of one spec with *ConfigError. A
// failed repetition is recorded as *ExecutionFailure in the Result and never
// stops the remaining repetitions or runtimes.
package experiment
