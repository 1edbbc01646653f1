// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package process provides subprocess execution and lab locking.
//
// # Executor
//
// Every external program the lab touches (make, native benchmark binaries,
// the browser runner) goes through Manager. The working directory is passed
// to each subprocess explicitly; nothing in wasmperf changes the process-wide
// working directory. MockManager records calls for unit tests.
//
// # Lab Lock
//
// LabLock is an advisory flock on "<dir>/<name>.lock" that keeps two
// pipelines from writing the same build tree and log corpus at once. It is
// released automatically by the kernel if the holder dies.
package process
