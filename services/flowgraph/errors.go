// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flowgraph

import "errors"

// ---- Sentinel errors ----

var (
	// ErrRunNotFound indicates no run exists for the given id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished indicates the run already reached a terminal
	// status and cannot be cancelled.
	ErrRunFinished = errors.New("run already finished")

	// ErrShuttingDown indicates the service no longer accepts runs.
	ErrShuttingDown = errors.New("service is shutting down")

	// ErrNilSnapshot indicates a nil graph snapshot was submitted.
	ErrNilSnapshot = errors.New("graph snapshot must not be nil")
)
