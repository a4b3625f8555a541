// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// RunEvent represents one run lifecycle event for compliance logging.
//
// Event types follow a "category.action" convention:
//   - "run.submitted": a graph was accepted for execution
//   - "run.finished": a run reached a terminal status
//   - "run.cancelled": a caller requested an abort
//
// Example:
//
//	event := RunEvent{
//	    EventType: "run.finished",
//	    Timestamp: time.Now().UTC(),
//	    Subject:   "local",
//	    RunID:     "b3f9a02d11ce",
//	    Outcome:   "completed",
//	    Metadata:  map[string]any{"nodes_executed": 12},
//	}
type RunEvent struct {
	// EventType categorizes the event for filtering and alerting.
	EventType string

	// Timestamp is when the event occurred, in UTC. Implementations
	// set it to time.Now().UTC() when zero.
	Timestamp time.Time

	// Subject identifies who triggered the event. "local" for the
	// unauthenticated single-user build, "system" for automation.
	Subject string

	// RunID is the run the event belongs to.
	RunID string

	// Outcome indicates the result: "accepted", "completed", "failed",
	// "aborted", or "requested".
	Outcome string

	// Metadata holds additional event-specific data, e.g. node counts
	// or error strings.
	Metadata map[string]any
}

// RunEventFilter defines criteria for querying audit events. Zero
// fields are ignored; set fields combine with AND.
type RunEventFilter struct {
	// EventTypes limits results to specific event types.
	EventTypes []string

	// Subject limits results to events from one subject.
	Subject string

	// RunID limits results to one run.
	RunID string

	// StartTime is the earliest timestamp to include (inclusive).
	StartTime time.Time

	// EndTime is the latest timestamp to include (exclusive).
	EndTime time.Time

	// Limit caps the number of returned events. Zero means an
	// implementation-specific default.
	Limit int
}

// RunAuditor records run lifecycle events for compliance and
// incident analysis.
//
// The default NopRunAuditor discards all events, which suits local
// single-user deployments. Hardened deployments send events to SIEM
// systems or compliance stores.
//
// Log should return quickly; buffer internally when the sink is slow.
// Implementations must be safe for concurrent use.
type RunAuditor interface {
	// Log records an event. Implementations set Timestamp when zero.
	Log(ctx context.Context, event RunEvent) error

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter RunEventFilter) ([]RunEvent, error)

	// Flush persists buffered events. Call before shutdown.
	Flush(ctx context.Context) error
}

// NopRunAuditor discards all events without recording them.
//
// Thread-safe: no mutable state.
type NopRunAuditor struct{}

// Log discards the event.
func (a *NopRunAuditor) Log(_ context.Context, _ RunEvent) error {
	return nil
}

// Query returns an empty slice; no events are stored.
func (a *NopRunAuditor) Query(_ context.Context, _ RunEventFilter) ([]RunEvent, error) {
	return []RunEvent{}, nil
}

// Flush is a no-op since nothing is buffered.
func (a *NopRunAuditor) Flush(_ context.Context) error {
	return nil
}

// Compile-time interface compliance check.
var _ RunAuditor = (*NopRunAuditor)(nil)
