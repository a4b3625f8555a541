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

import (
	"time"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/history"
)

// RunRequest is the request body for POST /api/v1/runs.
type RunRequest struct {
	// Graph is the snapshot to execute.
	Graph *graph.Snapshot `json:"graph" binding:"required"`
}

// RunSubmitResponse is the 202 response for POST /api/v1/runs.
type RunSubmitResponse struct {
	// RunID identifies the accepted run.
	RunID string `json:"runId"`

	// Status is the run status at submission, always "running".
	Status string `json:"status"`

	// Stream is the websocket path for live node updates.
	Stream string `json:"stream"`
}

// RunStatusResponse is the response for GET /api/v1/runs/:id.
type RunStatusResponse struct {
	// RunID identifies the run.
	RunID string `json:"runId"`

	// Status is "running", "completed", "failed", or "aborted".
	Status string `json:"status"`

	// NodeCount is the number of nodes in the submitted graph.
	NodeCount int `json:"nodeCount"`

	// NodesExecuted counts processor dispatches.
	NodesExecuted int `json:"nodesExecuted"`

	// Warnings counts nodes that finished with a recoverable error
	// payload instead of data.
	Warnings int `json:"warnings"`

	// FailedNode is the node whose error halted the run, if any.
	FailedNode string `json:"failedNode,omitempty"`

	// Error is the run-halting error message, if any.
	Error string `json:"error,omitempty"`

	// Outputs is the node id to result map. Present only while the
	// service still tracks the run in memory; history lookups return
	// the summary fields alone.
	Outputs map[string]any `json:"outputs,omitempty"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// DurationMs is the wall-clock run time, present once finished.
	DurationMs int64 `json:"durationMs,omitempty"`
}

// RunListResponse is the response for GET /api/v1/runs.
type RunListResponse struct {
	// Runs holds run summaries, newest first.
	Runs []history.Record `json:"runs"`

	// Count is len(Runs).
	Count int `json:"count"`
}

// CancelResponse is the response for POST /api/v1/runs/:id/cancel.
type CancelResponse struct {
	// RunID identifies the run being aborted.
	RunID string `json:"runId"`

	// Status is "aborting".
	Status string `json:"status"`
}

// ValidateRequest is the request body for POST /api/v1/graphs/validate.
type ValidateRequest struct {
	// Graph is the snapshot to check.
	Graph *graph.Snapshot `json:"graph" binding:"required"`
}

// ValidateResponse is the response for POST /api/v1/graphs/validate.
//
// Validation findings are the payload, not an HTTP error: a
// well-formed request about an invalid graph returns 200 with
// Valid=false.
type ValidateResponse struct {
	// Valid is true when the snapshot passed structural validation and
	// contains no cycle.
	Valid bool `json:"valid"`

	// Error describes why the graph is invalid.
	Error string `json:"error,omitempty"`

	// Order is the execution order the engine would use.
	Order []string `json:"order,omitempty"`

	// NodeCount is the number of nodes checked.
	NodeCount int `json:"nodeCount"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	// Status is "healthy".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /ready.
type ReadyResponse struct {
	// Ready is true when the service can accept runs.
	Ready bool `json:"ready"`

	// ModelsOK is true when the model directory is readable.
	ModelsOK bool `json:"modelsOk"`

	// ActiveRuns is the number of runs currently executing.
	ActiveRuns int `json:"activeRuns"`

	// NodeTypes is the number of registered processor types.
	NodeTypes int `json:"nodeTypes"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// StreamEvent is one websocket message on a run stream.
type StreamEvent struct {
	// Type is "node_data" or "status".
	Type string `json:"type"`

	// RunID identifies the run.
	RunID string `json:"runId"`

	// NodeID is set on node_data events.
	NodeID string `json:"nodeId,omitempty"`

	// Data is the node's data bag after the update, on node_data
	// events.
	Data graph.NodeData `json:"data,omitempty"`

	// Status is the terminal run status, on status events.
	Status string `json:"status,omitempty"`

	// Error is the run-halting error, on failed status events.
	Error string `json:"error,omitempty"`
}
