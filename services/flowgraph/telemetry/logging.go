// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace returns a logger carrying the current trace context.
//
// Description:
//
//	Attaches trace_id and span_id fields so log lines correlate with
//	spans in the trace backend. Returns the logger unchanged when the
//	context has no valid span.
//
// Inputs:
//
//	ctx - Context potentially containing a span. May be nil.
//	logger - Base logger. Nil falls back to slog.Default().
//
// Outputs:
//
//	*slog.Logger - Logger with trace fields, or the base logger.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}

	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// LoggerWithNode returns a trace-correlated logger scoped to one graph
// node. The node field distinguishes interleaved log lines from nodes
// executing in the same wave.
func LoggerWithNode(ctx context.Context, logger *slog.Logger, nodeID string) *slog.Logger {
	return LoggerWithTrace(ctx, logger).With(slog.String("node", nodeID))
}
