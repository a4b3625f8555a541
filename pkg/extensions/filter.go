// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import "context"

// ResultFilter transforms node outputs before they leave the service.
//
// Model documents can carry sensitive values in element properties,
// owner fields, or site coordinates. A filter redacts or strips such
// values from run results without touching the execution engine.
//
// Implementations must not mutate the input map; return a new map, or
// the input unchanged when nothing applies. Must be safe for
// concurrent use.
type ResultFilter interface {
	// FilterOutputs returns the outputs to expose to API consumers.
	// An error causes the service to withhold outputs entirely rather
	// than risk leaking unfiltered data.
	FilterOutputs(ctx context.Context, outputs map[string]any) (map[string]any, error)
}

// NopResultFilter passes outputs through unchanged.
//
// Thread-safe: no mutable state.
type NopResultFilter struct{}

// FilterOutputs returns the outputs as-is.
func (f *NopResultFilter) FilterOutputs(_ context.Context, outputs map[string]any) (map[string]any, error) {
	return outputs, nil
}

// Compile-time interface compliance check.
var _ ResultFilter = (*NopResultFilter)(nil)
