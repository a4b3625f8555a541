// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

// Processor is one unit of typed node computation.
//
// Description:
//
//	A processor consumes the node's upstream input values and its local
//	configuration, may push intermediate state through the run context's
//	update channel, and produces one opaque result value. Processors are
//	free to call external services; the engine only requires that those
//	calls eventually return or fail.
//
//	Returning an error fails the whole run. Recoverable conditions
//	should instead be encoded into the result (an {error: "..."} record
//	by convention) so descendants and the UI see a clear failure without
//	halting the graph.
//
// Thread Safety:
//
//	One processor instance serves all runs; implementations must be safe
//	for concurrent use across runs.
type Processor interface {
	// Type returns the node type tag this processor serves.
	Type() string

	// Process computes the node's result from its inputs.
	Process(ctx context.Context, node graph.Node, inputs Inputs, run Context) (any, error)
}

// Inputs is a node's resolved input bag, keyed by target handle name.
// Unrecognized handle names are kept under their literal name.
type Inputs map[string]any

// Primary returns the default "input" slot value.
func (in Inputs) Primary() any {
	return in[graph.HandleInput]
}

// Reference returns the "reference" slot value.
func (in Inputs) Reference() any {
	return in[graph.HandleReference]
}

// Value returns the "valueInput" slot value.
func (in Inputs) Value() any {
	return in[graph.HandleValue]
}

// Secondary returns the "inputB" slot value.
func (in Inputs) Secondary() any {
	return in[graph.HandleSecondary]
}

// Get returns a slot value by literal handle name.
func (in Inputs) Get(handle string) (any, bool) {
	v, ok := in[handle]
	return v, ok
}

// Has reports whether a slot was wired.
func (in Inputs) Has(handle string) bool {
	_, ok := in[handle]
	return ok
}

// Context is the engine-owned view handed to every processor for the
// lifetime of one run.
//
// Description:
//
//	Context exposes read access to the run's node list, edge list, and
//	result memo, plus the single sanctioned mutation channel back toward
//	the editor: UpdateNodeData. Processors must not retain the context
//	after Process returns.
type Context interface {
	// RunID identifies the run for logging and streaming.
	RunID() string

	// Nodes returns the run's node list with the latest data bags.
	Nodes() []graph.Node

	// Edges returns the run's edge list.
	Edges() []graph.Edge

	// Result returns the memoized result of an already-resolved node.
	Result(nodeID string) (any, bool)

	// UpdateNodeData merges a patch into a node's data bag and notifies
	// the engine's node-data listener. Used for loading flags, progress,
	// and partial previews.
	UpdateNodeData(nodeID string, patch graph.NodeData) error
}
