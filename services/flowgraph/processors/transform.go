// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package processors

import (
	"context"
	"log/slog"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/transform"
)

// transformProcessor runs the declarative step pipeline configured on
// the node. The primary input feeds the pipeline; the secondary input
// serves join and restricted-mapping steps. Counts and warnings are
// pushed into the node's data bag for the editor to render.
type transformProcessor struct {
	log *slog.Logger
}

func (*transformProcessor) Type() string { return "dataTransformNode" }

func (p *transformProcessor) Process(_ context.Context, node graph.Node, inputs engine.Inputs, run engine.Context) (any, error) {
	raw, _ := node.Data.Property("steps")
	steps, err := transform.ParseSteps(raw)
	if err != nil {
		return errorResult("invalid transform steps: %v", err), nil
	}

	res := transform.Execute(steps, inputs.Primary(), inputs.Secondary())

	if err := run.UpdateNodeData(node.ID, graph.NodeData{"metadata": res.Metadata}); err != nil {
		return nil, err
	}
	if len(res.Metadata.Warnings) > 0 {
		p.log.Warn("transform pipeline degraded",
			"node_id", node.ID,
			"warnings", len(res.Metadata.Warnings),
			"first", res.Metadata.Warnings[0],
		)
	}
	return res.Data, nil
}
