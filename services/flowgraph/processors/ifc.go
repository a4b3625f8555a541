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

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/model"
)

// ifcProcessor loads a prepared building-model document and emits its
// element list. Config: properties.file names the document reference.
type ifcProcessor struct {
	models model.Service
}

func (*ifcProcessor) Type() string { return "ifcNode" }

func (p *ifcProcessor) Process(ctx context.Context, node graph.Node, _ engine.Inputs, _ engine.Context) (any, error) {
	if p.models == nil {
		return errorResult("model service not configured"), nil
	}
	ref := node.Data.StringProperty("file", "")
	if ref == "" {
		return errorResult("no model file selected"), nil
	}

	doc, err := p.models.Load(ctx, ref)
	if err != nil {
		// Cancellation is a run outcome, not a node condition.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return errorResult("loading model %q: %v", ref, err), nil
	}

	return map[string]any{
		"elements": toAnyList(doc.Elements),
		"model": map[string]any{
			"file":         ref,
			"name":         doc.Name,
			"schema":       doc.Schema,
			"elementCount": doc.ElementCount(),
			"spaceCount":   len(doc.Spaces),
		},
	}, nil
}
