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
	"sort"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

// previewLimit caps how many list items or object keys a watch preview
// carries. The full value still flows downstream.
const previewLimit = 10

// watchProcessor is a passthrough that publishes a bounded preview of
// its input into the node's data bag, for live inspection in the
// editor.
type watchProcessor struct{}

func (watchProcessor) Type() string { return "watchNode" }

func (watchProcessor) Process(_ context.Context, node graph.Node, inputs engine.Inputs, run engine.Context) (any, error) {
	in := inputs.Primary()
	if err := run.UpdateNodeData(node.ID, graph.NodeData{"preview": buildPreview(in)}); err != nil {
		return nil, err
	}
	return in, nil
}

// buildPreview summarizes a value without ever exceeding previewLimit
// items. {elements} wrappers preview their element list, the usual case
// when watching model-shaped results.
func buildPreview(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return map[string]any{"kind": "empty"}
	case []any:
		items := t
		truncated := false
		if len(items) > previewLimit {
			items = items[:previewLimit]
			truncated = true
		}
		return map[string]any{
			"kind":       "list",
			"items":      items,
			"totalItems": len(t),
			"truncated":  truncated,
		}
	case map[string]any:
		if inner, ok := t["elements"].([]any); ok {
			return buildPreview(inner)
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		truncated := false
		if len(keys) > previewLimit {
			keys = keys[:previewLimit]
			truncated = true
		}
		return map[string]any{
			"kind":      "object",
			"keys":      keys,
			"totalKeys": len(t),
			"truncated": truncated,
		}
	default:
		return map[string]any{"kind": "value", "value": t}
	}
}
