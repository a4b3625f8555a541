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

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/model"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/transform"
)

// propertyProcessor reads or writes one property across an element
// list.
//
// Config: properties.action ("get" or "set") and properties.property (a
// dot path). "get" projects {id, name, value} records. "set" takes its
// value from the valueInput handle: a scalar applies to every element,
// a {mappings} wrapper (the toMapping result shape) applies per element
// id, leaving unmapped elements unchanged.
type propertyProcessor struct{}

func (propertyProcessor) Type() string { return "propertyNode" }

func (propertyProcessor) Process(_ context.Context, node graph.Node, inputs engine.Inputs, run engine.Context) (any, error) {
	property := node.Data.StringProperty("property", "")
	if property == "" {
		return errorResult("no property configured"), nil
	}

	recs, ok := records(inputs.Primary())
	if !ok {
		return errorResult("property input is not an element list"), nil
	}

	switch action := node.Data.StringProperty("action", "get"); action {
	case "get":
		out := make([]any, 0, len(recs))
		for _, rec := range recs {
			id, _ := model.ElementID(rec)
			value, _ := transform.Lookup(rec, property)
			entry := map[string]any{"id": id, "value": value}
			if name, ok := rec["name"]; ok {
				entry["name"] = name
			}
			out = append(out, entry)
		}
		return out, nil

	case "set":
		if !inputs.Has(graph.HandleValue) {
			return errorResult("set requires a value input"), nil
		}
		value := inputs.Value()
		perID, mapped := mappingValues(value)

		out := make([]any, 0, len(recs))
		updated := 0
		for _, rec := range recs {
			// Deep copy: a dotted property writes into nested maps the
			// memoized upstream result still references.
			c, err := jsonx.Clone(rec)
			if err != nil {
				return errorResult("element %v is not serializable: %v", rec["id"], err), nil
			}
			if mapped {
				if id, ok := model.ElementID(rec); ok {
					if v, hit := perID[id]; hit {
						transform.SetPath(c, property, v)
						updated++
					}
				}
			} else {
				transform.SetPath(c, property, value)
				updated++
			}
			out = append(out, c)
		}

		if err := run.UpdateNodeData(node.ID, graph.NodeData{
			"metadata": map[string]any{"updated": updated, "total": len(recs)},
		}); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return errorResult("unknown property action %q", action), nil
	}
}

// mappingValues unwraps a toMapping result into per-element values.
func mappingValues(v any) (map[string]any, bool) {
	rec, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	m, ok := rec["mappings"].(map[string]any)
	return m, ok
}
