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

// spatialProcessor assigns elements to their containing spaces using
// the model's containment table. Config: properties.file names the
// document. The reference handle optionally restricts output to a space
// subset (space ids, space records, or an {elements} wrapper of them);
// with a restriction in place, elements outside the subset are dropped.
type spatialProcessor struct {
	models model.Service
}

func (*spatialProcessor) Type() string { return "spatialNode" }

func (p *spatialProcessor) Process(ctx context.Context, node graph.Node, inputs engine.Inputs, run engine.Context) (any, error) {
	if p.models == nil {
		return errorResult("model service not configured"), nil
	}
	ref := node.Data.StringProperty("file", "")
	if ref == "" {
		return errorResult("no model file selected"), nil
	}
	recs, ok := records(inputs.Primary())
	if !ok {
		return errorResult("spatial input is not an element list"), nil
	}

	doc, err := p.models.Load(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return errorResult("loading model %q: %v", ref, err), nil
	}

	assignments := doc.SpaceAssignments()
	restrict := spaceRestriction(inputs.Reference())

	spaceName := func(id string) string {
		if sp, ok := doc.SpaceByID(id); ok {
			if n, ok := sp["name"].(string); ok && n != "" {
				return n
			}
		}
		return id
	}

	out := make([]any, 0, len(recs))
	groups := make(map[string][]any)
	assigned := 0
	for _, rec := range recs {
		id, hasID := model.ElementID(rec)
		spaceID, inSpace := "", false
		if hasID {
			spaceID, inSpace = assignments[id]
		}

		if restrict != nil {
			if !inSpace {
				continue
			}
			if _, ok := restrict[spaceID]; !ok {
				continue
			}
		}

		c := cloneRecord(rec)
		if inSpace {
			label := spaceName(spaceID)
			c["spaceId"] = spaceID
			c["spaceName"] = label
			groups[label] = append(groups[label], id)
			assigned++
		}
		out = append(out, c)
	}

	spaces := make(map[string]any, len(groups))
	for label, ids := range groups {
		spaces[label] = ids
	}

	if err := run.UpdateNodeData(node.ID, graph.NodeData{
		"metadata": map[string]any{
			"assigned":   assigned,
			"unassigned": len(out) - assigned,
			"spaces":     len(groups),
		},
	}); err != nil {
		return nil, err
	}

	return map[string]any{
		"elements": out,
		"spaces":   spaces,
	}, nil
}

// spaceRestriction collects space ids out of the reference input. Nil
// means no restriction.
func spaceRestriction(v any) map[string]struct{} {
	if v == nil {
		return nil
	}
	set := make(map[string]struct{})
	add := func(item any) {
		switch t := item.(type) {
		case string:
			if t != "" {
				set[t] = struct{}{}
			}
		case map[string]any:
			if id, ok := model.ElementID(t); ok {
				set[id] = struct{}{}
			}
		}
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			add(item)
		}
	case map[string]any:
		if inner, ok := t["elements"].([]any); ok {
			for _, item := range inner {
				add(item)
			}
		} else {
			add(t)
		}
	default:
		add(v)
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
