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
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/transform"
)

// filterProcessor keeps the elements matching one configured condition.
// Config: properties.property (dot path), properties.operator,
// properties.value. Evaluation is delegated to the transform filter
// step so both nodes agree on operator semantics.
type filterProcessor struct{}

func (filterProcessor) Type() string { return "filterNode" }

func (filterProcessor) Process(_ context.Context, node graph.Node, inputs engine.Inputs, _ engine.Context) (any, error) {
	property := node.Data.StringProperty("property", "")
	if property == "" {
		return errorResult("no filter property configured"), nil
	}
	operator := node.Data.StringProperty("operator", "equals")
	value, _ := node.Data.Property("value")

	recs, ok := records(inputs.Primary())
	if !ok {
		return errorResult("filter input is not an element list"), nil
	}

	step := transform.Step{
		Type: transform.StepFilter,
		Config: transform.StepConfig{
			Conditions: []transform.Condition{{Path: property, Operator: operator, Value: value}},
		},
	}
	res := transform.Execute([]transform.Step{step}, toAnyList(recs), nil)
	if len(res.Metadata.Warnings) > 0 {
		return errorResult("filter failed: %s", res.Metadata.Warnings[0]), nil
	}
	return res.Data, nil
}
