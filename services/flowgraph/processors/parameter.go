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
	"strconv"
	"strings"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

// parameterProcessor emits a statically configured value, the producer
// side of the valueInput handle. Config: properties.value plus an
// optional properties.valueType coercion ("number", "boolean", "json");
// the editor serializes form fields as strings, so coercion happens
// here rather than in every consumer.
type parameterProcessor struct{}

func (parameterProcessor) Type() string { return "parameterNode" }

func (parameterProcessor) Process(_ context.Context, node graph.Node, _ engine.Inputs, _ engine.Context) (any, error) {
	value, ok := node.Data.Property("value")
	if !ok {
		return errorResult("no value configured"), nil
	}

	switch vt := node.Data.StringProperty("valueType", ""); vt {
	case "", "string", "any":
		return value, nil
	case "number":
		switch t := value.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return errorResult("value %q is not a number", t), nil
			}
			return f, nil
		default:
			return errorResult("value %v is not a number", value), nil
		}
	case "boolean":
		switch t := value.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			if err != nil {
				return errorResult("value %q is not a boolean", t), nil
			}
			return b, nil
		default:
			return errorResult("value %v is not a boolean", value), nil
		}
	case "json":
		s, ok := value.(string)
		if !ok {
			// Already structured; pass through.
			return value, nil
		}
		var out any
		if err := jsonx.Unmarshal([]byte(s), &out); err != nil {
			return errorResult("value is not valid JSON: %v", err), nil
		}
		return out, nil
	default:
		return errorResult("unknown value type %q", vt), nil
	}
}
