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
	"reflect"
	"testing"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
)

func TestParameterProcessor(t *testing.T) {
	p := parameterProcessor{}

	tests := []struct {
		name  string
		props map[string]any
		want  any
	}{
		{"string passthrough", map[string]any{"value": "F30"}, "F30"},
		{"number from editor string", map[string]any{"value": "42.5", "valueType": "number"}, 42.5},
		{"number passthrough", map[string]any{"value": 7.0, "valueType": "number"}, 7.0},
		{"boolean from string", map[string]any{"value": "true", "valueType": "boolean"}, true},
		{"boolean passthrough", map[string]any{"value": false, "valueType": "boolean"}, false},
		{"json decode", map[string]any{"value": `{"a": 1}`, "valueType": "json"}, map[string]any{"a": 1.0}},
		{"json structured passthrough", map[string]any{"value": map[string]any{"a": 2.0}, "valueType": "json"}, map[string]any{"a": 2.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := cfgNode("v1", "parameterNode", tt.props)
			out, err := p.Process(context.Background(), node, engine.Inputs{}, newFakeRun())
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if !reflect.DeepEqual(out, tt.want) {
				t.Errorf("got %v (%T), want %v (%T)", out, out, tt.want, tt.want)
			}
		})
	}
}

func TestParameterProcessor_ErrorResults(t *testing.T) {
	p := parameterProcessor{}

	tests := []struct {
		name  string
		props map[string]any
	}{
		{"no value", nil},
		{"bad number", map[string]any{"value": "many", "valueType": "number"}},
		{"bad boolean", map[string]any{"value": "maybe", "valueType": "boolean"}},
		{"bad json", map[string]any{"value": "{", "valueType": "json"}},
		{"unknown type", map[string]any{"value": "x", "valueType": "color"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := cfgNode("v1", "parameterNode", tt.props)
			out, err := p.Process(context.Background(), node, engine.Inputs{}, newFakeRun())
			if err != nil {
				t.Fatalf("recoverable condition should not fail the run: %v", err)
			}
			assertErrorResult(t, out)
		})
	}
}
