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
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/model"
)

func spatialDoc() *model.Document {
	return &model.Document{
		Schema: "IFC4",
		Name:   "Clinic",
		Elements: []map[string]any{
			{"id": "w1", "type": "IfcWall"},
			{"id": "w2", "type": "IfcWall"},
			{"id": "d1", "type": "IfcDoor"},
			{"id": "loose", "type": "IfcColumn"},
		},
		Containment: map[string][]string{
			"s1": {"w1", "d1"},
			"s2": {"w2"},
		},
		Spaces: []map[string]any{
			{"id": "s1", "name": "Reception"},
			{"id": "s2", "name": "Ward"},
		},
	}
}

func spatialElements() []any {
	return []any{
		map[string]any{"id": "w1", "type": "IfcWall"},
		map[string]any{"id": "w2", "type": "IfcWall"},
		map[string]any{"id": "loose", "type": "IfcColumn"},
	}
}

func TestSpatialProcessor(t *testing.T) {
	models := &fakeModels{docs: map[string]*model.Document{"clinic": spatialDoc()}}
	p := &spatialProcessor{models: models}
	run := newFakeRun()
	node := cfgNode("s1", "spatialNode", map[string]any{"file": "clinic"})

	out, err := p.Process(context.Background(), node, engine.Inputs{"input": spatialElements()}, run)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	rec := out.(map[string]any)

	elements := rec["elements"].([]any)
	if len(elements) != 3 {
		t.Fatalf("expected all 3 elements without restriction, got %d", len(elements))
	}
	first := elements[0].(map[string]any)
	if first["spaceId"] != "s1" || first["spaceName"] != "Reception" {
		t.Errorf("w1 annotation wrong: %v", first)
	}
	third := elements[2].(map[string]any)
	if _, ok := third["spaceId"]; ok {
		t.Errorf("uncontained element should stay unannotated: %v", third)
	}

	spaces := rec["spaces"].(map[string]any)
	if !reflect.DeepEqual(spaces["Reception"], []any{"w1"}) {
		t.Errorf("Reception group = %v, want [w1]", spaces["Reception"])
	}
	if !reflect.DeepEqual(spaces["Ward"], []any{"w2"}) {
		t.Errorf("Ward group = %v, want [w2]", spaces["Ward"])
	}

	meta := run.lastPatch(t, "s1")["metadata"].(map[string]any)
	if meta["assigned"] != 2 || meta["unassigned"] != 1 || meta["spaces"] != 2 {
		t.Errorf("unexpected metadata: %v", meta)
	}
}

func TestSpatialProcessor_ReferenceRestriction(t *testing.T) {
	models := &fakeModels{docs: map[string]*model.Document{"clinic": spatialDoc()}}
	p := &spatialProcessor{models: models}
	node := cfgNode("s1", "spatialNode", map[string]any{"file": "clinic"})

	tests := []struct {
		name      string
		reference any
	}{
		{"id list", []any{"s2"}},
		{"single id", "s2"},
		{"record list", []any{map[string]any{"id": "s2", "name": "Ward"}}},
		{"elements wrapper", map[string]any{"elements": []any{map[string]any{"id": "s2"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := engine.Inputs{"input": spatialElements(), "reference": tt.reference}
			out, err := p.Process(context.Background(), node, inputs, newFakeRun())
			if err != nil {
				t.Fatal(err)
			}
			elements := out.(map[string]any)["elements"].([]any)
			if len(elements) != 1 {
				t.Fatalf("expected only the Ward element, got %v", elements)
			}
			if elements[0].(map[string]any)["id"] != "w2" {
				t.Errorf("wrong element kept: %v", elements[0])
			}
		})
	}
}

func TestSpatialProcessor_InputNotMutated(t *testing.T) {
	models := &fakeModels{docs: map[string]*model.Document{"clinic": spatialDoc()}}
	p := &spatialProcessor{models: models}
	node := cfgNode("s1", "spatialNode", map[string]any{"file": "clinic"})
	in := spatialElements()

	if _, err := p.Process(context.Background(), node, engine.Inputs{"input": in}, newFakeRun()); err != nil {
		t.Fatal(err)
	}
	if _, ok := in[0].(map[string]any)["spaceId"]; ok {
		t.Error("annotation mutated the upstream record")
	}
}

func TestSpatialProcessor_ErrorResults(t *testing.T) {
	models := &fakeModels{docs: map[string]*model.Document{"clinic": spatialDoc()}}

	noService := &spatialProcessor{}
	out, err := noService.Process(context.Background(),
		cfgNode("s1", "spatialNode", map[string]any{"file": "clinic"}),
		engine.Inputs{"input": []any{}}, newFakeRun())
	if err != nil {
		t.Fatal(err)
	}
	assertErrorResult(t, out)

	p := &spatialProcessor{models: models}
	out, err = p.Process(context.Background(),
		cfgNode("s1", "spatialNode", nil),
		engine.Inputs{"input": []any{}}, newFakeRun())
	if err != nil {
		t.Fatal(err)
	}
	assertErrorResult(t, out)

	out, err = p.Process(context.Background(),
		cfgNode("s1", "spatialNode", map[string]any{"file": "clinic"}),
		engine.Inputs{"input": "not a list"}, newFakeRun())
	if err != nil {
		t.Fatal(err)
	}
	assertErrorResult(t, out)

	out, err = p.Process(context.Background(),
		cfgNode("s1", "spatialNode", map[string]any{"file": "missing"}),
		engine.Inputs{"input": []any{}}, newFakeRun())
	if err != nil {
		t.Fatal(err)
	}
	assertErrorResult(t, out)
}
