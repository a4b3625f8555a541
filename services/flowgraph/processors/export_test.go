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
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
)

func newExportProcessor(t *testing.T) (*exportProcessor, string) {
	t.Helper()
	dir := t.TempDir()
	return &exportProcessor{
		dir:       dir,
		exporters: DefaultExporters(),
		log:       slog.Default(),
	}, dir
}

func TestExportProcessor_JSON(t *testing.T) {
	p, dir := newExportProcessor(t)
	node := cfgNode("e1", "exportNode", map[string]any{
		"format":   "json",
		"fileName": "walls",
	})
	in := []any{map[string]any{"id": "w1", "type": "IfcWall"}}

	out, err := p.Process(context.Background(), node, engine.Inputs{"input": in}, newFakeRun())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	rec := out.(map[string]any)
	if rec["file"] != "walls.json" || rec["format"] != "json" || rec["items"] != 1 {
		t.Errorf("unexpected result: %v", rec)
	}

	data, err := os.ReadFile(filepath.Join(dir, "walls.json"))
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	var decoded []any
	if err := jsonx.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0].(map[string]any)["id"] != "w1" {
		t.Errorf("unexpected export content: %v", decoded)
	}

	// No temp leftovers after a successful rename.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".export-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestExportProcessor_CSV(t *testing.T) {
	p, dir := newExportProcessor(t)
	node := cfgNode("e1", "exportNode", map[string]any{
		"format":   "csv",
		"fileName": "walls.csv",
	})
	in := []any{
		map[string]any{"id": "w1", "area": 12.5},
		map[string]any{"id": "w2", "name": "South"},
	}

	out, err := p.Process(context.Background(), node, engine.Inputs{"input": in}, newFakeRun())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.(map[string]any)["items"] != 2 {
		t.Errorf("unexpected result: %v", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "walls.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	// Sorted union of keys across all records.
	if lines[0] != "area,id,name" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "12.5,w1," || lines[2] != ",w2,South" {
		t.Errorf("rows = %q, %q", lines[1], lines[2])
	}
}

func TestExportProcessor_ErrorResults(t *testing.T) {
	p, _ := newExportProcessor(t)

	tests := []struct {
		name  string
		props map[string]any
		in    any
	}{
		{"no file name", map[string]any{"format": "json"}, []any{}},
		{"bad format", map[string]any{"format": "xlsx", "fileName": "x"}, []any{}},
		{"traversal name", map[string]any{"format": "json", "fileName": "../escape"}, []any{}},
		{"csv needs records", map[string]any{"format": "csv", "fileName": "x"}, "scalar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := cfgNode("e1", "exportNode", tt.props)
			out, err := p.Process(context.Background(), node, engine.Inputs{"input": tt.in}, newFakeRun())
			if err != nil {
				t.Fatalf("recoverable condition should not fail the run: %v", err)
			}
			assertErrorResult(t, out)
		})
	}
}

func TestExportProcessor_NoDirConfigured(t *testing.T) {
	p := &exportProcessor{exporters: DefaultExporters(), log: slog.Default()}
	node := cfgNode("e1", "exportNode", map[string]any{"format": "json", "fileName": "x"})

	out, err := p.Process(context.Background(), node, engine.Inputs{}, newFakeRun())
	if err != nil {
		t.Fatal(err)
	}
	assertErrorResult(t, out)
}

func TestCSVExporter_NestedValuesAsJSON(t *testing.T) {
	var buf bytes.Buffer
	err := CSVExporter{}.Export(&buf, []any{
		map[string]any{"id": "w1", "props": map[string]any{"fireRating": "F30"}},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(buf.String(), `"{""fireRating"":""F30""}"`) {
		t.Errorf("nested value should render as a JSON cell, got %q", buf.String())
	}
}
