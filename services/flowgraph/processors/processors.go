// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package processors implements the built-in node processors.
//
// Each processor covers one editor node type. Failures fall into two
// classes: user-recoverable conditions (missing configuration, a model
// that fails to load, a script error) produce an {error: "..."} result
// map so the run continues and the editor renders the message on the
// node; everything else returns an error and fails the run.
//
// Thread Safety:
//
//	Processors hold no per-run state and are safe for concurrent use.
package processors

import (
	"fmt"
	"log/slog"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/model"
)

// Deps carries the collaborators the built-in processors depend on.
// Every field is optional: processors whose collaborator is absent
// return error results instead of failing registration.
type Deps struct {
	// Models resolves the file references of ifcNode and spatialNode.
	Models model.Service

	// ExportDir receives exportNode output files.
	ExportDir string

	// Exporters overrides the bundled format table. Nil uses
	// DefaultExporters.
	Exporters map[string]Exporter

	// Scripts executes pythonNode code.
	Scripts ScriptRunner

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// RegisterAll wires the built-in processor set into a registry.
//
// Inputs:
//
//	reg  - Target registry. Must not be nil.
//	deps - Shared collaborators. Zero value is valid.
//
// Outputs:
//
//	error - Non-nil if any registration fails (nil registry, duplicate
//	        type tag from an earlier registration).
func RegisterAll(reg *engine.Registry, deps Deps) error {
	if reg == nil {
		return fmt.Errorf("%w: registry must not be nil", engine.ErrInvalidInput)
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	exporters := deps.Exporters
	if exporters == nil {
		exporters = DefaultExporters()
	}

	procs := []engine.Processor{
		&transformProcessor{log: log},
		&ifcProcessor{models: deps.Models},
		filterProcessor{},
		propertyProcessor{},
		&spatialProcessor{models: deps.Models},
		parameterProcessor{},
		watchProcessor{},
		&exportProcessor{dir: deps.ExportDir, exporters: exporters, log: log},
		&scriptProcessor{runner: deps.Scripts},
	}
	for _, p := range procs {
		if err := reg.Register(p); err != nil {
			return fmt.Errorf("registering %s: %w", p.Type(), err)
		}
	}
	return nil
}

// errorResult is the recoverable-failure convention: the message lands
// on the node, the run continues.
func errorResult(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// records normalizes a node input to an element record list. Accepts
// typed and untyped lists, {elements: [...]} wrappers, and a single
// record. Non-record list items are dropped.
func records(v any) ([]map[string]any, bool) {
	switch t := v.(type) {
	case []map[string]any:
		return t, true
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out, true
	case map[string]any:
		if inner, ok := t["elements"]; ok {
			return records(inner)
		}
		return []map[string]any{t}, true
	default:
		return nil, false
	}
}

// toAnyList widens a record slice to the JSON-shaped list the transform
// steps operate on.
func toAnyList(recs []map[string]any) []any {
	out := make([]any, len(recs))
	for i, rec := range recs {
		out[i] = rec
	}
	return out
}

// cloneRecord copies a record one level deep. Safe only for adding
// top-level keys; nested writes need a deep clone.
func cloneRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
