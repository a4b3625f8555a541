// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph defines the node/edge snapshot model the execution engine
// consumes, including topological ordering with cycle detection.
//
// A snapshot is produced by the visual editor and handed to the engine at
// run start. Field names follow the editor's wire format (camelCase), so
// snapshots round-trip unchanged.
package graph

import (
	"fmt"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
)

// Input handle names recognized across processors. An edge may declare any
// other literal handle; these are only the conventional ones.
const (
	// HandleInput is the default primary input slot.
	HandleInput = "input"

	// HandleReference carries secondary context, such as a spatial
	// reference set.
	HandleReference = "reference"

	// HandleValue feeds a value in from another node rather than from
	// static configuration.
	HandleValue = "valueInput"

	// HandleSecondary is the second collection consumed by join and
	// restriction operations.
	HandleSecondary = "inputB"
)

// Data bag keys the engine itself reads or writes. Everything else in a
// node's data bag belongs to the editor and the node's processor.
const (
	// DataKeyLabel is the display label.
	DataKeyLabel = "label"

	// DataKeyProperties holds the processor-specific configuration map.
	DataKeyProperties = "properties"

	// DataKeyLoading marks a node as currently executing.
	DataKeyLoading = "isLoading"

	// DataKeyError carries the last execution error message.
	DataKeyError = "error"

	// DataKeyResult carries the last result preview.
	DataKeyResult = "result"
)

// NodeData is a node's mutable data bag: display label, the processor
// configuration under "properties", and transient execution state
// (isLoading, error, result). The engine mutates it only through the
// run's update channel.
type NodeData map[string]any

// Label returns the display label, or "" when unset.
func (d NodeData) Label() string {
	s, _ := d[DataKeyLabel].(string)
	return s
}

// Properties returns the processor configuration map, or nil when unset.
func (d NodeData) Properties() map[string]any {
	m, _ := d[DataKeyProperties].(map[string]any)
	return m
}

// Property returns a single configuration value.
func (d NodeData) Property(key string) (any, bool) {
	props := d.Properties()
	if props == nil {
		return nil, false
	}
	v, ok := props[key]
	return v, ok
}

// StringProperty returns a configuration value as a string, with def as
// the fallback for missing or non-string values.
func (d NodeData) StringProperty(key, def string) string {
	v, ok := d.Property(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Clone returns an independent deep copy of the bag.
func (d NodeData) Clone() (NodeData, error) {
	if d == nil {
		return NodeData{}, nil
	}
	return jsonx.Clone(d)
}

// Node is one configured unit of computation in the graph.
type Node struct {
	ID   string   `json:"id" validate:"required"`
	Type string   `json:"type" validate:"required,nodetype"`
	Data NodeData `json:"data"`
}

// String implements fmt.Stringer for log output.
func (n Node) String() string {
	return fmt.Sprintf("%s(%s)", n.ID, n.Type)
}

// Edge is a directed data connection from one node's named output handle
// to another node's named input handle.
type Edge struct {
	ID           string `json:"id" validate:"required"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// InputHandle returns the edge's target handle, defaulting to
// HandleInput when the editor omitted it.
func (e Edge) InputHandle() string {
	if e.TargetHandle == "" {
		return HandleInput
	}
	return e.TargetHandle
}
