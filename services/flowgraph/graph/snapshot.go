// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
)

// Snapshot is the graph handed to the engine at run start: the sole data
// contract between the editor and the execution side.
type Snapshot struct {
	Nodes []Node `json:"nodes" validate:"required,dive"`
	Edges []Edge `json:"edges" validate:"dive"`
}

// Initialized in init() with custom validators.
var snapshotValidate *validator.Validate

// nodeTypePattern matches processor type tags (camelCase identifiers,
// e.g. "dataTransformNode").
var nodeTypePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

func init() {
	snapshotValidate = validator.New()
	_ = snapshotValidate.RegisterValidation("nodetype", validateNodeType)
}

// validateNodeType rejects type tags that cannot name a registered
// processor (whitespace, punctuation, empty).
func validateNodeType(fl validator.FieldLevel) bool {
	return nodeTypePattern.MatchString(fl.Field().String())
}

// ParseSnapshot decodes a JSON snapshot. Decoding does not validate
// graph structure; call Validate before running.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := jsonx.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &s, nil
}

// Encode serializes the snapshot back to its wire form.
func (s *Snapshot) Encode() ([]byte, error) {
	return jsonx.Marshal(s)
}

// Validate checks structural integrity.
//
// Description:
//
//	Verifies that the snapshot is non-empty, node ids are unique and
//	non-empty, node types look like processor tags, and every edge
//	endpoint references a node present in this snapshot. Runs before
//	topological ordering so ordering can assume a closed node set.
//
// Outputs:
//
//	nil on success. ErrEmptyGraph, ErrDuplicateNode, a *NodeNotFoundError,
//	or a field-level validation error otherwise.
func (s *Snapshot) Validate() error {
	if len(s.Nodes) == 0 {
		return ErrEmptyGraph
	}

	if err := snapshotValidate.Struct(s); err != nil {
		return fmt.Errorf("snapshot validation: %w", err)
	}

	seen := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("node id %q: %w", n.ID, ErrDuplicateNode)
		}
		seen[n.ID] = struct{}{}
	}

	for _, e := range s.Edges {
		if _, ok := seen[e.Source]; !ok {
			return fmt.Errorf("edge %q source: %w", e.ID, &NodeNotFoundError{NodeID: e.Source})
		}
		if _, ok := seen[e.Target]; !ok {
			return fmt.Errorf("edge %q target: %w", e.ID, &NodeNotFoundError{NodeID: e.Target})
		}
	}
	return nil
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// EdgesInto returns the edges targeting the given node, preserving
// snapshot edge order. Order matters: when two edges share a target
// handle, the later edge wins.
func (s *Snapshot) EdgesInto(nodeID string) []Edge {
	var in []Edge
	for _, e := range s.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// Clone deep-copies the snapshot so a run can own its node data without
// racing the editor.
func (s *Snapshot) Clone() (*Snapshot, error) {
	out, err := jsonx.Clone(*s)
	if err != nil {
		return nil, fmt.Errorf("clone snapshot: %w", err)
	}
	return &out, nil
}
