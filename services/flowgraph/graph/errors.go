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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph validation and ordering.
var (
	// ErrCycle is returned when the graph contains a directed cycle.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrNodeNotFound is returned when an edge or lookup references a
	// node id absent from the snapshot.
	ErrNodeNotFound = errors.New("node not found in snapshot")

	// ErrDuplicateNode is returned when two nodes share an id.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrEmptyGraph is returned when a snapshot has no nodes.
	ErrEmptyGraph = errors.New("snapshot has no nodes")
)

// CycleError reports a directed cycle, fatal before any node executes.
//
// Path holds the node ids along the cycle, with the entry node repeated
// at the end (a -> b -> a).
type CycleError struct {
	Path []string
}

// NewCycleError builds a CycleError from the cycle path.
func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph contains a cycle: %s", strings.Join(e.Path, " -> "))
}

// Unwrap allows errors.Is(err, ErrCycle).
func (e *CycleError) Unwrap() error { return ErrCycle }

// NodeNotFoundError reports a reference to a node id that is not part of
// the snapshot.
type NodeNotFoundError struct {
	NodeID string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %q not found in snapshot", e.NodeID)
}

// Unwrap allows errors.Is(err, ErrNodeNotFound).
func (e *NodeNotFoundError) Unwrap() error { return ErrNodeNotFound }
