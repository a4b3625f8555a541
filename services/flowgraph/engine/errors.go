// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Sentinel errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is provided.
	ErrNilContext = errors.New("context must not be nil")

	// ErrInvalidInput is returned for nil or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyRunning is returned when a run is requested while another
	// run is active. The active run is unaffected.
	ErrAlreadyRunning = errors.New("a run is already in progress")

	// ErrUnknownNodeType is returned when a node's type has no registered
	// processor. This is a configuration error, never silently skipped.
	ErrUnknownNodeType = errors.New("no processor registered for node type")

	// ErrDuplicateProcessor is returned when a second processor registers
	// for the same node type.
	ErrDuplicateProcessor = errors.New("processor already registered")
)

// -----------------------------------------------------------------------------
// Error types
// -----------------------------------------------------------------------------

// UnknownNodeTypeError reports a node whose declared type has no
// processor in the registry.
type UnknownNodeTypeError struct {
	// NodeID is the node that referenced the type, empty on a bare
	// registry lookup.
	NodeID string

	// NodeType is the unregistered type tag.
	NodeType string
}

// Error implements the error interface.
func (e *UnknownNodeTypeError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("no processor registered for node type %q", e.NodeType)
	}
	return fmt.Sprintf("node %q: no processor registered for type %q", e.NodeID, e.NodeType)
}

// Unwrap makes the error match ErrUnknownNodeType.
func (e *UnknownNodeTypeError) Unwrap() error {
	return ErrUnknownNodeType
}

// NodeError wraps a processor failure with the node it occurred on.
type NodeError struct {
	NodeID   string
	NodeType string
	Err      error
}

// NewNodeError creates a NodeError for the given node.
func NewNodeError(nodeID, nodeType string, err error) *NodeError {
	return &NodeError{NodeID: nodeID, NodeType: nodeType, Err: err}
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q (%s): %v", e.NodeID, e.NodeType, e.Err)
}

// Unwrap returns the underlying processor error.
func (e *NodeError) Unwrap() error {
	return e.Err
}
