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
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry maps node type tags to processors.
//
// Description:
//
//	The mapping is established at startup and stays fixed across runs.
//	Exactly one processor serves each type; registering a second one for
//	the same tag is an error rather than a silent replacement.
//
// Thread Safety:
//
//	Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
	logger     *slog.Logger
}

// NewRegistry creates an empty processor registry.
//
// Inputs:
//
//	logger - Logger for registration events. If nil, uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		processors: make(map[string]Processor),
		logger:     logger,
	}
}

// Register adds a processor under its declared type tag.
//
// Outputs:
//
//	error - ErrInvalidInput for a nil processor or empty type tag,
//	        ErrDuplicateProcessor when the tag is already taken.
func (r *Registry) Register(p Processor) error {
	if p == nil {
		return fmt.Errorf("%w: processor must not be nil", ErrInvalidInput)
	}
	nodeType := p.Type()
	if nodeType == "" {
		return fmt.Errorf("%w: processor type must not be empty", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.processors[nodeType]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateProcessor, nodeType)
	}
	r.processors[nodeType] = p

	r.logger.Debug("processor registered",
		slog.String("node_type", nodeType),
	)
	return nil
}

// Get returns the processor for a node type.
func (r *Registry) Get(nodeType string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[nodeType]
	return p, ok
}

// Lookup returns the processor for a node type, or an
// UnknownNodeTypeError when none is registered.
func (r *Registry) Lookup(nodeType string) (Processor, error) {
	p, ok := r.Get(nodeType)
	if !ok {
		return nil, &UnknownNodeTypeError{NodeType: nodeType}
	}
	return p, nil
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.processors))
	for t := range r.processors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Len returns the number of registered processors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processors)
}
