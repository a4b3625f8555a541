// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transform

import (
	"fmt"
	"sort"
)

// DefaultKeyPath identifies elements when a toMapping step does not
// configure a key path.
const DefaultKeyPath = "id"

// idFields are the conventional element id fields, checked in order,
// when extracting a restriction set from a secondary input.
var idFields = []string{"id", "GlobalId", "globalId", "expressID"}

// applyToMapping normalizes heterogeneous shapes into a flat key/value
// mapping.
//
// Description:
//
//	Accepted input shapes: a plain list of records, a group map whose
//	values are element lists (each element maps to its group key), an
//	{elements: [...]} wrapper, and a generic object. The result replaces
//	the running data with
//
//	  {mappings, metadata: {totalMappings, skippedEmpty, restrictedOut, inputCount}}
//
//	which downstream property appliers detect by the mappings key.
//
// Inputs:
//
//	cfg      - keyPath (default "id"), valuePath, skipEmpty, restrict.
//	data     - the running pipeline value.
//	restrict - id keys extracted from the secondary input, or nil when
//	           restriction is inactive.
func applyToMapping(cfg StepConfig, data any, restrict map[string]struct{}) (any, error) {
	if !cfg.Restrict {
		restrict = nil
	}

	m := &mappingBuilder{
		valuePath: cfg.ValuePath,
		skipEmpty: cfg.SkipEmpty,
		restrict:  restrict,
		mappings:  make(map[string]any),
	}

	keyPath := cfg.KeyPath
	if keyPath == "" {
		keyPath = DefaultKeyPath
	}

	switch in := data.(type) {
	case []any:
		m.addList(in, keyPath)
	case map[string]any:
		if elems, ok := asList(in["elements"]); ok {
			m.addList(elems, keyPath)
			break
		}
		if groups, ok := asGroupMap(in); ok {
			m.addGroups(in, groups, keyPath)
			break
		}
		m.addObject(in, cfg.KeyPath)
	default:
		return nil, fmt.Errorf("toMapping expects a collection: %w", errShape)
	}

	return map[string]any{
		"mappings": m.mappings,
		"metadata": map[string]any{
			"totalMappings": len(m.mappings),
			"skippedEmpty":  m.skipped,
			"restrictedOut": m.restricted,
			"inputCount":    countItems(data),
		},
	}, nil
}

type mappingBuilder struct {
	valuePath  string
	skipEmpty  bool
	restrict   map[string]struct{}
	mappings   map[string]any
	skipped    int
	restricted int
}

// add applies skip-empty and restriction policy before storing one pair.
func (m *mappingBuilder) add(key string, value any) {
	if key == "" {
		m.skipped++
		return
	}
	if m.skipEmpty && isEmptyValue(value) {
		m.skipped++
		return
	}
	if m.restrict != nil {
		if _, ok := m.restrict[key]; !ok {
			m.restricted++
			return
		}
	}
	m.mappings[key] = value
}

// addList maps each record by keyPath; the value is the record itself
// unless valuePath narrows it.
func (m *mappingBuilder) addList(items []any, keyPath string) {
	for _, item := range items {
		keyVal, _ := lookupPath(item, keyPath)
		value := item
		if m.valuePath != "" {
			value, _ = lookupPath(item, m.valuePath)
		}
		m.add(stringify(keyVal), value)
	}
}

// addGroups maps each grouped element to its group key (the
// space-to-elements shape), unless valuePath overrides the value.
func (m *mappingBuilder) addGroups(in map[string]any, groupKeys []string, keyPath string) {
	for _, groupKey := range groupKeys {
		items, _ := asList(in[groupKey])
		for _, item := range items {
			keyVal, _ := lookupPath(item, keyPath)
			value := any(groupKey)
			if m.valuePath != "" {
				value, _ = lookupPath(item, m.valuePath)
			}
			m.add(stringify(keyVal), value)
		}
	}
}

// addObject keeps generic object entries keyed as-is. An explicitly
// configured keyPath re-keys entries whose values resolve it; valuePath
// narrows record values.
func (m *mappingBuilder) addObject(in map[string]any, explicitKeyPath string) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := in[k]
		key := k
		if explicitKeyPath != "" {
			if kv, found := lookupPath(v, explicitKeyPath); found {
				key = stringify(kv)
			}
		}
		value := v
		if m.valuePath != "" {
			value, _ = lookupPath(v, m.valuePath)
		}
		m.add(key, value)
	}
}

// asGroupMap reports whether every non-nil value of the map is a list,
// the shape produced by spatial grouping. Returns the group keys sorted
// for deterministic output.
func asGroupMap(in map[string]any) ([]string, bool) {
	if len(in) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		if _, ok := asList(v); !ok {
			return nil, false
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return keys, true
}

// ExtractIDKeys collects identifying keys from a secondary input for
// restriction mode.
//
// Description:
//
//	Accepts a list of elements (conventional id fields checked in
//	order, scalar items used directly), an {elements: [...]} wrapper, a
//	previous toMapping result (its mapping keys), or a generic object
//	(its keys).
func ExtractIDKeys(v any) map[string]struct{} {
	keys := make(map[string]struct{})

	var addItem func(item any)
	addItem = func(item any) {
		if rec, ok := asRecord(item); ok {
			for _, f := range idFields {
				if val, found := rec[f]; found {
					if s := stringify(val); s != "" {
						keys[s] = struct{}{}
						return
					}
				}
			}
			return
		}
		if s := stringify(item); s != "" {
			keys[s] = struct{}{}
		}
	}

	switch in := v.(type) {
	case []any:
		for _, item := range in {
			addItem(item)
		}
	case map[string]any:
		if elems, ok := asList(in["elements"]); ok {
			for _, item := range elems {
				addItem(item)
			}
			break
		}
		if mappings, ok := asRecord(in["mappings"]); ok {
			for k := range mappings {
				keys[k] = struct{}{}
			}
			break
		}
		for k := range in {
			keys[k] = struct{}{}
		}
	}
	return keys
}
