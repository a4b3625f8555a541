// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model provides access to prepared building-model documents.
//
// A document is the JSON output of the external parsing step: a flat
// element list plus the spatial structure (spaces and the containment
// table). Processors depend on the Service interface rather than on
// files; the bundled FileService reads documents from a configured
// directory, validates them, and memoizes them through the shared cache.
//
// Thread Safety:
//
//	Document values are read-only after loading. FileService is safe
//	for concurrent use.
package model

import (
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Document is one prepared building model.
type Document struct {
	// Schema identifies the source schema, for example "IFC4".
	Schema string `json:"schema" validate:"required"`

	// Name is the human-readable model name. Defaults to the file
	// reference when the document does not carry one.
	Name string `json:"name"`

	// Elements are the flattened building elements. Each record carries
	// an id and a type tag; the remaining keys are properties.
	Elements []map[string]any `json:"elements" validate:"required"`

	// Containment maps a space id to the ids of the elements it contains.
	Containment map[string][]string `json:"containment"`

	// Spaces are the spatial structure records (storeys, rooms).
	Spaces []map[string]any `json:"spaces"`
}

// Initialized in init().
var docValidate *validator.Validate

func init() {
	docValidate = validator.New()
}

// idFields are the element identity keys, checked in order.
var idFields = [...]string{"id", "GlobalId", "globalId", "expressID"}

// ElementID returns the canonical id of an element or space record.
// Identity keys are checked in a fixed order so mixed documents resolve
// consistently.
func ElementID(rec map[string]any) (string, bool) {
	for _, f := range idFields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		if s := idString(v); s != "" {
			return s, true
		}
	}
	return "", false
}

// idString renders a scalar identity value. Whole floats print without a
// decimal point so JSON numbers key naturally.
func idString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'g', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

// Validate reports whether the document satisfies the structural rules:
// a schema identifier and an elements list (which may be empty) are
// required.
func (d *Document) Validate() error {
	return docValidate.Struct(d)
}

// ElementCount returns the number of elements in the document.
func (d *Document) ElementCount() int {
	return len(d.Elements)
}

// ElementsOfType returns the elements whose "type" property matches typ,
// case-insensitively. The returned slice shares the underlying records.
func (d *Document) ElementsOfType(typ string) []map[string]any {
	var out []map[string]any
	for _, el := range d.Elements {
		if t, ok := el["type"].(string); ok && strings.EqualFold(t, typ) {
			out = append(out, el)
		}
	}
	return out
}

// SpaceByID returns the space record with the given id.
func (d *Document) SpaceByID(id string) (map[string]any, bool) {
	for _, sp := range d.Spaces {
		if sid, ok := ElementID(sp); ok && sid == id {
			return sp, true
		}
	}
	return nil, false
}

// SpaceAssignments inverts the containment table into an element id to
// space id map. Spaces are visited in sorted order, and an element listed
// under more than one space keeps its first assignment, so the result is
// deterministic.
func (d *Document) SpaceAssignments() map[string]string {
	if len(d.Containment) == 0 {
		return map[string]string{}
	}

	spaceIDs := make([]string, 0, len(d.Containment))
	for id := range d.Containment {
		spaceIDs = append(spaceIDs, id)
	}
	sort.Strings(spaceIDs)

	assigned := make(map[string]string)
	for _, spaceID := range spaceIDs {
		for _, elementID := range d.Containment[spaceID] {
			if _, ok := assigned[elementID]; !ok {
				assigned[elementID] = spaceID
			}
		}
	}
	return assigned
}
