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
	"strconv"
	"strings"
)

// Lookup resolves a dot-delimited path against nested records. Exported
// for collaborators that share the editor's path syntax.
func Lookup(v any, path string) (any, bool) {
	return lookupPath(v, path)
}

// SetPath writes a value into a record at a dot-delimited path, creating
// intermediate maps as needed.
func SetPath(rec map[string]any, path string, value any) {
	setPath(rec, path, value)
}

// lookupPath resolves a dot-delimited path against a value. The empty
// path resolves to the value itself. Returns found=false when any
// segment is missing or a non-map is traversed.
func lookupPath(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	current := v
	for _, seg := range strings.Split(path, ".") {
		rec, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = rec[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath writes a value into a record, creating intermediate maps for
// nested paths. Existing non-map intermediates are overwritten.
func setPath(rec map[string]any, path string, value any) {
	segs := strings.Split(path, ".")
	current := rec
	for _, seg := range segs[:len(segs)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}
	current[segs[len(segs)-1]] = value
}

// deletePath removes a path from a record. Missing segments are a no-op.
func deletePath(rec map[string]any, path string) {
	segs := strings.Split(path, ".")
	current := rec
	for _, seg := range segs[:len(segs)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segs[len(segs)-1])
}

// lastSegment returns the final component of a dot path.
func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

// asList narrows a value to a JSON array.
func asList(v any) ([]any, bool) {
	list, ok := v.([]any)
	return list, ok
}

// asRecord narrows a value to a JSON object.
func asRecord(v any) (map[string]any, bool) {
	rec, ok := v.(map[string]any)
	return rec, ok
}

// toNumber coerces numeric types and numeric strings to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// stringify renders a value as a stable mapping key. Whole floats print
// without a decimal point so JSON numbers key naturally.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
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
		if f, ok := toNumber(v); ok {
			return stringify(f)
		}
		return ""
	}
}

// looseEqual compares values the way an editor-authored condition
// expects: numerically when both sides coerce to numbers, by string
// form otherwise.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, aok := toNumber(a); aok {
		if nb, bok := toNumber(b); bok {
			return na == nb
		}
	}
	if ba, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ba == bb
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return sa == sb
	}
	return false
}

// isEmptyValue reports nil or empty-string, the values skipEmpty and
// map-step defaults treat as absent.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
