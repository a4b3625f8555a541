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
	"errors"
	"fmt"
	"sort"
	"strings"

	"dario.cat/mergo"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
)

// Step configuration errors. Data-shape mismatches reuse errShape.
var (
	errShape          = errors.New("unsupported input shape")
	errNotConfigured  = errors.New("step not configured")
	errUnknownOp      = errors.New("unknown operator")
	errUnknownStep    = errors.New("unknown step type")
	errNegativeBound  = errors.New("negative bound")
	errMissingKeyPath = errors.New("keyPath is required")
)

// applyFilter keeps list items whose conditions hold.
func applyFilter(cfg StepConfig, data any) (any, error) {
	list, ok := asList(data)
	if !ok {
		return nil, fmt.Errorf("filter expects a list: %w", errShape)
	}
	if len(cfg.Conditions) == 0 {
		return data, nil
	}

	anyOf := strings.EqualFold(cfg.Logic, "or")

	out := make([]any, 0, len(list))
	for _, item := range list {
		keep := !anyOf
		for _, cond := range cfg.Conditions {
			match, err := evalCondition(item, cond)
			if err != nil {
				return nil, err
			}
			if anyOf {
				if match {
					keep = true
					break
				}
			} else if !match {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

// evalCondition checks one clause against an item. A missing path fails
// exists-style checks and counts as not-equal for the rest.
func evalCondition(item any, cond Condition) (bool, error) {
	val, found := lookupPath(item, cond.Path)

	switch cond.Operator {
	case "exists":
		return found && val != nil, nil
	case "notExists":
		return !found || val == nil, nil
	case "equals":
		return found && looseEqual(val, cond.Value), nil
	case "notEquals":
		return !found || !looseEqual(val, cond.Value), nil
	case "contains":
		return found && containsValue(val, cond.Value), nil
	case "startsWith":
		s, sok := val.(string)
		p, pok := cond.Value.(string)
		return found && sok && pok && strings.HasPrefix(s, p), nil
	case "endsWith":
		s, sok := val.(string)
		p, pok := cond.Value.(string)
		return found && sok && pok && strings.HasSuffix(s, p), nil
	case "in":
		return found && memberOf(cond.Value, val), nil
	case "notIn":
		return !found || !memberOf(cond.Value, val), nil
	case "gt", "gte", "lt", "lte":
		if !found {
			return false, nil
		}
		return compareOrdered(cond.Operator, val, cond.Value), nil
	default:
		return false, fmt.Errorf("%w: %q", errUnknownOp, cond.Operator)
	}
}

// containsValue is substring match for strings and membership for lists.
func containsValue(val, needle any) bool {
	switch v := val.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(v, s)
	case []any:
		for _, item := range v {
			if looseEqual(item, needle) {
				return true
			}
		}
	}
	return false
}

// memberOf checks val against a set given as a list or a comma-delimited
// string.
func memberOf(set, val any) bool {
	switch s := set.(type) {
	case []any:
		for _, item := range s {
			if looseEqual(item, val) {
				return true
			}
		}
	case string:
		for _, part := range strings.Split(s, ",") {
			if looseEqual(strings.TrimSpace(part), val) {
				return true
			}
		}
	}
	return false
}

// compareOrdered handles gt/gte/lt/lte: numeric when both sides coerce
// to numbers, lexicographic when both are strings, false otherwise.
func compareOrdered(op string, a, b any) bool {
	if na, aok := toNumber(a); aok {
		if nb, bok := toNumber(b); bok {
			switch op {
			case "gt":
				return na > nb
			case "gte":
				return na >= nb
			case "lt":
				return na < nb
			case "lte":
				return na <= nb
			}
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		switch op {
		case "gt":
			return sa > sb
		case "gte":
			return sa >= sb
		case "lt":
			return sa < sb
		case "lte":
			return sa <= sb
		}
	}
	return false
}

// applyMap builds new records from configured field mappings.
func applyMap(cfg StepConfig, data any) (any, error) {
	if len(cfg.Mappings) == 0 {
		return nil, fmt.Errorf("map has no field mappings: %w", errNotConfigured)
	}

	if list, ok := asList(data); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = mapRecord(cfg.Mappings, item)
		}
		return out, nil
	}
	if _, ok := asRecord(data); ok {
		return mapRecord(cfg.Mappings, data), nil
	}
	return nil, fmt.Errorf("map expects a list or a record: %w", errShape)
}

func mapRecord(mappings []FieldMapping, item any) map[string]any {
	out := make(map[string]any, len(mappings))
	for _, m := range mappings {
		val, found := lookupPath(item, m.Source)
		if (!found || isEmptyValue(val)) && m.Default != nil {
			val = m.Default
			found = true
		}
		if !found {
			continue
		}
		target := m.Target
		if target == "" {
			target = lastSegment(m.Source)
		}
		setPath(out, target, applyValueTransform(m.Transform, val))
	}
	return out
}

// applyValueTransform applies a named string/number transform, leaving
// incompatible values unchanged.
func applyValueTransform(name string, val any) any {
	switch name {
	case "", "none":
		return val
	case "number":
		if n, ok := toNumber(val); ok {
			return n
		}
		return val
	}
	s, ok := val.(string)
	if !ok {
		return val
	}
	switch name {
	case "upper":
		return strings.ToUpper(s)
	case "lower":
		return strings.ToLower(s)
	case "trim":
		return strings.TrimSpace(s)
	case "title":
		return titleCase(s)
	default:
		return val
	}
}

// titleCase upper-cases the first letter of each space-delimited word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// applyPick keeps only the configured field paths.
func applyPick(cfg StepConfig, data any) (any, error) {
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("pick has no fields: %w", errNotConfigured)
	}
	return perRecord(data, func(rec map[string]any) (any, error) {
		out := make(map[string]any, len(cfg.Fields))
		for _, f := range cfg.Fields {
			if val, found := lookupPath(rec, f); found {
				setPath(out, f, val)
			}
		}
		return out, nil
	})
}

// applyOmit removes the configured field paths.
func applyOmit(cfg StepConfig, data any) (any, error) {
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("omit has no fields: %w", errNotConfigured)
	}
	return perRecord(data, func(rec map[string]any) (any, error) {
		out, err := jsonx.Clone(rec)
		if err != nil {
			return nil, err
		}
		for _, f := range cfg.Fields {
			deletePath(out, f)
		}
		return out, nil
	})
}

// applyRename moves values between field paths. Renames apply in sorted
// old-path order so the result is deterministic.
func applyRename(cfg StepConfig, data any) (any, error) {
	if len(cfg.Renames) == 0 {
		return nil, fmt.Errorf("rename has no field pairs: %w", errNotConfigured)
	}
	olds := make([]string, 0, len(cfg.Renames))
	for old := range cfg.Renames {
		olds = append(olds, old)
	}
	sort.Strings(olds)

	return perRecord(data, func(rec map[string]any) (any, error) {
		out, err := jsonx.Clone(rec)
		if err != nil {
			return nil, err
		}
		for _, old := range olds {
			val, found := lookupPath(out, old)
			if !found {
				continue
			}
			deletePath(out, old)
			setPath(out, cfg.Renames[old], val)
		}
		return out, nil
	})
}

// perRecord applies fn to each record of a list, or to a single record.
// Non-record list items pass through untouched.
func perRecord(data any, fn func(map[string]any) (any, error)) (any, error) {
	if list, ok := asList(data); ok {
		out := make([]any, len(list))
		for i, item := range list {
			rec, ok := asRecord(item)
			if !ok {
				out[i] = item
				continue
			}
			mapped, err := fn(rec)
			if err != nil {
				return nil, err
			}
			out[i] = mapped
		}
		return out, nil
	}
	if rec, ok := asRecord(data); ok {
		return fn(rec)
	}
	return nil, fmt.Errorf("expects a list or a record: %w", errShape)
}

// applyFlatten concatenates nested arrays one level, or the arrays found
// at a path across all items.
func applyFlatten(cfg StepConfig, data any) (any, error) {
	list, ok := asList(data)
	if !ok {
		return nil, fmt.Errorf("flatten expects a list: %w", errShape)
	}

	out := make([]any, 0, len(list))
	for _, item := range list {
		target := item
		if cfg.Path != "" {
			val, found := lookupPath(item, cfg.Path)
			if !found || val == nil {
				continue
			}
			target = val
		}
		if sub, ok := asList(target); ok {
			out = append(out, sub...)
		} else {
			out = append(out, target)
		}
	}
	return out, nil
}

// canonicalKey renders any value as a dedupe key, falling back to its
// JSON form for composites.
func canonicalKey(v any) string {
	if v == nil {
		return ""
	}
	if s := stringify(v); s != "" {
		return s
	}
	data, err := jsonx.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// applyUnique drops duplicate items by key path, keeping the first
// occurrence in input order.
func applyUnique(cfg StepConfig, data any) (any, error) {
	list, ok := asList(data)
	if !ok {
		return nil, fmt.Errorf("unique expects a list: %w", errShape)
	}

	seen := make(map[string]struct{}, len(list))
	out := make([]any, 0, len(list))
	for _, item := range list {
		var key string
		if cfg.KeyPath == "" {
			key = canonicalKey(item)
		} else {
			val, _ := lookupPath(item, cfg.KeyPath)
			key = stringify(val)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

// applySort stable-sorts a list by key path. Missing keys sort as empty
// strings.
func applySort(cfg StepConfig, data any) (any, error) {
	list, ok := asList(data)
	if !ok {
		return nil, fmt.Errorf("sort expects a list: %w", errShape)
	}

	out := make([]any, len(list))
	copy(out, list)
	desc := strings.EqualFold(cfg.Direction, "desc")

	sort.SliceStable(out, func(i, j int) bool {
		vi, _ := lookupPath(out[i], cfg.KeyPath)
		vj, _ := lookupPath(out[j], cfg.KeyPath)
		if desc {
			return lessValue(vj, vi)
		}
		return lessValue(vi, vj)
	})
	return out, nil
}

// lessValue orders numerically when both sides are numbers, by string
// form otherwise.
func lessValue(a, b any) bool {
	if na, aok := toNumber(a); aok {
		if nb, bok := toNumber(b); bok {
			return na < nb
		}
	}
	return stringify(a) < stringify(b)
}

// applyLimit slices a list to [skip, skip+limit).
func applyLimit(cfg StepConfig, data any) (any, error) {
	list, ok := asList(data)
	if !ok {
		return nil, fmt.Errorf("limit expects a list: %w", errShape)
	}
	if cfg.Limit == nil {
		return nil, fmt.Errorf("limit value missing: %w", errNotConfigured)
	}
	limit := *cfg.Limit
	skip := 0
	if cfg.Skip != nil {
		skip = *cfg.Skip
	}
	if limit < 0 || skip < 0 {
		return nil, fmt.Errorf("limit=%d skip=%d: %w", limit, skip, errNegativeBound)
	}

	if skip >= len(list) {
		return []any{}, nil
	}
	end := skip + limit
	if end > len(list) {
		end = len(list)
	}
	out := make([]any, end-skip)
	copy(out, list[skip:end])
	return out, nil
}

// applyJoin joins list items against the secondary input by a shared key
// path. Matched right-side fields merge over the left record.
func applyJoin(cfg StepConfig, data, secondary any) (any, error) {
	if cfg.KeyPath == "" {
		return nil, errMissingKeyPath
	}
	list, ok := asList(data)
	if !ok {
		return nil, fmt.Errorf("join expects a list: %w", errShape)
	}
	right, ok := collectionItems(secondary)
	if !ok {
		return nil, fmt.Errorf("join needs a second collection: %w", errShape)
	}
	inner := strings.EqualFold(cfg.JoinType, "inner")

	// First match wins when the right side has duplicate keys.
	index := make(map[string]map[string]any, len(right))
	for _, item := range right {
		rec, ok := asRecord(item)
		if !ok {
			continue
		}
		val, found := lookupPath(rec, cfg.KeyPath)
		if !found {
			continue
		}
		key := stringify(val)
		if _, dup := index[key]; !dup {
			index[key] = rec
		}
	}

	out := make([]any, 0, len(list))
	for _, item := range list {
		rec, isRec := asRecord(item)
		var match map[string]any
		if isRec {
			if val, found := lookupPath(rec, cfg.KeyPath); found {
				match = index[stringify(val)]
			}
		}
		if match == nil {
			if !inner {
				out = append(out, item)
			}
			continue
		}

		merged, err := jsonx.Clone(rec)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&merged, match, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge joined record: %w", err)
		}
		out = append(out, merged)
	}
	return out, nil
}

// collectionItems extracts the item list from a raw list, an
// {elements: [...]} wrapper, or a map of lists.
func collectionItems(v any) ([]any, bool) {
	if list, ok := asList(v); ok {
		return list, true
	}
	rec, ok := asRecord(v)
	if !ok {
		return nil, false
	}
	if elems, ok := asList(rec["elements"]); ok {
		return elems, true
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []any
	for _, k := range keys {
		if sub, ok := asList(rec[k]); ok {
			out = append(out, sub...)
		}
	}
	if out != nil {
		return out, true
	}
	return nil, false
}
