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

// applyGroupBy buckets list items by key path into a record keyed by the
// stringified key.
//
// Each bucket carries the key under the key path's last segment, the
// bucket's items, and one <field>_<op> entry per configured aggregate.
func applyGroupBy(cfg StepConfig, data any) (any, error) {
	if cfg.KeyPath == "" {
		return nil, errMissingKeyPath
	}
	list, ok := asList(data)
	if !ok {
		return nil, fmt.Errorf("groupBy expects a list: %w", errShape)
	}

	keyField := lastSegment(cfg.KeyPath)
	buckets := make(map[string]any, 8)
	order := make([]string, 0, 8)

	for _, item := range list {
		keyVal, _ := lookupPath(item, cfg.KeyPath)
		key := stringify(keyVal)

		bucket, exists := buckets[key].(map[string]any)
		if !exists {
			bucket = map[string]any{
				keyField: keyVal,
				"items":  []any{},
			}
			buckets[key] = bucket
			order = append(order, key)
		}
		bucket["items"] = append(bucket["items"].([]any), item)
	}

	if len(cfg.Aggregates) > 0 {
		fields := make([]string, 0, len(cfg.Aggregates))
		for f := range cfg.Aggregates {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		for _, key := range order {
			bucket := buckets[key].(map[string]any)
			items := bucket["items"].([]any)
			for _, field := range fields {
				op := cfg.Aggregates[field]
				val, err := aggregate(op, field, items)
				if err != nil {
					return nil, err
				}
				bucket[lastSegment(field)+"_"+op] = val
			}
		}
	}
	return buckets, nil
}

// aggregate computes one op over a field across bucket items. Missing
// field values are skipped; sum/avg/min/max additionally skip
// non-numeric values.
func aggregate(op, field string, items []any) (any, error) {
	var (
		present []any
		numbers []float64
	)
	for _, item := range items {
		val, found := lookupPath(item, field)
		if !found || val == nil {
			continue
		}
		present = append(present, val)
		if n, ok := toNumber(val); ok {
			numbers = append(numbers, n)
		}
	}

	switch op {
	case "count":
		return len(present), nil
	case "sum":
		var sum float64
		for _, n := range numbers {
			sum += n
		}
		return sum, nil
	case "avg":
		if len(numbers) == 0 {
			return nil, nil
		}
		var sum float64
		for _, n := range numbers {
			sum += n
		}
		return sum / float64(len(numbers)), nil
	case "min":
		if len(numbers) == 0 {
			return nil, nil
		}
		min := numbers[0]
		for _, n := range numbers[1:] {
			if n < min {
				min = n
			}
		}
		return min, nil
	case "max":
		if len(numbers) == 0 {
			return nil, nil
		}
		max := numbers[0]
		for _, n := range numbers[1:] {
			if n > max {
				max = n
			}
		}
		return max, nil
	case "first":
		if len(present) == 0 {
			return nil, nil
		}
		return present[0], nil
	case "last":
		if len(present) == 0 {
			return nil, nil
		}
		return present[len(present)-1], nil
	default:
		return nil, fmt.Errorf("aggregate %q: %w", op, errUnknownOp)
	}
}
