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
	"testing"
)

func el(id string, area float64) map[string]any {
	return map[string]any{"id": id, "area": area}
}

func wall(id string, typ string) map[string]any {
	return map[string]any{"id": id, "type": typ}
}

func intPtr(n int) *int { return &n }

func TestApplyFilter_AndLogic(t *testing.T) {
	cfg := StepConfig{
		Conditions: []Condition{
			{Path: "area", Operator: "gt", Value: 10.0},
			{Path: "id", Operator: "startsWith", Value: "w"},
		},
	}
	data := []any{el("w1", 20), el("w2", 5), el("d1", 30)}

	out, err := applyFilter(cfg, data)
	if err != nil {
		t.Fatalf("applyFilter: %v", err)
	}
	list := out.([]any)
	if len(list) != 1 {
		t.Fatalf("expected 1 item, got %d", len(list))
	}
	if got := list[0].(map[string]any)["id"]; got != "w1" {
		t.Errorf("kept wrong item: %v", got)
	}
}

func TestApplyFilter_OrLogic(t *testing.T) {
	cfg := StepConfig{
		Logic: "or",
		Conditions: []Condition{
			{Path: "area", Operator: "gt", Value: 25.0},
			{Path: "id", Operator: "equals", Value: "w2"},
		},
	}
	data := []any{el("w1", 20), el("w2", 5), el("d1", 30)}

	out, err := applyFilter(cfg, data)
	if err != nil {
		t.Fatalf("applyFilter: %v", err)
	}
	if got := len(out.([]any)); got != 2 {
		t.Errorf("expected 2 items, got %d", got)
	}
}

func TestApplyFilter_NoConditionsPassesThrough(t *testing.T) {
	data := []any{el("a", 1)}
	out, err := applyFilter(StepConfig{}, data)
	if err != nil {
		t.Fatalf("applyFilter: %v", err)
	}
	if len(out.([]any)) != 1 {
		t.Errorf("pass-through lost items")
	}
}

func TestApplyFilter_NonListErrors(t *testing.T) {
	_, err := applyFilter(StepConfig{}, map[string]any{"a": 1})
	if !errors.Is(err, errShape) {
		t.Errorf("expected shape error, got %v", err)
	}
}

func TestEvalCondition(t *testing.T) {
	item := map[string]any{
		"name": "External Wall",
		"area": 12.5,
		"tags": []any{"fire", "load-bearing"},
		"nested": map[string]any{
			"level": "L2",
		},
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"exists hit", Condition{Path: "name", Operator: "exists"}, true},
		{"exists miss", Condition{Path: "missing", Operator: "exists"}, false},
		{"notExists", Condition{Path: "missing", Operator: "notExists"}, true},
		{"equals string", Condition{Path: "name", Operator: "equals", Value: "External Wall"}, true},
		{"equals numeric coercion", Condition{Path: "area", Operator: "equals", Value: "12.5"}, true},
		{"notEquals", Condition{Path: "name", Operator: "notEquals", Value: "Slab"}, true},
		{"notEquals missing path", Condition{Path: "missing", Operator: "notEquals", Value: "x"}, true},
		{"contains substring", Condition{Path: "name", Operator: "contains", Value: "Wall"}, true},
		{"contains list member", Condition{Path: "tags", Operator: "contains", Value: "fire"}, true},
		{"startsWith", Condition{Path: "name", Operator: "startsWith", Value: "Ext"}, true},
		{"endsWith", Condition{Path: "name", Operator: "endsWith", Value: "Wall"}, true},
		{"in list", Condition{Path: "nested.level", Operator: "in", Value: []any{"L1", "L2"}}, true},
		{"in comma string", Condition{Path: "nested.level", Operator: "in", Value: "L1, L2"}, true},
		{"notIn", Condition{Path: "nested.level", Operator: "notIn", Value: []any{"L1"}}, true},
		{"gt", Condition{Path: "area", Operator: "gt", Value: 10.0}, true},
		{"gte equal", Condition{Path: "area", Operator: "gte", Value: 12.5}, true},
		{"lt", Condition{Path: "area", Operator: "lt", Value: 10.0}, false},
		{"lte", Condition{Path: "area", Operator: "lte", Value: 12.5}, true},
		{"gt missing path", Condition{Path: "missing", Operator: "gt", Value: 1.0}, false},
		{"gt string lexicographic", Condition{Path: "name", Operator: "gt", Value: "A"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evalCondition(item, tc.cond)
			if err != nil {
				t.Fatalf("evalCondition: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalCondition_UnknownOperator(t *testing.T) {
	_, err := evalCondition(map[string]any{}, Condition{Path: "x", Operator: "matches"})
	if !errors.Is(err, errUnknownOp) {
		t.Errorf("expected unknown operator error, got %v", err)
	}
}

func TestApplyMap(t *testing.T) {
	cfg := StepConfig{
		Mappings: []FieldMapping{
			{Source: "name", Transform: "upper"},
			{Target: "level", Source: "nested.level"},
			{Target: "kind", Source: "missing", Default: "unknown"},
			{Target: "dropped", Source: "alsoMissing"},
		},
	}
	data := []any{
		map[string]any{"name": "wall", "nested": map[string]any{"level": "L1"}},
	}

	out, err := applyMap(cfg, data)
	if err != nil {
		t.Fatalf("applyMap: %v", err)
	}
	rec := out.([]any)[0].(map[string]any)

	if rec["name"] != "WALL" {
		t.Errorf("transform not applied: %v", rec["name"])
	}
	if rec["level"] != "L1" {
		t.Errorf("nested source not resolved: %v", rec["level"])
	}
	if rec["kind"] != "unknown" {
		t.Errorf("default not substituted: %v", rec["kind"])
	}
	if _, ok := rec["dropped"]; ok {
		t.Errorf("missing source without default should omit the field")
	}
	if len(rec) != 3 {
		t.Errorf("mapped record has unexpected fields: %v", rec)
	}
}

func TestApplyMap_NoMappingsErrors(t *testing.T) {
	_, err := applyMap(StepConfig{}, []any{})
	if !errors.Is(err, errNotConfigured) {
		t.Errorf("expected not-configured error, got %v", err)
	}
}

func TestApplyValueTransform(t *testing.T) {
	tests := []struct {
		name      string
		transform string
		val       any
		want      any
	}{
		{"upper", "upper", "wall", "WALL"},
		{"lower", "lower", "WALL", "wall"},
		{"trim", "trim", "  x  ", "x"},
		{"title", "title", "external wall", "External Wall"},
		{"number", "number", "12.5", 12.5},
		{"number non-numeric", "number", "wall", "wall"},
		{"unknown name", "reverse", "wall", "wall"},
		{"string transform on non-string", "upper", 5.0, 5.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := applyValueTransform(tc.transform, tc.val); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApplyPick(t *testing.T) {
	cfg := StepConfig{Fields: []string{"id", "nested.level"}}
	data := []any{
		map[string]any{
			"id":     "w1",
			"area":   20.0,
			"nested": map[string]any{"level": "L1", "zone": "A"},
		},
	}

	out, err := applyPick(cfg, data)
	if err != nil {
		t.Fatalf("applyPick: %v", err)
	}
	rec := out.([]any)[0].(map[string]any)
	if rec["id"] != "w1" {
		t.Errorf("picked field missing: %v", rec)
	}
	if _, ok := rec["area"]; ok {
		t.Errorf("unpicked field kept: %v", rec)
	}
	nested := rec["nested"].(map[string]any)
	if nested["level"] != "L1" {
		t.Errorf("nested pick lost value: %v", nested)
	}
	if _, ok := nested["zone"]; ok {
		t.Errorf("nested pick kept sibling: %v", nested)
	}
}

func TestApplyOmit(t *testing.T) {
	cfg := StepConfig{Fields: []string{"area", "nested.zone"}}
	src := map[string]any{
		"id":     "w1",
		"area":   20.0,
		"nested": map[string]any{"level": "L1", "zone": "A"},
	}

	out, err := applyOmit(cfg, []any{src})
	if err != nil {
		t.Fatalf("applyOmit: %v", err)
	}
	rec := out.([]any)[0].(map[string]any)
	if _, ok := rec["area"]; ok {
		t.Errorf("omitted field kept: %v", rec)
	}
	if _, ok := rec["nested"].(map[string]any)["zone"]; ok {
		t.Errorf("nested omit kept field: %v", rec)
	}

	// The input record must stay untouched.
	if _, ok := src["area"]; !ok {
		t.Errorf("omit mutated its input")
	}
}

func TestApplyRename(t *testing.T) {
	cfg := StepConfig{Renames: map[string]string{"name": "label", "nested.level": "storey"}}
	data := []any{
		map[string]any{"name": "wall", "nested": map[string]any{"level": "L1"}},
	}

	out, err := applyRename(cfg, data)
	if err != nil {
		t.Fatalf("applyRename: %v", err)
	}
	rec := out.([]any)[0].(map[string]any)
	if rec["label"] != "wall" {
		t.Errorf("rename lost value: %v", rec)
	}
	if rec["storey"] != "L1" {
		t.Errorf("nested rename lost value: %v", rec)
	}
	if _, ok := rec["name"]; ok {
		t.Errorf("old field kept after rename: %v", rec)
	}
}

func TestPerRecord_NonRecordItemsPassThrough(t *testing.T) {
	out, err := applyPick(StepConfig{Fields: []string{"id"}}, []any{"scalar", el("a", 1)})
	if err != nil {
		t.Fatalf("applyPick: %v", err)
	}
	list := out.([]any)
	if list[0] != "scalar" {
		t.Errorf("scalar item changed: %v", list[0])
	}
}

func TestApplyFlatten_TopLevel(t *testing.T) {
	data := []any{
		[]any{el("a", 1), el("b", 2)},
		el("c", 3),
	}
	out, err := applyFlatten(StepConfig{}, data)
	if err != nil {
		t.Fatalf("applyFlatten: %v", err)
	}
	if got := len(out.([]any)); got != 3 {
		t.Errorf("expected 3 items, got %d", got)
	}
}

func TestApplyFlatten_Path(t *testing.T) {
	data := []any{
		map[string]any{"id": "s1", "elements": []any{el("a", 1), el("b", 2)}},
		map[string]any{"id": "s2", "elements": []any{el("c", 3)}},
		map[string]any{"id": "s3"},
	}
	out, err := applyFlatten(StepConfig{Path: "elements"}, data)
	if err != nil {
		t.Fatalf("applyFlatten: %v", err)
	}
	list := out.([]any)
	if len(list) != 3 {
		t.Fatalf("expected 3 flattened items, got %d", len(list))
	}
	if list[2].(map[string]any)["id"] != "c" {
		t.Errorf("flatten order wrong: %v", list)
	}
}

func TestApplyUnique(t *testing.T) {
	data := []any{wall("a", "Wall"), wall("b", "Wall"), wall("c", "Door")}

	out, err := applyUnique(StepConfig{KeyPath: "type"}, data)
	if err != nil {
		t.Fatalf("applyUnique: %v", err)
	}
	list := out.([]any)
	if len(list) != 2 {
		t.Fatalf("expected 2 items, got %d", len(list))
	}
	if list[0].(map[string]any)["id"] != "a" {
		t.Errorf("unique should keep the first occurrence: %v", list)
	}
}

func TestApplyUnique_WholeItem(t *testing.T) {
	data := []any{"a", "b", "a", 1.0, 1.0}
	out, err := applyUnique(StepConfig{}, data)
	if err != nil {
		t.Fatalf("applyUnique: %v", err)
	}
	if got := len(out.([]any)); got != 3 {
		t.Errorf("expected 3 items, got %d", got)
	}
}

func TestApplySort(t *testing.T) {
	data := []any{el("b", 15), el("a", 5), el("c", 30)}

	out, err := applySort(StepConfig{KeyPath: "area"}, data)
	if err != nil {
		t.Fatalf("applySort: %v", err)
	}
	list := out.([]any)
	got := []string{
		list[0].(map[string]any)["id"].(string),
		list[1].(map[string]any)["id"].(string),
		list[2].(map[string]any)["id"].(string),
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("ascending numeric sort wrong: %v", got)
	}

	// Input order must be preserved.
	if data[0].(map[string]any)["id"] != "b" {
		t.Errorf("sort mutated its input")
	}
}

func TestApplySort_Descending(t *testing.T) {
	data := []any{el("a", 5), el("b", 15)}
	out, err := applySort(StepConfig{KeyPath: "area", Direction: "desc"}, data)
	if err != nil {
		t.Fatalf("applySort: %v", err)
	}
	if out.([]any)[0].(map[string]any)["id"] != "b" {
		t.Errorf("descending sort wrong: %v", out)
	}
}

func TestApplySort_MissingKeysFirst(t *testing.T) {
	data := []any{el("a", 5), map[string]any{"id": "x"}}
	out, err := applySort(StepConfig{KeyPath: "area"}, data)
	if err != nil {
		t.Fatalf("applySort: %v", err)
	}
	if out.([]any)[0].(map[string]any)["id"] != "x" {
		t.Errorf("missing key should sort as empty string: %v", out)
	}
}

func TestApplyLimit(t *testing.T) {
	data := []any{"a", "b", "c", "d"}

	tests := []struct {
		name  string
		limit int
		skip  *int
		want  []any
	}{
		{"plain", 2, nil, []any{"a", "b"}},
		{"with skip", 2, intPtr(1), []any{"b", "c"}},
		{"limit past end", 10, nil, []any{"a", "b", "c", "d"}},
		{"skip past end", 2, intPtr(9), []any{}},
		{"zero", 0, nil, []any{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := applyLimit(StepConfig{Limit: intPtr(tc.limit), Skip: tc.skip}, data)
			if err != nil {
				t.Fatalf("applyLimit: %v", err)
			}
			list := out.([]any)
			if len(list) != len(tc.want) {
				t.Fatalf("got %v, want %v", list, tc.want)
			}
			for i := range tc.want {
				if list[i] != tc.want[i] {
					t.Errorf("got %v, want %v", list, tc.want)
				}
			}
		})
	}
}

func TestApplyLimit_NegativeRejected(t *testing.T) {
	_, err := applyLimit(StepConfig{Limit: intPtr(-1)}, []any{"a"})
	if !errors.Is(err, errNegativeBound) {
		t.Errorf("expected negative bound error, got %v", err)
	}
	_, err = applyLimit(StepConfig{Limit: intPtr(1), Skip: intPtr(-2)}, []any{"a"})
	if !errors.Is(err, errNegativeBound) {
		t.Errorf("expected negative bound error, got %v", err)
	}
}

func TestApplyLimit_MissingLimitRejected(t *testing.T) {
	_, err := applyLimit(StepConfig{}, []any{"a"})
	if !errors.Is(err, errNotConfigured) {
		t.Errorf("expected not-configured error, got %v", err)
	}
}

func TestApplyJoin_Left(t *testing.T) {
	left := []any{
		map[string]any{"id": "a", "area": 5.0},
		map[string]any{"id": "b", "area": 15.0},
	}
	right := []any{
		map[string]any{"id": "a", "level": "L1", "area": 99.0},
	}

	out, err := applyJoin(StepConfig{KeyPath: "id"}, left, right)
	if err != nil {
		t.Fatalf("applyJoin: %v", err)
	}
	list := out.([]any)
	if len(list) != 2 {
		t.Fatalf("left join must keep unmatched items, got %d", len(list))
	}

	a := list[0].(map[string]any)
	if a["level"] != "L1" {
		t.Errorf("matched fields not merged: %v", a)
	}
	if a["area"] != 99.0 {
		t.Errorf("overlapping field should take the secondary value: %v", a["area"])
	}
	b := list[1].(map[string]any)
	if _, ok := b["level"]; ok {
		t.Errorf("unmatched item gained fields: %v", b)
	}

	// Source records stay untouched.
	if left[0].(map[string]any)["area"] != 5.0 {
		t.Errorf("join mutated its input")
	}
}

func TestApplyJoin_Inner(t *testing.T) {
	left := []any{el("a", 5), el("b", 15)}
	right := []any{map[string]any{"id": "b", "level": "L2"}}

	out, err := applyJoin(StepConfig{KeyPath: "id", JoinType: "inner"}, left, right)
	if err != nil {
		t.Fatalf("applyJoin: %v", err)
	}
	list := out.([]any)
	if len(list) != 1 {
		t.Fatalf("inner join must drop unmatched items, got %d", len(list))
	}
	if list[0].(map[string]any)["id"] != "b" {
		t.Errorf("wrong item survived: %v", list)
	}
}

func TestApplyJoin_ElementsWrapper(t *testing.T) {
	left := []any{el("a", 5)}
	right := map[string]any{
		"elements": []any{map[string]any{"id": "a", "level": "L1"}},
	}

	out, err := applyJoin(StepConfig{KeyPath: "id"}, left, right)
	if err != nil {
		t.Fatalf("applyJoin: %v", err)
	}
	if out.([]any)[0].(map[string]any)["level"] != "L1" {
		t.Errorf("wrapper collection not joined: %v", out)
	}
}

func TestApplyJoin_MissingKeyPath(t *testing.T) {
	_, err := applyJoin(StepConfig{}, []any{}, []any{})
	if !errors.Is(err, errMissingKeyPath) {
		t.Errorf("expected missing keyPath error, got %v", err)
	}
}
