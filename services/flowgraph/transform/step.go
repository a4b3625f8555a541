// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transform interprets ordered lists of declarative data steps.
//
// A step list stored in a node's properties is a small program: each step
// takes the running data value and produces the next one. Step failures
// never abort the pipeline; they degrade to warnings so an authoring UI
// can always render partial output.
package transform

import (
	"fmt"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
)

// StepType tags the operation a step performs.
type StepType string

// Supported step types.
const (
	StepFilter    StepType = "filter"
	StepMap       StepType = "map"
	StepPick      StepType = "pick"
	StepOmit      StepType = "omit"
	StepFlatten   StepType = "flatten"
	StepGroupBy   StepType = "groupBy"
	StepUnique    StepType = "unique"
	StepSort      StepType = "sort"
	StepLimit     StepType = "limit"
	StepToMapping StepType = "toMapping"
	StepJoin      StepType = "join"
	StepRename    StepType = "rename"
)

var knownStepTypes = map[StepType]struct{}{
	StepFilter: {}, StepMap: {}, StepPick: {}, StepOmit: {},
	StepFlatten: {}, StepGroupBy: {}, StepUnique: {}, StepSort: {},
	StepLimit: {}, StepToMapping: {}, StepJoin: {}, StepRename: {},
}

// Known reports whether t names a supported step.
func (t StepType) Known() bool {
	_, ok := knownStepTypes[t]
	return ok
}

// Condition is one filter clause evaluated against an item.
type Condition struct {
	Path     string `json:"path"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// FieldMapping describes one output field of a map step.
type FieldMapping struct {
	// Target is the output path. Empty falls back to the last segment
	// of Source.
	Target string `json:"target,omitempty"`

	// Source is the input path the value is read from.
	Source string `json:"source"`

	// Transform is applied to the resolved value: upper, lower, title,
	// trim, or number.
	Transform string `json:"transform,omitempty"`

	// Default substitutes for nil, missing, or empty-string values.
	Default any `json:"default,omitempty"`
}

// StepConfig is the union of per-step configuration fields. Each step
// reads only the fields it documents.
type StepConfig struct {
	// filter
	Conditions []Condition `json:"conditions,omitempty"`
	Logic      string      `json:"logic,omitempty"` // "and" (default) or "or"

	// map
	Mappings []FieldMapping `json:"mappings,omitempty"`

	// pick, omit
	Fields []string `json:"fields,omitempty"`

	// flatten
	Path string `json:"path,omitempty"`

	// groupBy, unique, sort, toMapping, join
	KeyPath string `json:"keyPath,omitempty"`

	// groupBy: field path -> aggregate op (count, sum, avg, min, max,
	// first, last)
	Aggregates map[string]string `json:"aggregates,omitempty"`

	// sort
	Direction string `json:"direction,omitempty"` // "asc" (default) or "desc"

	// limit
	Limit *int `json:"limit,omitempty"`
	Skip  *int `json:"skip,omitempty"`

	// toMapping
	ValuePath string `json:"valuePath,omitempty"`
	SkipEmpty bool   `json:"skipEmpty,omitempty"`
	Restrict  bool   `json:"restrict,omitempty"`

	// join
	JoinType string `json:"joinType,omitempty"` // "left" (default) or "inner"

	// rename: old path -> new path
	Renames map[string]string `json:"renames,omitempty"`
}

// Step is one tagged operation in a pipeline.
type Step struct {
	ID      string     `json:"id,omitempty"`
	Type    StepType   `json:"type"`
	Enabled *bool      `json:"enabled,omitempty"`
	Config  StepConfig `json:"config"`
}

// IsEnabled reports whether the step runs. An absent enabled flag means
// enabled.
func (s Step) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ParseSteps decodes a step list out of a node's loosely-typed
// properties value.
func ParseSteps(v any) ([]Step, error) {
	if v == nil {
		return nil, nil
	}
	var steps []Step
	if err := jsonx.Remap(v, &steps); err != nil {
		return nil, fmt.Errorf("parse transform steps: %w", err)
	}
	return steps, nil
}
