// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transform interprets declarative step pipelines over element
// collections.
//
// Description:
//
//	A pipeline is an ordered list of steps (filter, map, pick, omit,
//	flatten, groupBy, unique, sort, limit, toMapping, join, rename).
//	Steps run sequentially over a running value seeded from the primary
//	input. A failing step is skipped with a warning; it never aborts
//	the pipeline or the surrounding run.
package transform

import (
	"fmt"
)

// Result is the outcome of one pipeline execution.
type Result struct {
	// Data is the running value after the last step.
	Data any `json:"data"`
	// Metadata summarizes the execution for downstream display.
	Metadata Metadata `json:"metadata"`
}

// Metadata carries the execution summary attached to every result.
type Metadata struct {
	InputCount  int      `json:"inputCount"`
	OutputCount int      `json:"outputCount"`
	Warnings    []string `json:"warnings"`
}

// Execute runs the pipeline over the primary input.
//
// Description:
//
//	Disabled steps are skipped silently. A step that errors leaves the
//	running value untouched and records a warning identifying the step
//	by 1-based position and type. The secondary input only participates
//	in join steps and in restricted toMapping steps, where its id keys
//	bound the produced mapping.
//
// Inputs:
//
//	steps     - ordered step list, already parsed from node properties.
//	input     - primary upstream value; the initial running value.
//	secondary - optional second upstream value, may be nil.
//
// Outputs:
//
//	*Result - final data plus input/output counts and warnings. The
//	          warnings slice is never nil.
func Execute(steps []Step, input, secondary any) *Result {
	res := &Result{
		Data: input,
		Metadata: Metadata{
			InputCount: countItems(input),
			Warnings:   []string{},
		},
	}

	// The restriction set is shared across restricted toMapping steps
	// and only built when one runs.
	var restrictKeys map[string]struct{}

	for i, step := range steps {
		if !step.IsEnabled() {
			continue
		}

		var (
			next any
			err  error
		)
		switch step.Type {
		case StepFilter:
			next, err = applyFilter(step.Config, res.Data)
		case StepMap:
			next, err = applyMap(step.Config, res.Data)
		case StepPick:
			next, err = applyPick(step.Config, res.Data)
		case StepOmit:
			next, err = applyOmit(step.Config, res.Data)
		case StepFlatten:
			next, err = applyFlatten(step.Config, res.Data)
		case StepGroupBy:
			next, err = applyGroupBy(step.Config, res.Data)
		case StepUnique:
			next, err = applyUnique(step.Config, res.Data)
		case StepSort:
			next, err = applySort(step.Config, res.Data)
		case StepLimit:
			next, err = applyLimit(step.Config, res.Data)
		case StepToMapping:
			if step.Config.Restrict && restrictKeys == nil && secondary != nil {
				restrictKeys = ExtractIDKeys(secondary)
			}
			next, err = applyToMapping(step.Config, res.Data, restrictKeys)
		case StepJoin:
			next, err = applyJoin(step.Config, res.Data, secondary)
		case StepRename:
			next, err = applyRename(step.Config, res.Data)
		default:
			err = fmt.Errorf("%q: %w", step.Type, errUnknownStep)
		}

		if err != nil {
			res.Metadata.Warnings = append(res.Metadata.Warnings,
				fmt.Sprintf("step %d (%s): %v", i+1, step.Type, err))
			continue
		}
		res.Data = next
	}

	res.Metadata.OutputCount = countItems(res.Data)
	return res
}

// countItems sizes a value for metadata counts: list length, mapping
// count for toMapping results, element count for wrapped collections,
// key count for other objects, one for any other non-nil value.
func countItems(v any) int {
	switch in := v.(type) {
	case nil:
		return 0
	case []any:
		return len(in)
	case map[string]any:
		if mappings, ok := asRecord(in["mappings"]); ok {
			if _, hasMeta := asRecord(in["metadata"]); hasMeta {
				return len(mappings)
			}
		}
		if elems, ok := asList(in["elements"]); ok {
			return len(elems)
		}
		return len(in)
	default:
		return 1
	}
}
