// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package processors

import (
	"context"
	"strings"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

// ScriptRunner executes user script code against a node input.
//
// The engine ships no interpreter. Deployments inject one (an external
// worker process, a sandboxed pool); without a runner the node reports
// an error result and the run continues.
type ScriptRunner interface {
	Run(ctx context.Context, code string, input any) (any, error)
}

// scriptProcessor delegates pythonNode code to the injected runner.
// Config: properties.code holds the script source.
type scriptProcessor struct {
	runner ScriptRunner
}

func (*scriptProcessor) Type() string { return "pythonNode" }

func (p *scriptProcessor) Process(ctx context.Context, node graph.Node, inputs engine.Inputs, _ engine.Context) (any, error) {
	if p.runner == nil {
		return errorResult("no script runner configured"), nil
	}
	code := node.Data.StringProperty("code", "")
	if strings.TrimSpace(code) == "" {
		return errorResult("no script code configured"), nil
	}

	out, err := p.runner.Run(ctx, code, inputs.Primary())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return errorResult("script failed: %v", err), nil
	}
	return out, nil
}
