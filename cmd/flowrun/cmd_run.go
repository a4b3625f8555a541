// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/jsonx"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/ux"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/model"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/processors"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runRunCommand executes a graph snapshot once and reports the outcome.
//
// Exits 1 when the snapshot cannot be loaded, the run fails, or the
// run is aborted by the timeout.
func runRunCommand(cmd *cobra.Command, args []string) {
	snap, err := loadSnapshot(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load graph: %v\n", err)
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timeout %q: %v\n", timeoutStr, err)
		os.Exit(1)
	}

	eng, err := newLocalEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up engine: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// The spinner stays off in --json mode so stdout carries nothing
	// but the report.
	var spin *ux.Spinner
	if !jsonOutput {
		spin = ux.NewSpinner("executing " + filepath.Base(args[0]))
		spin.Start()
	}
	res, err := eng.Run(ctx, snap)
	if spin != nil {
		spin.Stop()
	}
	if res == nil {
		fmt.Fprintf(os.Stderr, "Run rejected: %v\n", err)
		os.Exit(1)
	}

	report := buildRunReport(res, err)

	if outPath != "" {
		if err := writeReport(outPath, report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if jsonOutput {
		outputRunJSON(report)
	} else {
		outputRunText(report)
	}

	if res.Status != engine.StatusCompleted {
		os.Exit(1)
	}
}

// =============================================================================
// ENGINE SETUP
// =============================================================================

// newLocalEngine builds a single-use engine backed by the model and
// export directories from the command flags.
func newLocalEngine() (*engine.Engine, error) {
	models, err := model.NewFileService(modelDir)
	if err != nil {
		return nil, fmt.Errorf("opening model directory: %w", err)
	}

	registry := engine.NewRegistry(slog.Default())
	if err := processors.RegisterAll(registry, processors.Deps{
		Models:    models,
		ExportDir: exportDir,
		Logger:    slog.Default(),
	}); err != nil {
		return nil, fmt.Errorf("registering processors: %w", err)
	}

	return engine.New(registry, engine.WithLogger(slog.Default()))
}

func loadSnapshot(path string) (*graph.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return graph.ParseSnapshot(data)
}

// =============================================================================
// REPORTING
// =============================================================================

// runReport is the flattened run outcome for output and the --out file.
type runReport struct {
	RunID         string           `json:"runId"`
	Status        string           `json:"status"`
	NodeCount     int              `json:"nodeCount"`
	NodesExecuted int              `json:"nodesExecuted"`
	Warnings      int              `json:"warnings"`
	FailedNode    string           `json:"failedNode,omitempty"`
	Error         string           `json:"error,omitempty"`
	DurationMs    int64            `json:"durationMs"`
	NodeTimingsMs map[string]int64 `json:"nodeTimingsMs"`
	Outputs       map[string]any   `json:"outputs"`
}

func buildRunReport(res *engine.Result, runErr error) runReport {
	timings := make(map[string]int64, len(res.NodeDurations))
	for id, d := range res.NodeDurations {
		timings[id] = d.Milliseconds()
	}

	warnings := 0
	for _, out := range res.Outputs {
		if m, ok := out.(map[string]any); ok {
			if _, bad := m["error"]; bad {
				warnings++
			}
		}
	}

	report := runReport{
		RunID:         res.RunID,
		Status:        res.Status.String(),
		NodeCount:     len(res.Nodes),
		NodesExecuted: res.NodesExecuted,
		Warnings:      warnings,
		FailedNode:    res.FailedNode,
		DurationMs:    res.Duration().Milliseconds(),
		NodeTimingsMs: timings,
		Outputs:       res.Outputs,
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	return report
}

func writeReport(path string, report runReport) error {
	data, err := jsonx.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func outputRunJSON(report runReport) {
	data, err := jsonx.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func outputRunText(report runReport) {
	headline := fmt.Sprintf("Run %s %s in %dms", report.RunID, report.Status, report.DurationMs)
	switch report.Status {
	case "completed":
		ux.Success(headline)
	case "aborted":
		ux.Warning(headline)
	default:
		ux.Error(headline)
	}
	if report.FailedNode != "" {
		ux.Error(fmt.Sprintf("failed at %s: %s", report.FailedNode, report.Error))
	} else if report.Error != "" {
		ux.Error(report.Error)
	}

	ids := make([]string, 0, len(report.NodeTimingsMs))
	for id := range report.NodeTimingsMs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ux.NodeStatus(id, nodeIcon(report, id), fmt.Sprintf("%dms", report.NodeTimingsMs[id]))
	}
	ux.RunSummary(report.NodesExecuted, report.Warnings, report.NodeCount)

	if outPath != "" {
		ux.Muted("report written to " + outPath)
	}
}

// nodeIcon classifies a node line: the failing node, a node that
// produced an error-shaped result, or a clean one.
func nodeIcon(report runReport, nodeID string) ux.Icon {
	if nodeID == report.FailedNode {
		return ux.IconError
	}
	if m, ok := report.Outputs[nodeID].(map[string]any); ok {
		if _, bad := m["error"]; bad {
			return ux.IconWarning
		}
	}
	return ux.IconSuccess
}
