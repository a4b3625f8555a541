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
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/ux"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/engine"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/model"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/processors"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/watcher"
)

// runWatchCommand executes the graph, then re-executes it whenever the
// snapshot file or a model document changes. Runs until interrupted.
func runWatchCommand(cmd *cobra.Command, args []string) {
	graphPath, err := filepath.Abs(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve path: %v\n", err)
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timeout %q: %v\n", timeoutStr, err)
		os.Exit(1)
	}
	settle, err := time.ParseDuration(debounce)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid debounce %q: %v\n", debounce, err)
		os.Exit(1)
	}

	models, err := model.NewFileService(modelDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open model directory: %v\n", err)
		os.Exit(1)
	}

	registry := engine.NewRegistry(slog.Default())
	if err := processors.RegisterAll(registry, processors.Deps{
		Models:    models,
		ExportDir: exportDir,
		Logger:    slog.Default(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register processors: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A buffered trigger channel coalesces change batches that arrive
	// while a run is in flight into a single follow-up run.
	trigger := make(chan struct{}, 1)
	nudge := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	graphDir := filepath.Dir(graphPath)
	graphRef := filepath.Base(graphPath)
	opts := &watcher.Options{Debounce: settle, Logger: slog.Default()}

	graphWatcher, err := watcher.New(graphDir, func(changes []watcher.Change) {
		for _, ch := range changes {
			if ch.Ref == graphRef {
				ux.Info(fmt.Sprintf("graph changed (%s)", ch.Op))
				nudge()
				return
			}
		}
	}, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to watch graph: %v\n", err)
		os.Exit(1)
	}
	if err := graphWatcher.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start graph watcher: %v\n", err)
		os.Exit(1)
	}
	defer graphWatcher.Stop()

	// Model edits invalidate the cache so the re-run reloads fresh
	// bytes. Skipped when the graph lives inside the model directory,
	// the graph watcher already covers it then.
	if abs, err := filepath.Abs(modelDir); err == nil && abs != graphDir {
		modelWatcher, err := watcher.New(modelDir, func(changes []watcher.Change) {
			for _, ch := range changes {
				models.Invalidate(ch.Ref)
			}
			ux.Info(fmt.Sprintf("model documents changed (%d)", len(changes)))
			nudge()
		}, opts)
		if err != nil {
			slog.Warn("model directory not watchable", "dir", modelDir, "error", err)
		} else if err := modelWatcher.Start(ctx); err != nil {
			slog.Warn("model watcher failed to start", "error", err)
		} else {
			defer modelWatcher.Stop()
		}
	}

	ux.Title("Watching " + graphPath)
	ux.Muted("Ctrl+C to stop")
	nudge()

	for {
		select {
		case <-ctx.Done():
			ux.Muted("stopped")
			return
		case <-trigger:
			watchRunOnce(ctx, registry, graphPath, timeout)
		}
	}
}

// watchRunOnce executes the graph once for watch mode. Failures are
// reported but do not end the watch loop.
func watchRunOnce(ctx context.Context, registry *engine.Registry, graphPath string, timeout time.Duration) {
	snap, err := loadSnapshot(graphPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load graph: %v\n", err)
		return
	}

	eng, err := engine.New(registry, engine.WithLogger(slog.Default()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create engine: %v\n", err)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	spin := ux.NewSpinner("executing " + filepath.Base(graphPath)).WithType(ux.SpinnerPulse)
	spin.Start()
	res, runErr := eng.Run(runCtx, snap)
	spin.Stop()
	if res == nil {
		fmt.Fprintf(os.Stderr, "Run rejected: %v\n", runErr)
		return
	}
	outputRunText(buildRunReport(res, runErr))
}
