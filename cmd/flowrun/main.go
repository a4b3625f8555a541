// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command flowrun executes node graphs from the terminal, without the
// API server.
//
// Usage:
//
//	flowrun run graph.json
//	flowrun run graph.json --model-dir ./models -o results.json
//	flowrun validate graph.json
//	flowrun watch graph.json
package main

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/ux"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging picks the slog handler for the process. Terminals get
// readable text; pipes and CI logs get JSON lines. Runs from the root
// command's PersistentPreRun so flag values are bound.
func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// setupOutput applies the --output flag, falling back to environment
// and terminal detection.
func setupOutput() {
	if outputMode != "" {
		ux.SetMode(ux.ParseOutputMode(outputMode))
		return
	}
	ux.InitMode()
}
