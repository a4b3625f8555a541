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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	verbose    bool
	modelDir   string
	outputMode string
	exportDir  string
	outPath    string
	jsonOutput bool
	timeoutStr string
	debounce   string

	rootCmd = &cobra.Command{
		Use:   "flowrun",
		Short: "Execute and validate node graphs against IFC model documents",
		Long: `flowrun runs node graphs locally, with no API server in between.
Point it at a graph snapshot file and a directory of model documents,
and it executes the graph and prints per-node results.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
			setupOutput()
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [graph.json]",
		Short: "Execute a graph snapshot once and print the results",
		Args:  cobra.ExactArgs(1),
		Run:   runRunCommand, // Defined in cmd_run.go
	}

	validateCmd = &cobra.Command{
		Use:   "validate [graph.json]",
		Short: "Check a graph snapshot for structural problems and cycles",
		Args:  cobra.ExactArgs(1),
		Run:   runValidateCommand, // Defined in cmd_validate.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch [graph.json]",
		Short: "Re-execute a graph whenever the snapshot or a model document changes",
		Args:  cobra.ExactArgs(1),
		Run:   runWatchCommand, // Defined in cmd_watch.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&modelDir, "model-dir", "./models",
		"Directory holding IFC model documents")
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "",
		"Output style: full, minimal, or machine (default: auto-detect)")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&exportDir, "export-dir", "./exports",
		"Directory export nodes write into")
	runCmd.Flags().StringVarP(&outPath, "out", "o", "",
		"Write the full run report to this file as JSON")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false,
		"Print the run report as JSON instead of text")
	runCmd.Flags().StringVar(&timeoutStr, "timeout", "10m",
		"Abort the run after this duration (e.g. 30s, 5m)")

	rootCmd.AddCommand(validateCmd)

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&exportDir, "export-dir", "./exports",
		"Directory export nodes write into")
	watchCmd.Flags().StringVar(&timeoutStr, "timeout", "10m",
		"Abort each run after this duration")
	watchCmd.Flags().StringVar(&debounce, "debounce", "500ms",
		"Settle time before a burst of file changes triggers a re-run")
}
