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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/ux"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

// runValidateCommand checks a snapshot for structural problems without
// executing anything. Exits 1 when the graph cannot run.
func runValidateCommand(cmd *cobra.Command, args []string) {
	snap, err := loadSnapshot(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load graph: %v\n", err)
		os.Exit(1)
	}

	if err := snap.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
		os.Exit(1)
	}

	order, err := graph.TopologicalOrder(snap.Nodes, snap.Edges)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
		os.Exit(1)
	}

	ux.Success(fmt.Sprintf("%d nodes, %d edges", len(snap.Nodes), len(snap.Edges)))
	ux.Info("execution order: " + strings.Join(order, " -> "))
}
