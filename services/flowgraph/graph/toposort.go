// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

// TopologicalOrder orders node ids so that for every edge source -> target
// the source precedes the target.
//
// Description:
//
//	Depth-first traversal with two marker sets. Visiting a node marks it
//	temporary, recurses into its outgoing neighbors, then marks it
//	permanent and prepends it to the result. Revisiting a temporarily
//	marked node means the graph has a directed cycle; that is fatal for
//	the run. Nodes without edges are included, their relative order fixed
//	by discovery order over the input slice.
//
// Inputs:
//
//	nodes - all nodes of the snapshot, in snapshot order.
//	edges - directed edges; endpoints must exist in nodes.
//
// Outputs:
//
//	Ordered node ids, or a *CycleError / *NodeNotFoundError.
func TopologicalOrder(nodes []Node, edges []Edge) ([]string, error) {
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}

	// Adjacency in edge order keeps traversal deterministic.
	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if _, ok := known[e.Source]; !ok {
			return nil, &NodeNotFoundError{NodeID: e.Source}
		}
		if _, ok := known[e.Target]; !ok {
			return nil, &NodeNotFoundError{NodeID: e.Target}
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	visited := make(map[string]bool, len(nodes))
	inStack := make(map[string]bool, len(nodes))
	path := make([]string, 0, len(nodes))
	order := make([]string, 0, len(nodes))

	var dfs func(id string) error
	dfs = func(id string) error {
		visited[id] = true
		inStack[id] = true
		path = append(path, id)

		for _, next := range adj[id] {
			if !visited[next] {
				if err := dfs(next); err != nil {
					return err
				}
			} else if inStack[next] {
				// Report the cycle from its entry point.
				start := 0
				for i, n := range path {
					if n == next {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), next)
				return NewCycleError(cycle)
			}
		}

		path = path[:len(path)-1]
		inStack[id] = false
		order = append(order, id)
		return nil
	}

	for _, n := range nodes {
		if !visited[n.ID] {
			if err := dfs(n.ID); err != nil {
				return nil, err
			}
		}
	}

	// Postorder appends; reversing yields the prepend semantics.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
