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

import (
	"errors"
	"testing"
)

func mkNodes(ids ...string) []Node {
	nodes := make([]Node, len(ids))
	for i, id := range ids {
		nodes[i] = Node{ID: id, Type: "watchNode"}
	}
	return nodes
}

func mkEdge(source, target string) Edge {
	return Edge{ID: source + "-" + target, Source: source, Target: target}
}

// indexOf fails the test when id is missing from order.
func indexOf(t *testing.T, order []string, id string) int {
	t.Helper()
	for i, v := range order {
		if v == id {
			return i
		}
	}
	t.Fatalf("node %q missing from order %v", id, order)
	return -1
}

func TestTopologicalOrder_Chain(t *testing.T) {
	order, err := TopologicalOrder(
		mkNodes("a", "b", "c"),
		[]Edge{mkEdge("a", "b"), mkEdge("b", "c")},
	)
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 ids, got %v", order)
	}
	if indexOf(t, order, "a") > indexOf(t, order, "b") {
		t.Errorf("a must precede b in %v", order)
	}
	if indexOf(t, order, "b") > indexOf(t, order, "c") {
		t.Errorf("b must precede c in %v", order)
	}
}

func TestTopologicalOrder_EdgeDirectionRespected(t *testing.T) {
	// Diamond: a -> b, a -> c, b -> d, c -> d.
	order, err := TopologicalOrder(
		mkNodes("d", "c", "b", "a"),
		[]Edge{mkEdge("a", "b"), mkEdge("a", "c"), mkEdge("b", "d"), mkEdge("c", "d")},
	)
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	ia := indexOf(t, order, "a")
	id := indexOf(t, order, "d")
	for _, mid := range []string{"b", "c"} {
		im := indexOf(t, order, mid)
		if ia > im {
			t.Errorf("a must precede %s in %v", mid, order)
		}
		if im > id {
			t.Errorf("%s must precede d in %v", mid, order)
		}
	}
}

func TestTopologicalOrder_DisconnectedNodesIncluded(t *testing.T) {
	order, err := TopologicalOrder(
		mkNodes("a", "b", "lonely"),
		[]Edge{mkEdge("a", "b")},
	)
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected all nodes in order, got %v", order)
	}
	indexOf(t, order, "lonely")
}

func TestTopologicalOrder_NoEdges(t *testing.T) {
	order, err := TopologicalOrder(mkNodes("x", "y", "z"), nil)
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 ids, got %v", order)
	}
}

func TestTopologicalOrder_Deterministic(t *testing.T) {
	nodes := mkNodes("n1", "n2", "n3", "n4")
	edges := []Edge{mkEdge("n1", "n3"), mkEdge("n2", "n3"), mkEdge("n3", "n4")}

	first, err := TopologicalOrder(nodes, edges)
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := TopologicalOrder(nodes, edges)
		if err != nil {
			t.Fatalf("TopologicalOrder: %v", err)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("order not deterministic: %v vs %v", first, again)
			}
		}
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	_, err := TopologicalOrder(
		mkNodes("a", "b", "c"),
		[]Edge{mkEdge("a", "b"), mkEdge("b", "c"), mkEdge("c", "a")},
	)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got: %v", err)
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(cycleErr.Path) < 2 {
		t.Errorf("cycle path too short: %v", cycleErr.Path)
	}
	if cycleErr.Path[0] != cycleErr.Path[len(cycleErr.Path)-1] {
		t.Errorf("cycle path should close on itself: %v", cycleErr.Path)
	}
}

func TestTopologicalOrder_SelfLoop(t *testing.T) {
	_, err := TopologicalOrder(mkNodes("a"), []Edge{mkEdge("a", "a")})
	if !errors.Is(err, ErrCycle) {
		t.Errorf("self loop should report ErrCycle, got: %v", err)
	}
}

func TestTopologicalOrder_DanglingEdge(t *testing.T) {
	_, err := TopologicalOrder(mkNodes("a"), []Edge{mkEdge("a", "ghost")})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got: %v", err)
	}

	var nf *NodeNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NodeNotFoundError, got %T", err)
	}
	if nf.NodeID != "ghost" {
		t.Errorf("expected ghost in error, got %q", nf.NodeID)
	}
}
