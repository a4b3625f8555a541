// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, dir string) (*Watcher, chan []Change) {
	t.Helper()

	batches := make(chan []Change, 8)
	w, err := New(dir, func(changes []Change) {
		batches <- changes
	}, &Options{Debounce: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(w.Stop)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return w, batches
}

func waitBatch(t *testing.T, batches chan []Change) []Change {
	t.Helper()
	select {
	case batch := <-batches:
		return batch
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a change batch")
		return nil
	}
}

func refs(batch []Change) map[string]bool {
	out := make(map[string]bool, len(batch))
	for _, c := range batch {
		out[c.Ref] = true
	}
	return out
}

func TestWatcher_CoalescesBurstIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	_, batches := startWatcher(t, dir)

	// Three rapid writes to two documents should debounce into a
	// single batch with one entry per ref.
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
	write("site.json", `{"v":1}`)
	write("site.json", `{"v":2}`)
	write("annex.json", `{"v":1}`)

	batch := waitBatch(t, batches)

	got := refs(batch)
	if !got["site.json"] || !got["annex.json"] {
		t.Errorf("batch refs = %v, want site.json and annex.json", got)
	}
	if len(batch) != 2 {
		t.Errorf("len(batch) = %d, want 2 (deduplicated)", len(batch))
	}

	select {
	case extra := <-batches:
		t.Errorf("unexpected second batch: %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresNonDocuments(t *testing.T) {
	dir := t.TempDir()
	_, batches := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, ".model.json.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "real.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	batch := waitBatch(t, batches)
	got := refs(batch)
	if len(got) != 1 || !got["real.json"] {
		t.Errorf("batch refs = %v, want only real.json", got)
	}
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	_, batches := startWatcher(t, dir)

	sub := filepath.Join(dir, "projects")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir error = %v", err)
	}

	// Give the event loop time to register the new directory.
	time.Sleep(300 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "tower.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	batch := waitBatch(t, batches)
	if got := refs(batch); !got["projects/tower.json"] {
		t.Errorf("batch refs = %v, want projects/tower.json", got)
	}
}

func TestWatcher_ReportsRemovals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	_, batches := startWatcher(t, dir)

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove error = %v", err)
	}

	batch := waitBatch(t, batches)
	found := false
	for _, c := range batch {
		if c.Ref == "doomed.json" && c.Op == OpRemove {
			found = true
		}
	}
	if !found {
		t.Errorf("batch = %v, want doomed.json with OpRemove", batch)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, _ := startWatcher(t, t.TempDir())
	w.Stop()
	w.Stop()
}

func TestDedupe(t *testing.T) {
	now := time.Now()
	in := []Change{
		{Ref: "a.json", Op: OpCreate, Time: now},
		{Ref: "b.json", Op: OpWrite, Time: now},
		{Ref: "a.json", Op: OpWrite, Time: now.Add(time.Millisecond)},
	}

	out := dedupe(in)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Ref != "a.json" || out[0].Op != OpWrite {
		t.Errorf("out[0] = %+v, want a.json with OpWrite", out[0])
	}
	if out[1].Ref != "b.json" {
		t.Errorf("out[1] = %+v, want b.json", out[1])
	}
}

func TestOpString(t *testing.T) {
	cases := map[Op]string{
		OpCreate: "create",
		OpWrite:  "write",
		OpRemove: "remove",
		OpRename: "rename",
		Op(99):   "unknown",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("Op(%d).String() = %q, want %q", int(op), got, want)
		}
	}
}
