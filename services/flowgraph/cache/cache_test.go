// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string](4)

	c.Set("a", "alpha")
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit for a")
	}
	if got != "alpha" {
		t.Errorf("Get(a) = %q, want alpha", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_UpdateExistingKey(t *testing.T) {
	c := New[int](2)
	c.Set("k", 1)
	c.Set("k", 2)

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	if v, _ := c.Get("k"); v != 2 {
		t.Errorf("Get(k) = %d, want 2", v)
	}
}

func TestCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	c := New[int](3)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch a so b becomes the oldest.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}

	c.Set("d", 4)

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	if evictions := c.Stats().Evictions; evictions != 1 {
		t.Errorf("evictions = %d, want 1", evictions)
	}
}

func TestCache_SetRefreshesRecency(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	// Re-setting a makes b the eviction candidate.
	c.Set("a", 10)
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted after a was refreshed by Set")
	}
	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Errorf("Get(a) = %d/%v, want 10/true", v, ok)
	}
}

func TestCache_CapacityNeverExceeded(t *testing.T) {
	c := New[int](5)
	for i := 0; i < 50; i++ {
		c.Set(string(rune('a'+i%26))+string(rune('0'+i/26)), i)
		if c.Len() > 5 {
			t.Fatalf("capacity exceeded: Len() = %d", c.Len())
		}
	}
}

func TestCache_Clear(t *testing.T) {
	c := New[int](4)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Clear should drop all entries")
	}

	// Cache remains usable after Clear.
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) after Clear = %d/%v", v, ok)
	}
}

func TestCache_DefaultCapacity(t *testing.T) {
	c := New[int](0)
	if c.options.Capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", c.options.Capacity, DefaultCapacity)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[int](4, WithTTL(time.Millisecond))
	c.Set("a", 1)

	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed, Len() = %d", c.Len())
	}
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string](4)
	calls := int32(0)

	load := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "loaded", nil
	}

	v, err := c.GetOrLoad(context.Background(), "k", load)
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if v != "loaded" {
		t.Errorf("GetOrLoad = %q", v)
	}

	// Second call hits the cache.
	if _, err := c.GetOrLoad(context.Background(), "k", load); err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("load called %d times, want 1", calls)
	}
}

func TestCache_GetOrLoad_Error(t *testing.T) {
	c := New[string](4)
	wantErr := errors.New("source unavailable")

	_, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected load error, got: %v", err)
	}
	if c.Len() != 0 {
		t.Error("failed load must not populate the cache")
	}
	if c.Stats().Errors != 1 {
		t.Errorf("errors = %d, want 1", c.Stats().Errors)
	}
}

func TestCache_GetOrLoad_Deduplicates(t *testing.T) {
	c := New[int](4)
	calls := int32(0)
	release := make(chan struct{})

	load := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "shared", load)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = v
		}(i)
	}

	// Give the workers time to pile onto the flight, then release it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("load ran %d times, want 1", got)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("worker %d got %d, want 42", i, v)
		}
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New[int](4)
	c.Set("a", 1)
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("invalidated entry still present")
	}
	// Invalidate on an unknown key is a no-op.
	c.Invalidate("missing")
}

func TestCache_Stats(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1)

	c.Get("a")
	c.Get("a")
	c.Get("nope")

	s := c.Stats()
	if s.Hits != 2 {
		t.Errorf("hits = %d, want 2", s.Hits)
	}
	if s.Misses != 1 {
		t.Errorf("misses = %d, want 1", s.Misses)
	}
	if s.Len != 1 {
		t.Errorf("len = %d, want 1", s.Len)
	}
	if s.Capacity != 2 {
		t.Errorf("capacity = %d, want 2", s.Capacity)
	}
}
