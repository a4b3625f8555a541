// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSpinnerMachineMode(t *testing.T) {
	saveMode(t)
	SetMode(ModeMachine)

	s := NewSpinner("executing graph")
	out := captureStdout(func() {
		s.Start()
		s.Stop()
	})
	if out != "PROGRESS: executing graph\n" {
		t.Errorf("machine spinner output = %q", out)
	}
}

func TestSpinnerAnimates(t *testing.T) {
	saveMode(t)
	SetMode(ModeFull)

	s := NewSpinner("executing graph").WithType(SpinnerPulse)
	out := captureStdout(func() {
		s.Start()
		time.Sleep(200 * time.Millisecond)
		s.Stop()
	})
	if !strings.Contains(out, "executing graph") {
		t.Errorf("spinner output = %q, want the message rendered", out)
	}
}

func TestSpinnerStartIdempotent(t *testing.T) {
	saveMode(t)
	SetMode(ModeMachine)

	s := NewSpinner("once")
	out := captureStdout(func() {
		s.Start()
		s.Start()
		s.Stop()
	})
	if strings.Count(out, "PROGRESS:") != 1 {
		t.Errorf("double Start printed %q, want one PROGRESS line", out)
	}
}

func TestSpinnerStopWithoutStart(t *testing.T) {
	saveMode(t)
	SetMode(ModeFull)

	s := NewSpinner("never started")
	s.Stop()
}

func TestWithSpinnerPropagatesError(t *testing.T) {
	saveMode(t)
	SetMode(ModeMachine)

	wantErr := errors.New("boom")
	errOut := captureStderr(func() {
		captureStdout(func() {
			if err := WithSpinner("running", func() error { return wantErr }); !errors.Is(err, wantErr) {
				t.Errorf("WithSpinner error = %v, want %v", err, wantErr)
			}
		})
	})
	if !strings.Contains(errOut, "boom") {
		t.Errorf("stderr = %q, want the failure reported", errOut)
	}
}

func TestWithSpinnerSuccess(t *testing.T) {
	saveMode(t)
	SetMode(ModeMachine)

	out := captureStdout(func() {
		if err := WithSpinner("running", func() error { return nil }); err != nil {
			t.Errorf("WithSpinner error = %v, want nil", err)
		}
	})
	if !strings.Contains(out, "OK: running") {
		t.Errorf("output = %q, want success line", out)
	}
}

func TestProgressSpinnerCountsUp(t *testing.T) {
	saveMode(t)
	SetMode(ModeFull)

	p := NewProgressSpinner("resolving nodes", 3)
	p.Increment()
	p.Increment()

	p.mu.Lock()
	msg := p.message
	p.mu.Unlock()
	if msg != "resolving nodes [2/3]" {
		t.Errorf("message = %q, want counter suffix", msg)
	}

	p.SetProgress(3)
	p.mu.Lock()
	msg = p.message
	p.mu.Unlock()
	if msg != "resolving nodes [3/3]" {
		t.Errorf("message = %q after SetProgress", msg)
	}
}
