// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Auth == nil || opts.Authz == nil || opts.Auditor == nil || opts.Results == nil {
		t.Fatalf("DefaultOptions() = %+v, want every field populated", opts)
	}
}

func TestNormalize(t *testing.T) {
	auditor := &recordingAuditor{}
	opts := ServiceOptions{Auditor: auditor}.Normalize()

	if opts.Auditor != RunAuditor(auditor) {
		t.Error("Normalize() replaced a provided field")
	}
	if opts.Auth == nil || opts.Authz == nil || opts.Results == nil {
		t.Errorf("Normalize() = %+v, want nil fields defaulted", opts)
	}
}

func TestFluentOptions(t *testing.T) {
	auditor := &recordingAuditor{}
	base := DefaultOptions()
	opts := base.WithAuditor(auditor)

	if opts.Auditor != RunAuditor(auditor) {
		t.Error("WithAuditor() did not set the auditor")
	}
	if _, ok := base.Auditor.(*NopRunAuditor); !ok {
		t.Error("WithAuditor() mutated the receiver")
	}
}

func TestNopAuthProvider(t *testing.T) {
	p := &NopAuthProvider{}

	info, err := p.Validate(context.Background(), "any-token-at-all")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info.Subject != LocalSubject {
		t.Errorf("Subject = %q, want %q", info.Subject, LocalSubject)
	}
	if !info.HasRole("admin") {
		t.Error("HasRole(admin) = false, want true")
	}
	if info.HasRole("auditor") {
		t.Error("HasRole(auditor) = true, want false")
	}
}

func TestNopAuthzProvider(t *testing.T) {
	p := &NopAuthzProvider{}

	err := p.Authorize(context.Background(), AuthzRequest{
		Subject: "anyone",
		Action:  "run.submit",
	})
	if err != nil {
		t.Errorf("Authorize() error = %v, want nil", err)
	}
}

func TestNopRunAuditor(t *testing.T) {
	a := &NopRunAuditor{}
	ctx := context.Background()

	if err := a.Log(ctx, RunEvent{EventType: "run.submitted", RunID: "r1"}); err != nil {
		t.Errorf("Log() error = %v", err)
	}

	events, err := a.Query(ctx, RunEventFilter{RunID: "r1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Query() returned %d events, want 0", len(events))
	}

	if err := a.Flush(ctx); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestNopResultFilter(t *testing.T) {
	f := &NopResultFilter{}
	outputs := map[string]any{"n1": 42.0}

	got, err := f.FilterOutputs(context.Background(), outputs)
	if err != nil {
		t.Fatalf("FilterOutputs() error = %v", err)
	}
	if len(got) != 1 || got["n1"] != 42.0 {
		t.Errorf("FilterOutputs() = %v, want passthrough", got)
	}
}

func TestSubjectContext(t *testing.T) {
	ctx := context.Background()

	if got := SubjectFrom(ctx); got != LocalSubject {
		t.Errorf("SubjectFrom(empty) = %q, want %q", got, LocalSubject)
	}

	ctx = WithSubject(ctx, "svc-account-7")
	if got := SubjectFrom(ctx); got != "svc-account-7" {
		t.Errorf("SubjectFrom() = %q, want svc-account-7", got)
	}

	if got := SubjectFrom(WithSubject(context.Background(), "")); got != LocalSubject {
		t.Errorf("SubjectFrom(blank) = %q, want fallback %q", got, LocalSubject)
	}
}

// recordingAuditor captures events for wiring assertions.
type recordingAuditor struct {
	events []RunEvent
}

func (a *recordingAuditor) Log(_ context.Context, event RunEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAuditor) Query(_ context.Context, filter RunEventFilter) ([]RunEvent, error) {
	var out []RunEvent
	for _, ev := range a.events {
		if filter.RunID != "" && ev.RunID != filter.RunID {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (a *recordingAuditor) Flush(_ context.Context) error { return nil }
