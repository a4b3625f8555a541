// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the extension points of the flowgraph
// service.
//
// The open source build runs as a local single-user tool: every
// interface here has a no-op default that allows all actions, records
// nothing, and passes results through unchanged. Deployments that need
// authentication, compliance audit trails, or output redaction inject
// concrete implementations through ServiceOptions without modifying
// the core service.
//
// # Extension Categories
//
//   - auth.go: token validation and action authorization
//   - audit.go: run lifecycle audit events
//   - filter.go: node output filtering before results leave the API
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

import "context"

// ServiceOptions groups all extension points for service configuration.
//
// All fields are optional; nil values are replaced with no-op defaults
// when Normalize is called.
//
// Example:
//
//	// Open source: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Hardened deployment: inject implementations
//	opts := extensions.ServiceOptions{
//	    Auth:    oidcProvider,
//	    Authz:   roleChecker,
//	    Auditor: siemAuditor,
//	}.Normalize()
type ServiceOptions struct {
	// Auth validates authentication tokens.
	// Default: NopAuthProvider (always returns the local subject)
	Auth AuthProvider

	// Authz checks whether a subject may perform an action.
	// Default: NopAuthzProvider (always allows)
	Authz AuthzProvider

	// Auditor records run lifecycle events.
	// Default: NopRunAuditor (discards all events)
	Auditor RunAuditor

	// Results transforms node outputs before they leave the service.
	// Default: NopResultFilter (passes through unchanged)
	Results ResultFilter
}

// DefaultOptions returns ServiceOptions with no-op defaults. This is
// the configuration of the open source build: all actions allowed, no
// audit trail, no filtering.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		Auth:    &NopAuthProvider{},
		Authz:   &NopAuthzProvider{},
		Auditor: &NopRunAuditor{},
		Results: &NopResultFilter{},
	}
}

// Normalize returns a copy of opts with every nil field replaced by
// its no-op default, so callers never need nil checks.
func (opts ServiceOptions) Normalize() ServiceOptions {
	def := DefaultOptions()
	if opts.Auth == nil {
		opts.Auth = def.Auth
	}
	if opts.Authz == nil {
		opts.Authz = def.Authz
	}
	if opts.Auditor == nil {
		opts.Auditor = def.Auditor
	}
	if opts.Results == nil {
		opts.Results = def.Results
	}
	return opts
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.Auth = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.Authz = provider
	return opts
}

// WithAuditor returns a copy of opts with the given RunAuditor.
func (opts ServiceOptions) WithAuditor(auditor RunAuditor) ServiceOptions {
	opts.Auditor = auditor
	return opts
}

// WithResults returns a copy of opts with the given ResultFilter.
func (opts ServiceOptions) WithResults(filter ResultFilter) ServiceOptions {
	opts.Results = filter
	return opts
}

type subjectKey struct{}

// LocalSubject identifies the implicit user of an unauthenticated
// single-user deployment.
const LocalSubject = "local"

// WithSubject returns a context carrying the authenticated subject, so
// service-layer audit events can attribute actions without threading
// auth types through every call.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom extracts the authenticated subject from the context,
// falling back to LocalSubject.
func SubjectFrom(ctx context.Context) string {
	if ctx == nil {
		return LocalSubject
	}
	if s, ok := ctx.Value(subjectKey{}).(string); ok && s != "" {
		return s
	}
	return LocalSubject
}
