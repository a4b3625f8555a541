// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization
// fails. Implementations should wrap it with additional context.
//
// Example:
//
//	if !validToken {
//	    return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful
// authentication.
type AuthInfo struct {
	// Subject is the unique identifier of the authenticated caller,
	// e.g. a user id or a service account name. Never empty.
	Subject string

	// Roles contains the caller's role memberships for authorization
	// decisions. Common roles: "admin", "operator", "viewer".
	Roles []string
}

// HasRole reports whether the subject carries the named role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens.
//
// The open source default accepts every request as the local subject.
// Deployments fronted by an identity provider validate bearer tokens
// here and return the resolved identity.
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate checks the token and returns the caller's identity.
	// An empty token is acceptable for providers that allow anonymous
	// access; providers that require credentials return an error
	// wrapping ErrUnauthorized.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes an action to authorize.
//
// Example:
//
//	req := AuthzRequest{
//	    Subject:  info.Subject,
//	    Action:   "run.cancel",
//	    Resource: runID,
//	}
type AuthzRequest struct {
	// Subject is the authenticated caller from AuthProvider.Validate.
	Subject string

	// Action names the operation, e.g. "run.submit" or "run.cancel".
	Action string

	// Resource optionally scopes the action to an instance, e.g. a
	// run id. Empty means the action is not instance-scoped.
	Resource string
}

// AuthzProvider checks whether a subject may perform an action.
//
// Implementations return an error wrapping ErrUnauthorized to refuse,
// and must be safe for concurrent use.
type AuthzProvider interface {
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider is the default provider for the open source build.
// It accepts every token as the local admin subject.
//
// Thread-safe: no mutable state.
type NopAuthProvider struct{}

// Validate returns the local subject regardless of the token.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{Subject: LocalSubject, Roles: []string{"admin"}}, nil
}

// NopAuthzProvider allows every action.
//
// Thread-safe: no mutable state.
type NopAuthzProvider struct{}

// Authorize always allows the action.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
