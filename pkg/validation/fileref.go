// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// file paths or export targets. Using these validators prevents path
// traversal out of the configured model and export directories.
package validation

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// MaxFileRefLength bounds reference length, covering nested model layouts
// without allowing unbounded user input.
const MaxFileRefLength = 128

// segmentPattern matches one path segment of a file reference.
// Allows: letters, digits, dots, underscores, hyphens, spaces.
// A segment must start with a letter or digit and may not be "." or "..".
var segmentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\- ]*$`)

// ValidateFileRef validates a slash-delimited file reference relative to a
// configured root directory.
//
// Valid references:
//   - 1 to MaxFileRefLength characters
//   - one or more segments joined by "/"
//   - each segment starts with a letter or digit and contains only
//     letters, digits, dots, underscores, hyphens, and spaces
//
// Absolute paths, empty segments, and dot segments are rejected, so a
// valid reference can never escape its root.
//
// Example:
//
//	if err := validation.ValidateFileRef(ref); err != nil {
//	    return nil, fmt.Errorf("invalid model reference: %w", err)
//	}
//	// Safe to join onto the models directory
func ValidateFileRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("file reference cannot be empty")
	}
	if len(ref) > MaxFileRefLength {
		return fmt.Errorf("file reference too long: %d characters (max %d)", len(ref), MaxFileRefLength)
	}
	if strings.HasPrefix(ref, "/") {
		return fmt.Errorf("file reference must be relative: %q", ref)
	}
	if strings.Contains(ref, `\`) {
		return fmt.Errorf("file reference must use forward slashes: %q", ref)
	}

	for _, seg := range strings.Split(ref, "/") {
		if seg == "" {
			return fmt.Errorf("file reference has an empty segment: %q", ref)
		}
		if seg == "." || seg == ".." || !segmentPattern.MatchString(seg) {
			return fmt.Errorf("invalid file reference segment %q in %q", seg, ref)
		}
	}
	return nil
}

// SanitizeFileRef normalizes and validates a file reference.
// Returns the cleaned reference if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeRef, err := validation.SanitizeFileRef(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeRef is cleaned and validated
func SanitizeFileRef(ref string) (string, error) {
	cleaned := path.Clean(strings.TrimSpace(ref))
	if err := ValidateFileRef(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}

// ValidateExportName validates a single-segment output file name for
// export targets. Same segment rules as ValidateFileRef, no separators.
func ValidateExportName(name string) error {
	if err := ValidateFileRef(name); err != nil {
		return err
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("export name must not contain path separators: %q", name)
	}
	return nil
}
