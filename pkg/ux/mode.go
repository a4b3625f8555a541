// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// OutputMode controls how much styling the CLI output carries.
type OutputMode string

const (
	// ModeFull enables colors, icons, boxes, and spinners.
	ModeFull OutputMode = "full"

	// ModeMinimal uses icons and basic formatting only.
	ModeMinimal OutputMode = "minimal"

	// ModeMachine outputs prefixed plain text suitable for scripting.
	ModeMachine OutputMode = "machine"
)

var (
	currentMode = ModeFull
	modeMu      sync.RWMutex
)

// Mode returns the active output mode.
func Mode() OutputMode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode updates the active output mode.
func SetMode(mode OutputMode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = mode
}

// ParseOutputMode converts a string to an OutputMode. Unknown values
// fall back to ModeMinimal.
func ParseOutputMode(s string) OutputMode {
	switch strings.ToLower(s) {
	case "full", "f":
		return ModeFull
	case "minimal", "min", "m":
		return ModeMinimal
	case "machine", "plain", "q":
		return ModeMachine
	default:
		return ModeMinimal
	}
}

// InitMode picks the output mode from the environment: FLOWRUN_OUTPUT
// wins, pipes and redirects force machine output, a terminal gets the
// full treatment.
func InitMode() {
	if env := os.Getenv("FLOWRUN_OUTPUT"); env != "" {
		SetMode(ParseOutputMode(env))
		return
	}
	if !stdoutIsTerminal() {
		SetMode(ModeMachine)
		return
	}
	SetMode(ModeFull)
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ShowProgress reports whether spinners and progress bars should
// animate.
func ShowProgress() bool {
	return Mode() != ModeMachine
}
