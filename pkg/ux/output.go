// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides styled terminal output for the flowrun CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Blueprint palette - drafting blues with construction-site accents
var (
	ColorBlueBright  = lipgloss.Color("#4FC1FF") // Bright blue - highlights, titles
	ColorBluePrimary = lipgloss.Color("#3794FF") // Primary blue - main accent
	ColorBlueSteel   = lipgloss.Color("#2D6CA2") // Steel blue - borders
	ColorGraphite    = lipgloss.Color("#4D5A66") // Graphite - muted text

	ColorSuccess = lipgloss.Color("#54B68C") // Green for completed runs
	ColorWarning = lipgloss.Color("#E5C07B") // Amber for warnings
	ColorError   = lipgloss.Color("#E06C75") // Red for failures
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorBlueBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorGraphite),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorBlueBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlueSteel).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconNode    Icon = "◆"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Print helpers that respect the output mode

// Title prints a styled title
func Title(text string) {
	if Mode() == ModeMachine {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	switch Mode() {
	case ModeMachine:
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
	case ModeMinimal:
		fmt.Printf("%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func Warning(text string) {
	switch Mode() {
	case ModeMachine:
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
	case ModeMinimal:
		fmt.Printf("%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func Error(text string) {
	switch Mode() {
	case ModeMachine:
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
	case ModeMinimal:
		fmt.Printf("%s %s\n", IconError.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	if Mode() == ModeMachine {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints muted/secondary text
func Muted(text string) {
	if Mode() == ModeMachine {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box prints text in a rounded box
func Box(title, content string) {
	if Mode() == ModeMachine {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(60)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// WarningBox prints text in a warning-styled box
func WarningBox(title, content string) {
	if Mode() == ModeMachine {
		fmt.Fprintf(os.Stderr, "WARN %s: %s\n", title, content)
		return
	}
	boxStyle := Styles.WarningBox.Width(60)
	titleLine := Styles.Warning.Bold(true).Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// NodeStatus prints a node with its execution status and detail,
// typically the node's duration or its error.
func NodeStatus(nodeID string, status Icon, detail string) {
	switch Mode() {
	case ModeMachine:
		fmt.Printf("%s\t%s\t%s\n", status, nodeID, detail)
	case ModeMinimal:
		fmt.Printf("%s %s\n", status.Render(), nodeID)
	default:
		if detail != "" {
			fmt.Printf("%s %-24s %s\n", status.Render(), nodeID, Styles.Muted.Render(detail))
		} else {
			fmt.Printf("%s %s\n", status.Render(), nodeID)
		}
	}
}

// RunSummary prints a run summary line with counts
func RunSummary(executed, warnings, total int) {
	if Mode() == ModeMachine {
		fmt.Printf("SUMMARY: executed=%d warnings=%d total=%d\n", executed, warnings, total)
		return
	}
	fmt.Printf("\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", executed)), Styles.Muted.Render("executed"),
		Styles.Warning.Render(fmt.Sprintf("%d", warnings)), Styles.Muted.Render("warnings"),
		Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("nodes"),
	)
}

// ProgressBar renders a simple progress bar
func ProgressBar(current, total int, width int) string {
	if Mode() == ModeMachine {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	empty := width - filled

	bar := Styles.Success.Render(repeatChar('█', filled)) +
		Styles.Muted.Render(repeatChar('░', empty))

	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}

func repeatChar(c rune, n int) string {
	if n <= 0 {
		return ""
	}
	result := make([]rune, n)
	for i := range result {
		result[i] = c
	}
	return string(result)
}
