package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/netprobe/types"
)

var (
	// Colors
	colorPrimary   = lipgloss.Color("#7D56F4") // Purple
	colorSecondary = lipgloss.Color("#F4A956") // Orange
	colorText      = lipgloss.Color("#FAFAFA") // White/Light Gray
	colorSubtext   = lipgloss.Color("#777777") // Gray
	colorSuccess   = lipgloss.Color("#43BF6D") // Green
	colorError     = lipgloss.Color("#FF5F5F") // Red

	// Layout Styles
	styleWindow = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorPrimary).
			Align(lipgloss.Center)

	// Panel style for panels with internal titles (no top padding)
	stylePanelTitled = lipgloss.NewStyle().
				Border(lipgloss.ThickBorder()).
				BorderForeground(colorSubtext).
				Padding(0, 1)

	styleTitle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(colorText).
			Padding(0, 1).
			Bold(true)

	styleAppTitle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true).
			Padding(0, 1).
			Align(lipgloss.Center)

	styleSelected = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Width(8)

	styleValue = lipgloss.NewStyle().
			Foreground(colorText)

	styleSubtext = lipgloss.NewStyle().Foreground(colorSubtext)

	styleStatus = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Padding(0, 1)

	stylePassed = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleFailed = lipgloss.NewStyle().Foreground(colorError)

	styleModeTag = lipgloss.NewStyle().
			Background(colorSecondary).
			Foreground(lipgloss.Color("#1A1A1A")).
			Padding(0, 1).
			Bold(true)

	styleScreenTooSmall = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				Align(lipgloss.Center, lipgloss.Center)

	// Scrollbar styles
	scrollbarTrack = lipgloss.NewStyle().
			Foreground(colorSubtext)

	scrollbarThumb = lipgloss.NewStyle().
			Foreground(colorPrimary)
)

func stateColor(s types.ConnState) lipgloss.Color {
	switch s {
	case types.StateActive:
		return colorSuccess
	case types.StatePending:
		return colorSecondary
	case types.StateFailed:
		return colorError
	}
	return colorSubtext
}
