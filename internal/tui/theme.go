package tui

import "github.com/charmbracelet/lipgloss"

// Color palette shared by the CLI output and the configure forms
var (
	// Primary colors
	ColorPrimary   = lipgloss.Color("#2563EB") // Blue - main accent
	ColorSecondary = lipgloss.Color("#14B8A6") // Teal - secondary accent

	// Status colors
	ColorSuccess = lipgloss.Color("#22C55E") // Green
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorWarning = lipgloss.Color("#F59E0B") // Amber

	// Text colors
	ColorText   = lipgloss.Color("#F8FAFC")
	ColorMuted  = lipgloss.Color("#94A3B8")
	ColorSubtle = lipgloss.Color("#64748B")
)
