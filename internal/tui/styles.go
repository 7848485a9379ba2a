package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Header style for titles and section headers
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// Muted style for secondary text
	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleHighlight = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	// Box style for bordered containers
	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)
)

const logoASCII = `
             _ _ _     _ _      _   
  __ _ _   _(_) | | __| (_) ___| |_ 
 / _' | | | | | | |/ _' | |/ __| __|
| (_| | |_| | | | | (_| | | (__| |_ 
 \__, |\__,_|_|_|_|\__,_|_|\___|\__|
    |_|                             `

// Logo returns the quilldict banner
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}

// KeyValue renders an aligned label and value line.
func KeyValue(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		StyleLabel.Width(16).Render(label),
		value,
	)
}
