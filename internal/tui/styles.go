package tui

import "github.com/charmbracelet/lipgloss"

// Palette. The render package uses the same hues for transcript roles.
const (
	accent = "#0EA5E9" // sky
	calm   = "#14B8A6" // teal
	amber  = "#F59E0B"
	red    = "#EF4444"
	muted  = "#6B7280"
)

func fg(c string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
}

var (
	// BoxStyle frames dialogs such as the delete confirmation.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(accent)).
			Padding(0, 1)

	TitleStyle    = fg(accent).Bold(true)
	SelectedStyle = fg(accent).Bold(true)
	DimStyle      = fg(muted)
	SuccessStyle  = fg(calm)
	ErrorStyle    = fg(red)
	WarningStyle  = fg(amber)
	SpinnerStyle  = fg(accent)
)
