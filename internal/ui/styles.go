package ui

import "github.com/charmbracelet/lipgloss"

// Color palette, adapted from the teacher's internal/ui/styles.go
// (same lipgloss ANSI-256 palette, carried over unchanged since the
// colors themselves carry no domain meaning).
const (
	ColorLime     = "154"
	ColorWhite    = "255"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
	ColorYellow   = "220"
)

// Styles holds the lipgloss styles the status views render with.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style
	Border  lipgloss.Style
}

// DefaultStyles returns the lime-accent palette.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
	}
}

// NoColorStyles strips all color, used when output isn't a TTY.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{Header: plain.Bold(true), Success: plain, Warning: plain, Error: plain, Dim: plain, Active: plain.Bold(true), Label: plain, Border: plain}
}
