package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	accentCyan   = lipgloss.Color("#00FFFF")
	accentGreen  = lipgloss.Color("#39FF14")
	accentYellow = lipgloss.Color("#FFFF00")
	accentOrange = lipgloss.Color("#FF6700")
	accentRed    = lipgloss.Color("#FF0000")
	dimGray      = lipgloss.Color("#8A8A8A")
)

// Styles holds the palette bound to one output. Colors are dropped when the
// output is not a terminal.
type Styles struct {
	Label     lipgloss.Style
	Value     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Dim       lipgloss.Style
	Bar       lipgloss.Style
	BarEmpty  lipgloss.Style
	Title     lipgloss.Style
	Highlight lipgloss.Style
}

// NewStyles builds the palette for w
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Label:     r.NewStyle().Foreground(accentCyan).Bold(true),
		Value:     r.NewStyle().Foreground(accentYellow),
		Success:   r.NewStyle().Foreground(accentGreen).Bold(true),
		Warning:   r.NewStyle().Foreground(accentOrange).Bold(true),
		Error:     r.NewStyle().Foreground(accentRed).Bold(true),
		Dim:       r.NewStyle().Foreground(dimGray),
		Bar:       r.NewStyle().Foreground(accentGreen),
		BarEmpty:  r.NewStyle().Foreground(lipgloss.Color("#333333")),
		Title:     r.NewStyle().Foreground(accentCyan).Bold(true).Underline(true),
		Highlight: r.NewStyle().Foreground(lipgloss.Color("#FF00FF")),
	}
}
