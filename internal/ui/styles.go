// Package ui provides terminal styling helpers for CLI output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	boldStyle   = lipgloss.NewStyle().Bold(true)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
)

// colorEnabled reports whether the terminal supports color output.
// Respects NO_COLOR and dumb terminals via termenv profile detection.
func colorEnabled() bool {
	return termenv.EnvColorProfile() != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled() {
		return s
	}
	return style.Render(s)
}

// RenderPass renders success markers (green).
func RenderPass(s string) string { return render(passStyle, s) }

// RenderFail renders failure markers (red).
func RenderFail(s string) string { return render(failStyle, s) }

// RenderWarn renders warning markers (yellow).
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderAccent renders informational markers (cyan).
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderDim renders de-emphasized text.
func RenderDim(s string) string { return render(dimStyle, s) }

// RenderBold renders emphasized text.
func RenderBold(s string) string { return render(boldStyle, s) }

// RenderHeader renders section headers.
func RenderHeader(s string) string { return render(headerStyle, s) }
