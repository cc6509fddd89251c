// Package ui renders console output and asks the operator questions.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"})
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// InitColor picks the color profile for w. Colors are disabled when w
// is not a terminal or NO_COLOR is set; CLICOLOR_FORCE forces them on.
func InitColor(w io.Writer) {
	lipgloss.SetColorProfile(colorProfile(w))
}

// DisableColor turns all styling off.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func colorProfile(w io.Writer) termenv.Profile {
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		if os.Getenv("CLICOLOR_FORCE") == "" {
			return termenv.Ascii
		}
	}
	return termenv.NewOutput(w).EnvColorProfile()
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderHeader(s string) string { return headerStyle.Render(s) }
