package ui

import (
	"testing"

	"taskfold/internal/config"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// setupTest disables colors so rendered output is plain text.
func setupTest(t *testing.T) {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)
}

// createTestStyles creates a default Styles instance for testing.
func createTestStyles(t *testing.T) *Styles {
	t.Helper()
	setupTest(t)
	return NewStylesFromTheme(&config.ThemeConfig{})
}
