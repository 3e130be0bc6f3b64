// Package ui renders taskfold output for the terminal and hosts the small
// interactive prompts the CLI needs.
package ui

import (
	"taskfold/internal/config"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds all output styles, initialized from the theme configuration.
type Styles struct {
	// Colors
	ColorPrimary   lipgloss.Color
	ColorAccent    lipgloss.Color
	ColorMuted     lipgloss.Color
	ColorDanger    lipgloss.Color
	ColorWarning   lipgloss.Color
	ColorSuccess   lipgloss.Color
	ColorText      lipgloss.Color
	ColorTextMuted lipgloss.Color

	// Component styles
	HeaderStyle    lipgloss.Style
	ListTitleStyle lipgloss.Style
	ArchivedStyle  lipgloss.Style
	CurrentStyle   lipgloss.Style

	TaskDoneStyle       lipgloss.Style
	TaskPendingStyle    lipgloss.Style
	TaskCheckboxDone    string
	TaskCheckboxPending string
	TaskIDStyle         lipgloss.Style

	// Due date indicator styles
	DueDateOverdueStyle lipgloss.Style
	DueDateTodayStyle   lipgloss.Style
	DueDateFutureStyle  lipgloss.Style

	LabelStyle  lipgloss.Style
	ValueStyle  lipgloss.Style
	StatusStyle lipgloss.Style
	ErrorStyle  lipgloss.Style
	WarnStyle   lipgloss.Style

	InputPromptStyle lipgloss.Style
	HelpStyle        lipgloss.Style
	HelpKeyStyle     lipgloss.Style

	// Sync state styles
	SyncIdleStyle       lipgloss.Style // Idle (green)
	SyncBusyStyle       lipgloss.Style // Pulling or pushing (blue)
	SyncConflictedStyle lipgloss.Style // Waiting for resolution (red)
	SyncOfflineStyle    lipgloss.Style // Queuing changes (yellow)
	SyncDisabledStyle   lipgloss.Style // No remote (muted)
}

// NewStyles creates a new Styles instance from the given config.
func NewStyles(cfg *config.Config) *Styles {
	return NewStylesFromTheme(&cfg.Theme)
}

// NewStylesFromTheme creates a new Styles instance from a ThemeConfig.
// If a theme color is empty, it uses the appropriate default.
func NewStylesFromTheme(theme *config.ThemeConfig) *Styles {
	s := &Styles{}

	s.ColorPrimary = colorOrDefault(theme.Primary, "#7C3AED")
	s.ColorAccent = colorOrDefault(theme.Accent, "#3B82F6")
	s.ColorMuted = colorOrDefault(theme.Muted, "#6B7280")
	s.ColorText = colorOrDefault(theme.Text, "#F9FAFB")

	// Fixed semantic colors (not configurable from theme)
	s.ColorDanger = lipgloss.Color("#EF4444")
	s.ColorWarning = lipgloss.Color("#F59E0B")
	s.ColorSuccess = lipgloss.Color("#10B981")
	s.ColorTextMuted = lipgloss.Color("#9CA3AF")

	s.initComponentStyles()
	return s
}

// colorOrDefault returns the lipgloss.Color from hex string, or default if empty.
func colorOrDefault(hex, defaultHex string) lipgloss.Color {
	if hex != "" {
		return lipgloss.Color(hex)
	}
	return lipgloss.Color(defaultHex)
}

func (s *Styles) initComponentStyles() {
	s.HeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(s.ColorText).
		Background(s.ColorPrimary).
		Padding(0, 1)

	s.ListTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(s.ColorPrimary)

	s.ArchivedStyle = lipgloss.NewStyle().
		Foreground(s.ColorTextMuted).
		Italic(true)

	s.CurrentStyle = lipgloss.NewStyle().
		Foreground(s.ColorSuccess).
		Bold(true)

	// Task styles
	s.TaskDoneStyle = lipgloss.NewStyle().
		Foreground(s.ColorTextMuted).
		Strikethrough(true)

	s.TaskPendingStyle = lipgloss.NewStyle().
		Foreground(s.ColorText)

	s.TaskCheckboxDone = lipgloss.NewStyle().Foreground(s.ColorSuccess).Render("[✓]")
	s.TaskCheckboxPending = lipgloss.NewStyle().Foreground(s.ColorMuted).Render("[ ]")

	s.TaskIDStyle = lipgloss.NewStyle().
		Foreground(s.ColorMuted)

	// Due date indicator styles
	s.DueDateOverdueStyle = lipgloss.NewStyle().
		Foreground(s.ColorDanger).
		Bold(true)

	s.DueDateTodayStyle = lipgloss.NewStyle().
		Foreground(s.ColorWarning)

	s.DueDateFutureStyle = lipgloss.NewStyle().
		Foreground(s.ColorTextMuted)

	s.LabelStyle = lipgloss.NewStyle().
		Foreground(s.ColorTextMuted)

	s.ValueStyle = lipgloss.NewStyle().
		Foreground(s.ColorText).
		Bold(true)

	s.StatusStyle = lipgloss.NewStyle().
		Foreground(s.ColorSuccess)

	s.ErrorStyle = lipgloss.NewStyle().
		Foreground(s.ColorDanger).
		Bold(true)

	s.WarnStyle = lipgloss.NewStyle().
		Foreground(s.ColorWarning)

	s.InputPromptStyle = lipgloss.NewStyle().
		Foreground(s.ColorPrimary).
		Bold(true)

	s.HelpStyle = lipgloss.NewStyle().
		Foreground(s.ColorTextMuted)

	s.HelpKeyStyle = lipgloss.NewStyle().
		Foreground(s.ColorAccent).
		Bold(true)

	// Sync state styles
	s.SyncIdleStyle = lipgloss.NewStyle().
		Foreground(s.ColorSuccess)

	s.SyncBusyStyle = lipgloss.NewStyle().
		Foreground(s.ColorAccent)

	s.SyncConflictedStyle = lipgloss.NewStyle().
		Foreground(s.ColorDanger).
		Bold(true)

	s.SyncOfflineStyle = lipgloss.NewStyle().
		Foreground(s.ColorWarning)

	s.SyncDisabledStyle = lipgloss.NewStyle().
		Foreground(s.ColorMuted)
}

// RenderHelp renders help text with key bindings using the given styles.
func (s *Styles) RenderHelp(keys ...string) string {
	var result string
	for i := 0; i+1 < len(keys); i += 2 {
		if i > 0 {
			result += "  "
		}
		result += s.HelpKeyStyle.Render("["+keys[i]+"]") + " " + s.HelpStyle.Render(keys[i+1])
	}
	return result
}
