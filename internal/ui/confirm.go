package ui

import (
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ConfirmModel asks the user to type a word (usually the name of what is
// about to be destroyed) before an irreversible operation proceeds.
type ConfirmModel struct {
	prompt   string
	expected string
	input    textinput.Model
	keys     ConfirmKeyMap
	styles   *Styles

	confirmed bool
	done      bool
	mismatch  bool
}

// NewConfirmModel returns a prompt that confirms only when expected is typed.
func NewConfirmModel(prompt, expected string, styles *Styles) ConfirmModel {
	ti := textinput.New()
	ti.Placeholder = expected
	ti.CharLimit = 200
	ti.Width = 40
	ti.Focus()

	return ConfirmModel{
		prompt:   prompt,
		expected: expected,
		input:    ti,
		keys:     DefaultConfirmKeyMap(),
		styles:   styles,
	}
}

// Confirmed reports whether the expected text was submitted.
func (m ConfirmModel) Confirmed() bool {
	return m.confirmed
}

func (m ConfirmModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Submit):
			if strings.TrimSpace(m.input.Value()) != m.expected {
				m.mismatch = true
				return m, nil
			}
			m.confirmed = true
			m.done = true
			return m, tea.Quit
		}
	}

	m.mismatch = false
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ConfirmModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.WarnStyle.Render(m.prompt))
	b.WriteString("\n")
	b.WriteString(m.styles.InputPromptStyle.Render("Type " + m.expected + " to confirm: "))
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.mismatch {
		b.WriteString(m.styles.ErrorStyle.Render("does not match"))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.RenderHelp("enter", "confirm", "esc", "cancel"))
	b.WriteString("\n")
	return b.String()
}

// Confirm runs a ConfirmModel on in/out and reports whether the user
// confirmed.
func Confirm(prompt, expected string, styles *Styles, in io.Reader, out io.Writer) (bool, error) {
	p := tea.NewProgram(NewConfirmModel(prompt, expected, styles),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	return final.(ConfirmModel).Confirmed(), nil
}
