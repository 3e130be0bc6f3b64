package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func typeText(m ConfirmModel, s string) ConfirmModel {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(ConfirmModel)
}

func press(m ConfirmModel, k tea.KeyType) (ConfirmModel, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(ConfirmModel), cmd
}

func TestConfirmModel(t *testing.T) {
	s := createTestStyles(t)

	t.Run("matching name confirms", func(t *testing.T) {
		m := typeText(NewConfirmModel("Destroy workspace home?", "home", s), "home")
		m, cmd := press(m, tea.KeyEnter)
		if !m.Confirmed() || cmd == nil {
			t.Errorf("Confirmed() = %v, quit cmd = %v", m.Confirmed(), cmd != nil)
		}
	})

	t.Run("mismatch keeps prompting", func(t *testing.T) {
		m := typeText(NewConfirmModel("Destroy workspace home?", "home", s), "hom")
		m, cmd := press(m, tea.KeyEnter)
		if m.Confirmed() || cmd != nil {
			t.Error("mismatched text confirmed")
		}
		if !strings.Contains(m.View(), "does not match") {
			t.Errorf("View() = %q, want mismatch notice", m.View())
		}
	})

	t.Run("escape cancels", func(t *testing.T) {
		m := typeText(NewConfirmModel("Destroy workspace home?", "home", s), "home")
		m, cmd := press(m, tea.KeyEsc)
		if m.Confirmed() || cmd == nil {
			t.Error("escape did not cancel")
		}
		if m.View() != "" {
			t.Errorf("View() after cancel = %q, want empty", m.View())
		}
	})
}

func TestConfirmView(t *testing.T) {
	s := createTestStyles(t)
	view := NewConfirmModel("Destroy workspace home?", "home", s).View()
	for _, want := range []string{"Destroy workspace home?", "Type home to confirm", "[enter] confirm"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}
