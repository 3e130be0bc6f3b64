package ui

import "github.com/charmbracelet/bubbles/key"

// ConfirmKeyMap defines the keys of a typed confirmation prompt.
type ConfirmKeyMap struct {
	Submit key.Binding
	Cancel key.Binding
}

// DefaultConfirmKeyMap returns the default confirmation key bindings.
func DefaultConfirmKeyMap() ConfirmKeyMap {
	return ConfirmKeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "cancel"),
		),
	}
}
