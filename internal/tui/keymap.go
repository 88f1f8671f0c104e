package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/notiledger/internal/model"
)

// KeyMap defines the keyboard shortcuts of the review screen.
type KeyMap struct {
	// Navigation
	Up   key.Binding
	Down key.Binding

	// Resolutions
	KeepBoth   key.Binding
	KeepFirst  key.Binding
	KeepSecond key.Binding
	DeleteBoth key.Binding
	Remember   key.Binding

	// Application
	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		KeepBoth: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "keep both"),
		),
		KeepFirst: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "keep first"),
		),
		KeepSecond: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "keep second"),
		),
		DeleteBoth: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete both"),
		),
		Remember: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "toggle remember"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.KeepBoth, k.KeepFirst, k.KeepSecond, k.DeleteBoth, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.KeepBoth, k.KeepFirst, k.KeepSecond, k.DeleteBoth},
		{k.Remember, k.Help, k.Quit},
	}
}

// resolutionFor maps a key press to the resolution it selects.
func (k KeyMap) resolutionFor(msg tea.KeyMsg) (model.Resolution, bool) {
	switch {
	case key.Matches(msg, k.KeepBoth):
		return model.ResolutionKeepBoth, true
	case key.Matches(msg, k.KeepFirst):
		return model.ResolutionKeepFirst, true
	case key.Matches(msg, k.KeepSecond):
		return model.ResolutionKeepSecond, true
	case key.Matches(msg, k.DeleteBoth):
		return model.ResolutionDeleteBoth, true
	default:
		return "", false
	}
}
