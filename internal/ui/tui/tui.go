// Package tui provides interactive terminal UI components using BubbleTea.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts a full-screen BubbleTea program with the given model.
func Run(model tea.Model) (tea.Model, error) {
	p := tea.NewProgram(model, tea.WithAltScreen())
	return p.Run()
}
