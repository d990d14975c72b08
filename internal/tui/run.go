package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"ktx/internal/session"
	"ktx/pkg/logging"
)

// Run starts the interactive program and blocks until the user quits.
func Run(sess *session.Session, logs <-chan logging.Entry) error {
	program := tea.NewProgram(New(sess, logs), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
