package tui

import (
	"ktx/internal/cloud"
	"ktx/internal/session"
	"ktx/pkg/logging"
)

// sessionEventMsg wraps a session event for the bubbletea loop.
type sessionEventMsg session.Event

// logEntryMsg carries one log line into the status area.
type logEntryMsg logging.Entry

// providersMsg delivers the providers whose credentials checked out.
type providersMsg []cloud.Provider

// confirmDoneMsg reports the outcome of a confirmed delete or import.
type confirmDoneMsg struct{ err error }
