// Package tui is the interactive terminal frontend. It is a thin
// collaborator: every mutation goes through session intents, and the
// view renders session snapshots and events.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"ktx/internal/cloud"
	"ktx/internal/index"
	"ktx/internal/session"
	"ktx/pkg/logging"
)

// viewMode selects which screen the model renders.
type viewMode int

const (
	modeList viewMode = iota
	modeProviderPick
	modeBrowse
	modeClusterPick
	modeConfirmDelete
	modeConfirmImport
)

// Model is the bubbletea model for the whole application.
type Model struct {
	session *session.Session
	keys    KeyMap

	width  int
	height int

	entries []index.Entry
	cursor  int

	searchInput textinput.Model

	mode viewMode

	// Import drilldown state.
	providers      []cloud.Provider
	providerCursor int
	browseProvider cloud.Provider
	browsePath     []string
	options        []cloud.Option
	optionCursor   int
	clusters       []cloud.DiscoveredCluster
	selected       map[int]bool

	status  string
	lastErr error

	logs    <-chan logging.Entry
	lastLog string
}

// New builds the initial model. logs may be nil when TUI log capture
// is disabled.
func New(sess *session.Session, logs <-chan logging.Entry) Model {
	input := textinput.New()
	input.Placeholder = "fuzzy filter"
	input.Prompt = "/"
	input.CharLimit = 64

	return Model{
		session:     sess,
		keys:        DefaultKeyMap(),
		entries:     sess.Entries(),
		searchInput: input,
		selected:    make(map[int]bool),
		logs:        logs,
	}
}

// Init starts the event pumps.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.waitForLog())
}

// waitForEvent delivers the next session event as a message.
func (m Model) waitForEvent() tea.Cmd {
	events := m.session.Events()
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return sessionEventMsg(event)
	}
}

// loadProviders checks provider credentials off the UI loop.
func (m Model) loadProviders() tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return providersMsg(sess.ConfiguredProviders(ctx))
	}
}

// confirmPending executes the staged action off the UI loop; imports
// run provider credential plugins and the save, which can take a
// while.
func (m Model) confirmPending() tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		return confirmDoneMsg{err: sess.Confirm(ctx)}
	}
}

// waitForLog delivers the next captured log entry, if capture is on.
func (m Model) waitForLog() tea.Cmd {
	if m.logs == nil {
		return nil
	}
	logs := m.logs
	return func() tea.Msg {
		entry, ok := <-logs
		if !ok {
			return nil
		}
		return logEntryMsg(entry)
	}
}

// refresh re-snapshots the index and keeps the cursor in range.
func (m *Model) refresh() {
	m.entries = m.session.Entries()
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) moveCursor(delta int, length int, cursor *int) {
	*cursor += delta
	if *cursor < 0 {
		*cursor = 0
	}
	if *cursor >= length {
		*cursor = length - 1
	}
	if *cursor < 0 {
		*cursor = 0
	}
}
