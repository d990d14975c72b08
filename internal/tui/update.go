package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"ktx/internal/cloud"
	"ktx/internal/session"
)

// Update is the single bubbletea update loop, dispatching per mode.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionEventMsg:
		return m.handleSessionEvent(session.Event(msg))

	case logEntryMsg:
		m.lastLog = fmt.Sprintf("[%s] %s", msg.Subsystem, msg.Message)
		return m, m.waitForLog()

	case confirmDoneMsg:
		m.status = ""
		if msg.err != nil {
			m.lastErr = msg.err
		}
		m.refresh()
		return m, nil

	case providersMsg:
		m.status = ""
		m.providers = []cloud.Provider(msg)
		if len(m.providers) == 0 {
			m.status = "no cloud providers configured"
			return m, nil
		}
		m.providerCursor = 0
		m.mode = modeProviderPick
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleSessionEvent(event session.Event) (tea.Model, tea.Cmd) {
	switch event.Type {
	case session.EventIndexUpdated, session.EventProbeRecord, session.EventStateChanged:
		m.refresh()

	case session.EventSaved:
		m.status = "saved " + m.session.Path()
		m.lastErr = nil
		m.refresh()

	case session.EventError:
		m.lastErr = event.Err

	case session.EventDiscoveryOptions:
		m.options = event.Options
		m.optionCursor = 0
		m.mode = modeBrowse

	case session.EventDiscoveryClusters:
		m.clusters = event.Clusters
		m.optionCursor = 0
		m.selected = make(map[int]bool)
		m.mode = modeClusterPick
	}
	return m, m.waitForEvent()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The filter input swallows everything except its exit keys.
	if m.mode == modeList && m.searchInput.Focused() {
		return m.handleSearchKey(msg)
	}

	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.mode {
	case modeList:
		return m.handleListKey(msg)
	case modeProviderPick:
		return m.handleProviderKey(msg)
	case modeBrowse:
		return m.handleBrowseKey(msg)
	case modeClusterPick:
		return m.handleClusterKey(msg)
	case modeConfirmDelete, modeConfirmImport:
		return m.handleConfirmKey(msg)
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Esc):
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.session.ClearSearch()
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		// Keep the filter, return focus to the list.
		m.searchInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	if err := m.session.Search(m.searchInput.Value()); err == nil {
		m.refresh()
		m.cursor = 0
	}
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1, len(m.entries), &m.cursor)

	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1, len(m.entries), &m.cursor)

	case key.Matches(msg, m.keys.Search):
		m.searchInput.Focus()
		return m, nil

	case key.Matches(msg, m.keys.Esc):
		if m.session.State() == session.StateProbing {
			m.session.CancelProbe()
			m.status = "probe cancelled"
		} else if m.session.Query() != "" {
			m.searchInput.SetValue("")
			m.session.ClearSearch()
			m.refresh()
		}

	case key.Matches(msg, m.keys.Probe):
		if err := m.session.ProbeAll(context.Background()); err != nil {
			m.lastErr = err
		} else {
			m.status = "testing connections"
		}

	case key.Matches(msg, m.keys.Sweep):
		stale := m.session.SweepCandidates()
		if len(stale) == 0 {
			m.status = "nothing to sweep (run a full connection test first)"
			break
		}
		if err := m.session.RequestDelete(stale); err != nil {
			m.lastErr = err
			break
		}
		m.mode = modeConfirmDelete

	case key.Matches(msg, m.keys.Delete):
		if len(m.entries) == 0 {
			break
		}
		if err := m.session.RequestDelete([]string{m.entries[m.cursor].Name}); err != nil {
			m.lastErr = err
			break
		}
		m.mode = modeConfirmDelete

	case key.Matches(msg, m.keys.Import):
		m.status = "checking provider credentials"
		return m, m.loadProviders()

	case key.Matches(msg, m.keys.Reload):
		if err := m.session.Reload(); err != nil {
			m.lastErr = err
		} else {
			m.status = "reloaded " + m.session.Path()
			m.refresh()
		}

	case key.Matches(msg, m.keys.Enter):
		if len(m.entries) == 0 {
			break
		}
		if err := m.session.SwitchCurrent(m.entries[m.cursor].Name); err != nil {
			m.lastErr = err
		}
	}
	return m, nil
}

func (m Model) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1, len(m.providers), &m.providerCursor)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1, len(m.providers), &m.providerCursor)
	case key.Matches(msg, m.keys.Esc):
		m.mode = modeList
	case key.Matches(msg, m.keys.Enter):
		m.browseProvider = m.providers[m.providerCursor]
		m.browsePath = nil
		if err := m.session.Discover(context.Background(), m.browseProvider, nil); err != nil {
			m.lastErr = err
			m.mode = modeList
		}
	}
	return m, nil
}

func (m Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1, len(m.options), &m.optionCursor)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1, len(m.options), &m.optionCursor)
	case key.Matches(msg, m.keys.Esc):
		if len(m.browsePath) == 0 {
			m.mode = modeProviderPick
			return m, nil
		}
		m.browsePath = m.browsePath[:len(m.browsePath)-1]
		if err := m.session.Discover(context.Background(), m.browseProvider, m.browsePath); err != nil {
			m.lastErr = err
			m.mode = modeList
		}
	case key.Matches(msg, m.keys.Enter):
		if len(m.options) == 0 {
			return m, nil
		}
		m.browsePath = append(m.browsePath, m.options[m.optionCursor].ID)
		if err := m.session.Discover(context.Background(), m.browseProvider, m.browsePath); err != nil {
			m.lastErr = err
			m.mode = modeList
		}
	}
	return m, nil
}

func (m Model) handleClusterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1, len(m.clusters), &m.optionCursor)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1, len(m.clusters), &m.optionCursor)
	case key.Matches(msg, m.keys.Select):
		if len(m.clusters) > 0 {
			m.selected[m.optionCursor] = !m.selected[m.optionCursor]
		}
	case key.Matches(msg, m.keys.Esc):
		if len(m.browsePath) > 0 {
			m.browsePath = m.browsePath[:len(m.browsePath)-1]
		}
		if err := m.session.Discover(context.Background(), m.browseProvider, m.browsePath); err != nil {
			m.lastErr = err
			m.mode = modeList
		}
	case key.Matches(msg, m.keys.Enter):
		if len(m.clusters) == 0 {
			return m, nil
		}
		picked := m.pickedClusters()
		if err := m.session.RequestImport(picked); err != nil {
			m.lastErr = err
			return m, nil
		}
		m.mode = modeConfirmImport
	}
	return m, nil
}

// pickedClusters returns the toggled selection, falling back to the
// cluster under the cursor when nothing was toggled.
func (m Model) pickedClusters() []cloud.DiscoveredCluster {
	var picked []cloud.DiscoveredCluster
	for i, c := range m.clusters {
		if m.selected[i] {
			picked = append(picked, c)
		}
	}
	if len(picked) == 0 {
		picked = append(picked, m.clusters[m.optionCursor])
	}
	return picked
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm), key.Matches(msg, m.keys.Enter):
		m.mode = modeList
		m.status = "saving"
		return m, m.confirmPending()
	case key.Matches(msg, m.keys.Deny), key.Matches(msg, m.keys.Esc):
		m.session.Cancel()
		m.mode = modeList
	}
	return m, nil
}
