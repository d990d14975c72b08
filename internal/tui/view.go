package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"ktx/internal/index"
	"ktx/internal/probe"
	"ktx/internal/session"
)

// View renders the current screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("ktx  %s", m.session.Path())))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  [%s]", m.session.State())))
	b.WriteString("\n\n")

	switch m.mode {
	case modeList:
		b.WriteString(m.viewList())
	case modeProviderPick:
		b.WriteString(m.viewProviderPick())
	case modeBrowse:
		b.WriteString(m.viewBrowse())
	case modeClusterPick:
		b.WriteString(m.viewClusterPick())
	case modeConfirmDelete:
		b.WriteString(m.viewConfirmDelete())
	case modeConfirmImport:
		b.WriteString(m.viewConfirmImport())
	}

	b.WriteString("\n")
	b.WriteString(m.viewStatus())
	return b.String()
}

func (m Model) viewList() string {
	var b strings.Builder

	if m.searchInput.Focused() || m.session.Query() != "" {
		b.WriteString(m.searchInput.View())
		b.WriteString("\n\n")
	}

	if len(m.entries) == 0 {
		b.WriteString(dimStyle.Render("no contexts"))
		b.WriteString("\n")
	}

	nameWidth := 0
	for _, entry := range m.entries {
		if w := runewidth.StringWidth(entry.Name); w > nameWidth {
			nameWidth = w
		}
	}

	for i, entry := range m.entries {
		row := m.renderEntry(entry, nameWidth)
		switch {
		case i == m.cursor:
			row = cursorRowStyle.Render("▸ " + row)
		case entry.Current:
			row = currentRowStyle.Render("  " + row)
		default:
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render(
		"↑/k ↓/j move · / filter · enter switch · t test · s sweep · d delete · i import · r reload · q quit"))
	return b.String()
}

func (m Model) renderEntry(entry index.Entry, nameWidth int) string {
	marker := " "
	if entry.Current {
		marker = iconCurrent
	}
	name := runewidth.FillRight(entry.Name, nameWidth)
	return fmt.Sprintf("%s %s  %s  %s", marker, name, healthCell(entry.Health),
		dimStyle.Render(fmt.Sprintf("%s  %s", entry.Server, entry.AuthKind)))
}

func healthCell(record probe.Record) string {
	switch record.Status {
	case probe.StatusReachable:
		return iconReachable + " " + record.Version
	case probe.StatusUnreachable:
		return iconUnreachable + " unreachable"
	case probe.StatusAuthFailed:
		return iconAuthFailed + " auth failed"
	default:
		return iconUnknown + " untested"
	}
}

func (m Model) viewProviderPick() string {
	var b strings.Builder
	b.WriteString("Import from:\n\n")
	for i, provider := range m.providers {
		row := "  " + strings.ToUpper(string(provider))
		if i == m.providerCursor {
			row = cursorRowStyle.Render("▸ " + strings.ToUpper(string(provider)))
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter select · esc back"))
	return b.String()
}

func (m Model) viewBrowse() string {
	var b strings.Builder
	levels := m.session.Levels(m.browseProvider)
	level := "option"
	if len(m.browsePath) < len(levels) {
		level = levels[len(m.browsePath)]
	}
	b.WriteString(fmt.Sprintf("%s: pick a %s", strings.ToUpper(string(m.browseProvider)), level))
	if len(m.browsePath) > 0 {
		b.WriteString(dimStyle.Render("  (" + strings.Join(m.browsePath, " / ") + ")"))
	}
	b.WriteString("\n\n")

	if len(m.options) == 0 {
		b.WriteString(dimStyle.Render("nothing found"))
		b.WriteString("\n")
	}
	for i, option := range m.options {
		row := "  " + option.Label
		if i == m.optionCursor {
			row = cursorRowStyle.Render("▸ " + option.Label)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter descend · esc back"))
	return b.String()
}

func (m Model) viewClusterPick() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s clusters in %s\n\n",
		strings.ToUpper(string(m.browseProvider)), strings.Join(m.browsePath, " / ")))

	if len(m.clusters) == 0 {
		b.WriteString(dimStyle.Render("no clusters found"))
		b.WriteString("\n")
	}
	for i, cluster := range m.clusters {
		check := "[ ]"
		if m.selected[i] {
			check = "[x]"
		}
		row := fmt.Sprintf("  %s %s  %s", check, cluster.Name, dimStyle.Render(cluster.Region))
		if i == m.optionCursor {
			row = cursorRowStyle.Render(fmt.Sprintf("▸ %s %s  %s", check, cluster.Name, cluster.Region))
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("space toggle · enter import · esc back"))
	return b.String()
}

func (m Model) viewConfirmDelete() string {
	names := m.session.PendingDelete()
	body := fmt.Sprintf("Delete %d context(s)?\n\n  %s\n\n%s",
		len(names), strings.Join(names, "\n  "),
		helpStyle.Render("y/enter confirm · n/esc abort"))
	return dialogStyle.Render(body)
}

func (m Model) viewConfirmImport() string {
	clusters := m.session.PendingImport()
	lines := make([]string, 0, len(clusters))
	for _, cluster := range clusters {
		lines = append(lines, fmt.Sprintf("%s/%s (%s)", cluster.Provider, cluster.Name, cluster.Account))
	}
	body := fmt.Sprintf("Import %d cluster(s) into %s?\n\n  %s\n\n%s",
		len(clusters), m.session.Path(), strings.Join(lines, "\n  "),
		helpStyle.Render("y/enter confirm · n/esc abort"))
	return dialogStyle.Render(body)
}

func (m Model) viewStatus() string {
	if m.lastErr != nil {
		return errorStyle.Render("error: " + m.lastErr.Error())
	}
	var parts []string
	if m.status != "" {
		parts = append(parts, m.status)
	}
	if m.lastLog != "" {
		parts = append(parts, dimStyle.Render(m.lastLog))
	}
	if m.session.State() == session.StateProbing {
		parts = append(parts, dimStyle.Render("probing..."))
	}
	return strings.Join(parts, "  ")
}
