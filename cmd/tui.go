// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/panelstat/pkg/poller"
	"github.com/Thermoquad/panelstat/pkg/r3status"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// Messages
type tickMsg time.Time
type snapshotMsg r3status.Snapshot
type connectionLostMsg struct{ err error }
type reconnectedMsg struct{}

// TUI model
type model struct {
	title     string
	source    string
	stats     func() poller.Stats // nil when polling happens elsewhere
	resetFunc func()

	snap     r3status.Snapshot
	observed map[r3status.RowKey]bool
	failing  map[string]bool

	table        table.Model
	filter       textinput.Model
	observedOnly bool

	eventLog      []eventLogEntry
	maxLogEntries int
	connected     bool
	width         int
	height        int
	quitting      bool
}

func initialModel(title, source string, stats func() poller.Stats, reset func()) model {
	ti := textinput.New()
	ti.Placeholder = "filter sections and states"
	ti.Prompt = "/ "
	ti.CharLimit = 64
	ti.Width = 40

	t := table.New(
		table.WithColumns(checklistColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	ts.Selected = ts.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(ts)

	return model{
		title:         title,
		source:        source,
		stats:         stats,
		resetFunc:     reset,
		observed:      make(map[r3status.RowKey]bool),
		failing:       make(map[string]bool),
		table:         t,
		filter:        ti,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		connected:     true,
		width:         80,
		height:        24,
	}
}

// checklistColumns sizes the table to the terminal width.
func checklistColumns(width int) []table.Column {
	fixed := 8 + 8 + 3 + 10 // expected, actual, mark, cell padding
	rest := width - fixed
	if rest < 40 {
		rest = 40
	}
	section := rest * 2 / 5
	return []table.Column{
		{Title: "Раздел", Width: section},
		{Title: "Состояние", Width: rest - section},
		{Title: "Ожид.", Width: 8},
		{Title: "Факт.", Width: 8},
		{Title: "", Width: 3},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filter.Focused() {
			switch msg.String() {
			case "enter":
				m.filter.Blur()
				m.table.Focus()
				return m, nil
			case "esc":
				m.filter.SetValue("")
				m.filter.Blur()
				m.table.Focus()
				m.refreshTable()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.refreshTable()
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "/":
			m.table.Blur()
			return m, m.filter.Focus()
		case "o":
			m.observedOnly = !m.observedOnly
			m.refreshTable()
			return m, nil
		case "r":
			if m.resetFunc != nil {
				m.resetFunc()
				m.addLogEntry("Statistics reset", false)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(checklistColumns(m.width))
		m.table.SetWidth(m.width - 2)
		m.table.SetHeight(m.tableHeight())
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case snapshotMsg:
		m.applySnapshot(r3status.Snapshot(msg))
		return m, nil

	case connectionLostMsg:
		m.connected = false
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		return m, nil

	case reconnectedMsg:
		m.connected = true
		m.addLogEntry("Reconnected", false)
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// applySnapshot logs what changed since the previous cycle and refreshes the
// table.
func (m *model) applySnapshot(snap r3status.Snapshot) {
	if snap.Summary.Cycle > 0 {
		for _, row := range snap.Rows {
			id := row.ID()
			was := m.observed[id]
			switch {
			case row.Observed && !was:
				m.addLogEntry(fmt.Sprintf("%s: %s", row.Section, row.Description), false)
			case !row.Observed && was:
				m.addLogEntry(fmt.Sprintf("%s: cleared %s", row.Section, row.Description), false)
			}
			m.observed[id] = row.Observed
		}

		for _, r := range snap.Readings {
			section := r3status.Section(r.Class, r.Key)
			bad := !r.Outcome.Observed()
			if bad && !m.failing[section] {
				m.addLogEntry(r3status.FormatReading(r), true)
			} else if !bad && m.failing[section] {
				m.addLogEntry(fmt.Sprintf("%s: responding again", section), false)
			}
			m.failing[section] = bad
		}
	}

	m.snap = snap
	m.refreshTable()
}

// refreshTable rebuilds the visible rows from the snapshot and the filter.
func (m *model) refreshTable() {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))

	rows := make([]table.Row, 0, len(m.snap.Rows))
	for _, r := range m.snap.Rows {
		if m.observedOnly && !r.Observed {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.Section), needle) &&
			!strings.Contains(strings.ToLower(r.Description), needle) {
			continue
		}
		mark := "❌"
		if r.Observed {
			mark = "✅"
		}
		rows = append(rows, table.Row{r.Section, r.Description, r.Expected, r.Actual, mark})
	}
	m.table.SetRows(rows)
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// tableHeight leaves room for the header, summary, stats and event boxes.
func (m model) tableHeight() int {
	h := m.height - 22
	if h < 5 {
		h = 5
	}
	return h
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")
	keys := "'/' filter | 'o' observed only | 'q' quit"
	if m.resetFunc != nil {
		keys = "'/' filter | 'o' observed only | 'r' reset stats | 'q' quit"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Match: %s | %s", m.source, m.snap.Mode, keys)))
	s.WriteString("\n\n")

	if !m.connected {
		s.WriteString(warningStyle.Render("⏳ Disconnected, reconnecting..."))
		s.WriteString("\n\n")
	}

	// Summary
	sum := m.snap.Summary
	summary := strings.Builder{}
	updated := "waiting for first cycle"
	if !sum.UpdatedAt.IsZero() {
		updated = sum.UpdatedAt.Format("2006-01-02 15:04:05")
	}
	summary.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		statsLabelStyle.Render("Updated:"), statsValueStyle.Render(updated),
		statsLabelStyle.Render("Cycle:"), statsValueStyle.Render(fmt.Sprintf("%d", sum.Cycle)),
		statsLabelStyle.Render("Observed:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", sum.Observed, sum.Total)),
		statsLabelStyle.Render("Not observed:"), warningStyle.Render(fmt.Sprintf("%d", sum.NotObserved)),
	))

	if m.stats != nil {
		st := m.stats()
		errs := statsValueStyle.Render(fmt.Sprintf("%d", st.Errors()))
		if st.Errors() > 0 {
			errs = errorStyle.Render(fmt.Sprintf("%d", st.Errors()))
		}
		summary.WriteString(fmt.Sprintf("\n%s %s   %s %s   %s %s   %s %s   %s %s",
			statsLabelStyle.Render("Reads:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Reads)),
			statsLabelStyle.Render("No link:"), warningStyle.Render(fmt.Sprintf("%d", st.Sentinel)),
			statsLabelStyle.Render("Errors:"), errs,
			statsLabelStyle.Render("Last cycle:"), statsValueStyle.Render(st.LastCycle.Round(time.Millisecond).String()),
			statsLabelStyle.Render("Read Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f reads/s", st.ReadRate)),
		))
	}

	s.WriteString(boxStyle.Render(summary.String()))
	s.WriteString("\n")

	// Checklist
	if m.filter.Focused() || m.filter.Value() != "" {
		s.WriteString(m.filter.View())
		s.WriteString("\n")
	}
	s.WriteString(boxStyle.Padding(0).Render(m.table.View()))
	s.WriteString("\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := 5
	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
