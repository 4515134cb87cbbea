// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/panelstat/pkg/poller"
	"github.com/Thermoquad/panelstat/pkg/r3status"
)

func deviceBoard() *r3status.Board {
	groups := r3status.Group([]r3status.AddressEntry{{Key: "device_1", Address: "100"}})
	return r3status.NewBoard(r3status.BuildChecklist(groups), r3status.MatchByIdentity)
}

func deviceCycle(board *r3status.Board, outcome r3status.Outcome, value uint16) {
	r := r3status.Reading{Class: r3status.Device, Key: "device_1", Address: "100", Outcome: outcome}
	if outcome.Observed() {
		r.Value = value
		r.Conditions = r3status.Decode(value, r3status.Device)
	} else {
		r.Err = "timeout"
	}
	agg := r3status.NewAggregate()
	agg.Record(r)
	board.Reconcile(agg, time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC))
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func TestModel_Snapshot(t *testing.T) {
	board := deviceBoard()
	m := initialModel("TEST", "Serial: test", nil, nil)

	m = update(t, m, snapshotMsg(board.Snapshot()))
	assert.Len(t, m.table.Rows(), board.Summary().Total)
	assert.Empty(t, m.eventLog, "the initial snapshot logs nothing")

	deviceCycle(board, r3status.OutcomeOK, 0x05)
	m = update(t, m, snapshotMsg(board.Snapshot()))
	require.Len(t, m.eventLog, 2)
	assert.Contains(t, m.eventLog[0].message, "Неисправность")
	assert.Contains(t, m.eventLog[1].message, "Тревога")
	assert.False(t, m.eventLog[0].isError)

	// Same state again: no new events.
	deviceCycle(board, r3status.OutcomeOK, 0x05)
	m = update(t, m, snapshotMsg(board.Snapshot()))
	assert.Len(t, m.eventLog, 2)

	deviceCycle(board, r3status.OutcomeOK, 0x01)
	m = update(t, m, snapshotMsg(board.Snapshot()))
	require.Len(t, m.eventLog, 3)
	assert.Contains(t, m.eventLog[2].message, "cleared Тревога")
}

func TestModel_ReadFailureEvents(t *testing.T) {
	board := deviceBoard()
	m := initialModel("TEST", "Serial: test", nil, nil)

	deviceCycle(board, r3status.OutcomeReadFailure, 0)
	m = update(t, m, snapshotMsg(board.Snapshot()))
	require.Len(t, m.eventLog, 1)
	assert.True(t, m.eventLog[0].isError)
	assert.Contains(t, m.eventLog[0].message, "read failed: timeout")

	// Still failing: logged once.
	deviceCycle(board, r3status.OutcomeReadFailure, 0)
	m = update(t, m, snapshotMsg(board.Snapshot()))
	assert.Len(t, m.eventLog, 1)

	deviceCycle(board, r3status.OutcomeOK, 0)
	m = update(t, m, snapshotMsg(board.Snapshot()))
	require.Len(t, m.eventLog, 2)
	assert.Contains(t, m.eventLog[1].message, "responding again")
}

func TestModel_ObservedOnlyAndFilter(t *testing.T) {
	board := deviceBoard()
	deviceCycle(board, r3status.OutcomeOK, 0x05)
	m := initialModel("TEST", "Serial: test", nil, nil)
	m = update(t, m, snapshotMsg(board.Snapshot()))
	total := len(m.table.Rows())

	m = update(t, m, key("o"))
	assert.Len(t, m.table.Rows(), 2)
	m = update(t, m, key("o"))
	assert.Len(t, m.table.Rows(), total)

	m = update(t, m, key("/"))
	require.True(t, m.filter.Focused())
	m = update(t, m, key("тревога"))
	rows := m.table.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Тревога", rows[0][1])
	assert.Equal(t, "0x4", rows[0][3])
	assert.Equal(t, "✅", rows[0][4])

	// Keys go to the filter while it has focus.
	m = update(t, m, key("q"))
	assert.False(t, m.quitting)

	m = update(t, m, key("esc"))
	assert.False(t, m.filter.Focused())
	assert.Len(t, m.table.Rows(), total)
}

func TestModel_Connection(t *testing.T) {
	m := initialModel("TEST", "WebSocket: ws://x/ws", nil, nil)
	m = update(t, m, connectionLostMsg{err: errors.New("EOF")})
	assert.False(t, m.connected)
	assert.Contains(t, m.View(), "reconnecting")

	m = update(t, m, reconnectedMsg{})
	assert.True(t, m.connected)
	require.Len(t, m.eventLog, 2)
	assert.True(t, m.eventLog[0].isError)
	assert.Equal(t, "Reconnected", m.eventLog[1].message)
}

func TestModel_StatsAndReset(t *testing.T) {
	resets := 0
	stats := func() poller.Stats {
		return poller.Stats{Reads: 42, Sentinel: 3, Failures: 1}
	}
	m := initialModel("PANELSTAT", "Serial: test", stats, func() { resets++ })

	view := m.View()
	assert.Contains(t, view, "PANELSTAT")
	assert.Contains(t, view, "42")
	assert.Contains(t, view, "'r' reset stats")
	assert.Contains(t, view, "waiting for first cycle")

	m = update(t, m, key("r"))
	assert.Equal(t, 1, resets)
	assert.Equal(t, "Statistics reset", m.eventLog[0].message)
}

func TestModel_Quit(t *testing.T) {
	m := initialModel("TEST", "", nil, nil)
	next, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, strings.HasPrefix(next.(model).View(), "Shutting down"))
}

func TestModel_EventLogCapped(t *testing.T) {
	m := initialModel("TEST", "", nil, nil)
	for i := 0; i < m.maxLogEntries+10; i++ {
		m.addLogEntry("event", false)
	}
	assert.Len(t, m.eventLog, m.maxLogEntries)
}
