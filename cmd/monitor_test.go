// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/panelstat/pkg/config"
	"github.com/Thermoquad/panelstat/pkg/r3status"
)

type registerMap map[uint16]uint16

func (m registerMap) ReadRegister(ctx context.Context, address uint16) (uint16, error) {
	v, ok := m[address]
	if !ok {
		return 0, errors.New("no response")
	}
	return v, nil
}

func testConfig(match string) *config.Config {
	return &config.Config{
		PollIntervalMS: 10,
		MatchMode:      match,
		Address: map[string]string{
			"device_1":      "100",
			"actuator_1":    "200",
			"fire_zone_1":   "300",
			"spare_channel": "400",
			"device_2":      "",
		},
	}
}

func TestMonitor_Cycle(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	mon, err := newMonitor(testConfig("identity"), registerMap{100: 0x05, 200: 0x0201}, quiet)
	require.NoError(t, err)

	wantRows := len(r3status.TableFor(r3status.Device)) +
		len(r3status.TableFor(r3status.Actuator)) +
		len(r3status.TableFor(r3status.FireZone))
	assert.Equal(t, wantRows, mon.board.Summary().Total)

	mon.handle(mon.poller.PollOnce(context.Background()))

	snap := mon.board.Snapshot()
	assert.Equal(t, uint64(1), snap.Summary.Cycle)
	assert.Equal(t, 4, snap.Summary.Observed, "device fault+alarm, actuator on+damper closed")
	require.Len(t, snap.Readings, 3)
	assert.Equal(t, r3status.OutcomeReadFailure, snap.Readings[2].Outcome, "fire zone register does not answer")

	stats := mon.poller.Stats()
	assert.Equal(t, uint64(3), stats.Reads)
	assert.Equal(t, uint64(1), stats.Failures)

	expected := `
# HELP panelstat_cycles_total Completed poll cycles.
# TYPE panelstat_cycles_total counter
panelstat_cycles_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(mon.recorder.Registry(), strings.NewReader(expected), "panelstat_cycles_total"))
}

func TestMonitor_DescriptionMode(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	mon, err := newMonitor(testConfig("description"), registerMap{100: 0x01, 200: 0, 300: 0}, quiet)
	require.NoError(t, err)
	assert.Equal(t, r3status.MatchByDescription, mon.board.Mode())

	mon.handle(mon.poller.PollOnce(context.Background()))

	// "Неисправность" read on the device also marks the actuator and fire
	// zone fault rows under the text join.
	var faults int
	for _, r := range mon.board.Snapshot().Rows {
		if r.Description == "Неисправность" && r.Observed {
			faults++
		}
	}
	assert.Equal(t, 3, faults)
}

func TestMonitor_Errors(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := newMonitor(testConfig("fuzzy"), registerMap{}, quiet)
	assert.Error(t, err)

	cfg := testConfig("")
	cfg.Address = map[string]string{"spare": "1", "device_1": " "}
	_, err = newMonitor(cfg, registerMap{}, quiet)
	assert.ErrorIs(t, err, config.ErrNoAddresses)
}

func TestDisplayAddr(t *testing.T) {
	assert.Equal(t, "localhost:5000", displayAddr(":5000"))
	assert.Equal(t, "10.0.0.2:8080", displayAddr("10.0.0.2:8080"))
}
