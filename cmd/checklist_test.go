// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/panelstat/pkg/fieldbus"
	"github.com/Thermoquad/panelstat/pkg/r3status"
)

func twoSectionSnapshot() r3status.Snapshot {
	groups := r3status.Group([]r3status.AddressEntry{
		{Key: "device_1", Address: "100"},
		{Key: "security_zone_1", Address: "101"},
	})
	board := r3status.NewBoard(r3status.BuildChecklist(groups), r3status.MatchByIdentity)
	deviceCycle(board, r3status.OutcomeOK, 0x0200)
	return board.Snapshot()
}

func TestRenderChecklist_Table(t *testing.T) {
	snap := twoSectionSnapshot()
	var buf bytes.Buffer
	require.NoError(t, renderChecklist(&buf, snap, "table"))
	out := buf.String()

	assert.Contains(t, out, `Прибор "device_1"`)
	assert.Contains(t, out, `Охранная зона "security_zone_1"`)
	assert.Contains(t, out, "На охране")
	assert.Equal(t, 1, strings.Count(out, "✅"))
	assert.Equal(t, snap.Summary.Total-1, strings.Count(out, "❌"))
	assert.Contains(t, out, "Observed: 1")
}

func TestRenderChecklist_JSON(t *testing.T) {
	snap := twoSectionSnapshot()
	var buf bytes.Buffer
	require.NoError(t, renderChecklist(&buf, snap, "json"))

	var doc checklistDocument
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "identity", doc.Mode)
	assert.Equal(t, 1, doc.Summary.Observed)
	require.Len(t, doc.Sections, 2)
	assert.Len(t, doc.Sections[0].Rows, len(r3status.TableFor(r3status.Device)))
	assert.Len(t, doc.Sections[1].Rows, len(r3status.TableFor(r3status.SecurityZone)))

	var armed r3status.Row
	for _, r := range doc.Sections[0].Rows {
		if r.Mask == 0x0200 {
			armed = r
		}
	}
	assert.True(t, armed.Observed)
	assert.Equal(t, "0x200", armed.Expected)
	assert.Equal(t, "0x200", armed.Actual)
}

func TestRenderChecklist_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderChecklist(&buf, twoSectionSnapshot(), "yaml"))

	var doc struct {
		Mode     string `yaml:"match_mode"`
		Sections []struct {
			Name string `yaml:"name"`
			Rows []struct {
				Class    string `yaml:"class"`
				State    string `yaml:"state"`
				Expected string `yaml:"expected"`
				Observed bool   `yaml:"observed"`
			} `yaml:"rows"`
		} `yaml:"sections"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "identity", doc.Mode)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, `Охранная зона "security_zone_1"`, doc.Sections[1].Name)
	assert.Equal(t, "security_zone", doc.Sections[1].Rows[0].Class)
	assert.Equal(t, "Не на охране", doc.Sections[1].Rows[0].State)
	assert.Equal(t, "0x0", doc.Sections[1].Rows[0].Expected)
}

func TestRenderChecklist_UnknownFormat(t *testing.T) {
	err := renderChecklist(&bytes.Buffer{}, twoSectionSnapshot(), "csv")
	assert.ErrorContains(t, err, "unknown format")
}

func TestDecodeValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, decodeValues(&buf, []r3status.DeviceClass{r3status.Device}, []string{"0x05", "65535"}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Прибор 0x5: [Неисправность, Тревога]", lines[0])
	assert.Equal(t, "Прибор 0xffff: [Неизвестно или нет связи с прибором]", lines[1])

	buf.Reset()
	require.NoError(t, decodeValues(&buf, r3status.Classes, []string{"0x80"}))
	out := buf.String()
	assert.Contains(t, out, "Прибор 0x80: [Неисправность питания]")
	assert.Contains(t, out, "Исполнительное устройство 0x80: []")
	assert.Contains(t, out, "Пожарная зона 0x80: [Пожар]")

	assert.Error(t, decodeValues(&buf, r3status.Classes, []string{"0x10000"}))
	assert.Error(t, decodeValues(&buf, r3status.Classes, []string{"abc"}))
}

func TestDecodeClasses(t *testing.T) {
	defer func() { decodeAll, decodeClass = false, "" }()

	decodeAll, decodeClass = false, ""
	_, err := decodeClasses()
	assert.Error(t, err)

	decodeClass = "fire-zone"
	classes, err := decodeClasses()
	require.NoError(t, err)
	assert.Equal(t, []r3status.DeviceClass{r3status.FireZone}, classes)

	decodeClass = "pump"
	_, err = decodeClasses()
	assert.Error(t, err)

	decodeAll = true
	classes, err = decodeClasses()
	require.NoError(t, err)
	assert.Equal(t, r3status.Classes, classes)
}

func TestPrintMaskTable(t *testing.T) {
	var buf bytes.Buffer
	printMaskTable(&buf, r3status.FireZone)
	out := buf.String()
	assert.Contains(t, out, "Пожарная зона (fire_zone)")
	assert.Contains(t, out, "bypass")
	assert.Equal(t, len(r3status.TableFor(r3status.FireZone))+2, strings.Count(out, "\n"))
}

type stubReader struct {
	value uint16
	err   error
}

func (s stubReader) ReadRegister(ctx context.Context, address uint16) (uint16, error) {
	return s.value, s.err
}

func TestReadAndDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, readAndDecode(context.Background(), &buf, stubReader{value: 0x0400}, 100))
	out := buf.String()
	assert.Contains(t, out, "Register 100 = 0x400 (1024)")
	assert.Contains(t, out, "Прибор 0x400: [Обрыв АЛС]")
	assert.Contains(t, out, "Исполнительное устройство 0x400: [Заслонка ОТКРЫТА]")

	err := readAndDecode(context.Background(), &buf, stubReader{err: fieldbus.ErrNotConnected}, 100)
	assert.True(t, errors.Is(err, fieldbus.ErrNotConnected))
}

func TestRenderPorts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderPorts(&buf, nil))
	assert.Equal(t, "No serial ports found\n", buf.String())

	buf.Reset()
	require.NoError(t, renderPorts(&buf, []fieldbus.PortInfo{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R"},
	}))
	out := buf.String()
	assert.Contains(t, out, "/dev/ttyUSB0")
	assert.Contains(t, out, "0403:6001")
	assert.Contains(t, out, "FT232R")
}
