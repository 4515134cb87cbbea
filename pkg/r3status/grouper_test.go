// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r3status

import (
	"reflect"
	"testing"
)

// ============================================================
// Grouper Tests
// ============================================================

func TestGroup_ExcludesBlank(t *testing.T) {
	groups := Group([]AddressEntry{
		{Key: "device_1", Address: "100"},
		{Key: "device_2", Address: ""},
		{Key: "device_3", Address: "   "},
		{Key: "fire_zone_1", Address: "102"},
	})

	if got := groups.Keys(Device); !reflect.DeepEqual(got, []string{"device_1"}) {
		t.Errorf("Device group: expected [device_1], got %v", got)
	}
	if got := groups.Keys(FireZone); !reflect.DeepEqual(got, []string{"fire_zone_1"}) {
		t.Errorf("FireZone group: expected [fire_zone_1], got %v", got)
	}
	for _, c := range []DeviceClass{Actuator, SecurityZone} {
		if len(groups[c]) != 0 {
			t.Errorf("%s group should be empty, got %v", c, groups[c])
		}
	}
	if groups.Len() != 2 {
		t.Errorf("expected 2 grouped pairs, got %d", groups.Len())
	}
}

func TestGroup_PreservesOrder(t *testing.T) {
	entries := []AddressEntry{
		{Key: "device_b", Address: "2"},
		{Key: "device_a", Address: "1"},
		{Key: "device_c", Address: "3"},
	}
	got := Group(entries).Keys(Device)
	expected := []string{"device_b", "device_a", "device_c"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestGroup_MultipleClasses(t *testing.T) {
	groups := Group([]AddressEntry{{Key: "device_actuator_1", Address: "7"}})
	if len(groups[Device]) != 1 || len(groups[Actuator]) != 1 {
		t.Errorf("key should land in both Device and Actuator, got %v", groups)
	}
}

func TestGroup_DedupesWithinClass(t *testing.T) {
	groups := Group([]AddressEntry{
		{Key: "device_1", Address: "100"},
		{Key: "device_1", Address: "101"},
	})
	if len(groups[Device]) != 1 || groups[Device][0].Address != "100" {
		t.Errorf("expected first device_1 entry only, got %v", groups[Device])
	}
}

func TestGroup_Unclassified(t *testing.T) {
	groups := Group([]AddressEntry{{Key: "sensor_9", Address: "9"}})
	if groups.Len() != 0 {
		t.Errorf("unclassified key should not be grouped, got %v", groups)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		key      string
		expected []DeviceClass
	}{
		{"device_1", []DeviceClass{Device}},
		{"main_actuator", []DeviceClass{Actuator}},
		{"security_zone_3", []DeviceClass{SecurityZone}},
		{"fire_zone_1", []DeviceClass{FireZone}},
		{"zone_1", nil},
		{"Device_1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := Classify(tt.key)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}

	if ClassOf("zone_1") != Unclassified {
		t.Error("ClassOf should return Unclassified for no match")
	}
}

func TestAddressEntry_Register(t *testing.T) {
	tests := []struct {
		address  string
		expected uint16
		wantErr  bool
	}{
		{"100", 100, false},
		{" 200 ", 200, false},
		{"65535", 65535, false},
		{"65536", 0, true},
		{"0x10", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := AddressEntry{Key: "device_1", Address: tt.address}.Register()
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

// ============================================================
// Checklist Builder Tests
// ============================================================

func TestBuildChecklist_RowCounts(t *testing.T) {
	for _, c := range Classes {
		t.Run(c.String(), func(t *testing.T) {
			key := c.String() + "_1"
			rows := BuildChecklist(Group([]AddressEntry{{Key: key, Address: "1"}}))
			if len(rows) != len(TableFor(c)) {
				t.Errorf("expected %d rows, got %d", len(TableFor(c)), len(rows))
			}
			if rows[0].Mask != 0 {
				t.Errorf("first row should be the zero-mask entry, got 0x%x", rows[0].Mask)
			}
		})
	}
}

func TestBuildChecklist_Fields(t *testing.T) {
	rows := BuildChecklist(Group([]AddressEntry{{Key: "fire_zone_1", Address: "102"}}))

	for i, cond := range TableFor(FireZone) {
		row := rows[i]
		if row.Section != `Пожарная зона "fire_zone_1"` {
			t.Errorf("row %d: unexpected section %q", i, row.Section)
		}
		if row.Description != cond.Description || row.Mask != cond.Mask {
			t.Errorf("row %d: expected %q/0x%x, got %q/0x%x", i, cond.Description, cond.Mask, row.Description, row.Mask)
		}
		if row.Expected != FormatCode(cond.Mask) {
			t.Errorf("row %d: expected code %q, got %q", i, FormatCode(cond.Mask), row.Expected)
		}
		if row.Observed || row.Actual != "" {
			t.Errorf("row %d: new rows must be unobserved", i)
		}
	}
}

func TestBuildChecklist_ClassOrder(t *testing.T) {
	rows := BuildChecklist(Group([]AddressEntry{
		{Key: "fire_zone_1", Address: "4"},
		{Key: "security_zone_1", Address: "3"},
		{Key: "actuator_1", Address: "2"},
		{Key: "device_1", Address: "1"},
	}))

	sections := GroupSections(rows)
	expected := []string{
		`Прибор "device_1"`,
		`Исполнительное устройство "actuator_1"`,
		`Охранная зона "security_zone_1"`,
		`Пожарная зона "fire_zone_1"`,
	}
	if len(sections) != len(expected) {
		t.Fatalf("expected %d sections, got %d", len(expected), len(sections))
	}
	for i, s := range sections {
		if s.Name != expected[i] {
			t.Errorf("section %d: expected %q, got %q", i, expected[i], s.Name)
		}
	}
}

func TestBuildChecklist_Empty(t *testing.T) {
	if rows := BuildChecklist(Groups{}); len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
