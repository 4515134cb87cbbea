// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package r3status decodes R3-MS-KP status registers and reconciles the decoded
// conditions against the checklist of every known state.
//
// A status register is a 16-bit value whose bits flag simultaneously active
// conditions. Each device class (device, actuator, security zone, fire zone)
// has its own mask table. The package groups configured register addresses
// into classes by key name, builds the expected checklist from the mask tables
// and keeps the reconciled checklist in a Board shared between the poll loop
// and any number of views.
package r3status

import (
	"fmt"
	"strings"
)

// SentinelValue is reported by the controller when the state of a device is
// unknown or the device does not answer on its loop.
const SentinelValue uint16 = 0xFFFF

// DeviceClass selects the mask table used to decode a register.
type DeviceClass uint8

const (
	Unclassified DeviceClass = iota
	Device
	Actuator
	SecurityZone
	FireZone
)

// Classes lists every decodable class in checklist and polling order.
var Classes = []DeviceClass{Device, Actuator, SecurityZone, FireZone}

// String returns the key pattern of the class ("device", "fire_zone", ...).
func (c DeviceClass) String() string {
	switch c {
	case Device:
		return "device"
	case Actuator:
		return "actuator"
	case SecurityZone:
		return "security_zone"
	case FireZone:
		return "fire_zone"
	default:
		return "unclassified"
	}
}

// Pattern returns the substring a config key must contain to belong to the
// class. Unclassified has no pattern.
func (c DeviceClass) Pattern() string {
	if c == Unclassified {
		return ""
	}
	return c.String()
}

// Label returns the human name used in checklist sections and console output.
func (c DeviceClass) Label() string {
	switch c {
	case Device:
		return "Прибор"
	case Actuator:
		return "Исполнительное устройство"
	case SecurityZone:
		return "Охранная зона"
	case FireZone:
		return "Пожарная зона"
	default:
		return "Неизвестный класс"
	}
}

// ShortLabel is the compact label used in per-reading console lines.
func (c DeviceClass) ShortLabel() string {
	if c == Actuator {
		return "ИУ"
	}
	return c.Label()
}

// ParseClass parses a class pattern ("device", "actuator", "security_zone",
// "fire_zone"). Dashes are accepted in place of underscores.
func ParseClass(s string) (DeviceClass, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, c := range Classes {
		if c.String() == norm {
			return c, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown device class %q (want device, actuator, security_zone or fire_zone)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c DeviceClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *DeviceClass) UnmarshalText(text []byte) error {
	if string(text) == Unclassified.String() {
		*c = Unclassified
		return nil
	}
	parsed, err := ParseClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
