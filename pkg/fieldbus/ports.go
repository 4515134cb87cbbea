// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fieldbus

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// ListPorts returns the serial ports of the host sorted by name. USB details
// are filled in when the platform enumerator provides them.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		sortPorts(ports)
		return ports, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(names))
	for _, n := range names {
		ports = append(ports, PortInfo{Name: n})
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []PortInfo) {
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
}

// Mode converts the serial framing of cfg into a serial.Mode.
func Mode(cfg Config) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch strings.ToUpper(cfg.Parity) {
	case "N", "":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("invalid parity %q", cfg.Parity)
	}

	switch cfg.StopBits {
	case 1, 0:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", cfg.StopBits)
	}
	return mode, nil
}

// Probe opens and closes the configured serial port to check that it exists
// and is not held by another process.
func Probe(cfg Config) error {
	mode, err := Mode(cfg)
	if err != nil {
		return err
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	return port.Close()
}
