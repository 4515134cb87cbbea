// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/panelstat/pkg/fieldbus"
	"github.com/Thermoquad/panelstat/pkg/r3status"
)

var (
	probePort    bool
	readRegister string
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and test the bus connection",
	Long: `List the serial ports of this host, with USB details where available.

--probe opens and closes the configured port to check that it exists and is
not held by another process. --read reads one holding register through the
configured connection and decodes it against every class.

Examples:
  panelstat ports
  panelstat ports --probe --port /dev/ttyUSB1
  panelstat ports --read 100 --tcp 10.0.0.5:502

Exit codes:
  0 - Success
  1 - Probe or read failed
  2 - Connection error`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&probePort, "probe", false, "Open and close the configured serial port")
	portsCmd.Flags().StringVar(&readRegister, "read", "", "Read one register address and decode it")
}

func runPorts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	bus := cfg.Bus()

	if readRegister != "" {
		logger, closeLog, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer closeLog.Close()

		address, err := r3status.ParseValue(readRegister)
		if err != nil {
			return fmt.Errorf("invalid register address %q: %w", readRegister, err)
		}

		reader, err := OpenBus(cfg, logger)
		if err != nil {
			return withExitCode(2, fmt.Errorf("connection error: %w", err))
		}
		defer reader.Close()

		fmt.Printf("%s\n", reader.Info())
		if err := readAndDecode(cmd.Context(), os.Stdout, reader, address); err != nil {
			return withExitCode(1, fmt.Errorf("read failed: %w", err))
		}
		return nil
	}

	if probePort {
		fmt.Printf("Probing %s\n", bus.Describe())
		if err := fieldbus.Probe(bus); err != nil {
			return withExitCode(1, fmt.Errorf("probe failed: %w", err))
		}
		fmt.Printf("OK: %s is available\n", bus.Port)
		return nil
	}

	ports, err := fieldbus.ListPorts()
	if err != nil {
		return err
	}
	return renderPorts(os.Stdout, ports)
}

// registerReader is the read side of fieldbus.Reader.
type registerReader interface {
	ReadRegister(ctx context.Context, address uint16) (uint16, error)
}

func readAndDecode(ctx context.Context, w io.Writer, reader registerReader, address uint16) error {
	value, err := reader.ReadRegister(ctx, address)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Register %d = %s (%d)\n", address, r3status.FormatCode(value), value)
	return decodeValues(w, r3status.Classes, []string{r3status.FormatCode(value)})
}

func renderPorts(w io.Writer, ports []fieldbus.PortInfo) error {
	if len(ports) == 0 {
		_, err := fmt.Fprintln(w, "No serial ports found")
		return err
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Port", "USB", "VID:PID", "Serial", "Product")

	for _, p := range ports {
		usb, ids := "no", ""
		if p.IsUSB {
			usb = "yes"
			ids = p.VID + ":" + p.PID
		}
		t.Row(p.Name, usb, ids, p.SerialNumber, p.Product)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}
