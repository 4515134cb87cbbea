// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

var (
	decodeClass string
	decodeAll   bool
	listMasks   bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [value...]",
	Short: "Decode status register values offline",
	Long: `Decode one or more status register values without touching the bus.

Values are decimal or 0x-prefixed hexadecimal. 0xffff is the controller's
"no link" value and decodes to that condition alone.

Examples:
  panelstat decode --class device 0x05
  panelstat decode --all 130
  panelstat decode --class actuator --list`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVar(&decodeClass, "class", "", "Device class (device, actuator, security_zone, fire_zone)")
	decodeCmd.Flags().BoolVar(&decodeAll, "all", false, "Decode against every class")
	decodeCmd.Flags().BoolVar(&listMasks, "list", false, "List the mask table instead of decoding")
}

func runDecode(cmd *cobra.Command, args []string) error {
	classes, err := decodeClasses()
	if err != nil {
		return err
	}

	if listMasks {
		for _, c := range classes {
			printMaskTable(os.Stdout, c)
		}
		return nil
	}

	if len(args) == 0 {
		return errors.New("no value to decode")
	}
	return decodeValues(os.Stdout, classes, args)
}

func decodeClasses() ([]r3status.DeviceClass, error) {
	switch {
	case decodeAll:
		return r3status.Classes, nil
	case decodeClass != "":
		c, err := r3status.ParseClass(decodeClass)
		if err != nil {
			return nil, err
		}
		return []r3status.DeviceClass{c}, nil
	default:
		return nil, errors.New("either --class or --all must be specified")
	}
}

func decodeValues(w io.Writer, classes []r3status.DeviceClass, args []string) error {
	for _, arg := range args {
		value, err := r3status.ParseValue(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		for _, c := range classes {
			fmt.Fprintf(w, "%s %s: %s\n",
				c.Label(), r3status.FormatCode(value), r3status.FormatConditions(r3status.Decode(value, c)))
		}
	}
	return nil
}

func printMaskTable(w io.Writer, c r3status.DeviceClass) {
	fmt.Fprintf(w, "%s (%s)\n", c.Label(), c)
	for _, cond := range r3status.TableFor(c) {
		fmt.Fprintf(w, "  %-7s %-20s %s\n", r3status.FormatCode(cond.Mask), cond.Name, cond.Description)
	}
	fmt.Fprintln(w)
}
