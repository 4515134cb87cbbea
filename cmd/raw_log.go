// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/panelstat/pkg/poller"
	"github.com/Thermoquad/panelstat/pkg/r3status"
)

var (
	clearScreen bool
	once        bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Print the decoded conditions of every register each cycle",
	Long: `Continuously read and decode every configured status register.

Each cycle prints one line per key in checklist order:

  Прибор (device_1 - 100): [Неисправность]
  Пожарная зона (fire_zone_1 - 102): [Внимание, Пожар]

Failed reads are printed in place of the conditions. No checklist is kept;
use monitor for reconciliation.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&clearScreen, "clear", false, "Clear the screen before each cycle")
	rawLogCmd.Flags().BoolVar(&once, "once", false, "Poll a single cycle and exit")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, err := OpenBus(cfg, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	p, err := poller.New(poller.Config{
		Interval: cfg.PollInterval(),
		Targets:  poller.Targets(r3status.Group(cfg.Entries())),
	}, bus, logger)
	if err != nil {
		return err
	}

	if once {
		printCycle(p.PollOnce(ctx))
		return nil
	}

	if !clearScreen {
		fmt.Printf("Panelstat - Raw Register Log\n")
		fmt.Printf("%s\n", bus.Info())
		fmt.Printf("Press Ctrl+C to exit\n\n")
	}

	p.Run(ctx, func(c poller.Cycle) {
		if clearScreen {
			fmt.Print("\033[H\033[2J")
		}
		printCycle(c)
	})
	return nil
}

func printCycle(c poller.Cycle) {
	for _, r := range c.Aggregate.Readings() {
		fmt.Println(r3status.FormatReading(r))
	}
	fmt.Println()
}
