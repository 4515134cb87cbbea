// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

var (
	outputFormat string
	pollFirst    bool
)

var checklistCmd = &cobra.Command{
	Use:   "checklist",
	Short: "Print the checklist of every expected state",
	Long: `Print one row per known state of every configured device, actuator,
security zone and fire zone, grouped by section.

Without --poll the bus is not touched and every row is unobserved; the output
is the test plan for a commissioning walk. With --poll a single cycle is read
and reconciled first.

Formats: table (default), json, yaml.`,
	RunE: runChecklist,
}

func init() {
	rootCmd.AddCommand(checklistCmd)
	checklistCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format (table, json, yaml)")
	checklistCmd.Flags().BoolVar(&pollFirst, "poll", false, "Poll one cycle and reconcile before printing")
}

func runChecklist(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateAddresses(); err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog.Close()

	if !pollFirst {
		mode, err := cfg.Mode()
		if err != nil {
			return err
		}
		rows := r3status.BuildChecklist(r3status.Group(cfg.Entries()))
		return renderChecklist(os.Stdout, r3status.NewBoard(rows, mode).Snapshot(), outputFormat)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	bus, err := OpenBus(cfg, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	mon, err := newMonitor(cfg, bus, logger)
	if err != nil {
		return err
	}
	cycle := mon.poller.PollOnce(cmd.Context())
	if cycle.Err != nil {
		return cycle.Err
	}
	mon.board.Reconcile(cycle.Aggregate, cycle.At)
	return renderChecklist(os.Stdout, mon.board.Snapshot(), outputFormat)
}

// checklistDocument is the json/yaml export form.
type checklistDocument struct {
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	Summary     r3status.Summary       `json:"summary" yaml:"summary"`
	Mode        string                 `json:"match_mode" yaml:"match_mode"`
	Sections    []r3status.SectionRows `json:"sections" yaml:"sections"`
}

func renderChecklist(w io.Writer, snap r3status.Snapshot, format string) error {
	switch format {
	case "table", "":
		return renderChecklistTable(w, snap)
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}

	doc := checklistDocument{
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Summary:     snap.Summary,
		Mode:        snap.Mode.String(),
		Sections:    snap.Sections(),
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func renderChecklistTable(w io.Writer, snap r3status.Snapshot) error {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	for _, sec := range snap.Sections() {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
			Headers("Состояние", "Ожидаемый код", "Фактический код", "").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})

		for _, r := range sec.Rows {
			mark := "❌"
			if r.Observed {
				mark = "✅"
			}
			t.Row(r.Description, r.Expected, r.Actual, mark)
		}

		if _, err := fmt.Fprintf(w, "%s\n%s\n\n", sectionStyle.Render(sec.Name), t.Render()); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, r3status.FormatSummary(snap.Summary))
	return err
}
