// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/panelstat/pkg/config"
	"github.com/Thermoquad/panelstat/pkg/metrics"
	"github.com/Thermoquad/panelstat/pkg/mqttsink"
	"github.com/Thermoquad/panelstat/pkg/poller"
	"github.com/Thermoquad/panelstat/pkg/r3status"
	"github.com/Thermoquad/panelstat/pkg/webview"
)

var (
	statsInterval int
	useTUI        bool
	noWeb         bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the controller and reconcile the status checklist",
	Long: `Poll every configured register once per cycle and reconcile the checklist.

Each cycle reads the status register of every configured device, actuator,
security zone and fire zone, decodes the conditions its bits flag, and marks
every checklist row whose condition was seen. Results are available as:
  - a terminal UI (default on a terminal, --tui=false for text output)
  - a web page at / refreshed every two seconds
  - JSON at /api/v1/checklist and a push feed at /ws
  - Prometheus metrics at /metrics
  - MQTT messages when mqtt.broker is configured

A failed read never aborts the cycle: the key is reported as failed and its
rows are not observed until it answers again. A value of 0xffff means the
controller has no link to the device.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	flags := monitorCmd.Flags()
	flags.IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval in text mode (seconds)")
	flags.BoolVar(&useTUI, "tui", term.IsTerminal(int(os.Stdout.Fd())), "Use terminal UI (false for text mode)")
	flags.BoolVar(&noWeb, "no-web", false, "Do not start the HTTP server")
	flags.String("listen", ":5000", "HTTP listen address")
	flags.String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")

	bindLocalFlags(v, monitorCmd, map[string]string{
		"web.listen":  "listen",
		"mqtt.broker": "mqtt-broker",
	})
}

// monitor is the running pipeline: poller into board, board out to sinks.
type monitor struct {
	cfg      *config.Config
	board    *r3status.Board
	poller   *poller.Poller
	recorder *metrics.Recorder
	logger   *slog.Logger
	source   string
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if useTUI && logFile == "" {
		logFile = "panelstat.log"
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

	mon, err := newMonitor(cfg, bus, logger)
	if err != nil {
		return err
	}
	mon.source = bus.Info()

	var wg sync.WaitGroup
	defer func() {
		stop()
		wg.Wait()
	}()

	if !noWeb {
		srv, err := webview.New(webview.Config{
			Listen:   cfg.Web.Listen,
			Username: cfg.Web.Username,
			Password: cfg.Web.Password,
			Version:  version,
		}, mon.board, mon.recorder.Handler(), logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx); err != nil {
				logger.Error("web server stopped", "error", err)
				stop()
			}
		}()
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqttsink.Connect(mqttsink.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      byte(cfg.MQTT.QoS),
			Retained: cfg.MQTT.Retained,
		}, logger)
		if err != nil {
			return err
		}

		updates, unsubscribe := mon.board.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer pub.Close()
			defer unsubscribe()
			pub.Run(ctx, updates)
		}()
	}

	if useTUI {
		return mon.runTUI(ctx, stop)
	}
	return mon.runText(ctx)
}

func newMonitor(cfg *config.Config, reader poller.Reader, logger *slog.Logger) (*monitor, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	groups := r3status.Group(cfg.Entries())
	if groups.Len() == 0 {
		return nil, config.ErrNoAddresses
	}

	p, err := poller.New(poller.Config{
		Interval: cfg.PollInterval(),
		Targets:  poller.Targets(groups),
	}, reader, logger)
	if err != nil {
		return nil, err
	}

	return &monitor{
		cfg:      cfg,
		board:    r3status.NewBoard(r3status.BuildChecklist(groups), mode),
		poller:   p,
		recorder: metrics.New(),
		logger:   logger,
	}, nil
}

// handle reconciles a finished cycle and feeds the metrics.
func (m *monitor) handle(c poller.Cycle) {
	if c.Err != nil {
		return
	}
	summary := m.board.Reconcile(c.Aggregate, c.At)
	m.recorder.Observe(m.board.Snapshot(), c.Duration)
	m.logger.Debug("cycle reconciled",
		"cycle", summary.Cycle,
		"observed", summary.Observed,
		"total", summary.Total,
		"duration", c.Duration)
}

// runTUI polls in the background and renders snapshots until the user quits
// or ctx ends.
func (m *monitor) runTUI(ctx context.Context, stop context.CancelFunc) error {
	tm := initialModel("PANELSTAT - R3-MS-KP CHECKLIST", m.source, m.poller.Stats, m.poller.ResetStats)
	p := tea.NewProgram(tm, tea.WithContext(ctx))

	updates, unsubscribe := m.board.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.poller.Run(ctx, m.handle)
	}()

	go func() {
		for snap := range updates {
			p.Send(snapshotMsg(snap))
		}
	}()

	_, err := p.Run()
	stop()
	<-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runText prints every reading and the summary each cycle, and statistics on
// an interval.
func (m *monitor) runText(ctx context.Context) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be > 0, got %d", statsInterval)
	}

	fmt.Printf("Panelstat - Monitor Mode\n")
	fmt.Printf("%s\n", m.source)
	fmt.Printf("Checklist: %d rows, match by %s\n", m.board.Summary().Total, m.board.Mode())
	if !noWeb {
		fmt.Printf("Web: http://%s/\n", displayAddr(m.cfg.Web.Listen))
	}
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	cycles := make(chan poller.Cycle, 1)
	go func() {
		defer close(cycles)
		m.poller.Run(ctx, func(c poller.Cycle) {
			m.handle(c)
			select {
			case cycles <- c:
			case <-ctx.Done():
			}
		})
	}()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case c, ok := <-cycles:
			if !ok {
				return nil
			}
			for _, r := range c.Aggregate.Readings() {
				fmt.Println(r3status.FormatReading(r))
			}
			fmt.Println(r3status.FormatSummary(m.board.Summary()))
			fmt.Println()

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(m.poller.Stats().String())
			fmt.Println()
		}
	}
}

// displayAddr turns ":5000" into "localhost:5000".
func displayAddr(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return "localhost" + listen
	}
	return listen
}
