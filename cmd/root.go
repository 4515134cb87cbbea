// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Thermoquad/panelstat/pkg/config"
)

const version = "1.0.0"

var (
	// Config file and logging flags
	cfgFile string
	logFile string

	// WebSocket connection flags (watch)
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	v = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "panelstat",
	Short: "R3-MS-KP status register monitor",
	Long: `Panelstat - A CLI tool for polling and testing R3-MS-KP fire/security
controller status registers over Modbus.

Every configured register is read once per cycle, decoded into the conditions
its bits flag, and reconciled against the checklist of every known state of
every configured device, actuator, security zone and fire zone. The checklist
is shown in a terminal UI, served as a web page and JSON/WebSocket API, exported
as Prometheus metrics and optionally published to MQTT.

Connection modes:
  Serial (RTU): --port /dev/ttyUSB0 [--baud 9600] [--unit-id 1]
  Modbus TCP:   --tcp 10.0.0.5:502 [--unit-id 1]
  Remote feed:  watch --url ws://host:5000/ws [--username user]

Settings are read from config.json (or --config), overridden by PANELSTAT_*
environment variables and then by flags. For WebSocket authentication, the
password is read from the PANELSTAT_PASSWORD environment variable, or prompted
interactively if not set.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default: config.{json,yaml,toml} in . or ./config)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file (TUI mode defaults to panelstat.log)")

	// Bus connection flags
	flags.StringP("port", "p", config.DefaultPort(), "Serial port device")
	flags.IntP("baud", "b", 9600, "Baud rate (serial only)")
	flags.Int("unit-id", 1, "Modbus unit (slave) id of the controller")
	flags.String("tcp", "", "Modbus TCP gateway host:port (replaces the serial port)")
	flags.Int("timeout-ms", 1000, "Per-read timeout in milliseconds")
	flags.Int("interval-ms", 2000, "Poll cycle interval in milliseconds")
	flags.String("match-mode", "identity", "Checklist join: identity or description")

	// WebSocket connection flags
	flags.StringVarP(&wsURL, "url", "u", "", "WebSocket URL of a running monitor (ws:// or wss://)")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	bindFlags(v, rootCmd, map[string]string{
		"log_level":        "log-level",
		"com_port":         "port",
		"baudrate":         "baud",
		"unit_id":          "unit-id",
		"tcp_gateway":      "tcp",
		"timeout_ms":       "timeout-ms",
		"poll_interval_ms": "interval-ms",
		"match_mode":       "match-mode",
	})
}

// bindFlags binds config keys to persistent flags so a flag set on the
// command line overrides the config file and environment.
func bindFlags(v *viper.Viper, c *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, c.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// bindLocalFlags is bindFlags for a subcommand's own flags.
func bindLocalFlags(v *viper.Viper, c *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, c.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// exitError carries a process exit code out of a command so that deferred
// cleanup runs before main exits.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// ExitCode returns the exit code for an error returned by Execute: the code
// a command attached, otherwise 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// loadConfig reads the config file and applies environment and flag
// overrides.
func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// newLogger builds the process logger. Logs go to w unless --log-file is
// set.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		w, closer = f, f
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
