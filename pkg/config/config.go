// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads panelstat settings from a config file, PANELSTAT_*
// environment variables and command line flags.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/panelstat/pkg/fieldbus"
	"github.com/Thermoquad/panelstat/pkg/r3status"
)

// EnvPrefix is the prefix of environment overrides (PANELSTAT_BAUDRATE,
// PANELSTAT_WEB_LISTEN, ...).
const EnvPrefix = "PANELSTAT"

// ErrNoAddresses is returned when no configured address belongs to a device
// class.
var ErrNoAddresses = errors.New("no classified register addresses configured")

// WebConfig configures the HTTP checklist view.
type WebConfig struct {
	Listen   string `mapstructure:"listen"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MQTTConfig configures snapshot publishing. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
	Retained bool   `mapstructure:"retained"`
}

// Config is the full process configuration.
type Config struct {
	ComPort        string            `mapstructure:"com_port"`
	BaudRate       int               `mapstructure:"baudrate"`
	UnitID         int               `mapstructure:"unit_id"`
	ByteSize       int               `mapstructure:"bytesize"`
	Parity         string            `mapstructure:"parity"`
	StopBits       int               `mapstructure:"stopbits"`
	TimeoutMS      int               `mapstructure:"timeout_ms"`
	PollIntervalMS int               `mapstructure:"poll_interval_ms"`
	TCPGateway     string            `mapstructure:"tcp_gateway"`
	MatchMode      string            `mapstructure:"match_mode"`
	LogLevel       string            `mapstructure:"log_level"`
	Address        map[string]string `mapstructure:"-"`
	Web            WebConfig         `mapstructure:"web"`
	MQTT           MQTTConfig        `mapstructure:"mqtt"`
}

// DefaultPort returns the serial port used when none is configured.
func DefaultPort() string {
	if runtime.GOOS == "windows" {
		return "COM3"
	}
	return "/dev/ttyUSB0"
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("com_port", DefaultPort())
	v.SetDefault("baudrate", 9600)
	v.SetDefault("unit_id", 1)
	v.SetDefault("bytesize", 8)
	v.SetDefault("parity", "N")
	v.SetDefault("stopbits", 1)
	v.SetDefault("timeout_ms", 1000)
	v.SetDefault("poll_interval_ms", 2000)
	v.SetDefault("tcp_gateway", "")
	v.SetDefault("match_mode", "identity")
	v.SetDefault("log_level", "info")
	v.SetDefault("web.listen", ":5000")
	v.SetDefault("web.username", "")
	v.SetDefault("web.password", "")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "panelstat/checklist")
	v.SetDefault("mqtt.client_id", "panelstat")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path into v and decodes it. With an empty
// path, config.{json,yaml,toml} is searched in . and ./config; a missing file
// is not an error in that case.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	addresses, err := readAddresses(v.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Address = addresses
	return &cfg, nil
}

// readAddresses decodes the address table from the config file itself.
// Viper lowercases keys and splits them on dots, but address keys are
// free-form names that are grouped by case-sensitive substring.
func readAddresses(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Address map[string]any `json:"address" yaml:"address" toml:"address"`
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&doc)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &doc)
	case "toml":
		err = toml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("unsupported config type %q (use json, yaml or toml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}

	addresses := make(map[string]string, len(doc.Address))
	for key, raw := range doc.Address {
		switch val := raw.(type) {
		case nil:
			addresses[key] = ""
		case string:
			addresses[key] = val
		case json.Number, int, int64, uint64, float64:
			addresses[key] = fmt.Sprint(val)
		default:
			return nil, fmt.Errorf("address %q: expected a string or number, got %T", key, raw)
		}
	}
	return addresses, nil
}

// Entries returns the configured addresses sorted by key. Blank addresses
// are included; the grouper skips them.
func (c *Config) Entries() []r3status.AddressEntry {
	keys := make([]string, 0, len(c.Address))
	for k := range c.Address {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]r3status.AddressEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, r3status.AddressEntry{Key: k, Address: c.Address[k]})
	}
	return entries
}

// Timeout returns the per-read timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// PollInterval returns the cycle interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Mode parses the match mode.
func (c *Config) Mode() (r3status.MatchMode, error) {
	return r3status.ParseMatchMode(c.MatchMode)
}

// Level parses the log level (debug, info, warn, error).
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Bus returns the field bus settings.
func (c *Config) Bus() fieldbus.Config {
	unit := c.UnitID
	if unit < 0 || unit > 255 {
		unit = 0
	}
	return fieldbus.Config{
		Port:       c.ComPort,
		BaudRate:   c.BaudRate,
		DataBits:   c.ByteSize,
		Parity:     c.Parity,
		StopBits:   c.StopBits,
		UnitID:     byte(unit),
		Timeout:    c.Timeout(),
		TCPGateway: c.TCPGateway,
	}
}

// ValidateAddresses checks that at least one non-blank address belongs to a
// device class.
func (c *Config) ValidateAddresses() error {
	if r3status.Group(c.Entries()).Len() == 0 {
		return ErrNoAddresses
	}
	return nil
}

// Validate checks everything the monitor needs.
func (c *Config) Validate() error {
	// Bus narrows the unit id to a byte; check the configured value first.
	if c.UnitID < 1 || c.UnitID > 247 {
		return fmt.Errorf("unit id %d out of range 1..247", c.UnitID)
	}
	if err := c.Bus().Validate(); err != nil {
		return err
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be > 0, got %d", c.PollIntervalMS)
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return c.ValidateAddresses()
}
