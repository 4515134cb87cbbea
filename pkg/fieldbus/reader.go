// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fieldbus reads R3-MS-KP status registers over Modbus RTU (serial)
// or through a Modbus TCP gateway.
package fieldbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

// ErrNotConnected is returned by reads after Close.
var ErrNotConnected = errors.New("fieldbus: not connected")

// Config describes the bus connection. TCPGateway, when set, takes
// precedence over the serial settings.
type Config struct {
	Port       string
	BaudRate   int
	DataBits   int
	Parity     string
	StopBits   int
	UnitID     byte
	Timeout    time.Duration
	TCPGateway string
}

// Validate checks framing parameters before any port is opened.
func (c Config) Validate() error {
	if c.UnitID < 1 || c.UnitID > 247 {
		return fmt.Errorf("unit id %d out of range 1..247", c.UnitID)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if c.TCPGateway != "" {
		return nil
	}
	if c.Port == "" {
		return errors.New("serial port required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.DataBits != 7 && c.DataBits != 8 {
		return fmt.Errorf("invalid data bits %d (want 7 or 8)", c.DataBits)
	}
	switch strings.ToUpper(c.Parity) {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity %q (want N, E or O)", c.Parity)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fmt.Errorf("invalid stop bits %d (want 1 or 2)", c.StopBits)
	}
	return nil
}

// Describe returns a one-line description of the connection.
func (c Config) Describe() string {
	if c.TCPGateway != "" {
		return fmt.Sprintf("Modbus TCP: %s (unit %d)", c.TCPGateway, c.UnitID)
	}
	return fmt.Sprintf("Serial: %s @ %d %d%s%d (unit %d)",
		c.Port, c.BaudRate, c.DataBits, strings.ToUpper(c.Parity), c.StopBits, c.UnitID)
}

// registerClient is the part of modbus.Client the reader uses.
type registerClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Reader reads single holding registers from one unit. Requests are
// serialized.
type Reader struct {
	mu     sync.Mutex
	client registerClient
	closer io.Closer
	info   string
	logger *slog.Logger
}

// Open connects to the bus described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bus config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		handler modbus.ClientHandler
		conn    interface {
			Connect() error
			Close() error
		}
	)

	if cfg.TCPGateway != "" {
		h := modbus.NewTCPClientHandler(cfg.TCPGateway)
		h.SlaveId = cfg.UnitID
		h.Timeout = cfg.Timeout
		handler, conn = h, h
	} else {
		h := modbus.NewRTUClientHandler(cfg.Port)
		h.BaudRate = cfg.BaudRate
		h.DataBits = cfg.DataBits
		h.Parity = strings.ToUpper(cfg.Parity)
		h.StopBits = cfg.StopBits
		h.SlaveId = cfg.UnitID
		h.Timeout = cfg.Timeout
		handler, conn = h, h
	}

	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Describe(), err)
	}

	info := cfg.Describe()
	logger.Info("fieldbus connected", "connection", info)

	return &Reader{
		client: modbus.NewClient(handler),
		closer: conn,
		info:   info,
		logger: logger.With("component", "fieldbus"),
	}, nil
}

// Info returns the connection description.
func (r *Reader) Info() string {
	return r.info
}

// ReadRegister reads one holding register (function 3, quantity 1). A
// response shorter than two bytes is reported as r3status.ErrMalformed.
func (r *Reader) ReadRegister(ctx context.Context, address uint16) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return 0, ErrNotConnected
	}

	data, err := r.client.ReadHoldingRegisters(address, 1)
	if err != nil {
		return 0, fmt.Errorf("read register %d: %w", address, err)
	}
	if len(data) < 2 {
		r.logger.Warn("short register response", "address", address, "bytes", len(data))
		return 0, fmt.Errorf("read register %d: %d byte response: %w", address, len(data), r3status.ErrMalformed)
	}
	return binary.BigEndian.Uint16(data[:2]), nil
}

// Close releases the port or TCP connection. Further reads fail with
// ErrNotConnected.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	r.client = nil
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
