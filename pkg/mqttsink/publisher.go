// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttsink publishes reconciled checklist snapshots to an MQTT
// broker.
package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

// Config configures the publisher.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retained bool
	Timeout  time.Duration
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends one JSON message per snapshot.
type Publisher struct {
	cfg    Config
	client client
	logger *slog.Logger
}

// Connect opens a connection to the broker. Reconnects after a lost
// connection are handled by the client.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt: topic required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt", "broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("connection lost", "error", err)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}

	return newPublisher(cfg, c, logger), nil
}

func newPublisher(cfg Config, c client, logger *slog.Logger) *Publisher {
	return &Publisher{cfg: cfg, client: c, logger: logger}
}

// Publish sends snap as JSON and waits for the broker to accept it.
func (p *Publisher) Publish(snap r3status.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("mqtt: encode snapshot: %w", err)
	}

	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retained, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", p.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", p.cfg.Topic, err)
	}
	return nil
}

// Run publishes every snapshot received on updates until ctx is done or
// updates is closed. Publish errors are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, updates <-chan r3status.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.Summary.Cycle == 0 {
				continue
			}
			if err := p.Publish(snap); err != nil {
				p.logger.Warn("publish failed", "cycle", snap.Summary.Cycle, "error", err)
			}
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
