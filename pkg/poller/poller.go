// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package poller drives one read of every configured status register per
// cycle and aggregates the decoded conditions for reconciliation.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

// Reader reads one holding register. Implementations may block up to their
// configured timeout.
type Reader interface {
	ReadRegister(ctx context.Context, address uint16) (uint16, error)
}

// Target is one (class, key) pair to read every cycle. Err is set when the
// configured address cannot be parsed; such targets report Malformed.
type Target struct {
	Class    r3status.DeviceClass
	Key      string
	Address  string
	Register uint16
	Err      error
}

// Targets flattens groups into read targets in class order.
func Targets(groups r3status.Groups) []Target {
	var targets []Target
	for _, c := range r3status.Classes {
		for _, e := range groups[c] {
			reg, err := e.Register()
			targets = append(targets, Target{
				Class:    c,
				Key:      e.Key,
				Address:  e.Address,
				Register: reg,
				Err:      err,
			})
		}
	}
	return targets
}

// Config is the runtime config of a poller.
type Config struct {
	Interval time.Duration
	Targets  []Target
}

// Cycle is the result of one pass over every target.
type Cycle struct {
	At        time.Time
	Duration  time.Duration
	Aggregate *r3status.Aggregate
	// Err is set when the cycle was cut short by context cancellation.
	Err error
}

// Poller reads targets serially, one cycle at a time.
type Poller struct {
	cfg    Config
	reader Reader
	logger *slog.Logger
	stats  *Statistics
}

// New creates a poller. Targets with unparseable addresses are logged once
// here and reported as Malformed on every cycle.
func New(cfg Config, reader Reader, logger *slog.Logger) (*Poller, error) {
	if reader == nil {
		return nil, errors.New("poller: reader required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(cfg.Targets) == 0 {
		return nil, errors.New("poller: at least one target required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "poller")

	for _, t := range cfg.Targets {
		if t.Err != nil {
			logger.Warn("address will never be read", "class", t.Class.String(), "key", t.Key, "error", t.Err)
		}
	}

	return &Poller{
		cfg:    cfg,
		reader: reader,
		logger: logger,
		stats:  NewStatistics(),
	}, nil
}

// Stats returns a copy of the read statistics.
func (p *Poller) Stats() Stats {
	return p.stats.Snapshot()
}

// ResetStats clears the read statistics.
func (p *Poller) ResetStats() {
	p.stats.Reset()
}

// PollOnce reads every target once. A failed read contributes no conditions
// to the aggregate; it never aborts the cycle. Cancellation is checked
// between reads only.
func (p *Poller) PollOnce(ctx context.Context) Cycle {
	start := time.Now()
	agg := r3status.NewAggregate()

	for _, t := range p.cfg.Targets {
		if err := ctx.Err(); err != nil {
			return Cycle{At: time.Now(), Duration: time.Since(start), Aggregate: agg, Err: err}
		}
		r := p.read(ctx, t)
		p.stats.Record(r.Outcome)
		agg.Record(r)
	}

	cycle := Cycle{At: time.Now(), Duration: time.Since(start), Aggregate: agg}
	p.stats.CycleDone(cycle.Duration)
	return cycle
}

func (p *Poller) read(ctx context.Context, t Target) r3status.Reading {
	r := r3status.Reading{Class: t.Class, Key: t.Key, Address: t.Address}

	if t.Err != nil {
		r.Outcome = r3status.OutcomeMalformed
		r.Err = t.Err.Error()
		return r
	}

	value, err := p.reader.ReadRegister(ctx, t.Register)
	if err != nil {
		r.Err = err.Error()
		r.Outcome = r3status.OutcomeReadFailure
		if errors.Is(err, r3status.ErrMalformed) {
			r.Outcome = r3status.OutcomeMalformed
		}
		p.logger.Debug("read failed", "key", t.Key, "address", t.Register, "outcome", r.Outcome.String(), "error", err)
		return r
	}

	r.Value = value
	r.Conditions = r3status.Decode(value, t.Class)
	r.Outcome = r3status.OutcomeOK
	if value == r3status.SentinelValue {
		r.Outcome = r3status.OutcomeSentinel
	}
	return r
}

// Run polls immediately and then once per interval until ctx is done,
// handing every complete cycle to handle. Cycles never overlap.
func (p *Poller) Run(ctx context.Context, handle func(Cycle)) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		cycle := p.PollOnce(ctx)
		if cycle.Err != nil {
			return
		}
		handle(cycle)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
