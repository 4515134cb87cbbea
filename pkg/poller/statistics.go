// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poller

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

// Stats is a point-in-time copy of the read statistics.
type Stats struct {
	StartTime     time.Time     `json:"start_time"`
	LastCycleTime time.Time     `json:"last_cycle_time"`
	LastCycle     time.Duration `json:"last_cycle_ns"`

	// Counters
	Cycles    uint64 `json:"cycles"`
	Reads     uint64 `json:"reads"`
	OK        uint64 `json:"ok"`
	Sentinel  uint64 `json:"sentinel"`
	Failures  uint64 `json:"failures"`
	Malformed uint64 `json:"malformed"`

	// Rates (calculated)
	ReadRate  float64 `json:"read_rate"`  // reads/sec
	ErrorRate float64 `json:"error_rate"` // errors/sec
}

// Errors returns failed plus malformed reads.
func (s Stats) Errors() uint64 {
	return s.Failures + s.Malformed
}

func (s *Stats) calculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ReadRate = float64(s.Reads) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s Stats) String() string {
	percent := func(n uint64) float64 {
		if s.Reads == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.Reads)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	fmt.Fprintf(&b, "Cycles:          %8d\n", s.Cycles)
	fmt.Fprintf(&b, "Reads:           %8d\n", s.Reads)
	fmt.Fprintf(&b, "OK:              %8d (%.1f%%)\n", s.OK, percent(s.OK))
	if s.Sentinel > 0 {
		fmt.Fprintf(&b, "No Link (0xffff):%8d (%.1f%%)\n", s.Sentinel, percent(s.Sentinel))
	}
	if s.Failures > 0 {
		fmt.Fprintf(&b, "Read Failures:   %8d (%.1f%%)\n", s.Failures, percent(s.Failures))
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&b, "Malformed:       %8d (%.1f%%)\n", s.Malformed, percent(s.Malformed))
	}
	fmt.Fprintf(&b, "Last Cycle:      %8s\n", s.LastCycle.Round(time.Millisecond))
	fmt.Fprintf(&b, "Read Rate:       %8.1f reads/sec\n", s.ReadRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// Statistics tracks read outcomes across cycles. Safe for concurrent use.
type Statistics struct {
	mu    sync.Mutex
	stats Stats
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{stats: Stats{StartTime: time.Now()}}
}

// Record counts one read outcome.
func (s *Statistics) Record(o r3status.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Reads++
	switch o {
	case r3status.OutcomeOK:
		s.stats.OK++
	case r3status.OutcomeSentinel:
		s.stats.Sentinel++
	case r3status.OutcomeMalformed:
		s.stats.Malformed++
	default:
		s.stats.Failures++
	}
}

// CycleDone counts a completed cycle.
func (s *Statistics) CycleDone(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Cycles++
	s.stats.LastCycle = d
	s.stats.LastCycleTime = time.Now()
}

// Snapshot returns a copy with rates calculated.
func (s *Statistics) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.calculateRates(time.Now())
	return out
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{StartTime: time.Now()}
}
