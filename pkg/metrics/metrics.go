// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports reconciled checklists and read outcomes as
// Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

const namespace = "panelstat"

// Recorder holds the panelstat collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	rows          *prometheus.GaugeVec
	condition     *prometheus.GaugeVec
	registerValue *prometheus.GaugeVec
	reads         *prometheus.CounterVec
	cycles        prometheus.Counter
	cycleSeconds  prometheus.Histogram
	lastUpdate    prometheus.Gauge
}

// New creates a recorder with Go runtime and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checklist_rows",
			Help:      "Checklist rows by observation state.",
		}, []string{"state"}),
		condition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "condition_observed",
			Help:      "1 when the condition was observed in the last cycle, else 0.",
		}, []string{"class", "key", "condition"}),
		registerValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_value",
			Help:      "Last raw status register value per key.",
		}, []string{"class", "key"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Register reads by outcome.",
		}, []string{"outcome"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed poll cycles.",
		}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time to read every configured register once.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		lastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_update_timestamp_seconds",
			Help:      "Unix time of the last reconciliation.",
		}),
	}

	r.registry.MustRegister(
		r.rows,
		r.condition,
		r.registerValue,
		r.reads,
		r.cycles,
		r.cycleSeconds,
		r.lastUpdate,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Observe records one reconciled cycle. Call it once per cycle.
func (r *Recorder) Observe(snap r3status.Snapshot, cycle time.Duration) {
	r.cycles.Inc()
	r.cycleSeconds.Observe(cycle.Seconds())
	r.lastUpdate.Set(float64(snap.Summary.UpdatedAt.UnixNano()) / 1e9)

	r.rows.WithLabelValues("observed").Set(float64(snap.Summary.Observed))
	r.rows.WithLabelValues("not_observed").Set(float64(snap.Summary.NotObserved))

	for _, row := range snap.Rows {
		v := 0.0
		if row.Observed {
			v = 1
		}
		r.condition.WithLabelValues(row.Class.String(), row.Key, row.Name).Set(v)
	}

	for _, rd := range snap.Readings {
		r.reads.WithLabelValues(rd.Outcome.String()).Inc()
		if rd.Outcome.Observed() {
			r.registerValue.WithLabelValues(rd.Class.String(), rd.Key).Set(float64(rd.Value))
		} else {
			// No current value: drop the series rather than export the last one.
			r.registerValue.DeleteLabelValues(rd.Class.String(), rd.Key)
		}
	}
}
