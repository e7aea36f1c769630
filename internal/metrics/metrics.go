// Package metrics exports tree build measurements to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quillaja/bhtree/internal/tree"
)

const namespace = "bhtree"

// build outcomes
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// BuildMetrics holds the collectors for tree builds. Every operation is
// safe for concurrent use.
type BuildMetrics struct {
	// Builds counts builds by status (success, failed).
	Builds *prometheus.CounterVec
	// Duration is the wall time of successful builds.
	Duration prometheus.Histogram
	// Cells, Bodies, MaxLevel and RootSize describe the last good tree.
	Cells    prometheus.Gauge
	Bodies   prometheus.Gauge
	MaxLevel prometheus.Gauge
	RootSize prometheus.Gauge
	// Allocated is the size of the cell arena, which only grows.
	Allocated prometheus.Gauge
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func New(reg prometheus.Registerer) *BuildMetrics {
	m := &BuildMetrics{
		Builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Total number of tree builds by status",
			},
			[]string{"status"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of successful tree builds in seconds",
				Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
			},
		),
		Cells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cells_in_use",
			Help:      "Cells in the most recent tree",
		}),
		Bodies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bodies_in_tree",
			Help:      "Bodies inserted into the most recent tree",
		}),
		MaxLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_level",
			Help:      "Deepest level reached by the most recent tree",
		}),
		RootSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "root_size",
			Help:      "Width of the root cell",
		}),
		Allocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cells_allocated",
			Help:      "Cells ever allocated by the tree arena",
		}),
	}

	reg.MustRegister(m.Builds, m.Duration, m.Cells, m.Bodies, m.MaxLevel, m.RootSize, m.Allocated)
	return m
}

// ObserveBuild records a successful build.
func (m *BuildMetrics) ObserveBuild(s tree.Stats) {
	m.Builds.WithLabelValues(StatusSuccess).Inc()
	m.Duration.Observe(s.Elapsed.Seconds())
	m.Cells.Set(float64(s.Cells))
	m.Bodies.Set(float64(s.Bodies))
	m.MaxLevel.Set(float64(s.MaxLevel))
	m.RootSize.Set(s.RootSize)
	m.Allocated.Set(float64(s.Allocated))
}

// ObserveFailure records a failed build. Gauges keep describing the last
// good tree.
func (m *BuildMetrics) ObserveFailure() {
	m.Builds.WithLabelValues(StatusFailed).Inc()
}
