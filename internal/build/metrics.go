// SPDX-License-Identifier: MPL-2.0

package build

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "droidpack"

// Metrics converts reports into Prometheus metrics.
type Metrics struct {
	registry  *prometheus.Registry
	builds    *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	artifacts *prometheus.GaugeVec
	duration  prometheus.Gauge
	exitCode  prometheus.Gauge
}

// NewMetrics returns metrics backed by a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "architecture_builds_total",
			Help:      "Architecture builds by outcome.",
		}, []string{"arch", "status", "failed_stage"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of toolchain stages.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"arch", "stage"}),
		artifacts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_size_bytes",
			Help:      "Size of produced packages.",
		}, []string{"arch"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time of the last build.",
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "build_exit_code",
			Help:      "Exit code of the last build.",
		}),
	}
	m.registry.MustRegister(m.builds, m.stages, m.artifacts, m.duration, m.exitCode)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe records r.
func (m *Metrics) Observe(r *Report) {
	for _, a := range r.Artifacts {
		m.builds.WithLabelValues(string(a.Arch), string(a.Status), a.FailedStage).Inc()
		for _, st := range a.Stages {
			if !st.Skipped {
				m.stages.WithLabelValues(string(a.Arch), st.Stage).Observe(st.Duration.Seconds())
			}
		}
		if a.OK() {
			m.artifacts.WithLabelValues(string(a.Arch)).Set(float64(a.Size))
		}
	}
	m.duration.Set(r.Duration.Seconds())
	m.exitCode.Set(float64(r.ExitCode()))
}

// WriteFile writes the metrics in the text exposition format, for the node
// exporter's textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
