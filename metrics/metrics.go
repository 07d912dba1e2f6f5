// Package metrics tracks frame-pipeline counters and exposes them in
// Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application counters. Counters are plain atomics so the
// hot path never touches a prometheus mutex; the registry reads them lazily
// through gauge functions on scrape.
type Metrics struct {
	FramesReceived  atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64 // busy or throttled, silent by design
	FramesRejected  atomic.Uint64 // validator rejections
	RepsCounted     atomic.Uint64
	EstimatorErrors atomic.Uint64
	PoseLostEvents  atomic.Uint64
	ActiveSessions  atomic.Int64
	TotalSessions   atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name string
		help string
		load func() float64
	}{
		{"repdetect_frames_received_total", "Frames received over the socket", func() float64 { return float64(m.FramesReceived.Load()) }},
		{"repdetect_frames_processed_total", "Frames that reached the detector", func() float64 { return float64(m.FramesProcessed.Load()) }},
		{"repdetect_frames_dropped_total", "Frames dropped by the one-in-flight/fps gate", func() float64 { return float64(m.FramesDropped.Load()) }},
		{"repdetect_frames_rejected_total", "Frames rejected by orientation/plant validation", func() float64 { return float64(m.FramesRejected.Load()) }},
		{"repdetect_reps_total", "Accepted repetitions", func() float64 { return float64(m.RepsCounted.Load()) }},
		{"repdetect_estimator_errors_total", "Estimator invocation failures", func() float64 { return float64(m.EstimatorErrors.Load()) }},
		{"repdetect_pose_lost_total", "Pose-lost episodes", func() float64 { return float64(m.PoseLostEvents.Load()) }},
		{"repdetect_sessions_active", "Currently connected detection sessions", func() float64 { return float64(m.ActiveSessions.Load()) }},
		{"repdetect_sessions_total", "Sessions started since boot", func() float64 { return float64(m.TotalSessions.Load()) }},
	}

	for _, c := range counters {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			c.load,
		))
	}
}

// Handler returns the scrape handler for mounting at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
