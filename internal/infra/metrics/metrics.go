// Package metrics provides prometheus collectors for playback sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure kinds.
const (
	KindResolution = "resolution"
	KindTransport  = "transport"
)

// Metrics holds the playback collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsActive  prometheus.Gauge
	tracksEnqueued  prometheus.Counter
	tracksSkipped   prometheus.Counter
	tracksPlayed    prometheus.Counter
	trackFailures   *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "voicebox_sessions_active", Help: "Playback sessions currently registered"},
		),
		tracksEnqueued: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "voicebox_tracks_enqueued_total", Help: "Tracks appended to session queues"},
		),
		tracksSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "voicebox_tracks_rejected_total", Help: "Expanded entries dropped at enqueue time"},
		),
		tracksPlayed: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "voicebox_tracks_played_total", Help: "Tracks that started playback"},
		),
		trackFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "voicebox_track_failures_total", Help: "Tracks dropped by the control loop"},
			[]string{"kind"},
		),
		resolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicebox_resolve_duration_seconds",
				Help:    "Media resolver latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"op"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.sessionsActive,
			m.tracksEnqueued,
			m.tracksSkipped,
			m.tracksPlayed,
			m.trackFailures,
			m.resolveDuration,
		)
	}
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) TracksEnqueued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tracksEnqueued.Add(float64(n))
}

func (m *Metrics) TracksRejected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tracksSkipped.Add(float64(n))
}

func (m *Metrics) TrackPlayed() {
	if m == nil {
		return
	}
	m.tracksPlayed.Inc()
}

// TrackFailed counts a track dropped by the control loop.
func (m *Metrics) TrackFailed(kind string) {
	if m == nil {
		return
	}
	m.trackFailures.WithLabelValues(kind).Inc()
}

// ObserveResolve records resolver latency for op ("resolve" or "playable").
func (m *Metrics) ObserveResolve(op string, started time.Time) {
	if m == nil {
		return
	}
	m.resolveDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
