package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// Metrics holds all Prometheus metrics for the scanner
type Metrics struct {
	FramesOffered       prometheus.Counter
	FramesDropped       prometheus.Counter
	Outcomes            *prometheus.CounterVec
	Matches             *prometheus.CounterVec
	RecognitionDuration prometheus.Histogram
	GateBusy            prometheus.Gauge
}

// New creates and registers all Prometheus metrics on reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesOffered: factory.NewCounter(prometheus.CounterOpts{
			Name: "mrz_frames_offered_total",
			Help: "Total number of frames offered to the scanner",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mrz_frames_dropped_total",
			Help: "Frames dropped because a recognition was already in flight",
		}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mrz_scan_outcomes_total",
			Help: "Dispatched scan outcomes by kind",
		}, []string{"outcome"}),
		Matches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mrz_matches_total",
			Help: "Successful matches by MRZ format",
		}, []string{"format"}),
		RecognitionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mrz_recognition_duration_seconds",
			Help:    "Wall-clock time from admission to dispatch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		GateBusy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mrz_gate_busy",
			Help: "1 while a recognition is in flight",
		}),
	}
}

// ObserveOffered records an offered frame and whether it was admitted
func (m *Metrics) ObserveOffered(admitted bool) {
	if m == nil {
		return
	}
	m.FramesOffered.Inc()
	if admitted {
		m.GateBusy.Set(1)
	} else {
		m.FramesDropped.Inc()
	}
}

// ObserveOutcome records a dispatched outcome. format is empty unless the
// outcome is a match.
func (m *Metrics) ObserveOutcome(outcome, format string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeMatch {
		m.Matches.WithLabelValues(format).Inc()
	}
	m.RecognitionDuration.Observe(elapsed.Seconds())
}

// ObserveReleased marks the gate as open again
func (m *Metrics) ObserveReleased() {
	if m == nil {
		return
	}
	m.GateBusy.Set(0)
}
