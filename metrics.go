package spellbook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects probe and resolution counters. A nil *Metrics records nothing.
type Metrics struct {
	probeDuration prometheus.Histogram
	probeFailures prometheus.Counter
	barrierWaits  *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spellbook",
			Name:      "probe_duration_seconds",
			Help:      "Time spent probing the host application.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		probeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "probe_failures_total",
			Help:      "Probe steps that failed and were swallowed.",
		}),
		barrierWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "barrier_waits_total",
			Help:      "Barrier awaits from bindings by outcome.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "resolutions_total",
			Help:      "Symbol resolutions by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.probeDuration, m.probeFailures, m.barrierWaits, m.resolutions)
	}
	return m
}

func (m *Metrics) observeProbe(d time.Duration, failures int) {
	if m == nil {
		return
	}
	m.probeDuration.Observe(d.Seconds())
	m.probeFailures.Add(float64(failures))
}

func (m *Metrics) observeAwait(waited, open bool) {
	if m == nil {
		return
	}
	switch {
	case !waited:
		m.barrierWaits.WithLabelValues("open").Inc()
	case open:
		m.barrierWaits.WithLabelValues("released").Inc()
	default:
		m.barrierWaits.WithLabelValues("timeout").Inc()
	}
}

func (m *Metrics) observeResolution(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.resolutions.WithLabelValues("failure").Inc()
		return
	}
	m.resolutions.WithLabelValues("success").Inc()
}
