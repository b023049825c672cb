package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// counters and histograms for the tracking pipeline.
// all methods are safe on a nil receiver so callers can skip metrics in tests.
type Metrics struct {
	VisitorsCreated     prometheus.Counter
	TouchesRecorded     *prometheus.CounterVec
	HandoffsCreated     prometheus.Counter
	HandoffsExpired     prometheus.Counter
	CompletionsReceived *prometheus.CounterVec
	RelayDropped        prometheus.Counter
	ReportDuration      *prometheus.HistogramVec
}

// registers all collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		VisitorsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "touchpath_visitors_created_total",
			Help: "Total number of visitor records created",
		}),
		TouchesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "touchpath_touches_recorded_total",
			Help: "Total number of touches recorded by type",
		}, []string{"type"}),
		HandoffsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "touchpath_handoffs_created_total",
			Help: "Total number of handoffs created",
		}),
		HandoffsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "touchpath_handoffs_expired_total",
			Help: "Total number of handoffs moved to expired",
		}),
		CompletionsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "touchpath_completions_received_total",
			Help: "Total number of external completions by match strategy",
		}, []string{"strategy"}),
		RelayDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "touchpath_relay_events_dropped_total",
			Help: "Total number of outbound relay events dropped because the queue was full",
		}),
		ReportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "touchpath_report_build_seconds",
			Help:    "Time spent building attribution reports",
			Buckets: prometheus.DefBuckets,
		}, []string{"report"}),
	}
}

func (m *Metrics) IncrementVisitorsCreated() {
	if m == nil {
		return
	}

	m.VisitorsCreated.Inc()
}

func (m *Metrics) IncrementTouches(touchType string) {
	if m == nil {
		return
	}

	m.TouchesRecorded.WithLabelValues(touchType).Inc()
}

func (m *Metrics) IncrementHandoffsCreated() {
	if m == nil {
		return
	}

	m.HandoffsCreated.Inc()
}

func (m *Metrics) AddHandoffsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}

	m.HandoffsExpired.Add(float64(n))
}

// strategy is "unmatched" when no matcher hit
func (m *Metrics) IncrementCompletions(strategy string) {
	if m == nil {
		return
	}

	m.CompletionsReceived.WithLabelValues(strategy).Inc()
}

func (m *Metrics) IncrementRelayDropped() {
	if m == nil {
		return
	}

	m.RelayDropped.Inc()
}

func (m *Metrics) ObserveReport(report string, started time.Time) {
	if m == nil {
		return
	}

	m.ReportDuration.WithLabelValues(report).Observe(time.Since(started).Seconds())
}
