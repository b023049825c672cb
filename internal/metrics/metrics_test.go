package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementVisitorsCreated()
	m.IncrementTouches("page_view")
	m.IncrementTouches("page_view")
	m.IncrementCompletions("token")
	m.AddHandoffsExpired(3)
	m.AddHandoffsExpired(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VisitorsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TouchesRecorded.WithLabelValues("page_view")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionsReceived.WithLabelValues("token")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.HandoffsExpired))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncrementVisitorsCreated()
		m.IncrementTouches("form_view")
		m.IncrementHandoffsCreated()
		m.AddHandoffsExpired(1)
		m.IncrementCompletions("unmatched")
		m.IncrementRelayDropped()
		m.ObserveReport("attribution", time.Now())
	})
}
