package relay

import "time"

const (
	ga4CollectURL = "https://www.google-analytics.com/mp/collect"

	ga4Timeout     = 10 * time.Second
	webhookTimeout = 15 * time.Second

	// pending GA4 events held before new ones are dropped
	DefaultQueueSize = 256

	// GA4 sends per second, burst
	defaultRateLimit = 20
	defaultRateBurst = 5

	// bytes of a webhook response kept for diagnostics
	maxResponseSnippet = 2048

	userAgent = "touchpath-relay/1.0"
)

// GA4 Measurement Protocol credentials
type GA4Config struct {
	MeasurementID string
	APISecret     string

	// overrides the collect endpoint (tests)
	Endpoint  string
	QueueSize int
}

func (c GA4Config) Enabled() bool {
	return c.MeasurementID != "" && c.APISecret != ""
}

// one GA4 event for a visitor
type Event struct {
	ClientID  string         `json:"-"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp time.Time      `json:"-"`
}

type ga4Payload struct {
	ClientID        string  `json:"client_id"`
	TimestampMicros int64   `json:"timestamp_micros,omitempty"`
	Events          []Event `json:"events"`
}

// outcome of a webhook delivery; failures are reported here, never as errors
type DeliveryResult struct {
	Delivered  bool   `json:"delivered"`
	StatusCode int    `json:"status_code,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
}

// body posted to webhook endpoints
type Envelope struct {
	Event   string    `json:"event"`
	SentAt  time.Time `json:"sent_at"`
	Payload any       `json:"payload"`
}
