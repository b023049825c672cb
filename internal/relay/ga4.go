package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"codeberg.org/touchpath/server/internal/logger"
	"codeberg.org/touchpath/server/internal/metrics"
	"golang.org/x/time/rate"
)

// relays conversion events to GA4 from a single background worker.
// a nil *GA4 accepts and discards events.
type GA4 struct {
	cfg        GA4Config
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// starts the relay worker; returns nil when GA4 is not configured
func NewGA4(cfg GA4Config, m *metrics.Metrics) *GA4 {
	if !cfg.Enabled() {
		return nil
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = ga4CollectURL
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	g := &GA4{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: ga4Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		limiter: rate.NewLimiter(defaultRateLimit, defaultRateBurst),
		metrics: m,
		queue:   make(chan Event, cfg.QueueSize),
		done:    make(chan struct{}),
	}

	go g.run()

	return g
}

// queues e without blocking; false when the relay is closed or the queue is full
func (g *GA4) Enqueue(e Event) bool {
	if g == nil {
		return false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return false
	}

	select {
	case g.queue <- e:
		return true
	default:
		g.metrics.IncrementRelayDropped()
		logger.Warn("ga4 relay queue full, dropping event", "event", e.Name)
		return false
	}
}

// sends e synchronously
func (g *GA4) Send(ctx context.Context, e Event) error {
	if e.ClientID == "" {
		return fmt.Errorf("ga4 event %q has no client id", e.Name)
	}

	payload := ga4Payload{
		ClientID: e.ClientID,
		Events:   []Event{e},
	}

	if !e.Timestamp.IsZero() {
		payload.TimestampMicros = e.Timestamp.UnixMicro()
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ga4 payload: %w", err)
	}

	endpoint, err := url.Parse(g.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid ga4 endpoint: %w", err)
	}

	q := endpoint.Query()
	q.Set("measurement_id", g.cfg.MeasurementID)
	q.Set("api_secret", g.cfg.APISecret)
	endpoint.RawQuery = q.Encode()

	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ga4 event: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet)) //nolint:errcheck
		return fmt.Errorf("ga4 request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// stops accepting events, drains the queue and releases idle connections
func (g *GA4) Close() {
	if g == nil {
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}

	g.closed = true
	close(g.queue)
	g.mu.Unlock()

	<-g.done
	g.httpClient.CloseIdleConnections()
}

func (g *GA4) run() {
	defer close(g.done)

	for e := range g.queue {
		ctx, cancel := context.WithTimeout(context.Background(), ga4Timeout)

		if err := g.Send(ctx, e); err != nil {
			logger.Warn("ga4 relay failed", "event", e.Name, "error", err)
		}

		cancel()
	}
}

// conversion event for a completed handoff
func ConversionEvent(visitorID, contextID, strategy string, at time.Time) Event {
	return Event{
		ClientID:  visitorID,
		Name:      "handoff_completed",
		Timestamp: at,
		Params: map[string]any{
			"context_id":     contextID,
			"match_strategy": strategy,
		},
	}
}
