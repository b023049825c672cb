package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"codeberg.org/touchpath/server/internal/logger"
	"codeberg.org/touchpath/server/internal/signature"
)

var (
	ErrInvalidTarget = errors.New("target must be an absolute http(s) URL")
	ErrPrivateTarget = errors.New("target resolves to a loopback or private address")
)

// blocked alongside the stdlib private ranges (carrier-grade NAT)
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// posts signed JSON envelopes to partner endpoints
type Webhook struct {
	secret       string
	allowPrivate bool
	httpClient   *http.Client
	now          func() time.Time
}

type WebhookOption func(*Webhook)

// permits loopback and private targets (local receivers in development and tests)
func WithPrivateTargets() WebhookOption {
	return func(w *Webhook) {
		w.allowPrivate = true
	}
}

func NewWebhook(secret string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		secret: secret,
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(w)
	}

	// checked again after DNS resolution so a public name cannot point inwards
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}

			if addr, err := netip.ParseAddr(host); err == nil && !w.allowed(addr) {
				return ErrPrivateTarget
			}

			return nil
		},
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	w.httpClient = &http.Client{
		Timeout:   webhookTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return http.ErrUseLastResponse
			}

			return w.CheckTarget(req.URL.String())
		},
	}

	return w
}

// rejects malformed targets and hosts that are literal loopback or private addresses
func (w *Webhook) CheckTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidTarget
	}

	host := strings.ToLower(u.Hostname())
	if w.allowPrivate {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ErrPrivateTarget
	}

	if addr, err := netip.ParseAddr(host); err == nil && !w.allowed(addr) {
		return ErrPrivateTarget
	}

	return nil
}

func (w *Webhook) allowed(addr netip.Addr) bool {
	if w.allowPrivate {
		return true
	}

	addr = addr.Unmap()

	return !(addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		sharedAddressSpace.Contains(addr))
}

// posts payload to target; every failure is reported in the result
func (w *Webhook) Deliver(ctx context.Context, target, event string, payload any) *DeliveryResult {
	started := time.Now()
	result := &DeliveryResult{}

	defer func() {
		result.DurationMS = time.Since(started).Milliseconds()
	}()

	if err := w.CheckTarget(target); err != nil {
		result.Error = err.Error()
		return result
	}

	u, _ := url.Parse(target) //nolint:errcheck // validated by CheckTarget

	body, err := json.Marshal(Envelope{Event: event, SentAt: w.now(), Payload: payload})
	if err != nil {
		result.Error = "failed to encode payload"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		result.Error = "failed to create request"
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-ISF-Event", event)

	// outbound deliveries carry the bare hex digest
	if w.secret != "" {
		req.Header.Set(signature.Header, signature.Sign(w.secret, body))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		logger.Warn("webhook delivery failed", "target_host", u.Host, "error", err)
		result.Error = err.Error()
		return result
	}

	defer resp.Body.Close() //nolint:errcheck

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet)) //nolint:errcheck

	result.StatusCode = resp.StatusCode
	result.Response = string(snippet)
	result.Delivered = resp.StatusCode >= 200 && resp.StatusCode < 300

	return result
}

// sends a "webhook.test" envelope so partners can verify their signature checks
func (w *Webhook) DeliverTest(ctx context.Context, target string) *DeliveryResult {
	return w.Deliver(ctx, target, "webhook.test", map[string]any{
		"message": "touchpath webhook test",
	})
}

// releases idle connections
func (w *Webhook) Close() {
	w.httpClient.CloseIdleConnections()
}
