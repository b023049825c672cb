package handoffs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/internal/config"
	apierrors "codeberg.org/touchpath/server/internal/errors"
	"codeberg.org/touchpath/server/internal/logger"
	"codeberg.org/touchpath/server/internal/metrics"
	"codeberg.org/touchpath/server/internal/requestctx"
	"codeberg.org/touchpath/server/touchpath/touches"
	"codeberg.org/touchpath/server/touchpath/visitors"
	"github.com/google/uuid"
)

// resolves (or issues) the visitor identity for a request
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, rc *requestctx.RequestContext) (*visitors.Resolution, error)
}

// records handoff touches
type HandoffRecorder interface {
	Handoff(ctx context.Context, rc *requestctx.RequestContext, contextID, destinationURL, token string) (*touches.Touch, error)
}

// creates handoffs and drives their lifecycle
type Tracker struct {
	repo     Repository
	identity IdentityResolver
	recorder HandoffRecorder
	site     config.Site
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewTracker(
	repo Repository,
	identity IdentityResolver,
	recorder HandoffRecorder,
	site config.Site,
	m *metrics.Metrics,
) *Tracker {
	return &Tracker{
		repo:     repo,
		identity: identity,
		recorder: recorder,
		site:     site,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// creates a handoff for the visitor behind rc and returns the URLs to send them to.
// extraParams are appended to the destination alongside the isf_ref token.
func (t *Tracker) CreateHandoff(
	ctx context.Context,
	rc *requestctx.RequestContext,
	contextID, destinationURL string,
	extraParams map[string]string,
) (*Created, error) {
	destination, err := parseDestination(destinationURL)
	if err != nil {
		return nil, err
	}

	resolution, err := t.identity.ResolveOrCreate(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve visitor: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := rc.Now
	if now.IsZero() {
		now = t.now()
	}

	h := &Handoff{
		ID:             uuid.NewString(),
		Token:          token,
		VisitorID:      resolution.VisitorID,
		ContextID:      contextID,
		DestinationURL: destinationURL,
		RedirectURL:    appendParams(destination, extraParams, token),
		AccountNumber:  strings.TrimSpace(extraParams[ParamAccountNumber]),
		Snapshot:       campaign.Capture(rc, t.site),
		Status:         StatusRedirected,
		CreatedAt:      now,
	}

	if err := t.repo.Create(ctx, h); err != nil {
		return nil, err
	}

	t.metrics.IncrementHandoffsCreated()

	// the handoff stands even if the touch write fails
	if _, err := t.recorder.Handoff(ctx, rc, contextID, destinationURL, token); err != nil {
		logger.Warn("failed to record handoff touch",
			"token", token,
			"visitor_id", h.VisitorID,
			"error", err,
		)
	}

	return &Created{
		HandoffID:      h.ID,
		Token:          token,
		VisitorID:      h.VisitorID,
		RedirectURL:    h.RedirectURL,
		TrackingURL:    t.TrackingURL(token),
		DestinationURL: destinationURL,
		Visitor:        resolution,
	}, nil
}

// server-side redirect URL for a token
func (t *Tracker) TrackingURL(token string) string {
	path := "/go/" + token
	if t.site.URL == nil {
		return path
	}

	base := *t.site.URL
	base.Path = strings.TrimSuffix(base.Path, "/") + path
	base.RawQuery = ""
	base.Fragment = ""

	return base.String()
}

// read-only lookup; returns ErrHandoffNotFound for malformed or unknown tokens
func (t *Tracker) Lookup(ctx context.Context, token string) (*Handoff, error) {
	if !apierrors.IsValidHexID(token) {
		return nil, ErrHandoffNotFound
	}

	return t.repo.GetByToken(ctx, token)
}

// returns where to send the visitor for a token whatever its status, or ""
// when the token is malformed or unknown. never changes the handoff.
func (t *Tracker) ProcessRedirect(ctx context.Context, token string) (string, error) {
	h, err := t.Lookup(ctx, token)
	if errors.Is(err, ErrHandoffNotFound) {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	// rows written before redirect URLs were stored
	if h.RedirectURL == "" {
		return h.DestinationURL, nil
	}

	return h.RedirectURL, nil
}

// moves a redirected handoff to completed, stamped with the tracker clock;
// false for anything else
func (t *Tracker) MarkCompleted(ctx context.Context, token string, data CompletionData) (bool, error) {
	if !apierrors.IsValidHexID(token) {
		return false, nil
	}

	return t.repo.Complete(ctx, token, data, t.now())
}

// expires redirected handoffs older than hoursOld (168 when not positive)
func (t *Tracker) ExpireOldHandoffs(ctx context.Context, hoursOld int) (int64, error) {
	if hoursOld <= 0 {
		hoursOld = DefaultExpiryHours
	}

	now := t.now()
	cutoff := now.Add(-time.Duration(hoursOld) * time.Hour)

	n, err := t.repo.ExpireBefore(ctx, cutoff, now)
	if err != nil {
		return 0, err
	}

	t.metrics.AddHandoffsExpired(n)

	if n > 0 {
		logger.Info("expired stale handoffs", "count", n, "older_than_hours", hoursOld)
	}

	return n, nil
}

// handoff counts and completion rate (percent, two decimals)
func (t *Tracker) Stats(ctx context.Context, contextID string, from, to time.Time) (*Stats, error) {
	s, err := t.repo.Stats(ctx, contextID, from, to)
	if err != nil {
		return nil, err
	}

	if s.Total > 0 {
		s.CompletionRate = math.Round(float64(s.Completed)/float64(s.Total)*10000) / 100
	}

	return s, nil
}

func parseDestination(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidDestination
	}

	return u, nil
}

// destination with extra params and the isf_ref token merged into its query
func appendParams(destination *url.URL, extraParams map[string]string, token string) string {
	u := *destination
	q := u.Query()

	for k, v := range extraParams {
		if k == "" {
			continue
		}

		q.Set(k, v)
	}

	q.Set(campaign.ParamHandoffRef, token)
	u.RawQuery = q.Encode()

	return u.String()
}

// generates a random 128-bit handoff token as 32 lowercase hex characters
func generateToken() (string, error) {
	bytes := make([]byte, 16)

	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate handoff token: %w", err)
	}

	return hex.EncodeToString(bytes), nil
}
