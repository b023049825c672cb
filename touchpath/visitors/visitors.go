package visitors

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/internal/config"
	"codeberg.org/touchpath/server/internal/device"
	apierrors "codeberg.org/touchpath/server/internal/errors"
	"codeberg.org/touchpath/server/internal/metrics"
	"codeberg.org/touchpath/server/internal/requestctx"
	"codeberg.org/touchpath/server/internal/strategy"
)

// dependencies for the visitor service
type Options struct {
	Site          config.Site
	Cookie        config.CookieConfig
	Fingerprinter *device.Fingerprinter
	Metrics       *metrics.Metrics
}

// issues, recognises and persists anonymous visitor identities
type Service struct {
	repo          Repository
	site          config.Site
	cookie        config.CookieConfig
	fingerprinter *device.Fingerprinter
	metrics       *metrics.Metrics
	listeners     *strategy.Registry[newVisitorEvent]
}

func NewService(repo Repository, opts Options) *Service {
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = config.DefaultCookieName
	}

	if opts.Cookie.LifetimeDays == 0 {
		opts.Cookie.LifetimeDays = config.DefaultCookieLifetimeDays
	}

	opts.Cookie.LifetimeDays = config.ClampCookieLifetime(opts.Cookie.LifetimeDays)

	return &Service{
		repo:          repo,
		site:          opts.Site,
		cookie:        opts.Cookie,
		fingerprinter: opts.Fingerprinter,
		metrics:       opts.Metrics,
		listeners:     strategy.NewRegistry[newVisitorEvent]("new_visitor_listener"),
	}
}

// registers a named callback fired after a visitor row is created.
// listener failures and panics are logged and never reach the request.
func (s *Service) OnNewVisitor(name string, fn Listener) {
	s.listeners.Register(name, func(e newVisitorEvent) (bool, error) {
		return true, fn(e.ctx, e.visitor)
	})
}

// resolves the visitor behind rc, creating one when nothing is recognised.
// priority: recognised external id, then a valid cookie, then a fresh id.
func (s *Service) ResolveOrCreate(ctx context.Context, rc *requestctx.RequestContext) (*Resolution, error) {
	now := rc.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if external := rc.ExternalVisitorID(); apierrors.IsValidHexID(external) {
		found, err := s.repo.RecordVisit(ctx, external, now)
		if err != nil {
			return nil, err
		}

		if found {
			return s.resolved(rc, external, false), nil
		}
	}

	if cookieID := rc.Cookie(s.cookie.Name); apierrors.IsValidHexID(cookieID) {
		found, err := s.repo.RecordVisit(ctx, cookieID, now)
		if err != nil {
			return nil, err
		}

		if found {
			return s.resolved(rc, cookieID, false), nil
		}

		// valid cookie but no row (e.g. store reset): keep the browser's id
		if err := s.create(ctx, rc, cookieID, now); err != nil {
			return nil, err
		}

		return s.resolved(rc, cookieID, true), nil
	}

	id, err := generateVisitorID()
	if err != nil {
		return nil, err
	}

	if err := s.create(ctx, rc, id, now); err != nil {
		return nil, err
	}

	return s.resolved(rc, id, true), nil
}

// read-only lookup of the visitor id carried by rc; never touches the store.
// an id already resolved for this request wins, then the identity cookie, then
// the external id header. the header cannot be checked against the store here,
// so it only counts when the browser carries no cookie.
func (s *Service) CurrentID(rc *requestctx.RequestContext) (string, bool) {
	candidates := []string{
		rc.ResolvedVisitorID,
		rc.Cookie(s.cookie.Name),
		rc.ExternalVisitorID(),
	}

	for _, id := range candidates {
		if apierrors.IsValidHexID(id) {
			return id, true
		}
	}

	return "", false
}

// fetches a stored visitor
func (s *Service) Get(ctx context.Context, id string) (*Visitor, error) {
	if !apierrors.IsValidHexID(id) {
		return nil, ErrVisitorNotFound
	}

	return s.repo.Get(ctx, id)
}

// stores the email hash on the visitor for later completion matching.
// false when the id or email is unusable or the visitor is unknown.
func (s *Service) LinkEmail(ctx context.Context, visitorID, email string) (bool, error) {
	if !apierrors.IsValidHexID(visitorID) {
		return false, nil
	}

	hash := HashEmail(email)
	if hash == "" {
		return false, nil
	}

	return s.repo.SetEmailHash(ctx, visitorID, hash)
}

// visitor ids previously linked to email
func (s *Service) FindByEmail(ctx context.Context, email string) ([]string, error) {
	hash := HashEmail(email)
	if hash == "" {
		return nil, nil
	}

	return s.repo.FindByEmailHash(ctx, hash)
}

// builds the identity cookie for id
func (s *Service) Cookie(id string) *http.Cookie {
	maxAge := s.cookie.LifetimeDays * 24 * 60 * 60

	return &http.Cookie{
		Name:     s.cookie.Name,
		Value:    id,
		Path:     "/",
		Domain:   s.cookie.Domain,
		MaxAge:   maxAge,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		Secure:   s.site.TLS,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// name of the identity cookie
func (s *Service) CookieName() string {
	return s.cookie.Name
}

// SHA-256 hex of the trimmed, lower-cased email; "" for blank input
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (s *Service) create(ctx context.Context, rc *requestctx.RequestContext, id string, now time.Time) error {
	userAgent := rc.UserAgent()

	v := &Visitor{
		ID: id,
		FingerprintHash: s.fingerprinter.Compute(
			userAgent,
			rc.HeaderValue("Accept-Language"),
			rc.HeaderValue("Accept-Encoding"),
		),
		FirstSeenAt: now,
		LastSeenAt:  now,
		VisitCount:  1,
		FirstTouch:  campaign.Capture(rc, s.site),
		Device:      device.Parse(userAgent),
	}

	// check-then-create: two first requests carrying the same unseen id can
	// both reach here; the loser gets ErrDuplicateID from the store
	if err := s.repo.Create(ctx, v); err != nil {
		return fmt.Errorf("failed to create visitor: %w", err)
	}

	s.metrics.IncrementVisitorsCreated()
	s.listeners.Run(newVisitorEvent{ctx: ctx, visitor: v})

	return nil
}

func (s *Service) resolved(rc *requestctx.RequestContext, id string, isNew bool) *Resolution {
	rc.ResolvedVisitorID = id

	return &Resolution{
		VisitorID: id,
		IsNew:     isNew,
		Cookie:    s.Cookie(id),
	}
}

// generates a random 128-bit visitor id as 32 lowercase hex characters
func generateVisitorID() (string, error) {
	bytes := make([]byte, 16)

	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate visitor ID: %w", err)
	}

	return hex.EncodeToString(bytes), nil
}
