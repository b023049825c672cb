package touches

import (
	"context"
	"fmt"
	"maps"
	"time"

	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/internal/config"
	apierrors "codeberg.org/touchpath/server/internal/errors"
	"codeberg.org/touchpath/server/internal/metrics"
	"codeberg.org/touchpath/server/internal/requestctx"
	"github.com/oklog/ulid/v2"
)

// appends touches for resolved visitors
type Recorder struct {
	repo     Repository
	visitors VisitorResolver
	site     config.Site
	metrics  *metrics.Metrics
}

func NewRecorder(repo Repository, visitors VisitorResolver, site config.Site, m *metrics.Metrics) *Recorder {
	return &Recorder{
		repo:     repo,
		visitors: visitors,
		site:     site,
		metrics:  m,
	}
}

// records a touch for the visitor behind rc.
// returns nil, nil for an unknown type or when no visitor can be resolved.
func (r *Recorder) Record(
	ctx context.Context,
	rc *requestctx.RequestContext,
	touchType Type,
	contextID string,
	extra map[string]any,
) (*Touch, error) {
	return r.record(ctx, rc, touchType, contextID, Data{Extra: extra})
}

func (r *Recorder) PageView(ctx context.Context, rc *requestctx.RequestContext, contextID string) (*Touch, error) {
	return r.Record(ctx, rc, TypePageView, contextID, nil)
}

func (r *Recorder) FormView(ctx context.Context, rc *requestctx.RequestContext, contextID string) (*Touch, error) {
	return r.Record(ctx, rc, TypeFormView, contextID, nil)
}

func (r *Recorder) FormStart(ctx context.Context, rc *requestctx.RequestContext, contextID string) (*Touch, error) {
	return r.Record(ctx, rc, TypeFormStart, contextID, nil)
}

func (r *Recorder) FormComplete(
	ctx context.Context,
	rc *requestctx.RequestContext,
	contextID string,
	extra map[string]any,
) (*Touch, error) {
	return r.Record(ctx, rc, TypeFormComplete, contextID, extra)
}

// records the redirect of a visitor to an external destination
func (r *Recorder) Handoff(
	ctx context.Context,
	rc *requestctx.RequestContext,
	contextID, destinationURL, token string,
) (*Touch, error) {
	return r.record(ctx, rc, TypeHandoff, contextID, Data{
		DestinationURL: destinationURL,
		HandoffToken:   token,
	})
}

func (r *Recorder) ReturnVisit(ctx context.Context, rc *requestctx.RequestContext, contextID string) (*Touch, error) {
	return r.Record(ctx, rc, TypeReturnVisit, contextID, nil)
}

// records a touch without a browser request (e.g. a matched external completion)
func (r *Recorder) RecordServerSide(
	ctx context.Context,
	visitorID string,
	touchType Type,
	contextID string,
	at time.Time,
	extra map[string]any,
) (*Touch, error) {
	if !touchType.Valid() || !apierrors.IsValidHexID(visitorID) {
		return nil, nil
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}

	t := &Touch{
		ID:        newTouchID(at),
		VisitorID: visitorID,
		ContextID: contextID,
		Type:      touchType,
		Data: Data{
			RecordedAt: at,
			Source:     SourceServer,
			Extra:      cloneExtra(extra),
		},
		CreatedAt: at,
	}

	if err := r.insert(ctx, t); err != nil {
		return nil, err
	}

	return t, nil
}

// deletes touches older than the retention window
func (r *Recorder) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("retention window must be positive, got %s", olderThan)
	}

	return r.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-olderThan))
}

func (r *Recorder) record(
	ctx context.Context,
	rc *requestctx.RequestContext,
	touchType Type,
	contextID string,
	data Data,
) (*Touch, error) {
	if !touchType.Valid() {
		return nil, nil
	}

	visitorID, ok := r.visitors.CurrentID(rc)
	if !ok {
		return nil, nil
	}

	now := rc.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	params := campaign.FromRequest(rc)
	referrer, referrerDomain := rc.ExternalReferrer(r.site)
	pageURL := rc.CurrentURL()

	data.RecordedAt = now
	data.Source = SourceBrowser
	data.Extra = cloneExtra(data.Extra)

	t := &Touch{
		ID:             newTouchID(now),
		VisitorID:      visitorID,
		ContextID:      contextID,
		Type:           touchType,
		UTM:            params.UTM,
		ClickIDs:       params.ClickIDs,
		PromoCode:      params.PromoCode,
		Referrer:       referrer,
		ReferrerDomain: referrerDomain,
		LandingPage:    pageURL,
		PageURL:        pageURL,
		Data:           data,
		CreatedAt:      now,
	}

	if err := r.insert(ctx, t); err != nil {
		return nil, err
	}

	return t, nil
}

func (r *Recorder) insert(ctx context.Context, t *Touch) error {
	if err := r.repo.Insert(ctx, t); err != nil {
		return fmt.Errorf("failed to record %s touch: %w", t.Type, err)
	}

	r.metrics.IncrementTouches(string(t.Type))
	return nil
}

// time-sortable touch id
func newTouchID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

func cloneExtra(extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}

	return maps.Clone(extra)
}
