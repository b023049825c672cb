package touches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/internal/requestctx"
)

// marketing-relevant event kinds
type Type string

const (
	TypePageView     Type = "page_view"
	TypeFormView     Type = "form_view"
	TypeFormStart    Type = "form_start"
	TypeFormComplete Type = "form_complete"
	TypeHandoff      Type = "handoff"
	TypeReturnVisit  Type = "return_visit"
)

var validTypes = map[Type]struct{}{
	TypePageView:     {},
	TypeFormView:     {},
	TypeFormStart:    {},
	TypeFormComplete: {},
	TypeHandoff:      {},
	TypeReturnVisit:  {},
}

func (t Type) Valid() bool {
	_, ok := validTypes[t]
	return ok
}

// where a touch was recorded from
const (
	SourceBrowser = "browser"
	SourceServer  = "server"
)

// current on-disk layout of Data
const DataVersion = 1

var ErrUnsupportedDataVersion = errors.New("unsupported touch data version")

// repository interface for touch storage; touches are append-only
type Repository interface {
	Insert(ctx context.Context, t *Touch) error

	// touches for one visitor with created_at <= until, oldest first
	ListForVisitor(ctx context.Context, visitorID string, until time.Time) ([]Touch, error)

	// form_complete touches in the filter window, oldest first
	ListConversions(ctx context.Context, f Filter) ([]Touch, error)

	// every touch in the filter window, oldest first
	ListInRange(ctx context.Context, f Filter) ([]Touch, error)

	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// resolves the visitor id of a request without side effects
type VisitorResolver interface {
	CurrentID(rc *requestctx.RequestContext) (string, bool)
}

// restricts touch listings; zero values mean unbounded
type Filter struct {
	ContextID string
	From      time.Time
	To        time.Time
}

// true when at falls inside the window (inclusive on both ends)
func (f Filter) Contains(at time.Time) bool {
	if !f.From.IsZero() && at.Before(f.From) {
		return false
	}

	if !f.To.IsZero() && at.After(f.To) {
		return false
	}

	return true
}

// one recorded marketing touch
type Touch struct {
	ID             string            `json:"id"`
	VisitorID      string            `json:"visitor_id"`
	ContextID      string            `json:"context_id,omitempty"`
	Type           Type              `json:"type"`
	UTM            campaign.UTM      `json:"utm"`
	ClickIDs       campaign.ClickIDs `json:"click_ids"`
	PromoCode      string            `json:"promo_code,omitempty"`
	Referrer       string            `json:"referrer,omitempty"`
	ReferrerDomain string            `json:"referrer_domain,omitempty"`
	LandingPage    string            `json:"landing_page,omitempty"`
	PageURL        string            `json:"page_url,omitempty"`
	Data           Data              `json:"touch_data"`
	CreatedAt      time.Time         `json:"created_at"`
}

// carries a UTM source or an external referrer domain
func (t *Touch) IsAttributable() bool {
	return t.UTM.Source != "" || t.ReferrerDomain != ""
}

// carries any UTM tag or referrer, or is a page view
func (t *Touch) IsJourneyEligible() bool {
	if t.Type == TypePageView || t.ReferrerDomain != "" {
		return true
	}

	u := t.UTM
	return u.Source != "" || u.Medium != "" || u.Campaign != "" || u.Term != "" || u.Content != ""
}

// free-form payload stored with a touch
type Data struct {
	RecordedAt     time.Time      `json:"recorded_at"`
	Source         string         `json:"source,omitempty"`
	DestinationURL string         `json:"destination_url,omitempty"`
	HandoffToken   string         `json:"handoff_token,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

func (d Data) MarshalJSON() ([]byte, error) {
	type plain Data
	return json.Marshal(struct {
		Version int `json:"v"`
		plain
	}{DataVersion, plain(d)})
}

func (d *Data) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeData(data)
	if err != nil {
		return err
	}

	*d = decoded
	return nil
}

// decodes versioned touch data, or the legacy flat object where every key
// other than a few known ones was caller-supplied extra data
func DecodeData(data []byte) (Data, error) {
	if len(data) == 0 || string(data) == "null" {
		return Data{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Data{}, fmt.Errorf("failed to decode touch data: %w", err)
	}

	version, ok := raw["v"]
	if !ok {
		return decodeLegacyData(raw)
	}

	var v int
	if err := json.Unmarshal(version, &v); err != nil {
		return Data{}, fmt.Errorf("failed to decode touch data version: %w", err)
	}

	if v != DataVersion {
		return Data{}, fmt.Errorf("%w: %d", ErrUnsupportedDataVersion, v)
	}

	type plain Data
	var out struct {
		plain
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return Data{}, fmt.Errorf("failed to decode touch data v%d: %w", v, err)
	}

	return Data(out.plain), nil
}

func decodeLegacyData(raw map[string]json.RawMessage) (Data, error) {
	var d Data

	for key, value := range raw {
		var err error

		switch key {
		case "timestamp", "recorded_at":
			d.RecordedAt, err = parseLegacyTime(value)
		case "destination_url":
			err = json.Unmarshal(value, &d.DestinationURL)
		case "token", "handoff_token":
			err = json.Unmarshal(value, &d.HandoffToken)
		default:
			var v any
			if err = json.Unmarshal(value, &v); err == nil {
				if d.Extra == nil {
					d.Extra = make(map[string]any)
				}
				d.Extra[key] = v
			}
		}

		if err != nil {
			return Data{}, fmt.Errorf("failed to decode legacy touch data %q: %w", key, err)
		}
	}

	return d, nil
}

func parseLegacyTime(value json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return time.Time{}, err
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
