package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// current on-disk layout of Snapshot
const SnapshotVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

type ClickIDs struct {
	GCLID   string `json:"gclid,omitempty"`
	FBCLID  string `json:"fbclid,omitempty"`
	MSCLKID string `json:"msclkid,omitempty"`
	DCLID   string `json:"dclid,omitempty"`
}

type Params struct {
	UTM       UTM      `json:"utm"`
	ClickIDs  ClickIDs `json:"click_ids"`
	PromoCode string   `json:"promo_code,omitempty"`
}

// attribution state captured at a point in time (visitor creation, handoff)
type Snapshot struct {
	Params         Params    `json:"params"`
	Referrer       string    `json:"referrer,omitempty"`
	ReferrerDomain string    `json:"referrer_domain,omitempty"`
	LandingPage    string    `json:"landing_page,omitempty"`
	OriginPage     string    `json:"origin_page,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

func (p Params) HasClickID() bool {
	c := p.ClickIDs
	return c.GCLID != "" || c.FBCLID != "" || c.MSCLKID != "" || c.DCLID != ""
}

// true when the snapshot carries a UTM source or an external referrer
func (s Snapshot) IsAttributed() bool {
	return s.Params.UTM.Source != "" || s.ReferrerDomain != ""
}

// flat layout written before snapshots were versioned
type legacySnapshot struct {
	UTMSource      string `json:"utm_source"`
	UTMMedium      string `json:"utm_medium"`
	UTMCampaign    string `json:"utm_campaign"`
	UTMTerm        string `json:"utm_term"`
	UTMContent     string `json:"utm_content"`
	GCLID          string `json:"gclid"`
	FBCLID         string `json:"fbclid"`
	MSCLKID        string `json:"msclkid"`
	DCLID          string `json:"dclid"`
	PromoCode      string `json:"promo_code"`
	Referrer       string `json:"referrer"`
	ReferrerDomain string `json:"referrer_domain"`
	LandingPage    string `json:"landing_page"`
	PageURL        string `json:"page_url"`
	CapturedAt     string `json:"captured_at"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		Version int `json:"v"`
		plain
	}{SnapshotVersion, plain(s)})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}

	*s = decoded
	return nil
}

// decodes any known snapshot layout
func DecodeSnapshot(data []byte) (Snapshot, error) {
	if len(data) == 0 || string(data) == "null" {
		return Snapshot{}, nil
	}

	var probe struct {
		Version *int `json:"v"`
	}

	if err := json.Unmarshal(data, &probe); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if probe.Version == nil {
		return decodeLegacy(data)
	}

	switch *probe.Version {
	case 1:
		type plain Snapshot
		var v struct {
			plain
		}

		if err := json.Unmarshal(data, &v); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode snapshot v1: %w", err)
		}

		return Snapshot(v.plain), nil
	default:
		return Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *probe.Version)
	}
}

func decodeLegacy(data []byte) (Snapshot, error) {
	var l legacySnapshot
	if err := json.Unmarshal(data, &l); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode legacy snapshot: %w", err)
	}

	s := Snapshot{
		Params: Params{
			UTM: UTM{
				Source:   l.UTMSource,
				Medium:   l.UTMMedium,
				Campaign: l.UTMCampaign,
				Term:     l.UTMTerm,
				Content:  l.UTMContent,
			},
			ClickIDs: ClickIDs{
				GCLID:   l.GCLID,
				FBCLID:  l.FBCLID,
				MSCLKID: l.MSCLKID,
				DCLID:   l.DCLID,
			},
			PromoCode: l.PromoCode,
		},
		Referrer:       l.Referrer,
		ReferrerDomain: l.ReferrerDomain,
		LandingPage:    l.LandingPage,
		OriginPage:     l.PageURL,
	}

	if l.CapturedAt != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, l.CapturedAt); err == nil {
				s.CapturedAt = t.UTC()
				break
			}
		}
	}

	return s, nil
}
