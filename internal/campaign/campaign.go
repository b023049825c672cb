package campaign

import (
	"strings"
	"time"

	"codeberg.org/touchpath/server/internal/config"
	"codeberg.org/touchpath/server/internal/requestctx"
)

// query parameters consumed from inbound requests
const (
	ParamUTMSource   = "utm_source"
	ParamUTMMedium   = "utm_medium"
	ParamUTMCampaign = "utm_campaign"
	ParamUTMTerm     = "utm_term"
	ParamUTMContent  = "utm_content"
	ParamGCLID       = "gclid"
	ParamFBCLID      = "fbclid"
	ParamMSCLKID     = "msclkid"
	ParamDCLID       = "dclid"
	ParamPromo       = "promo"

	// handoff return markers appended to destination URLs
	ParamHandoffRef    = "isf_ref"
	ParamHandoffMarker = "isf_handoff"
)

// handoff token a partner sent the visitor back with; isf_ref wins over isf_handoff
func HandoffReturnToken(rc *requestctx.RequestContext) string {
	for _, name := range []string{ParamHandoffRef, ParamHandoffMarker} {
		if token := strings.TrimSpace(rc.Param(name)); token != "" {
			return token
		}
	}

	return ""
}

// harvests attribution parameters from a request
func FromRequest(rc *requestctx.RequestContext) Params {
	return Params{
		UTM: UTM{
			Source:   rc.Param(ParamUTMSource),
			Medium:   rc.Param(ParamUTMMedium),
			Campaign: rc.Param(ParamUTMCampaign),
			Term:     rc.Param(ParamUTMTerm),
			Content:  rc.Param(ParamUTMContent),
		},
		ClickIDs: ClickIDs{
			GCLID:   rc.Param(ParamGCLID),
			FBCLID:  rc.Param(ParamFBCLID),
			MSCLKID: rc.Param(ParamMSCLKID),
			DCLID:   rc.Param(ParamDCLID),
		},
		PromoCode: rc.Param(ParamPromo),
	}
}

// captures the attribution state of the current request
func Capture(rc *requestctx.RequestContext, site config.Site) Snapshot {
	referrer, domain := rc.ExternalReferrer(site)
	current := rc.CurrentURL()

	capturedAt := rc.Now
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	return Snapshot{
		Params:         FromRequest(rc),
		Referrer:       referrer,
		ReferrerDomain: domain,
		LandingPage:    current,
		OriginPage:     current,
		CapturedAt:     capturedAt,
	}
}
