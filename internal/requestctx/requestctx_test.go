package requestctx

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/touchpath/server/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func site(t *testing.T, raw string) config.Site {
	t.Helper()
	s, err := config.ParseSite(raw)
	require.NoError(t, err)
	return s
}

func TestExternalReferrer(t *testing.T) {
	s := site(t, "https://www.example.com")

	tests := []struct {
		name       string
		referrer   string
		wantRef    string
		wantDomain string
	}{
		{"no referrer", "", "", ""},
		{"external with www", "https://www.google.com/search?q=x", "https://www.google.com/search?q=x", "google.com"},
		{"external without www", "https://news.ycombinator.com/", "https://news.ycombinator.com/", "news.ycombinator.com"},
		{"internal same host", "https://www.example.com/pricing", "", ""},
		{"internal without www", "https://example.com/pricing", "", ""},
		{"garbage", "::not a url", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "https://www.example.com/landing", nil)
			if tt.referrer != "" {
				r.Header.Set("Referer", tt.referrer)
			}

			rc := FromRequest(r, time.Now())
			ref, domain := rc.ExternalReferrer(s)

			assert.Equal(t, tt.wantRef, ref)
			assert.Equal(t, tt.wantDomain, domain)
		})
	}
}

func TestReferrerDomain_StripsWWW(t *testing.T) {
	assert.Equal(t, "facebook.com", ReferrerDomain("https://WWW.Facebook.com/some/page"))
	assert.Equal(t, "m.facebook.com", ReferrerDomain("https://m.facebook.com/"))
}

func TestCurrentURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/apply?utm_source=google", nil)
	rc := FromRequest(r, time.Now())
	assert.Equal(t, "http://example.com/apply?utm_source=google", rc.CurrentURL())

	r = httptest.NewRequest(http.MethodGet, "http://example.com/apply", nil)
	r.TLS = &tls.ConnectionState{}
	rc = FromRequest(r, time.Now())
	assert.Equal(t, "https://example.com/apply", rc.CurrentURL())

	r = httptest.NewRequest(http.MethodGet, "http://internal:8080/apply", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "example.com")
	rc = FromRequest(r, time.Now())
	assert.Equal(t, "https://example.com/apply", rc.CurrentURL())
}

func TestCookiesAndParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/?utm_source=%20google%20", nil)
	r.AddCookie(&http.Cookie{Name: "isf_visitor", Value: "abc"})
	r.Header.Set(HeaderExternalVisitorID, " def ")
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	rc := FromRequest(r, time.Now())

	assert.Equal(t, "google", rc.Param("utm_source"))
	assert.Equal(t, "abc", rc.Cookie("isf_visitor"))
	assert.Equal(t, "def", rc.ExternalVisitorID())
	assert.Equal(t, "203.0.113.9", rc.ClientIP)
	assert.Equal(t, "", rc.Cookie("missing"))
}

func TestForPage(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://api.example.com/api/v1/track", nil)
	r.Header.Set("Referer", "https://example.com/apply")
	rc := FromRequest(r, time.Now())

	assert.False(t, rc.ForPage("/relative", ""))
	assert.Equal(t, "api.example.com", rc.Host)

	require.True(t, rc.ForPage("https://example.com/apply?utm_source=newsletter", "https://www.bing.com/search?q=x"))

	assert.Equal(t, "newsletter", rc.Param("utm_source"))
	assert.Equal(t, "https://example.com/apply?utm_source=newsletter", rc.CurrentURL())

	ref, domain := rc.ExternalReferrer(site(t, "https://example.com"))
	assert.Equal(t, "https://www.bing.com/search?q=x", ref)
	assert.Equal(t, "bing.com", domain)

	require.True(t, rc.ForPage("https://example.com/next", ""))
	assert.Empty(t, rc.Referrer(), "a beacon without a document referrer clears the API referrer")
}
