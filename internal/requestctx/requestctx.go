// Package requestctx carries the per-request signals the tracking core reads:
// query parameters, cookies, headers and the request URL. A RequestContext is
// built once at the HTTP boundary and passed explicitly into identity,
// recording and handoff calls.
package requestctx

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/touchpath/server/internal/config"
)

// header carrying a visitor id supplied by client-side storage
const HeaderExternalVisitorID = "X-Visitor-ID"

var nowFunc = time.Now

type RequestContext struct {
	Query    url.Values
	Cookies  map[string]string
	Header   http.Header
	Host     string
	Path     string
	RawQuery string
	TLS      bool
	ClientIP string
	Now      time.Time

	// set once the visitor identity has been resolved for this request
	ResolvedVisitorID string
}

// builds a RequestContext from an inbound request
func FromRequest(r *http.Request, now time.Time) *RequestContext {
	cookies := make(map[string]string, len(r.Cookies()))
	for _, c := range r.Cookies() {
		if _, seen := cookies[c.Name]; !seen {
			cookies[c.Name] = c.Value
		}
	}

	tls := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	return &RequestContext{
		Query:    r.URL.Query(),
		Cookies:  cookies,
		Header:   r.Header.Clone(),
		Host:     host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		TLS:      tls,
		ClientIP: clientIP(r),
		Now:      now.UTC(),
	}
}

// returns a trimmed query parameter
func (rc *RequestContext) Param(name string) string {
	if rc == nil || rc.Query == nil {
		return ""
	}
	return strings.TrimSpace(rc.Query.Get(name))
}

func (rc *RequestContext) Cookie(name string) string {
	if rc == nil {
		return ""
	}
	return rc.Cookies[name]
}

func (rc *RequestContext) HeaderValue(name string) string {
	if rc == nil || rc.Header == nil {
		return ""
	}
	return rc.Header.Get(name)
}

func (rc *RequestContext) UserAgent() string {
	return rc.HeaderValue("User-Agent")
}

func (rc *RequestContext) Referrer() string {
	return strings.TrimSpace(rc.HeaderValue("Referer"))
}

// visitor id supplied outside the identity cookie
func (rc *RequestContext) ExternalVisitorID() string {
	return strings.TrimSpace(rc.HeaderValue(HeaderExternalVisitorID))
}

// absolute URL of the current request, empty when the host is unknown
func (rc *RequestContext) CurrentURL() string {
	if rc == nil || rc.Host == "" {
		return ""
	}

	scheme := "http"
	if rc.TLS {
		scheme = "https"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     rc.Host,
		Path:     rc.Path,
		RawQuery: rc.RawQuery,
	}

	return u.String()
}

// rebases rc onto the page a browser beacon was sent from, so parameters,
// URLs and the referrer describe the tracked page instead of the API call.
// returns false and leaves rc untouched when pageURL is not absolute.
func (rc *RequestContext) ForPage(pageURL, documentReferrer string) bool {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	rc.Query = u.Query()
	rc.Host = u.Host
	rc.Path = u.Path
	rc.RawQuery = u.RawQuery
	rc.TLS = u.Scheme == "https"

	if rc.Header == nil {
		rc.Header = http.Header{}
	}

	if documentReferrer = strings.TrimSpace(documentReferrer); documentReferrer != "" {
		rc.Header.Set("Referer", documentReferrer)
	} else {
		rc.Header.Del("Referer")
	}

	return true
}

// returns the referrer and its domain, or empty values when the referrer is
// missing, unparsable, or points at the site itself
func (rc *RequestContext) ExternalReferrer(site config.Site) (string, string) {
	ref := rc.Referrer()
	if ref == "" {
		return "", ""
	}

	domain := ReferrerDomain(ref)
	if domain == "" {
		return "", ""
	}

	if domain == StripWWW(site.Host) {
		return "", ""
	}

	return ref, domain
}

// extracts the lower-cased host of a URL without a leading www.
func ReferrerDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return StripWWW(strings.ToLower(u.Hostname()))
}

func StripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
