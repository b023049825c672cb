package device

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/mssola/useragent"
)

const Unknown = "Unknown"

// coarse device signals parsed from a user-agent
type Info struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os"`
	IsMobile       bool   `json:"is_mobile"`
	IsBot          bool   `json:"is_bot,omitempty"`
}

type pattern struct {
	name    string
	match   *regexp.Regexp
	exclude *regexp.Regexp
}

// checked in order; the first hit wins
var browserPatterns = []pattern{
	{name: "Edge", match: regexp.MustCompile(`(?i)edg(e|a|ios)?/`)},
	{name: "Chrome", match: regexp.MustCompile(`(?i)(chrome|crios)/`)},
	{name: "Safari", match: regexp.MustCompile(`(?i)safari/`), exclude: regexp.MustCompile(`(?i)chrome`)},
	{name: "Firefox", match: regexp.MustCompile(`(?i)firefox/`)},
	{name: "Internet Explorer", match: regexp.MustCompile(`(?i)msie |trident/`)},
	{name: "Opera", match: regexp.MustCompile(`(?i)opera|opr/`)},
}

var osPatterns = []pattern{
	{name: "Windows", match: regexp.MustCompile(`(?i)windows`)},
	{name: "macOS", match: regexp.MustCompile(`(?i)macintosh`)},
	{name: "Linux", match: regexp.MustCompile(`(?i)linux`), exclude: regexp.MustCompile(`(?i)android`)},
	{name: "Android", match: regexp.MustCompile(`(?i)android`)},
	{name: "iOS", match: regexp.MustCompile(`(?i)iphone|ipad|ipod`)},
}

var mobilePattern = regexp.MustCompile(`(?i)mobile|android|iphone|ipad|ipod|blackberry|iemobile|opera mini|webos`)

// collapses "120.0.6099.109" into "120" so patch releases keep the fingerprint stable
var minorVersionPattern = regexp.MustCompile(`(\d+)(\.\d+)+`)

// parses browser, OS and mobile flag from a user-agent string
func Parse(userAgent string) Info {
	info := Info{
		Browser:  match(browserPatterns, userAgent),
		OS:       match(osPatterns, userAgent),
		IsMobile: userAgent != "" && mobilePattern.MatchString(userAgent),
	}

	if userAgent == "" {
		return info
	}

	ua := useragent.New(userAgent)
	info.IsBot = ua.Bot()

	if _, version := ua.Browser(); version != "" {
		info.BrowserVersion = version
	}

	return info
}

func match(patterns []pattern, userAgent string) string {
	if userAgent == "" {
		return Unknown
	}

	for _, p := range patterns {
		if !p.match.MatchString(userAgent) {
			continue
		}

		if p.exclude != nil && p.exclude.MatchString(userAgent) {
			continue
		}

		return p.name
	}

	return Unknown
}

// computes fingerprints from coarse server-visible request signals
type Fingerprinter struct {
	enabled bool
}

func NewFingerprinter(enabled bool) *Fingerprinter {
	return &Fingerprinter{enabled: enabled}
}

// returns a SHA-256 hex fingerprint, or "" when disabled or no signals exist
func (f *Fingerprinter) Compute(userAgent, acceptLanguage, acceptEncoding string) string {
	if f == nil || !f.enabled {
		return ""
	}

	if userAgent == "" && acceptLanguage == "" && acceptEncoding == "" {
		return ""
	}

	normalized := strings.Join([]string{
		minorVersionPattern.ReplaceAllString(strings.TrimSpace(userAgent), "$1"),
		strings.ToLower(strings.TrimSpace(acceptLanguage)),
		strings.ToLower(strings.TrimSpace(acceptEncoding)),
	}, "|")

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
