package botdefense

import (
	"net/http"
	"strings"

	"codeberg.org/touchpath/server/internal/device"
)

// minimum score to consider a request bot-like
const BotScoreThreshold = 40

const (
	weightEmptyUserAgent = 50
	weightShortUserAgent = 30
	weightBotPattern     = 40
	weightKnownBot       = 40
	weightMissingHeader  = 10
	weightConnectionHint = 15
	browserDiscount      = 20
)

// automation tokens looked for in lower-cased user agents
var botPatterns = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"httpie",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"java/",
	"node-fetch",
	"axios",
	"libwww",
	"apache-httpclient",
	"okhttp",
	"headless",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	"scrapy",
	"httrack",
	"lighthouse",
	"preview",
}

var browserIndicators = []string{
	"mozilla",
	"chrome",
	"safari",
	"firefox",
	"edg",
	"opera",
}

// headers every real browser sends on a page or fetch request
var browserHeaders = []string{"Accept", "Accept-Language", "Accept-Encoding"}

// detected bot indicators; higher score means more likely automated
type Signals struct {
	EmptyUserAgent  bool
	ShortUserAgent  bool
	KnownBot        bool
	BotPatternMatch string
	MissingHeaders  []string
	Score           int
}

// true when the score reaches threshold or the agent declares itself a bot
func (s *Signals) IsBot(threshold int) bool {
	return s.KnownBot || s.Score >= threshold
}

// scores a request for automation indicators
func DetectBot(r *http.Request) *Signals {
	signals := &Signals{}
	userAgent := r.Header.Get("User-Agent")
	lower := strings.ToLower(userAgent)

	switch {
	case userAgent == "":
		signals.EmptyUserAgent = true
		signals.Score += weightEmptyUserAgent
	case len(userAgent) < 20:
		signals.ShortUserAgent = true
		signals.Score += weightShortUserAgent
	}

	if userAgent != "" && device.Parse(userAgent).IsBot {
		signals.KnownBot = true
		signals.Score += weightKnownBot
	}

	for _, pattern := range botPatterns {
		if strings.Contains(lower, pattern) {
			signals.BotPatternMatch = pattern
			signals.Score += weightBotPattern
			break
		}
	}

	for _, header := range browserHeaders {
		if r.Header.Get(header) == "" {
			signals.MissingHeaders = append(signals.MissingHeaders, header)
			signals.Score += weightMissingHeader
		}
	}

	browser := hasBrowserIndicator(lower)

	// scripts tend to close the connection after one request
	if r.Header.Get("Connection") == "close" && !browser {
		signals.Score += weightConnectionHint
	}

	if browser && len(signals.MissingHeaders) == 0 && signals.BotPatternMatch == "" {
		signals.Score = max(signals.Score-browserDiscount, 0)
	}

	return signals
}

func hasBrowserIndicator(userAgentLower string) bool {
	for _, indicator := range browserIndicators {
		if strings.Contains(userAgentLower, indicator) {
			return true
		}
	}

	return false
}

// checks if the request path looks like probing
func IsSuspiciousPath(path string) bool {
	lower := strings.ToLower(path)

	for _, pattern := range []string{
		".php",
		".asp",
		".jsp",
		".cgi",
		"..%2f", // path traversal
		"../",
		"%00", // null byte
		"<script",
		"union+select",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
