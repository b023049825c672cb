package config

import (
	"net/url"
	"time"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	Environment string
	Port        string

	Site   Site
	Cookie CookieConfig

	FingerprintingEnabled bool

	WebhookSecret            string
	WebhookSignatureOptional bool

	GA4MeasurementID string
	GA4APISecret     string

	AllowedOrigins []string

	RateLimit      string
	ReportCacheTTL time.Duration
}

// public site the tracker is embedded in
type Site struct {
	URL  *url.URL
	Host string
	TLS  bool
}

// identity cookie attributes
type CookieConfig struct {
	Name         string
	Domain       string
	LifetimeDays int
}

// defaults for the sweeper subcommands
type SweepFlags struct {
	HandoffMaxAgeHours int
	RetryLimit         int
	TouchRetentionDays int
}
