package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultCookieName         = "isf_visitor"
	DefaultCookieLifetimeDays = 365
	MinCookieLifetimeDays     = 1
	MaxCookieLifetimeDays     = 730
	DefaultRateLimit          = "300-M"
	DefaultReportCacheTTL     = 10 * time.Minute
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	databaseURL := os.Getenv("DATABASE_URL")
	siteURL := os.Getenv("SITE_URL")
	environment := os.Getenv("ENVIRONMENT")
	port := os.Getenv("PORT")

	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if siteURL == "" {
		return nil, fmt.Errorf("SITE_URL environment variable is required")
	}

	site, err := ParseSite(siteURL)
	if err != nil {
		return nil, err
	}

	if environment == "" {
		environment = "development"
	}

	if port == "" {
		port = "8080"
	}

	rateLimit := os.Getenv("RATE_LIMIT")
	if rateLimit == "" {
		rateLimit = DefaultRateLimit
	}

	cookieName := os.Getenv("COOKIE_NAME")
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	return &Config{
		DatabaseURL: databaseURL,
		RedisURL:    os.Getenv("REDIS_URL"),
		Environment: environment,
		Port:        port,
		Site:        site,
		Cookie: CookieConfig{
			Name:         cookieName,
			Domain:       os.Getenv("COOKIE_DOMAIN"),
			LifetimeDays: ClampCookieLifetime(envInt("COOKIE_LIFETIME_DAYS", DefaultCookieLifetimeDays)),
		},
		FingerprintingEnabled:    envBool("FINGERPRINTING_ENABLED", true),
		WebhookSecret:            os.Getenv("WEBHOOK_SECRET"),
		WebhookSignatureOptional: envBool("WEBHOOK_SIGNATURE_OPTIONAL", false),
		GA4MeasurementID:         os.Getenv("GA4_MEASUREMENT_ID"),
		GA4APISecret:             os.Getenv("GA4_API_SECRET"),
		AllowedOrigins:           allowedOrigins(site, os.Getenv("CORS_ALLOWED_ORIGINS")),
		RateLimit:                rateLimit,
		ReportCacheTTL:           envDuration("REPORT_CACHE_TTL", DefaultReportCacheTTL),
	}, nil
}

// loads only what the sweeper needs: the database URL
func LoadDatabaseURL() (string, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL environment variable is required")
	}

	return databaseURL, nil
}

// site origin plus any comma-separated extras, deduplicated
func allowedOrigins(site Site, extra string) []string {
	origins := []string{site.URL.Scheme + "://" + site.URL.Host}

	for _, origin := range strings.Split(extra, ",") {
		origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
		if origin == "" || slices.Contains(origins, origin) {
			continue
		}

		origins = append(origins, origin)
	}

	return origins
}

// parses the public site URL into host and TLS flag
func ParseSite(raw string) (Site, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return Site{}, fmt.Errorf("SITE_URL must be an absolute URL: %q", raw)
	}

	return Site{
		URL:  u,
		Host: strings.ToLower(u.Hostname()),
		TLS:  u.Scheme == "https",
	}, nil
}

// keeps the cookie lifetime inside the supported 1..730 day range
func ClampCookieLifetime(days int) int {
	if days < MinCookieLifetimeDays {
		return MinCookieLifetimeDays
	}

	if days > MaxCookieLifetimeDays {
		return MaxCookieLifetimeDays
	}

	return days
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}

	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}

	return d
}
