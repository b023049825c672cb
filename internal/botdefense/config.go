package botdefense

import "strings"

// holds bot classification configuration
type Config struct {
	// whether requests are classified at all
	Enabled bool

	// minimum heuristic score that marks a request as a bot
	ScoreThreshold int

	// paths only scanners request; answered with 404 and marked
	HoneypotPaths []string

	// paths never classified (health checks, metrics scrapes, partner callbacks)
	ExemptPaths []string
}

// returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		ScoreThreshold: BotScoreThreshold,
		HoneypotPaths: []string{
			// wordpress
			"/wp-admin",
			"/wp-login.php",
			"/xmlrpc.php",

			// config/secrets
			"/.env",
			"/.git",
			"/config.php",
			"/.aws/credentials",

			// admin panels
			"/phpmyadmin",
			"/administrator",

			// backups
			"/backup.sql",
			"/db.sql",

			// api probing
			"/api/v1/internal",
			"/api/v1/visitors/export",
		},
		ExemptPaths: []string{
			"/health",
			"/metrics",
			"/api/v1/ping",
			"/api/v1/handoffs/webhook",
		},
	}
}

// checks if a path is a honeypot (prefix match)
func (c *Config) IsHoneypotPath(path string) bool {
	return matchesPrefix(c.HoneypotPaths, path)
}

// checks if a path bypasses classification
func (c *Config) IsExemptPath(path string) bool {
	return matchesPrefix(c.ExemptPaths, path)
}

func matchesPrefix(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}

	return false
}
