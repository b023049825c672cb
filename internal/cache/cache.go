package cache

import (
	"context"
	"strings"
	"time"

	"codeberg.org/touchpath/server/internal/logger"
)

// joins key parts; empty parts become "-" so keys stay positional
func Key(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		if p == "" {
			p = "-"
		}
		normalized[i] = p
	}

	return strings.Join(normalized, ":")
}

// returns the cached value for key or builds, stores and returns it.
// cache errors are logged and never fail the build.
func Load[T any](
	ctx context.Context,
	c ReportCache,
	key string,
	ttl time.Duration,
	build func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return build(ctx)
	}

	var cached T

	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("report cache read failed", "key", key, "error", err)
	}

	if hit {
		return cached, nil
	}

	value, err := build(ctx)
	if err != nil {
		return value, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		logger.Warn("report cache write failed", "key", key, "error", err)
	}

	return value, nil
}
