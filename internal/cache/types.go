package cache

import (
	"context"
	"time"
)

const keyPrefix = "touchpath:report:"

// stores rendered reports keyed by kind, context, range and model
type ReportCache interface {
	// decodes the cached value into dest; false on miss
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}
