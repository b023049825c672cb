// Package ratelimit throttles public endpoints per client IP.
package ratelimit

import (
	"fmt"
	"time"

	apierrors "codeberg.org/touchpath/server/internal/errors"
	"codeberg.org/touchpath/server/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const keyPrefix = "touchpath:ratelimit"

// builds a limiter store; redis when a client is given, in-process otherwise
func NewStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          keyPrefix,
			CleanUpInterval: time.Minute,
		}), nil
	}

	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   keyPrefix,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
	}

	return store, nil
}

// returns a per-IP middleware for a formatted rate such as "300-M".
// store failures let the request through.
func Middleware(store limiter.Store, formatted string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", formatted, err)
	}

	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			logger.Warn("rate limit exceeded", "ip", c.ClientIP(), "path", c.Request.URL.Path)
			apierrors.TooManyRequests(c, "too many requests, please slow down")
			c.Abort()
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.Warn("rate limiter unavailable", "error", err)

			// the driver aborts after this handler returns, so run the chain first
			c.Next()
		}),
	), nil
}
