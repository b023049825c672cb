package health

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/touchpath/server/internal/logger"
	"github.com/gin-gonic/gin"
)

const (
	serviceName = "touchpath"
	version     = "1.0.0"

	pingTimeout = 2 * time.Second
)

// anything that can report its own reachability, e.g. *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// returns the server health status; db may be nil
func Handler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := Response{
			Status:  "healthy",
			Service: serviceName,
			Version: version,
		}

		if db == nil {
			c.JSON(http.StatusOK, response)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			logger.Warn("health check database ping failed", "error", err)

			response.Status = "unhealthy"
			response.Database = "unreachable"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}

		response.Database = "ok"
		c.JSON(http.StatusOK, response)
	}
}

// responds with pong for testing
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{
		Message: "pong",
	})
}
