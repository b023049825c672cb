package main

import (
	"codeberg.org/touchpath/server/api/rest/handoffs"
	"codeberg.org/touchpath/server/api/rest/health"
	"codeberg.org/touchpath/server/api/rest/reports"
	"codeberg.org/touchpath/server/api/rest/tracking"
	"codeberg.org/touchpath/server/internal/botdefense"
	"codeberg.org/touchpath/server/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) error {
	router.Use(CORSMiddleware(server.config.AllowedOrigins))
	router.Use(botdefense.New(botdefense.DefaultConfig()).Middleware())

	store, err := ratelimit.NewStore(server.redis)
	if err != nil {
		return err
	}

	limit, err := ratelimit.Middleware(store, server.config.RateLimit)
	if err != nil {
		return err
	}

	v1 := router.Group("/api/v1")

	health.RegisterRoutes(router, v1, server.db)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(server.registry, promhttp.HandlerOpts{})))

	handoffs.RegisterRedirectRoute(router, server.tracker)

	// public, browser and partner facing routes are throttled per IP
	public := v1.Group("", limit)
	{
		tracking.RegisterRoutes(public, server.visitors, server.recorder)
		handoffs.RegisterRoutes(public, server.tracker, server.matcher, server.webhook, handoffs.WebhookConfig{
			Secret:            server.config.WebhookSecret,
			SignatureOptional: server.config.WebhookSignatureOptional,
		}, server.config.Site)
	}

	reports.RegisterRoutes(v1, server.calculator, server.tracker)

	return nil
}
