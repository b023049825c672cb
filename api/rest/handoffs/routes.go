package handoffs

import (
	"codeberg.org/touchpath/server/internal/config"
	"codeberg.org/touchpath/server/internal/relay"
	"codeberg.org/touchpath/server/touchpath/handoffs"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(
	router *gin.RouterGroup,
	tracker *handoffs.Tracker,
	matcher *handoffs.Matcher,
	webhook *relay.Webhook,
	cfg WebhookConfig,
	site config.Site,
) {
	group := router.Group("/handoffs")
	{
		group.POST("", CreateHandoffHandler(tracker))
		group.GET("/complete", CompleteRedirectHandler(matcher, cfg, site))
		group.POST("/webhook", WebhookHandler(matcher, cfg))
		group.POST("/webhook-test", WebhookTestHandler(webhook, cfg))
		group.GET("/:token", GetHandoffHandler(tracker))
	}
}

// the public redirect lives outside the API prefix so tracking URLs stay short
func RegisterRedirectRoute(router gin.IRoutes, tracker *handoffs.Tracker) {
	router.GET("/go/:token", RedirectHandler(tracker))
}
