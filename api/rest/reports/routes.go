package reports

import (
	"codeberg.org/touchpath/server/touchpath/attribution"
	"codeberg.org/touchpath/server/touchpath/handoffs"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.RouterGroup, calculator *attribution.Calculator, tracker *handoffs.Tracker) {
	group := router.Group("/reports")
	{
		group.GET("/attribution", AttributionHandler(calculator))
		group.GET("/channels", ChannelsHandler(calculator))
		group.GET("/time-to-conversion", TimeToConversionHandler(calculator))
		group.GET("/touchpoints", TouchpointsHandler(calculator))
		group.GET("/handoffs", HandoffStatsHandler(tracker))
		group.GET("/dashboard", DashboardHandler(calculator, tracker))
	}
}
