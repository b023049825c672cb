package tracking

import (
	"codeberg.org/touchpath/server/touchpath/touches"
	"codeberg.org/touchpath/server/touchpath/visitors"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.RouterGroup, visitorService *visitors.Service, recorder *touches.Recorder) {
	router.POST("/track", TrackHandler(visitorService, recorder))
	router.GET("/visitor", CurrentVisitorHandler(visitorService))
	router.POST("/visitor/email", LinkEmailHandler(visitorService))
}
