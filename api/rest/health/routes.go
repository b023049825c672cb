package health

import "github.com/gin-gonic/gin"

func RegisterRoutes(root gin.IRoutes, api *gin.RouterGroup, db Pinger) {
	root.GET("/health", Handler(db))
	api.GET("/ping", PingHandler)
}
