package main

import (
	"time"

	"codeberg.org/touchpath/server/internal/requestctx"
	"codeberg.org/touchpath/server/internal/signature"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// allows the tracked site (and configured extras) to send credentialed beacons
func CORSMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{
			"GET", "POST", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			requestctx.HeaderExternalVisitorID,
			signature.Header,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
