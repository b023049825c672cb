package main

import (
	"codeberg.org/touchpath/server/internal/config"
	"codeberg.org/touchpath/server/internal/relay"
	"codeberg.org/touchpath/server/touchpath/attribution"
	"codeberg.org/touchpath/server/touchpath/handoffs"
	"codeberg.org/touchpath/server/touchpath/touches"
	"codeberg.org/touchpath/server/touchpath/visitors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// holds all dependencies and state for the API server
type Server struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	config   *config.Config
	registry *prometheus.Registry
	router   *gin.Engine

	visitors   *visitors.Service
	recorder   *touches.Recorder
	calculator *attribution.Calculator
	tracker    *handoffs.Tracker
	matcher    *handoffs.Matcher

	ga4     *relay.GA4
	webhook *relay.Webhook
}
