package main

import (
	"context"
	"fmt"

	"codeberg.org/touchpath/server/internal/cache"
	"codeberg.org/touchpath/server/internal/config"
	"codeberg.org/touchpath/server/internal/database"
	"codeberg.org/touchpath/server/internal/device"
	"codeberg.org/touchpath/server/internal/logger"
	"codeberg.org/touchpath/server/internal/metrics"
	"codeberg.org/touchpath/server/internal/relay"
	"codeberg.org/touchpath/server/touchpath/attribution"
	"codeberg.org/touchpath/server/touchpath/handoffs"
	"codeberg.org/touchpath/server/touchpath/touches"
	"codeberg.org/touchpath/server/touchpath/visitors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// creates and configures a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// redis is optional: reports fall back to an in-process cache and
	// rate limits to an in-process store
	var (
		redisClient *redis.Client
		reportCache cache.ReportCache = cache.NewMemoryCache()
	)

	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.ErrorErr(err, "redis unavailable, continuing with in-process cache and rate limits")
		} else {
			reportCache = cache.NewRedisCache(redisClient)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	visitorRepo := visitors.NewRepository(db)
	visitorService := visitors.NewService(visitorRepo, visitors.Options{
		Site:          cfg.Site,
		Cookie:        cfg.Cookie,
		Fingerprinter: device.NewFingerprinter(cfg.FingerprintingEnabled),
		Metrics:       m,
	})

	visitorService.OnNewVisitor("log", func(_ context.Context, v *visitors.Visitor) error {
		logger.Debug("new visitor",
			"visitor_id", v.ID,
			"source", v.FirstTouch.Params.UTM.Source,
			"referrer_domain", v.FirstTouch.ReferrerDomain,
		)
		return nil
	})

	touchRepo := touches.NewRepository(db)
	recorder := touches.NewRecorder(touchRepo, visitorService, cfg.Site, m)
	calculator := attribution.NewCalculator(touchRepo, reportCache, cfg.ReportCacheTTL, m)

	handoffRepo := handoffs.NewRepository(db)
	tracker := handoffs.NewTracker(handoffRepo, visitorService, recorder, cfg.Site, m)
	matcher := handoffs.NewMatcher(tracker, handoffs.NewCompletionRepository(db), visitorRepo, recorder, m)

	ga4 := relay.NewGA4(relay.GA4Config{
		MeasurementID: cfg.GA4MeasurementID,
		APISecret:     cfg.GA4APISecret,
	}, m)

	if ga4 != nil {
		matcher.OnMatch("ga4_conversion", func(_ context.Context, c *handoffs.Completion, h *handoffs.Handoff) error {
			ga4.Enqueue(relay.ConversionEvent(h.VisitorID, h.ContextID, c.MatchStrategy, *c.MatchedAt))
			return nil
		})
	}

	logger.Info("relays configured",
		"ga4_enabled", ga4 != nil,
		"webhook_secret_set", cfg.WebhookSecret != "",
		"webhook_signature_optional", cfg.WebhookSignatureOptional,
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		db:         db,
		redis:      redisClient,
		config:     cfg,
		registry:   registry,
		router:     gin.Default(),
		visitors:   visitorService,
		recorder:   recorder,
		calculator: calculator,
		tracker:    tracker,
		matcher:    matcher,
		ga4:        ga4,
		webhook:    relay.NewWebhook(cfg.WebhookSecret),
	}

	if err := RegisterRoutes(server.router, server); err != nil {
		server.Close()
		return nil, err
	}

	return server, nil
}

// releases relays, redis and the database pool
func (s *Server) Close() {
	// flush queued conversion events first
	s.ga4.Close()
	s.webhook.Close()

	if s.redis != nil {
		s.redis.Close() //nolint:errcheck,gosec // best-effort cleanup on shutdown
	}

	s.db.Close()
}
