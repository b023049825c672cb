package reports

import (
	"net/http"
	"time"

	"codeberg.org/touchpath/server/internal/errors"
	"codeberg.org/touchpath/server/touchpath/attribution"
	"codeberg.org/touchpath/server/touchpath/handoffs"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// conversion credit by source, medium and campaign
func AttributionHandler(calculator *attribution.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c)
		if err != nil {
			errors.BadRequest(c, err.Error(), nil)
			return
		}

		report, err := calculator.CalculateAttribution(c.Request.Context(), p.contextID, p.dateRange, p.model)
		if err != nil {
			errors.InternalError(c, "failed to build attribution report", err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func ChannelsHandler(calculator *attribution.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c)
		if err != nil {
			errors.BadRequest(c, err.Error(), nil)
			return
		}

		rows, err := calculator.ChannelPerformance(c.Request.Context(), p.contextID, p.dateRange, p.model)
		if err != nil {
			errors.InternalError(c, "failed to build channel report", err)
			return
		}

		if rows == nil {
			rows = []attribution.ChannelRow{}
		}

		c.JSON(http.StatusOK, gin.H{
			"model":    p.model,
			"channels": rows,
		})
	}
}

func TimeToConversionHandler(calculator *attribution.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c)
		if err != nil {
			errors.BadRequest(c, err.Error(), nil)
			return
		}

		report, err := calculator.TimeToConversion(c.Request.Context(), p.contextID, p.dateRange)
		if err != nil {
			errors.InternalError(c, "failed to build time to conversion report", err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func TouchpointsHandler(calculator *attribution.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c)
		if err != nil {
			errors.BadRequest(c, err.Error(), nil)
			return
		}

		report, err := calculator.TouchpointAnalysis(c.Request.Context(), p.contextID, p.dateRange)
		if err != nil {
			errors.InternalError(c, "failed to build touchpoint report", err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// handoff volume and completion rate
func HandoffStatsHandler(tracker *handoffs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c)
		if err != nil {
			errors.BadRequest(c, err.Error(), nil)
			return
		}

		stats, err := tracker.Stats(c.Request.Context(), p.contextID, p.dateRange.From, p.dateRange.To)
		if err != nil {
			errors.InternalError(c, "failed to build handoff stats", err)
			return
		}

		c.JSON(http.StatusOK, HandoffStatsResponse{
			ContextID: p.contextID,
			Range:     p.dateRange,
			Stats:     stats,
		})
	}
}

// builds every report for the same query concurrently
func DashboardHandler(calculator *attribution.Calculator, tracker *handoffs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c)
		if err != nil {
			errors.BadRequest(c, err.Error(), nil)
			return
		}

		response := DashboardResponse{
			ContextID: p.contextID,
			Model:     p.model,
			Range:     p.dateRange,
		}

		g, ctx := errgroup.WithContext(c.Request.Context())

		g.Go(func() error {
			report, err := calculator.CalculateAttribution(ctx, p.contextID, p.dateRange, p.model)
			response.Attribution = report
			return err
		})

		g.Go(func() error {
			rows, err := calculator.ChannelPerformance(ctx, p.contextID, p.dateRange, p.model)
			response.Channels = rows
			return err
		})

		g.Go(func() error {
			report, err := calculator.TimeToConversion(ctx, p.contextID, p.dateRange)
			response.TimeToConversion = report
			return err
		})

		g.Go(func() error {
			report, err := calculator.TouchpointAnalysis(ctx, p.contextID, p.dateRange)
			response.Touchpoints = report
			return err
		})

		g.Go(func() error {
			stats, err := tracker.Stats(ctx, p.contextID, p.dateRange.From, p.dateRange.To)
			response.Handoffs = stats
			return err
		})

		if err := g.Wait(); err != nil {
			errors.InternalError(c, "failed to build dashboard", err)
			return
		}

		if response.Channels == nil {
			response.Channels = []attribution.ChannelRow{}
		}

		response.GeneratedAt = time.Now().UTC()

		c.JSON(http.StatusOK, response)
	}
}
