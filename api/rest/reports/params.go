package reports

import (
	"fmt"
	"strings"
	"time"

	"codeberg.org/touchpath/server/touchpath/attribution"
	"github.com/gin-gonic/gin"
)

// used when the request names no model
const DefaultModel = attribution.ModelLinear

const dateLayout = "2006-01-02"

func parseParams(c *gin.Context) (reportParams, error) {
	var q ReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return reportParams{}, err
	}

	from, err := parseBound(q.From, false)
	if err != nil {
		return reportParams{}, fmt.Errorf("from: %w", err)
	}

	to, err := parseBound(q.To, true)
	if err != nil {
		return reportParams{}, fmt.Errorf("to: %w", err)
	}

	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return reportParams{}, fmt.Errorf("to must not be before from")
	}

	model := DefaultModel
	if q.Model != "" {
		model = attribution.Model(strings.ToLower(strings.TrimSpace(q.Model)))
	}

	if !model.Valid() {
		return reportParams{}, fmt.Errorf("unknown model %q", q.Model)
	}

	return reportParams{
		contextID: strings.TrimSpace(q.ContextID),
		dateRange: attribution.DateRange{From: from, To: to},
		model:     model,
	}, nil
}

// accepts YYYY-MM-DD or RFC3339; a bare end date covers the whole day
func parseBound(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(dateLayout, raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}

		return t.UTC(), nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", raw)
	}

	return t.UTC(), nil
}
