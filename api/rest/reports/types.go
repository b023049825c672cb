package reports

import (
	"time"

	"codeberg.org/touchpath/server/touchpath/attribution"
	"codeberg.org/touchpath/server/touchpath/handoffs"
)

// query parameters shared by every report endpoint
type ReportQuery struct {
	ContextID string `form:"context_id"`
	From      string `form:"from"`
	To        string `form:"to"`
	Model     string `form:"model"`
}

// parsed and validated report query
type reportParams struct {
	contextID string
	dateRange attribution.DateRange
	model     attribution.Model
}

type HandoffStatsResponse struct {
	ContextID string                `json:"context_id,omitempty"`
	Range     attribution.DateRange `json:"range"`
	*handoffs.Stats
}

type DashboardResponse struct {
	ContextID        string                          `json:"context_id,omitempty"`
	Model            attribution.Model               `json:"model"`
	Range            attribution.DateRange           `json:"range"`
	Attribution      *attribution.Report             `json:"attribution"`
	Channels         []attribution.ChannelRow        `json:"channels"`
	TimeToConversion *attribution.TimeToConversion   `json:"time_to_conversion"`
	Touchpoints      *attribution.TouchpointAnalysis `json:"touchpoints"`
	Handoffs         *handoffs.Stats                 `json:"handoffs"`
	GeneratedAt      time.Time                       `json:"generated_at"`
}
