package attribution

import (
	"time"
)

// credit distribution rule
type Model string

const (
	ModelFirstTouch    Model = "first_touch"
	ModelLastTouch     Model = "last_touch"
	ModelLinear        Model = "linear"
	ModelTimeDecay     Model = "time_decay"
	ModelPositionBased Model = "position_based"
)

// every supported model, in display order
var Models = []Model{
	ModelFirstTouch,
	ModelLastTouch,
	ModelLinear,
	ModelTimeDecay,
	ModelPositionBased,
}

func (m Model) Valid() bool {
	_, ok := creditFuncs[m]
	return ok
}

const (
	// time_decay half-life
	DecayHalfLife = 7 * 24 * time.Hour

	// position_based share for each end of a journey with three or more touches
	PositionEndShare = 0.4

	// group keys used when a touch carries no source/medium
	SourceDirect   = "direct"
	MediumReferral = "referral"
	MediumNone     = "(none)"
)

// touch id -> fractional credit; values sum to 1 for a non-empty journey
type Credits map[string]float64

// inclusive reporting window; zero ends are unbounded
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// accumulated credit for one grouping key
type Bucket struct {
	Key    string  `json:"key"`
	Credit float64 `json:"credit"`
}

// conversion credit aggregated across a date range
type Report struct {
	ContextID               string    `json:"context_id,omitempty"`
	Model                   Model     `json:"model"`
	Range                   DateRange `json:"range"`
	TotalConversions        int       `json:"total_conversions"`
	AttributedConversions   int       `json:"attributed_conversions"`
	UnattributedConversions int       `json:"unattributed_conversions"`
	BySource                []Bucket  `json:"by_source"`
	ByMedium                []Bucket  `json:"by_medium"`
	ByCampaign              []Bucket  `json:"by_campaign"`
}

// touch volume and attributed conversions for one source / medium pair
type ChannelRow struct {
	Source         string  `json:"source"`
	Medium         string  `json:"medium"`
	Touches        int     `json:"touches"`
	UniqueVisitors int     `json:"unique_visitors"`
	Conversions    float64 `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// one histogram bucket
type CountBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type TimeToConversion struct {
	Conversions int           `json:"conversions"`
	Buckets     []CountBucket `json:"buckets"`
	MeanHours   float64       `json:"mean_hours"`
	MedianHours float64       `json:"median_hours"`
}

type TouchpointAnalysis struct {
	Conversions int           `json:"conversions"`
	Buckets     []CountBucket `json:"buckets"`
	Mean        float64       `json:"mean"`
	Median      float64       `json:"median"`
	Max         int           `json:"max"`
}
