package attribution

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"codeberg.org/touchpath/server/internal/cache"
	"codeberg.org/touchpath/server/internal/metrics"
	"codeberg.org/touchpath/server/touchpath/touches"
)

// reconstructs journeys and aggregates conversion credit into reports
type Calculator struct {
	touches  touches.Repository
	cache    cache.ReportCache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

// rc may be nil to disable report caching
func NewCalculator(repo touches.Repository, rc cache.ReportCache, cacheTTL time.Duration, m *metrics.Metrics) *Calculator {
	return &Calculator{
		touches:  repo,
		cache:    rc,
		cacheTTL: cacheTTL,
		metrics:  m,
	}
}

// touches for the visitor up to conversionTime that carry UTM/referrer
// attribution or are page views, oldest first
func (c *Calculator) JourneyFor(ctx context.Context, visitorID string, conversionTime time.Time) ([]touches.Touch, error) {
	all, err := c.touches.ListForVisitor(ctx, visitorID, conversionTime)
	if err != nil {
		return nil, fmt.Errorf("failed to load journey: %w", err)
	}

	return eligible(all), nil
}

// aggregates credit for every conversion in the range under model
func (c *Calculator) CalculateAttribution(ctx context.Context, contextID string, r DateRange, model Model) (*Report, error) {
	key := cache.Key("attribution", string(model), contextID, rangeKey(r))

	report, err := cache.Load(ctx, c.cache, key, c.cacheTTL, func(ctx context.Context) (Report, error) {
		defer c.metrics.ObserveReport("attribution", time.Now())
		return c.buildAttribution(ctx, contextID, r, model)
	})
	if err != nil {
		return nil, err
	}

	return &report, nil
}

// per source / medium touch volume joined with attributed conversions
func (c *Calculator) ChannelPerformance(ctx context.Context, contextID string, r DateRange, model Model) ([]ChannelRow, error) {
	key := cache.Key("channels", string(model), contextID, rangeKey(r))

	return cache.Load(ctx, c.cache, key, c.cacheTTL, func(ctx context.Context) ([]ChannelRow, error) {
		defer c.metrics.ObserveReport("channels", time.Now())
		return c.buildChannels(ctx, contextID, r, model)
	})
}

// elapsed hours from each converting visitor's earliest touch to the conversion
func (c *Calculator) TimeToConversion(ctx context.Context, contextID string, r DateRange) (*TimeToConversion, error) {
	key := cache.Key("time_to_conversion", contextID, rangeKey(r))

	report, err := cache.Load(ctx, c.cache, key, c.cacheTTL, func(ctx context.Context) (TimeToConversion, error) {
		defer c.metrics.ObserveReport("time_to_conversion", time.Now())
		return c.buildTimeToConversion(ctx, contextID, r)
	})
	if err != nil {
		return nil, err
	}

	return &report, nil
}

// distribution of touch counts per converting visitor
func (c *Calculator) TouchpointAnalysis(ctx context.Context, contextID string, r DateRange) (*TouchpointAnalysis, error) {
	key := cache.Key("touchpoints", contextID, rangeKey(r))

	report, err := cache.Load(ctx, c.cache, key, c.cacheTTL, func(ctx context.Context) (TouchpointAnalysis, error) {
		defer c.metrics.ObserveReport("touchpoints", time.Now())
		return c.buildTouchpoints(ctx, contextID, r)
	})
	if err != nil {
		return nil, err
	}

	return &report, nil
}

func (c *Calculator) buildAttribution(ctx context.Context, contextID string, r DateRange, model Model) (Report, error) {
	if !model.Valid() {
		model = ModelFirstTouch
	}

	report := Report{ContextID: contextID, Model: model, Range: r}

	conversions, err := c.touches.ListConversions(ctx, filter(contextID, r))
	if err != nil {
		return report, fmt.Errorf("failed to load conversions: %w", err)
	}

	bySource := map[string]float64{}
	byMedium := map[string]float64{}
	byCampaign := map[string]float64{}

	for _, conversion := range conversions {
		report.TotalConversions++

		journey, err := c.JourneyFor(ctx, conversion.VisitorID, conversion.CreatedAt)
		if err != nil {
			return report, err
		}

		if len(journey) == 0 {
			report.UnattributedConversions++
			continue
		}

		report.AttributedConversions++

		index := make(map[string]*touches.Touch, len(journey))
		for i := range journey {
			index[journey[i].ID] = &journey[i]
		}

		for id, credit := range CalculateCredits(journey, model) {
			t := index[id]
			source := SourceKey(t)

			bySource[source] += credit
			byMedium[ChannelKey(source, MediumKey(t))] += credit

			if t.UTM.Campaign != "" {
				byCampaign[t.UTM.Campaign] += credit
			}
		}
	}

	report.BySource = sortedBuckets(bySource)
	report.ByMedium = sortedBuckets(byMedium)
	report.ByCampaign = sortedBuckets(byCampaign)

	return report, nil
}

func (c *Calculator) buildChannels(ctx context.Context, contextID string, r DateRange, model Model) ([]ChannelRow, error) {
	inRange, err := c.touches.ListInRange(ctx, filter(contextID, r))
	if err != nil {
		return nil, fmt.Errorf("failed to load touches: %w", err)
	}

	attribution, err := c.buildAttribution(ctx, contextID, r, model)
	if err != nil {
		return nil, err
	}

	conversions := make(map[string]float64, len(attribution.ByMedium))
	for _, b := range attribution.ByMedium {
		conversions[b.Key] = b.Credit
	}

	type channel struct {
		row      ChannelRow
		visitors map[string]struct{}
	}

	channels := map[string]*channel{}
	var order []string

	for i := range inRange {
		t := &inRange[i]
		source, medium := SourceKey(t), MediumKey(t)
		key := ChannelKey(source, medium)

		ch, ok := channels[key]
		if !ok {
			ch = &channel{
				row:      ChannelRow{Source: source, Medium: medium},
				visitors: map[string]struct{}{},
			}
			channels[key] = ch
			order = append(order, key)
		}

		ch.row.Touches++
		ch.visitors[t.VisitorID] = struct{}{}
	}

	rows := make([]ChannelRow, 0, len(order))
	for _, key := range order {
		ch := channels[key]
		ch.row.UniqueVisitors = len(ch.visitors)
		ch.row.Conversions = conversions[key]

		if ch.row.UniqueVisitors > 0 {
			ch.row.ConversionRate = ch.row.Conversions / float64(ch.row.UniqueVisitors) * 100
		}

		rows = append(rows, ch.row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Conversions != rows[j].Conversions {
			return rows[i].Conversions > rows[j].Conversions
		}
		return rows[i].Touches > rows[j].Touches
	})

	return rows, nil
}

// buckets for time-to-conversion, upper bounds in hours
var conversionWindows = []struct {
	label string
	below float64
}{
	{"same_session", 0.5},
	{"same_day", 24},
	{"within_week", 168},
	{"within_month", 720},
	{"over_month", math.Inf(1)},
}

// first conversion of each visitor; conversions arrive oldest first
func firstConversions(conversions []touches.Touch) []touches.Touch {
	seen := make(map[string]struct{}, len(conversions))
	first := make([]touches.Touch, 0, len(conversions))

	for _, conversion := range conversions {
		if _, ok := seen[conversion.VisitorID]; ok {
			continue
		}

		seen[conversion.VisitorID] = struct{}{}
		first = append(first, conversion)
	}

	return first
}

// one sample per converting visitor, measured to their first conversion in
// range. the earliest touch lookup includes the conversion touch itself, so a
// single-touch visitor contributes 0 hours.
func (c *Calculator) buildTimeToConversion(ctx context.Context, contextID string, r DateRange) (TimeToConversion, error) {
	result := TimeToConversion{Buckets: make([]CountBucket, len(conversionWindows))}
	for i, w := range conversionWindows {
		result.Buckets[i].Label = w.label
	}

	conversions, err := c.touches.ListConversions(ctx, filter(contextID, r))
	if err != nil {
		return result, fmt.Errorf("failed to load conversions: %w", err)
	}

	conversions = firstConversions(conversions)

	var hours []float64

	for _, conversion := range conversions {
		history, err := c.touches.ListForVisitor(ctx, conversion.VisitorID, conversion.CreatedAt)
		if err != nil {
			return result, fmt.Errorf("failed to load visitor touches: %w", err)
		}

		if len(history) == 0 {
			continue
		}

		elapsed := conversion.CreatedAt.Sub(history[0].CreatedAt).Hours()
		hours = append(hours, elapsed)

		for i, w := range conversionWindows {
			if elapsed < w.below {
				result.Buckets[i].Count++
				break
			}
		}
	}

	result.Conversions = len(hours)
	result.MeanHours = mean(hours)
	result.MedianHours = Median(hours)

	return result, nil
}

// buckets for touchpoint counts, inclusive upper bounds
var touchpointBuckets = []struct {
	label string
	max   int
}{
	{"1", 1},
	{"2-3", 3},
	{"4-5", 5},
	{"6-10", 10},
	{"11+", math.MaxInt},
}

// touches up to each converting visitor's first conversion in range
func (c *Calculator) buildTouchpoints(ctx context.Context, contextID string, r DateRange) (TouchpointAnalysis, error) {
	result := TouchpointAnalysis{Buckets: make([]CountBucket, len(touchpointBuckets))}
	for i, b := range touchpointBuckets {
		result.Buckets[i].Label = b.label
	}

	conversions, err := c.touches.ListConversions(ctx, filter(contextID, r))
	if err != nil {
		return result, fmt.Errorf("failed to load conversions: %w", err)
	}

	conversions = firstConversions(conversions)

	var counts []float64

	for _, conversion := range conversions {
		history, err := c.touches.ListForVisitor(ctx, conversion.VisitorID, conversion.CreatedAt)
		if err != nil {
			return result, fmt.Errorf("failed to load visitor touches: %w", err)
		}

		n := len(history)
		if n == 0 {
			continue
		}

		counts = append(counts, float64(n))
		if n > result.Max {
			result.Max = n
		}

		for i, b := range touchpointBuckets {
			if n <= b.max {
				result.Buckets[i].Count++
				break
			}
		}
	}

	result.Conversions = len(counts)
	result.Mean = mean(counts)
	result.Median = Median(counts)

	return result, nil
}

// UTM source, else referrer domain, else "direct"
func SourceKey(t *touches.Touch) string {
	if t.UTM.Source != "" {
		return t.UTM.Source
	}

	if t.ReferrerDomain != "" {
		return t.ReferrerDomain
	}

	return SourceDirect
}

// UTM medium, else "referral" for referrer-sourced touches, else "(none)"
func MediumKey(t *touches.Touch) string {
	if t.UTM.Medium != "" {
		return t.UTM.Medium
	}

	if t.UTM.Source == "" && t.ReferrerDomain != "" {
		return MediumReferral
	}

	return MediumNone
}

// "source / medium"
func ChannelKey(source, medium string) string {
	return source + " / " + medium
}

// standard median; mean of the two middle values for even lengths, 0 when empty
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return sorted[n/2]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var total float64
	for _, v := range values {
		total += v
	}

	return total / float64(len(values))
}

func eligible(all []touches.Touch) []touches.Touch {
	out := make([]touches.Touch, 0, len(all))
	for i := range all {
		if all[i].IsJourneyEligible() {
			out = append(out, all[i])
		}
	}

	return out
}

func sortedBuckets(credits map[string]float64) []Bucket {
	buckets := make([]Bucket, 0, len(credits))
	for key, credit := range credits {
		buckets = append(buckets, Bucket{Key: key, Credit: credit})
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Credit != buckets[j].Credit {
			return buckets[i].Credit > buckets[j].Credit
		}
		return buckets[i].Key < buckets[j].Key
	})

	return buckets
}

func filter(contextID string, r DateRange) touches.Filter {
	return touches.Filter{ContextID: contextID, From: r.From, To: r.To}
}

func rangeKey(r DateRange) string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}

	return cache.Key(format(r.From), format(r.To))
}
