package attribution

import (
	"fmt"
	"math"
	"testing"
	"time"

	"codeberg.org/touchpath/server/internal/campaign"
	"codeberg.org/touchpath/server/touchpath/touches"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-4

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func tagged(id, source string, at time.Time) touches.Touch {
	return touches.Touch{
		ID:        id,
		VisitorID: "v",
		Type:      touches.TypePageView,
		UTM:       campaign.UTM{Source: source},
		CreatedAt: at,
	}
}

func pageView(id string, at time.Time) touches.Touch {
	return touches.Touch{ID: id, VisitorID: "v", Type: touches.TypePageView, CreatedAt: at}
}

func journeyOf(n int) []touches.Touch {
	journey := make([]touches.Touch, n)
	for i := range journey {
		journey[i] = tagged(fmt.Sprintf("%d", i+1), fmt.Sprintf("src%d", i+1), base.Add(time.Duration(i)*24*time.Hour))
	}

	return journey
}

func TestCalculateCredits_SumToOne(t *testing.T) {
	for _, model := range append(Models, Model("bogus")) {
		for n := 1; n <= 12; n++ {
			credits := CalculateCredits(journeyOf(n), model)
			assert.InDelta(t, 1.0, credits.Total(), tolerance, "model=%s n=%d", model, n)
		}
	}
}

func TestCalculateCredits_EmptyJourney(t *testing.T) {
	for _, model := range Models {
		credits := CalculateCredits(nil, model)
		assert.NotNil(t, credits)
		assert.Empty(t, credits)
	}
}

func TestCalculateCredits_SingleTouch(t *testing.T) {
	journey := []touches.Touch{tagged("only", "google", base)}

	for _, model := range Models {
		assert.Equal(t, Credits{"only": 1.0}, CalculateCredits(journey, model), string(model))
	}
}

func TestCalculateCredits_FirstAndLast(t *testing.T) {
	journey := []touches.Touch{
		pageView("p0", base),
		tagged("a", "google", base.Add(time.Hour)),
		tagged("b", "facebook", base.Add(2*time.Hour)),
		pageView("p3", base.Add(3*time.Hour)),
		tagged("c", "email", base.Add(4*time.Hour)),
		pageView("p5", base.Add(5*time.Hour)),
	}

	assert.Equal(t, Credits{"a": 1.0}, CalculateCredits(journey, ModelFirstTouch))
	assert.Equal(t, Credits{"c": 1.0}, CalculateCredits(journey, ModelLastTouch))
}

func TestCalculateCredits_UnknownModelIsFirstTouch(t *testing.T) {
	journey := journeyOf(3)
	assert.Equal(t, CalculateCredits(journey, ModelFirstTouch), CalculateCredits(journey, Model("w_shaped")))
}

func TestCalculateCredits_Linear(t *testing.T) {
	for n := 1; n <= 7; n++ {
		credits := CalculateCredits(journeyOf(n), ModelLinear)

		require.Len(t, credits, n)
		for _, credit := range credits {
			assert.InDelta(t, 1.0/float64(n), credit, 1e-12)
		}
	}
}

func TestCalculateCredits_PositionBased(t *testing.T) {
	tests := []struct {
		n    int
		want Credits
	}{
		{1, Credits{"1": 1.0}},
		{2, Credits{"1": 0.5, "2": 0.5}},
		{3, Credits{"1": 0.4, "2": 0.2, "3": 0.4}},
		{4, Credits{"1": 0.4, "2": 0.1, "3": 0.1, "4": 0.4}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			got := CalculateCredits(journeyOf(tt.n), ModelPositionBased)

			require.Len(t, got, len(tt.want))
			for id, want := range tt.want {
				assert.InDelta(t, want, got[id], 1e-12, id)
			}
		})
	}
}

func TestCalculateCredits_TimeDecayIncreasesTowardRecent(t *testing.T) {
	journey := []touches.Touch{
		tagged("old", "a", base),
		tagged("mid", "b", base.Add(5*24*time.Hour)),
		tagged("new", "c", base.Add(9*24*time.Hour)),
		tagged("newest", "d", base.Add(10*24*time.Hour)),
	}

	credits := CalculateCredits(journey, ModelTimeDecay)

	assert.Less(t, credits["old"], credits["mid"])
	assert.Less(t, credits["mid"], credits["new"])
	assert.Less(t, credits["new"], credits["newest"])
}

func TestCalculateCredits_TimeDecayHalfLife(t *testing.T) {
	journey := []touches.Touch{
		tagged("week_ago", "a", base),
		tagged("latest", "b", base.Add(DecayHalfLife)),
	}

	credits := CalculateCredits(journey, ModelTimeDecay)

	// weights 0.5 and 1.0 normalise to 1/3 and 2/3
	assert.InDelta(t, 1.0/3, credits["week_ago"], 1e-9)
	assert.InDelta(t, 2.0/3, credits["latest"], 1e-9)
}

func TestCalculateCredits_TimeDecayReferenceIsLastAttributableTouch(t *testing.T) {
	attributed := []touches.Touch{
		tagged("a", "google", base),
		tagged("b", "bing", base.Add(DecayHalfLife)),
	}

	// a later untagged page view must not shift the decay reference
	withTrailingView := append(append([]touches.Touch{}, attributed...), pageView("late", base.Add(30*24*time.Hour)))

	assert.Equal(t, CalculateCredits(attributed, ModelTimeDecay), CalculateCredits(withTrailingView, ModelTimeDecay))
}

func TestCalculateCredits_PageViewsOnlyCreditFirst(t *testing.T) {
	journey := []touches.Touch{
		pageView("first", base),
		pageView("second", base.Add(time.Hour)),
		pageView("third", base.Add(2*time.Hour)),
	}

	for _, model := range Models {
		assert.Equal(t, Credits{"first": 1.0}, CalculateCredits(journey, model), string(model))
	}
}

func TestCalculateCredits_ReferrerCountsAsAttributable(t *testing.T) {
	journey := []touches.Touch{
		pageView("plain", base),
		{ID: "ref", Type: touches.TypePageView, ReferrerDomain: "news.ycombinator.com", CreatedAt: base.Add(time.Hour)},
	}

	assert.Equal(t, Credits{"ref": 1.0}, CalculateCredits(journey, ModelFirstTouch))
}

func TestCalculateCredits_LinearExample(t *testing.T) {
	d1 := base
	d2 := base.Add(24 * time.Hour)
	d3 := base.Add(48 * time.Hour)

	journey := []touches.Touch{
		tagged("touch1", "google", d1),
		tagged("touch2", "facebook", d2),
		tagged("touch3", "email", d3),
	}

	credits := CalculateCredits(journey, ModelLinear)

	for _, id := range []string{"touch1", "touch2", "touch3"} {
		assert.Equal(t, 0.3333, math.Round(credits[id]*10000)/10000)
	}
}
