package attribution

import (
	"math"

	"codeberg.org/touchpath/server/touchpath/touches"
)

type creditFunc func(attributable []touches.Touch) Credits

var creditFuncs = map[Model]creditFunc{
	ModelFirstTouch:    firstTouch,
	ModelLastTouch:     lastTouch,
	ModelLinear:        linear,
	ModelTimeDecay:     timeDecay,
	ModelPositionBased: positionBased,
}

// distributes one conversion's credit across a journey.
// journeys without any attributable touch credit their first touch in full;
// unknown models behave as first_touch.
func CalculateCredits(journey []touches.Touch, model Model) Credits {
	credits := Credits{}
	if len(journey) == 0 {
		return credits
	}

	attributable := make([]touches.Touch, 0, len(journey))
	for i := range journey {
		if journey[i].IsAttributable() {
			attributable = append(attributable, journey[i])
		}
	}

	if len(attributable) == 0 {
		credits[journey[0].ID] = 1.0
		return credits
	}

	fn, ok := creditFuncs[model]
	if !ok {
		fn = firstTouch
	}

	return fn(attributable)
}

func firstTouch(ts []touches.Touch) Credits {
	return Credits{ts[0].ID: 1.0}
}

func lastTouch(ts []touches.Touch) Credits {
	return Credits{ts[len(ts)-1].ID: 1.0}
}

func linear(ts []touches.Touch) Credits {
	credits := Credits{}
	share := 1.0 / float64(len(ts))

	for _, t := range ts {
		credits[t.ID] += share
	}

	return credits
}

// weights decay by half every DecayHalfLife, measured back from the
// last attributable touch rather than the conversion itself
func timeDecay(ts []touches.Touch) Credits {
	reference := ts[len(ts)-1].CreatedAt
	halfLife := DecayHalfLife.Seconds()

	weights := make([]float64, len(ts))
	var total float64

	for i, t := range ts {
		age := reference.Sub(t.CreatedAt).Seconds()
		weights[i] = math.Pow(0.5, age/halfLife)
		total += weights[i]
	}

	credits := Credits{}
	for i, t := range ts {
		credits[t.ID] += weights[i] / total
	}

	return credits
}

func positionBased(ts []touches.Touch) Credits {
	n := len(ts)

	switch n {
	case 1:
		return Credits{ts[0].ID: 1.0}
	case 2:
		credits := Credits{}
		credits[ts[0].ID] += 0.5
		credits[ts[1].ID] += 0.5
		return credits
	}

	credits := Credits{}
	middle := (1.0 - 2*PositionEndShare) / float64(n-2)

	credits[ts[0].ID] += PositionEndShare
	for _, t := range ts[1 : n-1] {
		credits[t.ID] += middle
	}
	credits[ts[n-1].ID] += PositionEndShare

	return credits
}

// sum of all credits
func (c Credits) Total() float64 {
	var total float64
	for _, v := range c {
		total += v
	}

	return total
}
