// Package bias applies the cognitive weighting transforms used when the
// agent values predicted outcomes: loss aversion, temporal discounting,
// reliability weighting, and achievability-driven desire reallocation.
package bias

import (
	"math"
	"sort"
	"time"

	"mnemo/internal/config"
)

// Outcome is the slice of a past experience the bias math needs. It
// deliberately carries no record identity so callers can feed it from
// any source.
type Outcome struct {
	Timestamp     time.Time
	Achieved      bool
	Effectiveness float64
	Delta         float64 // achievement-weighted happiness delta
}

// System evaluates bias transforms against one configuration. All
// methods are pure; System is safe for concurrent use.
type System struct {
	cfg config.BiasConfig
	now func() time.Time
}

// New creates a System from config.
func New(cfg config.BiasConfig) *System {
	return &System{cfg: cfg, now: time.Now}
}

// ApplyFear amplifies negative predicted values by the static fear
// multiplier. Non-negative values pass through unchanged.
func (s *System) ApplyFear(v float64) float64 {
	if v >= 0 {
		return v
	}
	return v * s.cfg.FearMultiplier
}

// LossAversionRatio scales fear by how badly past negatives actually
// hurt: mean magnitude above 0.5 pushes the multiplier up 50%, above
// 0.3 up 20%.
func (s *System) LossAversionRatio(history []Outcome) float64 {
	sum, n := 0.0, 0
	for _, o := range history {
		if o.Delta < 0 {
			sum += -o.Delta
			n++
		}
	}
	if n == 0 {
		return 1.0
	}
	mean := sum / float64(n)
	switch {
	case mean > 0.5:
		return 1.5
	case mean > 0.3:
		return 1.2
	default:
		return 1.0
	}
}

// ApplyFearDynamic is ApplyFear with the multiplier scaled by the loss
// aversion ratio learned from history.
func (s *System) ApplyFearDynamic(v float64, history []Outcome) float64 {
	if v >= 0 {
		return v
	}
	return v * s.cfg.FearMultiplier * s.LossAversionRatio(history)
}

// ApplyTimeDiscount shrinks a value expected delay time units in the
// future: v / (1 + rate*delay). Non-positive delays pass through.
func (s *System) ApplyTimeDiscount(v, delay float64) float64 {
	if delay <= 0 {
		return v
	}
	return v / (1 + s.cfg.TimeDiscountRate*delay)
}

// ApplyHyperbolicDiscount uses the flatter far-future curve
// v / (1 + rate*delay)^exp, which discounts the near future more
// steeply than the exponential form.
func (s *System) ApplyHyperbolicDiscount(v, delay float64) float64 {
	if delay <= 0 {
		return v
	}
	exp := s.cfg.HyperbolicExponent
	if exp <= 0 {
		exp = 0.7
	}
	return v / math.Pow(1+s.cfg.TimeDiscountRate*delay, exp)
}

// PossibilityWeight estimates how much a prediction deserves to be
// believed, from the history of attempts behind it. No history gives
// the neutral 0.5; thin history stays capped below it.
func (s *System) PossibilityWeight(history []Outcome) float64 {
	if len(history) == 0 {
		return 0.5
	}
	min := s.cfg.MinOutcomesForReliability
	if min <= 0 {
		min = 3
	}
	if len(history) < min {
		return math.Min(0.3+0.1*float64(len(history)), 0.5)
	}

	now := s.now()
	rate := s.cfg.TimeDecayRate

	// Recency-weighted success rate.
	weightSum, successSum := 0.0, 0.0
	successes := 0
	for _, o := range history {
		age := now.Sub(o.Timestamp).Seconds()
		if age < 0 {
			age = 0
		}
		w := math.Exp(-rate * age)
		weightSum += w
		if o.Achieved {
			successSum += w
			successes++
		}
	}
	timeWeighted := 0.0
	if weightSum > 0 {
		timeWeighted = successSum / weightSum
	}
	rawRate := float64(successes) / float64(len(history))

	// Consistency from effectiveness spread: tight spread means the
	// means behaves predictably.
	mean := 0.0
	for _, o := range history {
		mean += o.Effectiveness
	}
	mean /= float64(len(history))
	variance := 0.0
	for _, o := range history {
		d := o.Effectiveness - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(history)))
	consistency := math.Min(1/(std+0.1), 5) / 5

	w := 0.5*timeWeighted + 0.3*consistency + 0.2*rawRate
	return math.Max(0, math.Min(1, w))
}

// ApplyOwning reallocates desire weight from desires that look easy to
// satisfy toward those that look hard, conserving total mass. Each
// above-average desire gives up deviation*decayRate*weight; the pool is
// shared among below-average desires proportional to how unachievable
// they look. The result is renormalized to sum to 1.
func (s *System) ApplyOwning(weights, achievability map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for name, w := range weights {
		out[name] = w
	}
	if len(weights) == 0 {
		return out
	}

	avg := 0.0
	for name := range weights {
		avg += achievability[name]
	}
	avg /= float64(len(weights))

	pool := 0.0
	needSum := 0.0
	for name, w := range weights {
		dev := achievability[name] - avg
		if dev > 0 {
			rate := s.cfg.OwningDecayRates[name]
			if rate == 0 {
				rate = s.cfg.AchievabilityTransferRate
			}
			give := dev * rate * w
			out[name] -= give
			pool += give
		} else if dev < 0 {
			needSum += 1 - achievability[name]
		}
	}

	if pool > 0 && needSum > 0 {
		for name := range weights {
			if achievability[name]-avg < 0 {
				out[name] += pool * (1 - achievability[name]) / needSum
			}
		}
	}

	total := 0.0
	for name, w := range out {
		if w < 0 {
			out[name] = 0
			w = 0
		}
		total += w
	}
	if total > 0 {
		for name := range out {
			out[name] /= total
		}
	}
	return out
}

// ApplyAll composes the value transforms in their fixed order:
// possibility weighting, then fear (dynamic when history exists), then
// temporal discounting.
func (s *System) ApplyAll(v float64, history []Outcome, delay float64, hyperbolic bool) float64 {
	v *= s.PossibilityWeight(history)
	if len(history) > 0 {
		v = s.ApplyFearDynamic(v, history)
	} else {
		v = s.ApplyFear(v)
	}
	if hyperbolic {
		return s.ApplyHyperbolicDiscount(v, delay)
	}
	return s.ApplyTimeDiscount(v, delay)
}

// Candidate is an action under consideration: its predicted value, the
// history backing that prediction, and how far away the payoff is.
type Candidate struct {
	Predicted float64
	History   []Outcome
	Delay     float64
}

// Ranked is a candidate after bias adjustment.
type Ranked struct {
	Name     string  `json:"name"`
	Raw      float64 `json:"raw"`
	Adjusted float64 `json:"adjusted"`
}

// CompareActions ranks candidates by bias-adjusted value, best first.
// Ties break on name for stable output.
func (s *System) CompareActions(candidates map[string]Candidate, hyperbolic bool) []Ranked {
	out := make([]Ranked, 0, len(candidates))
	for name, c := range candidates {
		out = append(out, Ranked{
			Name:     name,
			Raw:      c.Predicted,
			Adjusted: s.ApplyAll(c.Predicted, c.History, c.Delay, hyperbolic),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Adjusted != out[j].Adjusted {
			return out[i].Adjusted > out[j].Adjusted
		}
		return out[i].Name < out[j].Name
	})
	return out
}
