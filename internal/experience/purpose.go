package experience

import (
	"math"
	"time"
)

// PurposeAggregate accumulates attempt history for one purpose across
// records, keyed by the purpose's context-free hash.
type PurposeAggregate struct {
	PurposeHash string    `json:"purpose_hash"`
	Purpose     string    `json:"purpose"`
	FirstSeen   time.Time `json:"first_seen"`
	LastAttempt time.Time `json:"last_attempt"`

	TotalAttempts      int `json:"total_attempts"`
	SuccessfulAttempts int `json:"successful_attempts"`
	FailedAttempts     int `json:"failed_attempts"`

	// MeansEffectiveness keeps per-means observed effectiveness samples.
	MeansEffectiveness map[string][]float64 `json:"means_effectiveness"`

	ConsecutiveFailures int     `json:"consecutive_failures"`
	BoredomLevel        float64 `json:"boredom_level"`
}

// NewPurposeAggregate starts tracking a purpose.
func NewPurposeAggregate(purpose string) *PurposeAggregate {
	now := time.Now()
	return &PurposeAggregate{
		PurposeHash:        HashContext(purpose),
		Purpose:            purpose,
		FirstSeen:          now,
		LastAttempt:        now,
		MeansEffectiveness: make(map[string][]float64),
	}
}

// RecordAttempt folds one attempt into the aggregate. Success resets
// the failure streak and eases boredom; a streak longer than three
// failures raises it.
func (p *PurposeAggregate) RecordAttempt(means string, effectiveness float64, success bool) {
	p.TotalAttempts++
	p.LastAttempt = time.Now()
	if p.MeansEffectiveness == nil {
		p.MeansEffectiveness = make(map[string][]float64)
	}
	p.MeansEffectiveness[means] = append(p.MeansEffectiveness[means], effectiveness)

	if success {
		p.SuccessfulAttempts++
		p.ConsecutiveFailures = 0
		p.BoredomLevel = math.Max(0.0, p.BoredomLevel-0.1)
		return
	}

	p.FailedAttempts++
	p.ConsecutiveFailures++
	if p.ConsecutiveFailures > 3 {
		p.BoredomLevel = math.Min(1.0, p.BoredomLevel+0.15)
	}
}

// SuccessRate returns the fraction of attempts that succeeded.
func (p *PurposeAggregate) SuccessRate() float64 {
	if p.TotalAttempts == 0 {
		return 0
	}
	return float64(p.SuccessfulAttempts) / float64(p.TotalAttempts)
}

// IsBoring reports whether the purpose has gone stale: high boredom or
// a long failure streak.
func (p *PurposeAggregate) IsBoring() bool {
	return p.BoredomLevel > 0.7 || p.ConsecutiveFailures > 5
}

// BestMeans returns the means with the highest mean effectiveness and
// that mean value. Empty string when nothing has been tried.
func (p *PurposeAggregate) BestMeans() (string, float64) {
	best := ""
	bestMean := math.Inf(-1)
	for means, samples := range p.MeansEffectiveness {
		if len(samples) == 0 {
			continue
		}
		sum := 0.0
		for _, s := range samples {
			sum += s
		}
		mean := sum / float64(len(samples))
		if mean > bestMean {
			best = means
			bestMean = mean
		}
	}
	if best == "" {
		return "", 0
	}
	return best, bestMean
}

// MeanEffectiveness returns the mean effectiveness across all means
// samples for this purpose.
func (p *PurposeAggregate) MeanEffectiveness() float64 {
	sum, n := 0.0, 0
	for _, samples := range p.MeansEffectiveness {
		for _, s := range samples {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
