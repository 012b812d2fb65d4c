package experience

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// neutralBand is the happiness delta magnitude below which an outcome
// counts as neither positive nor negative.
const neutralBand = 0.01

// Record is one completed decision cycle: what was attempted, how, and
// what it changed. Records are immutable after Append except through
// AddAdjustment, RecordValidation, and UpdateBoredom.
type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	CycleID   int       `json:"cycle_id"`

	Context     string `json:"context"`
	ContextHash string `json:"context_hash"`

	Purpose        string             `json:"purpose"`
	PurposeDesires map[string]float64 `json:"purpose_desires"`

	Means          string `json:"means"`
	MeansType      string `json:"means_type"`
	ThoughtSummary string `json:"thought_summary,omitempty"`
	ThoughtCount   int    `json:"thought_count"`
	ActionText     string `json:"action_text"`
	ResponseType   string `json:"response_type,omitempty"`

	DesireDelta        map[string]float64 `json:"desire_delta"`
	TotalDelta         float64            `json:"total_delta"`
	MeansEffectiveness float64            `json:"means_effectiveness"`

	PurposeAchieved       bool    `json:"purpose_achieved"`
	AchievementDegree     float64 `json:"achievement_degree"`
	AchievementMultiplier float64 `json:"achievement_multiplier"`
	IsAchievement         bool    `json:"is_achievement"`

	RepetitionCount      int       `json:"repetition_count"`
	EffectivenessHistory []float64 `json:"effectiveness_history,omitempty"`
	BoredomLevel         float64   `json:"boredom_level"`

	Adjustments []Adjustment `json:"adjustments,omitempty"`

	Validations           int `json:"validations"`
	SuccessfulValidations int `json:"successful_validations"`
}

// Adjustment is a post-hoc correction applied to a record's outcome,
// kept alongside the record for audit.
type Adjustment struct {
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
	Factor     float64   `json:"factor"`
	Impact     float64   `json:"impact"`
	AdjustedBy string    `json:"adjusted_by"`
}

// HashContext returns the short stable hash used to group records by
// situation.
func HashContext(context string) string {
	sum := md5.Sum([]byte(context))
	return hex.EncodeToString(sum[:])[:16]
}

func (r *Record) IsPositive() bool { return r.TotalDelta > neutralBand }
func (r *Record) IsNegative() bool { return r.TotalDelta < -neutralBand }
func (r *Record) IsNeutral() bool  { return math.Abs(r.TotalDelta) <= neutralBand }

// WeightedDelta returns the happiness delta scaled by the achievement
// multiplier. Achieved multi-step outcomes count for more in retrieval
// and bias math.
func (r *Record) WeightedDelta() float64 {
	if r.AchievementMultiplier <= 0 {
		return r.TotalDelta
	}
	return r.TotalDelta * r.AchievementMultiplier
}

// AchievementMultiplierFor computes the multiplier earned by a cycle
// that took thoughtCount reasoning steps: base + (steps-1)*stepWeight,
// capped at max.
func AchievementMultiplierFor(thoughtCount int, base, stepWeight, max float64) float64 {
	if thoughtCount < 1 {
		thoughtCount = 1
	}
	m := base + float64(thoughtCount-1)*stepWeight
	return math.Min(m, max)
}

// AddAdjustment records a correction and applies its impact to the
// total delta. Factor is kept for audit only.
func (r *Record) AddAdjustment(reason string, factor, impact float64, adjustedBy string) {
	r.Adjustments = append(r.Adjustments, Adjustment{
		Timestamp:  time.Now(),
		Reason:     reason,
		Factor:     factor,
		Impact:     impact,
		AdjustedBy: adjustedBy,
	})
	r.TotalDelta += impact
}

// RecordValidation notes an external confirmation or refutation of the
// record's outcome.
func (r *Record) RecordValidation(confirmed bool) {
	r.Validations++
	if confirmed {
		r.SuccessfulValidations++
	}
}

// Reliability returns the confirmed fraction of validations, or 0.5
// when the record has never been validated.
func (r *Record) Reliability() float64 {
	if r.Validations == 0 {
		return 0.5
	}
	return float64(r.SuccessfulValidations) / float64(r.Validations)
}

// UpdateBoredom appends an effectiveness observation and moves the
// boredom level: a full window of low effectiveness raises it, anything
// else lets it recover.
func (r *Record) UpdateBoredom(effectiveness float64) {
	r.EffectivenessHistory = append(r.EffectivenessHistory, effectiveness)
	if len(r.EffectivenessHistory) > 5 {
		r.EffectivenessHistory = r.EffectivenessHistory[len(r.EffectivenessHistory)-5:]
	}

	if len(r.EffectivenessHistory) == 5 {
		sum := 0.0
		for _, e := range r.EffectivenessHistory {
			sum += e
		}
		if sum/5 < 0.3 {
			r.BoredomLevel = math.Min(1.0, r.BoredomLevel+0.2)
			return
		}
	}
	r.BoredomLevel = math.Max(0.0, r.BoredomLevel-0.1)
}

// ValidationError reports a record rejected before mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

// validate checks a record against the configured desire vocabulary.
func validate(r *Record, desires map[string]bool) error {
	if r.Context == "" {
		return &ValidationError{Field: "context", Reason: "empty"}
	}
	if r.ThoughtCount < 0 {
		return &ValidationError{Field: "thought_count", Reason: "negative"}
	}
	if r.RepetitionCount < 0 {
		return &ValidationError{Field: "repetition_count", Reason: "negative"}
	}
	for name := range r.PurposeDesires {
		if !desires[name] {
			return &ValidationError{Field: "purpose_desires", Reason: fmt.Sprintf("unknown desire %q", name)}
		}
	}
	for name := range r.DesireDelta {
		if !desires[name] {
			return &ValidationError{Field: "desire_delta", Reason: fmt.Sprintf("unknown desire %q", name)}
		}
	}
	return nil
}
