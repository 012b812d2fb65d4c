// Package retrieval scores stored experiences against the current
// situation so past outcomes can steer upcoming decisions.
package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"mnemo/internal/config"
	"mnemo/internal/experience"
	"mnemo/internal/similarity"
)

// checkEvery bounds how long a scan runs between context checks.
const checkEvery = 64

// Retriever ranks experiences from a store. Safe for concurrent use.
type Retriever struct {
	store *experience.Store
	tok   similarity.Tokenizer
	cfg   config.RetrievalConfig

	mu    sync.Mutex
	stats Stats
}

// Stats counts retrieval activity for diagnostics.
type Stats struct {
	SimilarQueries    int `json:"similar_queries"`
	MeansQueries      int `json:"means_queries"`
	PredictionQueries int `json:"prediction_queries"`
	BiasQueries       int `json:"bias_queries"`
	RecordsReturned   int `json:"records_returned"`
}

// New creates a Retriever over store. A nil tokenizer gets the default
// char/bigram one.
func New(store *experience.Store, tok similarity.Tokenizer, cfg config.RetrievalConfig) *Retriever {
	if tok == nil {
		tok = similarity.CharBigram{}
	}
	return &Retriever{store: store, tok: tok, cfg: cfg}
}

// Query describes the current situation to match against.
type Query struct {
	Context         string
	Purpose         string
	PurposeDesires  map[string]float64
	TopK            int     // 0 means the configured default
	MinSimilarity   float64 // 0 means the configured threshold
	IncludeNegative bool
}

// Scored is a record with its retrieval weighting broken out.
type Scored struct {
	Record            *experience.Record `json:"record"`
	Similarity        float64            `json:"similarity"`
	TimeWeight        float64            `json:"time_weight"`
	AchievementWeight float64            `json:"achievement_weight"`
	BoredomWeight     float64            `json:"boredom_weight"`
	Score             float64            `json:"score"`
}

// RetrieveSimilar returns the top experiences matching q, scored by
// similarity, recency, achievement weight, and boredom. On context
// cancellation it returns the partial ranking built so far along with
// ctx.Err().
func (r *Retriever) RetrieveSimilar(ctx context.Context, q Query) ([]Scored, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	minSim := q.MinSimilarity
	if minSim <= 0 {
		minSim = r.cfg.SimilarityThreshold
	}

	now := time.Now()
	var out []Scored
	var scanErr error

	for i, rec := range r.store.All() {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				scanErr = err
				break
			}
		}
		if rec.IsNegative() && !q.IncludeNegative {
			continue
		}

		contextSim := similarity.Text(r.tok, q.Context, rec.Context)
		purposeSim := similarity.PurposeOverlap(r.tok, q.Purpose, q.PurposeDesires, rec.Purpose, rec.PurposeDesires)
		sim := 0.4*contextSim + 0.6*purposeSim
		if sim < minSim {
			continue
		}

		s := Scored{
			Record:            rec,
			Similarity:        sim,
			TimeWeight:        r.timeWeight(now, rec.Timestamp),
			AchievementWeight: achievementWeight(rec),
			BoredomWeight:     r.boredomWeight(rec.BoredomLevel),
		}
		s.Score = s.Similarity * s.TimeWeight * s.AchievementWeight * s.BoredomWeight
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	if len(out) > topK {
		out = out[:topK]
	}

	r.count(func(st *Stats) {
		st.SimilarQueries++
		st.RecordsReturned += len(out)
	})
	return out, scanErr
}

func (r *Retriever) timeWeight(now, ts time.Time) float64 {
	age := now.Sub(ts).Seconds()
	if age < 0 {
		age = 0
	}
	return math.Exp(-r.cfg.TimeDecayRate * age)
}

// achievementWeight uses the record's own earned multiplier, so a
// hard-won five-step achievement outranks a lucky one-step win.
func achievementWeight(rec *experience.Record) float64 {
	if !rec.IsAchievement {
		return 1.0
	}
	if rec.AchievementMultiplier > 0 {
		return rec.AchievementMultiplier
	}
	return 1.0
}

func (r *Retriever) boredomWeight(boredom float64) float64 {
	w := 1 - boredom*r.cfg.BoredomPenalty
	if w < 0 {
		return 0
	}
	return w
}

// MeansRank is one means type with its aggregate desirability and the
// IDs of the experiences that back it.
type MeansRank struct {
	MeansType string  `json:"means_type"`
	Score     float64 `json:"score"`
	Count     int     `json:"count"`
	RecordIDs []int64 `json:"record_ids"`
}

// RetrieveForMeansSelection groups experiences relevant to purpose by
// means type and ranks the groups by weighted mean effectiveness.
func (r *Retriever) RetrieveForMeansSelection(ctx context.Context, purpose string, desires map[string]float64) ([]MeansRank, error) {
	now := time.Now()
	sums := make(map[string]float64)
	ids := make(map[string][]int64)
	var scanErr error

	for i, rec := range r.store.All() {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				scanErr = err
				break
			}
		}
		overlap := similarity.PurposeOverlap(r.tok, purpose, desires, rec.Purpose, rec.PurposeDesires)
		if overlap <= 0.3 {
			continue
		}
		w := rec.MeansEffectiveness * r.timeWeight(now, rec.Timestamp) *
			achievementWeight(rec) * r.boredomWeight(rec.BoredomLevel)
		sums[rec.MeansType] += w
		ids[rec.MeansType] = append(ids[rec.MeansType], rec.ID)
	}

	out := make([]MeansRank, 0, len(sums))
	for mt, sum := range sums {
		out = append(out, MeansRank{
			MeansType: mt,
			Score:     sum / float64(len(ids[mt])),
			Count:     len(ids[mt]),
			RecordIDs: ids[mt],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MeansType < out[j].MeansType
	})

	r.count(func(st *Stats) { st.MeansQueries++ })
	return out, scanErr
}

// predictionLimit caps how many precedents feed an outcome prediction.
const predictionLimit = 10

// RetrieveForPrediction returns experiences that used the same means
// type on a similar purpose, for predicting what the means will do.
func (r *Retriever) RetrieveForPrediction(ctx context.Context, purpose string, desires map[string]float64, means, meansType string) ([]Scored, error) {
	out, err := r.predictionScan(ctx, purpose, desires, means, meansType)
	r.count(func(st *Stats) {
		st.PredictionQueries++
		st.RecordsReturned += len(out)
	})
	return out, err
}

func (r *Retriever) predictionScan(ctx context.Context, purpose string, desires map[string]float64, means, meansType string) ([]Scored, error) {
	var out []Scored
	var scanErr error

	for i, rec := range r.store.All() {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				scanErr = err
				break
			}
		}
		if rec.MeansType != meansType {
			continue
		}
		purposeSim := similarity.PurposeOverlap(r.tok, purpose, desires, rec.Purpose, rec.PurposeDesires)
		meansSim := similarity.Text(r.tok, means, rec.Means)
		relevance := 0.5*purposeSim + 0.5*meansSim
		if relevance <= 0.3 {
			continue
		}
		out = append(out, Scored{Record: rec, Similarity: relevance, Score: relevance})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	if len(out) > predictionLimit {
		out = out[:predictionLimit]
	}
	return out, scanErr
}

// CalculateMeansBias estimates how promising a means looks for purpose:
// the chance it worked in comparable situations, times how strongly the
// desires moved when it did, damped by boredom with the purpose/means
// pair. No relevant history gives the neutral 0.5.
func (r *Retriever) CalculateMeansBias(ctx context.Context, means, meansType, purpose string, desires map[string]float64) (float64, error) {
	r.count(func(st *Stats) { st.BiasQueries++ })

	relevant, err := r.predictionScan(ctx, purpose, desires, means, meansType)
	if err != nil {
		return 0.5, err
	}
	if len(relevant) == 0 {
		return 0.5, nil
	}

	avgEffectiveness := 0.0
	avgChange := 0.0
	achieved := 0
	for _, s := range relevant {
		avgEffectiveness += s.Record.MeansEffectiveness
		if s.Record.PurposeAchieved {
			avgChange += math.Abs(s.Record.WeightedDelta())
			achieved++
		}
	}
	avgEffectiveness /= float64(len(relevant))
	successRate := float64(achieved) / float64(len(relevant))
	if achieved > 0 {
		avgChange /= float64(achieved)
	} else {
		avgChange = 0.1
	}

	boredom, err := r.DetectBoredom(ctx, purpose, means)
	if err != nil {
		return 0.5, err
	}

	bias := successRate * avgEffectiveness * avgChange * r.boredomWeight(boredom)
	if bias < 0 {
		bias = 0
	}
	return bias, nil
}

// boredomRecent is how many recent records DetectBoredom inspects.
const boredomRecent = 10

// DetectBoredom measures repetition without payoff around the given
// purpose and means. Less than three relevant recent records means no
// signal.
func (r *Retriever) DetectBoredom(ctx context.Context, purpose, means string) (float64, error) {
	recent := r.store.Recent(boredomRecent)

	var relevant []*experience.Record
	for i, rec := range recent {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		purposeSim := similarity.Text(r.tok, purpose, rec.Purpose)
		meansSim := similarity.Text(r.tok, means, rec.Means)
		if purposeSim > 0.5 && meansSim > 0.5 {
			relevant = append(relevant, rec)
		}
	}
	if len(relevant) < 3 {
		return 0, nil
	}

	// BoredomFactor expects chronological order; Recent is newest first.
	for i, j := 0, len(relevant)-1; i < j; i, j = i+1, j-1 {
		relevant[i], relevant[j] = relevant[j], relevant[i]
	}
	return similarity.BoredomFactor(r.tok, relevant), nil
}

// Statistics returns a copy of the activity counters.
func (r *Retriever) Statistics() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Retriever) count(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
