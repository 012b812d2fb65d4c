// Package engine wires the memory stores together: every finished
// decision cycle lands in the experience store, the rolling timeline,
// and the episodic archive in one call.
package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"mnemo/internal/bias"
	"mnemo/internal/compaction"
	"mnemo/internal/config"
	"mnemo/internal/experience"
	"mnemo/internal/retrieval"
	"mnemo/internal/similarity"
	"mnemo/internal/summarize"
)

// Engine owns the stores and the background flush loop.
type Engine struct {
	Store     *experience.Store
	Timeline  *compaction.Timeline
	Archive   *compaction.Archive
	Retriever *retrieval.Retriever
	Bias      *bias.System

	cfg    config.Config
	stopCh chan struct{}
}

// Open creates an Engine with stores rooted in dataDir. The summarizer
// may be nil.
func Open(cfg config.Config, dataDir string, summarizer summarize.Client) (*Engine, error) {
	store, err := experience.Open(filepath.Join(dataDir, "experiences.json"), experience.Options{
		Desires:        cfg.DesireNames(),
		BackupInterval: cfg.Storage.BackupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("open experience store: %w", err)
	}
	timeline, err := compaction.OpenTimeline(filepath.Join(dataDir, "timeline.json"))
	if err != nil {
		return nil, fmt.Errorf("open timeline: %w", err)
	}
	archive, err := compaction.OpenArchive(filepath.Join(dataDir, "archive.json"), summarizer)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	return &Engine{
		Store:     store,
		Timeline:  timeline,
		Archive:   archive,
		Retriever: retrieval.New(store, similarity.CharBigram{}, cfg.Retrieval),
		Bias:      bias.New(cfg.Bias),
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}, nil
}

// Input is one finished decision cycle to remember.
type Input struct {
	CycleID        int                `json:"cycle_id"`
	Context        string             `json:"context"`
	Purpose        string             `json:"purpose"`
	PurposeDesires map[string]float64 `json:"purpose_desires"`
	Means          string             `json:"means"`
	MeansType      string             `json:"means_type"`
	ThoughtSummary string             `json:"thought_summary"`
	ThoughtCount   int                `json:"thought_count"`
	ActionText     string             `json:"action_text"`
	ResponseType   string             `json:"response_type"`
	Result         string             `json:"result"`

	DesireDelta        map[string]float64 `json:"desire_delta"`
	MeansEffectiveness float64            `json:"means_effectiveness"`
	PurposeAchieved    bool               `json:"purpose_achieved"`
	AchievementDegree  float64            `json:"achievement_degree"`
}

// Record fans one cycle out to all three stores and updates the
// purpose history. The returned record carries its assigned ID.
func (e *Engine) Record(ctx context.Context, in Input) (*experience.Record, error) {
	total := 0.0
	for _, d := range in.DesireDelta {
		total += d
	}

	rec := &experience.Record{
		CycleID:            in.CycleID,
		Context:            in.Context,
		Purpose:            in.Purpose,
		PurposeDesires:     in.PurposeDesires,
		Means:              in.Means,
		MeansType:          in.MeansType,
		ThoughtSummary:     in.ThoughtSummary,
		ThoughtCount:       in.ThoughtCount,
		ActionText:         in.ActionText,
		ResponseType:       in.ResponseType,
		DesireDelta:        in.DesireDelta,
		TotalDelta:         total,
		MeansEffectiveness: in.MeansEffectiveness,
		PurposeAchieved:    in.PurposeAchieved,
		AchievementDegree:  in.AchievementDegree,
	}
	rec.AchievementMultiplier = 1.0
	if in.PurposeAchieved {
		rec.IsAchievement = true
		rec.AchievementMultiplier = experience.AchievementMultiplierFor(in.ThoughtCount,
			e.cfg.Achievement.BaseMultiplier, e.cfg.Achievement.StepWeight, e.cfg.Achievement.MaxMultiplier)
	}
	rec.UpdateBoredom(in.MeansEffectiveness)

	if err := e.Store.Append(rec); err != nil {
		return nil, err
	}
	e.Store.RecordAttempt(in.Purpose, in.Means, in.MeansEffectiveness, in.PurposeAchieved)

	e.Timeline.Push(cycleSummary(in), in.PurposeDesires)
	e.Archive.Record(ctx, in.ThoughtSummary, in.Context, in.ActionText, in.Result)

	return rec, nil
}

// cycleSummary renders the one-line timeline content for a cycle.
func cycleSummary(in Input) string {
	var b strings.Builder
	b.WriteString(in.Purpose)
	if in.ActionText != "" {
		b.WriteString(" / ")
		b.WriteString(in.ActionText)
	}
	if in.Result != "" {
		b.WriteString(" -> ")
		b.WriteString(in.Result)
	}
	return b.String()
}

// StartFlushTimer persists all stores now and then periodically until
// Stop is called.
func (e *Engine) StartFlushTimer(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	e.flush()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.flush()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *Engine) flush() {
	if err := e.Store.Flush(); err != nil {
		log.Printf("flush: experience store: %v", err)
	}
	if err := e.Timeline.Flush(); err != nil {
		log.Printf("flush: timeline: %v", err)
	}
	if err := e.Archive.Flush(); err != nil {
		log.Printf("flush: archive: %v", err)
	}
}

// Stop shuts down the engine's background goroutine and flushes once
// more.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.flush()
}

// Status aggregates diagnostics across all stores.
type Status struct {
	Store     experience.Stats         `json:"store"`
	Timeline  compaction.TimelineStats `json:"timeline"`
	Archive   compaction.ArchiveStats  `json:"archive"`
	Retrieval retrieval.Stats          `json:"retrieval"`
}

// Status snapshots the counters of every store.
func (e *Engine) Status() Status {
	return Status{
		Store:     e.Store.Statistics(),
		Timeline:  e.Timeline.Stats(),
		Archive:   e.Archive.Stats(),
		Retrieval: e.Retriever.Statistics(),
	}
}
