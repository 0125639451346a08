// Package orchestrator executes discovery runs: category detection, tiered
// source fan-out, candidate merging, and confidence scoring.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadscout/leadscout/internal/category"
	"github.com/leadscout/leadscout/internal/confidence"
	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/progress"
	"github.com/leadscout/leadscout/internal/retry"
	"github.com/leadscout/leadscout/internal/sources"
)

// Scorer is the slice of the confidence subsystem the orchestrator needs.
type Scorer interface {
	Score(ctx context.Context, in confidence.Input) discovery.ConfidenceScore
}

// Orchestrator coordinates one run at a time per call; a single instance may
// serve many concurrent Run calls.
type Orchestrator struct {
	catalog    map[string]discovery.Source
	breakers   *retry.BreakerSet
	scorer     Scorer
	hasher     discovery.Hasher
	clock      discovery.Clock
	emitter    progress.Emitter
	logger     *zap.Logger
	preferAPIs bool
}

// SetPreferAPIs makes every plan run API sources strictly before scraped
// ones.
func (o *Orchestrator) SetPreferAPIs(v bool) {
	o.preferAPIs = v
}

// New builds an Orchestrator. emitter and scorer may be nil; breakers may be
// nil to disable circuit breaking.
func New(catalog map[string]discovery.Source, breakers *retry.BreakerSet, scorer Scorer,
	hasher discovery.Hasher, clock discovery.Clock, emitter progress.Emitter, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		catalog:  catalog,
		breakers: breakers,
		scorer:   scorer,
		hasher:   hasher,
		clock:    clock,
		emitter:  emitter,
		logger:   logger,
	}
}

type sourceOutcome struct {
	stats discovery.SourceStats
	mu    sync.Mutex
}

func (o *sourceOutcome) recordAttempt(latency time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Attempts++
	if err != nil {
		o.stats.Failures++
		o.stats.LastError = err.Error()
	} else {
		o.stats.Successes++
	}
	total := o.stats.AvgLatency*time.Duration(o.stats.Attempts-1) + latency
	o.stats.AvgLatency = total / time.Duration(o.stats.Attempts)
}

func (o *sourceOutcome) recordSkip() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Skipped++
}

// Run executes a full discovery run. Individual source failures are
// contained; the returned error is non-nil only for invalid requests.
func (o *Orchestrator) Run(ctx context.Context, req discovery.SearchRequest) (discovery.RunResult, error) {
	if req.Query == "" {
		return discovery.RunResult{}, discovery.Errorf(discovery.KindValidation, "query is required")
	}

	started := o.now()
	runID := progress.RunIDFromString(req.ID)
	cat := category.Detect(req.Query, req.Location != "")
	ranked := sources.ForCategory(cat)
	if o.preferAPIs {
		ranked = sources.PreferAPIs(ranked)
	}

	o.emit(progress.Event{RunID: runID, TS: started, Stage: progress.StageRunStart})
	o.logger.Info("run started",
		zap.String("run_id", req.ID),
		zap.String("query", req.Query),
		zap.String("category", string(cat)),
		zap.Int("sources", len(ranked)))

	state := newRunState(o.hasher)
	outcomes := make(map[string]*sourceOutcome, len(ranked))
	for _, src := range ranked {
		outcomes[src.ID] = &sourceOutcome{stats: discovery.SourceStats{SourceID: src.ID}}
	}

	for _, tier := range sources.Tiers(ranked) {
		o.runTier(ctx, req, runID, tier, state, outcomes)
		if req.MaxResults > 0 && state.count() >= req.MaxResults {
			break
		}
		o.emit(progress.Event{
			RunID: runID, TS: o.now(), Stage: progress.StageRunHB,
			Merged: int64(state.count()),
		})
	}

	result := o.assemble(ctx, req, cat, started, state, ranked, outcomes)

	doneStage := progress.StageRunDone
	if result.Status == discovery.RunStatusFailed {
		doneStage = progress.StageRunError
	}
	o.emit(progress.Event{
		RunID: runID, TS: result.Finished, Stage: doneStage,
		Merged: int64(len(result.Records)),
		Dur:    result.Finished.Sub(started),
		Note:   result.ErrorText,
	})
	return result, nil
}

// runTier fans out one tier with every skip decision taken just before the
// call: circuit state and accumulated result count both change while earlier
// sources in the same tier run.
func (o *Orchestrator) runTier(ctx context.Context, req discovery.SearchRequest, runID [16]byte,
	tier []discovery.DataSource, state *runState, outcomes map[string]*sourceOutcome) {

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range tier {
		src := src
		outcome := outcomes[src.ID]

		if have := state.count(); have > 0 && have >= src.MinResults {
			outcome.recordSkip()
			o.emitSourceDone(runID, src.ID, progress.OutcomeSkipped, 0, 0, "enough results")
			continue
		}
		impl, ok := o.catalog[src.ID]
		if !ok {
			outcome.recordSkip()
			o.emitSourceDone(runID, src.ID, progress.OutcomeSkipped, 0, 0, "not configured")
			continue
		}
		// Breaker check comes last so an admitted trial slot is always
		// resolved by the Record in the search goroutine.
		if o.breakers != nil {
			if err := o.breakers.Get(src.ID).Allow(); err != nil {
				outcome.recordSkip()
				o.emitSourceDone(runID, src.ID, progress.OutcomeSkipped, 0, 0, "circuit open")
				continue
			}
		}

		g.Go(func() error {
			o.emit(progress.Event{
				RunID: runID, TS: o.now(), Stage: progress.StageSourceStart, SourceID: src.ID,
			})
			start := o.now()
			candidates, err := impl.Search(gctx, req)
			latency := o.now().Sub(start)

			if o.breakers != nil {
				o.breakers.Get(src.ID).Record(err)
			}
			outcome.recordAttempt(latency, err)

			if err != nil {
				o.logger.Warn("source failed",
					zap.String("run_id", req.ID),
					zap.String("source", src.ID),
					zap.Error(err))
				o.emitSourceDone(runID, src.ID, progress.OutcomeFailure, 0, latency, err.Error())
				return nil
			}
			state.absorb(candidates, src.ID)
			o.emitSourceDone(runID, src.ID, progress.OutcomeSuccess, int64(len(candidates)), latency, "")
			return nil
		})
	}
	// Goroutines never return errors; failures stay per-source.
	_ = g.Wait()
}

func (o *Orchestrator) assemble(ctx context.Context, req discovery.SearchRequest, cat discovery.Category,
	started time.Time, state *runState, ranked []discovery.DataSource,
	outcomes map[string]*sourceOutcome) discovery.RunResult {

	records := state.snapshot()
	reliability := make(map[string]float64, len(ranked))
	for _, src := range ranked {
		reliability[src.ID] = src.Reliability
	}
	if o.scorer != nil {
		for i := range records {
			score := o.scorer.Score(ctx, confidence.Input{
				Record:            records[i],
				SourceReliability: meanReliability(records[i].Sources, reliability),
			})
			records[i].Confidence = &score
		}
	}
	SortByConfidence(records)
	if req.MaxResults > 0 && len(records) > req.MaxResults {
		records = records[:req.MaxResults]
	}

	stats := make([]discovery.SourceStats, 0, len(ranked))
	attempts, successes := 0, 0
	for _, src := range ranked {
		s := outcomes[src.ID].stats
		stats = append(stats, s)
		attempts += s.Attempts
		successes += s.Successes
	}

	status := discovery.RunStatusCompleted
	errText := ""
	if attempts > 0 && successes == 0 {
		status = discovery.RunStatusDegraded
		errText = "every source failed; returning partial results"
	}

	return discovery.RunResult{
		Request:   req,
		Status:    status,
		Category:  cat,
		Records:   records,
		Stats:     stats,
		StartedAt: started,
		Finished:  o.now(),
		ErrorText: errText,
	}
}

// SortByConfidence orders records best-first. Records without a score sort
// last, ties break on name for determinism.
func SortByConfidence(records []discovery.MergedBusinessRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ci, cj := overall(records[i]), overall(records[j])
		if ci != cj {
			return ci > cj
		}
		return records[i].Name < records[j].Name
	})
}

func overall(r discovery.MergedBusinessRecord) float64 {
	if r.Confidence == nil {
		return -1
	}
	return r.Confidence.Overall
}

func meanReliability(sourceIDs []string, reliability map[string]float64) float64 {
	if len(sourceIDs) == 0 {
		return 0
	}
	var sum float64
	for _, id := range sourceIDs {
		sum += reliability[id]
	}
	return sum / float64(len(sourceIDs))
}

func (o *Orchestrator) emitSourceDone(runID [16]byte, sourceID string, outcome progress.Outcome,
	candidates int64, dur time.Duration, note string) {
	o.emit(progress.Event{
		RunID: runID, TS: o.now(), Stage: progress.StageSourceDone,
		SourceID: sourceID, Outcome: outcome,
		Candidates: candidates, Dur: dur, Note: note,
	})
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}

func (o *Orchestrator) now() time.Time {
	if o.clock != nil {
		return o.clock.Now()
	}
	return time.Now()
}

// Describe reports the category and source plan for a request without
// running it, used by the CLI's dry-run flag.
func Describe(req discovery.SearchRequest) (discovery.Category, []discovery.DataSource, error) {
	if req.Query == "" {
		return "", nil, fmt.Errorf("query is required")
	}
	cat := category.Detect(req.Query, req.Location != "")
	return cat, sources.ForCategory(cat), nil
}
