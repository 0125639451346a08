package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/progress"
)

// StoreSink persists source-call deltas via a discovery.SourceStatsStore and
// run status transitions via a discovery.RunStore. It collapses per-source
// counters within a batch to reduce write amplification.
type StoreSink struct {
	stats  discovery.SourceStatsStore
	runs   discovery.RunStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink. runs may be nil when status
// persistence is handled elsewhere.
func NewStoreSink(stats discovery.SourceStatsStore, runs discovery.RunStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{stats: stats, runs: runs, logger: logger}
}

// Consume collapses source deltas per run and forwards them to the stats
// store. It respects ctx deadlines and returns store errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.stats == nil {
		return nil
	}
	perRun := make(map[uuid.UUID]map[string]*statsDelta)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunDone, progress.StageRunError:
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		case progress.StageSourceDone:
			recordSourceDelta(perRun, runID, evt)
		}
	}

	for runID, deltas := range perRun {
		stats := make([]discovery.SourceStats, 0, len(deltas))
		for sourceID, delta := range deltas {
			stats = append(stats, delta.toStats(sourceID))
		}
		if err := s.stats.RecordSourceStats(ctx, runID.String(), stats); err != nil {
			return fmt.Errorf("record source stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	if s.runs == nil {
		return nil
	}
	status := discovery.RunStatusCompleted
	if evt.Stage == progress.StageRunError {
		status = discovery.RunStatusFailed
	}
	if err := s.runs.UpdateRunStatus(ctx, runID.String(), status, evt.Note); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

func recordSourceDelta(perRun map[uuid.UUID]map[string]*statsDelta, runID uuid.UUID, evt progress.Event) {
	if evt.SourceID == "" {
		return
	}
	deltas := perRun[runID]
	if deltas == nil {
		deltas = make(map[string]*statsDelta)
		perRun[runID] = deltas
	}
	delta := deltas[evt.SourceID]
	if delta == nil {
		delta = &statsDelta{}
		deltas[evt.SourceID] = delta
	}
	switch evt.Outcome {
	case progress.OutcomeSuccess:
		delta.attempts++
		delta.successes++
	case progress.OutcomeSkipped:
		delta.skipped++
	default:
		delta.attempts++
		delta.failures++
		if evt.Note != "" {
			delta.lastError = evt.Note
		}
	}
	delta.totalDur += evt.Dur
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsDelta struct {
	attempts  int
	successes int
	failures  int
	skipped   int
	totalDur  time.Duration
	lastError string
}

func (d *statsDelta) toStats(sourceID string) discovery.SourceStats {
	stats := discovery.SourceStats{
		SourceID:  sourceID,
		Attempts:  d.attempts,
		Successes: d.successes,
		Failures:  d.failures,
		Skipped:   d.skipped,
		LastError: d.lastError,
	}
	if d.attempts > 0 {
		stats.AvgLatency = d.totalDur / time.Duration(d.attempts)
	}
	return stats
}
