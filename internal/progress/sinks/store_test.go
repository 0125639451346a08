package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/progress"
)

// TestStoreSinkCollapsesSourceDeltas ensures per-source counters are collapsed
// within a batch before persisting.
func TestStoreSinkCollapsesSourceDeltas(t *testing.T) {
	t.Parallel()

	store := &fakeStatsStore{}
	sink := NewStoreSink(store, nil, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now},
		{
			RunID:      runID,
			Stage:      progress.StageSourceDone,
			SourceID:   "places_api",
			Outcome:    progress.OutcomeSuccess,
			Candidates: 10,
			Dur:        2 * time.Second,
			TS:         now.Add(1 * time.Second),
		},
		{
			RunID:    runID,
			Stage:    progress.StageSourceDone,
			SourceID: "places_api",
			Outcome:  progress.OutcomeFailure,
			Note:     "status 502",
			Dur:      4 * time.Second,
			TS:       now.Add(2 * time.Second),
		},
		{
			RunID:    runID,
			Stage:    progress.StageSourceDone,
			SourceID: "yelp_directory",
			Outcome:  progress.OutcomeSkipped,
			TS:       now.Add(2 * time.Second),
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, store.calls, 1)
	require.Equal(t, runUUID.String(), store.calls[0].runID)

	byID := make(map[string]discovery.SourceStats)
	for _, s := range store.calls[0].stats {
		byID[s.SourceID] = s
	}
	places := byID["places_api"]
	require.Equal(t, 2, places.Attempts)
	require.Equal(t, 1, places.Successes)
	require.Equal(t, 1, places.Failures)
	require.Equal(t, "status 502", places.LastError)
	require.Equal(t, 3*time.Second, places.AvgLatency)

	yelp := byID["yelp_directory"]
	require.Equal(t, 1, yelp.Skipped)
	require.Zero(t, yelp.Attempts, "skips are not attempts")
}

// TestStoreSinkUpdatesRunStatus verifies terminal run events reach the run store.
func TestStoreSinkUpdatesRunStatus(t *testing.T) {
	t.Parallel()

	stats := &fakeStatsStore{}
	runs := &fakeRunStore{}
	sink := NewStoreSink(stats, runs, nil)
	runID := progress.UUIDToBytes(uuid.New())

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunError, Note: "all sources failed", TS: time.Now()},
	})
	require.NoError(t, err)
	require.Len(t, runs.updates, 1)
	require.Equal(t, discovery.RunStatusFailed, runs.updates[0].status)
	require.Equal(t, "all sources failed", runs.updates[0].errText)
}

// TestStoreSinkSurfacesStoreErrors returns store failures to the hub.
func TestStoreSinkSurfacesStoreErrors(t *testing.T) {
	t.Parallel()

	store := &fakeStatsStore{fail: true}
	sink := NewStoreSink(store, nil, nil)
	runID := progress.UUIDToBytes(uuid.New())

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageSourceDone, SourceID: "places_api",
			Outcome: progress.OutcomeSuccess, TS: time.Now()},
	})
	require.Error(t, err)
}

type statsCall struct {
	runID string
	stats []discovery.SourceStats
}

type fakeStatsStore struct {
	fail  bool
	calls []statsCall
}

func (f *fakeStatsStore) RecordSourceStats(_ context.Context, runID string, stats []discovery.SourceStats) error {
	if f.fail {
		return assertErr("stats")
	}
	f.calls = append(f.calls, statsCall{runID: runID, stats: stats})
	return nil
}

type statusUpdate struct {
	runID   string
	status  discovery.RunStatus
	errText string
}

type fakeRunStore struct {
	updates []statusUpdate
}

func (f *fakeRunStore) CreateRun(context.Context, discovery.SearchRequest) error { return nil }

func (f *fakeRunStore) UpdateRunStatus(_ context.Context, runID string, status discovery.RunStatus, errText string) error {
	f.updates = append(f.updates, statusUpdate{runID: runID, status: status, errText: errText})
	return nil
}

func (f *fakeRunStore) GetStatus(context.Context, string) (discovery.RunStatus, string, bool, error) {
	return "", "", false, nil
}

func (f *fakeRunStore) PutResult(context.Context, discovery.RunResult) error { return nil }

func (f *fakeRunStore) GetResult(context.Context, string) (discovery.RunResult, bool, error) {
	return discovery.RunResult{}, false, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
