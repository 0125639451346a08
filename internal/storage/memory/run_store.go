package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/leadscout/leadscout/internal/discovery"
)

type runRow struct {
	request   discovery.SearchRequest
	status    discovery.RunStatus
	errText   string
	result    *discovery.RunResult
	stats     []discovery.SourceStats
	hasResult bool
}

// RunStore keeps run lifecycle rows and results in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*runRow
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*runRow)}
}

// CreateRun stores a new run in queued status.
func (s *RunStore) CreateRun(_ context.Context, req discovery.SearchRequest) error {
	if req.ID == "" {
		return errors.New("request id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[req.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[req.ID] = &runRow{request: req, status: discovery.RunStatusQueued}
	return nil
}

// UpdateRunStatus moves a run through its lifecycle.
func (s *RunStore) UpdateRunStatus(_ context.Context, runID string, status discovery.RunStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	row.status = status
	row.errText = errText
	return nil
}

// PutResult stores a finished run's result and final status.
func (s *RunStore) PutResult(_ context.Context, result discovery.RunResult) error {
	if result.Request.ID == "" {
		return errors.New("result run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.runs[result.Request.ID]
	if !ok {
		row = &runRow{request: result.Request}
		s.runs[result.Request.ID] = row
	}
	copied := result
	row.result = &copied
	row.hasResult = true
	row.status = result.Status
	row.errText = result.ErrorText
	return nil
}

// GetResult loads a finished run's result.
func (s *RunStore) GetResult(_ context.Context, runID string) (discovery.RunResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.runs[runID]
	if !ok || !row.hasResult {
		return discovery.RunResult{}, false, nil
	}
	return *row.result, true, nil
}

// GetStatus reports a run's current lifecycle state.
func (s *RunStore) GetStatus(_ context.Context, runID string) (discovery.RunStatus, string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.runs[runID]
	if !ok {
		return "", "", false, nil
	}
	return row.status, row.errText, true, nil
}

// RecordSourceStats stores the per-source counters for one run.
func (s *RunStore) RecordSourceStats(_ context.Context, runID string, stats []discovery.SourceStats) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.runs[runID]
	if !ok {
		row = &runRow{}
		s.runs[runID] = row
	}
	row.stats = append([]discovery.SourceStats(nil), stats...)
	return nil
}

// SourceStats returns the recorded counters for one run.
func (s *RunStore) SourceStats(_ context.Context, runID string) []discovery.SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.runs[runID]
	if !ok {
		return nil
	}
	out := make([]discovery.SourceStats, len(row.stats))
	copy(out, row.stats)
	return out
}
