package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadscout/leadscout/internal/discovery"
)

// RunStore persists run lifecycle rows and finished results. Results are
// stored as a JSON document; the request columns stay relational so runs can
// be listed and filtered without unpacking the blob.
type RunStore struct {
	pool querier
}

// NewRunStore creates a Postgres-backed RunStore.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool querier) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRun inserts a pending run row for an accepted request.
func (s *RunStore) CreateRun(ctx context.Context, req discovery.SearchRequest) error {
	if req.ID == "" {
		return fmt.Errorf("request id is required")
	}
	query := `
		INSERT INTO discovery_runs (id, query, location, max_results, priority, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.pool.Exec(ctx, query,
		req.ID,
		req.Query,
		req.Location,
		req.MaxResults,
		req.Priority,
		string(discovery.RunStatusQueued),
		req.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus moves a run through its lifecycle.
func (s *RunStore) UpdateRunStatus(ctx context.Context, runID string, status discovery.RunStatus, errText string) error {
	query := `
		UPDATE discovery_runs
		SET status = $1, error_text = $2
		WHERE id = $3;
	`
	tag, err := s.pool.Exec(ctx, query, string(status), errText, runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetStatus reports a run's current lifecycle state.
func (s *RunStore) GetStatus(ctx context.Context, runID string) (discovery.RunStatus, string, bool, error) {
	query := `
		SELECT status, COALESCE(error_text, '')
		FROM discovery_runs
		WHERE id = $1;
	`
	var status, errText string
	err := s.pool.QueryRow(ctx, query, runID).Scan(&status, &errText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("get run status: %w", err)
	}
	return discovery.RunStatus(status), errText, true, nil
}

// PutResult stores a finished run's result document and final status.
func (s *RunStore) PutResult(ctx context.Context, result discovery.RunResult) error {
	if result.Request.ID == "" {
		return fmt.Errorf("result run id is required")
	}
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}
	query := `
		UPDATE discovery_runs
		SET status = $1, error_text = $2, result = $3, finished_at = $4
		WHERE id = $5;
	`
	tag, err := s.pool.Exec(ctx, query,
		string(result.Status),
		result.ErrorText,
		doc,
		result.Finished,
		result.Request.ID,
	)
	if err != nil {
		return fmt.Errorf("store run result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", result.Request.ID)
	}
	return nil
}

// GetResult loads a finished run's result. The boolean reports whether a
// result document exists yet.
func (s *RunStore) GetResult(ctx context.Context, runID string) (discovery.RunResult, bool, error) {
	query := `
		SELECT result
		FROM discovery_runs
		WHERE id = $1 AND result IS NOT NULL;
	`
	var doc []byte
	err := s.pool.QueryRow(ctx, query, runID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.RunResult{}, false, nil
		}
		return discovery.RunResult{}, false, fmt.Errorf("get run result: %w", err)
	}
	var result discovery.RunResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return discovery.RunResult{}, false, fmt.Errorf("decode run result: %w", err)
	}
	return result, true, nil
}

// RecordSourceStats upserts the per-source counters for one run.
func (s *RunStore) RecordSourceStats(ctx context.Context, runID string, stats []discovery.SourceStats) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := `
		INSERT INTO run_source_stats (run_id, source_id, attempts, successes, failures,
			skipped, avg_latency_ms, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, source_id) DO UPDATE
		SET attempts = EXCLUDED.attempts,
			successes = EXCLUDED.successes,
			failures = EXCLUDED.failures,
			skipped = EXCLUDED.skipped,
			avg_latency_ms = EXCLUDED.avg_latency_ms,
			last_error = EXCLUDED.last_error;
	`
	for _, stat := range stats {
		_, err := s.pool.Exec(ctx, query,
			runID,
			stat.SourceID,
			stat.Attempts,
			stat.Successes,
			stat.Failures,
			stat.Skipped,
			stat.AvgLatency.Milliseconds(),
			stat.LastError,
		)
		if err != nil {
			return fmt.Errorf("upsert source stats for %s: %w", stat.SourceID, err)
		}
	}
	return nil
}
