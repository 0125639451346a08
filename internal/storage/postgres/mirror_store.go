package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leadscout/leadscout/internal/discovery"
)

// MirrorStore shares rate-limit and key-quota state across instances. Local
// state stays authoritative; these rows only seed fresh instances and feed
// dashboards, so every operation is a plain upsert or point read.
type MirrorStore struct {
	pool querier
}

// NewMirrorStore creates a Postgres-backed MirrorStore.
func NewMirrorStore(ctx context.Context, cfg Config) (*MirrorStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &MirrorStore{pool: pool}, nil
}

// NewMirrorStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMirrorStoreWithPool(pool querier) (*MirrorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &MirrorStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *MirrorStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// PutRateLimitState upserts the pacing state for one domain.
func (s *MirrorStore) PutRateLimitState(ctx context.Context, state discovery.RateLimitState) error {
	if state.Domain == "" {
		return fmt.Errorf("rate limit domain is required")
	}
	query := `
		INSERT INTO rate_limit_state (domain, last_request, request_count, window_start, crawl_delay_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain) DO UPDATE
		SET last_request = EXCLUDED.last_request,
			request_count = EXCLUDED.request_count,
			window_start = EXCLUDED.window_start,
			crawl_delay_ms = EXCLUDED.crawl_delay_ms;
	`
	_, err := s.pool.Exec(ctx, query,
		state.Domain,
		state.LastRequest,
		state.RequestCount,
		state.WindowStart,
		state.CrawlDelay.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert rate limit state: %w", err)
	}
	return nil
}

// GetRateLimitState loads the pacing state for one domain.
func (s *MirrorStore) GetRateLimitState(ctx context.Context, domain string) (discovery.RateLimitState, bool, error) {
	query := `
		SELECT domain, last_request, request_count, window_start, crawl_delay_ms
		FROM rate_limit_state
		WHERE domain = $1;
	`
	var (
		state   discovery.RateLimitState
		delayMS int64
	)
	err := s.pool.QueryRow(ctx, query, domain).Scan(
		&state.Domain,
		&state.LastRequest,
		&state.RequestCount,
		&state.WindowStart,
		&delayMS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.RateLimitState{}, false, nil
		}
		return discovery.RateLimitState{}, false, fmt.Errorf("get rate limit state: %w", err)
	}
	state.CrawlDelay = time.Duration(delayMS) * time.Millisecond
	return state, true, nil
}

// PutKeyQuotaState upserts the usage counters for one provider key.
func (s *MirrorStore) PutKeyQuotaState(ctx context.Context, state discovery.KeyQuotaState) error {
	if state.Provider == "" || state.KeyPrefix == "" {
		return fmt.Errorf("key quota provider and key prefix are required")
	}
	query := `
		INSERT INTO key_quota_state (provider, key_prefix, used, quota_limit, reset_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, key_prefix) DO UPDATE
		SET used = EXCLUDED.used,
			quota_limit = EXCLUDED.quota_limit,
			reset_at = EXCLUDED.reset_at;
	`
	_, err := s.pool.Exec(ctx, query,
		state.Provider,
		state.KeyPrefix,
		state.Used,
		state.Limit,
		state.ResetAt,
	)
	if err != nil {
		return fmt.Errorf("upsert key quota state: %w", err)
	}
	return nil
}

// GetKeyQuotaState loads the usage counters for one provider key.
func (s *MirrorStore) GetKeyQuotaState(ctx context.Context, provider, keyPrefix string) (discovery.KeyQuotaState, bool, error) {
	query := `
		SELECT provider, key_prefix, used, quota_limit, reset_at
		FROM key_quota_state
		WHERE provider = $1 AND key_prefix = $2;
	`
	var state discovery.KeyQuotaState
	err := s.pool.QueryRow(ctx, query, provider, keyPrefix).Scan(
		&state.Provider,
		&state.KeyPrefix,
		&state.Used,
		&state.Limit,
		&state.ResetAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.KeyQuotaState{}, false, nil
		}
		return discovery.KeyQuotaState{}, false, fmt.Errorf("get key quota state: %w", err)
	}
	return state, true, nil
}
