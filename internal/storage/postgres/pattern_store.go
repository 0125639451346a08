package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadscout/leadscout/internal/discovery"
)

// PatternStore persists learned per-domain email patterns.
type PatternStore struct {
	pool querier
}

// NewPatternStore creates a Postgres-backed PatternStore.
func NewPatternStore(ctx context.Context, cfg Config) (*PatternStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PatternStore{pool: pool}, nil
}

// NewPatternStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPatternStoreWithPool(pool querier) (*PatternStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PatternStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PatternStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetPattern loads the learned pattern for a domain. The boolean reports
// whether the domain has been seen before.
func (s *PatternStore) GetPattern(ctx context.Context, domain string) (discovery.DomainEmailPattern, bool, error) {
	query := `
		SELECT domain, email_pattern, pattern_confidence, sample_count, last_updated
		FROM domain_patterns
		WHERE domain = $1;
	`
	var p discovery.DomainEmailPattern
	err := s.pool.QueryRow(ctx, query, domain).Scan(
		&p.Domain,
		&p.Pattern,
		&p.Confidence,
		&p.SampleCount,
		&p.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.DomainEmailPattern{}, false, nil
		}
		return discovery.DomainEmailPattern{}, false, fmt.Errorf("get email pattern: %w", err)
	}
	return p, true, nil
}

// UpsertPattern writes the pattern row, replacing any previous learning for
// the domain.
func (s *PatternStore) UpsertPattern(ctx context.Context, pattern discovery.DomainEmailPattern) error {
	if pattern.Domain == "" {
		return fmt.Errorf("pattern domain is required")
	}
	query := `
		INSERT INTO domain_patterns (domain, email_pattern, pattern_confidence, sample_count, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain) DO UPDATE
		SET email_pattern = EXCLUDED.email_pattern,
			pattern_confidence = EXCLUDED.pattern_confidence,
			sample_count = EXCLUDED.sample_count,
			last_updated = EXCLUDED.last_updated;
	`
	_, err := s.pool.Exec(ctx, query,
		pattern.Domain,
		pattern.Pattern,
		pattern.Confidence,
		pattern.SampleCount,
		pattern.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert email pattern: %w", err)
	}
	return nil
}
