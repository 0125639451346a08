package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leadscout/leadscout/internal/discovery"
)

// FeedbackStore persists bounce and feedback signals plus the per-business
// verification records they roll up into.
type FeedbackStore struct {
	pool querier
}

// NewFeedbackStore creates a Postgres-backed FeedbackStore.
func NewFeedbackStore(ctx context.Context, cfg Config) (*FeedbackStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &FeedbackStore{pool: pool}, nil
}

// NewFeedbackStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewFeedbackStoreWithPool(pool querier) (*FeedbackStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &FeedbackStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *FeedbackStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetVerifiedBusiness loads the verification record for one business.
func (s *FeedbackStore) GetVerifiedBusiness(ctx context.Context, businessID string) (discovery.VerifiedBusinessRecord, bool, error) {
	query := `
		SELECT business_id, verification_score, positive_reports, negative_reports,
			total_reports, verified_fields, updated_at
		FROM verified_businesses
		WHERE business_id = $1;
	`
	var (
		rec        discovery.VerifiedBusinessRecord
		fieldsJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, businessID).Scan(
		&rec.BusinessID,
		&rec.VerificationScore,
		&rec.PositiveReports,
		&rec.NegativeReports,
		&rec.TotalReports,
		&fieldsJSON,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.VerifiedBusinessRecord{}, false, nil
		}
		return discovery.VerifiedBusinessRecord{}, false, fmt.Errorf("get verified business: %w", err)
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &rec.VerifiedFields); err != nil {
			return discovery.VerifiedBusinessRecord{}, false, fmt.Errorf("decode verified fields: %w", err)
		}
	}
	return rec, true, nil
}

// PutVerifiedBusiness upserts the verification record.
func (s *FeedbackStore) PutVerifiedBusiness(ctx context.Context, record discovery.VerifiedBusinessRecord) error {
	if record.BusinessID == "" {
		return fmt.Errorf("business id is required")
	}
	fieldsJSON, err := json.Marshal(normalizeFields(record.VerifiedFields))
	if err != nil {
		return fmt.Errorf("marshal verified fields: %w", err)
	}
	query := `
		INSERT INTO verified_businesses (business_id, verification_score, positive_reports,
			negative_reports, total_reports, verified_fields, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id) DO UPDATE
		SET verification_score = EXCLUDED.verification_score,
			positive_reports = EXCLUDED.positive_reports,
			negative_reports = EXCLUDED.negative_reports,
			total_reports = EXCLUDED.total_reports,
			verified_fields = EXCLUDED.verified_fields,
			updated_at = EXCLUDED.updated_at;
	`
	_, err = s.pool.Exec(ctx, query,
		record.BusinessID,
		record.VerificationScore,
		record.PositiveReports,
		record.NegativeReports,
		record.TotalReports,
		fieldsJSON,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert verified business: %w", err)
	}
	return nil
}

// AppendBounce inserts one bounce row.
func (s *FeedbackStore) AppendBounce(ctx context.Context, bounce discovery.BounceRecord) error {
	if bounce.Email == "" {
		return fmt.Errorf("bounce email is required")
	}
	query := `
		INSERT INTO email_bounces (email, domain, bounce_type, reason, business_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.pool.Exec(ctx, query,
		bounce.Email,
		bounce.Domain,
		string(bounce.Type),
		bounce.Reason,
		bounce.BusinessID,
		bounce.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert bounce: %w", err)
	}
	return nil
}

// AppendFeedback inserts one feedback row.
func (s *FeedbackStore) AppendFeedback(ctx context.Context, feedback discovery.FeedbackRecord) error {
	if feedback.BusinessID == "" {
		return fmt.Errorf("feedback business id is required")
	}
	query := `
		INSERT INTO business_feedback (business_id, feedback_type, field, original_value,
			corrected_value, confidence_impact, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.pool.Exec(ctx, query,
		feedback.BusinessID,
		string(feedback.Type),
		feedback.Field,
		feedback.OriginalValue,
		feedback.CorrectedValue,
		feedback.Impact,
		feedback.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// ListBounces returns the bounces for a domain since the given time, newest first.
func (s *FeedbackStore) ListBounces(ctx context.Context, domain string, since time.Time) ([]discovery.BounceRecord, error) {
	query := `
		SELECT email, domain, bounce_type, reason, business_id, occurred_at
		FROM email_bounces
		WHERE domain = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC;
	`
	rows, err := s.pool.Query(ctx, query, domain, since)
	if err != nil {
		return nil, fmt.Errorf("list bounces: %w", err)
	}
	defer rows.Close()

	var bounces []discovery.BounceRecord
	for rows.Next() {
		var b discovery.BounceRecord
		if err := rows.Scan(&b.Email, &b.Domain, &b.Type, &b.Reason, &b.BusinessID, &b.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan bounce row: %w", err)
		}
		bounces = append(bounces, b)
	}
	return bounces, rows.Err()
}

// ListFeedback returns the feedback for a business since the given time, newest first.
func (s *FeedbackStore) ListFeedback(ctx context.Context, businessID string, since time.Time) ([]discovery.FeedbackRecord, error) {
	query := `
		SELECT business_id, feedback_type, field, original_value, corrected_value,
			confidence_impact, submitted_at
		FROM business_feedback
		WHERE business_id = $1 AND submitted_at >= $2
		ORDER BY submitted_at DESC;
	`
	rows, err := s.pool.Query(ctx, query, businessID, since)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var reports []discovery.FeedbackRecord
	for rows.Next() {
		var f discovery.FeedbackRecord
		err := rows.Scan(
			&f.BusinessID,
			&f.Type,
			&f.Field,
			&f.OriginalValue,
			&f.CorrectedValue,
			&f.Impact,
			&f.SubmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feedback row: %w", err)
		}
		reports = append(reports, f)
	}
	return reports, rows.Err()
}

func normalizeFields(fields map[string]bool) map[string]bool {
	if len(fields) == 0 {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
