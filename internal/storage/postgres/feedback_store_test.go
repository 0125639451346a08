package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/discovery"
)

func TestPutVerifiedBusinessUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewFeedbackStoreWithPool(mock)
	require.NoError(t, err)

	updated := time.Unix(1700000000, 0).UTC()
	rec := discovery.VerifiedBusinessRecord{
		BusinessID:        "b1",
		VerificationScore: 65,
		PositiveReports:   1,
		TotalReports:      1,
		VerifiedFields:    map[string]bool{"email": true},
		UpdatedAt:         updated,
	}

	mock.ExpectExec("INSERT INTO verified_businesses").
		WithArgs("b1", 65.0, 1, 0, 1, []byte(`{"email":true}`), updated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.PutVerifiedBusiness(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVerifiedBusinessDecodesFields(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewFeedbackStoreWithPool(mock)
	require.NoError(t, err)

	updated := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT business_id, verification_score").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{
			"business_id", "verification_score", "positive_reports", "negative_reports",
			"total_reports", "verified_fields", "updated_at",
		}).AddRow("b1", 65.0, 1, 0, 1, []byte(`{"email":true}`), updated))

	rec, found, err := store.GetVerifiedBusiness(context.Background(), "b1")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, rec.VerifiedFields["email"])
	require.Equal(t, 1, rec.TotalReports)
}

func TestGetVerifiedBusinessMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewFeedbackStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT business_id, verification_score").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, found, err := store.GetVerifiedBusiness(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestAppendBounceInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewFeedbackStoreWithPool(mock)
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	bounce := discovery.BounceRecord{
		Email:      "info@acme.com",
		Domain:     "acme.com",
		Type:       discovery.BounceHard,
		Reason:     "550 no such user",
		BusinessID: "b1",
		OccurredAt: at,
	}

	mock.ExpectExec("INSERT INTO email_bounces").
		WithArgs("info@acme.com", "acme.com", "hard", "550 no such user", "b1", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.AppendBounce(context.Background(), bounce))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFeedbackScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewFeedbackStoreWithPool(mock)
	require.NoError(t, err)

	since := time.Unix(1699000000, 0).UTC()
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT business_id, feedback_type").
		WithArgs("b1", since).
		WillReturnRows(pgxmock.NewRows([]string{
			"business_id", "feedback_type", "field", "original_value", "corrected_value",
			"confidence_impact", "submitted_at",
		}).AddRow("b1", "confirmed_correct", "email", "", "", 15.0, at))

	reports, err := store.ListFeedback(context.Background(), "b1", since)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, discovery.FeedbackConfirmedCorrect, reports[0].Type)
	require.InDelta(t, 15.0, reports[0].Impact, 1e-9)
}
