package confidence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/discovery"
)

type memFeedbackStore struct {
	mu         sync.Mutex
	businesses map[string]discovery.VerifiedBusinessRecord
	bounces    []discovery.BounceRecord
	feedback   []discovery.FeedbackRecord

	failReads bool
}

func newMemFeedbackStore() *memFeedbackStore {
	return &memFeedbackStore{businesses: make(map[string]discovery.VerifiedBusinessRecord)}
}

func (s *memFeedbackStore) GetVerifiedBusiness(_ context.Context, businessID string) (discovery.VerifiedBusinessRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads {
		return discovery.VerifiedBusinessRecord{}, false, errors.New("store down")
	}
	r, ok := s.businesses[businessID]
	return r, ok, nil
}

func (s *memFeedbackStore) PutVerifiedBusiness(_ context.Context, record discovery.VerifiedBusinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[record.BusinessID] = record
	return nil
}

func (s *memFeedbackStore) AppendBounce(_ context.Context, bounce discovery.BounceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounces = append(s.bounces, bounce)
	return nil
}

func (s *memFeedbackStore) AppendFeedback(_ context.Context, feedback discovery.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, feedback)
	return nil
}

func (s *memFeedbackStore) ListBounces(_ context.Context, domain string, since time.Time) ([]discovery.BounceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads {
		return nil, errors.New("store down")
	}
	var out []discovery.BounceRecord
	for _, b := range s.bounces {
		if b.Domain == domain && !b.OccurredAt.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memFeedbackStore) ListFeedback(_ context.Context, businessID string, since time.Time) ([]discovery.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads {
		return nil, errors.New("store down")
	}
	var out []discovery.FeedbackRecord
	for _, f := range s.feedback {
		if f.BusinessID == businessID && !f.SubmittedAt.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

func TestApplyFeedbackSeedsNewBusiness(t *testing.T) {
	store := newMemFeedbackStore()
	loop := NewLoop(store, nil, nil)

	record, err := loop.ApplyFeedback(context.Background(), discovery.FeedbackRecord{
		BusinessID: "biz-1",
		Type:       discovery.FeedbackConfirmedCorrect,
		Field:      "email",
	})
	require.NoError(t, err)
	require.InDelta(t, 65.0, record.VerificationScore, 1e-9)
	require.Equal(t, 1, record.PositiveReports)
	require.Equal(t, 0, record.NegativeReports)
	require.Equal(t, 1, record.TotalReports)
	require.True(t, record.VerifiedFields["email"])

	require.Len(t, store.feedback, 1)
	require.InDelta(t, 15.0, store.feedback[0].Impact, 1e-9)
	require.False(t, store.feedback[0].SubmittedAt.IsZero())
}

func TestApplyFeedbackDeltas(t *testing.T) {
	tests := []struct {
		fbType discovery.FeedbackType
		want   float64
	}{
		{discovery.FeedbackConfirmedCorrect, 65},
		{discovery.FeedbackPartialMatch, 58},
		{discovery.FeedbackWrongEmail, 30},
		{discovery.FeedbackEmailBounced, 20},
		{discovery.FeedbackBusinessClosed, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.fbType), func(t *testing.T) {
			loop := NewLoop(newMemFeedbackStore(), nil, nil)
			record, err := loop.ApplyFeedback(context.Background(), discovery.FeedbackRecord{
				BusinessID: "biz-1",
				Type:       tt.fbType,
			})
			require.NoError(t, err)
			require.InDelta(t, tt.want, record.VerificationScore, 1e-9)
		})
	}
}

func TestApplyFeedbackClampsBothEnds(t *testing.T) {
	loop := NewLoop(newMemFeedbackStore(), nil, nil)
	ctx := context.Background()

	var record discovery.VerifiedBusinessRecord
	var err error
	for i := 0; i < 3; i++ {
		record, err = loop.ApplyFeedback(ctx, discovery.FeedbackRecord{
			BusinessID: "sinking", Type: discovery.FeedbackBusinessClosed,
		})
		require.NoError(t, err)
	}
	require.Zero(t, record.VerificationScore, "score clamps at 0, never negative")

	for i := 0; i < 6; i++ {
		record, err = loop.ApplyFeedback(ctx, discovery.FeedbackRecord{
			BusinessID: "rising", Type: discovery.FeedbackConfirmedCorrect,
		})
		require.NoError(t, err)
	}
	require.InDelta(t, 100.0, record.VerificationScore, 1e-9, "score clamps at 100")
}

func TestApplyFeedbackReportCountsStayConsistent(t *testing.T) {
	loop := NewLoop(newMemFeedbackStore(), nil, nil)
	ctx := context.Background()

	reports := []discovery.FeedbackType{
		discovery.FeedbackConfirmedCorrect,
		discovery.FeedbackWrongEmail,
		discovery.FeedbackPartialMatch,
		discovery.FeedbackEmailBounced,
		discovery.FeedbackBusinessClosed,
	}
	var record discovery.VerifiedBusinessRecord
	var err error
	for _, r := range reports {
		record, err = loop.ApplyFeedback(ctx, discovery.FeedbackRecord{BusinessID: "biz-1", Type: r})
		require.NoError(t, err)
		require.Equal(t, record.TotalReports, record.PositiveReports+record.NegativeReports)
	}
	require.Equal(t, 2, record.PositiveReports)
	require.Equal(t, 3, record.NegativeReports)
	require.Equal(t, 5, record.TotalReports)
}

func TestApplyFeedbackRejectsUnknownType(t *testing.T) {
	loop := NewLoop(newMemFeedbackStore(), nil, nil)
	_, err := loop.ApplyFeedback(context.Background(), discovery.FeedbackRecord{
		BusinessID: "biz-1", Type: "made_up",
	})
	require.Error(t, err)
	require.Equal(t, discovery.KindValidation, discovery.KindOf(err))
}

func TestRecordBounceHardAdjustsBusiness(t *testing.T) {
	store := newMemFeedbackStore()
	loop := NewLoop(store, nil, nil)

	err := loop.RecordBounce(context.Background(), discovery.BounceRecord{
		Email:      "jane@acme.com",
		Domain:     "acme.com",
		Type:       discovery.BounceHard,
		BusinessID: "biz-1",
	})
	require.NoError(t, err)
	require.Len(t, store.bounces, 1)

	record, ok := store.businesses["biz-1"]
	require.True(t, ok)
	require.InDelta(t, 20.0, record.VerificationScore, 1e-9)
}

func TestRecordBounceSoftOnlyAppends(t *testing.T) {
	store := newMemFeedbackStore()
	loop := NewLoop(store, nil, nil)

	err := loop.RecordBounce(context.Background(), discovery.BounceRecord{
		Email:      "jane@acme.com",
		Domain:     "acme.com",
		Type:       discovery.BounceSoft,
		BusinessID: "biz-1",
	})
	require.NoError(t, err)
	require.Len(t, store.bounces, 1)
	require.Empty(t, store.businesses, "soft bounces carry no score delta")
}
