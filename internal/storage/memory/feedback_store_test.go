package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/discovery"
)

var (
	_ discovery.PatternStore     = (*PatternStore)(nil)
	_ discovery.FeedbackStore    = (*FeedbackStore)(nil)
	_ discovery.MirrorStore      = (*MirrorStore)(nil)
	_ discovery.RunStore         = (*RunStore)(nil)
	_ discovery.SourceStatsStore = (*RunStore)(nil)
)

func TestFeedbackStoreFiltersByDomainAndTime(t *testing.T) {
	t.Parallel()

	store := NewFeedbackStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	bounces := []discovery.BounceRecord{
		{Email: "a@acme.com", Domain: "acme.com", Type: discovery.BounceHard, OccurredAt: base},
		{Email: "b@acme.com", Domain: "acme.com", Type: discovery.BounceSoft, OccurredAt: base.Add(-48 * time.Hour)},
		{Email: "c@other.com", Domain: "other.com", Type: discovery.BounceHard, OccurredAt: base},
	}
	for _, b := range bounces {
		require.NoError(t, store.AppendBounce(ctx, b))
	}

	recent, err := store.ListBounces(ctx, "acme.com", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "a@acme.com", recent[0].Email)

	all, err := store.ListBounces(ctx, "acme.com", base.Add(-72*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestFeedbackStoreVerifiedBusinessRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewFeedbackStore()
	ctx := context.Background()

	_, found, err := store.GetVerifiedBusiness(ctx, "b1")
	require.NoError(t, err)
	require.False(t, found)

	rec := discovery.VerifiedBusinessRecord{
		BusinessID:        "b1",
		VerificationScore: 65,
		PositiveReports:   1,
		TotalReports:      1,
	}
	require.NoError(t, store.PutVerifiedBusiness(ctx, rec))

	loaded, found, err := store.GetVerifiedBusiness(ctx, "b1")
	require.NoError(t, err)
	require.True(t, found)
	require.InDelta(t, 65.0, loaded.VerificationScore, 1e-9)
}

func TestPatternStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewPatternStore()
	ctx := context.Background()

	_, found, err := store.GetPattern(ctx, "acme.com")
	require.NoError(t, err)
	require.False(t, found)

	require.Error(t, store.UpsertPattern(ctx, discovery.DomainEmailPattern{}))
	require.NoError(t, store.UpsertPattern(ctx, discovery.DomainEmailPattern{Domain: "acme.com", Pattern: "flast"}))

	p, found, err := store.GetPattern(ctx, "acme.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "flast", p.Pattern)
}
