package confidence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
)

// Verification-score deltas per feedback type, clamped into [0,100] after
// application.
var feedbackDeltas = map[discovery.FeedbackType]float64{
	discovery.FeedbackConfirmedCorrect: 15,
	discovery.FeedbackPartialMatch:     8,
	discovery.FeedbackWrongEmail:       -20,
	discovery.FeedbackEmailBounced:     -30,
	discovery.FeedbackBusinessClosed:   -50,
}

// initialVerificationScore seeds a business the first time feedback arrives.
const initialVerificationScore = 50.0

// Loop applies user feedback and bounce events: each event appends an
// immutable record and rolls the delta into the business's verification
// score, which the Scorer reads on later runs.
type Loop struct {
	store  discovery.FeedbackStore
	clock  discovery.Clock
	logger *zap.Logger
}

// NewLoop builds a feedback Loop over store.
func NewLoop(store discovery.FeedbackStore, clock discovery.Clock, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{store: store, clock: clock, logger: logger}
}

// ApplyFeedback records a user report and adjusts the business's
// verification score by the report type's fixed delta.
func (l *Loop) ApplyFeedback(ctx context.Context, fb discovery.FeedbackRecord) (discovery.VerifiedBusinessRecord, error) {
	delta, ok := feedbackDeltas[fb.Type]
	if !ok {
		return discovery.VerifiedBusinessRecord{}, discovery.Errorf(discovery.KindValidation,
			"unknown feedback type %q", fb.Type)
	}
	if fb.BusinessID == "" {
		return discovery.VerifiedBusinessRecord{}, discovery.Errorf(discovery.KindValidation,
			"feedback requires a business id")
	}

	fb.Impact = delta
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = l.now()
	}
	if err := l.store.AppendFeedback(ctx, fb); err != nil {
		return discovery.VerifiedBusinessRecord{}, fmt.Errorf("append feedback: %w", err)
	}

	record, err := l.adjust(ctx, fb.BusinessID, delta, fb.Field)
	if err != nil {
		return discovery.VerifiedBusinessRecord{}, err
	}
	l.logger.Info("feedback applied",
		zap.String("business_id", fb.BusinessID),
		zap.String("type", string(fb.Type)),
		zap.Float64("delta", delta),
		zap.Float64("verification_score", record.VerificationScore))
	return record, nil
}

// RecordBounce appends a bounce record. A hard bounce tied to a known
// business additionally applies the email-bounced delta to that business.
func (l *Loop) RecordBounce(ctx context.Context, bounce discovery.BounceRecord) error {
	if bounce.Email == "" {
		return discovery.Errorf(discovery.KindValidation, "bounce requires an email")
	}
	if bounce.OccurredAt.IsZero() {
		bounce.OccurredAt = l.now()
	}
	if err := l.store.AppendBounce(ctx, bounce); err != nil {
		return fmt.Errorf("append bounce: %w", err)
	}

	if bounce.Type == discovery.BounceHard && bounce.BusinessID != "" {
		if _, err := l.adjust(ctx, bounce.BusinessID, feedbackDeltas[discovery.FeedbackEmailBounced], "email"); err != nil {
			return err
		}
	}
	l.logger.Info("bounce recorded",
		zap.String("email", bounce.Email),
		zap.String("type", string(bounce.Type)))
	return nil
}

// adjust loads (or seeds) the verified-business record, applies delta to the
// verification score clamped to [0,100], and bumps the report counters so
// positive + negative always equals total.
func (l *Loop) adjust(ctx context.Context, businessID string, delta float64, field string) (discovery.VerifiedBusinessRecord, error) {
	record, ok, err := l.store.GetVerifiedBusiness(ctx, businessID)
	if err != nil {
		return discovery.VerifiedBusinessRecord{}, fmt.Errorf("load verified business %s: %w", businessID, err)
	}
	if !ok {
		record = discovery.VerifiedBusinessRecord{
			BusinessID:        businessID,
			VerificationScore: initialVerificationScore,
			VerifiedFields:    make(map[string]bool),
		}
	}
	if record.VerifiedFields == nil {
		record.VerifiedFields = make(map[string]bool)
	}

	record.VerificationScore = clamp(record.VerificationScore + delta)
	if delta >= 0 {
		record.PositiveReports++
		if field != "" {
			record.VerifiedFields[field] = true
		}
	} else {
		record.NegativeReports++
		if field != "" {
			record.VerifiedFields[field] = false
		}
	}
	record.TotalReports = record.PositiveReports + record.NegativeReports
	record.UpdatedAt = l.now()

	if err := l.store.PutVerifiedBusiness(ctx, record); err != nil {
		return discovery.VerifiedBusinessRecord{}, fmt.Errorf("store verified business %s: %w", businessID, err)
	}
	return record, nil
}

func (l *Loop) now() time.Time {
	if l.clock != nil {
		return l.clock.Now()
	}
	return time.Now()
}
