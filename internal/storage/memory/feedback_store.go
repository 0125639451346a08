package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leadscout/leadscout/internal/discovery"
)

// FeedbackStore keeps bounce and feedback history in memory.
type FeedbackStore struct {
	mu         sync.RWMutex
	businesses map[string]discovery.VerifiedBusinessRecord
	bounces    []discovery.BounceRecord
	feedback   []discovery.FeedbackRecord
}

// NewFeedbackStore constructs a FeedbackStore.
func NewFeedbackStore() *FeedbackStore {
	return &FeedbackStore{businesses: make(map[string]discovery.VerifiedBusinessRecord)}
}

// GetVerifiedBusiness fetches the verification record for one business.
func (s *FeedbackStore) GetVerifiedBusiness(_ context.Context, businessID string) (discovery.VerifiedBusinessRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.businesses[businessID]
	return rec, ok, nil
}

// PutVerifiedBusiness upserts the verification record.
func (s *FeedbackStore) PutVerifiedBusiness(_ context.Context, record discovery.VerifiedBusinessRecord) error {
	if record.BusinessID == "" {
		return errors.New("business id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[record.BusinessID] = record
	return nil
}

// AppendBounce records one bounce.
func (s *FeedbackStore) AppendBounce(_ context.Context, bounce discovery.BounceRecord) error {
	if bounce.Email == "" {
		return errors.New("bounce email is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounces = append(s.bounces, bounce)
	return nil
}

// AppendFeedback records one feedback report.
func (s *FeedbackStore) AppendFeedback(_ context.Context, feedback discovery.FeedbackRecord) error {
	if feedback.BusinessID == "" {
		return errors.New("feedback business id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, feedback)
	return nil
}

// ListBounces returns the bounces for a domain since the given time.
func (s *FeedbackStore) ListBounces(_ context.Context, domain string, since time.Time) ([]discovery.BounceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []discovery.BounceRecord
	for _, b := range s.bounces {
		if b.Domain == domain && !b.OccurredAt.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListFeedback returns the feedback for a business since the given time.
func (s *FeedbackStore) ListFeedback(_ context.Context, businessID string, since time.Time) ([]discovery.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []discovery.FeedbackRecord
	for _, f := range s.feedback {
		if f.BusinessID == businessID && !f.SubmittedAt.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}
