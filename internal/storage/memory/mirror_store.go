package memory

import (
	"context"
	"sync"

	"github.com/leadscout/leadscout/internal/discovery"
)

// MirrorStore keeps limiter and quota mirror state in memory. Useful for
// single-instance deployments where sharing across processes is moot.
type MirrorStore struct {
	mu     sync.RWMutex
	rates  map[string]discovery.RateLimitState
	quotas map[string]discovery.KeyQuotaState
}

// NewMirrorStore constructs a MirrorStore.
func NewMirrorStore() *MirrorStore {
	return &MirrorStore{
		rates:  make(map[string]discovery.RateLimitState),
		quotas: make(map[string]discovery.KeyQuotaState),
	}
}

// PutRateLimitState stores the pacing state for one domain.
func (s *MirrorStore) PutRateLimitState(_ context.Context, state discovery.RateLimitState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[state.Domain] = state
	return nil
}

// GetRateLimitState fetches the pacing state for one domain.
func (s *MirrorStore) GetRateLimitState(_ context.Context, domain string) (discovery.RateLimitState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.rates[domain]
	return state, ok, nil
}

// PutKeyQuotaState stores the usage counters for one provider key.
func (s *MirrorStore) PutKeyQuotaState(_ context.Context, state discovery.KeyQuotaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[state.Provider+"/"+state.KeyPrefix] = state
	return nil
}

// GetKeyQuotaState fetches the usage counters for one provider key.
func (s *MirrorStore) GetKeyQuotaState(_ context.Context, provider, keyPrefix string) (discovery.KeyQuotaState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.quotas[provider+"/"+keyPrefix]
	return state, ok, nil
}
