// Package memory provides in-memory store implementations for development
// and testing. Every store is safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/leadscout/leadscout/internal/discovery"
)

// PatternStore keeps learned email patterns in a map.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[string]discovery.DomainEmailPattern
}

// NewPatternStore constructs a PatternStore.
func NewPatternStore() *PatternStore {
	return &PatternStore{patterns: make(map[string]discovery.DomainEmailPattern)}
}

// GetPattern fetches the pattern for a domain.
func (s *PatternStore) GetPattern(_ context.Context, domain string) (discovery.DomainEmailPattern, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[domain]
	return p, ok, nil
}

// UpsertPattern stores the pattern, replacing any previous row.
func (s *PatternStore) UpsertPattern(_ context.Context, pattern discovery.DomainEmailPattern) error {
	if pattern.Domain == "" {
		return errors.New("pattern domain is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[pattern.Domain] = pattern
	return nil
}
