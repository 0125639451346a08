// Package keypool rotates provider API keys under per-key daily quotas.
package keypool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
)

// ProviderConfig declares the keys and daily per-key limit for one provider.
type ProviderConfig struct {
	Keys       []string
	DailyLimit int
}

// Config maps provider names to their key sets.
type Config struct {
	Providers map[string]ProviderConfig
	// MirrorTimeout bounds best-effort mirror writes. Default 500ms.
	MirrorTimeout time.Duration
}

// Quota summarizes a provider's aggregate remaining capacity.
type Quota struct {
	Available bool `json:"available"`
	Remaining int  `json:"remaining"`
}

type keyState struct {
	key     string
	used    int
	limit   int
	resetAt time.Time
}

type providerState struct {
	keys   []*keyState
	cursor int
}

// Pool hands out the next under-quota key per provider, round robin. State is
// mirrored to a shared store on every mutation so horizontally scaled
// instances approximate one shared pool; the local copy stays authoritative.
type Pool struct {
	mu        sync.Mutex
	providers map[string]*providerState
	clock     discovery.Clock
	mirror    discovery.MirrorStore
	timeout   time.Duration
	logger    *zap.Logger
}

// New builds a Pool. mirror may be nil when no shared store is configured.
func New(cfg Config, clock discovery.Clock, mirror discovery.MirrorStore, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.MirrorTimeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	providers := make(map[string]*providerState, len(cfg.Providers))
	now := clock.Now().UTC()
	for name, pc := range cfg.Providers {
		state := &providerState{}
		for _, key := range pc.Keys {
			state.keys = append(state.keys, &keyState{
				key:     key,
				limit:   pc.DailyLimit,
				resetAt: nextUTCMidnight(now),
			})
		}
		providers[name] = state
	}
	return &Pool{
		providers: providers,
		clock:     clock,
		mirror:    mirror,
		timeout:   timeout,
		logger:    logger,
	}
}

// NextKey returns the first under-quota key for provider, scanning from the
// rotation cursor and advancing it past the chosen key. ok is false only when
// every key is exhausted for the day; callers must then skip the provider for
// the rest of the run rather than queue or retry.
func (p *Pool) NextKey(provider string) (key string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, exists := p.providers[provider]
	if !exists || len(state.keys) == 0 {
		return "", false
	}
	now := p.clock.Now().UTC()
	n := len(state.keys)
	for i := 0; i < n; i++ {
		idx := (state.cursor + i) % n
		ks := state.keys[idx]
		p.maybeReset(ks, now)
		if ks.used < ks.limit {
			state.cursor = (idx + 1) % n
			return ks.key, true
		}
	}
	return "", false
}

// RecordUsage charges n calls against the given key and mirrors the new state.
func (p *Pool) RecordUsage(ctx context.Context, provider, key string, n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	state, exists := p.providers[provider]
	if !exists {
		p.mu.Unlock()
		return
	}
	now := p.clock.Now().UTC()
	var snapshot *discovery.KeyQuotaState
	for _, ks := range state.keys {
		if ks.key != key {
			continue
		}
		p.maybeReset(ks, now)
		ks.used += n
		snapshot = &discovery.KeyQuotaState{
			Provider:  provider,
			KeyPrefix: keyPrefix(ks.key),
			Used:      ks.used,
			Limit:     ks.limit,
			ResetAt:   ks.resetAt,
		}
		break
	}
	p.mu.Unlock()
	if snapshot != nil {
		p.mirrorQuota(ctx, *snapshot)
	}
}

// CheckQuota sums remaining capacity across all keys for provider.
func (p *Pool) CheckQuota(provider string) Quota {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, exists := p.providers[provider]
	if !exists {
		return Quota{}
	}
	now := p.clock.Now().UTC()
	remaining := 0
	for _, ks := range state.keys {
		p.maybeReset(ks, now)
		if left := ks.limit - ks.used; left > 0 {
			remaining += left
		}
	}
	return Quota{Available: remaining > 0, Remaining: remaining}
}

// Providers lists the configured provider names.
func (p *Pool) Providers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.providers))
	for name := range p.providers {
		names = append(names, name)
	}
	return names
}

// Reset clears all usage counters. Intended for tests.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now().UTC()
	for _, state := range p.providers {
		state.cursor = 0
		for _, ks := range state.keys {
			ks.used = 0
			ks.resetAt = nextUTCMidnight(now)
		}
	}
}

// maybeReset lazily rolls a key's usage once its day has passed. Caller holds
// the pool lock.
func (p *Pool) maybeReset(ks *keyState, now time.Time) {
	if now.Before(ks.resetAt) {
		return
	}
	ks.used = 0
	ks.resetAt = nextUTCMidnight(now)
}

func (p *Pool) mirrorQuota(ctx context.Context, state discovery.KeyQuotaState) {
	if p.mirror == nil {
		return
	}
	mirrorCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.mirror.PutKeyQuotaState(mirrorCtx, state); err != nil {
		p.logger.Debug("key quota mirror write failed",
			zap.String("provider", state.Provider),
			zap.Error(err),
		)
	}
}

func nextUTCMidnight(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// keyPrefix truncates a key for mirror storage so raw credentials never leave
// the process.
func keyPrefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
