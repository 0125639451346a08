package emailpattern

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
)

const (
	// confidenceCeiling caps re-confirmation growth below certainty.
	confidenceCeiling = 0.95
	// stableSampleCount is the point past which a disagreeing sample can no
	// longer overwrite the cached pattern, only dampen its confidence.
	stableSampleCount = 3

	initialConfidence = 0.5
	confirmBoost      = 0.1
	disagreeDamp      = 0.1
	confidenceFloor   = 0.1
)

// Learner maintains the per-domain pattern cache backed by a PatternStore.
// All state is instance-local and constructor-injected so tests can create
// isolated learners; Reset drops the in-memory cache.
type Learner struct {
	store  discovery.PatternStore
	clock  discovery.Clock
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]discovery.DomainEmailPattern
}

// NewLearner builds a Learner. store may be nil for purely in-memory use.
func NewLearner(store discovery.PatternStore, clock discovery.Clock, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{
		store:  store,
		clock:  clock,
		logger: logger,
		cache:  make(map[string]discovery.DomainEmailPattern),
	}
}

// Pattern returns the learned pattern for domain, consulting the cache first
// and falling through to the store. ok is false when nothing was learned yet.
func (l *Learner) Pattern(ctx context.Context, domain string) (discovery.DomainEmailPattern, bool) {
	l.mu.Lock()
	cached, hit := l.cache[domain]
	l.mu.Unlock()
	if hit {
		return cached, true
	}
	if l.store == nil {
		return discovery.DomainEmailPattern{}, false
	}
	stored, found, err := l.store.GetPattern(ctx, domain)
	if err != nil {
		l.logger.Warn("pattern store read failed; treating domain as unlearned",
			zap.String("domain", domain), zap.Error(err))
		return discovery.DomainEmailPattern{}, false
	}
	if !found {
		return discovery.DomainEmailPattern{}, false
	}
	l.mu.Lock()
	l.cache[domain] = stored
	l.mu.Unlock()
	return stored, true
}

// RecordConfirmation feeds one confirmed (email, name) sample for a domain
// into the model. An agreeing sample reinforces the cached pattern, capped
// below 1.0. A disagreeing sample replaces the pattern only while fewer than
// stableSampleCount samples were seen; afterwards it only dampens confidence.
func (l *Learner) RecordConfirmation(ctx context.Context, domain string, sample Sample) (discovery.DomainEmailPattern, error) {
	detected := DetectPattern(sample.Email, sample.FirstName, sample.LastName)
	if detected == PatternUnknown {
		return discovery.DomainEmailPattern{}, fmt.Errorf("sample %q does not match any template", sample.Email)
	}

	now := l.now()
	current, known := l.Pattern(ctx, domain)

	var next discovery.DomainEmailPattern
	switch {
	case !known:
		next = discovery.DomainEmailPattern{
			Domain:      domain,
			Pattern:     string(detected),
			Confidence:  initialConfidence,
			SampleCount: 1,
			LastUpdated: now,
		}
	case string(detected) == current.Pattern:
		next = current
		next.Confidence = min(confidenceCeiling, current.Confidence+confirmBoost)
		next.SampleCount++
		next.LastUpdated = now
	case current.SampleCount < stableSampleCount:
		// Still provisional: the new evidence wins outright.
		next = discovery.DomainEmailPattern{
			Domain:      domain,
			Pattern:     string(detected),
			Confidence:  initialConfidence,
			SampleCount: current.SampleCount + 1,
			LastUpdated: now,
		}
	default:
		// Stable pattern: disagreement dampens, never silently flips.
		next = current
		next.Confidence = max(confidenceFloor, current.Confidence-disagreeDamp)
		next.SampleCount++
		next.LastUpdated = now
	}

	l.mu.Lock()
	l.cache[domain] = next
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.UpsertPattern(ctx, next); err != nil {
			return next, discovery.NewError(discovery.KindDatabase, fmt.Errorf("persist pattern for %s: %w", domain, err))
		}
	}
	return next, nil
}

// Learn bulk-infers a domain's pattern from samples and seeds the cache/store
// with it. Used when a source returns several confirmed contacts at once.
func (l *Learner) Learn(ctx context.Context, domain string, samples []Sample) (discovery.DomainEmailPattern, error) {
	pattern := LearnPattern(samples)
	record := discovery.DomainEmailPattern{
		Domain:      domain,
		Pattern:     string(pattern),
		Confidence:  initialConfidence,
		SampleCount: len(samples),
		LastUpdated: l.now(),
	}
	if existing, known := l.Pattern(ctx, domain); known && existing.SampleCount >= stableSampleCount {
		// Never clobber a stable pattern with a bulk guess.
		return existing, nil
	}
	l.mu.Lock()
	l.cache[domain] = record
	l.mu.Unlock()
	if l.store != nil {
		if err := l.store.UpsertPattern(ctx, record); err != nil {
			return record, discovery.NewError(discovery.KindDatabase, fmt.Errorf("persist pattern for %s: %w", domain, err))
		}
	}
	return record, nil
}

// Guess renders the domain's learned (or default) pattern for a person.
func (l *Learner) Guess(ctx context.Context, domain, firstName, lastName string) (string, Pattern, error) {
	pattern := DefaultPattern
	if learned, ok := l.Pattern(ctx, domain); ok {
		pattern = Pattern(learned.Pattern)
	}
	email, err := Generate(pattern, firstName, lastName, domain)
	if err != nil {
		return "", pattern, err
	}
	return email, pattern, nil
}

// Reset drops the in-memory cache. Stored patterns are untouched.
func (l *Learner) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]discovery.DomainEmailPattern)
}

func (l *Learner) now() time.Time {
	if l.clock != nil {
		return l.clock.Now()
	}
	return time.Now()
}
