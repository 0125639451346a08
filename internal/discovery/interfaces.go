package discovery

import (
	"context"
	"time"
)

// Source is the common surface of every external data source. The orchestrator
// dispatches all three variants through one loop; the variant interfaces below
// declare what extra infrastructure a source needs before it may be called.
type Source interface {
	Descriptor() DataSource
	Search(ctx context.Context, req SearchRequest) ([]BusinessCandidate, error)
}

// APISource is backed by a documented API and consumes pooled keys.
type APISource interface {
	Source
	// Provider names the key-pool provider this source draws from.
	Provider() string
}

// DirectorySource scrapes plain HTML listings and must honor the rate limiter.
type DirectorySource interface {
	Source
	// BaseURL is the root used for rate-limit domain normalization.
	BaseURL() string
}

// RenderedSource needs a stealth browser session in addition to rate limiting.
type RenderedSource interface {
	Source
	BaseURL() string
}

// PatternStore persists learned per-domain email patterns.
type PatternStore interface {
	GetPattern(ctx context.Context, domain string) (DomainEmailPattern, bool, error)
	UpsertPattern(ctx context.Context, pattern DomainEmailPattern) error
}

// FeedbackStore persists append-only feedback signals and the per-business
// verification record they roll up into.
type FeedbackStore interface {
	GetVerifiedBusiness(ctx context.Context, businessID string) (VerifiedBusinessRecord, bool, error)
	PutVerifiedBusiness(ctx context.Context, record VerifiedBusinessRecord) error
	AppendBounce(ctx context.Context, bounce BounceRecord) error
	AppendFeedback(ctx context.Context, feedback FeedbackRecord) error
	ListBounces(ctx context.Context, domain string, since time.Time) ([]BounceRecord, error)
	ListFeedback(ctx context.Context, businessID string, since time.Time) ([]FeedbackRecord, error)
}

// MirrorStore shares rate-limit and key-quota state across instances on a
// best-effort basis. Implementations must be cheap and never required for
// correctness; callers treat local state as authoritative.
type MirrorStore interface {
	PutRateLimitState(ctx context.Context, state RateLimitState) error
	GetRateLimitState(ctx context.Context, domain string) (RateLimitState, bool, error)
	PutKeyQuotaState(ctx context.Context, state KeyQuotaState) error
	GetKeyQuotaState(ctx context.Context, provider, keyPrefix string) (KeyQuotaState, bool, error)
}

// RunStore persists run lifecycle and results.
type RunStore interface {
	CreateRun(ctx context.Context, req SearchRequest) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string) error
	GetStatus(ctx context.Context, runID string) (status RunStatus, errText string, found bool, err error)
	PutResult(ctx context.Context, result RunResult) error
	GetResult(ctx context.Context, runID string) (RunResult, bool, error)
}

// SourceStatsStore records per-source outcome counters for observability.
type SourceStatsStore interface {
	RecordSourceStats(ctx context.Context, runID string, stats []SourceStats) error
}

// QueueItem wraps a search request ready to run.
type QueueItem struct {
	Request   SearchRequest
	Attempt   int
	Submitted int64
}

// Queue provides enqueue/dequeue semantics for discovery runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes completion and alert events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for record identity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
