// Package discovery defines core types shared across subsystems.
package discovery

import (
	"time"
)

// RunStatus represents the lifecycle state of a discovery run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusDegraded  RunStatus = "degraded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Category classifies a search query into a source-selection bucket.
type Category string

// Supported query categories.
const (
	CategoryMedical        Category = "medical"
	CategoryHomeServices   Category = "home_services"
	CategoryLegal          Category = "legal"
	CategoryRestaurantFood Category = "restaurant_food"
	CategoryOnlineDTC      Category = "online_dtc"
	CategoryGeneralLocal   Category = "general_local"
	CategoryGeneralOnline  Category = "general_online"
)

// SourceKind distinguishes the three source call paths.
type SourceKind string

// Supported source kinds.
const (
	SourceKindAPI       SourceKind = "api"
	SourceKindDirectory SourceKind = "directory"
	SourceKindSearch    SourceKind = "search_engine"
)

// B2BFilters narrows a search to a business profile.
type B2BFilters struct {
	Industry    string `json:"industry,omitempty"`
	MinEmployee int    `json:"min_employees,omitempty"`
	MaxEmployee int    `json:"max_employees,omitempty"`
	State       string `json:"state,omitempty"`
}

// SearchRequest identifies one orchestration run. It is immutable once accepted.
type SearchRequest struct {
	ID          string      `json:"id"`
	Query       string      `json:"query"`
	Location    string      `json:"location,omitempty"`
	MaxResults  int         `json:"max_results"`
	Priority    int         `json:"priority"`
	Filters     *B2BFilters `json:"filters,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// DataSource describes one external data source a run may consult.
type DataSource struct {
	ID          string     `json:"id"`
	Kind        SourceKind `json:"kind"`
	Provider    string     `json:"provider,omitempty"`
	Reliability float64    `json:"reliability"`
	// MinResults skips this source once the run already holds at least this
	// many validated results. A run with zero results never skips.
	MinResults int `json:"min_results,omitempty"`
	// Tier groups sources into fan-out waves; lower tiers are tried first.
	Tier    int           `json:"tier"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// BusinessCandidate is a transient per-source result consumed by merge.
type BusinessCandidate struct {
	Name        string   `json:"name"`
	Website     string   `json:"website,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Address     string   `json:"address,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount int      `json:"review_count,omitempty"`
	Email       string   `json:"email,omitempty"`
	SourceID    string   `json:"source_id"`
	// Seed is the raw confidence the producing source attaches to Email.
	Seed float64 `json:"seed,omitempty"`
}

// MergedBusinessRecord owns the union of fields from all candidates merged
// under one identity within a run. Records are never deleted within a run.
type MergedBusinessRecord struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Website     string           `json:"website,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Address     string           `json:"address,omitempty"`
	Rating      *float64         `json:"rating,omitempty"`
	ReviewCount int              `json:"review_count,omitempty"`
	Email       string           `json:"email,omitempty"`
	EmailSeed   float64          `json:"email_seed,omitempty"`
	Sources     []string         `json:"sources"`
	Confidence  *ConfidenceScore `json:"confidence,omitempty"`
}

// SourceStats tracks per-source outcomes for one run.
type SourceStats struct {
	SourceID   string        `json:"source_id"`
	Attempts   int           `json:"attempts"`
	Successes  int           `json:"successes"`
	Failures   int           `json:"failures"`
	Skipped    int           `json:"skipped"`
	AvgLatency time.Duration `json:"avg_latency"`
	LastError  string        `json:"last_error,omitempty"`
}

// RunResult is everything a finished run hands to callers.
type RunResult struct {
	Request   SearchRequest          `json:"request"`
	Status    RunStatus              `json:"status"`
	Category  Category               `json:"category"`
	Records   []MergedBusinessRecord `json:"records"`
	Stats     []SourceStats          `json:"stats"`
	StartedAt time.Time              `json:"started_at"`
	Finished  time.Time              `json:"finished_at"`
	ErrorText string                 `json:"error_text,omitempty"`
}

// ConfidenceLevel buckets an overall confidence score.
type ConfidenceLevel string

// Confidence tiers.
const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
)

// ConfidenceBreakdown names the sub-scores that sum into the overall score.
type ConfidenceBreakdown struct {
	Base         float64 `json:"base"`
	Pattern      float64 `json:"pattern"`
	Reputation   float64 `json:"reputation"`
	Verification float64 `json:"verification"`
	Business     float64 `json:"business"`
	Penalties    float64 `json:"penalties"`
}

// ConfidenceScore is recomputed per scoring call and never persisted.
type ConfidenceScore struct {
	Overall         float64             `json:"overall"`
	Breakdown       ConfidenceBreakdown `json:"breakdown"`
	Level           ConfidenceLevel     `json:"level"`
	Recommendations []string            `json:"recommendations,omitempty"`
}

// LevelFor maps an overall score to its tier.
func LevelFor(overall float64) ConfidenceLevel {
	switch {
	case overall >= 85:
		return ConfidenceVeryHigh
	case overall >= 70:
		return ConfidenceHigh
	case overall >= 50:
		return ConfidenceMedium
	case overall >= 30:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// DomainEmailPattern is the learned address template for one mail domain.
type DomainEmailPattern struct {
	Domain      string    `json:"domain"`
	Pattern     string    `json:"email_pattern"`
	Confidence  float64   `json:"pattern_confidence"`
	SampleCount int       `json:"sample_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// VerifiedBusinessRecord accumulates feedback signals for one business.
// Invariant: PositiveReports + NegativeReports == TotalReports.
type VerifiedBusinessRecord struct {
	BusinessID        string          `json:"business_id"`
	VerificationScore float64         `json:"verification_score"`
	PositiveReports   int             `json:"positive_reports"`
	NegativeReports   int             `json:"negative_reports"`
	TotalReports      int             `json:"total_reports"`
	VerifiedFields    map[string]bool `json:"verified_fields,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// BounceType classifies delivery failures and complaints.
type BounceType string

// Supported bounce types.
const (
	BounceHard        BounceType = "hard"
	BounceSoft        BounceType = "soft"
	BounceComplaint   BounceType = "complaint"
	BounceUnsubscribe BounceType = "unsubscribe"
)

// BounceRecord is an append-only delivery failure signal.
type BounceRecord struct {
	Email      string     `json:"email"`
	Domain     string     `json:"domain"`
	Type       BounceType `json:"bounce_type"`
	Reason     string     `json:"reason,omitempty"`
	BusinessID string     `json:"business_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// FeedbackType names the user report kinds the feedback loop understands.
type FeedbackType string

// Supported feedback types with their verification-score deltas applied by
// the confidence subsystem.
const (
	FeedbackConfirmedCorrect FeedbackType = "confirmed_correct"
	FeedbackPartialMatch     FeedbackType = "partial_match"
	FeedbackWrongEmail       FeedbackType = "wrong_email"
	FeedbackEmailBounced     FeedbackType = "email_bounced"
	FeedbackBusinessClosed   FeedbackType = "business_closed"
)

// FeedbackRecord is an append-only user report.
type FeedbackRecord struct {
	BusinessID     string       `json:"business_id"`
	Type           FeedbackType `json:"feedback_type"`
	Field          string       `json:"field,omitempty"`
	OriginalValue  string       `json:"original_value,omitempty"`
	CorrectedValue string       `json:"corrected_value,omitempty"`
	Impact         float64      `json:"confidence_impact"`
	SubmittedAt    time.Time    `json:"submitted_at"`
}

// RateLimitState is the per-domain pacing state mirrored across instances.
type RateLimitState struct {
	Domain       string        `json:"domain"`
	LastRequest  time.Time     `json:"last_request"`
	RequestCount int           `json:"request_count"`
	WindowStart  time.Time     `json:"window_start"`
	CrawlDelay   time.Duration `json:"crawl_delay,omitempty"`
}

// KeyQuotaState is the per provider/key/day usage mirrored across instances.
type KeyQuotaState struct {
	Provider  string    `json:"provider"`
	KeyPrefix string    `json:"key_prefix"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}
