package confidence

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/emailpattern"
)

// Fusion weights. Overall = clamp(base + pattern + reputation + verification
// + business + penalties, 0, 100).
const (
	baseScore          = 20.0
	patternWeight      = 25.0
	reputationWeight   = 15.0
	verificationWeight = 25.0
	businessWeight     = 15.0

	// HardBouncePenalty is subtracted for a hard bounce on record, clamped
	// at zero.
	HardBouncePenalty = 25.0

	complaintPenalty        = 15.0
	disposableDomainPenalty = 20.0
	negativeFeedbackPenalty = 10.0

	// CatchAllCeiling caps guessed (unconfirmed) emails on domains that
	// accept any local part.
	CatchAllCeiling = 60.0

	crossRefBonus    = 2.0
	crossRefBonusMax = 6.0

	neutralPatternFactor    = 0.5
	mismatchPatternFactor   = 0.2
	neutralVerificationBase = 50.0

	bounceLookback   = 90 * 24 * time.Hour
	feedbackLookback = 30 * 24 * time.Hour
)

var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"yopmail.com":       {},
	"trashmail.com":     {},
	"sharklasers.com":   {},
}

// PatternReader exposes the learned email pattern for a domain.
type PatternReader interface {
	Pattern(ctx context.Context, domain string) (discovery.DomainEmailPattern, bool)
}

// CatchAllChecker reports whether a domain accepts mail for any local part.
type CatchAllChecker interface {
	IsCatchAll(ctx context.Context, domain string) bool
}

// Input carries everything known about one record at scoring time. Zero
// values read as "no evidence" and score neutrally.
type Input struct {
	Record    discovery.MergedBusinessRecord
	FirstName string
	LastName  string

	// EmailConfirmed marks emails confirmed by a user or a second
	// independent source, as opposed to pattern-guessed ones.
	EmailConfirmed bool
	SMTPAccepted   bool
	HasMX          bool

	YearsInBusiness int
	// SourceReliability is the mean reliability weight of the sources that
	// contributed this record.
	SourceReliability float64
}

// Scorer fuses pattern, reputation, verification, and business signals into
// one bounded score. Store failures degrade to neutral sub-scores instead of
// failing the caller.
type Scorer struct {
	patterns PatternReader
	catchAll CatchAllChecker
	feedback discovery.FeedbackStore
	clock    discovery.Clock
	logger   *zap.Logger
}

// NewScorer builds a Scorer. patterns, catchAll, and feedback may each be nil
// when the corresponding signal is unavailable.
func NewScorer(patterns PatternReader, catchAll CatchAllChecker, feedback discovery.FeedbackStore, clock discovery.Clock, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		patterns: patterns,
		catchAll: catchAll,
		feedback: feedback,
		clock:    clock,
		logger:   logger,
	}
}

// Score computes the confidence of in.Record's contact fields.
func (s *Scorer) Score(ctx context.Context, in Input) discovery.ConfidenceScore {
	domain := emailpattern.DomainOf(in.Record.Email)

	breakdown := discovery.ConfidenceBreakdown{
		Base:         baseScore,
		Pattern:      s.patternScore(ctx, domain, in),
		Reputation:   s.reputationScore(ctx, domain, in),
		Verification: s.verificationScore(ctx, in),
		Business:     businessScore(in),
		Penalties:    s.penaltyScore(ctx, domain, in),
	}

	overall := clamp(breakdown.Base + breakdown.Pattern + breakdown.Reputation +
		breakdown.Verification + breakdown.Business - breakdown.Penalties)

	catchAllCapped := false
	if domain != "" && in.Record.Email != "" && !in.EmailConfirmed && s.catchAll != nil {
		if s.catchAll.IsCatchAll(ctx, domain) && overall > CatchAllCeiling {
			overall = CatchAllCeiling
			catchAllCapped = true
		}
	}

	return discovery.ConfidenceScore{
		Overall:         overall,
		Breakdown:       breakdown,
		Level:           discovery.LevelFor(overall),
		Recommendations: recommendations(in, overall, catchAllCapped),
	}
}

// ApplyPenalty subtracts penalty from score, clamped to [0,100]. A score of
// 10 with a hard bounce lands on 0, never below.
func ApplyPenalty(score, penalty float64) float64 {
	return clamp(score - penalty)
}

func (s *Scorer) patternScore(ctx context.Context, domain string, in Input) float64 {
	if in.Record.Email == "" {
		return 0
	}
	if s.patterns == nil || domain == "" {
		return patternWeight * neutralPatternFactor
	}
	learned, ok := s.patterns.Pattern(ctx, domain)
	if !ok {
		return patternWeight * neutralPatternFactor
	}
	if in.FirstName == "" && in.LastName == "" {
		return patternWeight * neutralPatternFactor
	}
	detected := emailpattern.DetectPattern(in.Record.Email, in.FirstName, in.LastName)
	if string(detected) == learned.Pattern {
		return patternWeight * learned.Confidence
	}
	return patternWeight * mismatchPatternFactor
}

// reputationScore blends bounce-derived domain reputation with source
// reliability. Bounce history is read best-effort; a failing store reads as
// a clean history.
func (s *Scorer) reputationScore(ctx context.Context, domain string, in Input) float64 {
	domainRep := 1.0
	if s.feedback != nil && domain != "" {
		bounces, err := s.feedback.ListBounces(ctx, domain, s.now().Add(-bounceLookback))
		if err != nil {
			s.logger.Warn("bounce lookup failed, scoring reputation neutrally",
				zap.String("domain", domain), zap.Error(err))
		} else {
			hard := 0
			for _, b := range bounces {
				if b.Type == discovery.BounceHard {
					hard++
				}
			}
			domainRep = 1.0 - math.Min(1.0, float64(hard)/5.0)
		}
	}
	reliability := in.SourceReliability
	if reliability == 0 {
		reliability = 0.5
	}
	return reputationWeight * (0.6*domainRep + 0.4*reliability)
}

func (s *Scorer) verificationScore(ctx context.Context, in Input) float64 {
	var score float64
	if in.SMTPAccepted {
		score += verificationWeight * 0.4
	}
	if in.HasMX {
		score += verificationWeight * 0.2
	}
	score += verificationWeight * 0.4 * (s.businessVerification(ctx, in.Record.ID) / 100.0)

	if extra := len(in.Record.Sources) - 1; extra > 0 {
		score += math.Min(crossRefBonusMax, float64(extra)*crossRefBonus)
	}
	return score
}

// businessVerification reads the feedback-adjusted verification score,
// defaulting to neutral when the business is unknown or the store is down.
func (s *Scorer) businessVerification(ctx context.Context, businessID string) float64 {
	if s.feedback == nil || businessID == "" {
		return neutralVerificationBase
	}
	record, ok, err := s.feedback.GetVerifiedBusiness(ctx, businessID)
	if err != nil {
		s.logger.Warn("verified business lookup failed, scoring neutrally",
			zap.String("business_id", businessID), zap.Error(err))
		return neutralVerificationBase
	}
	if !ok {
		return neutralVerificationBase
	}
	return record.VerificationScore
}

func businessScore(in Input) float64 {
	var score float64
	if in.YearsInBusiness > 0 {
		score += math.Min(5.0, float64(in.YearsInBusiness)*0.5)
	}
	if in.Record.ReviewCount > 0 {
		score += math.Min(5.0, 1.5*math.Log10(1.0+float64(in.Record.ReviewCount)))
	}
	if in.Record.Rating != nil && *in.Record.Rating >= 4.0 {
		score += 5.0
	}
	return math.Min(businessWeight, score)
}

func (s *Scorer) penaltyScore(ctx context.Context, domain string, in Input) float64 {
	var penalty float64
	if _, disposable := disposableDomains[domain]; disposable {
		penalty += disposableDomainPenalty
	}
	if s.feedback == nil {
		return penalty
	}

	if in.Record.Email != "" && domain != "" {
		bounces, err := s.feedback.ListBounces(ctx, domain, s.now().Add(-bounceLookback))
		if err != nil {
			s.logger.Warn("bounce lookup failed, skipping bounce penalties",
				zap.String("domain", domain), zap.Error(err))
		} else {
			email := strings.ToLower(strings.TrimSpace(in.Record.Email))
			hardBounced, complained := false, false
			for _, b := range bounces {
				if !strings.EqualFold(b.Email, email) {
					continue
				}
				switch b.Type {
				case discovery.BounceHard:
					hardBounced = true
				case discovery.BounceComplaint:
					complained = true
				}
			}
			if hardBounced {
				penalty += HardBouncePenalty
			}
			if complained {
				penalty += complaintPenalty
			}
		}
	}

	if in.Record.ID != "" {
		reports, err := s.feedback.ListFeedback(ctx, in.Record.ID, s.now().Add(-feedbackLookback))
		if err != nil {
			s.logger.Warn("feedback lookup failed, skipping feedback penalty",
				zap.String("business_id", in.Record.ID), zap.Error(err))
			return penalty
		}
		net := 0
		for _, r := range reports {
			switch r.Type {
			case discovery.FeedbackConfirmedCorrect, discovery.FeedbackPartialMatch:
				net++
			default:
				net--
			}
		}
		if net < 0 {
			penalty += negativeFeedbackPenalty
		}
	}
	return penalty
}

func recommendations(in Input, overall float64, catchAllCapped bool) []string {
	var recs []string
	if in.Record.Email == "" {
		recs = append(recs, "no email found; try the business website contact page")
		return recs
	}
	if catchAllCapped {
		recs = append(recs, "domain accepts all mail; confirm the mailbox manually before outreach")
	}
	if !in.SMTPAccepted && !in.EmailConfirmed {
		recs = append(recs, "email not verified over SMTP; verify before high-volume outreach")
	}
	if overall < 50 {
		recs = append(recs, fmt.Sprintf("low confidence (%s); cross-reference with another source",
			discovery.LevelFor(overall)))
	}
	return recs
}

func (s *Scorer) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
