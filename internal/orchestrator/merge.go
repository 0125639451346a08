package orchestrator

import (
	"strings"
	"sync"
	"unicode"

	"github.com/leadscout/leadscout/internal/discovery"
)

// nameSimilarityFloor is the minimum similarity for two normalized names to
// merge without an exact match.
const nameSimilarityFloor = 0.85

var legalSuffixes = map[string]struct{}{
	"llc": {}, "inc": {}, "co": {}, "corp": {}, "ltd": {}, "llp": {},
	"pllc": {}, "pc": {}, "pa": {}, "company": {}, "incorporated": {},
}

// runState accumulates merged records for one run. Candidates from parallel
// source calls funnel through a single mutex; records are never removed
// within a run.
type runState struct {
	mu      sync.Mutex
	hasher  discovery.Hasher
	records []*discovery.MergedBusinessRecord
	byName  map[string]int
}

func newRunState(hasher discovery.Hasher) *runState {
	return &runState{
		hasher: hasher,
		byName: make(map[string]int),
	}
}

func (s *runState) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// absorb merges a batch of candidates from one source.
func (s *runState) absorb(candidates []discovery.BusinessCandidate, sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		s.absorbOne(c, sourceID)
	}
}

func (s *runState) absorbOne(c discovery.BusinessCandidate, sourceID string) {
	normalized := normalizeName(c.Name)
	if normalized == "" {
		return
	}

	idx, matched := s.byName[normalized]
	if !matched {
		idx, matched = s.fuzzyMatch(normalized)
	}
	if matched {
		mergeInto(s.records[idx], c, sourceID)
		return
	}

	record := &discovery.MergedBusinessRecord{
		ID:          s.recordID(normalized),
		Name:        c.Name,
		Website:     c.Website,
		Phone:       c.Phone,
		Address:     c.Address,
		Rating:      c.Rating,
		ReviewCount: c.ReviewCount,
		Email:       c.Email,
		EmailSeed:   c.Seed,
		Sources:     []string{sourceID},
	}
	s.byName[normalized] = len(s.records)
	s.records = append(s.records, record)
}

func (s *runState) fuzzyMatch(normalized string) (int, bool) {
	for name, idx := range s.byName {
		if nameSimilarity(normalized, name) >= nameSimilarityFloor {
			return idx, true
		}
	}
	return 0, false
}

func (s *runState) recordID(normalized string) string {
	if s.hasher != nil {
		if id, err := s.hasher.Hash([]byte(normalized)); err == nil {
			return id
		}
	}
	return normalized
}

func (s *runState) snapshot() []discovery.MergedBusinessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]discovery.MergedBusinessRecord, len(s.records))
	for i, r := range s.records {
		out[i] = *r
	}
	return out
}

// mergeInto combines a candidate into an existing record with field-specific
// precedence: website/phone/address keep the first non-empty value, email
// keeps the higher-confidence one, rating keeps the first non-null, review
// count keeps the max.
func mergeInto(record *discovery.MergedBusinessRecord, c discovery.BusinessCandidate, sourceID string) {
	if record.Website == "" {
		record.Website = c.Website
	}
	if record.Phone == "" {
		record.Phone = c.Phone
	}
	if record.Address == "" {
		record.Address = c.Address
	}
	if c.Email != "" && (record.Email == "" || c.Seed > record.EmailSeed) {
		record.Email = c.Email
		record.EmailSeed = c.Seed
	}
	if record.Rating == nil {
		record.Rating = c.Rating
	}
	if c.ReviewCount > record.ReviewCount {
		record.ReviewCount = c.ReviewCount
	}
	for _, src := range record.Sources {
		if src == sourceID {
			return
		}
	}
	record.Sources = append(record.Sources, sourceID)
}

// normalizeName lowercases, strips punctuation and legal suffixes, and
// collapses whitespace so "Acme Dental, LLC" and "acme dental" collide.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '/':
			b.WriteByte(' ')
		}
	}
	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for _, tok := range tokens {
		if tok == "the" {
			continue
		}
		if _, ok := legalSuffixes[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// nameSimilarity is 1 - normalized Levenshtein distance.
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein(a, b)
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return 1 - float64(dist)/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
