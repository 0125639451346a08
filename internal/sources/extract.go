package sources

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leadscout/leadscout/internal/discovery"
)

// ExtractRules holds the CSS selectors that locate listing fields on one
// site. Item scopes every other selector; empty selectors skip the field.
type ExtractRules struct {
	Item        string
	Name        string
	Website     string
	Phone       string
	Address     string
	Email       string
	Rating      string
	ReviewCount string
}

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	digitsPattern = regexp.MustCompile(`\d+`)
	ratingPattern = regexp.MustCompile(`\d+(\.\d+)?`)
)

// extractCandidates parses listing items from rendered or fetched HTML.
func extractCandidates(html string, rules ExtractRules, sourceID string, emailSeed float64) ([]discovery.BusinessCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var candidates []discovery.BusinessCandidate
	doc.Find(rules.Item).Each(func(_ int, item *goquery.Selection) {
		name := text(item, rules.Name)
		if name == "" {
			return
		}
		c := discovery.BusinessCandidate{
			Name:     name,
			Website:  href(item, rules.Website),
			Phone:    text(item, rules.Phone),
			Address:  text(item, rules.Address),
			SourceID: sourceID,
		}
		if email := extractEmail(item, rules.Email); email != "" {
			c.Email = email
			c.Seed = emailSeed
		}
		if r := parseRating(text(item, rules.Rating)); r != nil {
			c.Rating = r
		}
		c.ReviewCount = parseCount(text(item, rules.ReviewCount))
		candidates = append(candidates, c)
	})
	return candidates, nil
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func href(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	link, _ := s.Find(selector).First().Attr("href")
	return strings.TrimSpace(link)
}

// extractEmail prefers mailto links, then falls back to an address-shaped
// string in the selector's text.
func extractEmail(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	sel := s.Find(selector).First()
	if link, ok := sel.Attr("href"); ok && strings.HasPrefix(link, "mailto:") {
		addr := strings.TrimPrefix(link, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		return strings.ToLower(strings.TrimSpace(addr))
	}
	return strings.ToLower(emailPattern.FindString(sel.Text()))
}

func parseRating(raw string) *float64 {
	match := ratingPattern.FindString(raw)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

func parseCount(raw string) int {
	match := digitsPattern.FindString(strings.ReplaceAll(raw, ",", ""))
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}
