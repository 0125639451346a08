// Package category classifies search queries into source-selection buckets.
package category

import (
	"strings"

	"github.com/leadscout/leadscout/internal/discovery"
)

// Keyword lists checked in declaration order; the first category with a hit
// wins. Multi-word keywords match as substrings of the normalized query,
// single words match whole tokens.
var keywordSets = []struct {
	category discovery.Category
	keywords []string
}{
	{discovery.CategoryMedical, []string{
		"dentist", "dental", "orthodontist", "doctor", "physician", "clinic",
		"chiropractor", "dermatologist", "pediatrician", "optometrist",
		"veterinarian", "vet", "therapist", "medical", "urgent care", "pharmacy",
	}},
	{discovery.CategoryHomeServices, []string{
		"plumber", "plumbing", "electrician", "hvac", "roofer", "roofing",
		"landscaping", "landscaper", "contractor", "handyman", "painter",
		"pest control", "locksmith", "cleaning service", "movers",
	}},
	{discovery.CategoryLegal, []string{
		"lawyer", "attorney", "law firm", "legal", "paralegal", "notary",
	}},
	{discovery.CategoryRestaurantFood, []string{
		"restaurant", "cafe", "coffee", "bakery", "catering", "caterer",
		"pizzeria", "pizza", "bar", "brewery", "food truck", "deli", "diner",
	}},
	{discovery.CategoryOnlineDTC, []string{
		"dtc", "d2c", "ecommerce", "e-commerce", "online store", "online shop",
		"dropshipping", "shopify", "saas", "subscription box", "direct to consumer",
		"brand", "startup",
	}},
}

// Detect maps a free-text query to a category. Unmatched queries fall back
// to general_local when a location is set, general_online otherwise.
func Detect(query string, hasLocation bool) discovery.Category {
	normalized := normalize(query)
	tokens := tokenSet(normalized)

	for _, set := range keywordSets {
		for _, kw := range set.keywords {
			if matches(normalized, tokens, kw) {
				return set.category
			}
		}
	}
	if hasLocation {
		return discovery.CategoryGeneralLocal
	}
	return discovery.CategoryGeneralOnline
}

// IsLocal reports whether the category's businesses are found through
// location-bound sources.
func IsLocal(c discovery.Category) bool {
	switch c {
	case discovery.CategoryOnlineDTC, discovery.CategoryGeneralOnline:
		return false
	}
	return true
}

func matches(normalized string, tokens map[string]struct{}, keyword string) bool {
	if strings.ContainsRune(keyword, ' ') || strings.ContainsRune(keyword, '-') {
		return strings.Contains(normalized, keyword)
	}
	_, ok := tokens[keyword]
	return ok
}

func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
}

func tokenSet(normalized string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		tokens[strings.Trim(tok, ".,!?:;'\"()")] = struct{}{}
	}
	return tokens
}
