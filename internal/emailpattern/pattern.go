// Package emailpattern infers, caches, and applies per-domain email address
// templates.
package emailpattern

import (
	"fmt"
	"strings"
)

// Pattern names an email local-part template.
type Pattern string

// Recognized templates. PatternGeneric covers role addresses (info@, ...);
// PatternUnknown means the local part matched nothing.
const (
	PatternFirstDotLast Pattern = "first.last"
	PatternFirstLast    Pattern = "firstlast"
	PatternFirstULast   Pattern = "first_last"
	PatternFLast        Pattern = "flast"
	PatternFirstL       Pattern = "firstl"
	PatternFDotLast     Pattern = "f.last"
	PatternFirst        Pattern = "first"
	PatternLast         Pattern = "last"
	PatternLastFirst    Pattern = "lastfirst"
	PatternLastDotFirst Pattern = "last.first"
	PatternLastF        Pattern = "lastf"
	PatternFL           Pattern = "fl"
	PatternGeneric      Pattern = "generic"
	PatternUnknown      Pattern = "unknown"
)

// DefaultPattern is assumed for a domain with no classifiable samples.
const DefaultPattern = PatternFirstDotLast

var genericPrefixes = map[string]struct{}{
	"info":    {},
	"contact": {},
	"hello":   {},
	"office":  {},
	"admin":   {},
	"sales":   {},
	"support": {},
	"team":    {},
	"mail":    {},
}

// Sample pairs an observed email with the person it belongs to.
type Sample struct {
	Email     string
	FirstName string
	LastName  string
}

// DetectPattern classifies email's local part against the template set using
// the given name. Emails on other domains still classify; the caller decides
// relevance.
func DetectPattern(email, firstName, lastName string) Pattern {
	local, _, ok := splitEmail(email)
	if !ok {
		return PatternUnknown
	}
	if _, generic := genericPrefixes[local]; generic {
		return PatternGeneric
	}

	first := normalizeName(firstName)
	last := normalizeName(lastName)
	if first == "" || last == "" {
		return PatternUnknown
	}
	f := first[:1]
	l := last[:1]

	// Longest, most specific templates first so e.g. "jane.smith" is not
	// mistaken for "j...".
	candidates := []struct {
		pattern Pattern
		local   string
	}{
		{PatternFirstDotLast, first + "." + last},
		{PatternFirstULast, first + "_" + last},
		{PatternLastDotFirst, last + "." + first},
		{PatternFirstLast, first + last},
		{PatternLastFirst, last + first},
		{PatternFDotLast, f + "." + last},
		{PatternFLast, f + last},
		{PatternFirstL, first + l},
		{PatternLastF, last + f},
		{PatternFirst, first},
		{PatternLast, last},
		{PatternFL, f + l},
	}
	for _, c := range candidates {
		if local == c.local {
			return c.pattern
		}
	}
	return PatternUnknown
}

// LearnPattern infers a domain's template from samples: the majority
// non-unknown template wins, ties keep the first encountered, and zero
// classifiable samples fall back to first.last.
func LearnPattern(samples []Sample) Pattern {
	counts := make(map[Pattern]int)
	var order []Pattern
	for _, s := range samples {
		p := DetectPattern(s.Email, s.FirstName, s.LastName)
		if p == PatternUnknown {
			continue
		}
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
	}
	if len(order) == 0 {
		return DefaultPattern
	}
	best := order[0]
	for _, p := range order[1:] {
		if counts[p] > counts[best] {
			best = p
		}
	}
	return best
}

// Generate renders pattern into a concrete address, case-folded and trimmed.
// Generic patterns render the info@ role address.
func Generate(pattern Pattern, firstName, lastName, domain string) (string, error) {
	first := normalizeName(firstName)
	last := normalizeName(lastName)
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", fmt.Errorf("domain is required")
	}
	if pattern != PatternGeneric && (first == "" || last == "") {
		return "", fmt.Errorf("pattern %s requires first and last name", pattern)
	}

	var local string
	switch pattern {
	case PatternFirstDotLast:
		local = first + "." + last
	case PatternFirstLast:
		local = first + last
	case PatternFirstULast:
		local = first + "_" + last
	case PatternFLast:
		local = first[:1] + last
	case PatternFirstL:
		local = first + last[:1]
	case PatternFDotLast:
		local = first[:1] + "." + last
	case PatternFirst:
		local = first
	case PatternLast:
		local = last
	case PatternLastFirst:
		local = last + first
	case PatternLastDotFirst:
		local = last + "." + first
	case PatternLastF:
		local = last + first[:1]
	case PatternFL:
		local = first[:1] + last[:1]
	case PatternGeneric:
		local = "info"
	default:
		return "", fmt.Errorf("cannot generate address for pattern %q", pattern)
	}
	return local + "@" + domain, nil
}

func splitEmail(email string) (local, domain string, ok bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", "", false
	}
	return email[:at], email[at+1:], true
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, name)
	return name
}

// DomainOf extracts the lowercased domain of an address.
func DomainOf(email string) string {
	_, domain, ok := splitEmail(email)
	if !ok {
		return ""
	}
	return domain
}
