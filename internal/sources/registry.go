// Package sources maps query categories to ranked data sources and
// implements the three dispatch variants behind them.
package sources

import (
	"sort"
	"time"

	"github.com/leadscout/leadscout/internal/discovery"
)

// Well-known source IDs. The registry is static; the orchestrator resolves
// IDs to live Source implementations at run time.
const (
	SourcePlacesAPI      = "places_api"
	SourceBizDataAPI     = "bizdata_api"
	SourceYelp           = "yelp_directory"
	SourceYellowPages    = "yellowpages_directory"
	SourceHealthgrades   = "healthgrades_directory"
	SourceZocdoc         = "zocdoc_directory"
	SourceAvvo           = "avvo_directory"
	SourceAngi           = "angi_directory"
	SourceTripadvisor    = "tripadvisor_directory"
	SourceWebSearch      = "web_search"
	SourceLinkedIn       = "linkedin_social"
	SourceBrandDirectory = "brand_directory"
)

var (
	placesAPI = discovery.DataSource{
		ID: SourcePlacesAPI, Kind: discovery.SourceKindAPI, Provider: "places",
		Reliability: 0.9, MinResults: 60, Tier: 1, Timeout: 10 * time.Second,
	}
	bizDataAPI = discovery.DataSource{
		ID: SourceBizDataAPI, Kind: discovery.SourceKindAPI, Provider: "bizdata",
		Reliability: 0.85, MinResults: 40, Tier: 1, Timeout: 10 * time.Second,
	}
	yelp = discovery.DataSource{
		ID: SourceYelp, Kind: discovery.SourceKindDirectory,
		Reliability: 0.8, MinResults: 30, Tier: 2, Timeout: 15 * time.Second,
	}
	yellowPages = discovery.DataSource{
		ID: SourceYellowPages, Kind: discovery.SourceKindDirectory,
		Reliability: 0.7, MinResults: 20, Tier: 3, Timeout: 15 * time.Second,
	}
	healthgrades = discovery.DataSource{
		ID: SourceHealthgrades, Kind: discovery.SourceKindDirectory,
		Reliability: 0.85, MinResults: 25, Tier: 2, Timeout: 15 * time.Second,
	}
	zocdoc = discovery.DataSource{
		ID: SourceZocdoc, Kind: discovery.SourceKindDirectory,
		Reliability: 0.8, MinResults: 15, Tier: 3, Timeout: 15 * time.Second,
	}
	avvo = discovery.DataSource{
		ID: SourceAvvo, Kind: discovery.SourceKindDirectory,
		Reliability: 0.85, MinResults: 25, Tier: 2, Timeout: 15 * time.Second,
	}
	angi = discovery.DataSource{
		ID: SourceAngi, Kind: discovery.SourceKindDirectory,
		Reliability: 0.75, MinResults: 25, Tier: 2, Timeout: 15 * time.Second,
	}
	tripadvisor = discovery.DataSource{
		ID: SourceTripadvisor, Kind: discovery.SourceKindDirectory,
		Reliability: 0.75, MinResults: 25, Tier: 2, Timeout: 15 * time.Second,
	}
	webSearch = discovery.DataSource{
		ID: SourceWebSearch, Kind: discovery.SourceKindSearch,
		Reliability: 0.6, MinResults: 30, Tier: 1, Timeout: 15 * time.Second,
	}
	linkedIn = discovery.DataSource{
		ID: SourceLinkedIn, Kind: discovery.SourceKindSearch,
		Reliability: 0.7, MinResults: 20, Tier: 2, Timeout: 15 * time.Second,
	}
	brandDirectory = discovery.DataSource{
		ID: SourceBrandDirectory, Kind: discovery.SourceKindDirectory,
		Reliability: 0.65, MinResults: 15, Tier: 3, Timeout: 15 * time.Second,
	}
)

var registry = map[discovery.Category][]discovery.DataSource{
	discovery.CategoryMedical: {
		placesAPI, bizDataAPI, healthgrades, yelp, zocdoc, yellowPages,
	},
	discovery.CategoryHomeServices: {
		placesAPI, bizDataAPI, angi, yelp, yellowPages,
	},
	discovery.CategoryLegal: {
		placesAPI, bizDataAPI, avvo, yelp, yellowPages,
	},
	discovery.CategoryRestaurantFood: {
		placesAPI, bizDataAPI, tripadvisor, yelp, yellowPages,
	},
	discovery.CategoryOnlineDTC: {
		webSearch, linkedIn, brandDirectory,
	},
	discovery.CategoryGeneralLocal: {
		placesAPI, bizDataAPI, yelp, yellowPages,
	},
	discovery.CategoryGeneralOnline: {
		webSearch, bizDataAPI, linkedIn,
	},
}

// ForCategory returns the ranked source list for a category. The slice is a
// copy; callers may reorder it freely.
func ForCategory(c discovery.Category) []discovery.DataSource {
	list, ok := registry[c]
	if !ok {
		list = registry[discovery.CategoryGeneralLocal]
	}
	out := make([]discovery.DataSource, len(list))
	copy(out, list)
	return out
}

// FilterByResultCount drops every source whose MinResults the run has
// already met. A run with zero results keeps all sources.
func FilterByResultCount(list []discovery.DataSource, have int) []discovery.DataSource {
	if have == 0 {
		out := make([]discovery.DataSource, len(list))
		copy(out, list)
		return out
	}
	out := make([]discovery.DataSource, 0, len(list))
	for _, s := range list {
		if have < s.MinResults {
			out = append(out, s)
		}
	}
	return out
}

// PreferAPIs reorders a plan so API-backed sources run strictly before
// scraped ones. APIs collapse into the first tier; everything else shifts
// one tier later, keeping its relative order.
func PreferAPIs(list []discovery.DataSource) []discovery.DataSource {
	out := make([]discovery.DataSource, 0, len(list))
	for _, s := range list {
		if s.Kind == discovery.SourceKindAPI {
			s.Tier = 1
			out = append(out, s)
		}
	}
	for _, s := range list {
		if s.Kind != discovery.SourceKindAPI {
			s.Tier++
			out = append(out, s)
		}
	}
	return out
}

// Tiers groups sources by tier in ascending order.
func Tiers(list []discovery.DataSource) [][]discovery.DataSource {
	byTier := make(map[int][]discovery.DataSource)
	var order []int
	for _, s := range list {
		if _, ok := byTier[s.Tier]; !ok {
			order = append(order, s.Tier)
		}
		byTier[s.Tier] = append(byTier[s.Tier], s)
	}
	sort.Ints(order)
	out := make([][]discovery.DataSource, 0, len(order))
	for _, t := range order {
		out = append(out, byTier[t])
	}
	return out
}
