package sources

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
)

// Deps collects the infrastructure the source catalog shares: the key pool
// for API sources, the per-domain gate for scrapers, and the stealth
// renderer for JS-heavy sites. Renderer may be nil; directory sources then
// fail closed on block instead of escalating.
type Deps struct {
	Keys     KeyProvider
	Gate     DomainGate
	Renderer Renderer
	Client   *http.Client
	Logger   *zap.Logger
	// Endpoints overrides API endpoints per provider, used for tests and
	// regional deployments.
	Endpoints map[string]string
}

var defaultEndpoints = map[string]string{
	"places":  "https://places.googleapis.com/v1/places:searchText",
	"bizdata": "https://api.bizdata.io/v2/search",
}

// Catalog resolves registry descriptors to live Source implementations.
func Catalog(deps Deps) map[string]discovery.Source {
	endpoint := func(provider string) string {
		if e, ok := deps.Endpoints[provider]; ok {
			return e
		}
		return defaultEndpoints[provider]
	}

	catalog := map[string]discovery.Source{
		SourcePlacesAPI: NewAPI(APIConfig{
			Descriptor: placesAPI,
			Endpoint:   endpoint("places"),
			EmailSeed:  0.8,
		}, deps.Keys, deps.Client, deps.Logger),
		SourceBizDataAPI: NewAPI(APIConfig{
			Descriptor: bizDataAPI,
			Endpoint:   endpoint("bizdata"),
			KeyParam:   "api_key",
			EmailSeed:  0.85,
		}, deps.Keys, deps.Client, deps.Logger),

		SourceYelp: NewDirectory(DirectoryConfig{
			Descriptor: yelp,
			BaseURL:    "https://www.yelp.com",
			SearchPath: "search",
			QueryParam: "find_desc", LocationParam: "find_loc",
			Rules: ExtractRules{
				Item:        "[data-testid=serp-ia-card]",
				Name:        "h3 a",
				Website:     "a[href^=http]",
				Address:     "[data-testid=address]",
				Rating:      "[aria-label*=rating]",
				ReviewCount: "[data-testid=review-count]",
			},
			EmailSeed: 0.6,
		}, deps.Gate, deps.Renderer, deps.Logger),
		SourceYellowPages: NewDirectory(DirectoryConfig{
			Descriptor: yellowPages,
			BaseURL:    "https://www.yellowpages.com",
			SearchPath: "search",
			QueryParam: "search_terms", LocationParam: "geo_location_terms",
			Rules: ExtractRules{
				Item:    "div.result",
				Name:    "a.business-name",
				Website: "a.track-visit-website",
				Phone:   "div.phones",
				Address: "div.adr",
			},
			EmailSeed: 0.6,
		}, deps.Gate, deps.Renderer, deps.Logger),
		SourceHealthgrades: NewDirectory(DirectoryConfig{
			Descriptor: healthgrades,
			BaseURL:    "https://www.healthgrades.com",
			SearchPath: "usearch",
			QueryParam: "what", LocationParam: "where",
			Rules: ExtractRules{
				Item:    "div[data-qa-target=provider-card]",
				Name:    "h3",
				Address: "address",
				Phone:   "[data-qa-target=phone]",
				Rating:  "[data-qa-target=star-rating]",
			},
			EmailSeed: 0.6,
		}, deps.Gate, deps.Renderer, deps.Logger),
		SourceZocdoc: NewDirectory(DirectoryConfig{
			Descriptor: zocdoc,
			BaseURL:    "https://www.zocdoc.com",
			SearchPath: "search",
			QueryParam: "dr_specialty", LocationParam: "address",
			Rules: ExtractRules{
				Item: "[data-test=search-result-card]",
				Name: "h2",
			},
			EmailSeed: 0.6,
		}, deps.Gate, deps.Renderer, deps.Logger),
		SourceAvvo: NewDirectory(DirectoryConfig{
			Descriptor: avvo,
			BaseURL:    "https://www.avvo.com",
			SearchPath: "search/lawyer_search",
			QueryParam: "q", LocationParam: "loc",
			Rules: ExtractRules{
				Item:    "div.lawyer-search-result",
				Name:    "a.search-result-lawyer-name",
				Phone:   "span.overridable-lawyer-phone",
				Address: "div.address",
				Rating:  "span.review-score",
			},
			EmailSeed: 0.6,
		}, deps.Gate, deps.Renderer, deps.Logger),
		SourceAngi: NewDirectory(DirectoryConfig{
			Descriptor: angi,
			BaseURL:    "https://www.angi.com",
			SearchPath: "companylist",
			QueryParam: "task", LocationParam: "zip",
			Rules: ExtractRules{
				Item:    "div.company-card",
				Name:    "h3.company-name",
				Phone:   "span.phone",
				Address: "span.address",
				Rating:  "span.rating-number",
			},
			EmailSeed: 0.6,
		}, deps.Gate, deps.Renderer, deps.Logger),
		SourceTripadvisor: NewDirectory(DirectoryConfig{
			Descriptor: tripadvisor,
			BaseURL:    "https://www.tripadvisor.com",
			SearchPath: "Search",
			QueryParam: "q", LocationParam: "geo",
			Rules: ExtractRules{
				Item:        "div.result-card",
				Name:        "div.result-title",
				Address:     "div.address",
				Rating:      "span.ui_bubble_rating",
				ReviewCount: "span.review_count",
			},
			EmailSeed: 0.6,
		}, deps.Gate, deps.Renderer, deps.Logger),
		SourceBrandDirectory: NewDirectory(DirectoryConfig{
			Descriptor: brandDirectory,
			BaseURL:    "https://www.thoughtfullymade.com",
			SearchPath: "brands",
			QueryParam: "search",
			Rules: ExtractRules{
				Item:    "div.brand-card",
				Name:    "h3.brand-name",
				Website: "a.brand-link",
				Email:   "a[href^=mailto]",
			},
			EmailSeed: 0.6,
		}, deps.Gate, deps.Renderer, deps.Logger),

		SourceWebSearch: NewRendered(RenderedConfig{
			Descriptor: webSearch,
			BaseURL:    "https://duckduckgo.com",
			SearchPath: "html",
			QueryParam: "q",
			Rules: ExtractRules{
				Item:    "div.result",
				Name:    "a.result__a",
				Website: "a.result__a",
			},
			EmailSeed: 0.5,
		}, deps.Gate, deps.Renderer, deps.Logger),
		SourceLinkedIn: NewRendered(RenderedConfig{
			Descriptor: linkedIn,
			BaseURL:    "https://www.linkedin.com",
			SearchPath: "search/results/companies",
			QueryParam: "keywords",
			Rules: ExtractRules{
				Item:    "li.reusable-search__result-container",
				Name:    "span.entity-result__title-text",
				Website: "a.app-aware-link",
			},
			EmailSeed: 0.5,
		}, deps.Gate, deps.Renderer, deps.Logger),
	}
	return catalog
}
