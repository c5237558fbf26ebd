package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dropscout/logger"
)

// FieldKey names a logical field to extract ("title", "price", ...). The
// concrete CSS selector behind a key changes whenever the site ships new
// markup, so each key maps to an ordered candidate list.
type FieldKey string

const (
	FieldTitle    FieldKey = "title"
	FieldSubtitle FieldKey = "subtitle"
	FieldPrice    FieldKey = "price"
	FieldURL      FieldKey = "url"
	FieldImage    FieldKey = "image"
	FieldDiscount FieldKey = "discount"
	FieldWishlist FieldKey = "wishlist"
)

// SelectorSet holds everything site-specific the resolver and extractor
// need: per-field candidate selectors (newest pattern first, oldest
// fallback last) plus the item/divider/no-results markers used for result
// classification.
type SelectorSet struct {
	Fields map[FieldKey][]string

	// ItemClasses are class names identifying a primary result element.
	ItemClasses []string
	// ResultsContainer is the element to wait for before reading results.
	ResultsContainer string
	// ResultItems selects every candidate element of the result list.
	ResultItems string
	// NoResults matches the zero-results marker.
	NoResults string
	// DividerClass marks the "fewer keywords" divider element.
	DividerClass string
	// DividerTexts are the text patterns confirming a divider element.
	DividerTexts []string
}

// EbaySelectors returns the selector set for the eBay search results
// page. The s-card selectors cover the markup shipped in 2024; the
// s-item ones are the pre-2024 fallbacks.
func EbaySelectors() *SelectorSet {
	return &SelectorSet{
		Fields: map[FieldKey][]string{
			FieldTitle: {
				".s-card__title span",
				"div.s-item__title > span",
				"h3.s-item__title",
				".s-item__title",
			},
			FieldSubtitle: {
				".s-card__subtitle",
				"div.s-item__subtitle",
				".s-item__subtitle",
			},
			FieldPrice: {
				".s-card__price",
				"span.s-item__price",
				".s-item__price",
			},
			FieldURL: {
				".su-link",
				"a.s-item__link",
				".s-item__link",
			},
			FieldImage: {
				".s-card__image",
				"div.s-item__image img",
				".s-item__image img",
				"img.s-item__image",
			},
		},
		ItemClasses:      []string{"s-card", "s-item"},
		ResultsContainer: "ul.srp-results",
		ResultItems:      "ul.srp-results > li",
		NoResults:    "div.srp-save-null-search__title",
		DividerClass: "srp-river-answer--REWRITE_START",
		DividerTexts: []string{
			"Ergebnisse für weniger Suchbegriffe",
			"Results for fewer search terms",
		},
	}
}

// IdealoSelectors returns the selector set for the Idealo result list.
func IdealoSelectors() *SelectorSet {
	return &SelectorSet{
		Fields: map[FieldKey][]string{
			FieldTitle: {
				`div[class*="sr-productSummary__title"]`,
			},
			FieldPrice: {
				`div[class*="sr-detailedPriceInfo__price"]`,
			},
			FieldURL: {
				`a[class*="sr-resultItemTile__link"]`,
			},
			FieldImage: {
				`img[class*="sr-resultItemTile__image"]`,
			},
			FieldDiscount: {
				`span[class*="sr-bargainBadge__savingBadge"]`,
			},
			FieldWishlist: {
				`[data-wishlist-heart]`,
			},
		},
		ResultsContainer: `div[class*="sr-resultList"]`,
		ResultItems:      `div[class*="sr-resultList__item"]`,
	}
}

// Resolver resolves a field key to a concrete match against a DOM node,
// trying the candidate list in order and caching the winning candidate for
// the rest of the session.
type Resolver struct {
	set   *SelectorSet
	cache map[FieldKey]int
	log   *logger.Logger
}

// NewResolver creates a resolver scoped to one harvest session.
func NewResolver(set *SelectorSet, log *logger.Logger) *Resolver {
	return &Resolver{
		set:   set,
		cache: make(map[FieldKey]int),
		log:   log,
	}
}

// Reset invalidates the selector cache. Must be called at the start of each
// new session; a hit carried across sessions would mask a markup regression.
func (r *Resolver) Reset() {
	r.cache = make(map[FieldKey]int)
}

// Resolve returns the first match for the field within s, or nil when no
// candidate matches. A cached candidate is tried first; on a cache miss the
// full list is re-scanned from the top and the cache updated to the winner.
// When required is true the caller must treat nil as a hard miss for the
// node (item skipped), never as a fatal error for the whole harvest.
func (r *Resolver) Resolve(s *goquery.Selection, key FieldKey, required bool) *goquery.Selection {
	candidates := r.set.Fields[key]
	if len(candidates) == 0 {
		r.log.Warn().Str("field", string(key)).Msg("No selectors defined")
		return nil
	}

	if idx, ok := r.cache[key]; ok {
		if found := s.Find(candidates[idx]).First(); found.Length() > 0 {
			return found
		}
		r.log.Debug().
			Str("field", string(key)).
			Str("selector", candidates[idx]).
			Msg("Cached selector failed, re-scanning")
		delete(r.cache, key)
	}

	for i, sel := range candidates {
		found := s.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		r.cache[key] = i
		if i > 0 {
			r.log.Info().
				Str("field", string(key)).
				Str("selector", sel).
				Int("index", i).
				Msg("Using fallback selector")
		}
		return found
	}

	if required {
		r.log.Error().
			Str("field", string(key)).
			Int("tried", len(candidates)).
			Msg("All selectors failed")
	} else {
		r.log.Debug().
			Str("field", string(key)).
			Int("tried", len(candidates)).
			Msg("No matching element")
	}
	return nil
}

// MatchesItemClass reports whether the element carries one of the known
// result-item class names.
func (r *Resolver) MatchesItemClass(s *goquery.Selection) bool {
	for _, class := range r.set.ItemClasses {
		if s.HasClass(class) {
			return true
		}
	}
	return false
}

// IsDivider reports whether the element is the marker the marketplace
// inserts between primary and less relevant results.
func (r *Resolver) IsDivider(s *goquery.Selection) bool {
	if r.set.DividerClass == "" || !s.HasClass(r.set.DividerClass) {
		return false
	}
	text := s.Text()
	for _, pattern := range r.set.DividerTexts {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}

// HasNoResultsMarker reports whether the page carries the zero-results
// marker.
func (r *Resolver) HasNoResultsMarker(doc *goquery.Document) bool {
	return doc.Find(r.set.NoResults).Length() > 0
}

// Set exposes the underlying selector set.
func (r *Resolver) Set() *SelectorSet {
	return r.set
}
