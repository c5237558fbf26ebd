package scraper

import (
	"time"

	"github.com/shopspring/decimal"
)

// RelevanceTier classifies a harvested listing as a best match or a less
// relevant one, based on its position relative to the result divider.
type RelevanceTier int

const (
	TierHigh RelevanceTier = iota
	TierLow
)

// String implements fmt.Stringer
func (t RelevanceTier) String() string {
	if t == TierHigh {
		return "high"
	}
	return "low"
}

// Listing is one normalized comparison-marketplace result. Immutable once
// extracted.
type Listing struct {
	Title     string
	Subtitle  string
	Price     decimal.Decimal
	SourceURL string
	ImageURL  string
	Tier      RelevanceTier
}

// RawEntity is one freshly harvested primary-marketplace product, keyed by
// SourceURL, before reconciliation against the catalog.
type RawEntity struct {
	Name      string
	Price     decimal.Decimal
	Discount  *int
	SourceURL string
	ImageURL  string
	Category  string
}

// SearchResult is the finished, capped result set for one comparison query.
type SearchResult struct {
	Query        string
	BestMatches  []Listing
	LessRelevant []Listing
	ScrapedAt    time.Time
}

// Listings returns best matches followed by less relevant ones.
func (r *SearchResult) Listings() []Listing {
	out := make([]Listing, 0, len(r.BestMatches)+len(r.LessRelevant))
	out = append(out, r.BestMatches...)
	out = append(out, r.LessRelevant...)
	return out
}

// HarvestStats reports per-cycle extraction outcomes so a partially failed
// harvest never looks like an empty one.
type HarvestStats struct {
	Pages     int
	Extracted int
	Skipped   int
}
