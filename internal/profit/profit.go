// Package profit computes the cross-marketplace profitability signal for
// a tracked entity from its reference price and comparison listings.
package profit

import (
	"github.com/shopspring/decimal"

	"dropscout/internal/scraper"
)

// Result carries the profitability fields persisted on a tracked entity.
// All pointer fields are nil when no comparison listing exists.
type Result struct {
	MinComparisonPrice *decimal.Decimal
	PotentialProfit    *decimal.Decimal
	ProfitPercent      *float64
	IsProfitable       bool
}

// Score computes the profitability signal. The minimum is taken across
// every comparison listing regardless of relevance tier: a cheap
// less-relevant listing still caps the realizable spread. The alert gate
// is the absolute margin only; the percentage is informational.
func Score(referencePrice decimal.Decimal, listings []scraper.Listing, minMargin decimal.Decimal) Result {
	if len(listings) == 0 {
		return Result{}
	}

	min := listings[0].Price
	for _, l := range listings[1:] {
		if l.Price.LessThan(min) {
			min = l.Price
		}
	}

	potential := min.Sub(referencePrice)
	result := Result{
		MinComparisonPrice: &min,
		PotentialProfit:    &potential,
		IsProfitable:       potential.GreaterThanOrEqual(minMargin),
	}

	if referencePrice.IsPositive() {
		percent, _ := potential.Div(referencePrice).Mul(decimal.NewFromInt(100)).Float64()
		result.ProfitPercent = &percent
	}

	return result
}
