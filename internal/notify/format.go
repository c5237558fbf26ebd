package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dropscout/internal/profit"
	"dropscout/internal/scraper"
)

// Deal bundles everything the formatter needs about one profitable find.
type Deal struct {
	Name           string
	ReferencePrice decimal.Decimal
	SourceURL      string
	Result         profit.Result
	BestMatches    []scraper.Listing
	LessRelevant   []scraper.Listing
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// FormatDeal renders a deal as a Telegram HTML message: a profit header,
// the linked source product, then best and less-relevant comparison
// listings with their per-listing spread.
func FormatDeal(deal Deal) string {
	var b strings.Builder

	b.WriteString("💰 <b>PROFITABLE DEAL FOUND!</b>\n")
	if deal.Result.PotentialProfit != nil {
		fmt.Fprintf(&b, "<b>Potential Profit: €%s</b>\n", deal.Result.PotentialProfit.StringFixed(2))
	}
	if deal.Result.MinComparisonPrice != nil {
		fmt.Fprintf(&b, "<b>Min Comparison Price: €%s</b>\n", deal.Result.MinComparisonPrice.StringFixed(2))
	}
	if deal.Result.ProfitPercent != nil {
		fmt.Fprintf(&b, "<b>Profit Margin: %.1f%%</b>\n", *deal.Result.ProfitPercent)
	}
	b.WriteString("\n")

	title := htmlEscaper.Replace(fmt.Sprintf("%s - €%s", deal.Name, deal.ReferencePrice.StringFixed(2)))
	if deal.SourceURL != "" {
		fmt.Fprintf(&b, "<b>🔎 Results for:</b> <a href='%s'>%s</a>\n\n", deal.SourceURL, title)
	} else {
		fmt.Fprintf(&b, "<b>🔎 Results for:</b> %s\n\n", title)
	}

	if len(deal.BestMatches) > 0 {
		b.WriteString("<b>✅ Best Matches:</b>\n")
		writeListings(&b, deal.BestMatches, deal.ReferencePrice)
	} else {
		b.WriteString("❌ No best matches found.\n\n")
	}

	if len(deal.LessRelevant) > 0 {
		b.WriteString("<b>🤔 Less Relevant Matches:</b>\n")
		writeListings(&b, deal.LessRelevant, deal.ReferencePrice)
	}

	return b.String()
}

func writeListings(b *strings.Builder, listings []scraper.Listing, referencePrice decimal.Decimal) {
	for _, l := range listings {
		spread := l.Price.Sub(referencePrice)
		fmt.Fprintf(b, "- <a href='%s'>%s</a>\n", l.SourceURL, htmlEscaper.Replace(l.Title))
		fmt.Fprintf(b, "  Price: €%s | pot. Profit: <b>€%s</b>\n\n",
			l.Price.StringFixed(2), spread.StringFixed(2))
	}
}
