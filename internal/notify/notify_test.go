package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"dropscout/internal/profit"
	"dropscout/internal/scraper"
)

type mockSender struct {
	sent    []string
	sendErr error
}

var _ Sender = (*mockSender)(nil)

func (m *mockSender) Send(_ context.Context, message string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, message)
	return nil
}

func profitableDeal() Deal {
	minPrice := decimal.NewFromInt(180)
	potential := decimal.NewFromInt(80)
	percent := 80.0
	return Deal{
		Name:           "Apple AirPods Pro 2",
		ReferencePrice: decimal.NewFromInt(100),
		SourceURL:      "https://www.idealo.de/preisvergleich/OffersOfProduct/201.html",
		Result: profit.Result{
			MinComparisonPrice: &minPrice,
			PotentialProfit:    &potential,
			ProfitPercent:      &percent,
			IsProfitable:       true,
		},
		BestMatches: []scraper.Listing{
			{Title: "AirPods Pro 2 <neu>", Price: decimal.NewFromInt(180), SourceURL: "https://www.ebay.de/itm/1"},
		},
		LessRelevant: []scraper.Listing{
			{Title: "AirPods Hülle", Price: decimal.NewFromInt(12), SourceURL: "https://www.ebay.de/itm/2"},
		},
	}
}

func TestNotifySendsProfitableDeal(t *testing.T) {
	sender := &mockSender{}
	n := NewNotifier(sender, true)

	assert.True(t, n.Notify(context.Background(), profitableDeal()))
	assert.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "PROFITABLE DEAL FOUND")
}

func TestNotifySkipsUnprofitableDeal(t *testing.T) {
	sender := &mockSender{}
	n := NewNotifier(sender, true)

	deal := profitableDeal()
	deal.Result.IsProfitable = false

	assert.False(t, n.Notify(context.Background(), deal))
	assert.Empty(t, sender.sent)
}

func TestNotifySkipsWhenUnconfigured(t *testing.T) {
	sender := &mockSender{}
	n := NewNotifier(sender, false)

	assert.False(t, n.Notify(context.Background(), profitableDeal()))
	assert.Empty(t, sender.sent)
}

func TestNotifySwallowsSendFailure(t *testing.T) {
	sender := &mockSender{sendErr: errors.New("telegram down")}
	n := NewNotifier(sender, true)

	// delivery failure reports false but never panics or propagates
	assert.False(t, n.Notify(context.Background(), profitableDeal()))
}

func TestFormatDealSections(t *testing.T) {
	message := FormatDeal(profitableDeal())

	assert.Contains(t, message, "<b>Potential Profit: €80.00</b>")
	assert.Contains(t, message, "<b>Min Comparison Price: €180.00</b>")
	assert.Contains(t, message, "<b>Profit Margin: 80.0%</b>")
	assert.Contains(t, message, "Apple AirPods Pro 2 - €100.00")
	assert.Contains(t, message, "<b>✅ Best Matches:</b>")
	assert.Contains(t, message, "<b>🤔 Less Relevant Matches:</b>")
	assert.Contains(t, message, "https://www.ebay.de/itm/1")
}

func TestFormatDealEscapesHTMLInTitles(t *testing.T) {
	message := FormatDeal(profitableDeal())

	assert.Contains(t, message, "AirPods Pro 2 &lt;neu&gt;")
	assert.NotContains(t, message, "<neu>")
}

func TestFormatDealPerListingSpread(t *testing.T) {
	message := FormatDeal(profitableDeal())

	// 180 listing against a 100 reference
	assert.Contains(t, message, "pot. Profit: <b>€80.00</b>")
	// the 12 euro accessory is a negative spread
	assert.Contains(t, message, "pot. Profit: <b>€-88.00</b>")
}

func TestFormatDealWithoutBestMatches(t *testing.T) {
	deal := profitableDeal()
	deal.BestMatches = nil

	message := FormatDeal(deal)
	assert.Contains(t, message, "❌ No best matches found.")
}

func TestFormatDealLongMessageStillSendable(t *testing.T) {
	deal := profitableDeal()
	for i := 0; i < 200; i++ {
		deal.BestMatches = append(deal.BestMatches, scraper.Listing{
			Title:     strings.Repeat("sehr langer Titel ", 5),
			Price:     decimal.NewFromInt(199),
			SourceURL: "https://www.ebay.de/itm/999999",
		})
	}

	message := FormatDeal(deal)
	assert.Greater(t, len(message), maxMessageLength)
}
