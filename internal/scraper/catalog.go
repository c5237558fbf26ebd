package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"dropscout/internal/browser"
	"dropscout/logger"
	pkgerrors "dropscout/pkg/errors"
)

const (
	idealoMarketplace   = "idealo"
	idealoOrigin        = "https://www.idealo.de"
	idealoConsentButton = "aside#usercentrics-cmp-ui button#accept"
	nextPageSelector    = `a[aria-label="Nächste Seite"]`
	// ipc/prg links are tracking interstitials, not product pages
	interstitialMarker = "ipc/prg"
	wishlistURLFormat  = "https://www.idealo.de/preisvergleich/OffersOfProduct/%s.html"
	defaultCategory    = "Electronics"
)

var digitRun = regexp.MustCompile(`\d+`)

// HarvestConfig bounds one primary-marketplace harvest: the category URL
// to walk and how many result pages to visit.
type HarvestConfig struct {
	StartURL     string
	MaxPages     int
	AttemptDelay time.Duration
}

// Harvester walks the Idealo result list page by page and produces the
// fresh entity batch for reconciliation. Per-card failures are local: the
// card is skipped and only aggregate counts are logged.
type Harvester struct {
	factory browser.Factory
	gate    *browser.Gate
	set     *SelectorSet
	cfg     HarvestConfig
	log     *logger.Logger
}

// NewHarvester creates a primary-marketplace harvester.
func NewHarvester(factory browser.Factory, gate *browser.Gate, cfg HarvestConfig) *Harvester {
	if cfg.AttemptDelay <= 0 {
		cfg.AttemptDelay = defaultSearchDelay
	}
	return &Harvester{
		factory: factory,
		gate:    gate,
		set:     IdealoSelectors(),
		cfg:     cfg,
		log:     logger.ForMarketplace(idealoMarketplace),
	}
}

// Harvest scrapes up to MaxPages of the configured result list.
func (h *Harvester) Harvest(ctx context.Context) ([]RawEntity, HarvestStats, error) {
	stats := HarvestStats{}

	if err := h.gate.Allow(); err != nil {
		return nil, stats, pkgerrors.NewRateLimit(idealoMarketplace, h.cfg.AttemptDelay)
	}

	// a fresh resolver per harvest so the selector cache stays scoped to
	// one session
	res := NewResolver(h.set, h.log)

	session, err := h.factory.NewSession(ctx)
	if err != nil {
		return nil, stats, pkgerrors.NewPageLoad(idealoMarketplace, "failed to open page session", err)
	}
	defer session.Close()

	if err := h.openStartPage(ctx, session); err != nil {
		return nil, stats, err
	}
	browser.AcceptConsent(ctx, session, idealoConsentButton)

	var entities []RawEntity
	for page := 1; page <= h.cfg.MaxPages; page++ {
		session.ScrollToBottom(ctx)

		if err := session.WaitVisible(ctx, h.set.ResultsContainer); err != nil {
			if page == 1 {
				return nil, stats, pkgerrors.NewPageLoad(idealoMarketplace, "result list failed to load", err)
			}
			h.log.Warn().Err(err).Int("page", page).Msg("Result list missing, stopping pagination")
			break
		}

		html, err := session.HTML(ctx)
		if err != nil {
			if page == 1 {
				return nil, stats, pkgerrors.NewPageLoad(idealoMarketplace, "failed to snapshot page", err)
			}
			break
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, stats, pkgerrors.NewPageLoad(idealoMarketplace, "failed to parse snapshot", err)
		}

		cards := doc.Find(h.set.ResultItems)
		if cards.Length() == 0 {
			h.log.Warn().Int("page", page).Msg("No product cards found, stopping")
			break
		}

		pageExtracted := 0
		cards.Each(func(_ int, s *goquery.Selection) {
			if entity := h.parseCard(res, s); entity != nil {
				entities = append(entities, *entity)
				pageExtracted++
			} else {
				stats.Skipped++
			}
		})
		stats.Pages++
		stats.Extracted += pageExtracted

		h.log.Info().
			Int("page", page).
			Int("cards", cards.Length()).
			Int("extracted", pageExtracted).
			Msg("Page harvested")

		if page == h.cfg.MaxPages {
			break
		}
		if doc.Find(nextPageSelector).Length() == 0 {
			h.log.Info().Int("page", page).Msg("No next page link, assuming last page")
			break
		}
		if err := session.Click(ctx, nextPageSelector); err != nil {
			h.log.Warn().Err(err).Int("page", page).Msg("Next page click failed, ending harvest")
			break
		}
		select {
		case <-time.After(h.cfg.AttemptDelay):
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		}
	}

	h.log.Info().
		Int("pages", stats.Pages).
		Int("extracted", stats.Extracted).
		Int("skipped", stats.Skipped).
		Msg("Harvest complete")
	return entities, stats, nil
}

// openStartPage navigates to the harvest URL, retrying a transport
// failure once.
func (h *Harvester) openStartPage(ctx context.Context, session browser.Session) error {
	var lastErr error
	for attempt := 1; attempt <= transportAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(h.cfg.AttemptDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = session.Open(ctx, h.cfg.StartURL); lastErr == nil {
			return nil
		}
	}
	h.gate.Block()
	return pkgerrors.NewPageLoad(idealoMarketplace, "start page failed to load", lastErr)
}

// parseCard extracts one product card. Returns nil when a required field
// is missing so the caller can skip the card.
func (h *Harvester) parseCard(res *Resolver, s *goquery.Selection) *RawEntity {
	titleSel := res.Resolve(s, FieldTitle, true)
	if titleSel == nil {
		return nil
	}
	name := strings.TrimSpace(titleSel.Text())
	if name == "" {
		return nil
	}

	sourceURL := h.resolveProductURL(res, s)
	if sourceURL == "" {
		h.log.Debug().Str("name", truncate(name, 50)).Msg("No usable product URL, card skipped")
		return nil
	}

	priceSel := res.Resolve(s, FieldPrice, true)
	if priceSel == nil {
		return nil
	}
	price, err := ParsePrice(priceSel.Text())
	if err != nil || !price.IsPositive() {
		h.log.Debug().Str("name", truncate(name, 50)).Msg("Unparseable price, card skipped")
		return nil
	}

	entity := &RawEntity{
		Name:      name,
		Price:     price,
		SourceURL: sourceURL,
		Category:  defaultCategory,
	}

	if imgSel := res.Resolve(s, FieldImage, false); imgSel != nil {
		entity.ImageURL = lazyImageURL(imgSel)
	}

	if discSel := res.Resolve(s, FieldDiscount, false); discSel != nil {
		if run := digitRun.FindString(discSel.Text()); run != "" {
			if value, err := strconv.Atoi(run); err == nil && value >= 0 && value <= 100 {
				entity.Discount = &value
			}
		}
	}

	return entity
}

// resolveProductURL tries the direct tile link first and falls back to
// the wishlist-heart payload, which carries the product id even when the
// tile link is an interstitial.
func (h *Harvester) resolveProductURL(res *Resolver, s *goquery.Selection) string {
	var sourceURL string
	if linkSel := res.Resolve(s, FieldURL, false); linkSel != nil {
		if href, ok := linkSel.Attr("href"); ok {
			href = strings.TrimSpace(href)
			if href != "" && !strings.HasPrefix(href, "https://") {
				href = idealoOrigin + href
			}
			sourceURL = href
		}
	}

	if sourceURL == "" || strings.Contains(sourceURL, interstitialMarker) {
		if wishSel := res.Resolve(s, FieldWishlist, false); wishSel != nil {
			if raw, ok := wishSel.Attr("data-wishlist-heart"); ok {
				// the id field may be serialized as a number or a string
				var payload map[string]json.RawMessage
				if err := json.Unmarshal([]byte(raw), &payload); err == nil {
					if id := strings.Trim(string(payload["id"]), `"`); id != "" {
						sourceURL = fmt.Sprintf(wishlistURLFormat, id)
					}
				}
			}
		}
	}

	if sourceURL == "" || strings.Contains(sourceURL, interstitialMarker) {
		return ""
	}
	return sourceURL
}
