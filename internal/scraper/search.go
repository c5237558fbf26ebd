package scraper

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"dropscout/internal/browser"
	"dropscout/logger"
	pkgerrors "dropscout/pkg/errors"
)

const (
	ebayMarketplace    = "ebay"
	ebayOrigin         = "https://www.ebay.de"
	ebaySearchURL      = "https://www.ebay.de/sch/i.html"
	ebayConsentButton  = "button#gdpr-banner-accept"
	transportAttempts  = 2
	defaultSearchDelay = 2 * time.Second
)

// searchState is the orchestrator's position in the classify-retry cycle.
// stateRetried has no transition back to itself, which is what bounds the
// machine to a single classification retry per query.
type searchState int

const (
	stateInitial searchState = iota
	stateRetried
	stateDone
)

// classification is the discovery outcome of one results page.
type classification int

const (
	classBalanced classification = iota
	classNoMatches
	classTooMany
)

// searchAction is what the orchestrator does next after classifying.
type searchAction int

const (
	actionRetryFiltered searchAction = iota
	actionAcceptLow
	actionAcceptHigh
	actionAcceptBalanced
)

// transition maps (state, classification) to the next action. In the
// initial (unfiltered) state both degenerate outcomes re-issue the query
// with the minimum-price filter; after the one retry they are accepted
// as-is.
func transition(st searchState, c classification) (searchAction, searchState) {
	if st == stateInitial {
		switch c {
		case classNoMatches, classTooMany:
			return actionRetryFiltered, stateRetried
		default:
			return actionAcceptBalanced, stateDone
		}
	}
	// stateRetried: the filter is already applied, accept whatever came back
	switch c {
	case classNoMatches:
		return actionAcceptLow, stateDone
	case classTooMany:
		return actionAcceptHigh, stateDone
	default:
		return actionAcceptBalanced, stateDone
	}
}

// SearchConfig carries the discovery caps and filters for comparison
// queries. The fixed query parameters (buy-now only, Germany-located,
// price+shipping sort) are configuration of the eBay search URL, not
// orchestration logic.
type SearchConfig struct {
	MaxBestMatchItems  int
	MaxLeastMatchItems int
	MinPriceFilter     int
	AttemptDelay       time.Duration
}

// Orchestrator drives one comparison query end to end: issue it, classify
// the result set, retry at most once with a tightened filter, and return
// the finished, capped listing set.
type Orchestrator struct {
	factory browser.Factory
	gate    *browser.Gate
	set     *SelectorSet
	cfg     SearchConfig
	log     *logger.Logger
}

// NewOrchestrator creates a comparison-search orchestrator. Safe for
// concurrent Search calls: all per-query state lives on the stack.
func NewOrchestrator(factory browser.Factory, gate *browser.Gate, cfg SearchConfig) *Orchestrator {
	if cfg.AttemptDelay <= 0 {
		cfg.AttemptDelay = defaultSearchDelay
	}
	return &Orchestrator{
		factory: factory,
		gate:    gate,
		set:     EbaySelectors(),
		cfg:     cfg,
		log:     logger.ForMarketplace(ebayMarketplace),
	}
}

// Search runs the full state machine for one query. The page session is
// held for the duration of the query and released on every exit path.
func (o *Orchestrator) Search(ctx context.Context, query string) (*SearchResult, error) {
	if err := o.gate.Allow(); err != nil {
		return nil, pkgerrors.NewRateLimit(ebayMarketplace, o.cfg.AttemptDelay)
	}

	// a fresh resolver per query: the selector cache never outlives the
	// session, and concurrent queries never share mutable state
	res := NewResolver(o.set, o.log)
	ex := NewExtractor(res, ebayOrigin, nil, o.log)

	session, err := o.factory.NewSession(ctx)
	if err != nil {
		return nil, pkgerrors.NewPageLoad(ebayMarketplace, "failed to open page session", err)
	}
	defer session.Close()

	o.log.Info().Str("query", query).Msg("Starting comparison search")

	state := stateInitial
	filtered := false
	consented := false

	for state != stateDone {
		searchURL := o.buildSearchURL(query, filtered)
		doc, err := o.loadResults(ctx, session, searchURL, &consented)
		if err != nil {
			return nil, err
		}

		page := o.classify(doc, res)
		outcome := page.outcome(o.cfg.MaxBestMatchItems)
		action, next := transition(state, outcome)

		o.log.Debug().
			Str("query", query).
			Int("primary_count", page.primaryCount()).
			Int("divider_index", page.dividerIdx).
			Bool("no_results", page.noResults).
			Bool("filtered", filtered).
			Msg("Result set classified")

		switch action {
		case actionRetryFiltered:
			o.log.Info().Str("query", query).Msg("Re-issuing with minimum price filter")
			filtered = true
			state = next
			continue

		case actionAcceptLow:
			result := o.finish(query, nil, page.items, o.cfg.MaxLeastMatchItems, ex)
			return result, nil

		case actionAcceptHigh:
			result := o.finish(query, capSelections(page.items, o.cfg.MaxBestMatchItems), nil, 0, ex)
			return result, nil

		case actionAcceptBalanced:
			primary := page.items[:page.primaryCount()]
			secondary := page.items[page.primaryCount():]
			result := o.finish(query, primary, secondary, o.cfg.MaxLeastMatchItems, ex)
			return result, nil
		}
	}

	// unreachable: every accept action returns
	return nil, pkgerrors.NewPageLoad(ebayMarketplace, "search ended without a result", nil)
}

// finish extracts the accepted element sets into tagged listings, dropping
// elements that fail extraction.
func (o *Orchestrator) finish(query string, best, low []*goquery.Selection, maxLow int, ex *Extractor) *SearchResult {
	result := &SearchResult{Query: query, ScrapedAt: time.Now()}
	skipped := 0

	for _, s := range best {
		if l := ex.Extract(s); l != nil {
			l.Tier = TierHigh
			result.BestMatches = append(result.BestMatches, *l)
		} else {
			skipped++
		}
	}
	for _, s := range low {
		if len(result.LessRelevant) >= maxLow {
			break
		}
		if l := ex.Extract(s); l != nil {
			l.Tier = TierLow
			result.LessRelevant = append(result.LessRelevant, *l)
		} else {
			skipped++
		}
	}

	o.log.Info().
		Str("query", query).
		Int("best_matches", len(result.BestMatches)).
		Int("less_relevant", len(result.LessRelevant)).
		Int("skipped", skipped).
		Msg("Comparison search finished")
	return result
}

// resultPage is one classified results page: the primary/secondary item
// elements in document order plus the markers found on the page.
type resultPage struct {
	noResults bool
	items     []*goquery.Selection
	// dividerIdx is the item-count position of the "fewer keywords"
	// divider, -1 when absent (all items are primary then).
	dividerIdx int
}

func (p *resultPage) primaryCount() int {
	if p.dividerIdx != -1 {
		return p.dividerIdx
	}
	return len(p.items)
}

func (p *resultPage) outcome(maxBest int) classification {
	if p.noResults {
		return classNoMatches
	}
	if p.primaryCount() >= maxBest {
		return classTooMany
	}
	return classBalanced
}

// classify scans the result list once, collecting item elements and the
// position of the divider.
func (o *Orchestrator) classify(doc *goquery.Document, res *Resolver) *resultPage {
	page := &resultPage{dividerIdx: -1}
	page.noResults = res.HasNoResultsMarker(doc)

	doc.Find(o.set.ResultItems).Each(func(_ int, s *goquery.Selection) {
		if page.dividerIdx == -1 && res.IsDivider(s) {
			page.dividerIdx = len(page.items)
			return
		}
		if res.MatchesItemClass(s) {
			page.items = append(page.items, s)
		}
	})
	return page
}

// loadResults opens the search URL and returns the parsed snapshot,
// retrying a transport failure once with the fixed inter-attempt delay.
func (o *Orchestrator) loadResults(ctx context.Context, session browser.Session, searchURL string, consented *bool) (*goquery.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= transportAttempts; attempt++ {
		if attempt > 1 {
			o.log.Warn().Err(lastErr).Int("attempt", attempt).Msg("Retrying page load")
			select {
			case <-time.After(o.cfg.AttemptDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := session.Open(ctx, searchURL); err != nil {
			lastErr = err
			continue
		}
		if !*consented {
			browser.AcceptConsent(ctx, session, ebayConsentButton)
			*consented = true
		}
		if err := session.WaitVisible(ctx, o.set.ResultsContainer); err != nil {
			lastErr = err
			continue
		}
		html, err := session.HTML(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			lastErr = err
			continue
		}
		return doc, nil
	}
	o.gate.Block()
	return nil, pkgerrors.NewPageLoad(ebayMarketplace, "search results failed to load", lastErr)
}

// buildSearchURL builds the eBay search URL: buy-now only, located in
// Germany, sorted by price plus shipping, optionally bounded by the
// minimum price filter.
func (o *Orchestrator) buildSearchURL(query string, filtered bool) string {
	params := url.Values{}
	params.Set("_nkw", query)
	params.Set("_from", "R40")
	params.Set("_sacat", "0")
	params.Set("LH_PrefLoc", "6")
	params.Set("LH_BIN", "1")
	params.Set("_sop", "15")
	if filtered {
		params.Set("_udlo", strconv.Itoa(o.cfg.MinPriceFilter))
	}
	return ebaySearchURL + "?" + params.Encode()
}

func capSelections(items []*goquery.Selection, max int) []*goquery.Selection {
	if len(items) <= max {
		return items
	}
	return items[:max]
}
