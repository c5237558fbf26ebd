package scraper

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"dropscout/logger"
)

// Extractor turns one result-list element into a normalized Listing.
// Failures are local: a node missing a required field yields nil and the
// caller drops the item.
type Extractor struct {
	res *Resolver
	// origin absolute-ifies relative hrefs, e.g. "https://www.ebay.de".
	origin string
	// interstitials are URL fragments marking redirect/interstitial links
	// that must be treated as extraction failures.
	interstitials []string
	log           *logger.Logger
}

// NewExtractor creates an extractor bound to a resolver and marketplace
// origin.
func NewExtractor(res *Resolver, origin string, interstitials []string, log *logger.Logger) *Extractor {
	return &Extractor{
		res:           res,
		origin:        origin,
		interstitials: interstitials,
		log:           log,
	}
}

// Extract parses a single result element. Returns nil when any required
// field (title, price, URL) is missing or unparseable.
func (e *Extractor) Extract(s *goquery.Selection) *Listing {
	titleSel := e.res.Resolve(s, FieldTitle, true)
	if titleSel == nil {
		return nil
	}
	title := strings.TrimSpace(titleSel.Text())
	if title == "" || utf8.RuneCountInString(title) > 500 {
		return nil
	}

	priceSel := e.res.Resolve(s, FieldPrice, true)
	if priceSel == nil {
		return nil
	}
	price, err := ParsePrice(priceSel.Text())
	if err != nil || !price.IsPositive() {
		e.log.Debug().Str("title", truncate(title, 50)).Msg("Unparseable price, item dropped")
		return nil
	}

	urlSel := e.res.Resolve(s, FieldURL, true)
	if urlSel == nil {
		return nil
	}
	sourceURL := e.canonicalURL(urlSel)
	if sourceURL == "" {
		return nil
	}

	listing := &Listing{
		Title:     title,
		Price:     price,
		SourceURL: sourceURL,
	}

	if subSel := e.res.Resolve(s, FieldSubtitle, false); subSel != nil {
		listing.Subtitle = strings.Join(strings.Fields(subSel.Text()), " ")
	}

	if imgSel := e.res.Resolve(s, FieldImage, false); imgSel != nil {
		listing.ImageURL = lazyImageURL(imgSel)
	}

	return listing
}

// canonicalURL reads the href, absolute-ifies relative paths against the
// marketplace origin, and rejects redirect/interstitial links.
func (e *Extractor) canonicalURL(sel *goquery.Selection) string {
	href, ok := sel.Attr("href")
	if !ok {
		// link candidates may resolve to a wrapper around the anchor
		href, ok = sel.Find("a").First().Attr("href")
		if !ok {
			return ""
		}
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		href = e.origin + href
	}
	for _, marker := range e.interstitials {
		if strings.Contains(href, marker) {
			e.log.Debug().Str("url", href).Msg("Interstitial link, item dropped")
			return ""
		}
	}
	return href
}

// lazyImageURL prefers the lazy-load attribute over the immediate src,
// which is more reliable on both observed sites.
func lazyImageURL(sel *goquery.Selection) string {
	if src, ok := sel.Attr("data-src"); ok && src != "" {
		return src
	}
	if src, ok := sel.Attr("src"); ok {
		return src
	}
	return ""
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
