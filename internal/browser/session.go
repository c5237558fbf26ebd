// Package browser provides the page-session capability the scrapers run
// on: open a URL, wait for a selector, hand back a DOM snapshot. The
// concrete implementation drives a headless Chrome via chromedp; the
// scrapers only see the Session interface.
package browser

import "context"

// Session is one live browser tab. A session is acquired per query
// attempt and must be released on every exit path.
type Session interface {
	// Open navigates to url and waits for the fixed settle delay.
	Open(ctx context.Context, url string) error
	// WaitVisible blocks until the selector is present on the page.
	WaitVisible(ctx context.Context, selector string) error
	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// ScrollToBottom scrolls the page to trigger lazy-loaded content.
	ScrollToBottom(ctx context.Context) error
	// HTML returns the current DOM snapshot as serialized HTML.
	HTML(ctx context.Context) (string, error)
	// Close releases the tab. Safe to call more than once.
	Close()
}

// Factory creates page sessions. One session resource is held for the
// duration of a query, then released.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// AcceptConsent clicks a cookie consent button if present. Not finding
// the button is normal once consent has been stored.
func AcceptConsent(ctx context.Context, s Session, selector string) bool {
	if err := s.Click(ctx, selector); err != nil {
		return false
	}
	return true
}
