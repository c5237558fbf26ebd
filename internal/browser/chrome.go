package browser

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"dropscout/logger"
)

const (
	defaultOpTimeout   = 60 * time.Second
	defaultSettleDelay = 2 * time.Second
)

// ChromeFactory creates sessions backed by a shared headless Chrome
// allocator.
type ChromeFactory struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	settleDelay time.Duration
	log         *logger.Logger
}

// NewChromeFactory starts a Chrome exec allocator. The returned factory
// must be closed when the run finishes.
func NewChromeFactory(headless bool, log *logger.Logger) *ChromeFactory {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if bin := findChromeBinary(); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
		log.Info().Str("binary", bin).Msg("Using browser binary")
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	_ = cancelSilent

	return &ChromeFactory{
		allocCtx:    silentCtx,
		cancelAlloc: cancelAlloc,
		settleDelay: defaultSettleDelay,
		log:         log,
	}
}

// NewSession opens a fresh tab.
func (f *ChromeFactory) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(f.allocCtx)
	return &chromeSession{
		ctx:         tabCtx,
		cancel:      cancel,
		settleDelay: f.settleDelay,
		log:         f.log,
	}, nil
}

// Close tears down the allocator and every tab created from it.
func (f *ChromeFactory) Close() {
	f.cancelAlloc()
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	settleDelay time.Duration
	closeOnce   sync.Once
	log         *logger.Logger
}

// run executes chromedp actions under both the caller's deadline and the
// session's own operation timeout.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(s.ctx, defaultOpTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(opCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (s *chromeSession) Open(ctx context.Context, url string) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(s.settleDelay),
	)
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromeSession) ScrollToBottom(ctx context.Context) error {
	return s.run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
	)
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromeSession) Close() {
	s.closeOnce.Do(s.cancel)
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
