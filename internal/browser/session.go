// Package browser owns the headless Chrome session: launching, opening tabs
// (optionally one isolated per-proxy browser context each) and releasing
// every tracked resource on close.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"arbrelay/internal/proxy"
)

// ErrLaunch is returned when the underlying browser cannot be started.
var ErrLaunch = errors.New("browser launch failed")

const defaultNavTimeout = 10 * time.Second

// Tab is one open page with its own chromedp context. Ctx is valid until the
// session (or the tab's isolated allocator) is closed.
type Tab struct {
	Ctx   context.Context
	URL   string
	Proxy string

	cancels []context.CancelFunc
}

// Options configures Launch.
type Options struct {
	Headless   bool
	UserAgent  string
	NavTimeout time.Duration // per-navigation bound; default 10s
}

// Session drives one browser plus any per-proxy isolated contexts opened via
// OpenTabsWithRotation. All navigation calls for a session run sequentially
// from the pipeline driver; Session itself only guards its bookkeeping.
type Session struct {
	opts Options
	pool *proxy.Pool

	mu      sync.Mutex
	cancels []context.CancelFunc
	tabs    []*Tab
	closed  bool

	browserCtx context.Context

	// openIsolated is swapped in tests to avoid spawning Chrome.
	openIsolated func(ctx context.Context, proxyURL, pageURL string) (*Tab, error)
}

// Launch starts a headless Chrome and returns a Session. Fails with ErrLaunch
// when Chrome cannot be started at all.
func Launch(ctx context.Context, pool *proxy.Pool, opts Options) (*Session, error) {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}

	allocOpts := allocatorOptions(opts, "")
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser process eagerly so launch failures surface here
	// instead of on the first tab.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	s := &Session{
		opts:       opts,
		pool:       pool,
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{browserCancel, allocCancel},
	}
	s.openIsolated = s.openIsolatedChrome
	slog.Info("Browser session launched", "headless", opts.Headless)
	return s, nil
}

// OpenTabs opens count tabs in the shared browser context, navigating each to
// url. count <= 0 returns an empty slice without side effects. A tab whose
// navigation fails is closed and skipped; the rest are returned.
func (s *Session) OpenTabs(url string, count int) []*Tab {
	if count <= 0 {
		return nil
	}
	var tabs []*Tab
	for i := 0; i < count; i++ {
		tabCtx, cancel := chromedp.NewContext(s.browserCtx)
		if err := s.navigate(tabCtx, url); err != nil {
			slog.Warn("Tab navigation failed", "url", url, "tab", i, "error", err)
			cancel()
			continue
		}
		tab := &Tab{Ctx: tabCtx, URL: url, cancels: []context.CancelFunc{cancel}}
		s.track(tab)
		tabs = append(tabs, tab)
	}
	slog.Info("Opened tabs", "url", url, "requested", count, "opened", len(tabs))
	return tabs
}

// OpenTabsWithRotation opens up to count tabs, each in its own isolated
// browser context bound to the next proxy from the pool. Failed attempts
// close their context and move on to the next proxy. Gives up after
// maxAttempts (default count*4). Partial success is not an error.
func (s *Session) OpenTabsWithRotation(url string, count, maxAttempts int) []*Tab {
	if count <= 0 {
		return nil
	}
	if maxAttempts <= 0 {
		maxAttempts = count * 4
	}

	var tabs []*Tab
	attempts := 0
	for len(tabs) < count && attempts < maxAttempts {
		attempts++
		proxyURL := ""
		if s.pool != nil {
			proxyURL = s.pool.Next()
		}
		tab, err := s.openIsolated(s.browserCtx, proxyURL, url)
		if err != nil {
			slog.Warn("Proxy tab attempt failed",
				"url", url, "proxy", proxy.Mask(proxyURL), "attempt", attempts, "error", err)
			continue
		}
		s.track(tab)
		tabs = append(tabs, tab)
	}
	slog.Info("Opened rotated tabs",
		"url", url, "requested", count, "opened", len(tabs), "attempts", attempts)
	return tabs
}

// Close releases every tracked tab and the browser itself. Individual release
// failures are logged, never propagated, so one leaked handle cannot block
// the rest. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tabs := s.tabs
	cancels := s.cancels
	s.tabs = nil
	s.cancels = nil
	s.mu.Unlock()

	for _, tab := range tabs {
		for _, cancel := range tab.cancels {
			cancel()
		}
	}
	// Browser context before allocator: cancels are stored innermost-first.
	for _, cancel := range cancels {
		cancel()
	}
	slog.Info("Browser session closed", "tabs_released", len(tabs))
}

func (s *Session) track(tab *Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs = append(s.tabs, tab)
}

func (s *Session) navigate(tabCtx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(tabCtx, s.opts.NavTimeout)
	defer cancel()
	return chromedp.Run(navCtx, chromedp.Navigate(url))
}

// openIsolatedChrome starts a dedicated allocator bound to proxyURL and
// navigates a fresh context to pageURL. The whole context is torn down on
// failure so a dead proxy leaks nothing.
func (s *Session) openIsolatedChrome(ctx context.Context, proxyURL, pageURL string) (*Tab, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(s.opts, proxyURL)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if err := s.navigate(tabCtx, pageURL); err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}
	return &Tab{
		Ctx:     tabCtx,
		URL:     pageURL,
		Proxy:   proxyURL,
		cancels: []context.CancelFunc{tabCancel, allocCancel},
	}, nil
}

func allocatorOptions(opts Options, proxyURL string) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	)
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	if proxyURL != "" {
		out = append(out, chromedp.ProxyServer(proxyURL))
	}
	return out
}

// PageContent returns the current HTML, URL and title of a tab, bounded by
// the session navigation timeout.
func (s *Session) PageContent(tab *Tab) (html, url, title string, err error) {
	ctx, cancel := context.WithTimeout(tab.Ctx, s.opts.NavTimeout)
	defer cancel()
	err = chromedp.Run(ctx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", "", "", fmt.Errorf("read page content: %w", err)
	}
	return html, url, title, nil
}
