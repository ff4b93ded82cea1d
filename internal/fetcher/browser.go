package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/dealtalk/dealtalk/internal/config"
	"github.com/dealtalk/dealtalk/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod. It is
// the fallback for pages that refuse plain HTTP clients; stealth patches are
// applied to every page to blunt fingerprinting.
type BrowserFetcher struct {
	browser *rod.Browser
	cfg     *config.FetcherConfig
	logger  *slog.Logger
}

// NewBrowserFetcher launches a headless Chromium and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox")

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf := &BrowserFetcher{
		browser: browser,
		cfg:     &cfg.Fetcher,
		logger:  logger.With("component", "browser_fetcher"),
	}

	bf.logger.Info("browser fetcher ready")
	return bf, nil
}

// Fetch renders the page in the browser and returns the final DOM.
func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*types.Page, error) {
	start := time.Now()

	page, err := stealth.Page(f.browser)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("open page: %w", err)}
	}
	defer page.Close()

	page = page.Context(ctx)
	if f.cfg.RequestTimeout > 0 {
		page = page.Timeout(f.cfg.RequestTimeout)
	}

	if err := page.Navigate(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("navigate: %w", err)}
	}
	if err := page.WaitLoad(); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("wait load: %w", err)}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("read DOM: %w", err)}
	}

	finalURL := rawURL
	if info, err := page.Info(); err == nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	f.logger.Debug("browser fetch complete",
		"url", rawURL,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return &types.Page{
		URL:           rawURL,
		FinalURL:      finalURL,
		StatusCode:    200, // the browser only resolves pages it could render
		Body:          []byte(html),
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}, nil
}

// Close shuts down the browser.
func (f *BrowserFetcher) Close() error {
	return f.browser.Close()
}

// Type returns the fetcher type identifier.
func (f *BrowserFetcher) Type() string {
	return "browser"
}

// New creates the fetcher selected by the configuration.
func New(cfg *config.Config, logger *slog.Logger) (Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "browser":
		return NewBrowserFetcher(cfg, logger)
	default:
		return NewHTTPFetcher(cfg, logger)
	}
}
