// Package dealtalk provides a public API for embedding the scraper and chat
// pipeline as a library.
//
// Example usage:
//
//	client, err := dealtalk.New(
//	    dealtalk.WithDataDir("./threads"),
//	    dealtalk.WithMaxPages(5),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	result, err := client.Scrape(ctx, "https://slickdeals.net/f/12345-deal")
//	answer, err := client.Chat(ctx, result.ThreadID, "is this worth buying?")
package dealtalk

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dealtalk/dealtalk/internal/ai"
	"github.com/dealtalk/dealtalk/internal/config"
	"github.com/dealtalk/dealtalk/internal/fetcher"
	"github.com/dealtalk/dealtalk/internal/scraper"
	"github.com/dealtalk/dealtalk/internal/store"
	"github.com/dealtalk/dealtalk/internal/types"
)

// Client is the high-level API for scraping threads and asking about them.
type Client struct {
	cfg     *config.Config
	logger  *slog.Logger
	fetcher fetcher.Fetcher
	store   *store.FileStore
	scraper *scraper.Scraper
	chat    *ai.ChatAdapter
}

// Option configures a Client.
type Option func(*config.Config)

// WithDataDir sets where thread records are stored.
func WithDataDir(dir string) Option {
	return func(c *config.Config) { c.Storage.DataDir = dir }
}

// WithMaxPages sets the default pagination bound per scrape.
func WithMaxPages(n int) Option {
	return func(c *config.Config) { c.Scraper.MaxPages = n }
}

// WithPageDelay sets the politeness delay between page fetches.
func WithPageDelay(d time.Duration) Option {
	return func(c *config.Config) { c.Scraper.PageDelay = d }
}

// WithBrowser fetches pages through a headless browser instead of plain HTTP.
func WithBrowser() Option {
	return func(c *config.Config) { c.Fetcher.Type = "browser" }
}

// WithModel sets the chat model.
func WithModel(name string) Option {
	return func(c *config.Config) { c.AI.Model = name }
}

// WithCharBudget caps how many characters of comment text reach the model.
func WithCharBudget(n int) Option {
	return func(c *config.Config) { c.AI.CharBudget = n }
}

// New creates a Client. The GOOGLE_API_KEY environment variable supplies the
// chat credential; scraping works without it.
func New(opts ...Option) (*Client, error) {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.AI.APIKey = os.Getenv("GOOGLE_API_KEY")
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.NewFileStore(cfg.Storage.DataDir, logger)
	if err != nil {
		f.Close()
		return nil, err
	}

	walker := scraper.NewWalker(f, scraper.NewExtractor(logger), &cfg.Scraper, logger)

	return &Client{
		cfg:     cfg,
		logger:  logger,
		fetcher: f,
		store:   st,
		scraper: scraper.New(walker, st, nil, logger),
	}, nil
}

// Scrape walks the thread at rawURL and merges the comments into the store.
func (c *Client) Scrape(ctx context.Context, rawURL string) (*scraper.Result, error) {
	if err := config.ValidateThreadURL(rawURL); err != nil {
		return nil, err
	}
	return c.scraper.Scrape(ctx, rawURL, c.cfg.Scraper.MaxPages, false)
}

// Refresh re-scrapes the thread even when a stored record already covers it.
func (c *Client) Refresh(ctx context.Context, rawURL string) (*scraper.Result, error) {
	if err := config.ValidateThreadURL(rawURL); err != nil {
		return nil, err
	}
	return c.scraper.Scrape(ctx, rawURL, c.cfg.Scraper.MaxPages, true)
}

// Chat answers one question about a previously scraped thread.
func (c *Client) Chat(ctx context.Context, threadID, question string) (string, error) {
	record, err := c.store.Load(threadID)
	if err != nil {
		return "", err
	}
	chat, err := c.chatAdapter(ctx)
	if err != nil {
		return "", err
	}
	return chat.Chat(ctx, record, question, nil, false)
}

// Threads lists the stored thread records, newest first.
func (c *Client) Threads() ([]types.ThreadInfo, error) {
	return c.store.List()
}

// Close releases the fetcher.
func (c *Client) Close() error {
	return c.fetcher.Close()
}

// chatAdapter builds the Gemini-backed adapter on first use, so scrape-only
// callers never need a credential.
func (c *Client) chatAdapter(ctx context.Context) (*ai.ChatAdapter, error) {
	if c.chat != nil {
		return c.chat, nil
	}
	gen, err := ai.NewGemini(ctx, c.cfg.AI)
	if err != nil {
		return nil, err
	}
	c.chat = ai.NewChatAdapter(gen, c.store, c.cfg.AI.CharBudget, c.logger)
	return c.chat, nil
}
