package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dealtalk/dealtalk/internal/config"
	"github.com/dealtalk/dealtalk/internal/fetcher"
	"github.com/dealtalk/dealtalk/internal/types"
)

// Walker pages through a thread, fetching and extracting until the thread is
// exhausted or a safety bound is hit.
type Walker struct {
	fetcher   fetcher.Fetcher
	extractor *Extractor
	cfg       *config.ScraperConfig
	logger    *slog.Logger
}

// WalkResult accumulates everything a pagination walk discovered.
type WalkResult struct {
	DealTitle       string
	DealDescription string
	Comments        []types.Comment
	PagesFetched    int

	// Partial is set when a mid-walk failure stopped the walk; comments from
	// the pages before the failure are kept.
	Partial       bool
	PartialReason string
}

// NewWalker creates a pagination walker.
func NewWalker(f fetcher.Fetcher, e *Extractor, cfg *config.ScraperConfig, logger *slog.Logger) *Walker {
	return &Walker{
		fetcher:   f,
		extractor: e,
		cfg:       cfg,
		logger:    logger.With("component", "walker"),
	}
}

// Walk fetches pages 1..maxPages of the thread at baseURL. It stops early
// when a page yields no new comments, when the site redirects a page request
// back to an earlier page (the signal for "past the last page"), or on a
// mid-walk failure — in which case everything accumulated so far is returned
// with the partial flag set. A failure on the first page is a total failure.
func (w *Walker) Walk(ctx context.Context, baseURL string, maxPages int) (*WalkResult, error) {
	if maxPages < 1 {
		maxPages = w.cfg.MaxPages
	}

	base := baseURL
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}

	result := &WalkResult{}
	seen := make(map[string]struct{})

	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		if pageNum > 1 && w.cfg.PageDelay > 0 {
			select {
			case <-ctx.Done():
				result.Partial = true
				result.PartialReason = ctx.Err().Error()
				return result, nil
			case <-time.After(w.cfg.PageDelay):
			}
		}

		pageURL := fmt.Sprintf("%s?sort=%s&page=%d", base, w.cfg.SortOrder, pageNum)

		page, err := w.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if pageNum == 1 {
				return nil, err
			}
			w.logger.Warn("walk stopped on fetch failure", "page", pageNum, "error", err)
			result.Partial = true
			result.PartialReason = fmt.Sprintf("page %d: %v", pageNum, err)
			return result, nil
		}
		result.PagesFetched++

		// Requesting a page past the end redirects back to an earlier one.
		if pageNum > 1 && redirectedAway(page, pageNum) {
			w.logger.Debug("redirected past last page", "requested", pageNum, "final_url", page.FinalURL)
			return result, nil
		}

		ext, err := w.extractor.Extract(page)
		if err != nil {
			if pageNum == 1 {
				return nil, err
			}
			w.logger.Warn("walk stopped on parse failure", "page", pageNum, "error", err)
			result.Partial = true
			result.PartialReason = fmt.Sprintf("page %d: %v", pageNum, err)
			return result, nil
		}

		if pageNum == 1 {
			result.DealTitle = ext.DealTitle
			result.DealDescription = ext.DealDescription
		}

		var newOnPage int
		for _, c := range ext.Comments {
			key := c.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result.Comments = append(result.Comments, c)
			newOnPage++
		}

		w.logger.Debug("page walked", "page", pageNum, "new_comments", newOnPage)

		// A page of pure duplicates means the site is re-serving content we
		// already have; there is nothing further to find.
		if newOnPage == 0 {
			return result, nil
		}
	}

	return result, nil
}

// redirectedAway reports whether the final URL points at a different page
// number than the one requested.
func redirectedAway(page *types.Page, requested int) bool {
	u, err := url.Parse(page.FinalURL)
	if err != nil {
		return false
	}
	pageParam := u.Query().Get("page")
	if pageParam == "" {
		// Asked for page N but landed on an unnumbered URL: back at page 1.
		return true
	}
	final, err := strconv.Atoi(pageParam)
	if err != nil {
		return false
	}
	return final != requested
}
