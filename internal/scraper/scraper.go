package scraper

import (
	"context"
	"log/slog"

	"github.com/dealtalk/dealtalk/internal/types"
)

// RecordStore is the slice of the thread store the scraper needs.
type RecordStore interface {
	Load(threadID string) (*types.ThreadRecord, error)
	MergeAndSave(threadID string, meta types.RecordMeta, comments []types.Comment) (*types.ThreadRecord, int, error)
}

// Archiver mirrors merged records into secondary storage.
type Archiver interface {
	Upsert(ctx context.Context, record *types.ThreadRecord) error
}

// Result is the outcome of one scrape operation.
type Result struct {
	ThreadID        string `json:"thread_id"`
	DealTitle       string `json:"deal_title"`
	CommentCount    int    `json:"comment_count"`
	NewlyAddedCount int    `json:"newly_added_count"`
	PagesFetched    int    `json:"pages_fetched"`
	Partial         bool   `json:"partial"`
	PartialReason   string `json:"partial_reason,omitempty"`
	Source          string `json:"source"` // "scrape" or "cache"
}

// Scraper drives the fetch → extract → walk → merge pipeline for one thread.
type Scraper struct {
	walker  *Walker
	store   RecordStore
	archive Archiver // nil unless the mirror is enabled
	logger  *slog.Logger
}

// New creates a scraper. archive may be nil.
func New(walker *Walker, store RecordStore, archive Archiver, logger *slog.Logger) *Scraper {
	return &Scraper{
		walker:  walker,
		store:   store,
		archive: archive,
		logger:  logger.With("component", "scraper"),
	}
}

// Scrape walks the thread at rawURL and merges what it finds into the store.
// When forceRefresh is false and the stored record already covers at least
// maxPages, the stored record answers without touching the network.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, maxPages int, forceRefresh bool) (*Result, error) {
	threadID := types.ThreadIDFromURL(rawURL)

	if !forceRefresh {
		if record, err := s.store.Load(threadID); err == nil {
			if record.MaxPagesRequest >= maxPages {
				s.logger.Info("serving cached record", "thread_id", threadID)
				return &Result{
					ThreadID:     threadID,
					DealTitle:    record.DealTitle,
					CommentCount: len(record.Comments),
					Source:       "cache",
				}, nil
			}
			s.logger.Info("cached record too shallow, re-scraping",
				"thread_id", threadID,
				"cached_pages", record.MaxPagesRequest,
				"requested_pages", maxPages,
			)
		}
	}

	walk, err := s.walker.Walk(ctx, rawURL, maxPages)
	if err != nil {
		return nil, err
	}

	record, added, err := s.store.MergeAndSave(threadID, types.RecordMeta{
		SourceURL:       rawURL,
		DealTitle:       walk.DealTitle,
		DealDescription: walk.DealDescription,
		MaxPagesRequest: maxPages,
	}, walk.Comments)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		// Mirror failures must not fail the scrape; the file is the owner.
		if err := s.archive.Upsert(ctx, record); err != nil {
			s.logger.Warn("archive mirror failed", "thread_id", threadID, "error", err)
		}
	}

	s.logger.Info("scrape complete",
		"thread_id", threadID,
		"pages", walk.PagesFetched,
		"comments", len(record.Comments),
		"newly_added", added,
		"partial", walk.Partial,
	)

	return &Result{
		ThreadID:        threadID,
		DealTitle:       record.DealTitle,
		CommentCount:    len(record.Comments),
		NewlyAddedCount: added,
		PagesFetched:    walk.PagesFetched,
		Partial:         walk.Partial,
		PartialReason:   walk.PartialReason,
		Source:          "scrape",
	}, nil
}
