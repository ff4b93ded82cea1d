package types

import (
	"regexp"
	"strings"
	"time"
)

// ThreadRecord is the persisted unit: one scraped thread and everything known
// about it. It is owned by a single JSON file named after ThreadID; comments
// are append-only across re-scrapes.
type ThreadRecord struct {
	ThreadID         string    `json:"thread_id" bson:"thread_id"`
	SourceURL        string    `json:"source_url" bson:"source_url"`
	DealTitle        string    `json:"deal_title" bson:"deal_title"`
	DealDescription  string    `json:"deal_description" bson:"deal_description"`
	DealSummary      string    `json:"deal_summary,omitempty" bson:"deal_summary,omitempty"`
	MaxPagesRequest  int       `json:"max_pages_request" bson:"max_pages_request"`
	ScrapedAt        time.Time `json:"scraped_at" bson:"scraped_at"`
	Comments         []Comment `json:"comments" bson:"comments"`
}

// CommentKeys returns the set of dedup keys already present in the record.
func (r *ThreadRecord) CommentKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(r.Comments))
	for _, c := range r.Comments {
		keys[c.Key()] = struct{}{}
	}
	return keys
}

// RecordMeta carries the per-scrape metadata merged into a record alongside
// new comments.
type RecordMeta struct {
	SourceURL       string
	DealTitle       string
	DealDescription string
	MaxPagesRequest int
}

// ThreadInfo summarizes one stored record for listings.
type ThreadInfo struct {
	Filename string    `json:"filename"`
	Title    string    `json:"title"`
	Modified time.Time `json:"modified"`
	Size     int64     `json:"size"`
}

var (
	dealIDPat = regexp.MustCompile(`/f/(\d+)`)
	unsafePat = regexp.MustCompile(`[^a-zA-Z0-9\-]`)
)

// ThreadIDFromURL derives the storage identity from a thread URL. URLs that
// embed a numeric forum id map to "deal_<id>"; anything else falls back to a
// sanitized slug of the last path segment.
func ThreadIDFromURL(rawURL string) string {
	base := rawURL
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}

	if m := dealIDPat.FindStringSubmatch(base); m != nil {
		return "deal_" + m[1]
	}

	parts := strings.Split(strings.TrimRight(base, "/"), "/")
	slug := parts[len(parts)-1]
	slug = unsafePat.ReplaceAllString(slug, "")
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return "scrape_" + slug
}
