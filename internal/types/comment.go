package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// Comment kinds as they appear on a thread page.
const (
	KindMain     = "main"
	KindFeatured = "featured"
)

// PlaceholderAuthor substitutes for deleted or missing usernames.
const PlaceholderAuthor = "[deleted]"

// Comment represents a single forum post within a thread.
type Comment struct {
	// Kind distinguishes regular posts from featured/top posts.
	Kind string `json:"kind" bson:"kind"`

	// Author is the display name, PlaceholderAuthor when absent.
	Author string `json:"author" bson:"author"`

	// Text is the body content with markup stripped.
	Text string `json:"text" bson:"text"`

	// Date is the site-formatted posting time, empty when not extractable.
	Date string `json:"date,omitempty" bson:"date,omitempty"`
}

// Key returns the deduplication key for the comment. The thread payload
// exposes no stable per-comment id, so the key is a content hash of
// author, date, and text.
func (c Comment) Key() string {
	h := sha256.New()
	h.Write([]byte(c.Author))
	h.Write([]byte{'|'})
	h.Write([]byte(c.Date))
	h.Write([]byte{'|'})
	h.Write([]byte(c.Text))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
