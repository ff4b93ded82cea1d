package types

import "time"

// Page is the result of fetching one URL.
type Page struct {
	// URL is the address that was requested.
	URL string

	// FinalURL is the address after any redirects.
	FinalURL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the raw page content.
	Body []byte

	// FetchDuration is how long the fetch took.
	FetchDuration time.Duration

	// FetchedAt is when the page was received.
	FetchedAt time.Time
}

// IsSuccess returns true if the response status is 2xx.
func (p *Page) IsSuccess() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}
