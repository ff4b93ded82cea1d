// Package fetcher retrieves thread pages over HTTP or a headless browser.
package fetcher

import (
	"context"

	"github.com/dealtalk/dealtalk/internal/types"
)

// Fetcher retrieves a single page. Implementations surface failures as
// *types.FetchError and do not retry.
type Fetcher interface {
	// Fetch retrieves the page at rawURL.
	Fetch(ctx context.Context, rawURL string) (*types.Page, error)

	// Close releases resources.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}
