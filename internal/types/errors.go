package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound      = errors.New("no stored data for thread")
	ErrNotThreadPage = errors.New("page does not contain a thread payload")
	ErrMissingAPIKey = errors.New("GOOGLE_API_KEY not set")
	ErrInvalidURL    = errors.New("invalid thread URL")
)

// FetchError wraps errors that occur while fetching a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps errors that occur while extracting thread data from markup.
// Callers rely on it to tell a broken extractor apart from a thread that simply
// has no comments.
type ParseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error for %s (%s): %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error for %s: %s", e.URL, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors from the thread store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UpstreamError wraps failures of the external chat API.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (%s): %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
