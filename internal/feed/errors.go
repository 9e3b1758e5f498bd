package feed

import (
	"errors"
	"fmt"
)

// ErrEmptyFeed is reported when the feed answers successfully with no stations
var ErrEmptyFeed = errors.New("feed returned no stations")

// FetchError means the feed was unreachable or its top-level payload could
// not be used. The refresh cycle is skipped.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching station feed %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching station feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// MalformedItemError means a single feed item is missing or has invalid
// required fields. It invalidates the whole refresh cycle.
type MalformedItemError struct {
	Index int
	ID    string
	Err   error
}

func (e *MalformedItemError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("malformed station item %d (id %s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("malformed station item %d: %v", e.Index, e.Err)
}

func (e *MalformedItemError) Unwrap() error {
	return e.Err
}
