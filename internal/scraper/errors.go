package scraper

import "fmt"

// FetchError is returned when the instruction page could not be retrieved.
type FetchError struct {
	Key        string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch instructions for %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("fetch instructions for %q: status=%d url=%s", e.Key, e.StatusCode, e.URL)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError is returned when the page lacks a usable webp source.
type ExtractionError struct {
	Key string
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract image for %q from %s: %v", e.Key, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
