package ingest

import (
	"errors"
	"fmt"
)

// ErrParseSkip marks a per-listing enrichment step that failed and was skipped.
var ErrParseSkip = errors.New("listing step skipped")

// FetchError reports an unreachable target or a non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status code %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v (after %d attempt(s))", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// UpstreamAPIError is a non-OK status returned by the places service.
type UpstreamAPIError struct {
	Endpoint string
	Status   string
	Message  string
}

func (e *UpstreamAPIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("places %s: status %s: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("places %s: status %s", e.Endpoint, e.Status)
}
