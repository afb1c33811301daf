package providers

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported names an operation (Embed, GenerateImage, CompleteStream)
// that a given implementation does not offer. No adapter in this package
// returns it: an adapter that lacks an operation does not implement the
// corresponding optional interface.
var ErrUnsupported = errors.New("providers: operation not supported by this provider")

// HTTPError wraps a non-2xx response from a provider's HTTP API, carrying
// enough information for the router to classify it as retryable and for
// the error-handling layer to map it to the right error kind.
type HTTPError struct {
	Provider   string
	Status     int
	Body       string
	retryAfter time.Duration
	hasRetry   bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, e.Body)
}

// StatusCode returns the HTTP status code of the failed response.
func (e *HTTPError) StatusCode() int { return e.Status }

// RetryAfter returns the provider's advertised Retry-After wait, if any.
func (e *HTTPError) RetryAfter() (time.Duration, bool) { return e.retryAfter, e.hasRetry }

// NewHTTPError constructs an HTTPError without a Retry-After hint.
func NewHTTPError(provider string, status int, body string) *HTTPError {
	return &HTTPError{Provider: provider, Status: status, Body: body}
}

// NewHTTPErrorWithRetry constructs an HTTPError carrying a Retry-After wait.
func NewHTTPErrorWithRetry(provider string, status int, body string, retryAfter time.Duration) *HTTPError {
	return &HTTPError{Provider: provider, Status: status, Body: body, retryAfter: retryAfter, hasRetry: true}
}

// ClassifyError reports whether err, which a provider call returned,
// should be treated as a client error (4xx other than 429 — not
// retryable by trying another binding) or a server/transport error
// (5xx, 429, or no status at all — retryable).
func ClassifyError(err error) (status int, retryable bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Status
		return status, status == 429 || status >= 500
	}
	return 0, true
}
