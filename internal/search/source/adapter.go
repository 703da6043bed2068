// internal/search/source/adapter.go
package source

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"carsearch/internal/models"
)

var (
	ErrFetchTimeout = errors.New("SOURCE_TIMEOUT")
	ErrChallenge    = errors.New("SOURCE_CHALLENGE")
	ErrFetchFailed  = errors.New("SOURCE_FETCH_FAILED")
)

// Adapter wraps one external marketplace. Fetch returns the source's raw
// listing records for the given criteria, already mapped out of the source's
// own field names but not yet normalized. Implementations own their retry
// policy but must respect the ctx deadline and never share mutable session
// state across invocations.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, criteria models.SearchCriteria) (*models.RawResult, error)
}

// retryBackoff is the pause before an adapter's single retry on a transient
// upstream failure.
const retryBackoff = 200 * time.Millisecond

// fetchWithRetry runs attempt once, and once more after a short backoff when
// the failure was a timeout or an anti-bot challenge. It gives up
// immediately when the ctx deadline can no longer cover a retry.
func fetchWithRetry(ctx context.Context, attempt func(context.Context) (*models.RawResult, error)) (*models.RawResult, error) {
	result, err := attempt(ctx)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, ErrFetchTimeout) && !errors.Is(err, ErrChallenge) {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(retryBackoff):
	}

	return attempt(ctx)
}

// classifyHTTPError maps transport errors and upstream status codes onto the
// adapter error taxonomy.
func classifyHTTPError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded ||
		strings.Contains(err.Error(), "deadline") ||
		strings.Contains(err.Error(), "timeout") ||
		strings.Contains(err.Error(), "Client.Timeout") {
		return ErrFetchTimeout
	}
	return err
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return ErrChallenge
	default:
		return ErrFetchFailed
	}
}
