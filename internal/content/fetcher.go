package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/retry"
)

// ErrHTTPStatus is returned for a non-2xx download response.
var ErrHTTPStatus = errors.New("unexpected http status")

//go:generate mockgen -destination=../../testutils/mocks/content/mock_content.go -package=content github.com/jonesrussell/north-cloud/progress-scraper/internal/content Fetcher,VideoDownloader

// Fetcher downloads a binary resource with the session cookies attached.
type Fetcher interface {
	Fetch(ctx context.Context, url string, cookies []*http.Cookie) ([]byte, error)
}

// HTTPFetcher is a Fetcher backed by resty with exponential backoff.
type HTTPFetcher struct {
	client *resty.Client
	retry  retry.Config
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout and
// attempt budget.
func NewHTTPFetcher(timeout time.Duration, maxAttempts int, userAgent string) *HTTPFetcher {
	client := resty.New().SetTimeout(timeout)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = max(1, maxAttempts)
	return &HTTPFetcher{client: client, retry: cfg}
}

// Fetch implements Fetcher. Server errors and transport failures are
// retried; client errors are not.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, cookies []*http.Cookie) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, f.retry, func() error {
		resp, err := f.client.R().
			SetContext(ctx).
			SetCookies(cookies).
			Get(url)
		if err != nil {
			return retry.Retryable(err)
		}

		status := resp.StatusCode()
		if status >= http.StatusInternalServerError {
			return retry.Retryable(fmt.Errorf("%w: %d", ErrHTTPStatus, status))
		}
		if resp.IsError() {
			return fmt.Errorf("%w: %d", ErrHTTPStatus, status)
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	return body, nil
}
