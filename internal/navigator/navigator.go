// Package navigator wraps browser primitives with verified navigation,
// bounded waits and script clicks.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/browser"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// DefaultPollInterval is used when New receives a non-positive interval.
const DefaultPollInterval = 250 * time.Millisecond

// clickAttempts covers a DOM swap between resolving and clicking.
const clickAttempts = 2

// ErrElementNotFound is returned when a locator matches nothing.
var ErrElementNotFound = errors.New("element not found")

// Locator addresses an element by selector and position. It is resolved
// again on every use.
type Locator struct {
	Selector string
	Index    int
}

// At returns a locator for the index-th match of selector.
func At(selector string, index int) Locator {
	return Locator{Selector: selector, Index: index}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s[%d]", l.Selector, l.Index)
}

// Navigator drives one page. It is not safe for concurrent use.
type Navigator struct {
	page browser.Page
	log  logger.Logger
	poll time.Duration
}

// New returns a Navigator over page.
func New(page browser.Page, log logger.Logger, poll time.Duration) *Navigator {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Navigator{page: page, log: log, poll: poll}
}

// Page returns the underlying page.
func (n *Navigator) Page() browser.Page {
	return n.page
}

// NavigateTo loads url until the effective URL equals url exactly. It makes
// at most maxAttempts loads, sleeping delay between them.
func (n *Navigator) NavigateTo(ctx context.Context, url string, maxAttempts int, delay time.Duration) bool {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if n.tryNavigate(ctx, url, attempt) {
			return true
		}
		if attempt == maxAttempts {
			break
		}
		if err := Sleep(ctx, delay); err != nil {
			return false
		}
	}

	n.log.Warn("Navigation did not reach expected URL",
		logger.String("url", url),
		logger.Int("attempts", maxAttempts),
	)
	return false
}

func (n *Navigator) tryNavigate(ctx context.Context, url string, attempt int) bool {
	if err := n.page.Navigate(ctx, url); err != nil {
		n.log.Warn("Navigation failed",
			logger.String("url", url),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		return false
	}

	current, err := n.page.Location(ctx)
	if err != nil {
		n.log.Warn("Could not read location", logger.String("url", url), logger.Error(err))
		return false
	}
	if current != url {
		n.log.Debug("Navigation landed elsewhere",
			logger.String("expected", url),
			logger.String("actual", current),
			logger.Int("attempt", attempt),
		)
		return false
	}
	return true
}

// ClickRobust resolves loc now, scrolls it into view and clicks it by script.
func (n *Navigator) ClickRobust(ctx context.Context, loc Locator) error {
	var lastErr error
	for attempt := 1; attempt <= clickAttempts; attempt++ {
		clicked, err := n.page.Click(ctx, loc.Selector, loc.Index)
		if err == nil && clicked {
			return nil
		}
		if err == nil {
			return fmt.Errorf("%w: %s", ErrElementNotFound, loc)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if sleepErr := Sleep(ctx, n.poll); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("click %s: %w", loc, lastErr)
}

// Snapshot returns the current DOM.
func (n *Navigator) Snapshot(ctx context.Context) (*goquery.Document, error) {
	return n.page.Document(ctx)
}

// WaitPresent waits until selector matches at least one element.
func (n *Navigator) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := WaitFor(ctx, n, Present(selector), timeout)
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
