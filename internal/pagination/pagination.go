// Package pagination reads and advances the numbered pager of a listing page.
package pagination

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/navigator"
)

// Pager selectors.
const (
	ItemSelector   = ".page-item"
	LinkSelector   = ".page-item .page-link"
	NextSelector   = "li.page-item a.page-link:has(i.fa-chevron-right)"
	ActiveSelector = "li.page-item.active a.page-link"
)

// minReadyItems is previous + next + at least one numbered page.
const minReadyItems = 3

// Default timings.
const (
	DefaultWaitTimeout    = 10 * time.Second
	DefaultAdvanceTimeout = 30 * time.Second
	DefaultSettleDelay    = 1 * time.Second
)

// Controller reads the page count and moves to the next page.
type Controller struct {
	nav            *navigator.Navigator
	log            logger.Logger
	waitTimeout    time.Duration
	advanceTimeout time.Duration
	settleDelay    time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithWaitTimeout sets the readiness timeout used by PageCount.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Controller) { c.waitTimeout = d }
}

// WithAdvanceTimeout sets how long Advance waits for the active page to change.
func WithAdvanceTimeout(d time.Duration) Option {
	return func(c *Controller) { c.advanceTimeout = d }
}

// WithSettleDelay sets the pause after a confirmed page change.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settleDelay = d }
}

// New returns a Controller driving nav.
func New(nav *navigator.Navigator, log logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		nav:            nav,
		log:            log,
		waitTimeout:    DefaultWaitTimeout,
		advanceTimeout: DefaultAdvanceTimeout,
		settleDelay:    DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageCount returns the highest numbered page in the pager, or 0 when the
// pager shows no numbers. A pager that never becomes ready is still scanned.
func (c *Controller) PageCount(ctx context.Context) (int, error) {
	_, err := navigator.WaitFor(ctx, c.nav, navigator.MinCount(ItemSelector, minReadyItems), c.waitTimeout)
	if err != nil {
		if !navigator.IsTimeout(err) {
			return 0, err
		}
		c.log.Warn("Pagination not ready, scanning anyway", logger.Error(err))
	}

	doc, err := c.nav.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return MaxPageNumber(doc.Selection), nil
}

// MaxPageNumber returns the largest numeric page label under root. Labels are
// read from the link text, falling back to its data-page attribute.
func MaxPageNumber(root *goquery.Selection) int {
	maxPage := 0
	root.Find(LinkSelector).Each(func(_ int, link *goquery.Selection) {
		n, ok := pageNumber(link)
		if ok && n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}

func pageNumber(link *goquery.Selection) (int, bool) {
	if n, err := strconv.Atoi(strings.TrimSpace(link.Text())); err == nil {
		return n, true
	}
	if v, ok := link.Attr("data-page"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Advance moves from page current to current+1. It returns false without
// clicking when current >= total, and false when the next control is missing
// or the active page does not change in time.
func (c *Controller) Advance(ctx context.Context, current, total int) bool {
	if current >= total {
		return false
	}

	if err := c.nav.ClickRobust(ctx, navigator.At(NextSelector, 0)); err != nil {
		c.log.Warn("Could not click next page",
			logger.Int("current_page", current),
			logger.Error(err),
		)
		return false
	}

	want := strconv.Itoa(current + 1)
	if _, err := navigator.WaitFor(ctx, c.nav, navigator.TextEquals(ActiveSelector, want), c.advanceTimeout); err != nil {
		c.log.Warn("Active page did not change",
			logger.Int("current_page", current),
			logger.String("expected", want),
			logger.Error(err),
		)
		return false
	}

	if err := navigator.Sleep(ctx, c.settleDelay); err != nil {
		return false
	}

	c.log.Debug("Advanced page", logger.Int("page", current+1), logger.Int("total", total))
	return true
}
