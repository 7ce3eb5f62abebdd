// Package scraper walks the Path -> Training -> Step -> Content hierarchy of
// the platform through one browser session.
package scraper

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/extractor"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/metrics"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/navigator"
)

// Card selectors on the listing page.
const (
	CardSelector   = extractor.PathCardSelector + ", " + extractor.SubscriptionCardSelector
	ToggleSelector = ".deploy"
	OpenSelector   = ".deploy--open"
)

// ErrListingUnreachable aborts a run when the listing page cannot be reached.
var ErrListingUnreachable = errors.New("listing page unreachable")

// ContentExtractor captures the payload of the step currently shown.
type ContentExtractor interface {
	Extract(ctx context.Context, nav *navigator.Navigator, cookies []*http.Cookie, step domain.Step) (*domain.Content, error)
}

// Scraper runs traversal passes over a Session.
type Scraper struct {
	contents ContentExtractor
	metrics  *metrics.Metrics
}

// New returns a Scraper. metrics may be nil.
func New(contents ContentExtractor, m *metrics.Metrics) *Scraper {
	return &Scraper{contents: contents, metrics: m}
}

// ListingResult is the outcome of the path and training pass.
type ListingResult struct {
	Paths     []domain.Path
	Trainings []domain.Training
	// PageCount is the number of pages the pager announced (at least 1).
	PageCount    int
	PagesVisited int
	Failures     []error
}

// Complete reports whether every announced page was extracted.
func (r *ListingResult) Complete() bool {
	return r.PagesVisited >= r.PageCount
}

// ScrapePathsAndTrainings extracts every path card of every listing page.
// Only failing to reach the listing aborts; a failing card is skipped.
func (s *Scraper) ScrapePathsAndTrainings(ctx context.Context, sess *Session) (*ListingResult, error) {
	result := &ListingResult{}
	log := sess.log

	if err := sess.enter(StateNavigatingPaths); err != nil {
		return result, err
	}
	if !sess.navigate(ctx, sess.ListingURL()) {
		if ctx.Err() != nil {
			return result, s.interrupted(sess, ctx.Err())
		}
		_ = sess.enter(StateFailed)
		return result, domain.Abort(domain.KindNavigation, "navigate to listing", sess.ListingURL(), ErrListingUnreachable)
	}

	pageCount, err := sess.Pager.PageCount(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, s.interrupted(sess, ctx.Err())
		}
		log.Warn("Could not read page count, assuming one page", logger.Error(err))
	}
	if pageCount == 0 {
		pageCount = 1
	}
	result.PageCount = pageCount
	log.Info("Scraping path listing", logger.Int("pages", pageCount))

	for page := 1; page <= pageCount; page++ {
		if err = ctx.Err(); err != nil {
			return result, s.interrupted(sess, err)
		}
		if err = sess.enter(StateExtractingPathsPage); err != nil {
			return result, err
		}

		if err = s.scrapeListingPage(ctx, sess, page, result); err != nil {
			return result, s.interrupted(sess, err)
		}
		result.PagesVisited++
		s.metrics.RecordPage()

		if page == pageCount {
			break
		}
		if err = sess.enter(StateNextPage); err != nil {
			return result, err
		}
		if !sess.Pager.Advance(ctx, page, pageCount) {
			if ctx.Err() != nil {
				return result, s.interrupted(sess, ctx.Err())
			}
			log.Warn("Stopping pagination early", logger.Int("page", page), logger.Int("pages", pageCount))
			break
		}
	}

	log.Info("Path listing scraped",
		logger.Int("paths", len(result.Paths)),
		logger.Int("trainings", len(result.Trainings)),
		logger.Int("pages_visited", result.PagesVisited),
		logger.Int("skipped", len(result.Failures)),
	)
	return result, sess.enter(StateDone)
}

func (s *Scraper) scrapeListingPage(ctx context.Context, sess *Session, page int, result *ListingResult) error {
	doc, err := sess.Nav.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.skip(sess, &result.Failures, "page", domain.Skip(domain.KindNavigation, "snapshot listing", "page "+strconv.Itoa(page), err))
		return nil
	}
	cardCount := doc.Find(CardSelector).Length()
	sess.log.Debug("Extracting listing page", logger.Int("page", page), logger.Int("cards", cardCount))

	for i := range cardCount {
		if err = ctx.Err(); err != nil {
			return err
		}

		card, cardErr := s.openCard(ctx, sess, i)
		if cardErr != nil {
			if domain.IsAbort(cardErr) {
				return cardErr
			}
			kind := domain.KindNavigation
			if navigator.IsTimeout(cardErr) {
				kind = domain.KindTimeout
			}
			s.skip(sess, &result.Failures, "path", domain.Skip(kind, "open card", cardRef(page, i), cardErr))
			continue
		}

		path, pathErr := extractor.ExtractPath(card)
		if pathErr != nil {
			s.skip(sess, &result.Failures, "path", domain.Skip(domain.KindExtraction, "extract path", cardRef(page, i), pathErr))
			continue
		}
		trainings, rowErrs := extractor.ExtractTrainings(card, path.ID)
		for _, rowErr := range rowErrs {
			s.skip(sess, &result.Failures, "training", domain.Skip(domain.KindExtraction, "extract training", path.ID, rowErr))
		}

		result.Paths = append(result.Paths, path)
		result.Trainings = append(result.Trainings, trainings...)
		s.metrics.RecordEntities("path", 1)
		s.metrics.RecordEntities("training", len(trainings))
	}
	return nil
}

// openCard makes sure the index-th card is expanded and returns a fresh
// selection of it.
func (s *Scraper) openCard(ctx context.Context, sess *Session, index int) (*goquery.Selection, error) {
	state, err := navigator.WaitFor(ctx, sess.Nav, cardStatePredicate(index), sess.scrape.WaitTimeout)
	if err != nil {
		return nil, err
	}

	if state.collapsed {
		if err = sess.Nav.ClickRobust(ctx, navigator.At(ToggleSelector, state.toggleIndex)); err != nil {
			return nil, err
		}
		if _, err = navigator.WaitFor(ctx, sess.Nav, cardOpenPredicate(index), sess.scrape.WaitTimeout); err != nil {
			return nil, err
		}
	}

	doc, err := sess.Nav.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	card := doc.Find(CardSelector).Eq(index)
	if card.Length() == 0 {
		return nil, navigator.ErrElementNotFound
	}
	return card, nil
}

type cardState struct {
	collapsed   bool
	toggleIndex int
}

// cardStatePredicate holds once the index-th card is rendered. A card
// showing the open marker, or no toggle at all, needs no click.
func cardStatePredicate(index int) navigator.Predicate[cardState] {
	return navigator.Predicate[cardState]{
		Description: "path card " + strconv.Itoa(index),
		Eval: func(doc *goquery.Document) (cardState, bool) {
			card := doc.Find(CardSelector).Eq(index)
			if card.Length() == 0 {
				return cardState{}, false
			}
			if card.Find(OpenSelector).Length() > 0 {
				return cardState{}, true
			}
			toggle := card.Find(ToggleSelector).First()
			if toggle.Length() == 0 {
				return cardState{}, true
			}
			return cardState{
				collapsed:   true,
				toggleIndex: doc.Find(ToggleSelector).IndexOfSelection(toggle),
			}, true
		},
	}
}

func cardOpenPredicate(index int) navigator.Predicate[bool] {
	return navigator.Predicate[bool]{
		Description: "path card " + strconv.Itoa(index) + " open",
		Eval: func(doc *goquery.Document) (bool, bool) {
			open := doc.Find(CardSelector).Eq(index).Find(OpenSelector).Length() > 0
			return open, open
		},
	}
}

func (s *Scraper) skip(sess *Session, failures *[]error, entity string, err *domain.ScrapeError) {
	sess.log.Warn("Skipping item", logger.String("entity", entity), logger.Error(err))
	s.metrics.RecordSkip(entity, string(err.Kind))
	*failures = append(*failures, err)
}

// interrupted moves the session to cancelled or failed and returns err.
func (s *Scraper) interrupted(sess *Session, err error) error {
	if ctxDone(err) {
		_ = sess.enter(StateCancelled)
		return err
	}
	_ = sess.enter(StateFailed)
	return err
}

func cardRef(page, index int) string {
	return "page " + strconv.Itoa(page) + " card " + strconv.Itoa(index)
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
