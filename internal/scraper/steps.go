package scraper

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/extractor"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/navigator"
)

// ErrTrainingUnreachable is returned when a training page cannot be reached.
var ErrTrainingUnreachable = errors.New("training page unreachable")

// StepsResult is the outcome of the step pass of one training.
type StepsResult struct {
	TrainingID string
	Steps      []domain.Step
	Failures   []error
}

// ScrapeSteps extracts the steps of a training in document order, each
// tagged with its visual index. An unreachable training page is a
// recoverable error.
func (s *Scraper) ScrapeSteps(ctx context.Context, sess *Session, trainingID string) (*StepsResult, error) {
	result := &StepsResult{TrainingID: trainingID}
	log := sess.log.With(logger.String("training_id", trainingID))

	if err := sess.enter(StateNavigatingTraining); err != nil {
		return result, err
	}

	url := sess.TrainingURL(trainingID)
	if !sess.navigate(ctx, url) {
		if ctx.Err() != nil {
			return result, s.interrupted(sess, ctx.Err())
		}
		_ = sess.enter(StateDone)
		return result, domain.Skip(domain.KindNavigation, "navigate to training", trainingID, ErrTrainingUnreachable)
	}

	if err := sess.Nav.WaitPresent(ctx, extractor.ModuleItemSelector, sess.scrape.WaitTimeout); err != nil {
		if ctx.Err() != nil {
			return result, s.interrupted(sess, ctx.Err())
		}
		_ = sess.enter(StateDone)
		return result, domain.Skip(domain.KindTimeout, "wait for steps", trainingID, err)
	}

	if err := sess.enter(StateExtractingSteps); err != nil {
		return result, err
	}

	doc, err := sess.Nav.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, s.interrupted(sess, ctx.Err())
		}
		return result, domain.Skip(domain.KindNavigation, "snapshot training", trainingID, err)
	}

	items := doc.Find(extractor.ModuleItemSelector)
	for i := range items.Length() {
		step, stepErr := extractor.ExtractStep(items.Eq(i), trainingID, i)
		if stepErr != nil {
			s.skip(sess, &result.Failures, "step", domain.Skip(domain.KindExtraction, "extract step", trainingID, stepErr))
			continue
		}
		result.Steps = append(result.Steps, step)
	}
	s.metrics.RecordEntities("step", len(result.Steps))

	log.Info("Steps scraped", logger.Int("steps", len(result.Steps)), logger.Int("skipped", len(result.Failures)))
	return result, nil
}

// ContentResult is the outcome of the content pass of one training.
type ContentResult struct {
	TrainingID string
	Contents   []domain.Content
	Failures   []error
	// LastIndex is the position in the step list of the last step reached, -1 if none.
	LastIndex int
	// Complete is false when the pass stopped before the last step.
	Complete bool
}

// ScrapeContents first visits the unblock frontier by direct URL so the
// platform unlocks gated steps, then opens every step by clicking its module
// item and captures its payload. A failing capture skips the step; a step
// that cannot be opened stops the pass with a partial result.
func (s *Scraper) ScrapeContents(
	ctx context.Context,
	sess *Session,
	trainingID string,
	steps []domain.Step,
) (*ContentResult, error) {
	result := &ContentResult{TrainingID: trainingID, LastIndex: -1}
	log := sess.log.With(logger.String("training_id", trainingID))

	if err := sess.enter(StateUnblockingSteps); err != nil {
		return result, err
	}
	if len(steps) == 0 {
		result.Complete = true
		return result, sess.enter(StateDone)
	}

	if cookies, err := sess.Page.Cookies(ctx); err == nil && len(cookies) > 0 {
		sess.Cookies = cookies
	}

	if err := s.unblock(ctx, sess, trainingID, steps); err != nil {
		return result, s.interrupted(sess, err)
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return result, s.interrupted(sess, err)
		}
		if err := sess.enter(StateNavigatingStep); err != nil {
			return result, err
		}

		if err := s.openStep(ctx, sess, step); err != nil {
			if ctx.Err() != nil {
				return result, s.interrupted(sess, ctx.Err())
			}
			kind := domain.KindNavigation
			if navigator.IsTimeout(err) {
				kind = domain.KindTimeout
			}
			result.Failures = append(result.Failures, domain.Skip(kind, "open step", step.ID, err))
			log.Error("Content pass stopped",
				logger.Int("last_index", result.LastIndex),
				logger.String("step_id", step.ID),
				logger.Error(err),
			)
			return result, sess.enter(StateDone)
		}
		result.LastIndex = i

		if err := sess.enter(StateExtractingContent); err != nil {
			return result, err
		}
		c, err := s.contents.Extract(ctx, sess.Nav, sess.Cookies, step)
		if err != nil {
			if domain.IsAbort(err) {
				return result, s.interrupted(sess, err)
			}
			var se *domain.ScrapeError
			if !errors.As(err, &se) {
				se = domain.Skip(domain.KindContent, "extract content", step.ID, err)
			}
			s.skip(sess, &result.Failures, "content", se)
			continue
		}
		if c != nil {
			result.Contents = append(result.Contents, *c)
			s.metrics.RecordContent(string(c.Type))
		}
	}

	result.Complete = true
	log.Info("Contents scraped", logger.Int("contents", len(result.Contents)), logger.Int("skipped", len(result.Failures)))
	return result, sess.enter(StateDone)
}

// unblock loads every step of the frontier directly. Failures are logged
// only: a step that stays locked surfaces later when it cannot be opened.
func (s *Scraper) unblock(ctx context.Context, sess *Session, trainingID string, steps []domain.Step) error {
	for _, idx := range extractor.UnblockFrontier(steps) {
		if err := ctx.Err(); err != nil {
			return err
		}

		step := steps[idx]
		url := sess.StepURL(trainingID, step.PlatformID)
		if err := sess.Page.Navigate(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sess.log.Warn("Could not load step to unblock", logger.String("url", url), logger.Error(err))
			continue
		}
		if err := sess.Nav.WaitPresent(ctx, extractor.ModuleItemSelector, sess.scrape.WaitTimeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sess.log.Warn("Module list did not render", logger.String("url", url), logger.Error(err))
		}
	}
	return nil
}

// openStep re-queries the module list, clicks the step's item and waits
// until the page reports that step. The click returns before the
// navigation commits, so the DOM may still show the previous step.
func (s *Scraper) openStep(ctx context.Context, sess *Session, step domain.Step) error {
	_, err := navigator.WaitFor(ctx, sess.Nav,
		navigator.MinCount(extractor.ModuleItemSelector, step.Index+1), sess.scrape.WaitTimeout)
	if err != nil {
		return err
	}
	if err = sess.Nav.ClickRobust(ctx, navigator.At(extractor.ModuleItemSelector, step.Index)); err != nil {
		return err
	}
	_, err = navigator.WaitLocation(ctx, sess.Nav, "step "+step.PlatformID+" to open",
		navigator.PathSuffix("/step/"+step.PlatformID), sess.scrape.WaitTimeout)
	return err
}
