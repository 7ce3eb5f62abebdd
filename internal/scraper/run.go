package scraper

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// Run outcomes recorded in metrics.
const (
	RunStatusComplete  = "complete"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunOptions selects the passes of a run.
type RunOptions struct {
	// TrainingIDs skips the listing pass and scrapes only these trainings.
	TrainingIDs []string
	// PathsOnly stops after the listing pass.
	PathsOnly bool
}

// Result aggregates every pass of a run.
type Result struct {
	RunID     string
	Paths     []domain.Path
	Trainings []domain.Training
	Steps     []domain.Step
	Contents  []domain.Content
	Failures  []error
	// Incomplete lists the trainings whose content pass stopped early.
	Incomplete []string
	// Complete is true only when no pass stopped early and the run was not aborted.
	Complete   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run executes the listing pass, then the step and content passes of every
// training with a platform id. The returned Result holds everything gathered
// so far even when err is non-nil.
func (s *Scraper) Run(ctx context.Context, sess *Session, opts RunOptions) (*Result, error) {
	result := &Result{RunID: sess.ID.String(), StartedAt: time.Now(), Complete: true}
	s.metrics.RecordRunStarted()

	err := s.run(ctx, sess, opts, result)

	result.FinishedAt = time.Now()
	if err != nil {
		result.Complete = false
	}
	s.metrics.RecordRunFinished(runStatus(err, result), result.FinishedAt.Sub(result.StartedAt))

	sess.log.Info("Scrape run finished",
		logger.Bool("complete", result.Complete),
		logger.Int("paths", len(result.Paths)),
		logger.Int("trainings", len(result.Trainings)),
		logger.Int("steps", len(result.Steps)),
		logger.Int("contents", len(result.Contents)),
		logger.Int("failures", len(result.Failures)),
		logger.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, err
}

func (s *Scraper) run(ctx context.Context, sess *Session, opts RunOptions, result *Result) error {
	trainingIDs := opts.TrainingIDs
	if len(trainingIDs) == 0 {
		listing, err := s.ScrapePathsAndTrainings(ctx, sess)
		result.Paths = listing.Paths
		result.Trainings = listing.Trainings
		result.Failures = append(result.Failures, listing.Failures...)
		if err != nil {
			return err
		}
		if !listing.Complete() {
			result.Complete = false
		}
		trainingIDs = navigableTrainings(listing.Trainings)
	}

	if opts.PathsOnly {
		return nil
	}

	for _, id := range trainingIDs {
		if err := ctx.Err(); err != nil {
			return s.interrupted(sess, err)
		}
		if err := s.scrapeTraining(ctx, sess, id, result); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) scrapeTraining(ctx context.Context, sess *Session, trainingID string, result *Result) error {
	steps, err := s.ScrapeSteps(ctx, sess, trainingID)
	result.Failures = append(result.Failures, steps.Failures...)
	if err != nil {
		if domain.IsAbort(err) {
			return err
		}
		result.Failures = append(result.Failures, err)
		return nil
	}
	result.Steps = append(result.Steps, steps.Steps...)

	if !sess.SaveContents {
		return nil
	}

	contents, err := s.ScrapeContents(ctx, sess, trainingID, steps.Steps)
	result.Contents = append(result.Contents, contents.Contents...)
	result.Failures = append(result.Failures, contents.Failures...)
	if !contents.Complete {
		result.Incomplete = append(result.Incomplete, trainingID)
		result.Complete = false
	}
	return err
}

// navigableTrainings returns the distinct platform ids of trainings, in
// order. Trainings keyed by a synthetic id have no page to visit.
func navigableTrainings(trainings []domain.Training) []string {
	seen := make(map[string]struct{}, len(trainings))
	ids := make([]string, 0, len(trainings))
	for _, t := range trainings {
		if t.PlatformID == "" {
			continue
		}
		if _, ok := seen[t.PlatformID]; ok {
			continue
		}
		seen[t.PlatformID] = struct{}{}
		ids = append(ids, t.PlatformID)
	}
	return ids
}

func runStatus(err error, result *Result) string {
	switch {
	case err == nil && result.Complete:
		return RunStatusComplete
	case err == nil:
		return RunStatusPartial
	case ctxDone(err):
		return RunStatusCancelled
	default:
		return RunStatusFailed
	}
}
