package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/browser"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/navigator"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/pagination"
)

// SessionConfig holds everything a Session needs besides the page.
type SessionConfig struct {
	Platform config.PlatformConfig
	Scrape   config.ScrapeConfig
	// SaveContents enables the content pass.
	SaveContents bool
}

// Session is the state of one scrape run. It owns the page for the length of
// the run and is not safe for concurrent use.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time

	Page    browser.Page
	Nav     *navigator.Navigator
	Pager   *pagination.Controller
	Cookies []*http.Cookie

	SaveContents bool

	platform config.PlatformConfig
	scrape   config.ScrapeConfig
	log      logger.Logger

	state State
	trail []State
}

// NewSession builds the per-run session over an authenticated page.
func NewSession(page browser.Page, cookies []*http.Cookie, cfg SessionConfig, log logger.Logger) *Session {
	id := uuid.New()
	log = log.With(logger.String("run_id", id.String()))

	nav := navigator.New(page, log, cfg.Scrape.PollInterval)
	pager := pagination.New(nav, log,
		pagination.WithWaitTimeout(cfg.Scrape.WaitTimeout),
		pagination.WithAdvanceTimeout(cfg.Scrape.PaginationTimeout),
		pagination.WithSettleDelay(cfg.Scrape.SettleDelay),
	)

	return &Session{
		ID:           id,
		StartedAt:    time.Now(),
		Page:         page,
		Nav:          nav,
		Pager:        pager,
		Cookies:      cookies,
		SaveContents: cfg.SaveContents,
		platform:     cfg.Platform,
		scrape:       cfg.Scrape,
		log:          log,
		state:        StateIdle,
		trail:        []State{StateIdle},
	}
}

// NewSessionFrom builds a session over the provider's current page with the
// cookies of its login.
func NewSessionFrom(provider browser.SessionProvider, bs *browser.Session, cfg SessionConfig, log logger.Logger) *Session {
	return NewSession(provider.CurrentPage(), bs.Cookies, cfg, log)
}

// State returns the current traversal state.
func (s *Session) State() State {
	return s.state
}

// Trail returns every state the session has entered, in order.
func (s *Session) Trail() []State {
	return append([]State(nil), s.trail...)
}

// Logger returns the run-scoped logger.
func (s *Session) Logger() logger.Logger {
	return s.log
}

func (s *Session) enter(to State) error {
	if err := ValidateTransition(s.state, to); err != nil {
		s.log.Error("Rejected state transition", logger.Error(err))
		return err
	}
	s.state = to
	s.trail = append(s.trail, to)
	return nil
}

// ListingURL is the paginated path listing.
func (s *Session) ListingURL() string {
	return s.platform.TrainingURL
}

// TrainingURL is the detail page of a training.
func (s *Session) TrainingURL(trainingID string) string {
	return fmt.Sprintf("%s/view/%s/", strings.TrimSuffix(s.platform.TrainingURL, "/"), trainingID)
}

// StepURL is the detail page of a step.
func (s *Session) StepURL(trainingID, stepPlatformID string) string {
	return fmt.Sprintf("%s/view/%s/step/%s", strings.TrimSuffix(s.platform.TrainingURL, "/"), trainingID, stepPlatformID)
}

func (s *Session) navigate(ctx context.Context, url string) bool {
	return s.Nav.NavigateTo(ctx, url, s.scrape.NavigationAttempts, s.scrape.NavigationDelay)
}
