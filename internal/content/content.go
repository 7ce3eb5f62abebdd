// Package content captures the payload of a step (rich text, PDF or video)
// from the step page currently open in the browser.
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/extractor"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/navigator"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/storage"
)

const (
	defaultWaitTimeout = 10 * time.Second
	workDirPerm        = 0o755
	opExtract          = "extract content"
)

// ErrEmptyPayload is returned when a step renders an empty payload.
var ErrEmptyPayload = errors.New("empty payload")

// Config wires an Extractor.
type Config struct {
	Store      storage.Store
	Fetcher    Fetcher
	Downloader VideoDownloader
	// WorkDir stages video files before they are stored.
	WorkDir     string
	WaitTimeout time.Duration
	Logger      logger.Logger
}

// Extractor captures step payloads into a Store.
type Extractor struct {
	store       storage.Store
	fetcher     Fetcher
	downloader  VideoDownloader
	workDir     string
	waitTimeout time.Duration
	log         logger.Logger
}

// NewExtractor returns an Extractor.
func NewExtractor(cfg Config) *Extractor {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Extractor{
		store:       cfg.Store,
		fetcher:     cfg.Fetcher,
		downloader:  cfg.Downloader,
		workDir:     cfg.WorkDir,
		waitTimeout: cfg.WaitTimeout,
		log:         cfg.Logger,
	}
}

// Extract captures the payload of step from the page nav is showing. It
// returns nil and no error for step types that carry no payload. A file that
// is already stored is not downloaded again. Failures are recoverable
// ScrapeErrors unless the context ended.
func (e *Extractor) Extract(
	ctx context.Context,
	nav *navigator.Navigator,
	cookies []*http.Cookie,
	step domain.Step,
) (*domain.Content, error) {
	var err error
	switch step.Type {
	case domain.StepTypeText:
		err = e.captureText(ctx, nav, step)
	case domain.StepTypeDocument:
		err = e.captureDocument(ctx, nav, cookies, step)
	case domain.StepTypeVideo:
		err = e.captureVideo(ctx, nav, step)
	case domain.StepTypeQuiz, domain.StepTypeIframe, domain.StepTypeUnknown:
		e.log.Debug("Step has no content to capture",
			logger.String("step_id", step.ID),
			logger.String("type", string(step.Type)),
		)
		return nil, nil
	default:
		return nil, domain.Skip(domain.KindContent, opExtract, step.ID,
			fmt.Errorf("unhandled step type %q", step.Type))
	}

	if err != nil {
		return nil, classify(step.ID, err)
	}

	contentType, _ := step.Type.ContentType()
	c := domain.NewContent(step, contentType)
	return &c, nil
}

func classify(stepID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if navigator.IsTimeout(err) {
		return domain.Skip(domain.KindTimeout, opExtract, stepID, err)
	}
	return domain.Skip(domain.KindContent, opExtract, stepID, err)
}

// stored reports whether the step's file is already in the store.
func (e *Extractor) stored(ctx context.Context, step domain.Step, t domain.ContentType) (string, bool, error) {
	name := domain.ContentFilename(step.ID, t)
	exists, err := e.store.Exists(ctx, name)
	if err != nil {
		return name, false, err
	}
	if exists {
		e.log.Info("Content already stored, skipping download",
			logger.String("step_id", step.ID),
			logger.String("filename", name),
		)
	}
	return name, exists, nil
}

func (e *Extractor) captureText(ctx context.Context, nav *navigator.Navigator, step domain.Step) error {
	name, exists, err := e.stored(ctx, step, domain.ContentTypeText)
	if err != nil || exists {
		return err
	}

	if err = nav.WaitPresent(ctx, extractor.TextRenderSelector, e.waitTimeout); err != nil {
		return err
	}
	doc, err := nav.Snapshot(ctx)
	if err != nil {
		return err
	}
	html, err := extractor.TextContent(doc)
	if err != nil {
		return err
	}
	if strings.TrimSpace(html) == "" {
		return ErrEmptyPayload
	}

	return e.store.Put(ctx, name, strings.NewReader(html), int64(len(html)), domain.ContentTypeText.MIMEType())
}

func (e *Extractor) captureDocument(
	ctx context.Context,
	nav *navigator.Navigator,
	cookies []*http.Cookie,
	step domain.Step,
) error {
	name, exists, err := e.stored(ctx, step, domain.ContentTypeDocument)
	if err != nil || exists {
		return err
	}

	if err = nav.WaitPresent(ctx, extractor.PDFRendererSelector, e.waitTimeout); err != nil {
		return err
	}
	doc, err := nav.Snapshot(ctx)
	if err != nil {
		return err
	}
	src, err := extractor.DocumentSource(doc)
	if err != nil {
		return err
	}

	body, err := e.fetcher.Fetch(ctx, src, cookies)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return ErrEmptyPayload
	}

	e.log.Debug("Downloaded document", logger.String("step_id", step.ID), logger.Int("bytes", len(body)))
	return e.store.Put(ctx, name, bytes.NewReader(body), int64(len(body)), domain.ContentTypeDocument.MIMEType())
}

func (e *Extractor) captureVideo(ctx context.Context, nav *navigator.Navigator, step domain.Step) error {
	name, exists, err := e.stored(ctx, step, domain.ContentTypeVideo)
	if err != nil || exists {
		return err
	}

	embed, err := navigator.WaitFor(ctx, nav,
		navigator.AttrContains(extractor.IframeSelector, "src", extractor.VideoEmbedMarker), e.waitTimeout)
	if err != nil {
		return err
	}
	playerURL, err := extractor.VideoPlayerURL(embed)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(e.workDir, workDirPerm); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	staged := filepath.Join(e.workDir, name)
	defer os.Remove(staged) //nolint:errcheck // staging file is disposable

	e.log.Info("Downloading video", logger.String("step_id", step.ID), logger.String("url", playerURL))
	if err = e.downloader.Download(ctx, playerURL, staged); err != nil {
		return err
	}

	f, err := os.Open(staged)
	if err != nil {
		return fmt.Errorf("failed to open downloaded video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat downloaded video: %w", err)
	}
	if info.Size() == 0 {
		return ErrEmptyPayload
	}
	return e.store.Put(ctx, name, f, info.Size(), domain.ContentTypeVideo.MIMEType())
}
