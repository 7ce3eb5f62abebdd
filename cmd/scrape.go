package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/browser"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/content"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/database"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/metrics"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/scraper"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/storage"
)

// reconcileTimeout bounds persistence after the run, which may have been cancelled.
const reconcileTimeout = 2 * time.Minute

func newScrapeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape paths, trainings, steps and contents",
		Long: `Log in, walk the path listing, every training and every step, download
step contents to the configured store and upsert everything into PostgreSQL.
Results gathered before a failure or interrupt are still persisted.`,
		RunE: runScrape,
	}

	flags := cmd.Flags()
	flags.Bool("paths-only", false, "stop after the path and training listing")
	flags.StringSlice("training", nil, "scrape only these stored training ids (repeatable)")
	flags.Bool("resume", false, "scrape the trainings already stored in the database")
	flags.Bool("skip-contents", false, "do not download step contents")
	flags.Bool("migrate", false, "apply pending migrations before scraping")

	_ = viper.BindPFlag("scrape.paths_only", flags.Lookup("paths-only"))
	_ = viper.BindPFlag("scrape.trainings", flags.Lookup("training"))
	_ = viper.BindPFlag("scrape.resume", flags.Lookup("resume"))
	_ = viper.BindPFlag("scrape.skip_contents", flags.Lookup("skip-contents"))
	_ = viper.BindPFlag("scrape.migrate", flags.Lookup("migrate"))

	return cmd
}

func runScrape(cmd *cobra.Command, _ []string) error {
	cfg, ctx, err := setup(cmd)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	if cfg.Metrics.Enabled {
		go func() {
			if serveErr := metrics.Serve(ctx, cfg.Metrics.Address, reg, log); serveErr != nil {
				log.Error("Metrics listener failed", logger.Error(serveErr))
			}
		}()
	}

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if viper.GetBool("scrape.migrate") {
		if err = database.RunMigrations(db, cfg.Database.MigrationsPath, log); err != nil {
			return err
		}
	}

	opts, err := runOptions(ctx, database.NewProgressRepository(db),
		viper.GetStringSlice("scrape.trainings"),
		viper.GetBool("scrape.resume"),
		viper.GetBool("scrape.paths_only"),
	)
	if err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to open content store: %w", err)
	}
	defer func() { _ = store.Close() }()

	provider, err := newSessionProvider(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer provider.Close()

	sess, err := openSession(ctx, provider, cfg, !viper.GetBool("scrape.skip_contents"), log)
	if err != nil {
		return err
	}

	result, runErr := scraper.New(newContentExtractor(cfg, store, sess.Logger()), m).Run(ctx, sess, opts)

	reconcileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
	defer cancel()

	upserts, reconcileErr := database.NewReconciler(db, m, sess.Logger()).Reconcile(reconcileCtx, database.Batch{
		Paths:     result.Paths,
		Trainings: result.Trainings,
		Steps:     result.Steps,
		Contents:  result.Contents,
	})

	printSummary(cmd.OutOrStdout(), result, upserts)

	return errors.Join(runErr, reconcileErr)
}

// errUnknownTrainings is returned when --training names ids that no listing
// run has stored; their steps would violate the trainings foreign key.
var errUnknownTrainings = errors.New("trainings not stored, run a listing scrape first")

// trainingLister reads the training ids already persisted.
type trainingLister interface {
	TrainingIDs(ctx context.Context) ([]string, error)
}

// runOptions maps flags onto the passes of a run. Selected and resumed
// trainings must already be stored.
func runOptions(ctx context.Context, repo trainingLister, selected []string, resume, pathsOnly bool) (scraper.RunOptions, error) {
	opts := scraper.RunOptions{TrainingIDs: selected, PathsOnly: pathsOnly}
	if len(selected) == 0 && !resume {
		return opts, nil
	}

	stored, err := repo.TrainingIDs(ctx)
	if err != nil {
		return opts, err
	}

	if len(selected) == 0 {
		if len(stored) == 0 {
			return opts, errors.New("no stored trainings to resume, run a full scrape first")
		}
		opts.TrainingIDs = stored
		return opts, nil
	}

	known := make(map[string]bool, len(stored))
	for _, id := range stored {
		known[id] = true
	}
	var unknown []string
	for _, id := range selected {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return opts, fmt.Errorf("%w: %s", errUnknownTrainings, strings.Join(unknown, ", "))
	}
	return opts, nil
}

// newSessionProvider starts the browser a scrape drives.
var newSessionProvider = func(ctx context.Context, cfg *config.Config, log logger.Logger) (browser.SessionProvider, error) {
	p, err := browser.NewChromeSessionProvider(ctx, cfg.Browser, cfg.Platform, log)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// openSession logs in and builds the scraping session for one run.
func openSession(
	ctx context.Context,
	provider browser.SessionProvider,
	cfg *config.Config,
	saveContents bool,
	log logger.Logger,
) (*scraper.Session, error) {
	bs, err := provider.Login(ctx)
	if err != nil {
		return nil, err
	}
	return scraper.NewSessionFrom(provider, bs, scraper.SessionConfig{
		Platform:     cfg.Platform,
		Scrape:       cfg.Scrape,
		SaveContents: saveContents && !cfg.Scrape.SkipContents,
	}, log), nil
}

func newContentExtractor(cfg *config.Config, store storage.Store, log logger.Logger) *content.Extractor {
	return content.NewExtractor(content.Config{
		Store:       store,
		Fetcher:     content.NewHTTPFetcher(cfg.Downloader.HTTPTimeout, cfg.Downloader.MaxRetries, cfg.Browser.UserAgent),
		Downloader:  content.NewYtDlp(cfg.Downloader.YtDlpPath, cfg.Downloader.VideoTimeout),
		WorkDir:     cfg.Downloader.WorkDir,
		WaitTimeout: cfg.Scrape.WaitTimeout,
		Logger:      log,
	})
}

func printSummary(w io.Writer, result *scraper.Result, upserts []database.UpsertResult) {
	written := make(map[string]int, len(upserts))
	for _, u := range upserts {
		written[u.Entity] = u.Rows
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Run " + result.RunID)
	t.AppendHeader(table.Row{"Entity", "Scraped", "Upserted"})
	t.AppendRows([]table.Row{
		{"paths", len(result.Paths), written["path"]},
		{"trainings", len(result.Trainings), written["training"]},
		{"steps", len(result.Steps), written["step"]},
		{"contents", len(result.Contents), written["content"]},
	})
	t.AppendFooter(table.Row{"failures", len(result.Failures), ""})
	t.Render()

	if len(result.Incomplete) > 0 {
		fmt.Fprintf(w, "Content pass incomplete for trainings: %v\n", result.Incomplete)
	}
	fmt.Fprintf(w, "Complete: %t, duration: %s\n", result.Complete, result.FinishedAt.Sub(result.StartedAt).Round(time.Second))
}
