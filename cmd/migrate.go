package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/database"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, func(m migrationRunner) error { return m.up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, func(m migrationRunner) error { return m.down() })
			},
		},
	)
	return cmd
}

type migrationRunner struct {
	up   func() error
	down func() error
}

func withDatabase(cmd *cobra.Command, fn func(migrationRunner) error) error {
	cfg, ctx, err := setup(cmd)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	defer func() { _ = log.Sync() }()

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	path := cfg.Database.MigrationsPath
	return fn(migrationRunner{
		up:   func() error { return database.RunMigrations(db, path, log) },
		down: func() error { return database.RollbackMigrations(db, path, log) },
	})
}
