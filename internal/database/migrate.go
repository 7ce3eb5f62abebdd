package database

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" //nolint:blankimports // File source driver
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// DefaultMigrationsPath is used when the config leaves the path empty.
const DefaultMigrationsPath = "migrations"

// RunMigrations applies every pending up migration. No pending migration is
// not an error.
func RunMigrations(db *sqlx.DB, migrationsPath string, log logger.Logger) error {
	m, path, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}

	if upErr := m.Up(); upErr != nil {
		if errors.Is(upErr, migrate.ErrNoChange) {
			log.Info("No pending migrations", logger.String("migrations_path", path))
			return nil
		}
		return fmt.Errorf("run migrations: %w", upErr)
	}

	log.Info("Migrations applied successfully", logger.String("migrations_path", path))
	return nil
}

// RollbackMigrations reverts the last applied migration.
func RollbackMigrations(db *sqlx.DB, migrationsPath string, log logger.Logger) error {
	m, path, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}

	if stepErr := m.Steps(-1); stepErr != nil {
		if errors.Is(stepErr, migrate.ErrNoChange) {
			log.Info("No migration to roll back", logger.String("migrations_path", path))
			return nil
		}
		return fmt.Errorf("roll back migration: %w", stepErr)
	}

	log.Info("Rolled back last migration", logger.String("migrations_path", path))
	return nil
}

func newMigrator(db *sqlx.DB, migrationsPath string) (*migrate.Migrate, string, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, "", fmt.Errorf("create postgres driver: %w", err)
	}

	if migrationsPath == "" {
		migrationsPath = DefaultMigrationsPath
	}
	if absPath, absErr := filepath.Abs(migrationsPath); absErr == nil {
		migrationsPath = absPath
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, "", fmt.Errorf("create migrate instance: %w", err)
	}
	return m, migrationsPath, nil
}
