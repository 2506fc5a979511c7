package migrations

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/bun"

	"ms-docservices/internal/logger"
)

// Options configures the migration run.
type Options struct {
	// Dir is the directory containing migration files.
	Dir string
	// AutoMigrate runs pending migrations on startup.
	AutoMigrate bool
	// SeedData controls whether the catalog seed migration runs; when false
	// only the schema migration (version 1) is applied.
	SeedData bool
}

func DefaultOptions() Options {
	return Options{
		Dir:         "./migrations",
		AutoMigrate: true,
		SeedData:    false,
	}
}

// Runner applies schema and seed migrations against the bun connection.
type Runner struct {
	bunDB    *bun.DB
	options  Options
	logger   *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(bunDB *bun.DB, opts Options, log *logger.Logger) *Runner {
	return &Runner{
		bunDB:   bunDB,
		options: opts,
		logger:  log,
	}
}

func (r *Runner) initialize() error {
	driver, err := postgres.WithInstance(r.bunDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	if _, err := os.Stat(r.options.Dir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.options.Dir)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.options.Dir),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

// Run applies pending migrations. With SeedData off, only the schema
// migration is applied; seed migrations come after it in the sequence.
func (r *Runner) Run() error {
	if r.migrator == nil {
		if err := r.initialize(); err != nil {
			return err
		}
	}

	if r.options.SeedData {
		r.logger.Info("DB", "running all migrations including catalog seed")
		if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		r.logger.Info("DB", "running schema migration only")
		version, dirty, err := r.migrator.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		if dirty {
			r.logger.Warn("DB", "detected dirty migration, forcing current version")
			if err := r.migrator.Force(int(version)); err != nil {
				return fmt.Errorf("failed to fix dirty migration: %w", err)
			}
		}
		if errors.Is(err, migrate.ErrNilVersion) {
			if err := r.migrator.Migrate(1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("failed to run schema migration: %w", err)
			}
		}
	}

	if version, _, err := r.migrator.Version(); err == nil {
		r.logger.Info("DB", fmt.Sprintf("current schema version: %d", version))
	} else if !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	return nil
}

// Down rolls back all migrations.
func (r *Runner) Down() error {
	if r.migrator == nil {
		if err := r.initialize(); err != nil {
			return err
		}
	}
	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Close frees the migrator's resources.
func (r *Runner) Close() error {
	if r.migrator != nil {
		sourceErr, databaseErr := r.migrator.Close()
		if sourceErr != nil {
			return fmt.Errorf("error closing migrator source: %w", sourceErr)
		}
		if databaseErr != nil {
			return fmt.Errorf("error closing migrator database: %w", databaseErr)
		}
	}
	return nil
}
