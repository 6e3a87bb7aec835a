package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"
)

// Status describes the schema version of a database.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}

// Manager orchestrates scanning and applying migrations.
type Manager struct {
	executor *Executor
	fsys     fs.FS
	dir      string
	logger   zerolog.Logger
}

// NewManager creates a Manager reading migrations from dir inside fsys.
func NewManager(db *sql.DB, fsys fs.FS, dir string, logger zerolog.Logger) *Manager {
	return &Manager{
		executor: NewExecutor(db),
		fsys:     fsys,
		dir:      dir,
		logger:   logger.With().Str("component", "migration").Logger(),
	}
}

// Run applies every pending migration in version order and stops at the first failure.
func (m *Manager) Run(ctx context.Context) error {
	started := time.Now()
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(status.Pending) == 0 {
		m.logger.Debug().Str("version", status.CurrentVersion).Msg("schema up to date")
		return nil
	}

	m.logger.Info().
		Str("from_version", status.CurrentVersion).
		Int("pending", len(status.Pending)).
		Msg("applying migrations")

	for _, mig := range status.Pending {
		migStarted := time.Now()
		if err := m.executor.Apply(ctx, mig); err != nil {
			m.logger.Error().Err(err).Str("version", mig.Version).Msg("migration failed")
			return err
		}
		m.logger.Info().
			Str("version", mig.Version).
			Str("description", mig.Description).
			Dur("elapsed", time.Since(migStarted)).
			Msg("migration applied")
	}

	m.logger.Info().
		Int("applied", len(status.Pending)).
		Dur("elapsed", time.Since(started)).
		Msg("migrations complete")
	return nil
}

// Status compares the migration files with schema_migrations.
//
// An applied migration whose file content changed is reported as ErrChecksumMismatch.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}
	available, err := Scan(m.fsys, m.dir)
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		byVersion[a.Version] = a
	}

	status := Status{Applied: applied}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	for _, mig := range available {
		a, done := byVersion[mig.Version]
		if !done {
			status.Pending = append(status.Pending, mig)
			continue
		}
		if a.Checksum != "" && a.Checksum != mig.Checksum {
			return Status{}, NewMigrationError(mig.Version, mig.FilePath, "verify checksum",
				fmt.Errorf("%w: recorded %s", ErrChecksumMismatch, a.Checksum))
		}
	}
	return status, nil
}
