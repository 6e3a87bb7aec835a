// Package sqlite implements the persistence repositories on SQLite.
package sqlite

import (
	"context"
	"embed"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/persistence"
	"github.com/example/autoescola/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store bundles every SQLite repository over one connection pool.
type Store struct {
	*UserRepository
	*ProfileRepository
	*InstructorRepository
	*BookingRepository
	*SessionRepository

	pool   *ConnectionPool
	logger zerolog.Logger
}

var (
	_ persistence.UserRepository       = (*Store)(nil)
	_ persistence.ProfileRepository    = (*Store)(nil)
	_ persistence.InstructorRepository = (*Store)(nil)
	_ persistence.BookingRepository    = (*Store)(nil)
	_ persistence.SessionRepository    = (*Store)(nil)
)

// Open connects to the database described by config. Call Migrate before use.
func Open(config migration.SQLiteConfig, logger zerolog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Store{
		UserRepository:       NewUserRepository(pool),
		ProfileRepository:    NewProfileRepository(pool),
		InstructorRepository: NewInstructorRepository(pool),
		BookingRepository:    NewBookingRepository(pool),
		SessionRepository:    NewSessionRepository(pool),
		pool:                 pool,
		logger:               logger,
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := migration.NewManager(s.pool.DB(), migrationFiles, "migrations", s.logger).Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending migrations.
func (s *Store) MigrationStatus(ctx context.Context) (migration.Status, error) {
	return migration.NewManager(s.pool.DB(), migrationFiles, "migrations", s.logger).Status(ctx)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
