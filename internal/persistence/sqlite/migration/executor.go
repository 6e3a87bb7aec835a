package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Executor runs migrations and tracks them in schema_migrations.
type Executor struct {
	db  *sql.DB
	now func() time.Time
}

// NewExecutor creates an Executor over db.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db, now: time.Now}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist.
func (e *Executor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// Apply runs migration and records it in one transaction.
func (e *Executor) Apply(ctx context.Context, m Migration) (err error) {
	started := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return NewMigrationError(m.Version, m.FilePath, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range splitStatements(m.SQL) {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return NewMigrationError(m.Version, m.FilePath, fmt.Sprintf("execute statement %d", i+1),
				fmt.Errorf("%w: %v", ErrMigrationFailed, execErr))
		}
	}

	elapsed := e.now().Sub(started)
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		m.Version, e.now().UTC().Format(time.RFC3339), m.Checksum, elapsed.Milliseconds(),
	); err != nil {
		return NewMigrationError(m.Version, m.FilePath, "record migration", err)
	}

	if err = tx.Commit(); err != nil {
		return NewMigrationError(m.Version, m.FilePath, "commit transaction", err)
	}
	return nil
}

// Applied returns all applied migrations ordered by version.
func (e *Executor) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT version, applied_at, execution_time_ms, checksum
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			a         AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&a.Version, &appliedAt, &elapsedMs, &a.Checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		if a.AppliedAt, err = time.Parse(time.RFC3339, appliedAt); err != nil {
			return nil, fmt.Errorf("parse applied_at of %s: %w", a.Version, err)
		}
		a.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// IsApplied reports whether version has been recorded.
func (e *Executor) IsApplied(ctx context.Context, version string) (bool, error) {
	var one int
	err := e.db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, version).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check version %s: %w", version, err)
	}
	return true, nil
}
