// Package migration applies versioned SQL files to a SQLite database.
//
// Files are read from an fs.FS (usually an embed.FS) and must be named
// {version}_{description}.sql, e.g. "001_initial_schema.sql". Applied versions
// are tracked in the schema_migrations table together with a checksum of the
// file content, so edited migrations are detected instead of silently skipped.
//
// Example usage:
//
//	manager := migration.NewManager(db, migrationFiles, "migrations", logger)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
