package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
	"github.com/example/autoescola/internal/persistence/sqlite"
	"github.com/example/autoescola/internal/persistence/sqlite/migration"
)

var reference = time.Date(2025, time.March, 28, 18, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	cfg := migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "autoescola.db"))
	store, err := sqlite.Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedUser(t *testing.T, store *sqlite.Store, role domain.Role, id string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, persistence.User{
		ID:           id,
		Role:         role,
		Email:        fmt.Sprintf("%s@example.com", id),
		PasswordHash: "hash",
		CreatedAt:    reference,
		UpdatedAt:    reference,
	}))
	require.NoError(t, store.CreateProfile(ctx, persistence.Profile{
		UserID:      id,
		Role:        role,
		Email:       fmt.Sprintf("%s@example.com", id),
		DisplayName: "User " + id,
		CreatedAt:   reference,
		UpdatedAt:   reference,
	}))
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))

	status, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "001", status.CurrentVersion)
	require.Empty(t, status.Pending)
	require.NoError(t, store.Ping(context.Background()))
}
