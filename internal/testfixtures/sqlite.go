package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
	"github.com/example/autoescola/internal/persistence/sqlite"
	"github.com/example/autoescola/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite database.
type SQLiteHarness struct {
	Store       *sqlite.Store
	Users       persistence.UserRepository
	Profiles    persistence.ProfileRepository
	Instructors persistence.InstructorRepository
	Bookings    persistence.BookingRepository
	Sessions    persistence.SessionRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a database in a temporary directory.
// Close is registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()
	return OpenSQLiteHarness(tb, filepath.Join(tb.TempDir(), "autoescola.db"))
}

// OpenSQLiteHarness opens and migrates the database file at path.
func OpenSQLiteHarness(tb testing.TB, path string) *SQLiteHarness {
	tb.Helper()

	store, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), zerolog.Nop())
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store:       store,
		Users:       store,
		Profiles:    store,
		Instructors: store,
		Bookings:    store,
		Sessions:    store,
		cleanup: func() {
			_ = store.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// SeedUser stores the fixture's account and profile.
func (h *SQLiteHarness) SeedUser(tb testing.TB, fixture UserFixture) UserFixture {
	tb.Helper()
	ctx := context.Background()
	if err := h.Users.CreateUser(ctx, fixture.User()); err != nil {
		tb.Fatalf("failed to seed user %s: %v", fixture.ID, err)
	}
	if err := h.Profiles.CreateProfile(ctx, fixture.Profile()); err != nil {
		tb.Fatalf("failed to seed profile %s: %v", fixture.ID, err)
	}
	return fixture
}

// SeedInstructor stores an instructor account with settings built from opts.
func (h *SQLiteHarness) SeedInstructor(tb testing.TB, opts ...InstructorOption) UserFixture {
	tb.Helper()
	fixture := h.SeedUser(tb, NewUserFixture(domain.RoleInstructor))
	settings := NewInstructorSettings(fixture.ID, opts...)
	ctx := context.Background()
	if err := h.Instructors.UpsertSettings(ctx, settings); err != nil {
		tb.Fatalf("failed to seed settings for %s: %v", fixture.ID, err)
	}
	if err := h.Instructors.ReplaceAvailability(ctx, fixture.ID, settings.Availability); err != nil {
		tb.Fatalf("failed to seed availability for %s: %v", fixture.ID, err)
	}
	return fixture
}

// SeedBooking stores b as is.
func (h *SQLiteHarness) SeedBooking(tb testing.TB, b domain.Booking) domain.Booking {
	tb.Helper()
	if err := h.Bookings.CreateBooking(context.Background(), b); err != nil {
		tb.Fatalf("failed to seed booking %s: %v", b.ID, err)
	}
	return b
}
