package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

func TestInstructorRepository(t *testing.T) {
	t.Parallel()

	t.Run("defaults without stored settings", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		seedUser(t, store, domain.RoleInstructor, "ins-1")

		settings, err := store.GetInstructor(context.Background(), "ins-1")
		require.NoError(t, err)
		assert.Equal(t, "User ins-1", settings.DisplayName)
		assert.True(t, settings.OffersInstructorVehicle)
		assert.False(t, settings.AcceptsOwnVehicle)
		assert.Nil(t, settings.OwnVehiclePrice)
		assert.True(t, settings.Availability.IsZero())
	})

	t.Run("unknown or non-instructor ids are not found", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		seedUser(t, store, domain.RoleStudent, "stu-1")

		_, err := store.GetInstructor(context.Background(), "stu-1")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		_, err = store.GetInstructor(context.Background(), "nobody")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("stores settings and replaces availability", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := newTestStore(t)
		seedUser(t, store, domain.RoleInstructor, "ins-1")

		own := domain.Units(150)
		require.NoError(t, store.UpsertSettings(ctx, persistence.InstructorSettings{
			InstructorID:            "ins-1",
			PricePerClass:           domain.Units(120),
			OwnVehiclePrice:         &own,
			HomeServicePrice:        domain.Units(20),
			OffersInstructorVehicle: true,
			AcceptsOwnVehicle:       true,
			OffersHomeService:       true,
			UpdatedAt:               reference,
		}))

		var rule domain.AvailabilityRule
		rule.SetWeekly(time.Monday, domain.Window{Start: domain.MustTimeOfDay("08:00"), End: domain.MustTimeOfDay("12:00")})
		rule.Override(domain.MustDate("2025-04-02"), domain.Window{Start: domain.MustTimeOfDay("14:00"), End: domain.MustTimeOfDay("16:00")})
		rule.Block(domain.MustDate("2025-04-07"))
		require.NoError(t, store.ReplaceAvailability(ctx, "ins-1", rule))

		settings, err := store.GetInstructor(ctx, "ins-1")
		require.NoError(t, err)
		assert.Equal(t, domain.Units(120), settings.PricePerClass)
		require.NotNil(t, settings.OwnVehiclePrice)
		assert.Equal(t, own, *settings.OwnVehiclePrice)
		assert.True(t, settings.Instructor().Supports(domain.VehicleOwn))
		assert.Equal(t, rule.Weekly, settings.Availability.Weekly)
		assert.Equal(t, rule.Overrides, settings.Availability.Overrides)
		assert.True(t, settings.Availability.IsBlocked(domain.MustDate("2025-04-07")))

		var replacement domain.AvailabilityRule
		replacement.SetWeekly(time.Tuesday, domain.Window{Start: domain.MustTimeOfDay("09:00"), End: domain.MustTimeOfDay("11:00")})
		require.NoError(t, store.ReplaceAvailability(ctx, "ins-1", replacement))

		settings, err = store.GetInstructor(ctx, "ins-1")
		require.NoError(t, err)
		assert.Len(t, settings.Availability.Weekly, 1)
		assert.Empty(t, settings.Availability.Overrides)
		assert.Empty(t, settings.Availability.Blocked)
	})

	t.Run("invalid windows violate constraints", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		seedUser(t, store, domain.RoleInstructor, "ins-1")

		var rule domain.AvailabilityRule
		rule.SetWeekly(time.Monday, domain.Window{Start: domain.MustTimeOfDay("12:00"), End: domain.MustTimeOfDay("08:00")})
		err := store.ReplaceAvailability(context.Background(), "ins-1", rule)
		assert.ErrorIs(t, err, persistence.ErrConstraintViolation)
	})
}
