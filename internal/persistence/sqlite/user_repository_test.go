package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

func TestUserRepository(t *testing.T) {
	t.Parallel()

	t.Run("creates and reads users per role", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := newTestStore(t)

		user := persistence.User{
			ID:           "u-1",
			Role:         domain.RoleStudent,
			Email:        " Ana@Example.com ",
			PasswordHash: "hash",
			CreatedAt:    reference,
			UpdatedAt:    reference,
		}
		require.NoError(t, store.CreateUser(ctx, user))

		fetched, err := store.GetUser(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", fetched.Email)
		assert.Equal(t, domain.RoleStudent, fetched.Role)
		assert.True(t, fetched.CreatedAt.Equal(reference))

		byEmail, err := store.GetUserByEmail(ctx, domain.RoleStudent, "ANA@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u-1", byEmail.ID)

		_, err = store.GetUserByEmail(ctx, domain.RoleInstructor, "ana@example.com")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		// The same email may register once per role.
		instructor := user
		instructor.ID = "u-2"
		instructor.Role = domain.RoleInstructor
		require.NoError(t, store.CreateUser(ctx, instructor))
	})

	t.Run("rejects duplicate email within a role", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := newTestStore(t)

		user := persistence.User{ID: "u-1", Role: domain.RoleAdmin, Email: "a@example.com", PasswordHash: "h", CreatedAt: reference, UpdatedAt: reference}
		require.NoError(t, store.CreateUser(ctx, user))

		user.ID = "u-2"
		err := store.CreateUser(ctx, user)
		assert.True(t, errors.Is(err, persistence.ErrDuplicate), "got %v", err)
	})

	t.Run("deletes users with their profile", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := newTestStore(t)
		seedUser(t, store, domain.RoleStudent, "u-1")

		require.NoError(t, store.DeleteUser(ctx, "u-1"))
		_, err := store.GetUser(ctx, "u-1")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		_, err = store.GetProfile(ctx, domain.RoleStudent, "u-1")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		assert.ErrorIs(t, store.DeleteUser(ctx, "u-1"), persistence.ErrNotFound)
	})

	t.Run("rejects incomplete users", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)

		err := store.CreateUser(context.Background(), persistence.User{ID: "u-1", Role: "guest", PasswordHash: "h"})
		assert.ErrorIs(t, err, persistence.ErrConstraintViolation)
	})
}

func TestProfileRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	seedUser(t, store, domain.RoleInstructor, "ins-1")

	err := store.CreateProfile(ctx, persistence.Profile{UserID: "ins-1", Role: domain.RoleInstructor, CreatedAt: reference, UpdatedAt: reference})
	assert.ErrorIs(t, err, persistence.ErrDuplicate)

	profile, err := store.GetProfile(ctx, domain.RoleInstructor, "ins-1")
	require.NoError(t, err)
	assert.Nil(t, profile.PhotoURL)
	assert.False(t, profile.Identity().ProfileComplete)

	photo := "avatars/ins-1.png"
	profile.DisplayName = "Carlos Souza"
	profile.Phone = "+55 11 91234-5678"
	profile.PhotoURL = &photo
	profile.LicenseNumber = "SP-123"
	profile.VehicleDescription = "Onix 2022"
	profile.UpdatedAt = reference.Add(time.Hour)
	require.NoError(t, store.UpdateProfile(ctx, profile))

	updated, err := store.GetProfile(ctx, domain.RoleInstructor, "ins-1")
	require.NoError(t, err)
	require.NotNil(t, updated.PhotoURL)
	assert.Equal(t, photo, *updated.PhotoURL)
	assert.True(t, updated.Identity().ProfileComplete)

	_, err = store.GetProfile(ctx, domain.RoleStudent, "ins-1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	missing := profile
	missing.UserID = "nobody"
	assert.ErrorIs(t, store.UpdateProfile(ctx, missing), persistence.ErrNotFound)
}
