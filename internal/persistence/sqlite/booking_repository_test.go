package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
	"github.com/example/autoescola/internal/persistence/sqlite"
)

func newBooking(id string) persistence.Booking {
	return persistence.Booking{
		ID:              id,
		InstructorID:    "ins-1",
		StudentID:       "stu-1",
		Date:            domain.MustDate("2025-03-31"),
		Time:            domain.MustTimeOfDay("10:00"),
		DurationMinutes: domain.LessonDuration,
		Status:          domain.StatusPendingAcceptance,
		Price:           domain.Units(170),
		Vehicle:         domain.VehicleInstructor,
		HomeService:     true,
		CreatedAt:       reference,
		UpdatedAt:       reference,
	}
}

func bookingStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store := newTestStore(t)
	seedUser(t, store, domain.RoleInstructor, "ins-1")
	seedUser(t, store, domain.RoleStudent, "stu-1")
	seedUser(t, store, domain.RoleStudent, "stu-2")
	return store
}

func TestBookingRepository_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := bookingStore(t)

	b := newBooking("b-1")
	require.NoError(t, store.CreateBooking(ctx, b))

	got, err := store.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, b.Date, got.Date)
	assert.Equal(t, "10:00", got.Time.String())
	assert.Equal(t, domain.Units(170), got.Price)
	assert.True(t, got.HomeService)
	assert.Nil(t, got.AcceptedAt)
	assert.Nil(t, got.Rating)

	_, err = store.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestBookingRepository_OccupyingSlotIsUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := bookingStore(t)

	require.NoError(t, store.CreateBooking(ctx, newBooking("b-1")))

	second := newBooking("b-2")
	second.StudentID = "stu-2"
	err := store.CreateBooking(ctx, second)
	assert.True(t, errors.Is(err, persistence.ErrDuplicate), "got %v", err)

	// A cancelled booking releases the slot.
	cancelled := newBooking("b-1")
	cancelledAt := reference.Add(time.Hour)
	cancelled.Status = domain.StatusCancelled
	cancelled.CancelledAt = &cancelledAt
	cancelled.CancellationReason = "reject"
	cancelled.UpdatedAt = cancelledAt
	require.NoError(t, store.UpdateBooking(ctx, cancelled, domain.StatusPendingAcceptance))

	require.NoError(t, store.CreateBooking(ctx, second))
}

func TestBookingRepository_ConcurrentCreateHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := bookingStore(t)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := newBooking(fmt.Sprintf("b-%d", i))
			if i%2 == 1 {
				b.StudentID = "stu-2"
			}
			err := store.CreateBooking(ctx, b)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, persistence.ErrDuplicate):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestBookingRepository_UpdateIsCompareAndSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := bookingStore(t)
	require.NoError(t, store.CreateBooking(ctx, newBooking("b-1")))

	accepted := newBooking("b-1")
	acceptedAt := reference.Add(time.Hour)
	accepted.Status = domain.StatusConfirmed
	accepted.AcceptedAt = &acceptedAt
	accepted.UpdatedAt = acceptedAt
	require.NoError(t, store.UpdateBooking(ctx, accepted, domain.StatusPendingAcceptance))

	// A second writer still expecting the old status loses.
	rejected := newBooking("b-1")
	rejected.Status = domain.StatusCancelled
	err := store.UpdateBooking(ctx, rejected, domain.StatusPendingAcceptance)
	assert.ErrorIs(t, err, persistence.ErrStaleStatus)

	missing := newBooking("nope")
	assert.ErrorIs(t, store.UpdateBooking(ctx, missing, domain.StatusPendingAcceptance), persistence.ErrNotFound)

	got, err := store.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	require.NotNil(t, got.AcceptedAt)
	assert.True(t, got.AcceptedAt.Equal(acceptedAt))
}

func TestBookingRepository_ListBookings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := bookingStore(t)

	early := newBooking("b-early")
	early.Time = domain.MustTimeOfDay("08:00")
	late := newBooking("b-late")
	late.Time = domain.MustTimeOfDay("15:00")
	late.StudentID = "stu-2"
	other := newBooking("b-other-day")
	other.Date = domain.MustDate("2025-04-01")
	done := newBooking("b-done")
	done.Time = domain.MustTimeOfDay("11:00")
	done.Status = domain.StatusCompleted
	rating := 5
	done.Rating = &rating
	done.RatingComment = "great"

	for _, b := range []persistence.Booking{late, other, early, done} {
		require.NoError(t, store.CreateBooking(ctx, b))
	}

	monday := domain.MustDate("2025-03-31")
	occupying, err := store.ListBookings(ctx, persistence.BookingFilter{
		InstructorID: "ins-1",
		Date:         &monday,
		Statuses:     domain.OccupyingStatuses,
	})
	require.NoError(t, err)
	require.Len(t, occupying, 2)
	assert.Equal(t, "b-early", occupying[0].ID)
	assert.Equal(t, "b-late", occupying[1].ID)

	forStudent, err := store.ListBookings(ctx, persistence.BookingFilter{StudentID: "stu-1"})
	require.NoError(t, err)
	require.Len(t, forStudent, 3)
	assert.Equal(t, "b-done", forStudent[1].ID)
	require.NotNil(t, forStudent[1].Rating)
	assert.Equal(t, 5, *forStudent[1].Rating)
	assert.Equal(t, "great", forStudent[1].RatingComment)

	none, err := store.ListBookings(ctx, persistence.BookingFilter{StudentID: "stu-9"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestBookingRepository_RejectsUnknownParticipants(t *testing.T) {
	t.Parallel()
	store := bookingStore(t)

	b := newBooking("b-1")
	b.StudentID = "ghost"
	err := store.CreateBooking(context.Background(), b)
	assert.ErrorIs(t, err, persistence.ErrConstraintViolation)
}
