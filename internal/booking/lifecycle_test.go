package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoescola/internal/domain"
)

var brt = time.FixedZone("BRT", -3*3600)

func TestTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from   domain.BookingStatus
		action Action
		want   domain.BookingStatus
		ok     bool
	}{
		{domain.StatusPendingAcceptance, ActionAccept, domain.StatusConfirmed, true},
		{domain.StatusPendingAcceptance, ActionReject, domain.StatusCancelled, true},
		{domain.StatusPendingAcceptance, ActionAutoCancel, domain.StatusCancelled, true},
		{domain.StatusConfirmed, ActionRequestPayment, domain.StatusPendingPayment, true},
		{domain.StatusConfirmed, ActionAccept, "", false},
		{domain.StatusConfirmed, ActionAutoCancel, domain.StatusCancelled, true},
		{domain.StatusPendingPayment, ActionConfirmPayment, domain.StatusScheduled, true},
		{domain.StatusPendingPayment, ActionAutoCancel, domain.StatusCancelled, true},
		{domain.StatusScheduled, ActionComplete, domain.StatusCompleted, true},
		{domain.StatusScheduled, ActionAutoCancel, "", false},
		{domain.StatusCompleted, ActionCancel, "", false},
		{domain.StatusCancelled, ActionAutoCancel, "", false},
		{domain.StatusCancelled, ActionAccept, "", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.from)+"/"+string(tc.action), func(t *testing.T) {
			t.Parallel()
			got, err := Transition(tc.from, tc.action)
			if !tc.ok {
				require.ErrorIs(t, err, domain.ErrInvalidTransition)
				assert.Equal(t, tc.from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAllowed_TerminalStatusesHaveNoActions(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Allowed(domain.StatusCompleted))
	assert.Empty(t, Allowed(domain.StatusCancelled))
	assert.Equal(t, []Action{ActionAccept, ActionReject, ActionCancel, ActionAutoCancel}, Allowed(domain.StatusPendingAcceptance))
}

func TestApply_SetsTimestamps(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 28, 9, 0, 0, 0, brt)
	b := domain.Booking{ID: "b-1", Status: domain.StatusPendingAcceptance}

	accepted, err := Apply(b, ActionAccept, now, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)
	assert.Equal(t, domain.StatusPendingAcceptance, b.Status, "input must not change")

	rejected, err := Apply(b, ActionReject, now, "")
	require.NoError(t, err)
	assert.Equal(t, "reject", rejected.CancellationReason)
	require.NotNil(t, rejected.CancelledAt)

	_, err = Apply(rejected, ActionAccept, now, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 2, 9, 0, 0, 0, brt)
	done := domain.Booking{ID: "b-1", Status: domain.StatusCompleted}

	rated, err := Rate(done, 5, "great", now)
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 5, *rated.Rating)
	assert.Equal(t, domain.StatusCompleted, rated.Status)

	_, err = Rate(rated, 4, "", now)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = Rate(done, 6, "", now)
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = Rate(domain.Booking{Status: domain.StatusScheduled}, 5, "", now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestShouldAutoCancel(t *testing.T) {
	t.Parallel()

	lessonDay := domain.MustDate("2025-03-31")
	pending := domain.Booking{Date: lessonDay, Time: domain.Clock(10, 0), Status: domain.StatusPendingAcceptance}

	dayBefore := time.Date(2025, 3, 30, 23, 59, 0, 0, brt)
	sameDay := time.Date(2025, 3, 31, 0, 0, 0, 0, brt)

	assert.False(t, ShouldAutoCancel(pending, dayBefore, brt))
	assert.True(t, ShouldAutoCancel(pending, sameDay, brt))

	unpaid := pending
	unpaid.Status = domain.StatusPendingPayment
	assert.True(t, ShouldAutoCancel(unpaid, sameDay, brt))

	accepted := pending
	accepted.Status = domain.StatusConfirmed
	assert.False(t, ShouldAutoCancel(accepted, dayBefore, brt))
	assert.True(t, ShouldAutoCancel(accepted, sameDay, brt))

	t.Run("zone decides the calendar day", func(t *testing.T) {
		t.Parallel()
		// 01:00 UTC on the 31st is still the 30th in BRT.
		instant := time.Date(2025, 3, 31, 1, 0, 0, 0, time.UTC)
		assert.False(t, ShouldAutoCancel(pending, instant, brt))
		assert.True(t, ShouldAutoCancel(pending, instant, time.UTC))
	})

	t.Run("idempotent on cancelled booking", func(t *testing.T) {
		t.Parallel()
		cancelled, err := Apply(pending, ActionAutoCancel, sameDay, "")
		require.NoError(t, err)
		assert.False(t, ShouldAutoCancel(cancelled, sameDay, brt))
		assert.False(t, ShouldAutoCancel(cancelled, sameDay.AddDate(0, 0, 5), brt))
	})

	t.Run("paid and finished bookings are left alone", func(t *testing.T) {
		t.Parallel()
		for _, status := range []domain.BookingStatus{domain.StatusScheduled, domain.StatusCompleted} {
			b := pending
			b.Status = status
			assert.False(t, ShouldAutoCancel(b, sameDay, brt), status)
		}
	})
}

func TestShouldComplete(t *testing.T) {
	t.Parallel()

	b := domain.Booking{Date: domain.MustDate("2025-03-31"), Time: domain.Clock(10, 0), Status: domain.StatusScheduled}
	assert.False(t, ShouldComplete(b, time.Date(2025, 3, 31, 10, 59, 0, 0, brt), brt))
	assert.True(t, ShouldComplete(b, time.Date(2025, 3, 31, 11, 0, 0, 0, brt), brt))

	b.Status = domain.StatusPendingPayment
	assert.False(t, ShouldComplete(b, time.Date(2025, 4, 1, 0, 0, 0, 0, brt), brt))
}
