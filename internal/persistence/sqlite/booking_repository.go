package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite
type BookingRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewBookingRepository creates a new SQLite booking repository
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const bookingColumns = `id, instructor_id, student_id, lesson_date, lesson_time, duration_minutes, status,
	price_cents, vehicle_type, home_service, created_at, updated_at, accepted_at, paid_at,
	cancelled_at, cancellation_reason, rating, rating_comment`

// CreateBooking inserts a booking. The partial unique index on occupying
// statuses turns a second claim on the same slot into persistence.ErrDuplicate.
func (r *BookingRepository) CreateBooking(ctx context.Context, b persistence.Booking) error {
	if b.ID == "" || b.InstructorID == "" || b.StudentID == "" || b.Date.IsZero() || !b.Status.Valid() {
		return persistence.ErrConstraintViolation
	}
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, `
			INSERT INTO bookings (`+bookingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.InstructorID, b.StudentID, b.Date.String(), b.Time.String(), durationOf(b), string(b.Status),
			int64(b.Price), string(b.Vehicle), b.HomeService, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
			nullTime(b.AcceptedAt), nullTime(b.PaidAt), nullTime(b.CancelledAt), b.CancellationReason,
			nullRating(b.Rating), b.RatingComment,
		)
		return r.mapper.MapError(err)
	})
}

// GetBooking retrieves a booking by ID.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	if id == "" {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	b, err := scanBooking(r.pool.DB().QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}
	return b, nil
}

// ListBookings returns bookings matching filter ordered by date and time.
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.InstructorID != "" {
		clauses = append(clauses, "instructor_id = ?")
		args = append(args, filter.InstructorID)
	}
	if filter.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.Date != nil {
		clauses = append(clauses, "lesson_date = ?")
		args = append(args, filter.Date.String())
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY lesson_date ASC, lesson_time ASC, created_at ASC"

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	bookings := make([]persistence.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBooking writes the mutable booking fields when the stored status is
// still expected. A missing booking yields persistence.ErrNotFound; a booking
// whose status moved on yields persistence.ErrStaleStatus.
func (r *BookingRepository) UpdateBooking(ctx context.Context, b persistence.Booking, expected domain.BookingStatus) error {
	if !b.Status.Valid() {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = ?, updated_at = ?, accepted_at = ?, paid_at = ?, cancelled_at = ?,
				cancellation_reason = ?, rating = ?, rating_comment = ?
			WHERE id = ? AND status = ?`,
			string(b.Status), formatTime(b.UpdatedAt), nullTime(b.AcceptedAt), nullTime(b.PaidAt),
			nullTime(b.CancelledAt), b.CancellationReason, nullRating(b.Rating), b.RatingComment,
			b.ID, string(expected),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows > 0 {
			return nil
		}

		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, b.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		if err != nil {
			return r.mapper.MapError(err)
		}
		return persistence.ErrStaleStatus
	})
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		b                            persistence.Booking
		date, lessonTime             string
		status, vehicle              string
		price                        int64
		createdAt, updatedAt         string
		acceptedAt, paidAt, cancelAt sql.NullString
		rating                       sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.InstructorID, &b.StudentID, &date, &lessonTime, &b.DurationMinutes, &status,
		&price, &vehicle, &b.HomeService, &createdAt, &updatedAt, &acceptedAt, &paidAt,
		&cancelAt, &b.CancellationReason, &rating, &b.RatingComment); err != nil {
		return persistence.Booking{}, err
	}

	var err error
	if b.Date, err = domain.ParseDate(date); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse lesson_date: %w", err)
	}
	if b.Time, err = domain.ParseTimeOfDay(lessonTime); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse lesson_time: %w", err)
	}
	b.Status = domain.BookingStatus(status)
	b.Vehicle = domain.VehicleType(vehicle)
	b.Price = domain.Money(price)
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if b.AcceptedAt, err = parseNullTime(acceptedAt); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse accepted_at: %w", err)
	}
	if b.PaidAt, err = parseNullTime(paidAt); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse paid_at: %w", err)
	}
	if b.CancelledAt, err = parseNullTime(cancelAt); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse cancelled_at: %w", err)
	}
	if rating.Valid {
		v := int(rating.Int64)
		b.Rating = &v
	}
	return b, nil
}

func durationOf(b persistence.Booking) int {
	if b.DurationMinutes <= 0 {
		return domain.LessonDuration
	}
	return b.DurationMinutes
}

func nullRating(rating *int) sql.NullInt64 {
	if rating == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*rating), Valid: true}
}
