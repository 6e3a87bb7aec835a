package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

// InstructorRepository implements persistence.InstructorRepository using SQLite
type InstructorRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewInstructorRepository creates a new SQLite instructor repository
func NewInstructorRepository(pool *ConnectionPool) *InstructorRepository {
	return &InstructorRepository{pool: pool, mapper: NewErrorMapper()}
}

// GetInstructor loads settings and availability of the instructor with id.
// Instructors without stored settings get the column defaults.
func (r *InstructorRepository) GetInstructor(ctx context.Context, id string) (persistence.InstructorSettings, error) {
	var settings persistence.InstructorSettings
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var (
			ownPrice   sql.NullInt64
			updatedAt  sql.NullString
			price      sql.NullInt64
			homePrice  sql.NullInt64
			offersCar  sql.NullBool
			acceptsOwn sql.NullBool
			offersHome sql.NullBool
		)
		err := tx.QueryRowContext(ctx, `
			SELECT p.user_id, p.display_name,
				s.price_per_class_cents, s.own_vehicle_price_cents, s.home_service_price_cents,
				s.offers_instructor_vehicle, s.accepts_own_vehicle, s.offers_home_service, s.updated_at
			FROM profiles p
			LEFT JOIN instructor_settings s ON s.instructor_id = p.user_id
			WHERE p.role = ? AND p.user_id = ?`, string(domain.RoleInstructor), id,
		).Scan(&settings.InstructorID, &settings.DisplayName, &price, &ownPrice, &homePrice,
			&offersCar, &acceptsOwn, &offersHome, &updatedAt)
		if err != nil {
			return r.mapper.MapError(err)
		}

		settings.PricePerClass = domain.Money(price.Int64)
		settings.HomeServicePrice = domain.Money(homePrice.Int64)
		if ownPrice.Valid {
			own := domain.Money(ownPrice.Int64)
			settings.OwnVehiclePrice = &own
		}
		settings.OffersInstructorVehicle = !offersCar.Valid || offersCar.Bool
		settings.AcceptsOwnVehicle = acceptsOwn.Bool
		settings.OffersHomeService = offersHome.Bool
		if updatedAt.Valid {
			if settings.UpdatedAt, err = parseTime(updatedAt.String); err != nil {
				return fmt.Errorf("failed to parse updated_at: %w", err)
			}
		}

		settings.Availability, err = loadAvailability(ctx, tx, id)
		return err
	})
	if err != nil {
		return persistence.InstructorSettings{}, err
	}
	return settings, nil
}

// UpsertSettings stores pricing and capability flags. Availability is left untouched.
func (r *InstructorRepository) UpsertSettings(ctx context.Context, s persistence.InstructorSettings) error {
	if s.InstructorID == "" {
		return persistence.ErrConstraintViolation
	}
	var ownPrice sql.NullInt64
	if s.OwnVehiclePrice != nil {
		ownPrice = sql.NullInt64{Int64: int64(*s.OwnVehiclePrice), Valid: true}
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO instructor_settings (instructor_id, price_per_class_cents, own_vehicle_price_cents,
			home_service_price_cents, offers_instructor_vehicle, accepts_own_vehicle, offers_home_service, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instructor_id) DO UPDATE SET
			price_per_class_cents = excluded.price_per_class_cents,
			own_vehicle_price_cents = excluded.own_vehicle_price_cents,
			home_service_price_cents = excluded.home_service_price_cents,
			offers_instructor_vehicle = excluded.offers_instructor_vehicle,
			accepts_own_vehicle = excluded.accepts_own_vehicle,
			offers_home_service = excluded.offers_home_service,
			updated_at = excluded.updated_at`,
		s.InstructorID, int64(s.PricePerClass), ownPrice, int64(s.HomeServicePrice),
		s.OffersInstructorVehicle, s.AcceptsOwnVehicle, s.OffersHomeService, formatTime(s.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// ReplaceAvailability swaps the whole availability rule in one transaction.
func (r *InstructorRepository) ReplaceAvailability(ctx context.Context, instructorID string, rule domain.AvailabilityRule) error {
	if instructorID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"instructor_weekly_windows", "instructor_date_overrides", "instructor_blocked_dates"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE instructor_id = ?", instructorID); err != nil {
				return r.mapper.MapError(err)
			}
		}
		for day, w := range rule.Weekly {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO instructor_weekly_windows (instructor_id, weekday, start_minute, end_minute)
				VALUES (?, ?, ?, ?)`, instructorID, int(day), int(w.Start), int(w.End)); err != nil {
				return r.mapper.MapError(err)
			}
		}
		for date, w := range rule.Overrides {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO instructor_date_overrides (instructor_id, lesson_date, start_minute, end_minute)
				VALUES (?, ?, ?, ?)`, instructorID, date.String(), int(w.Start), int(w.End)); err != nil {
				return r.mapper.MapError(err)
			}
		}
		for date := range rule.Blocked {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO instructor_blocked_dates (instructor_id, lesson_date) VALUES (?, ?)`,
				instructorID, date.String()); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

func loadAvailability(ctx context.Context, tx *sql.Tx, instructorID string) (domain.AvailabilityRule, error) {
	var rule domain.AvailabilityRule

	rows, err := tx.QueryContext(ctx, `
		SELECT weekday, start_minute, end_minute FROM instructor_weekly_windows WHERE instructor_id = ?`, instructorID)
	if err != nil {
		return rule, err
	}
	for rows.Next() {
		var day, start, end int
		if err := rows.Scan(&day, &start, &end); err != nil {
			rows.Close()
			return rule, err
		}
		rule.SetWeekly(time.Weekday(day), domain.Window{Start: domain.TimeOfDay(start), End: domain.TimeOfDay(end)})
	}
	if err := closeRows(rows); err != nil {
		return rule, err
	}

	rows, err = tx.QueryContext(ctx, `
		SELECT lesson_date, start_minute, end_minute FROM instructor_date_overrides WHERE instructor_id = ?`, instructorID)
	if err != nil {
		return rule, err
	}
	for rows.Next() {
		var (
			value      string
			start, end int
		)
		if err := rows.Scan(&value, &start, &end); err != nil {
			rows.Close()
			return rule, err
		}
		date, err := domain.ParseDate(value)
		if err != nil {
			rows.Close()
			return rule, fmt.Errorf("failed to parse override date: %w", err)
		}
		rule.Override(date, domain.Window{Start: domain.TimeOfDay(start), End: domain.TimeOfDay(end)})
	}
	if err := closeRows(rows); err != nil {
		return rule, err
	}

	rows, err = tx.QueryContext(ctx, `
		SELECT lesson_date FROM instructor_blocked_dates WHERE instructor_id = ?`, instructorID)
	if err != nil {
		return rule, err
	}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			rows.Close()
			return rule, err
		}
		date, err := domain.ParseDate(value)
		if err != nil {
			rows.Close()
			return rule, fmt.Errorf("failed to parse blocked date: %w", err)
		}
		rule.Block(date)
	}
	return rule, closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
