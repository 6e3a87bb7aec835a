package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

// ProfileRepository implements persistence.ProfileRepository using SQLite
type ProfileRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewProfileRepository creates a new SQLite profile repository
func NewProfileRepository(pool *ConnectionPool) *ProfileRepository {
	return &ProfileRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateProfile inserts a profile; an existing profile for the same role and
// user yields persistence.ErrDuplicate.
func (r *ProfileRepository) CreateProfile(ctx context.Context, p persistence.Profile) error {
	if p.UserID == "" || !p.Role.Valid() {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO profiles (user_id, role, email, display_name, phone, photo_url,
			license_number, vehicle_description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, string(p.Role), normalizeEmail(p.Email), p.DisplayName, p.Phone, nullString(p.PhotoURL),
		p.LicenseNumber, p.VehicleDescription, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetProfile retrieves the profile of userID for role.
func (r *ProfileRepository) GetProfile(ctx context.Context, role domain.Role, userID string) (persistence.Profile, error) {
	var (
		p                  persistence.Profile
		roleValue          string
		photo              sql.NullString
		createdAt, updated string
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT user_id, role, email, display_name, phone, photo_url,
			license_number, vehicle_description, created_at, updated_at
		FROM profiles WHERE role = ? AND user_id = ?`, string(role), userID,
	).Scan(&p.UserID, &roleValue, &p.Email, &p.DisplayName, &p.Phone, &photo,
		&p.LicenseNumber, &p.VehicleDescription, &createdAt, &updated)
	if err != nil {
		return persistence.Profile{}, r.mapper.MapError(err)
	}
	p.Role = domain.Role(roleValue)
	p.PhotoURL = stringPtr(photo)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Profile{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return persistence.Profile{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return p, nil
}

// UpdateProfile overwrites the editable fields of an existing profile.
func (r *ProfileRepository) UpdateProfile(ctx context.Context, p persistence.Profile) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE profiles
		SET display_name = ?, phone = ?, photo_url = ?, license_number = ?,
			vehicle_description = ?, updated_at = ?
		WHERE role = ? AND user_id = ?`,
		p.DisplayName, p.Phone, nullString(p.PhotoURL), p.LicenseNumber,
		p.VehicleDescription, formatTime(p.UpdatedAt), string(p.Role), p.UserID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
