package sqlite

import (
	"context"
	"strings"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateUser inserts a new account. A second account for the same role and
// email fails with persistence.ErrDuplicate.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" || !user.Role.Valid() {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (id, role, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		string(user.Role),
		normalizeEmail(user.Email),
		user.PasswordHash,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.scanUser(r.pool.DB().QueryRowContext(ctx, `
		SELECT id, role, email, password_hash, created_at, updated_at
		FROM users WHERE id = ?`, id))
}

// GetUserByEmail retrieves the role's account for email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, role domain.Role, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.scanUser(r.pool.DB().QueryRowContext(ctx, `
		SELECT id, role, email, password_hash, created_at, updated_at
		FROM users WHERE role = ? AND email = ?`, string(role), normalized))
}

// DeleteUser removes an account and, through cascading keys, its profile and
// sessions.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := r.pool.DB().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.mapper.MapError(err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row rowScanner) (persistence.User, error) {
	var (
		user               persistence.User
		role               string
		createdAt, updated string
	)
	if err := row.Scan(&user.ID, &role, &user.Email, &user.PasswordHash, &createdAt, &updated); err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	user.Role = domain.Role(role)

	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updated); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
