package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateSession stores a new session token for a user
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	session.Token = strings.TrimSpace(session.Token)
	if session.ID == "" || session.UserID == "" || session.Token == "" || !session.Role.Valid() {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, role, token, expires_at, created_at, updated_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, string(session.Role), session.Token,
		formatTime(session.ExpiresAt), formatTime(session.CreatedAt), formatTime(session.UpdatedAt),
		nullTime(session.RevokedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return normalizeSession(session), nil
}

// GetSession retrieves a session by its token value
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return r.getSession(ctx, r.pool.DB(), token)
}

// RevokeSession marks a session as revoked based on its token value.
// Revoking twice keeps the first revocation time.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	var session persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		current, err := r.getSession(ctx, tx, token)
		if err != nil {
			return err
		}
		if current.RevokedAt != nil {
			session = current
			return nil
		}

		revoked := revokedAt.UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE token = ?`,
			formatTime(revoked), formatTime(revoked), token); err != nil {
			return r.mapper.MapError(err)
		}
		current.RevokedAt = &revoked
		current.UpdatedAt = revoked
		session = current
		return nil
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// DeleteExpiredSessions removes sessions that expired on or before reference.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.pool.DB().ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference))
	return r.mapper.MapError(err)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SessionRepository) getSession(ctx context.Context, q queryRower, token string) (persistence.Session, error) {
	var (
		session                         persistence.Session
		role                            string
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, role, token, expires_at, created_at, updated_at, revoked_at
		FROM sessions WHERE token = ?`, token,
	).Scan(&session.ID, &session.UserID, &role, &session.Token, &expiresAt, &createdAt, &updatedAt, &revokedAt)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	session.Role = domain.Role(role)

	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if session.RevokedAt, err = parseNullTime(revokedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse revoked_at: %w", err)
	}
	return session, nil
}

func normalizeSession(session persistence.Session) persistence.Session {
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		session.RevokedAt = &revoked
	}
	return session
}
