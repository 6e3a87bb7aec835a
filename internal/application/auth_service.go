package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/metrics"
	"github.com/example/autoescola/internal/persistence"
	"github.com/example/autoescola/internal/session"
)

// AuthConfig wires the dependencies of an AuthService.
type AuthConfig struct {
	Users      persistence.UserRepository
	Profiles   persistence.ProfileRepository
	Sessions   persistence.SessionRepository
	Hasher     PasswordHasher
	Tokens     *TokenIssuer
	Events     EventPublisher
	IDs        func() string
	Now        func() time.Time
	SessionTTL time.Duration
	Logger     zerolog.Logger
}

// AuthService coordinates role-scoped sign-up, sign-in and session lifecycles.
type AuthService struct {
	users    persistence.UserRepository
	profiles persistence.ProfileRepository
	sessions persistence.SessionRepository
	hasher   PasswordHasher
	tokens   *TokenIssuer
	events   EventPublisher
	ids      func() string
	now      func() time.Time
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewAuthService constructs an AuthService from cfg.
func NewAuthService(cfg AuthConfig) (*AuthService, error) {
	if cfg.Users == nil || cfg.Profiles == nil || cfg.Sessions == nil || cfg.Tokens == nil {
		return nil, errors.New("application: auth service requires users, profiles, sessions and tokens")
	}
	if cfg.Hasher == nil {
		cfg.Hasher = NewArgon2idHasher(DefaultArgon2idParams)
	}
	if cfg.Events == nil {
		cfg.Events = noopPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.IDs == nil {
		return nil, errors.New("application: auth service requires an id generator")
	}
	return &AuthService{
		users:    cfg.Users,
		profiles: cfg.Profiles,
		sessions: cfg.Sessions,
		hasher:   cfg.Hasher,
		tokens:   cfg.Tokens,
		events:   cfg.Events,
		ids:      cfg.IDs,
		now:      cfg.Now,
		ttl:      cfg.SessionTTL,
		logger:   cfg.Logger,
	}, nil
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, fields ...any) zerolog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, fields...)
}

// SignIn checks credentials for role and issues a new session.
func (s *AuthService) SignIn(ctx context.Context, role domain.Role, creds session.Credentials) (result session.AuthSession, err error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	logger := s.loggerWith(ctx, "SignIn", "role", role, "email", email)
	defer func() {
		if err == nil {
			logger = logger.With().Str("user_id", result.UserID).Logger()
		}
		logOutcome(logger, err, "sign in failed", "sign in succeeded")
	}()

	if !role.Valid() {
		err = domain.NewValidationError("role", "unknown role")
		return
	}
	if email == "" || creds.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var user persistence.User
	user, err = s.users.GetUserByEmail(ctx, role, email)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}
	if verifyErr := s.hasher.Verify(user.PasswordHash, creds.Password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	result, err = s.issue(ctx, user.ID, role, user.Email)
	if err != nil {
		return
	}
	s.publish(user.ID, role, session.EventSignedIn, result)
	return
}

// SignUp creates a role-scoped account together with its profile and signs it in.
func (s *AuthService) SignUp(ctx context.Context, role domain.Role, input session.NewUser) (result session.AuthSession, err error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	logger := s.loggerWith(ctx, "SignUp", "role", role, "email", email)
	defer func() {
		if err == nil {
			logger = logger.With().Str("user_id", result.UserID).Logger()
		}
		logOutcome(logger, err, "sign up failed", "sign up succeeded")
	}()

	if !role.Valid() {
		err = domain.NewValidationError("role", "unknown role")
		return
	}
	if err = domain.ValidateStruct(input); err != nil {
		return
	}

	var hash string
	if hash, err = s.hasher.Hash(input.Password); err != nil {
		err = fmt.Errorf("application: hash password: %w", err)
		return
	}

	now := s.now()
	user := persistence.User{
		ID:           s.ids(),
		Role:         role,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = mapRepoError(s.users.CreateUser(ctx, user)); err != nil {
		return
	}

	photo := domain.DefaultProfilePhoto
	profile := persistence.Profile{
		UserID:             user.ID,
		Role:               role,
		Email:              email,
		DisplayName:        strings.Join(strings.Fields(input.DisplayName), " "),
		Phone:              strings.TrimSpace(input.Phone),
		PhotoURL:           &photo,
		LicenseNumber:      strings.TrimSpace(input.LicenseNumber),
		VehicleDescription: strings.TrimSpace(input.VehicleDescription),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err = mapRepoError(s.profiles.CreateProfile(ctx, profile)); err != nil {
		err = s.discardUser(ctx, user.ID, err)
		return
	}

	result, err = s.issue(ctx, user.ID, role, email)
	if err != nil {
		err = s.discardUser(ctx, user.ID, err)
		return
	}
	result.DisplayName = profile.DisplayName
	s.publish(user.ID, role, session.EventSignedIn, result)
	return
}

// discardUser removes an account whose sign-up did not finish so the email can
// be registered again. It runs even when ctx is already cancelled.
func (s *AuthService) discardUser(ctx context.Context, userID string, cause error) error {
	if err := s.users.DeleteUser(context.WithoutCancel(ctx), userID); err != nil {
		return errors.Join(cause, fmt.Errorf("application: discard partial sign-up: %w", err))
	}
	return cause
}

// Authenticate resolves a bearer token to its principal.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Principal, error) {
	_, principal, err := s.lookup(ctx, token)
	return principal, err
}

// Current describes the session behind token.
func (s *AuthService) Current(ctx context.Context, token string) (session.AuthSession, error) {
	stored, principal, err := s.lookup(ctx, token)
	if err != nil {
		return session.AuthSession{}, err
	}
	result := session.AuthSession{
		UserID:    principal.UserID,
		Token:     stored.Token,
		ExpiresAt: stored.ExpiresAt,
	}
	if profile, err := s.profiles.GetProfile(ctx, principal.Role, principal.UserID); err == nil {
		result.Email = profile.Email
		result.DisplayName = profile.DisplayName
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return session.AuthSession{}, err
	}
	return result, nil
}

// Refresh rotates token: a new session is issued and the old one revoked.
func (s *AuthService) Refresh(ctx context.Context, token string) (result session.AuthSession, err error) {
	logger := s.loggerWith(ctx, "Refresh")
	defer func() { logOutcome(logger, err, "session refresh failed", "session refreshed") }()

	var principal Principal
	if _, principal, err = s.lookup(ctx, token); err != nil {
		return
	}
	var user persistence.User
	if user, err = s.users.GetUser(ctx, principal.UserID); err != nil {
		err = mapRepoError(err)
		return
	}
	if result, err = s.issue(ctx, user.ID, principal.Role, user.Email); err != nil {
		return
	}
	if _, err = s.sessions.RevokeSession(ctx, token, s.now()); err != nil {
		err = mapRepoError(err)
		return
	}
	s.publish(user.ID, principal.Role, session.EventTokenRefreshed, result)
	return
}

// SignOut revokes token. Signing out an already revoked session succeeds.
func (s *AuthService) SignOut(ctx context.Context, token string) (err error) {
	logger := s.loggerWith(ctx, "SignOut")
	defer func() { logOutcome(logger, err, "sign out failed", "signed out") }()

	var principal Principal
	_, principal, err = s.lookup(ctx, token)
	if errors.Is(err, ErrSessionRevoked) {
		err = nil
		return
	}
	if err != nil {
		return
	}

	now := s.now()
	if _, err = s.sessions.RevokeSession(ctx, token, now); err != nil {
		err = mapRepoError(err)
		return
	}
	s.publish(principal.UserID, principal.Role, session.EventSignedOut, session.AuthSession{UserID: principal.UserID})

	if pruneErr := s.sessions.DeleteExpiredSessions(ctx, now); pruneErr != nil {
		logger.Warn().Err(pruneErr).Msg("failed to prune expired sessions")
	}
	return nil
}

func (s *AuthService) lookup(ctx context.Context, token string) (persistence.Session, Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, Principal{}, ErrInvalidCredentials
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return persistence.Session{}, Principal{}, err
	}

	stored, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.Session{}, Principal{}, ErrInvalidCredentials
		}
		return persistence.Session{}, Principal{}, err
	}
	if stored.ID != claims.ID || stored.UserID != claims.Subject || stored.Role != claims.Role {
		return persistence.Session{}, Principal{}, ErrInvalidCredentials
	}
	if stored.RevokedAt != nil {
		return persistence.Session{}, Principal{}, ErrSessionRevoked
	}
	if !s.now().Before(stored.ExpiresAt) {
		return persistence.Session{}, Principal{}, ErrSessionExpired
	}
	return stored, Principal{UserID: stored.UserID, Role: stored.Role, SessionID: stored.ID}, nil
}

func (s *AuthService) issue(ctx context.Context, userID string, role domain.Role, email string) (session.AuthSession, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	id := s.ids()

	token, err := s.tokens.Issue(id, userID, role, now, expires)
	if err != nil {
		return session.AuthSession{}, err
	}
	stored, err := s.sessions.CreateSession(ctx, persistence.Session{
		ID:        id,
		UserID:    userID,
		Role:      role,
		Token:     token,
		ExpiresAt: expires,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return session.AuthSession{}, mapRepoError(err)
	}

	result := session.AuthSession{UserID: userID, Email: email, Token: stored.Token, ExpiresAt: stored.ExpiresAt}
	if profile, err := s.profiles.GetProfile(ctx, role, userID); err == nil {
		result.DisplayName = profile.DisplayName
	}
	return result, nil
}

func (s *AuthService) publish(userID string, role domain.Role, kind session.EventKind, payload session.AuthSession) {
	metrics.RecordSessionEvent(string(role), string(kind))
	s.events.Publish(userID, role, session.Event{Kind: kind, Session: payload})
}
