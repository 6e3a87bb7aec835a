package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/example/autoescola/internal/domain"
)

const (
	// DefaultSignInTimeout bounds provider sign-in calls.
	DefaultSignInTimeout = 10 * time.Second
	// DefaultProfileTimeout bounds profile lookups before degrading to the minimal identity.
	DefaultProfileTimeout = 2 * time.Second

	subscriberBuffer = 16
)

// State is a consistent view of the session set and its active identity.
type State struct {
	Set       SessionSet
	Active    domain.Identity
	HasActive bool
	Preferred domain.Role
}

// Change is delivered to subscribers after every mutation.
type Change struct {
	Role   domain.Role
	Reason string
	State  State
}

// Config configures a Manager.
type Config struct {
	Providers      map[domain.Role]Provider
	Profiles       ProfileStore
	SignInTimeout  time.Duration
	ProfileTimeout time.Duration
	Logger         *zerolog.Logger
}

// Manager keeps one independent session per role and derives the active identity.
type Manager struct {
	providers      map[domain.Role]Provider
	profiles       ProfileStore
	signInTimeout  time.Duration
	profileTimeout time.Duration
	logger         zerolog.Logger

	mu          sync.Mutex
	set         SessionSet
	preferred   domain.Role
	generations map[domain.Role]uint64
	signingIn   map[domain.Role]int
	refreshing  int
	subscribers map[int]chan Change
	nextSubID   int
	closed      bool

	loads  singleflight.Group
	bg     context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	unsubs []func()
}

// NewManager constructs a Manager and starts listening to provider notifications.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("session: at least one provider is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("session: profile store is required")
	}
	for role := range cfg.Providers {
		if !role.Valid() {
			return nil, fmt.Errorf("session: unknown role %q", role)
		}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "session").Logger()
	}
	signIn := cfg.SignInTimeout
	if signIn <= 0 {
		signIn = DefaultSignInTimeout
	}
	profile := cfg.ProfileTimeout
	if profile <= 0 {
		profile = DefaultProfileTimeout
	}

	bg, stop := context.WithCancel(context.Background())
	m := &Manager{
		providers:      make(map[domain.Role]Provider, len(cfg.Providers)),
		profiles:       cfg.Profiles,
		signInTimeout:  signIn,
		profileTimeout: profile,
		logger:         logger,
		generations:    make(map[domain.Role]uint64),
		signingIn:      make(map[domain.Role]int),
		subscribers:    make(map[int]chan Change),
		bg:             bg,
		stop:           stop,
	}
	for role, provider := range cfg.Providers {
		m.providers[role] = provider
		role := role
		m.unsubs = append(m.unsubs, provider.OnSessionChange(func(ev Event) {
			m.handleEvent(role, ev)
		}))
	}
	return m, nil
}

func (m *Manager) provider(role domain.Role) (Provider, error) {
	p, ok := m.providers[role]
	if !ok {
		return nil, fmt.Errorf("session: no provider for role %q", role)
	}
	return p, nil
}

// Login signs in for role without touching the other roles.
//
// The minimal identity from the sign-in response is published immediately
// and returned. The full profile is merged in the background.
func (m *Manager) Login(ctx context.Context, role domain.Role, creds Credentials) (domain.Identity, error) {
	provider, err := m.provider(role)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := domain.ValidateStruct(creds); err != nil {
		return domain.Identity{}, err
	}

	m.beginSignIn(role)
	defer m.endSignIn(role)

	logger := m.logger.With().Str("operation", "Login").Str("role", string(role)).Logger()

	sess, err := m.signIn(ctx, provider, creds)
	if err != nil {
		logger.Info().Str("error_kind", domain.ErrorKind(err)).Err(err).Msg("sign-in failed")
		return domain.Identity{}, err
	}

	identity := m.establish(role, sess, "login")
	logger.Info().Str("user_id", sess.UserID).Msg("signed in")
	return identity, nil
}

func (m *Manager) signIn(ctx context.Context, provider Provider, creds Credentials) (AuthSession, error) {
	signCtx, cancel := context.WithTimeout(ctx, m.signInTimeout)
	defer cancel()

	sess, err := provider.SignIn(signCtx, creds)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, domain.ErrAuth) {
		return AuthSession{}, err
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(signCtx.Err(), context.DeadlineExceeded) {
		return AuthSession{}, fmt.Errorf("session: sign in: %w", err)
	}
	if ctx.Err() != nil {
		return AuthSession{}, ctx.Err()
	}

	// A slow response may still have established the session.
	checkCtx, cancelCheck := context.WithTimeout(ctx, m.profileTimeout)
	defer cancelCheck()
	current, ok, checkErr := provider.CurrentSession(checkCtx)
	if checkErr == nil && ok {
		return current, nil
	}
	return AuthSession{}, fmt.Errorf("session: sign in: %w", domain.ErrTimeout)
}

// Register signs up a new principal for role and provisions its profile.
// A profile that already exists counts as success.
func (m *Manager) Register(ctx context.Context, role domain.Role, user NewUser) (domain.Identity, error) {
	provider, err := m.provider(role)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := domain.ValidateStruct(user); err != nil {
		return domain.Identity{}, err
	}

	m.beginSignIn(role)
	defer m.endSignIn(role)

	signCtx, cancel := context.WithTimeout(ctx, m.signInTimeout)
	sess, err := provider.SignUp(signCtx, user)
	cancel()
	if err != nil {
		return domain.Identity{}, &domain.RegistrationError{Role: role, Stage: domain.StageSignUp, Err: err}
	}

	profile := domain.Identity{
		ID:                 sess.UserID,
		Email:              user.Email,
		DisplayName:        user.DisplayName,
		Phone:              user.Phone,
		Role:               role,
		LicenseNumber:      user.LicenseNumber,
		VehicleDescription: user.VehicleDescription,
	}
	photo := domain.DefaultProfilePhoto
	profile.PhotoURL = &photo
	profile = profile.Normalized()

	if err := m.profiles.CreateProfile(ctx, profile); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		// The provider is signed in but the manager holds no slot for it.
		if outErr := provider.SignOut(context.WithoutCancel(ctx)); outErr != nil {
			m.logger.Warn().Str("role", string(role)).Err(outErr).Msg("sign-out after failed registration failed")
		}
		return domain.Identity{}, &domain.RegistrationError{Role: role, Stage: domain.StageProfile, Err: err}
	}

	if sess.Token == "" {
		return profile, nil
	}
	if sess.DisplayName == "" {
		sess.DisplayName = user.DisplayName
	}
	if sess.Email == "" {
		sess.Email = user.Email
	}
	m.establish(role, sess, "register")
	return profile, nil
}

// CompleteProfile updates the active identity's profile and reloads it from the store.
func (m *Manager) CompleteProfile(ctx context.Context, update domain.ProfileUpdate) (domain.Identity, error) {
	m.mu.Lock()
	active, ok := DeriveActive(m.set, m.preferred)
	gen := m.generations[active.Role]
	m.mu.Unlock()
	if !ok {
		return domain.Identity{}, domain.ErrNoActiveSession
	}

	if _, err := m.profiles.UpdateProfile(ctx, active.Role, active.ID, update); err != nil {
		return domain.Identity{}, fmt.Errorf("session: update profile: %w", err)
	}

	m.loads.Forget(loadKey(active.Role, active.ID))
	loadCtx, cancel := context.WithTimeout(ctx, m.profileTimeout)
	defer cancel()
	stored, err := m.profiles.FetchProfile(loadCtx, active.Role, active.ID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("session: reload profile: %w", err)
	}
	resolved := merge(active, stored)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[active.Role] != gen {
		return resolved, nil
	}
	slot, live := m.set.Get(active.Role)
	if !live {
		return resolved, nil
	}
	m.generations[active.Role]++
	slot.Identity = resolved
	slot.Phase = PhaseResolved
	m.set = m.set.With(active.Role, slot)
	m.notifyLocked(active.Role, "profile_completed")
	return resolved, nil
}

// Logout signs out of the given roles, or of every role when none are given.
// Local slots are cleared even when a provider fails to sign out.
func (m *Manager) Logout(ctx context.Context, roles ...domain.Role) error {
	if len(roles) == 0 {
		for _, role := range domain.RolesByPriority {
			if _, ok := m.providers[role]; ok {
				roles = append(roles, role)
			}
		}
	}

	var errs []error
	for _, role := range roles {
		provider, err := m.provider(role)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.mu.Lock()
		hadSlot := m.set.Has(role)
		m.generations[role]++
		m.removeLocked(role, "logout")
		m.mu.Unlock()

		if !hadSlot {
			continue
		}
		if err := provider.SignOut(ctx); err != nil {
			m.logger.Warn().Str("role", string(role)).Err(err).Msg("provider sign-out failed")
			errs = append(errs, fmt.Errorf("session: sign out %s: %w", role, err))
		}
	}
	return errors.Join(errs...)
}

// SetActiveRole selects which live session is presented as the active identity.
func (m *Manager) SetActiveRole(role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set.Has(role) {
		return fmt.Errorf("session: %s: %w", role, domain.ErrNoActiveSession)
	}
	m.preferred = role
	m.notifyLocked(role, "active_role")
	return nil
}

// Restore adopts sessions the providers already hold, all roles in parallel.
func (m *Manager) Restore(ctx context.Context) error {
	var g errgroup.Group
	for role, provider := range m.providers {
		role, provider := role, provider
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, m.signInTimeout)
			defer cancel()
			sess, ok, err := provider.CurrentSession(checkCtx)
			if err != nil {
				return fmt.Errorf("session: restore %s: %w", role, err)
			}
			if !ok {
				return nil
			}
			m.establish(role, sess, "restore")
			return nil
		})
	}
	return g.Wait()
}

// Active returns the active identity.
func (m *Manager) Active() (domain.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DeriveActive(m.set, m.preferred)
}

// IsAuthenticatedAs reports whether role has a live session.
func (m *Manager) IsAuthenticatedAs(role domain.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set.Has(role)
}

// Loading reports whether a sign-in or profile load is in progress.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshing > 0 {
		return true
	}
	for _, n := range m.signingIn {
		if n > 0 {
			return true
		}
	}
	return false
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Token returns the bearer token held for role.
func (m *Manager) Token(role domain.Role) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.set.Get(role)
	if !ok || slot.Token == "" {
		return "", false
	}
	return slot.Token, true
}

// Subscribe returns a channel of changes and a function that cancels the
// subscription. Slow subscribers miss changes rather than block the manager.
func (m *Manager) Subscribe() (<-chan Change, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Change, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(sub)
		}
	}
}

// Close stops provider listeners and waits for background profile loads.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		if unsub != nil {
			unsub()
		}
	}
	m.stop()
	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()
}

func (m *Manager) handleEvent(role domain.Role, ev Event) {
	logger := m.logger.With().Str("role", string(role)).Str("event", string(ev.Kind)).Logger()

	switch ev.Kind {
	case EventSignedOut:
		m.mu.Lock()
		if m.set.Has(role) {
			m.generations[role]++
			m.removeLocked(role, "signed_out")
		}
		m.mu.Unlock()

	case EventSignedIn, EventTokenRefreshed:
		m.mu.Lock()
		if m.closed || m.signingIn[role] > 0 {
			m.mu.Unlock()
			logger.Debug().Msg("notification suppressed during sign-in")
			return
		}
		if slot, ok := m.set.Get(role); ok && slot.Identity.ID == ev.Session.UserID {
			if ev.Session.Token != "" && ev.Session.Token != slot.Token {
				slot.Token = ev.Session.Token
				m.set = m.set.With(role, slot)
				m.notifyLocked(role, "token_refreshed")
			}
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		if ev.Session.UserID == "" {
			return
		}
		m.establish(role, ev.Session, "notification")

	case EventProfileUpdated:
		m.mu.Lock()
		slot, ok := m.set.Get(role)
		gen := m.generations[role]
		m.mu.Unlock()
		if !ok || slot.Identity.ID != ev.Session.UserID {
			return
		}
		m.loads.Forget(loadKey(role, slot.Identity.ID))
		m.refine(role, AuthSession{UserID: slot.Identity.ID, Email: slot.Identity.Email, DisplayName: slot.Identity.DisplayName, Token: slot.Token}, gen)
	}
}

// establish publishes the pending identity for sess and starts the profile refinement.
func (m *Manager) establish(role domain.Role, sess AuthSession, reason string) domain.Identity {
	minimal := sess.Minimal(role)

	m.mu.Lock()
	m.generations[role]++
	gen := m.generations[role]
	m.set = m.set.With(role, Slot{Identity: minimal, Token: sess.Token, Phase: PhasePending})
	m.notifyLocked(role, reason)
	m.mu.Unlock()

	m.refine(role, sess, gen)
	return minimal
}

func (m *Manager) refine(role domain.Role, sess AuthSession, gen uint64) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.refreshing++
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		identity, phase := m.loadProfile(role, sess)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.refreshing--
		if m.generations[role] != gen {
			return
		}
		slot, ok := m.set.Get(role)
		if !ok {
			return
		}
		slot.Identity = identity
		slot.Phase = phase
		m.set = m.set.With(role, slot)
		m.notifyLocked(role, "profile_"+phase.String())
	}()
}

func (m *Manager) loadProfile(role domain.Role, sess AuthSession) (domain.Identity, Phase) {
	minimal := sess.Minimal(role)
	v, err, _ := m.loads.Do(loadKey(role, sess.UserID), func() (any, error) {
		ctx, cancel := context.WithTimeout(m.bg, m.profileTimeout)
		defer cancel()
		return m.profiles.FetchProfile(ctx, role, sess.UserID)
	})
	if err != nil {
		m.logger.Warn().
			Str("role", string(role)).
			Str("user_id", sess.UserID).
			Str("error_kind", domain.ErrorKind(err)).
			Err(err).
			Msg("profile load failed, keeping minimal identity")
		return minimal, PhaseDegraded
	}
	return merge(minimal, v.(domain.Identity)), PhaseResolved
}

func merge(minimal, stored domain.Identity) domain.Identity {
	out := stored
	out.ID = minimal.ID
	out.Role = minimal.Role
	if out.Email == "" {
		out.Email = minimal.Email
	}
	if out.DisplayName == "" {
		out.DisplayName = minimal.DisplayName
	}
	return out.Normalized()
}

func loadKey(role domain.Role, id string) string {
	return string(role) + ":" + id
}

func (m *Manager) beginSignIn(role domain.Role) {
	m.mu.Lock()
	m.signingIn[role]++
	m.mu.Unlock()
}

func (m *Manager) endSignIn(role domain.Role) {
	m.mu.Lock()
	m.signingIn[role]--
	m.mu.Unlock()
}

func (m *Manager) removeLocked(role domain.Role, reason string) {
	if !m.set.Has(role) {
		return
	}
	m.set = m.set.Without(role)
	if m.preferred == role {
		m.preferred = ""
	}
	m.notifyLocked(role, reason)
}

func (m *Manager) stateLocked() State {
	active, ok := DeriveActive(m.set, m.preferred)
	return State{Set: m.set, Active: active, HasActive: ok, Preferred: m.preferred}
}

func (m *Manager) notifyLocked(role domain.Role, reason string) {
	if len(m.subscribers) == 0 {
		return
	}
	change := Change{Role: role, Reason: reason, State: m.stateLocked()}
	for _, ch := range m.subscribers {
		select {
		case ch <- change:
		default:
			m.logger.Debug().Str("reason", reason).Msg("subscriber lagging, change dropped")
		}
	}
}
