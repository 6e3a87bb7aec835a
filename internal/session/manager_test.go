package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/example/autoescola/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	providers map[domain.Role]*providerStub
	profiles  *profileStub
	manager   *Manager
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		providers: map[domain.Role]*providerStub{
			domain.RoleStudent:    newProviderStub(),
			domain.RoleInstructor: newProviderStub(),
			domain.RoleAdmin:      newProviderStub(),
		},
		profiles: newProfileStub(),
	}
	photo := "avatars/p.png"
	for role, p := range h.providers {
		id := string(role) + "-1"
		email := string(role) + "@example.com"
		p.addUser(id, email, "secret-pass", "")
		h.profiles.put(domain.Identity{
			ID: id, Email: email, DisplayName: "Maria Silva", Phone: "11988887777",
			PhotoURL: &photo, Role: role, LicenseNumber: "L-1", VehicleDescription: "Onix",
		})
	}

	cfg := Config{
		Providers: map[domain.Role]Provider{
			domain.RoleStudent:    h.providers[domain.RoleStudent],
			domain.RoleInstructor: h.providers[domain.RoleInstructor],
			domain.RoleAdmin:      h.providers[domain.RoleAdmin],
		},
		Profiles:       h.profiles,
		SignInTimeout:  200 * time.Millisecond,
		ProfileTimeout: 50 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	h.manager = m
	return h
}

func (h *harness) login(t *testing.T, role domain.Role) domain.Identity {
	t.Helper()
	identity, err := h.manager.Login(context.Background(), role, Credentials{Email: string(role) + "@example.com", Password: "secret-pass"})
	require.NoError(t, err)
	return identity
}

func (h *harness) waitPhase(t *testing.T, role domain.Role, phase Phase) Slot {
	t.Helper()
	var slot Slot
	require.Eventually(t, func() bool {
		s, ok := h.manager.Snapshot().Set.Get(role)
		slot = s
		return ok && s.Phase == phase
	}, waitFor, tick)
	return slot
}

func TestManager_LoginPublishesPendingThenResolved(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.ProfileTimeout = time.Second })
	gate := make(chan struct{})
	h.profiles.gate = gate

	identity := h.login(t, domain.RoleStudent)
	assert.Equal(t, "student-1", identity.ID)
	assert.False(t, identity.ProfileComplete)

	slot, ok := h.manager.Snapshot().Set.Get(domain.RoleStudent)
	require.True(t, ok)
	assert.Equal(t, PhasePending, slot.Phase)
	assert.True(t, h.manager.Loading())

	close(gate)
	slot = h.waitPhase(t, domain.RoleStudent, PhaseResolved)
	assert.Equal(t, "Maria Silva", slot.Identity.DisplayName)
	assert.True(t, slot.Identity.ProfileComplete)
	assert.Eventually(t, func() bool { return !h.manager.Loading() }, waitFor, tick)

	token, ok := h.manager.Token(domain.RoleStudent)
	assert.True(t, ok)
	assert.Equal(t, "tok-student-1", token)
}

func TestManager_ProfileTimeoutDegrades(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.profiles.gate = make(chan struct{}) // never released

	h.login(t, domain.RoleInstructor)
	slot := h.waitPhase(t, domain.RoleInstructor, PhaseDegraded)
	assert.Equal(t, "instructor-1", slot.Identity.ID)
	assert.True(t, h.manager.IsAuthenticatedAs(domain.RoleInstructor))
}

func TestManager_LoginFailures(t *testing.T) {
	t.Parallel()

	t.Run("bad credentials", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		_, err := h.manager.Login(context.Background(), domain.RoleStudent, Credentials{Email: "student@example.com", Password: "wrong"})
		require.ErrorIs(t, err, domain.ErrAuth)
		assert.False(t, h.manager.IsAuthenticatedAs(domain.RoleStudent))
	})

	t.Run("malformed credentials", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		_, err := h.manager.Login(context.Background(), domain.RoleStudent, Credentials{Email: "not-an-email"})
		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr))
	})

	t.Run("timeout without established session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		h.providers[domain.RoleStudent].signIn = func(ctx context.Context, _ Credentials) (AuthSession, error) {
			<-ctx.Done()
			return AuthSession{}, ctx.Err()
		}
		_, err := h.manager.Login(context.Background(), domain.RoleStudent, Credentials{Email: "student@example.com", Password: "secret-pass"})
		require.ErrorIs(t, err, domain.ErrTimeout)
		assert.False(t, h.manager.IsAuthenticatedAs(domain.RoleStudent))
	})

	t.Run("timeout recovered from current session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		stub := h.providers[domain.RoleStudent]
		stub.signIn = func(ctx context.Context, _ Credentials) (AuthSession, error) {
			stub.setCurrent(&AuthSession{UserID: "student-1", Email: "student@example.com", Token: "late"})
			<-ctx.Done()
			return AuthSession{}, ctx.Err()
		}
		identity, err := h.manager.Login(context.Background(), domain.RoleStudent, Credentials{Email: "student@example.com", Password: "secret-pass"})
		require.NoError(t, err)
		assert.Equal(t, "student-1", identity.ID)
		token, _ := h.manager.Token(domain.RoleStudent)
		assert.Equal(t, "late", token)
	})

	t.Run("unknown role", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(cfg *Config) { delete(cfg.Providers, domain.RoleAdmin) })
		_, err := h.manager.Login(context.Background(), domain.RoleAdmin, Credentials{Email: "admin@example.com", Password: "x"})
		assert.Error(t, err)
	})
}

func TestManager_SessionIndependence(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	for _, role := range []domain.Role{domain.RoleStudent, domain.RoleInstructor, domain.RoleAdmin} {
		h.login(t, role)
		h.waitPhase(t, role, PhaseResolved)
	}

	before := h.manager.Snapshot()
	instructorBefore, _ := before.Set.Get(domain.RoleInstructor)
	adminBefore, _ := before.Set.Get(domain.RoleAdmin)

	require.NoError(t, h.manager.Logout(context.Background(), domain.RoleStudent))

	after := h.manager.Snapshot()
	assert.False(t, after.Set.Has(domain.RoleStudent))
	instructorAfter, _ := after.Set.Get(domain.RoleInstructor)
	adminAfter, _ := after.Set.Get(domain.RoleAdmin)
	assert.Equal(t, instructorBefore, instructorAfter)
	assert.Equal(t, adminBefore, adminAfter)
	require.True(t, after.HasActive)
	assert.Equal(t, domain.RoleAdmin, after.Active.Role)
	assert.Equal(t, 1, h.providers[domain.RoleStudent].signOuts)
	assert.Zero(t, h.providers[domain.RoleAdmin].signOuts)

	require.NoError(t, h.manager.Logout(context.Background(), domain.RoleAdmin))
	active, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, domain.RoleInstructor, active.Role)

	require.NoError(t, h.manager.Logout(context.Background()))
	_, ok = h.manager.Active()
	assert.False(t, ok)
}

func TestManager_SetActiveRole(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	assert.ErrorIs(t, h.manager.SetActiveRole(domain.RoleStudent), domain.ErrNoActiveSession)

	h.login(t, domain.RoleStudent)
	h.login(t, domain.RoleAdmin)

	active, _ := h.manager.Active()
	assert.Equal(t, domain.RoleAdmin, active.Role)

	require.NoError(t, h.manager.SetActiveRole(domain.RoleStudent))
	active, _ = h.manager.Active()
	assert.Equal(t, domain.RoleStudent, active.Role)

	require.NoError(t, h.manager.Logout(context.Background(), domain.RoleStudent))
	state := h.manager.Snapshot()
	assert.Empty(t, state.Preferred)
	assert.Equal(t, domain.RoleAdmin, state.Active.Role)
}

func TestManager_SignInNotificationSuppressedDuringLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.providers[domain.RoleStudent].emitOnSignIn = true

	h.login(t, domain.RoleStudent)
	h.waitPhase(t, domain.RoleStudent, PhaseResolved)
	assert.Equal(t, 1, h.profiles.fetchCount())

	// A late duplicate for the same user converges without another load.
	h.providers[domain.RoleStudent].emit(Event{Kind: EventSignedIn, Session: AuthSession{UserID: "student-1", Token: "tok-student-1"}})
	assert.Equal(t, 1, h.profiles.fetchCount())
}

func TestManager_ProviderNotifications(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	changes, cancel := h.manager.Subscribe()
	defer cancel()

	instructor := h.providers[domain.RoleInstructor]
	instructor.emit(Event{Kind: EventSignedIn, Session: AuthSession{UserID: "instructor-1", Email: "instructor@example.com", Token: "t1"}})
	h.waitPhase(t, domain.RoleInstructor, PhaseResolved)

	instructor.emit(Event{Kind: EventTokenRefreshed, Session: AuthSession{UserID: "instructor-1", Token: "t2"}})
	token, _ := h.manager.Token(domain.RoleInstructor)
	assert.Equal(t, "t2", token)

	instructor.emit(Event{Kind: EventSignedOut})
	assert.False(t, h.manager.IsAuthenticatedAs(domain.RoleInstructor))

	var reasons []string
	require.Eventually(t, func() bool {
		for {
			select {
			case c := <-changes:
				reasons = append(reasons, c.Reason)
				if c.Reason == "signed_out" {
					return true
				}
			default:
				return false
			}
		}
	}, waitFor, tick)
	assert.Equal(t, []string{"notification", "profile_resolved", "token_refreshed", "signed_out"}, reasons)
}

func TestManager_StaleRefinementIsDropped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.profiles.gate = gate

	h.login(t, domain.RoleStudent)
	require.NoError(t, h.manager.Logout(context.Background(), domain.RoleStudent))
	close(gate)

	assert.Eventually(t, func() bool { return !h.manager.Loading() }, waitFor, tick)
	assert.False(t, h.manager.IsAuthenticatedAs(domain.RoleStudent))
}

func TestManager_Register(t *testing.T) {
	t.Parallel()

	user := NewUser{Email: "new@example.com", Password: "long-enough", DisplayName: "Joana Lima", Phone: "11977776666"}

	t.Run("profile provisioned", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		identity, err := h.manager.Register(context.Background(), domain.RoleStudent, user)
		require.NoError(t, err)
		assert.Equal(t, "u-new@example.com", identity.ID)
		require.Len(t, h.profiles.created, 1)
		assert.Equal(t, domain.DefaultProfilePhoto, *h.profiles.created[0].PhotoURL)
		assert.False(t, identity.ProfileComplete)
		h.waitPhase(t, domain.RoleStudent, PhaseResolved)
	})

	t.Run("existing profile counts as success", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		h.profiles.put(domain.Identity{ID: "u-new@example.com", Role: domain.RoleInstructor, DisplayName: "Joana Lima"})
		_, err := h.manager.Register(context.Background(), domain.RoleInstructor, user)
		require.NoError(t, err)
	})

	t.Run("provisioning failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		h.profiles.createErr = errors.New("store down")
		_, err := h.manager.Register(context.Background(), domain.RoleStudent, user)
		var regErr *domain.RegistrationError
		require.True(t, errors.As(err, &regErr))
		assert.Equal(t, domain.StageProfile, regErr.Stage)

		provider := h.providers[domain.RoleStudent]
		_, live, err := provider.CurrentSession(context.Background())
		require.NoError(t, err)
		assert.False(t, live, "provider session must not outlive the failed registration")
		provider.mu.Lock()
		assert.Equal(t, 1, provider.signOuts)
		provider.mu.Unlock()
		assert.False(t, h.manager.IsAuthenticatedAs(domain.RoleStudent))
	})

	t.Run("sign-up failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		h.providers[domain.RoleStudent].signUpErr = domain.ErrAlreadyExists
		_, err := h.manager.Register(context.Background(), domain.RoleStudent, user)
		var regErr *domain.RegistrationError
		require.True(t, errors.As(err, &regErr))
		assert.Equal(t, domain.StageSignUp, regErr.Stage)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})
}

func TestManager_CompleteProfile(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.manager.CompleteProfile(context.Background(), domain.ProfileUpdate{})
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	h.profiles.put(domain.Identity{ID: "student-1", Role: domain.RoleStudent, DisplayName: "Maria"})
	h.login(t, domain.RoleStudent)
	h.waitPhase(t, domain.RoleStudent, PhaseResolved)

	name := "Maria Silva"
	phone := "11988887777"
	photo := "avatars/maria.png"
	updated, err := h.manager.CompleteProfile(context.Background(), domain.ProfileUpdate{DisplayName: &name, Phone: &phone, PhotoURL: &photo})
	require.NoError(t, err)
	assert.True(t, updated.ProfileComplete)

	active, _ := h.manager.Active()
	assert.True(t, active.ProfileComplete)
	assert.Equal(t, "Maria Silva", active.DisplayName)
}

func TestManager_Restore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.providers[domain.RoleAdmin].setCurrent(&AuthSession{UserID: "admin-1", Email: "admin@example.com", Token: "a"})
	h.providers[domain.RoleStudent].setCurrent(&AuthSession{UserID: "student-1", Email: "student@example.com", Token: "s"})

	require.NoError(t, h.manager.Restore(context.Background()))
	state := h.manager.Snapshot()
	assert.Equal(t, []domain.Role{domain.RoleAdmin, domain.RoleStudent}, state.Set.Roles())
	assert.Equal(t, domain.RoleAdmin, state.Active.Role)
	h.waitPhase(t, domain.RoleAdmin, PhaseResolved)
}

func TestManager_CloseReleasesListeners(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	changes, _ := h.manager.Subscribe()
	h.manager.Close()
	h.manager.Close()

	for _, p := range h.providers {
		assert.Zero(t, p.listenerCount())
	}
	_, open := <-changes
	assert.False(t, open)
}
