package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/booking"
	"github.com/example/autoescola/internal/client"
	"github.com/example/autoescola/internal/domain"
	api "github.com/example/autoescola/internal/http"
	"github.com/example/autoescola/internal/session"
	"github.com/example/autoescola/internal/testfixtures"
)

type backend struct {
	url         string
	auth        *application.AuthService
	instructors *application.InstructorService
	hub         *api.EventHub
}

func newBackend(t *testing.T) backend {
	t.Helper()
	harness := testfixtures.NewSQLiteHarness(t)
	factory := testfixtures.NewServiceFactory()
	logger := zerolog.Nop()
	hub := api.NewEventHub(logger)
	auth := factory.NewAuthService(t, harness, hub)
	instructors := factory.NewInstructorService(harness)

	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Auth:        api.NewAuthHandler(auth, logger),
		Profiles:    api.NewProfileHandler(factory.NewProfileService(harness, hub), logger),
		Instructors: api.NewInstructorHandler(instructors, logger),
		Bookings:    api.NewBookingHandler(factory.NewBookingService(harness), logger),
		Events:      hub,
		Sessions:    auth,
		Logger:      logger,
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return backend{url: srv.URL, auth: auth, instructors: instructors, hub: hub}
}

func newClient(t *testing.T, b backend) (*client.Client, client.Providers) {
	t.Helper()
	c, err := client.New(b.url, client.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	providers := c.Providers()
	t.Cleanup(providers.Close)
	return c, providers
}

func newManager(t *testing.T, c *client.Client, providers client.Providers) *session.Manager {
	t.Helper()
	logger := zerolog.Nop()
	m, err := session.NewManager(session.Config{
		Providers: providers.SessionProviders(),
		Profiles:  c.ProfileStore(providers),
		Logger:    &logger,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func waitForPhase(t *testing.T, m *session.Manager, role domain.Role, phase session.Phase) session.Slot {
	t.Helper()
	var slot session.Slot
	require.Eventually(t, func() bool {
		var ok bool
		slot, ok = m.Snapshot().Set.Get(role)
		return ok && slot.Phase == phase
	}, 2*time.Second, 10*time.Millisecond)
	return slot
}

func TestManagerOverHTTP(t *testing.T) {
	t.Parallel()

	t.Run("register, complete profile and log out", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		c, providers := newClient(t, b)
		m := newManager(t, c, providers)

		identity, err := m.Register(context.Background(), domain.RoleStudent, session.NewUser{
			Email: "aluno@example.com", Password: "long-enough-pw", DisplayName: "Ana Souza",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, identity.ID)
		assert.True(t, m.IsAuthenticatedAs(domain.RoleStudent))

		slot := waitForPhase(t, m, domain.RoleStudent, session.PhaseResolved)
		assert.False(t, slot.Identity.ProfileComplete)
		token, ok := m.Token(domain.RoleStudent)
		require.True(t, ok)
		providerToken, _ := providers.Token(domain.RoleStudent)
		assert.Equal(t, providerToken, token)

		phone := "11 99999 0000"
		photo := "https://cdn.example.com/ana.jpg"
		updated, err := m.CompleteProfile(context.Background(), domain.ProfileUpdate{Phone: &phone, PhotoURL: &photo})
		require.NoError(t, err)
		assert.True(t, updated.ProfileComplete)

		require.NoError(t, m.Logout(context.Background(), domain.RoleStudent))
		assert.False(t, m.IsAuthenticatedAs(domain.RoleStudent))
		_, ok = providers.Token(domain.RoleStudent)
		assert.False(t, ok)

		_, err = b.auth.Authenticate(context.Background(), token)
		assert.ErrorIs(t, err, application.ErrSessionRevoked)
	})

	t.Run("rejected credentials and duplicate accounts", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		c, providers := newClient(t, b)
		m := newManager(t, c, providers)

		_, err := m.Register(context.Background(), domain.RoleInstructor, session.NewUser{
			Email: "prof@example.com", Password: "long-enough-pw", DisplayName: "Carlos Lima",
		})
		require.NoError(t, err)

		_, err = m.Register(context.Background(), domain.RoleInstructor, session.NewUser{
			Email: "prof@example.com", Password: "long-enough-pw", DisplayName: "Carlos Lima",
		})
		var regErr *domain.RegistrationError
		require.ErrorAs(t, err, &regErr)
		assert.Equal(t, domain.StageSignUp, regErr.Stage)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		_, err = m.Login(context.Background(), domain.RoleInstructor, session.Credentials{
			Email: "prof@example.com", Password: "wrong-password",
		})
		assert.ErrorIs(t, err, domain.ErrAuth)
	})

	t.Run("one client holds sessions for several roles", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		c, providers := newClient(t, b)
		m := newManager(t, c, providers)

		_, err := m.Register(context.Background(), domain.RoleStudent, session.NewUser{
			Email: "both@example.com", Password: "long-enough-pw", DisplayName: "Bia Rocha",
		})
		require.NoError(t, err)
		_, err = m.Register(context.Background(), domain.RoleInstructor, session.NewUser{
			Email: "both@example.com", Password: "long-enough-pw", DisplayName: "Bia Rocha",
		})
		require.NoError(t, err)

		active, ok := m.Active()
		require.True(t, ok)
		assert.Equal(t, domain.RoleInstructor, active.Role)

		require.NoError(t, m.SetActiveRole(domain.RoleStudent))
		active, _ = m.Active()
		assert.Equal(t, domain.RoleStudent, active.Role)
		assert.ErrorIs(t, m.SetActiveRole(domain.RoleAdmin), domain.ErrNoActiveSession)
	})
}

func TestProviderEvents(t *testing.T) {
	t.Parallel()

	t.Run("sign-out elsewhere ends the session", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		c, _ := newClient(t, b)
		p := c.Provider(domain.RoleStudent)
		t.Cleanup(p.Close)

		var (
			mu     sync.Mutex
			events []session.EventKind
		)
		unsubscribe := p.OnSessionChange(func(ev session.Event) {
			mu.Lock()
			events = append(events, ev.Kind)
			mu.Unlock()
		})
		defer unsubscribe()

		sess, err := p.SignUp(context.Background(), session.NewUser{
			Email: "aluno@example.com", Password: "long-enough-pw", DisplayName: "Ana Souza",
		})
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return b.hub.Subscribers(sess.UserID, domain.RoleStudent) == 1
		}, 2*time.Second, 10*time.Millisecond)

		// A second device signing in and out must not end this session.
		other, err := b.auth.SignIn(context.Background(), domain.RoleStudent, session.Credentials{
			Email: "aluno@example.com", Password: "long-enough-pw",
		})
		require.NoError(t, err)
		require.NoError(t, b.auth.SignOut(context.Background(), other.Token))

		time.Sleep(100 * time.Millisecond)
		_, ok := p.Token()
		assert.True(t, ok)

		require.NoError(t, b.auth.SignOut(context.Background(), sess.Token))
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(events) == 1 && events[0] == session.EventSignedOut
		}, 2*time.Second, 10*time.Millisecond)
		_, ok = p.Token()
		assert.False(t, ok)
	})

	t.Run("resume and refresh", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		c, _ := newClient(t, b)

		first := c.Provider(domain.RoleInstructor)
		t.Cleanup(first.Close)
		sess, err := first.SignUp(context.Background(), session.NewUser{
			Email: "prof@example.com", Password: "long-enough-pw", DisplayName: "Carlos Lima",
		})
		require.NoError(t, err)

		resumed := c.Provider(domain.RoleInstructor)
		t.Cleanup(resumed.Close)
		resumed.Resume(sess.Token)
		current, ok, err := resumed.CurrentSession(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, sess.UserID, current.UserID)

		refreshed, err := resumed.Refresh(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, sess.Token, refreshed.Token)

		stale := c.Provider(domain.RoleInstructor)
		stale.Resume(sess.Token)
		_, ok, err = stale.CurrentSession(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, stale.SignOut(context.Background()))
	})
}

func TestGatewayWithPlanner(t *testing.T) {
	t.Parallel()
	b := newBackend(t)

	instructorClient, instructorProviders := newClient(t, b)
	instructorManager := newManager(t, instructorClient, instructorProviders)
	instructor, err := instructorManager.Register(context.Background(), domain.RoleInstructor, session.NewUser{
		Email: "prof@example.com", Password: "long-enough-pw", DisplayName: "Carlos Lima",
	})
	require.NoError(t, err)

	owner := application.Principal{UserID: instructor.ID, Role: domain.RoleInstructor}
	_, err = b.instructors.UpdateSettings(context.Background(), owner, instructor.ID, application.InstructorSettingsInput{
		PricePerClass: domain.Units(80), OffersInstructorVehicle: true,
	})
	require.NoError(t, err)
	_, err = b.instructors.ReplaceAvailability(context.Background(), owner, instructor.ID, testfixtures.WeekdayMornings())
	require.NoError(t, err)

	studentClient, studentProviders := newClient(t, b)
	studentManager := newManager(t, studentClient, studentProviders)
	student, err := studentManager.Register(context.Background(), domain.RoleStudent, session.NewUser{
		Email: "aluno@example.com", Password: "long-enough-pw", DisplayName: "Ana Souza",
	})
	require.NoError(t, err)

	clock := testfixtures.ReferenceTime
	studentPlanner := booking.NewPlanner(studentClient.Gateway(studentManager), booking.WithClock(clock))
	instructorPlanner := booking.NewPlanner(instructorClient.Gateway(instructorManager), booking.WithClock(clock))

	slots, err := studentPlanner.AvailableSlots(context.Background(), instructor.ID, testfixtures.NextMonday)
	require.NoError(t, err)
	assert.Len(t, slots, 4)

	req := booking.Request{
		InstructorID: instructor.ID,
		Date:         testfixtures.NextMonday,
		Time:         slots[1],
		Vehicle:      domain.VehicleInstructor,
	}
	created, err := studentPlanner.Book(context.Background(), student, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingAcceptance, created.Status)
	assert.Equal(t, student.ID, created.StudentID)

	slots, err = studentPlanner.AvailableSlots(context.Background(), instructor.ID, testfixtures.NextMonday)
	require.NoError(t, err)
	assert.Len(t, slots, 3)
	assert.NotContains(t, slots, req.Time)

	_, err = studentPlanner.Book(context.Background(), student, req)
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable) || errors.Is(err, domain.ErrSlotConflict), "got %v", err)

	_, err = studentPlanner.Accept(context.Background(), student, created.ID)
	assert.Error(t, err)

	accepted, err := instructorPlanner.Accept(context.Background(), instructor, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, accepted.Status)

	_, err = instructorPlanner.Reject(context.Background(), instructor, created.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	mine, err := studentPlanner.Bookings(context.Background(), student)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, domain.StatusConfirmed, mine[0].Status)
}
