package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/autoescola/internal/domain"
)

type providerStub struct {
	mu        sync.Mutex
	users     map[string]AuthSession // keyed by email
	passwords map[string]string
	current   *AuthSession
	listeners map[int]func(Event)
	nextID    int
	signOuts  int

	signIn       func(ctx context.Context, creds Credentials) (AuthSession, error)
	signUpErr    error
	emitOnSignIn bool
}

func newProviderStub() *providerStub {
	return &providerStub{
		users:     make(map[string]AuthSession),
		passwords: make(map[string]string),
		listeners: make(map[int]func(Event)),
	}
}

func (p *providerStub) addUser(id, email, password, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[email] = AuthSession{UserID: id, Email: email, DisplayName: name, Token: "tok-" + id}
	p.passwords[email] = password
}

func (p *providerStub) SignIn(ctx context.Context, creds Credentials) (AuthSession, error) {
	if p.signIn != nil {
		return p.signIn(ctx, creds)
	}
	p.mu.Lock()
	sess, ok := p.users[creds.Email]
	if !ok || p.passwords[creds.Email] != creds.Password {
		p.mu.Unlock()
		return AuthSession{}, fmt.Errorf("stub: %w", domain.ErrAuth)
	}
	p.current = &sess
	emit := p.emitOnSignIn
	p.mu.Unlock()
	if emit {
		p.emit(Event{Kind: EventSignedIn, Session: sess})
	}
	return sess, nil
}

func (p *providerStub) SignUp(_ context.Context, user NewUser) (AuthSession, error) {
	if p.signUpErr != nil {
		return AuthSession{}, p.signUpErr
	}
	id := "u-" + user.Email
	p.addUser(id, user.Email, user.Password, "")
	p.mu.Lock()
	defer p.mu.Unlock()
	sess := p.users[user.Email]
	p.current = &sess
	return sess, nil
}

func (p *providerStub) CurrentSession(context.Context) (AuthSession, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return AuthSession{}, false, nil
	}
	return *p.current, true, nil
}

func (p *providerStub) setCurrent(sess *AuthSession) {
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
}

func (p *providerStub) OnSessionChange(fn func(Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *providerStub) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	p.signOuts++
	return nil
}

func (p *providerStub) emit(ev Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (p *providerStub) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

type profileStub struct {
	mu        sync.Mutex
	profiles  map[string]domain.Identity
	fetches   int
	gate      chan struct{}
	fetchErr  error
	createErr error
	created   []domain.Identity
}

func newProfileStub() *profileStub {
	return &profileStub{profiles: make(map[string]domain.Identity)}
}

func profileKey(role domain.Role, id string) string { return string(role) + "/" + id }

func (s *profileStub) put(identity domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileKey(identity.Role, identity.ID)] = identity.Normalized()
}

func (s *profileStub) FetchProfile(ctx context.Context, role domain.Role, id string) (domain.Identity, error) {
	s.mu.Lock()
	s.fetches++
	gate := s.gate
	fetchErr := s.fetchErr
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Identity{}, ctx.Err()
		}
	}
	if fetchErr != nil {
		return domain.Identity{}, fetchErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.profiles[profileKey(role, id)]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, nil
}

func (s *profileStub) CreateProfile(_ context.Context, identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, identity)
	if s.createErr != nil {
		return s.createErr
	}
	key := profileKey(identity.Role, identity.ID)
	if _, exists := s.profiles[key]; exists {
		return domain.ErrAlreadyExists
	}
	s.profiles[key] = identity
	return nil
}

func (s *profileStub) UpdateProfile(_ context.Context, role domain.Role, id string, update domain.ProfileUpdate) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := profileKey(role, id)
	identity, ok := s.profiles[key]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	identity = update.Apply(identity)
	s.profiles[key] = identity
	return identity, nil
}

func (s *profileStub) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}
