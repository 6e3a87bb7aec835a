package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/session"
)

const verifyTimeout = 5 * time.Second

// Provider is the session.Provider for one role. It holds at most one
// session and listens on /v1/events while the session is live.
type Provider struct {
	client *Client
	role   domain.Role
	logger zerolog.Logger

	mu        sync.Mutex
	current   session.AuthSession
	has       bool
	gen       uint64
	conn      *websocket.Conn
	listeners map[int]func(session.Event)
	nextID    int
	wg        sync.WaitGroup
}

var _ session.Provider = (*Provider)(nil)

// Provider returns a session provider for role.
func (c *Client) Provider(role domain.Role) *Provider {
	return &Provider{
		client:    c,
		role:      role,
		logger:    c.logger.With().Str("role", string(role)).Logger(),
		listeners: make(map[int]func(session.Event)),
	}
}

// Resume adopts a token saved from an earlier run. CurrentSession verifies it.
func (p *Provider) Resume(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.current = session.AuthSession{Token: token}
	p.has = token != ""
}

// Token returns the bearer token of the current session.
func (p *Provider) Token() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.has || p.current.Token == "" {
		return "", false
	}
	return p.current.Token, true
}

func (p *Provider) path(suffix string) string {
	return "/v1/" + url.PathEscape(string(p.role)) + suffix
}

// SignIn implements session.Provider.
func (p *Provider) SignIn(ctx context.Context, creds session.Credentials) (session.AuthSession, error) {
	var sess session.AuthSession
	if err := p.client.do(ctx, http.MethodPost, p.path("/sessions"), nil, "", creds, &sess); err != nil {
		return session.AuthSession{}, err
	}
	p.adopt(ctx, sess)
	return sess, nil
}

// SignUp implements session.Provider.
func (p *Provider) SignUp(ctx context.Context, user session.NewUser) (session.AuthSession, error) {
	var sess session.AuthSession
	if err := p.client.do(ctx, http.MethodPost, p.path("/users"), nil, "", user, &sess); err != nil {
		return session.AuthSession{}, err
	}
	p.adopt(ctx, sess)
	return sess, nil
}

// CurrentSession implements session.Provider. A token the server no longer
// accepts is dropped and reported as no session.
func (p *Provider) CurrentSession(ctx context.Context) (session.AuthSession, bool, error) {
	p.mu.Lock()
	token, has, gen := p.current.Token, p.has, p.gen
	p.mu.Unlock()
	if !has || token == "" {
		return session.AuthSession{}, false, nil
	}

	var sess session.AuthSession
	err := p.client.do(ctx, http.MethodGet, p.path("/sessions/current"), nil, token, nil, &sess)
	if errors.Is(err, domain.ErrAuth) {
		p.clearIf(gen)
		return session.AuthSession{}, false, nil
	}
	if err != nil {
		return session.AuthSession{}, false, err
	}

	p.mu.Lock()
	stale := p.gen != gen
	listening := p.conn != nil
	if !stale {
		p.current = sess
	}
	p.mu.Unlock()
	if stale {
		return session.AuthSession{}, false, nil
	}
	if !listening {
		p.listen(ctx, gen, token)
	}
	return sess, true, nil
}

// Refresh rotates the session token and notifies listeners.
func (p *Provider) Refresh(ctx context.Context) (session.AuthSession, error) {
	token, ok := p.Token()
	if !ok {
		return session.AuthSession{}, domain.ErrNoActiveSession
	}
	var sess session.AuthSession
	if err := p.client.do(ctx, http.MethodPost, p.path("/sessions/current/refresh"), nil, token, nil, &sess); err != nil {
		return session.AuthSession{}, err
	}

	p.mu.Lock()
	if p.has && p.current.Token == token {
		p.current = sess
	}
	p.mu.Unlock()
	p.dispatch(session.Event{Kind: session.EventTokenRefreshed, Session: sess})
	return sess, nil
}

// OnSessionChange implements session.Provider.
func (p *Provider) OnSessionChange(fn func(session.Event)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// SignOut implements session.Provider. A session the server already
// revoked counts as signed out.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token, has, gen := p.current.Token, p.has, p.gen
	userID := p.current.UserID
	p.mu.Unlock()
	if !has {
		return nil
	}

	err := p.client.do(ctx, http.MethodDelete, p.path("/sessions/current"), nil, token, nil, nil)
	if err != nil && !errors.Is(err, domain.ErrAuth) {
		return err
	}
	if p.clearIf(gen) {
		p.dispatch(session.Event{Kind: session.EventSignedOut, Session: session.AuthSession{UserID: userID}})
	}
	return nil
}

// Close stops the event listener without signing out.
func (p *Provider) Close() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.gen++
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	p.wg.Wait()
}

func (p *Provider) adopt(ctx context.Context, sess session.AuthSession) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.current = sess
	p.has = true
	old := p.conn
	p.conn = nil
	p.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	p.listen(ctx, gen, sess.Token)
}

// clearIf drops the session when it is still generation gen.
func (p *Provider) clearIf(gen uint64) bool {
	p.mu.Lock()
	if p.gen != gen || !p.has {
		p.mu.Unlock()
		return false
	}
	p.gen++
	p.current = session.AuthSession{}
	p.has = false
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return true
}

func (p *Provider) listen(ctx context.Context, gen uint64, token string) {
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := p.client.dialer.DialContext(ctx, p.client.websocketURL("/v1/events"), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("session event listener unavailable")
		return
	}

	p.mu.Lock()
	if p.gen != gen || p.conn != nil {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	p.conn = conn
	p.wg.Add(1)
	p.mu.Unlock()

	go p.readLoop(conn, gen)
}

func (p *Provider) readLoop(conn *websocket.Conn, gen uint64) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		if p.conn == conn {
			p.conn = nil
		}
		p.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var ev session.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Debug().Err(err).Msg("session event listener closed")
			}
			return
		}
		p.handle(ev, gen)
	}
}

// handle forwards pushed events. Sessions elsewhere signing in or
// refreshing do not change this one; a sign-out elsewhere is checked
// against the server before it is believed.
func (p *Provider) handle(ev session.Event, gen uint64) {
	p.mu.Lock()
	current := p.gen == gen && p.has
	p.mu.Unlock()
	if !current {
		return
	}

	switch ev.Kind {
	case session.EventProfileUpdated:
		p.dispatch(ev)
	case session.EventSignedOut:
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		defer cancel()
		if _, ok, err := p.CurrentSession(ctx); err == nil && !ok {
			p.dispatch(ev)
		}
	}
}

func (p *Provider) dispatch(ev session.Event) {
	p.mu.Lock()
	fns := make([]func(session.Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Providers holds one Provider per role.
type Providers map[domain.Role]*Provider

// Providers returns a provider for every given role, or for all roles.
func (c *Client) Providers(roles ...domain.Role) Providers {
	if len(roles) == 0 {
		roles = domain.RolesByPriority[:]
	}
	out := make(Providers, len(roles))
	for _, role := range roles {
		out[role] = c.Provider(role)
	}
	return out
}

// Token implements TokenSource.
func (ps Providers) Token(role domain.Role) (string, bool) {
	p, ok := ps[role]
	if !ok {
		return "", false
	}
	return p.Token()
}

// SessionProviders adapts ps for session.Config.
func (ps Providers) SessionProviders() map[domain.Role]session.Provider {
	out := make(map[domain.Role]session.Provider, len(ps))
	for role, p := range ps {
		out[role] = p
	}
	return out
}

// Close stops every provider's event listener.
func (ps Providers) Close() {
	for _, p := range ps {
		p.Close()
	}
}
