// Package client talks to the autoescola HTTP API. It provides the
// per-role session providers, the profile store and the booking gateway
// used by session.Manager and booking.Planner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/domain"
)

const (
	defaultTimeout          = 15 * time.Second
	defaultHandshakeTimeout = 5 * time.Second
	defaultUserAgent        = "autoescola-client"
)

// Options configures a Client.
type Options struct {
	// Timeout bounds each request when the context carries no earlier deadline.
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     zerolog.Logger
}

// Client is a thin JSON client for the /v1 API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	dialer    *websocket.Dialer
	userAgent string
	logger    zerolog.Logger
}

// TokenSource returns the bearer token currently held for role.
type TokenSource interface {
	Token(role domain.Role) (string, bool)
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base url %q must use http or https", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 3 * time.Second,
			},
		}
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Client{
		baseURL:   u,
		http:      opts.HTTPClient,
		dialer:    opts.Dialer,
		userAgent: opts.UserAgent,
		logger:    opts.Logger.With().Str("component", "api_client").Logger(),
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) websocketURL(path string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// do sends a JSON request and decodes a successful response into out.
// Failed responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("client: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("api request")

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func transportError(method, path string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("client: %s %s: %w: %w", method, path, domain.ErrTimeout, err)
	}
	return fmt.Errorf("client: %s %s: %w", method, path, err)
}

func requireToken(tokens TokenSource, role domain.Role) (string, error) {
	if tokens == nil {
		return "", fmt.Errorf("client: %s: %w", role, domain.ErrNoActiveSession)
	}
	token, ok := tokens.Token(role)
	if !ok || token == "" {
		return "", fmt.Errorf("client: %s: %w", role, domain.ErrNoActiveSession)
	}
	return token, nil
}
