package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/session"
)

// ProfileStore is the session.ProfileStore backed by /v1/profiles. Requests
// for a role use that role's token.
type ProfileStore struct {
	client *Client
	tokens TokenSource
}

var _ session.ProfileStore = (*ProfileStore)(nil)

// ProfileStore returns a profile store authenticated through tokens.
func (c *Client) ProfileStore(tokens TokenSource) *ProfileStore {
	return &ProfileStore{client: c, tokens: tokens}
}

func profilePath(role domain.Role, id string) string {
	return "/v1/profiles/" + url.PathEscape(string(role)) + "/" + url.PathEscape(id)
}

func (s *ProfileStore) FetchProfile(ctx context.Context, role domain.Role, id string) (domain.Identity, error) {
	token, err := requireToken(s.tokens, role)
	if err != nil {
		return domain.Identity{}, err
	}
	var identity domain.Identity
	if err := s.client.do(ctx, http.MethodGet, profilePath(role, id), nil, token, nil, &identity); err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}

// CreateProfile returns an error wrapping domain.ErrAlreadyExists when the
// server provisioned the profile during sign-up.
func (s *ProfileStore) CreateProfile(ctx context.Context, identity domain.Identity) error {
	token, err := requireToken(s.tokens, identity.Role)
	if err != nil {
		return err
	}
	return s.client.do(ctx, http.MethodPost, profilePath(identity.Role, identity.ID), nil, token, identity, nil)
}

func (s *ProfileStore) UpdateProfile(ctx context.Context, role domain.Role, id string, update domain.ProfileUpdate) (domain.Identity, error) {
	token, err := requireToken(s.tokens, role)
	if err != nil {
		return domain.Identity{}, err
	}
	var identity domain.Identity
	if err := s.client.do(ctx, http.MethodPut, profilePath(role, id), nil, token, update, &identity); err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}
