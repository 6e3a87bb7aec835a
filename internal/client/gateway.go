package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/example/autoescola/internal/booking"
	"github.com/example/autoescola/internal/domain"
)

// Gateway is the booking.Gateway backed by /v1/bookings and /v1/instructors.
// Students create bookings and instructors decide them, each with their own
// role's token.
type Gateway struct {
	client *Client
	tokens TokenSource
}

var _ booking.Gateway = (*Gateway)(nil)

// Gateway returns a booking gateway authenticated through tokens.
func (c *Client) Gateway(tokens TokenSource) *Gateway {
	return &Gateway{client: c, tokens: tokens}
}

type bookingList struct {
	Bookings []domain.Booking `json:"bookings"`
}

func (g *Gateway) FetchBookings(ctx context.Context, acting domain.Identity) ([]domain.Booking, error) {
	token, err := requireToken(g.tokens, acting.Role)
	if err != nil {
		return nil, err
	}
	var out bookingList
	if err := g.client.do(ctx, http.MethodGet, "/v1/bookings", nil, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Bookings, nil
}

func (g *Gateway) CreateBooking(ctx context.Context, payload booking.CreatePayload) (domain.Booking, error) {
	token, err := requireToken(g.tokens, domain.RoleStudent)
	if err != nil {
		return domain.Booking{}, err
	}
	var created domain.Booking
	if err := g.client.do(ctx, http.MethodPost, "/v1/bookings", nil, token, payload, &created); err != nil {
		return domain.Booking{}, err
	}
	return created, nil
}

func (g *Gateway) AcceptBooking(ctx context.Context, id string) (domain.Booking, error) {
	return g.decide(ctx, id, "accept")
}

func (g *Gateway) RejectBooking(ctx context.Context, id string) (domain.Booking, error) {
	return g.decide(ctx, id, "reject")
}

func (g *Gateway) decide(ctx context.Context, id, action string) (domain.Booking, error) {
	token, err := requireToken(g.tokens, domain.RoleInstructor)
	if err != nil {
		return domain.Booking{}, err
	}
	var out domain.Booking
	path := "/v1/bookings/" + url.PathEscape(id) + "/" + action
	if err := g.client.do(ctx, http.MethodPost, path, nil, token, nil, &out); err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

func (g *Gateway) FetchInstructor(ctx context.Context, id string) (booking.InstructorProfile, error) {
	var out booking.InstructorProfile
	if err := g.client.do(ctx, http.MethodGet, "/v1/instructors/"+url.PathEscape(id), nil, "", nil, &out); err != nil {
		return booking.InstructorProfile{}, err
	}
	return out, nil
}

func (g *Gateway) FetchOccupancy(ctx context.Context, instructorID string, date domain.Date) ([]domain.Booking, error) {
	var out bookingList
	path := "/v1/instructors/" + url.PathEscape(instructorID) + "/occupancy"
	if err := g.client.do(ctx, http.MethodGet, path, url.Values{"date": {date.String()}}, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Bookings, nil
}
