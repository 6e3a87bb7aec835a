package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig wires handlers into the API router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Auth        *AuthHandler
	Profiles    *ProfileHandler
	Instructors *InstructorHandler
	Bookings    *BookingHandler
	Events      *EventHub
	Sessions    SessionValidator
	// Health reports storage readiness for /healthz.
	Health func(ctx context.Context) error
	// RateLimit caps sign-in, sign-up and booking creation per client IP per minute.
	RateLimit  int
	Logger     zerolog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(Metrics())
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", healthHandler(cfg.Health, newResponder(cfg.Logger)))
	r.Handle("/metrics", promhttp.Handler())

	limited := RateLimit(cfg.RateLimit, time.Minute)
	authenticated := RequireSession(cfg.Sessions, cfg.Logger)

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth != nil {
			r.With(limited).Post("/{role}/sessions", cfg.Auth.SignIn)
			r.With(limited).Post("/{role}/users", cfg.Auth.SignUp)
			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Get("/{role}/sessions/current", cfg.Auth.Current)
				r.Delete("/{role}/sessions/current", cfg.Auth.SignOut)
				r.Post("/{role}/sessions/current/refresh", cfg.Auth.Refresh)
			})
		}

		if cfg.Events != nil {
			r.With(authenticated).Get("/events", cfg.Events.ServeHTTP)
		}

		if cfg.Profiles != nil {
			r.Route("/profiles", func(r chi.Router) {
				r.Use(authenticated)
				r.Get("/me", cfg.Profiles.Me)
				r.Get("/{role}/{id}", cfg.Profiles.Get)
				r.Post("/{role}/{id}", cfg.Profiles.Create)
				r.Put("/{role}/{id}", cfg.Profiles.Update)
			})
		}

		if cfg.Instructors != nil {
			r.Route("/instructors/{id}", func(r chi.Router) {
				r.Get("/", cfg.Instructors.Get)
				r.Get("/slots", cfg.Instructors.Slots)
				r.Get("/occupancy", cfg.Instructors.Occupancy)
				r.Group(func(r chi.Router) {
					r.Use(authenticated)
					r.Put("/settings", cfg.Instructors.UpdateSettings)
					r.Put("/availability", cfg.Instructors.ReplaceAvailability)
				})
			})
		}

		if cfg.Bookings != nil {
			r.Route("/bookings", func(r chi.Router) {
				r.Use(authenticated)
				r.Get("/", cfg.Bookings.List)
				r.With(limited).Post("/", cfg.Bookings.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", cfg.Bookings.Get)
					r.Post("/accept", cfg.Bookings.Accept)
					r.Post("/reject", cfg.Bookings.Reject)
					r.Post("/cancel", cfg.Bookings.Cancel)
					r.Post("/payment", cfg.Bookings.RequestPayment)
					r.Post("/payment/confirm", cfg.Bookings.ConfirmPayment)
					r.Post("/complete", cfg.Bookings.Complete)
					r.Post("/rating", cfg.Bookings.Rate)
				})
			})
		}
	})

	return r
}

func healthHandler(check func(context.Context) error, rs responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				rs.writeError(r.Context(), w, http.StatusServiceUnavailable, "UNAVAILABLE", err)
				return
			}
		}
		rs.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
