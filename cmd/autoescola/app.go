package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/config"
	"github.com/example/autoescola/internal/logging"
	"github.com/example/autoescola/internal/persistence/sqlite"
	"github.com/example/autoescola/internal/persistence/sqlite/migration"
)

// app holds what every subcommand needs: configuration, the logger and a
// migrated store.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	store  *sqlite.Store
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Configure(logging.Config{Level: cfg.LogLevel.String()})

	store, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close storage")
	}
}

func (a *app) authService(events application.EventPublisher) (*application.AuthService, error) {
	tokens, err := application.NewTokenIssuer(a.cfg.SessionSecret, "autoescola")
	if err != nil {
		return nil, err
	}
	return application.NewAuthService(application.AuthConfig{
		Users:      a.store,
		Profiles:   a.store,
		Sessions:   a.store,
		Tokens:     tokens,
		Events:     events,
		IDs:        uuid.NewString,
		SessionTTL: a.cfg.SessionTTL,
		Logger:     a.logger,
	})
}

func (a *app) profileService(events application.EventPublisher) *application.ProfileService {
	return application.NewProfileService(a.store, events, nil, a.logger)
}

func (a *app) instructorService() *application.InstructorService {
	return application.NewInstructorService(a.store, a.store, nil, nil, a.cfg.Location, a.logger)
}

func (a *app) bookingService() *application.BookingService {
	return application.NewBookingService(application.BookingConfig{
		Bookings:    a.store,
		Instructors: a.store,
		IDs:         uuid.NewString,
		Location:    a.cfg.Location,
		Logger:      a.logger,
	})
}
