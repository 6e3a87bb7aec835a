package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	httpapi "github.com/example/autoescola/internal/http"
	"github.com/example/autoescola/internal/jobs"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var noSweep bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the booking sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), !noSweep)
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not schedule the auto-cancel and completion sweep")
	return cmd
}

func runServe(ctx context.Context, sweep bool) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := httpapi.NewEventHub(a.logger)
	defer hub.Close()

	auth, err := a.authService(hub)
	if err != nil {
		return err
	}
	bookings := a.bookingService()

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Auth:        httpapi.NewAuthHandler(auth, a.logger),
		Profiles:    httpapi.NewProfileHandler(a.profileService(hub), a.logger),
		Instructors: httpapi.NewInstructorHandler(a.instructorService(), a.logger),
		Bookings:    httpapi.NewBookingHandler(bookings, a.logger),
		Events:      hub,
		Sessions:    auth,
		Health:      a.store.Ping,
		RateLimit:   a.cfg.RateLimit,
		Logger:      a.logger,
	})

	var scheduler *jobs.Scheduler
	if sweep {
		scheduler, err = jobs.NewScheduler(bookings, jobs.Config{
			Schedule: a.cfg.SweepSchedule,
			Location: a.cfg.Location,
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serveUntilDone(ctx, server, ln, scheduler, a.logger)
}

// serveUntilDone runs server on ln until ctx is cancelled. It returns only after
// in-flight requests and a running sweep have finished, so the caller may
// release the store afterwards.
func serveUntilDone(ctx context.Context, server *http.Server, ln net.Listener, scheduler *jobs.Scheduler, logger zerolog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Bool("sweep", scheduler != nil).Msg("autoescola API listening")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("serve: %w", err)
			return
		}
		serveErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
		if runErr == nil {
			return nil
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shut down server")
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("sweep still running at shutdown")
		}
	}
	if runErr != nil {
		return runErr
	}
	return <-serveErr
}
