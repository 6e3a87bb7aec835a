package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/logging"
)

// serviceLogger prefers the request logger carried by ctx over base and tags
// entries with the service and operation. fields are key/value pairs.
func serviceLogger(ctx context.Context, base zerolog.Logger, serviceName, operation string, fields ...any) zerolog.Logger {
	logger := base
	if fromCtx := logging.FromContext(ctx); fromCtx != nil {
		logger = *fromCtx
	}

	c := logger.With().Str("service", serviceName)
	if operation != "" {
		c = c.Str("operation", operation)
	}
	if len(fields) > 0 {
		c = c.Fields(fields)
	}
	return c.Logger()
}

// logOutcome writes the deferred success or failure entry of an operation.
func logOutcome(logger zerolog.Logger, err error, failure, success string) {
	if err != nil {
		event := logger.Error()
		if kind := domain.ErrorKind(err); kind != "unexpected" {
			event = logger.Warn()
		}
		event.Err(err).Str("error_kind", domain.ErrorKind(err)).Msg(failure)
		return
	}
	logger.Info().Msg(success)
}
