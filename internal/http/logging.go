package http

import (
	"context"

	"github.com/rs/zerolog"
)

func handlerLogger(ctx context.Context, fallback zerolog.Logger, handlerName, operation string, fields ...any) *zerolog.Logger {
	logger := fallback
	if scoped := LoggerFromContext(ctx); scoped != nil {
		logger = *scoped
	}

	lc := logger.With().Str("handler", handlerName)
	if operation != "" {
		lc = lc.Str("operation", operation)
	}
	if len(fields) > 0 {
		lc = lc.Fields(fields)
	}
	scoped := lc.Logger()
	return &scoped
}
