package http

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/logging"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	tokenContextKey     contextKey = "session_token"
)

// ContextWithPrincipal returns a derived context containing the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

func contextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// ContextWithLogger attaches a request-scoped logger.
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request-scoped logger, or nil.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	return logging.FromContext(ctx)
}
