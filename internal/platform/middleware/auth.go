package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"genba/pkg/platform/httputil"
	"genba/pkg/requestcontext"

	dErrors "genba/pkg/domain-errors"
)

// TokenValidator validates bearer tokens and returns the caller's identity.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and populates
// the request context with the caller's user ID and role.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestID,
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			ctx = requestcontext.WithRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSupervisor gates supervisor-only routes. Must run after RequireAuth.
func RequireSupervisor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.IsSupervisor(ctx) {
				logger.WarnContext(ctx, "forbidden - supervisor role required",
					"request_id", requestcontext.RequestID(ctx),
					"user_id", requestcontext.UserID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "supervisor role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
