// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Context keys and getter/setter functions live here for values set by
// middleware but consumed by services. Keeping this package free of net/http
// means services never pull in HTTP code just to read who is calling.
//
// Usage in services (read values):
//
//	userID := requestcontext.UserID(ctx)
//	role := requestcontext.Role(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithUserID(ctx, userID)
//	ctx = requestcontext.WithRole(ctx, requestcontext.RoleWorker)
package requestcontext

import (
	"context"

	id "genba/pkg/domain"
)

// UserRole is the authenticated caller's role as carried in the token.
type UserRole string

const (
	RoleWorker     UserRole = "worker"
	RoleSupervisor UserRole = "supervisor"
)

// Context key types (unexported for encapsulation).
type (
	userIDKey      struct{}
	roleKey        struct{}
	requestIDKey   struct{}
)

// WithUserID stores the authenticated user ID.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user ID, or the zero ID when absent.
func UserID(ctx context.Context) id.UserID {
	if v, ok := ctx.Value(userIDKey{}).(id.UserID); ok {
		return v
	}
	return id.UserID{}
}

// WithRole stores the caller's role.
func WithRole(ctx context.Context, role UserRole) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// Role returns the caller's role, or empty when absent.
func Role(ctx context.Context) UserRole {
	if v, ok := ctx.Value(roleKey{}).(UserRole); ok {
		return v
	}
	return ""
}

// IsSupervisor reports whether the caller holds the supervisor role.
func IsSupervisor(ctx context.Context) bool {
	return Role(ctx) == RoleSupervisor
}

// WithRequestID stores the correlation ID for the current request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID, or empty when absent.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

