package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleAdmin
}

// Identity is the caller of a request. It is derived per request and never cached.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// IdentityResolver extracts the caller from a request. ok is false for anonymous
// or unverifiable requests.
type IdentityResolver func(r *http.Request) (Identity, bool)

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
