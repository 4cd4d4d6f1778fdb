// ABOUTME: Request-scoped principal carried through handlers via context
// ABOUTME: Provides WithPrincipal/FromContext for propagating identity

package auth

import (
	"context"
	"slices"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Token       string   `json:"-"`
	ExpiresAt   int64    `json:"expires_at,omitempty"`
}

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// IsAdmin returns true if the principal has the admin role.
func (p *Principal) IsAdmin() bool {
	return p.HasRole("admin")
}

type principalKey struct{}

// WithPrincipal returns a new context with p attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the Principal, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// MustFromContext retrieves the Principal, panicking if not present.
func MustFromContext(ctx context.Context) *Principal {
	p := FromContext(ctx)
	if p == nil {
		panic("auth: Principal not found in context")
	}
	return p
}
