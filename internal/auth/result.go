// ABOUTME: Authentication result value and the provider contract shared by all backends
// ABOUTME: Every provider operation answers with a Result instead of an error

package auth

import (
	"context"
)

// Credentials carries login input such as "username" and "password".
type Credentials map[string]string

// Result is the outcome of an authenticate, validate, or refresh call.
// A failed operation yields Authenticated=false with every other field empty.
type Result struct {
	Authenticated bool           `json:"authenticated"`
	UserID        string         `json:"user_id,omitempty"`
	Roles         []string       `json:"roles,omitempty"`
	Permissions   []string       `json:"permissions,omitempty"`
	Token         string         `json:"token,omitempty"`
	ExpiresAt     int64          `json:"expires_at,omitempty"` // unix seconds
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Failed returns the negative Result.
func Failed() *Result {
	return &Result{Authenticated: false}
}

// Principal converts a successful result into the request-scoped identity.
// Returns nil for a failed result.
func (r *Result) Principal() *Principal {
	if r == nil || !r.Authenticated {
		return nil
	}
	return &Principal{
		UserID:      r.UserID,
		Roles:       cloneStrings(r.Roles),
		Permissions: cloneStrings(r.Permissions),
		Token:       r.Token,
		ExpiresAt:   r.ExpiresAt,
	}
}

// Provider is a pluggable authentication backend.
//
// Implementations never return errors for expected failures like a bad
// password, an unknown token, or an expired token; they return Failed().
type Provider interface {
	Authenticate(ctx context.Context, creds Credentials) *Result
	ValidateToken(ctx context.Context, token string) *Result
	RefreshToken(ctx context.Context, token string) *Result
}

// TokenValidator is the subset of the Manager used by request middleware.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) *Result
}

// Revoker is implemented by providers that keep server-side token state.
type Revoker interface {
	RevokeToken(ctx context.Context, token string) bool
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
