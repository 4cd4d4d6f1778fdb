// ABOUTME: Stateless provider that issues and verifies HS256 signed tokens
// ABOUTME: Roles and permissions are read from the token, not the user table

package auth

import (
	"context"
	"log/slog"
)

// SignedTokenProvider issues self-contained signed tokens. No token state is
// kept, so tokens cannot be revoked before they expire.
type SignedTokenProvider struct {
	users  *userTable
	codec  *TokenCodec
	opts   providerOptions
	logger *slog.Logger
}

// NewSignedTokenProvider creates a provider signing with secret.
func NewSignedTokenProvider(secret []byte, opts ...ProviderOption) (*SignedTokenProvider, error) {
	codec, err := NewTokenCodec(secret)
	if err != nil {
		return nil, err
	}
	o := defaultProviderOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SignedTokenProvider{
		users:  newUserTable(),
		codec:  codec,
		opts:   o,
		logger: o.logger.With("component", "auth.signed"),
	}, nil
}

// AddUser registers or overwrites a user.
func (p *SignedTokenProvider) AddUser(username, password string, roles, permissions []string) {
	p.users.add(username, password, roles, permissions)
}

// RemoveUser deletes a user. Tokens already issued stay valid until they
// expire, but can no longer be refreshed.
func (p *SignedTokenProvider) RemoveUser(username string) bool {
	return p.users.remove(username)
}

// Authenticate checks credentials and signs a token.
func (p *SignedTokenProvider) Authenticate(_ context.Context, creds Credentials) *Result {
	u, ok := p.users.check(creds)
	if !ok {
		p.logger.Debug("authentication rejected", "username", creds["username"])
		return Failed()
	}
	return p.issue(u)
}

// ValidateToken verifies the signature and expiry. Every failure mode
// produces the same negative result.
func (p *SignedTokenProvider) ValidateToken(_ context.Context, token string) *Result {
	claims, err := p.codec.Verify(token, p.opts.now())
	if err != nil {
		p.logger.Debug("token rejected", "error", err)
		return Failed()
	}
	var expiresAt int64
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Unix()
	}
	return &Result{
		Authenticated: true,
		UserID:        claims.Subject,
		Roles:         claims.Roles,
		Permissions:   claims.Permissions,
		Token:         token,
		ExpiresAt:     expiresAt,
	}
}

// RefreshToken re-issues a token for a still-registered user using the
// user's current roles and permissions.
func (p *SignedTokenProvider) RefreshToken(ctx context.Context, token string) *Result {
	validated := p.ValidateToken(ctx, token)
	if !validated.Authenticated {
		return Failed()
	}
	u, ok := p.users.get(validated.UserID)
	if !ok {
		p.logger.Debug("refresh for removed user", "username", validated.UserID)
		return Failed()
	}
	return p.issue(u)
}

func (p *SignedTokenProvider) issue(u *user) *Result {
	expiresAt := p.opts.now().Add(p.opts.expiry)
	token, err := p.codec.Issue(u.username, u.roles, u.permissions, expiresAt)
	if err != nil {
		p.logger.Error("token signing failed", "error", err)
		return Failed()
	}
	return &Result{
		Authenticated: true,
		UserID:        u.username,
		Roles:         u.roles,
		Permissions:   u.permissions,
		Token:         token,
		ExpiresAt:     expiresAt.Unix(),
	}
}
