// ABOUTME: Stateful provider that keeps issued opaque tokens in a server-side table
// ABOUTME: Expired tokens are deleted on access or by PurgeExpired

package auth

import (
	"context"
	"log/slog"
	"sync"
)

type tokenEntry struct {
	username  string
	expiresAt int64 // unix seconds
}

// MemoryProvider authenticates users from an in-process table and issues
// opaque tokens recorded in an in-process token table.
type MemoryProvider struct {
	users  *userTable
	opts   providerOptions
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]tokenEntry
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider(opts ...ProviderOption) *MemoryProvider {
	o := defaultProviderOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryProvider{
		users:  newUserTable(),
		opts:   o,
		logger: o.logger.With("component", "auth.memory"),
		tokens: make(map[string]tokenEntry),
	}
}

// AddUser registers or overwrites a user.
func (p *MemoryProvider) AddUser(username, password string, roles, permissions []string) {
	p.users.add(username, password, roles, permissions)
}

// RemoveUser deletes a user. Outstanding tokens stop validating.
func (p *MemoryProvider) RemoveUser(username string) bool {
	return p.users.remove(username)
}

// Authenticate checks credentials and issues a new token.
func (p *MemoryProvider) Authenticate(_ context.Context, creds Credentials) *Result {
	u, ok := p.users.check(creds)
	if !ok {
		p.logger.Debug("authentication rejected", "username", creds["username"])
		return Failed()
	}
	return p.issue(u)
}

// ValidateToken looks the token up and returns the current user record.
func (p *MemoryProvider) ValidateToken(_ context.Context, token string) *Result {
	u, entry, ok := p.lookup(token)
	if !ok {
		return Failed()
	}
	return &Result{
		Authenticated: true,
		UserID:        u.username,
		Roles:         u.roles,
		Permissions:   u.permissions,
		Token:         token,
		ExpiresAt:     entry.expiresAt,
	}
}

// RefreshToken issues a new token for a valid one. The old token remains
// valid until its own expiry.
func (p *MemoryProvider) RefreshToken(_ context.Context, token string) *Result {
	u, _, ok := p.lookup(token)
	if !ok {
		return Failed()
	}
	return p.issue(u)
}

// RevokeToken removes token from the table.
func (p *MemoryProvider) RevokeToken(_ context.Context, token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tokens[token]
	delete(p.tokens, token)
	return ok
}

// PurgeExpired drops every expired token and returns how many were removed.
func (p *MemoryProvider) PurgeExpired() int {
	now := p.opts.now().Unix()
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for tok, e := range p.tokens {
		if e.expiresAt < now {
			delete(p.tokens, tok)
			n++
		}
	}
	return n
}

// TokenCount reports how many tokens are stored, including expired ones not yet purged.
func (p *MemoryProvider) TokenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}

func (p *MemoryProvider) issue(u *user) *Result {
	now := p.opts.now()
	token, err := p.opts.generator(u.username, now)
	if err != nil {
		p.logger.Error("token generation failed", "error", err)
		return Failed()
	}
	expiresAt := now.Add(p.opts.expiry).Unix()

	p.mu.Lock()
	p.tokens[token] = tokenEntry{username: u.username, expiresAt: expiresAt}
	p.mu.Unlock()

	return &Result{
		Authenticated: true,
		UserID:        u.username,
		Roles:         u.roles,
		Permissions:   u.permissions,
		Token:         token,
		ExpiresAt:     expiresAt,
	}
}

// lookup resolves token to its user, deleting it if expired.
func (p *MemoryProvider) lookup(token string) (*user, tokenEntry, bool) {
	now := p.opts.now().Unix()

	p.mu.Lock()
	entry, ok := p.tokens[token]
	if ok && entry.expiresAt < now {
		delete(p.tokens, token)
		ok = false
		p.logger.Debug("token expired", "username", entry.username)
	}
	p.mu.Unlock()
	if !ok {
		return nil, tokenEntry{}, false
	}

	u, ok := p.users.get(entry.username)
	if !ok {
		p.logger.Debug("token owner no longer exists", "username", entry.username)
		return nil, tokenEntry{}, false
	}
	return u, entry, true
}
