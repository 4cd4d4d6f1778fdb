// ABOUTME: Authentication manager dispatching to providers registered by id
// ABOUTME: Tokens prefixed with "<provider>:" go straight to that provider, others fall back

package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Operation names reported to an Observer.
const (
	OpAuthenticate = "authenticate"
	OpValidate     = "validate"
	OpRefresh      = "refresh"
)

// Observer is notified of every manager outcome.
type Observer interface {
	ObserveAuth(operation string, success bool)
}

// Manager routes authentication calls to registered providers.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string

	observer Observer
	logger   *slog.Logger
}

// NewManager creates a manager with no providers.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		providers: make(map[string]Provider),
		logger:    logger.With("component", "auth"),
	}
}

// SetObserver installs an outcome observer. Pass nil to remove it.
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// RegisterProvider adds or replaces the provider for id. A replaced provider
// keeps its original position in the fallback order.
func (m *Manager) RegisterProvider(id string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[id]; !exists {
		m.order = append(m.order, id)
	}
	m.providers[id] = p
	m.logger.Info("registered auth provider", "provider", id)
}

// Provider returns the provider registered under id.
func (m *Manager) Provider(id string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	return p, ok
}

// ProviderIDs returns ids in registration order.
func (m *Manager) ProviderIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneStrings(m.order)
}

// Authenticate delegates to provider id. An unknown id fails closed.
func (m *Manager) Authenticate(ctx context.Context, providerID string, creds Credentials) *Result {
	p, ok := m.Provider(providerID)
	if !ok {
		m.logger.Warn("authenticate with unknown provider", "provider", providerID)
		return m.observe(OpAuthenticate, Failed())
	}
	return m.observe(OpAuthenticate, p.Authenticate(ctx, creds))
}

// ValidateToken resolves token to a principal.
//
// A token of the form "<id>:<value>" where id is registered is validated by
// that provider alone. Anything else is offered, unchanged, to every provider
// in registration order and the first success wins.
func (m *Manager) ValidateToken(ctx context.Context, token string) *Result {
	if id, value, found := strings.Cut(token, ":"); found {
		if p, ok := m.Provider(id); ok {
			return m.observe(OpValidate, p.ValidateToken(ctx, value))
		}
	}

	for _, p := range m.snapshot() {
		if res := p.ValidateToken(ctx, token); res.Authenticated {
			return m.observe(OpValidate, res)
		}
	}
	return m.observe(OpValidate, Failed())
}

// RefreshToken delegates to provider id. An unknown id fails closed.
func (m *Manager) RefreshToken(ctx context.Context, providerID, token string) *Result {
	p, ok := m.Provider(providerID)
	if !ok {
		m.logger.Warn("refresh with unknown provider", "provider", providerID)
		return m.observe(OpRefresh, Failed())
	}
	return m.observe(OpRefresh, p.RefreshToken(ctx, token))
}

// RevokeToken asks every provider that keeps token state to drop token.
// Reports whether any provider knew the token.
func (m *Manager) RevokeToken(ctx context.Context, token string) bool {
	if id, value, found := strings.Cut(token, ":"); found {
		if p, ok := m.Provider(id); ok {
			if r, ok := p.(Revoker); ok {
				return r.RevokeToken(ctx, value)
			}
			return false
		}
	}
	revoked := false
	for _, p := range m.snapshot() {
		if r, ok := p.(Revoker); ok && r.RevokeToken(ctx, token) {
			revoked = true
		}
	}
	return revoked
}

// snapshot copies the providers in order so calls run without the lock held.
func (m *Manager) snapshot() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Provider, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.providers[id])
	}
	return out
}

func (m *Manager) observe(op string, res *Result) *Result {
	m.mu.RLock()
	o := m.observer
	m.mu.RUnlock()
	if o != nil {
		o.ObserveAuth(op, res.Authenticated)
	}
	return res
}
