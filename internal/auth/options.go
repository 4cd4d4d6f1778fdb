// ABOUTME: Functional options shared by the memory and signed-token providers
// ABOUTME: Covers token lifetime, token generation, clock injection and logging

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTokenExpiry is the token lifetime used when none is configured.
const DefaultTokenExpiry = 60 * time.Minute

// TokenGenerator mints an opaque token for username at time now.
type TokenGenerator func(username string, now time.Time) (string, error)

// RandomTokens returns 256 bits from crypto/rand, base64url encoded.
func RandomTokens(string, time.Time) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TimestampTokens returns "username_unixseconds". These tokens are guessable
// and should only be used where deterministic values are needed, such as tests.
func TimestampTokens(username string, now time.Time) (string, error) {
	return fmt.Sprintf("%s_%d", username, now.Unix()), nil
}

type providerOptions struct {
	expiry    time.Duration
	generator TokenGenerator
	now       func() time.Time
	logger    *slog.Logger
}

func defaultProviderOptions() providerOptions {
	return providerOptions{
		expiry:    DefaultTokenExpiry,
		generator: RandomTokens,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// ProviderOption configures a MemoryProvider or SignedTokenProvider.
type ProviderOption func(*providerOptions)

// WithTokenExpiry sets the lifetime of issued tokens. Non-positive values are ignored.
func WithTokenExpiry(d time.Duration) ProviderOption {
	return func(o *providerOptions) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// WithTokenGenerator replaces the opaque token generator. Only the memory provider uses it.
func WithTokenGenerator(g TokenGenerator) ProviderOption {
	return func(o *providerOptions) {
		if g != nil {
			o.generator = g
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) ProviderOption {
	return func(o *providerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
