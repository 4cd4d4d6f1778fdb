// ABOUTME: HS256 signed-token codec producing compact header.payload.signature strings
// ABOUTME: Payload carries sub, roles, permissions and exp; verification is stateless

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors. Every codec failure wraps ErrInvalidToken.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrMalformedToken   = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrExpiredToken     = fmt.Errorf("%w: token expired", ErrInvalidToken)
	ErrMissingClaim     = fmt.Errorf("%w: missing required claim", ErrInvalidToken)
)

// MinSecretLength is the smallest HS256 secret the codec accepts.
const MinSecretLength = 32

// ErrSecretTooShort is returned by NewTokenCodec for secrets under MinSecretLength.
var ErrSecretTooShort = fmt.Errorf("secret must be at least %d bytes", MinSecretLength)

// SignedClaims is the token payload. Field order fixes the JSON layout:
// {"sub":...,"roles":[...],"permissions":[...],"exp":...}.
type SignedClaims struct {
	Subject     string           `json:"sub"`
	Roles       []string         `json:"roles"`
	Permissions []string         `json:"permissions"`
	ExpiresAt   *jwt.NumericDate `json:"exp,omitempty"`
}

func (c SignedClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c SignedClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (c SignedClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c SignedClaims) GetIssuer() (string, error)                   { return "", nil }
func (c SignedClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c SignedClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// TokenCodec signs and verifies HS256 tokens with a shared secret.
type TokenCodec struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenCodec returns a codec for secret, which must be at least MinSecretLength bytes.
func NewTokenCodec(secret []byte) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &TokenCodec{
		secret: secret,
		// Expiry is checked by Verify against the caller's clock.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// Sign encodes claims as base64url(header).base64url(payload).base64url(hmac).
func (c *TokenCodec) Sign(claims SignedClaims) (string, error) {
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	if claims.Permissions == nil {
		claims.Permissions = []string{}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Issue signs a token for subject that expires at expiresAt.
func (c *TokenCodec) Issue(subject string, roles, permissions []string, expiresAt time.Time) (string, error) {
	return c.Sign(SignedClaims{
		Subject:     subject,
		Roles:       cloneStrings(roles),
		Permissions: cloneStrings(permissions),
		ExpiresAt:   jwt.NewNumericDate(expiresAt),
	})
}

// Verify checks the signature and expiry of tokenString as of now.
// A token without exp never expires.
func (c *TokenCodec) Verify(tokenString string, now time.Time) (*SignedClaims, error) {
	claims := &SignedClaims{}
	_, err := c.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Unix() < now.Unix() {
		return nil, ErrExpiredToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims, nil
}
