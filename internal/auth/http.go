// ABOUTME: HTTP middleware for bearer-token authentication on API endpoints
// ABOUTME: Validates the token through a TokenValidator and adds the principal to context

package auth

import (
	"net/http"
	"strings"
)

// BearerToken returns the token from an Authorization header value.
// "Bearer <token>" is the normal form; a bare token is also accepted.
func BearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if strings.EqualFold(authHeader, "bearer") {
		return ""
	}
	return authHeader
}

// HTTPAuthMiddleware rejects requests without a valid bearer token.
func HTTPAuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
				return
			}

			res := validator.ValidateToken(r.Context(), token)
			if !res.Authenticated {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), res.Principal())))
		})
	}
}

// OptionalAuthMiddleware attaches a principal when a valid token is present
// and otherwise lets the request through anonymously.
func OptionalAuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			res := validator.ValidateToken(r.Context(), token)
			if !res.Authenticated {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), res.Principal())))
		})
	}
}
