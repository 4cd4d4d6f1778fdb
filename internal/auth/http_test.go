// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, principal propagation, and admin gate

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type mockValidator struct {
	token string
	res   *Result
}

func (m *mockValidator) ValidateToken(_ context.Context, token string) *Result {
	if token == m.token {
		return m.res
	}
	return Failed()
}

func newMockValidator() *mockValidator {
	return &mockValidator{
		token: "good-token",
		res: &Result{
			Authenticated: true,
			UserID:        "user-123",
			Roles:         []string{"read_only"},
			Permissions:   []string{"data:*:read"},
			Token:         "good-token",
		},
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"  Bearer   abc  ", "abc"},
		{"abc", "abc"},
		{"Bearer", ""},
		{"Bearer ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	middleware := HTTPAuthMiddleware(newMockValidator())

	var got *Principal
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got == nil {
		t.Fatal("expected Principal in context")
	}
	if got.UserID != "user-123" {
		t.Errorf("expected user-123, got %s", got.UserID)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "read_only" {
		t.Errorf("expected roles [read_only], got %v", got.Roles)
	}
	if got.Token != "good-token" {
		t.Errorf("expected token carried on principal, got %q", got.Token)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "authentication required"},
		{"empty bearer", "Bearer ", "authentication required"},
		{"invalid token", "Bearer bad-token", "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := HTTPAuthMiddleware(newMockValidator())
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			middleware(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("expected body to mention %q, got %s", tt.wantMsg, rec.Body.String())
			}
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	middleware := OptionalAuthMiddleware(newMockValidator())

	tests := []struct {
		header      string
		wantPresent bool
	}{
		{"", false},
		{"Bearer bad-token", false},
		{"Bearer good-token", true},
	}
	for _, tt := range tests {
		var called bool
		var got *Principal
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			got = FromContext(r.Context())
		})
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		middleware(handler).ServeHTTP(httptest.NewRecorder(), req)

		if !called {
			t.Errorf("%q: handler should always be called", tt.header)
		}
		if (got != nil) != tt.wantPresent {
			t.Errorf("%q: principal present = %v, want %v", tt.header, got != nil, tt.wantPresent)
		}
	}
}
