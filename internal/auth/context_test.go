// ABOUTME: Tests for the request Principal and its context helpers
// ABOUTME: Covers role checks, Result conversion and FromContext/MustFromContext

package auth

import (
	"context"
	"testing"
)

func TestPrincipal_IsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"admin only", []string{"admin"}, true},
		{"admin among others", []string{"read_only", "admin"}, true},
		{"read only", []string{"read_only"}, false},
		{"data scientist", []string{"data_scientist"}, false},
		{"empty", []string{}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Principal{UserID: "u", Roles: tt.roles}
			if got := p.IsAdmin(); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v for roles %v", got, tt.want, tt.roles)
			}
		})
	}
}

func TestResult_Principal(t *testing.T) {
	if Failed().Principal() != nil {
		t.Error("failed result should not produce a principal")
	}
	var nilResult *Result
	if nilResult.Principal() != nil {
		t.Error("nil result should not produce a principal")
	}

	res := &Result{
		Authenticated: true,
		UserID:        "alice",
		Roles:         []string{"read_only"},
		Permissions:   []string{"data:x:read"},
		Token:         "tok",
		ExpiresAt:     42,
	}
	p := res.Principal()
	if p.UserID != "alice" || p.Token != "tok" || p.ExpiresAt != 42 {
		t.Errorf("unexpected principal %+v", p)
	}

	p.Roles[0] = "admin"
	if res.Roles[0] != "read_only" {
		t.Error("principal roles must not alias the result")
	}
}

func TestFromContext_Present(t *testing.T) {
	expected := &Principal{UserID: "test-id", Roles: []string{"admin"}}

	got := FromContext(WithPrincipal(context.Background(), expected))
	if got == nil {
		t.Fatal("FromContext() = nil, want non-nil")
	}
	if got.UserID != expected.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, expected.UserID)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestMustFromContext_Missing(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustFromContext() did not panic when principal missing")
		}
	}()
	MustFromContext(context.Background())
}
