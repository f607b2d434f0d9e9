package auth

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	t.Setenv("ACCESSDESK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken("admin-42", []string{"Admin", "viewer", "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "admin-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if !slices.Contains(claims.Roles, "admin") || !slices.Contains(claims.Roles, "viewer") {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", claims.Roles)
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	t.Setenv("ACCESSDESK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken("admin-42", []string{"admin"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseAndValidate(token + "x"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := ParseAndValidate(""); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	t.Setenv("ACCESSDESK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	if _, err := GenerateToken("", []string{"admin"}, time.Minute); err == nil {
		t.Fatal("expected error for empty admin id")
	}
	if _, err := GenerateToken("admin-1", nil, 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithAdmin(ctx, "admin-7", []string{"Admin", "Admin", "viewer"})
	id, ok := AdminIDFromContext(ctx)
	if !ok || id != "admin-7" {
		t.Fatalf("unexpected admin id: %s, ok=%v", id, ok)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
	if !HasRole(ctx, "viewer") || !HasRole(ctx, "admin") {
		t.Fatalf("HasRole missing expected roles: %v", roles)
	}
	if HasRole(ctx, "operator") {
		t.Fatalf("unexpected role found")
	}
}
