package auth

import (
	"context"
	"strings"
)

type ctxKey string

const (
	adminIDKey ctxKey = "auth_admin_id"
	rolesKey   ctxKey = "auth_roles"
)

// ContextWithAdmin stores the authenticated administrator identity in the context.
func ContextWithAdmin(ctx context.Context, adminID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, adminIDKey, strings.TrimSpace(adminID))
	if len(roles) > 0 {
		ctx = context.WithValue(ctx, rolesKey, dedupeRoles(roles))
	}
	return ctx
}

// AdminIDFromContext extracts the acting administrator ID from context.
func AdminIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(adminIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// RolesFromContext returns the roles stored in context (deduplicated and lower-cased).
func RolesFromContext(ctx context.Context) []string {
	v, ok := ctx.Value(rolesKey).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// HasRole checks whether the context contains the specified role.
func HasRole(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
