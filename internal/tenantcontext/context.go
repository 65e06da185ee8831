package tenantcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	userIDKey   contextKey = "user_id"
)

// WithTenantID threads the acting tenant through the call chain. Tenant scope
// is always an explicit parameter; there is no ambient fallback.
func WithTenantID(ctx context.Context, tenantID snowflake.ID) context.Context {
	if tenantID == 0 {
		return ctx
	}
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantIDFromContext returns the acting tenant, if one was set.
func TenantIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	value, ok := ctx.Value(tenantIDKey).(snowflake.ID)
	if !ok || value == 0 {
		return 0, false
	}
	return value, true
}

// WithUserID records the authenticated caller.
func WithUserID(ctx context.Context, userID snowflake.ID) context.Context {
	if userID == 0 {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated caller, if any.
func UserIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	value, ok := ctx.Value(userIDKey).(snowflake.ID)
	if !ok || value == 0 {
		return 0, false
	}
	return value, true
}
