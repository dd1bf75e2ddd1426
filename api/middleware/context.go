package middleware

import (
	"context"
	"time"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxTokenID  contextKey = "token_id"
	ctxTokenExp contextKey = "token_expires_at"
)

// UserIDFromContext returns the authenticated user id, or 0 when absent.
func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(ctxUserID).(int64); ok {
		return v
	}
	return 0
}

func RoleFromContext(ctx context.Context) enums.UserRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.UserRole); ok {
		return v
	}
	return ""
}

// TokenFromContext returns the access token id and expiry set by Auth.
func TokenFromContext(ctx context.Context) (string, time.Time) {
	if ctx == nil {
		return "", time.Time{}
	}
	id, _ := ctx.Value(ctxTokenID).(string)
	exp, _ := ctx.Value(ctxTokenExp).(time.Time)
	return id, exp
}

// WithIdentity injects the caller identity, mainly for controller tests.
func WithIdentity(ctx context.Context, userID int64, role enums.UserRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxRole, role)
}

// WithToken records the access token id and expiry for logout.
func WithToken(ctx context.Context, tokenID string, expiresAt time.Time) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxTokenID, tokenID)
	return context.WithValue(ctx, ctxTokenExp, expiresAt)
}
