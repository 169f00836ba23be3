package auth

import "context"

type contextKey string

const (
	AdminIDKey   contextKey = "admin_id"
	TokenJTIKey  contextKey = "token_jti"
	RequestIDKey contextKey = "request_id"
)

// WithAdmin stores the authenticated admin on ctx
func WithAdmin(ctx context.Context, claims *AdminClaims) context.Context {
	ctx = context.WithValue(ctx, AdminIDKey, claims.Subject)
	return context.WithValue(ctx, TokenJTIKey, claims.ID)
}

// AdminIDFromContext returns the admin id placed by the admin middleware
func AdminIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AdminIDKey).(string)
	return id, ok && id != ""
}

// TokenJTIFromContext returns the token id of the authenticated admin
func TokenJTIFromContext(ctx context.Context) string {
	jti, _ := ctx.Value(TokenJTIKey).(string)
	return jti
}
