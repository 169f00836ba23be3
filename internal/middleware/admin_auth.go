package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/saju-payments/internal/auth"
	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/pkg/observability"
)

// TokenValidator validates admin bearer tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.AdminClaims, error)
}

// AdminAuth guards admin routes with a bearer token
type AdminAuth struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAdminAuth creates the admin authentication middleware
func NewAdminAuth(validator TokenValidator, logger *zap.Logger) *AdminAuth {
	return &AdminAuth{
		validator: validator,
		logger:    logger,
	}
}

// Middleware rejects requests without a valid admin token and stores the
// admin id on the request context otherwise.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			writeAuthError(w, domain.ErrorCodeAuthMissing, "admin bearer token required")
			return
		}

		claims, err := a.validator.ValidateToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, auth.ErrNotAdmin) {
				reason = "not_admin"
			}
			a.logger.Warn("Admin authentication failed",
				zap.String("path", r.URL.Path),
				zap.String("reason", reason),
				zap.Error(err))
			observability.RecordSecurityEvent("admin_auth_failed", reason)
			writeAuthError(w, domain.ErrorCodeAuthInvalid, "admin bearer token is invalid")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithAdmin(r.Context(), claims)))
	})
}

func writeAuthError(w http.ResponseWriter, code domain.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    string(code),
			"message": message,
		},
	})
}
