package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/saju-payments/internal/auth"
)

func newTestAdminAuth(t *testing.T) (*AdminAuth, *auth.JWTManager) {
	t.Helper()
	jm, err := auth.NewJWTManager([]byte("0123456789abcdef0123456789abcdef"), "saju-payments", time.Hour)
	require.NoError(t, err)
	return NewAdminAuth(jm, zaptest.NewLogger(t)), jm
}

func echoAdmin() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.AdminIDFromContext(r.Context())
		_, _ = w.Write([]byte(id))
	})
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestAdminAuth_ValidToken(t *testing.T) {
	mw, jm := newTestAdminAuth(t)
	token, err := jm.GenerateToken("admin-9")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/orders/1/refund", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	mw.Middleware(echoAdmin()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-9", rec.Body.String())
}

func TestAdminAuth_Rejections(t *testing.T) {
	mw, _ := newTestAdminAuth(t)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing_header", "", "AUTH_MISSING"},
		{"wrong_scheme", "Basic YWRtaW46cGFzcw==", "AUTH_MISSING"},
		{"garbage_token", "Bearer not-a-jwt", "AUTH_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/orders/pending", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
			mw.Middleware(next).ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, decodeErrorCode(t, rec))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	NewSecurityHeaders(false).Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	NewSecurityHeaders(true).Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
