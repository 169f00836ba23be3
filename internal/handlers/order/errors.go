package order

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/saju-payments/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusForCode maps domain error codes to HTTP status codes
func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidationFailed,
		domain.ErrorCodeValidationMissingField,
		domain.ErrorCodeOrderAmountMismatch,
		domain.ErrorCodeGatewayMismatch:
		return http.StatusBadRequest
	case domain.ErrorCodeAuthMissing, domain.ErrorCodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.ErrorCodeOrderNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeOrderStateConflict,
		domain.ErrorCodeOrderInvalidState,
		domain.ErrorCodePaymentNotCompleted,
		domain.ErrorCodeOrderDuplicateKey:
		return http.StatusConflict
	case domain.ErrorCodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	case domain.ErrorCodeGatewayInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the JSON error body. Internal details never
// reach the client on 5xx responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) && domain.GetErrorCode(err) == "" {
		err = domain.WrapError(domain.ErrorCodeGatewayUnavailable, "request timed out", err)
	}

	body := errorBody{Error: errorDetail{
		Code:    string(domain.ErrorCodeInternalError),
		Message: "internal server error",
	}}
	status := http.StatusInternalServerError

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		status = statusForCode(domainErr.Code)
		body.Error.Code = string(domainErr.Code)
		if status < http.StatusInternalServerError || status == http.StatusServiceUnavailable {
			body.Error.Message = domainErr.Message
		}
		if field, ok := domainErr.Details["field"].(string); ok {
			body.Error.Field = field
		}
	}

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("code", body.Error.Code),
		zap.Error(err),
	}
	switch {
	case domain.IsSecurityEvent(err):
		h.logger.Error("Rejected request with security-relevant error",
			append(fields, zap.String("security_event", domain.SecurityEventForgedCompletion))...)
	case status >= http.StatusInternalServerError:
		h.logger.Error("Request failed", fields...)
	default:
		h.logger.Debug("Request rejected", fields...)
	}

	writeJSON(w, status, body)
}
