package order

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/saju-payments/internal/domain"
	serviceports "github.com/kevin07696/saju-payments/internal/services/ports"
)

// webhookPayload accepts both the provider's snake_case field names and the
// camelCase names used by the rest of the API. Status is logged only.
type webhookPayload struct {
	ImpUID      string `json:"imp_uid"`
	GatewayRef  string `json:"gatewayRef"`
	MerchantUID string `json:"merchant_uid"`
	MerchantAlt string `json:"merchantUid"`
	Status      string `json:"status"`
}

func (p webhookPayload) gatewayRef() string {
	return strings.TrimSpace(firstNonEmpty(p.ImpUID, p.GatewayRef))
}

func (p webhookPayload) merchantUID() string {
	return strings.TrimSpace(firstNonEmpty(p.MerchantUID, p.MerchantAlt))
}

type webhookAck struct {
	Received bool `json:"received"`
}

// Webhook handles POST /orders/webhook.
//
// The provider retries any non-2xx response, and reconciliation is safe to
// repeat, so every delivery is acknowledged with 200. Failures are visible
// only in logs and metrics.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Webhook handler panicked",
				zap.Any("panic", rec),
				zap.String("alert", "webhook_panic"))
			writeJSON(w, http.StatusOK, webhookAck{Received: true})
		}
	}()

	payload, err := readWebhookPayload(w, r)
	if err != nil {
		h.logger.Warn("Webhook payload could not be parsed", zap.Error(err))
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	ref, merchantUID := payload.gatewayRef(), payload.merchantUID()
	logFields := []zap.Field{
		zap.String("merchant_uid", merchantUID),
		zap.String("gateway_ref", ref),
		zap.String("reported_status", payload.Status),
	}

	if ref == "" || merchantUID == "" || payload.Status == "" {
		h.logger.Warn("Webhook payload missing required fields", logFields...)
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	// Detached from the provider's connection so a hang-up does not abort
	// a reconcile that is already talking to the gateway
	ctx, cancel := h.timeouts.WebhookContext(r.Context())
	defer cancel()

	result, err := h.reconcile.Reconcile(ctx, &serviceports.ReconcileRequest{
		MerchantUID: merchantUID,
		GatewayRef:  ref,
		Source:      serviceports.SourceWebhook,
	})
	if err != nil {
		h.logWebhookFailure(err, logFields)
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	h.logger.Info("Webhook reconciled",
		append(logFields,
			zap.String("outcome", string(result.Outcome)),
			zap.String("status", string(result.Order.Status)))...)
	writeJSON(w, http.StatusOK, webhookAck{Received: true})
}

func (h *Handler) logWebhookFailure(err error, fields []zap.Field) {
	fields = append(fields,
		zap.String("code", string(domain.GetErrorCode(err))),
		zap.Error(err))

	switch {
	case domain.IsSecurityEvent(err):
		h.logger.Error("Webhook rejected as potential forged completion",
			append(fields, zap.String("security_event", domain.SecurityEventForgedCompletion))...)
	case domain.IsNotFoundError(err):
		h.logger.Warn("Webhook for unknown order", fields...)
	case domain.IsDomainError(err, domain.ErrorCodePaymentNotCompleted),
		domain.IsDomainError(err, domain.ErrorCodeOrderStateConflict):
		h.logger.Info("Webhook did not change order state", fields...)
	default:
		h.logger.Error("Webhook reconciliation failed; order stays pending",
			append(fields, zap.String("alert", "webhook_reconcile_failed"))...)
	}
}

func readWebhookPayload(w http.ResponseWriter, r *http.Request) (webhookPayload, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return webhookPayload{}, err
		}
		return webhookPayload{
			ImpUID:      r.PostForm.Get("imp_uid"),
			GatewayRef:  r.PostForm.Get("gatewayRef"),
			MerchantUID: r.PostForm.Get("merchant_uid"),
			MerchantAlt: r.PostForm.Get("merchantUid"),
			Status:      r.PostForm.Get("status"),
		}, nil
	}

	var payload webhookPayload
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return webhookPayload{}, err
	}
	return payload, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
