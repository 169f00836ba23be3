// Package portone implements the payment gateway port against the PortOne (iamport) REST API.
package portone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	adapterports "github.com/kevin07696/saju-payments/internal/adapters/ports"
	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
	"github.com/kevin07696/saju-payments/pkg/observability"
	"github.com/kevin07696/saju-payments/pkg/resilience"
	"github.com/kevin07696/saju-payments/pkg/timeutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

var maxAmount = decimal.NewFromInt(math.MaxInt64)

var (
	errUnauthorized = errors.New("gateway rejected access token")
	errNotFound     = errors.New("gateway resource not found")
)

// Config contains configuration for the PortOne client
type Config struct {
	// Sandbox and production share the same host; the API key decides the mode.
	BaseURL   string
	APIKey    string
	APISecret string

	// Budget for one logical operation, retries included
	Timeout time.Duration

	// Retries for idempotent calls (token, fetch, prepare). Cancel is never retried.
	MaxRetries int

	// Tokens are refreshed this long before the provider's expiry
	TokenRefreshLeeway time.Duration
}

// DefaultConfig returns default configuration for the PortOne client
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://api.iamport.kr",
		Timeout:            10 * time.Second,
		MaxRetries:         2,
		TokenRefreshLeeway: 60 * time.Second,
	}
}

// Client implements ports.GatewayClient
type Client struct {
	config     *Config
	httpClient adapterports.HTTPClient
	tokens     TokenCache
	breaker    *resilience.CircuitBreaker
	backoff    resilience.BackoffStrategy
	logger     *zap.Logger
	refreshMu  sync.Mutex
	now        func() time.Time
}

var _ ports.GatewayClient = (*Client)(nil)

// NewClient creates a new PortOne client. tokens may be nil for an in-process cache.
func NewClient(cfg *Config, httpClient adapterports.HTTPClient, tokens TokenCache, logger *zap.Logger) *Client {
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}

	breakerConfig := resilience.DefaultCircuitBreakerConfig()
	breakerConfig.OnStateChange = func(from, to resilience.CircuitState) {
		observability.SetGatewayCircuitState(int(to))
		logger.Warn("Gateway circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		tokens:     tokens,
		breaker:    resilience.NewCircuitBreaker(breakerConfig),
		backoff:    resilience.DefaultExponentialBackoff(),
		logger:     logger,
		now:        time.Now,
	}
}

// Authenticate returns a valid access token, refreshing it before expiry
func (c *Client) Authenticate(ctx context.Context) (ports.Credential, error) {
	if cred, ok := c.cachedCredential(ctx); ok {
		return cred, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited
	if cred, ok := c.cachedCredential(ctx); ok {
		return cred, nil
	}

	var resp tokenResponse
	err := c.call(ctx, "get_token", http.MethodPost, "/users/getToken",
		tokenRequest{ImpKey: c.config.APIKey, ImpSecret: c.config.APISecret}, "", true, &resp)
	if err != nil {
		if errors.Is(err, errUnauthorized) || errors.Is(err, errNotFound) {
			return ports.Credential{}, domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, "gateway rejected API credentials", err)
		}
		return ports.Credential{}, err
	}
	if resp.AccessToken == "" || resp.ExpiredAt == 0 {
		return ports.Credential{}, domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse, "token response missing access_token or expired_at")
	}

	cred := ports.Credential{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Unix(resp.ExpiredAt, 0).UTC(),
	}
	if err := c.tokens.Set(ctx, cred); err != nil {
		c.logger.Warn("Failed to store gateway token in cache", zap.Error(err))
	}

	c.logger.Debug("Gateway access token refreshed", zap.Time("expires_at", cred.ExpiresAt))
	return cred, nil
}

func (c *Client) cachedCredential(ctx context.Context) (ports.Credential, bool) {
	cred, ok, err := c.tokens.Get(ctx)
	if err != nil {
		c.logger.Warn("Gateway token cache unavailable, requesting a new token", zap.Error(err))
		return ports.Credential{}, false
	}
	if !ok || cred.Expired(c.now(), c.config.TokenRefreshLeeway) {
		return ports.Credential{}, false
	}
	return cred, true
}

// FetchTransaction queries the provider for the canonical state of gatewayRef
func (c *Client) FetchTransaction(ctx context.Context, gatewayRef, merchantUID string) (*ports.GatewayTransaction, error) {
	if gatewayRef == "" {
		return nil, domain.NewMissingFieldError("gatewayRef")
	}

	var resp paymentResponse
	err := c.authorizedCall(ctx, "fetch", http.MethodGet, "/payments/"+url.PathEscape(gatewayRef), nil, true, &resp)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, domain.WrapError(domain.ErrorCodeGatewayMismatch,
				fmt.Sprintf("gateway transaction %s does not exist", gatewayRef), err)
		}
		return nil, err
	}

	if resp.MerchantUID != merchantUID {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayMismatch,
			fmt.Sprintf("gateway transaction %s belongs to merchant_uid %s, not %s", gatewayRef, resp.MerchantUID, merchantUID)).
			WithDetail("gateway_merchant_uid", resp.MerchantUID)
	}

	amount, err := parseAmount(resp.Amount)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, "parse payment amount", err)
	}

	txn := &ports.GatewayTransaction{
		GatewayRef:  resp.ImpUID,
		MerchantUID: resp.MerchantUID,
		Status:      domain.GatewayStatus(strings.ToLower(resp.Status)),
		Amount:      amount,
	}
	if txn.GatewayRef == "" {
		txn.GatewayRef = gatewayRef
	}
	if resp.FailReason != nil {
		txn.FailReason = *resp.FailReason
	}
	txn.PaidAt = timeutil.FromUnix(resp.PaidAt)

	c.logger.Debug("Fetched gateway transaction",
		zap.String("gateway_ref", gatewayRef),
		zap.String("merchant_uid", merchantUID),
		zap.String("gateway_status", string(txn.Status)),
		zap.Int64("amount", amount),
	)

	return txn, nil
}

// Cancel refunds the full amount of gatewayRef. It is not retried automatically.
func (c *Client) Cancel(ctx context.Context, gatewayRef, reason string) (*ports.CancelResult, error) {
	if gatewayRef == "" {
		return nil, domain.NewMissingFieldError("gatewayRef")
	}

	var resp cancelResponse
	err := c.authorizedCall(ctx, "cancel", http.MethodPost, "/payments/cancel",
		cancelRequest{ImpUID: gatewayRef, Reason: reason}, false, &resp)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, domain.WrapError(domain.ErrorCodeGatewayInvalidResponse,
				fmt.Sprintf("gateway transaction %s does not exist", gatewayRef), err)
		}
		return nil, err
	}

	amount, err := parseAmount(resp.CancelAmount)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, "parse cancelled amount", err)
	}

	result := &ports.CancelResult{
		GatewayRef:      gatewayRef,
		CancelledAmount: amount,
		CancelledAt:     c.now().UTC(),
	}
	if cancelledAt := timeutil.FromUnix(resp.CancelledAt); cancelledAt != nil {
		result.CancelledAt = *cancelledAt
	}

	c.logger.Info("Gateway transaction cancelled",
		zap.String("gateway_ref", gatewayRef),
		zap.Int64("cancelled_amount", amount),
	)

	return result, nil
}

// Prepare pins the expected amount for merchantUID at the provider
func (c *Client) Prepare(ctx context.Context, merchantUID string, amount int64) (string, error) {
	var resp prepareResponse
	err := c.authorizedCall(ctx, "prepare", http.MethodPost, "/payments/prepare",
		prepareRequest{MerchantUID: merchantUID, Amount: amount}, true, &resp)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return "", domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, "prepare endpoint not found", err)
		}
		return "", err
	}

	if resp.MerchantUID != "" && resp.MerchantUID != merchantUID {
		return "", domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse,
			fmt.Sprintf("prepare answered for merchant_uid %s", resp.MerchantUID))
	}
	if resp.Amount != "" {
		prepared, err := parseAmount(resp.Amount)
		if err != nil || prepared != amount {
			return "", domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse,
				fmt.Sprintf("prepare registered amount %s, expected %d", resp.Amount, amount))
		}
	}

	return merchantUID, nil
}

// authorizedCall attaches the access token and re-authenticates once when the
// provider rejects a token that the cache still considered valid.
func (c *Client) authorizedCall(ctx context.Context, op, method, path string, body interface{}, retry bool, out interface{}) error {
	for reauth := 0; ; reauth++ {
		cred, err := c.Authenticate(ctx)
		if err != nil {
			return err
		}

		err = c.call(ctx, op, method, path, body, cred.AccessToken, retry, out)
		if !errors.Is(err, errUnauthorized) {
			return err
		}
		if invErr := c.tokens.Invalidate(ctx); invErr != nil {
			c.logger.Warn("Failed to invalidate gateway token", zap.Error(invErr))
		}
		if reauth >= 1 {
			return domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, op+": gateway rejected a fresh access token", err)
		}
	}
}

// call runs one logical operation through the circuit breaker with bounded retries.
// Only unavailability errors are retried and counted against the breaker.
func (c *Client) call(ctx context.Context, op, method, path string, body interface{}, token string, retry bool, out interface{}) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
	}

	maxAttempts := 1
	if retry {
		maxAttempts += c.config.MaxRetries
	}

	err := c.breaker.Call(func() error {
		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				delay := c.backoff.NextDelay(attempt - 1)
				c.logger.Info("Retrying gateway request with exponential backoff",
					zap.String("operation", op),
					zap.Int("attempt", attempt),
					zap.Duration("backoff_delay", delay),
				)
				select {
				case <-ctx.Done():
					return domain.WrapError(domain.ErrorCodeGatewayUnavailable, op+": retry cancelled", ctx.Err())
				case <-time.After(delay):
				}
			}

			lastErr = c.do(ctx, op, method, path, payload, token, out)
			if lastErr == nil || !domain.IsDomainError(lastErr, domain.ErrorCodeGatewayUnavailable) {
				return lastErr
			}
			c.logger.Warn("Gateway request failed",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}
		return lastErr
	}, func(err error) bool {
		return !domain.IsDomainError(err, domain.ErrorCodeGatewayUnavailable)
	})

	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		c.logger.Warn("Circuit breaker is open, rejecting gateway request",
			zap.String("operation", op),
			zap.String("circuit_state", c.breaker.State().String()),
		)
		err = domain.WrapError(domain.ErrorCodeGatewayUnavailable, op, err)
	}

	observability.RecordGatewayRequest(op, statusLabel(err), time.Since(start).Seconds())
	return err
}

// do performs a single HTTP exchange and classifies the outcome
func (c *Client) do(ctx context.Context, op, method, path string, payload []byte, token string, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeGatewayUnavailable, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeGatewayUnavailable, op+": read response", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", errNotFound, envelopeMessage(env))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.WrapError(domain.ErrorCodeGatewayUnavailable, op,
			fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse,
			fmt.Sprintf("%s: status %d: %s", op, resp.StatusCode, envelopeMessage(env)))
	}

	if decodeErr != nil {
		return domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, op+": decode response", decodeErr)
	}
	if env.Code != 0 {
		return domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse,
			fmt.Sprintf("%s: code %d: %s", op, env.Code, envelopeMessage(env)))
	}
	if out != nil {
		if len(env.Response) == 0 || string(env.Response) == "null" {
			return domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse, op+": empty response")
		}
		if err := json.Unmarshal(env.Response, out); err != nil {
			return domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, op+": decode response body", err)
		}
	}
	return nil
}

func envelopeMessage(env envelope) string {
	if env.Message == nil {
		return ""
	}
	return *env.Message
}

// parseAmount accepts integral amounts only; the provider may encode them as 9900 or 9900.0
func parseAmount(n json.Number) (int64, error) {
	if n == "" {
		return 0, fmt.Errorf("amount is missing")
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", n, err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("amount %s is not integral", d)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", d)
	}
	if d.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("amount %s is out of range", d)
	}
	return d.IntPart(), nil
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errUnauthorized):
		return "unauthorized"
	case errors.Is(err, errNotFound):
		return "not_found"
	}
	if code := domain.GetErrorCode(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}
