package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
)

// MockGatewayClient is a mock implementation of GatewayClient for testing
type MockGatewayClient struct {
	mu sync.Mutex

	// Responses to return
	transactions map[string]*ports.GatewayTransaction
	fetchError   error
	cancelResult *ports.CancelResult
	cancelError  error
	prepareError error

	// FetchHook runs before every fetch, outside the lock
	FetchHook func(gatewayRef string)

	// Call tracking
	AuthenticateCalls int
	FetchCalls        int
	CancelCalls       int
	PrepareCalls      int

	// Last request received
	LastCancelRef    string
	LastCancelReason string
	LastPrepareUID   string
	LastPrepareAmt   int64
}

var _ ports.GatewayClient = (*MockGatewayClient)(nil)

// NewMockGatewayClient creates a new mock gateway client
func NewMockGatewayClient() *MockGatewayClient {
	return &MockGatewayClient{transactions: make(map[string]*ports.GatewayTransaction)}
}

// SetTransaction registers the canonical record returned for gatewayRef
func (m *MockGatewayClient) SetTransaction(txn *ports.GatewayTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[txn.GatewayRef] = txn
}

// SetPaid registers a paid transaction
func (m *MockGatewayClient) SetPaid(gatewayRef, merchantUID string, amount int64) {
	paidAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.SetTransaction(&ports.GatewayTransaction{
		GatewayRef:  gatewayRef,
		MerchantUID: merchantUID,
		Status:      domain.GatewayStatusPaid,
		Amount:      amount,
		PaidAt:      &paidAt,
	})
}

// SetFetchError makes every fetch fail with err
func (m *MockGatewayClient) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchError = err
}

// SetCancelResponse sets the response to return from Cancel
func (m *MockGatewayClient) SetCancelResponse(result *ports.CancelResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelResult = result
	m.cancelError = err
}

// SetPrepareError makes Prepare fail with err
func (m *MockGatewayClient) SetPrepareError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareError = err
}

// Authenticate returns a fixed credential
func (m *MockGatewayClient) Authenticate(ctx context.Context) (ports.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthenticateCalls++
	return ports.Credential{AccessToken: "mock-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// FetchTransaction returns the registered transaction or a mismatch for unknown refs
func (m *MockGatewayClient) FetchTransaction(ctx context.Context, gatewayRef, merchantUID string) (*ports.GatewayTransaction, error) {
	if m.FetchHook != nil {
		m.FetchHook(gatewayRef)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++

	if m.fetchError != nil {
		return nil, m.fetchError
	}
	txn, ok := m.transactions[gatewayRef]
	if !ok || txn.MerchantUID != merchantUID {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayMismatch, "unknown gateway transaction "+gatewayRef)
	}
	copied := *txn
	return &copied, nil
}

// Cancel records the call and returns the configured response
func (m *MockGatewayClient) Cancel(ctx context.Context, gatewayRef, reason string) (*ports.CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls++
	m.LastCancelRef = gatewayRef
	m.LastCancelReason = reason

	if m.cancelError != nil {
		return nil, m.cancelError
	}
	if m.cancelResult != nil {
		return m.cancelResult, nil
	}
	return &ports.CancelResult{GatewayRef: gatewayRef, CancelledAt: time.Now().UTC()}, nil
}

// Prepare records the call and echoes merchantUID
func (m *MockGatewayClient) Prepare(ctx context.Context, merchantUID string, amount int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PrepareCalls++
	m.LastPrepareUID = merchantUID
	m.LastPrepareAmt = amount

	if m.prepareError != nil {
		return "", m.prepareError
	}
	return merchantUID, nil
}

// Counts returns fetch and cancel call counts
func (m *MockGatewayClient) Counts() (fetch, cancel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FetchCalls, m.CancelCalls
}
