package portone

import "encoding/json"

// envelope is the provider's common response wrapper. code 0 means success.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Message  *string         `json:"message"`
	Code     int             `json:"code"`
}

type tokenRequest struct {
	ImpKey    string `json:"imp_key"`
	ImpSecret string `json:"imp_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Now         int64  `json:"now"`
	ExpiredAt   int64  `json:"expired_at"`
}

type paymentResponse struct {
	ImpUID      string      `json:"imp_uid"`
	MerchantUID string      `json:"merchant_uid"`
	Status      string      `json:"status"`
	FailReason  *string     `json:"fail_reason"`
	Amount      json.Number `json:"amount"`
	PaidAt      int64       `json:"paid_at"`
}

type cancelRequest struct {
	ImpUID string `json:"imp_uid"`
	Reason string `json:"reason,omitempty"`
}

type cancelResponse struct {
	ImpUID       string      `json:"imp_uid"`
	CancelAmount json.Number `json:"cancel_amount"`
	CancelledAt  int64       `json:"cancelled_at"`
}

type prepareRequest struct {
	MerchantUID string `json:"merchant_uid"`
	Amount      int64  `json:"amount"`
}

type prepareResponse struct {
	MerchantUID string      `json:"merchant_uid"`
	Amount      json.Number `json:"amount"`
}
