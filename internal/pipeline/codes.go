package pipeline

import (
	"net/http"

	"github.com/paygate/paygate/internal/payment"
)

// Code is a client-facing error code. Codes are deterministic: the caller
// must change its input (pay, supply a key, wait) to succeed, except
// NOT_READY and INTERNAL_ERROR which are safe to retry unchanged.
type Code string

const (
	CodeRateLimited         Code = "RATE_LIMITED"
	CodePaymentRequired     Code = "PAYMENT_REQUIRED"
	CodePaymentInvalid      Code = "PAYMENT_INVALID"
	CodeIdempotencyRequired Code = "IDEMPOTENCY_REQUIRED"
	CodeIdempotencyReplay   Code = "IDEMPOTENCY_REPLAY"
	CodeNotReady            Code = "NOT_READY"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInternalError       Code = "INTERNAL_ERROR"
)

// HTTPStatus maps a code to its response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodePaymentRequired, CodePaymentInvalid:
		return http.StatusPaymentRequired
	case CodeIdempotencyRequired:
		return http.StatusBadRequest
	case CodeIdempotencyReplay:
		return http.StatusConflict
	case CodeNotReady:
		return http.StatusServiceUnavailable
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorDetail is the error object inside the uniform envelope.
type ErrorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ErrorBody is the uniform error envelope. Payment carries the
// accepted-payment instructions on PAYMENT_REQUIRED responses.
type ErrorBody struct {
	OK      bool                      `json:"ok"`
	Error   ErrorDetail               `json:"error"`
	Payment *payment.RequiredResponse `json:"payment,omitempty"`
}

// NewErrorBody builds an error envelope.
func NewErrorBody(code Code, message string) ErrorBody {
	return ErrorBody{Error: ErrorDetail{Code: code, Message: message}}
}

// Receipt records what a successful paid call cost and settled as.
type Receipt struct {
	Amount         string `json:"amount"`
	Asset          string `json:"asset"`
	Network        string `json:"network"`
	Receiver       string `json:"receiver"`
	Payer          string `json:"payer"`
	IdempotencyKey string `json:"idempotencyKey"`
	SettlementRef  string `json:"settlementRef,omitempty"`
	RequestID      string `json:"requestId"`
}

// SuccessBody is the uniform success envelope for the gated route.
type SuccessBody struct {
	OK      bool        `json:"ok"`
	Data    interface{} `json:"data"`
	Receipt *Receipt    `json:"receipt,omitempty"`
}
