package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/paygate/paygate/internal/payment"
)

// PaidMode says how a request satisfied the payment gate.
type PaidMode string

const (
	PaidModeUnset     PaidMode = ""
	PaidModeX402      PaidMode = "x402"
	PaidModeDevBypass PaidMode = "dev_bypass"
)

// RequestContext is the per-request record threaded through every stage.
// One instance per inbound request, owned by the pipeline for that
// request's lifetime. Paid implies PaidMode != unset; SettlementRef is
// only ever set after Paid.
type RequestContext struct {
	RequestID string
	StartedAt time.Time

	// ClientKey identifies the caller for rate limiting (client address).
	ClientKey string

	Paid        bool
	PaidMode    PaidMode
	Amount      string
	PayerWallet string
	Receiver    string

	IdempotencyKey string
	SettlementRef  string
	// Settlement holds the facilitator's full settlement result so the
	// transport can echo it in the payment response header.
	Settlement *payment.SettleResponse

	// ledgerHeld is true while this request holds the in-flight mark for
	// its idempotency key; Finalize resolves it exactly once.
	ledgerHeld bool
	// unpaidCharged is true once the unpaid-attempt limiter has been
	// charged for this request, so Finalize never double-charges.
	unpaidCharged bool
}

// NewRequestContext creates a context for an inbound request.
func NewRequestContext(clientKey string) *RequestContext {
	return &RequestContext{
		RequestID: uuid.NewString(),
		StartedAt: time.Now(),
		ClientKey: clientKey,
	}
}

// Outcome summarizes the payment result for the completion log.
func (rc *RequestContext) Outcome() string {
	switch {
	case rc.Paid && rc.PaidMode == PaidModeDevBypass:
		return "dev_bypass"
	case rc.Paid:
		return "paid"
	default:
		return "unpaid"
	}
}
