// Package pipeline composes the request-admission stages into one fixed
// execution order and owns the commit point for the idempotency ledger.
package pipeline

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/paygate/paygate/internal/ledger"
	"github.com/paygate/paygate/internal/payment"
	"github.com/paygate/paygate/internal/ratelimit"
)

// AdmissionRequest is the transport-neutral view of an inbound request,
// extracted by the HTTP adapters before the stages run.
type AdmissionRequest struct {
	Method         string
	Path           string
	Monetized      bool
	IdempotencyKey string
	PaymentHeader  string
	BypassSignal   bool
}

// Rejection is a terminal admission decision. Once produced, no later
// stage runs and the transport writes exactly one error response.
type Rejection struct {
	Code         Code
	Message      string
	Instructions *payment.RequiredResponse
}

// Body builds the envelope for this rejection.
func (r *Rejection) Body() ErrorBody {
	body := NewErrorBody(r.Code, r.Message)
	body.Payment = r.Instructions
	return body
}

// Pipeline runs the ordered admission stages:
// global limiter → idempotency precheck → payment gate → unpaid limiter.
// The stateful primitives are injected once at construction; there is no
// ambient global state.
type Pipeline struct {
	global *ratelimit.Limiter
	unpaid *ratelimit.Limiter
	ledger *ledger.Ledger
	gate   *payment.Gate
	log    *zap.Logger
}

// New wires the pipeline. All collaborators are required.
func New(global, unpaid *ratelimit.Limiter, led *ledger.Ledger, gate *payment.Gate, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		global: global,
		unpaid: unpaid,
		ledger: led,
		gate:   gate,
		log:    log,
	}
}

// Gate exposes the payment gate for readiness checks.
func (p *Pipeline) Gate() *payment.Gate { return p.gate }

// Admit runs every pre-handler stage against rc. A nil return means the
// request may reach the handler; otherwise the returned rejection is
// terminal. On admission of a monetized request, rc carries the paid
// context and holds the in-flight mark for its idempotency key until
// Finalize resolves it.
func (p *Pipeline) Admit(ctx context.Context, rc *RequestContext, req AdmissionRequest) *Rejection {
	admitted, err := p.global.Consume(ctx, rc.ClientKey)
	if err != nil {
		p.log.Error("rate limiter store failure",
			zap.String("limiter", p.global.Name()),
			zap.String("request_id", rc.RequestID),
			zap.Error(err))
		return &Rejection{Code: CodeInternalError, Message: "internal error"}
	}
	if !admitted {
		return &Rejection{Code: CodeRateLimited, Message: "rate limit exceeded"}
	}

	if !req.Monetized {
		return nil
	}

	if req.IdempotencyKey == "" {
		return &Rejection{
			Code:    CodeIdempotencyRequired,
			Message: "Idempotency-Key header is required",
		}
	}
	rc.IdempotencyKey = req.IdempotencyKey

	switch p.ledger.Admit(req.IdempotencyKey) {
	case ledger.StatusCommitted:
		return &Rejection{
			Code:    CodeIdempotencyReplay,
			Message: "idempotency key was already used for a committed request",
		}
	case ledger.StatusPending:
		return &Rejection{
			Code:    CodeIdempotencyReplay,
			Message: "a request with this idempotency key is already in flight",
		}
	}
	rc.ledgerHeld = true

	adm, rej := p.gate.Admit(ctx, req.PaymentHeader, req.BypassSignal, req.Path)
	if rej != nil {
		// The key stays retryable: an unpaid attempt must never poison
		// the ledger.
		p.ledger.Release(rc.IdempotencyKey)
		rc.ledgerHeld = false
		return p.rejectUnpaid(ctx, rc, rej)
	}

	terms := p.gate.Requirements()
	rc.Paid = true
	rc.PaidMode = PaidModeX402
	if adm.Bypass {
		rc.PaidMode = PaidModeDevBypass
	}
	rc.Amount = terms.Amount
	rc.Receiver = terms.PayTo
	rc.PayerWallet = adm.Payer
	if adm.Settlement != nil {
		rc.Settlement = adm.Settlement
		rc.SettlementRef = adm.Settlement.Transaction
	}
	return nil
}

// Finalize is the response observer. It runs exactly once per request,
// regardless of outcome: a payment-required status charges the
// unpaid-attempt limiter, and a successful paid response commits the
// idempotency key. No other path mutates either primitive.
func (p *Pipeline) Finalize(ctx context.Context, rc *RequestContext, status int) {
	if status == http.StatusPaymentRequired && !rc.unpaidCharged {
		p.chargeUnpaid(ctx, rc)
	}

	if !rc.ledgerHeld {
		return
	}
	rc.ledgerHeld = false

	if rc.Paid && status < 400 {
		p.ledger.Commit(rc.IdempotencyKey)
		return
	}
	p.ledger.Release(rc.IdempotencyKey)
}

// rejectUnpaid converts a gate rejection into a terminal decision,
// charging the unpaid-attempt limiter for attempts that carried no valid
// payment. Dependency failures are not abuse and are not charged.
func (p *Pipeline) rejectUnpaid(ctx context.Context, rc *RequestContext, rej *payment.Rejection) *Rejection {
	switch rej.Reason {
	case payment.ReasonUnavailable:
		return &Rejection{Code: CodeNotReady, Message: "payment gate unavailable"}
	case payment.ReasonInvalid:
		if !p.chargeUnpaid(ctx, rc) {
			return &Rejection{Code: CodeRateLimited, Message: "too many unpaid attempts"}
		}
		return &Rejection{Code: CodePaymentInvalid, Message: rej.Message}
	default:
		if !p.chargeUnpaid(ctx, rc) {
			return &Rejection{Code: CodeRateLimited, Message: "too many unpaid attempts"}
		}
		return &Rejection{
			Code:         CodePaymentRequired,
			Message:      rej.Message,
			Instructions: rej.Instructions,
		}
	}
}

// chargeUnpaid consumes the unpaid-attempt limiter once for this request.
// Returns false when the client exhausted its unpaid budget. Store
// failures are logged and treated as admitted so a Redis outage cannot
// turn every 402 into a 500.
func (p *Pipeline) chargeUnpaid(ctx context.Context, rc *RequestContext) bool {
	rc.unpaidCharged = true
	admitted, err := p.unpaid.Consume(ctx, rc.ClientKey)
	if err != nil {
		p.log.Error("rate limiter store failure",
			zap.String("limiter", p.unpaid.Name()),
			zap.String("request_id", rc.RequestID),
			zap.Error(err))
		return true
	}
	return admitted
}
