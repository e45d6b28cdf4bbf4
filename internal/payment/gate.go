package payment

import (
	"context"
)

// BypassHeader is the request header that admits a request without real
// payment when dev bypass is enabled. Never honored in production; config
// loading refuses to start with bypass enabled there.
const BypassHeader = "X-Dev-Bypass"

// Reason classifies why the gate rejected a request.
type Reason int

const (
	// ReasonRequired means no acceptable payment evidence was presented.
	ReasonRequired Reason = iota
	// ReasonInvalid means evidence was presented but is malformed or
	// failed verification/settlement.
	ReasonInvalid
	// ReasonUnavailable means the facilitator could not be reached; the
	// caller may retry unchanged.
	ReasonUnavailable
)

// Admission is the normalized payment context for an admitted request.
type Admission struct {
	// Bypass is true when the request was admitted by dev bypass rather
	// than a verified payment.
	Bypass     bool
	Payer      string
	Settlement *SettleResponse // nil on bypass
}

// Rejection describes a refused request. Instructions is populated for
// ReasonRequired so the 402 body can tell the caller how to pay.
type Rejection struct {
	Reason       Reason
	Message      string
	Instructions *RequiredResponse
}

// Gate decides whether a request on a monetized route carries valid,
// sufficient payment evidence. Verification and settlement are delegated
// to the facilitator; the gate only orchestrates and normalizes.
type Gate struct {
	requirements Requirements
	bypass       bool
	facilitator  FacilitatorClient
}

// NewGate creates a gate for a single set of payment terms.
func NewGate(requirements Requirements, bypass bool, facilitator FacilitatorClient) *Gate {
	if requirements.MaxTimeoutSeconds == 0 {
		requirements.MaxTimeoutSeconds = 300
	}
	return &Gate{
		requirements: requirements,
		bypass:       bypass,
		facilitator:  facilitator,
	}
}

// Requirements returns the gate's payment terms.
func (g *Gate) Requirements() Requirements { return g.requirements }

// RequiredResponse builds the machine-readable 402 body for resource.
func (g *Gate) RequiredResponse(resource, errorMsg string) *RequiredResponse {
	if errorMsg == "" {
		errorMsg = "Payment required"
	}
	resp := &RequiredResponse{
		X402Version: ProtocolVersion,
		Error:       errorMsg,
		Resource:    resource,
		Accepts:     []Requirements{g.requirements},
	}
	if g.bypass {
		resp.Extensions = map[string]interface{}{
			"devBypass": map[string]interface{}{"header": BypassHeader},
		}
	}
	return resp
}

// Admit evaluates payment evidence for a request on a monetized route.
// credential is the raw X-Payment header value ("" when absent) and
// bypassSignal reports whether the bypass header was present.
func (g *Gate) Admit(ctx context.Context, credential string, bypassSignal bool, resource string) (*Admission, *Rejection) {
	if g.bypass {
		if bypassSignal {
			return &Admission{Bypass: true, Payer: "dev-bypass"}, nil
		}
		return nil, &Rejection{
			Reason:       ReasonRequired,
			Message:      "payment required (dev bypass enabled: set " + BypassHeader + ")",
			Instructions: g.RequiredResponse(resource, "Payment required"),
		}
	}

	if credential == "" {
		return nil, &Rejection{
			Reason:       ReasonRequired,
			Message:      "payment required",
			Instructions: g.RequiredResponse(resource, "Payment required"),
		}
	}

	payload, err := DecodeHeader(credential)
	if err != nil {
		return nil, &Rejection{Reason: ReasonInvalid, Message: err.Error()}
	}
	if err := ValidatePayload(*payload); err != nil {
		return nil, &Rejection{Reason: ReasonInvalid, Message: err.Error()}
	}
	if !payload.Accepted.Network.Match(g.requirements.Network) || payload.Accepted.Scheme != g.requirements.Scheme {
		return nil, &Rejection{
			Reason:  ReasonInvalid,
			Message: "payment does not match accepted scheme/network",
		}
	}

	verify, err := g.facilitator.Verify(ctx, VerifyRequest{
		PaymentPayload:      *payload,
		PaymentRequirements: g.requirements,
	})
	if err != nil {
		return nil, &Rejection{Reason: ReasonUnavailable, Message: "payment verification unavailable"}
	}
	if !verify.IsValid {
		msg := verify.InvalidReason
		if msg == "" {
			msg = "payment verification failed"
		}
		return nil, &Rejection{Reason: ReasonInvalid, Message: msg}
	}

	settle, err := g.facilitator.Settle(ctx, SettleRequest{
		PaymentPayload:      *payload,
		PaymentRequirements: g.requirements,
	})
	if err != nil {
		return nil, &Rejection{Reason: ReasonUnavailable, Message: "payment settlement unavailable"}
	}
	if !settle.Success {
		msg := settle.ErrorReason
		if msg == "" {
			msg = "payment settlement failed"
		}
		return nil, &Rejection{Reason: ReasonInvalid, Message: msg}
	}

	payer := settle.Payer
	if payer == "" {
		payer = verify.Payer
	}
	return &Admission{Payer: payer, Settlement: settle}, nil
}

// Ready probes the facilitator; an error means the payment dependency is
// not ready and monetized routes cannot be served.
func (g *Gate) Ready(ctx context.Context) error {
	if g.bypass {
		return nil
	}
	supported, err := g.facilitator.GetSupported(ctx)
	if err != nil {
		return err
	}
	for _, kind := range supported.Kinds {
		if kind.X402Version == ProtocolVersion &&
			kind.Scheme == g.requirements.Scheme &&
			kind.Network.Match(g.requirements.Network) {
			return nil
		}
	}
	return NewError(ErrCodeUnsupportedScheme,
		"facilitator does not support configured payment terms", nil)
}
