// Package payment implements the x402 admission side of the service:
// protocol types, the payment header codec, the facilitator client and
// the gate that decides whether a request carries valid payment.
package payment

import (
	"fmt"
	"strings"
)

// ProtocolVersion is the x402 protocol version this service speaks.
const ProtocolVersion = 2

// Network is a blockchain network identifier in CAIP-2 format,
// namespace:reference (e.g. "eip155:8453" for Base mainnet).
type Network string

// Parse splits the network into namespace and reference components.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match checks whether this network matches a pattern. Patterns may end in
// ":*" to cover a whole namespace, and matching is bidirectional.
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}
	if strings.HasSuffix(string(pattern), ":*") {
		return strings.HasPrefix(string(n), strings.TrimSuffix(string(pattern), "*"))
	}
	if strings.HasSuffix(string(n), ":*") {
		return strings.HasPrefix(string(pattern), strings.TrimSuffix(string(n), "*"))
	}
	return false
}

// Requirements defines what payment is acceptable for the resource.
type Requirements struct {
	Scheme            string  `json:"scheme"`
	Network           Network `json:"network"`
	Asset             string  `json:"asset"`
	Amount            string  `json:"amount"`
	PayTo             string  `json:"payTo"`
	MaxTimeoutSeconds int     `json:"maxTimeoutSeconds"`
}

// Payload is the signed payment authorization attached by a client.
type Payload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    Requirements           `json:"accepted"`
}

// RequiredResponse is the machine-readable 402 body describing how to
// retry with payment.
type RequiredResponse struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    string                 `json:"resource,omitempty"`
	Accepts     []Requirements         `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// VerifyRequest is the facilitator verify call body.
type VerifyRequest struct {
	PaymentPayload      Payload      `json:"paymentPayload"`
	PaymentRequirements Requirements `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's verification result.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleRequest is the facilitator settle call body.
type SettleRequest struct {
	PaymentPayload      Payload      `json:"paymentPayload"`
	PaymentRequirements Requirements `json:"paymentRequirements"`
}

// SettleResponse is the facilitator's settlement result. Transaction is
// the on-chain settlement reference.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network"`
}

// SupportedKind is one payment configuration a facilitator supports.
type SupportedKind struct {
	X402Version int     `json:"x402Version"`
	Scheme      string  `json:"scheme"`
	Network     Network `json:"network"`
}

// SupportedResponse describes what payment kinds a facilitator supports.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// ValidatePayload performs structural validation on a payment payload
// before it is sent to the facilitator.
func ValidatePayload(p Payload) error {
	if p.X402Version != ProtocolVersion {
		return fmt.Errorf("unsupported x402 version: %d", p.X402Version)
	}
	if p.Accepted.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if p.Accepted.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload is required")
	}
	return nil
}

// ValidateRequirements performs structural validation on requirements.
func ValidateRequirements(r Requirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.Amount == "" {
		return fmt.Errorf("payment amount is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}
