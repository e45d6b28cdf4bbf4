package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Header names carrying payment evidence over HTTP. The credential and the
// settlement receipt both travel as base64-encoded JSON.
const (
	PaymentHeader         = "X-Payment"
	PaymentResponseHeader = "X-Payment-Response"
)

// DecodeHeader decodes an X-Payment header value into a payment payload.
func DecodeHeader(value string) (*Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("payment header is not valid JSON: %w", err)
	}
	return &p, nil
}

// EncodeSettlementHeader encodes a settlement result for the
// X-Payment-Response response header.
func EncodeSettlementHeader(settlement *SettleResponse) (string, error) {
	raw, err := json.Marshal(settlement)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
