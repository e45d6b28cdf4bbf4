package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

// Mock facilitator for testing
type mockFacilitator struct {
	verify    func(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
	settle    func(ctx context.Context, req SettleRequest) (*SettleResponse, error)
	supported func(ctx context.Context) (*SupportedResponse, error)

	verifyCalls int
	settleCalls int
}

func (m *mockFacilitator) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	m.verifyCalls++
	if m.verify != nil {
		return m.verify(ctx, req)
	}
	return &VerifyResponse{IsValid: true, Payer: "0xpayer"}, nil
}

func (m *mockFacilitator) Settle(ctx context.Context, req SettleRequest) (*SettleResponse, error) {
	m.settleCalls++
	if m.settle != nil {
		return m.settle(ctx, req)
	}
	return &SettleResponse{Success: true, Payer: "0xpayer", Transaction: "0xtx", Network: "eip155:84532"}, nil
}

func (m *mockFacilitator) GetSupported(ctx context.Context) (*SupportedResponse, error) {
	if m.supported != nil {
		return m.supported(ctx)
	}
	return &SupportedResponse{Kinds: []SupportedKind{
		{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:84532"},
	}}, nil
}

func testRequirements() Requirements {
	return Requirements{
		Scheme:  "exact",
		Network: "eip155:84532",
		Asset:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Amount:  "10000",
		PayTo:   "0x1111111111111111111111111111111111111111",
	}
}

func testCredential(t *testing.T) string {
	t.Helper()
	payload := Payload{
		X402Version: ProtocolVersion,
		Payload:     map[string]interface{}{"signature": "0xsig", "nonce": "1"},
		Accepted:    testRequirements(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestGate_VerifiedAdmission(t *testing.T) {
	fac := &mockFacilitator{}
	gate := NewGate(testRequirements(), false, fac)

	adm, rej := gate.Admit(context.Background(), testCredential(t), false, "/v1/resource")
	if rej != nil {
		t.Fatalf("expected admission, got rejection: %+v", rej)
	}
	if adm.Bypass {
		t.Error("verified admission must not be marked bypass")
	}
	if adm.Payer != "0xpayer" {
		t.Errorf("payer not extracted, got %q", adm.Payer)
	}
	if adm.Settlement == nil || adm.Settlement.Transaction != "0xtx" {
		t.Error("settlement evidence not populated")
	}
	if fac.verifyCalls != 1 || fac.settleCalls != 1 {
		t.Errorf("expected one verify and one settle, got %d/%d", fac.verifyCalls, fac.settleCalls)
	}
}

func TestGate_NoCredential(t *testing.T) {
	gate := NewGate(testRequirements(), false, &mockFacilitator{})

	adm, rej := gate.Admit(context.Background(), "", false, "/v1/resource")
	if adm != nil {
		t.Fatal("request without credential must not be admitted")
	}
	if rej.Reason != ReasonRequired {
		t.Fatalf("expected ReasonRequired, got %v", rej.Reason)
	}
	if rej.Instructions == nil {
		t.Fatal("payment-required rejection must carry instructions")
	}
	if len(rej.Instructions.Accepts) != 1 {
		t.Fatalf("instructions must list accepted requirements")
	}
	accepted := rej.Instructions.Accepts[0]
	if accepted.Amount != "10000" || accepted.PayTo != testRequirements().PayTo {
		t.Error("instructions must carry price and recipient")
	}
}

func TestGate_MalformedCredential(t *testing.T) {
	fac := &mockFacilitator{}
	gate := NewGate(testRequirements(), false, fac)

	for _, credential := range []string{
		"not-base64!",
		base64.StdEncoding.EncodeToString([]byte("not json")),
	} {
		adm, rej := gate.Admit(context.Background(), credential, false, "/v1/resource")
		if adm != nil {
			t.Fatalf("malformed credential %q must not be admitted", credential)
		}
		if rej.Reason != ReasonInvalid {
			t.Errorf("malformed credential should be ReasonInvalid, got %v", rej.Reason)
		}
	}
	if fac.verifyCalls != 0 {
		t.Error("malformed credentials must not reach the facilitator")
	}
}

func TestGate_SchemeMismatch(t *testing.T) {
	gate := NewGate(testRequirements(), false, &mockFacilitator{})

	payload := Payload{
		X402Version: ProtocolVersion,
		Payload:     map[string]interface{}{"signature": "0xsig"},
		Accepted: Requirements{
			Scheme:  "upto",
			Network: "eip155:84532",
			Asset:   "0x0", Amount: "1", PayTo: "0x1",
		},
	}
	raw, _ := json.Marshal(payload)
	credential := base64.StdEncoding.EncodeToString(raw)

	_, rej := gate.Admit(context.Background(), credential, false, "/v1/resource")
	if rej == nil || rej.Reason != ReasonInvalid {
		t.Fatalf("scheme mismatch should be ReasonInvalid, got %+v", rej)
	}
}

func TestGate_VerificationFailed(t *testing.T) {
	fac := &mockFacilitator{
		verify: func(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
			return &VerifyResponse{IsValid: false, InvalidReason: "signature invalid"}, nil
		},
	}
	gate := NewGate(testRequirements(), false, fac)

	_, rej := gate.Admit(context.Background(), testCredential(t), false, "/v1/resource")
	if rej == nil || rej.Reason != ReasonInvalid {
		t.Fatalf("failed verification should be ReasonInvalid, got %+v", rej)
	}
	if rej.Message != "signature invalid" {
		t.Errorf("rejection should carry the facilitator reason, got %q", rej.Message)
	}
	if fac.settleCalls != 0 {
		t.Error("settlement must not run after failed verification")
	}
}

func TestGate_FacilitatorUnavailable(t *testing.T) {
	fac := &mockFacilitator{
		verify: func(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	gate := NewGate(testRequirements(), false, fac)

	_, rej := gate.Admit(context.Background(), testCredential(t), false, "/v1/resource")
	if rej == nil || rej.Reason != ReasonUnavailable {
		t.Fatalf("transport failure should be ReasonUnavailable, got %+v", rej)
	}
}

func TestGate_SettlementFailed(t *testing.T) {
	fac := &mockFacilitator{
		settle: func(ctx context.Context, req SettleRequest) (*SettleResponse, error) {
			return &SettleResponse{Success: false, ErrorReason: "insufficient funds"}, nil
		},
	}
	gate := NewGate(testRequirements(), false, fac)

	_, rej := gate.Admit(context.Background(), testCredential(t), false, "/v1/resource")
	if rej == nil || rej.Reason != ReasonInvalid {
		t.Fatalf("failed settlement should be ReasonInvalid, got %+v", rej)
	}
}

func TestGate_BypassAdmission(t *testing.T) {
	fac := &mockFacilitator{}
	gate := NewGate(testRequirements(), true, fac)

	adm, rej := gate.Admit(context.Background(), "", true, "/v1/resource")
	if rej != nil {
		t.Fatalf("bypass signal should admit, got %+v", rej)
	}
	if !adm.Bypass {
		t.Error("bypass admission must be marked")
	}
	if adm.Settlement != nil {
		t.Error("bypass admission must not carry settlement evidence")
	}
	if fac.verifyCalls != 0 || fac.settleCalls != 0 {
		t.Error("bypass must not contact the facilitator")
	}
}

func TestGate_BypassEnabledSignalMissing(t *testing.T) {
	gate := NewGate(testRequirements(), true, &mockFacilitator{})

	adm, rej := gate.Admit(context.Background(), "", false, "/v1/resource")
	if adm != nil {
		t.Fatal("missing bypass signal must reject")
	}
	if rej.Reason != ReasonRequired {
		t.Fatalf("expected ReasonRequired, got %v", rej.Reason)
	}
	if rej.Instructions == nil || rej.Instructions.Extensions == nil {
		t.Fatal("rejection must identify the bypass mechanism")
	}
	hint, ok := rej.Instructions.Extensions["devBypass"].(map[string]interface{})
	if !ok || hint["header"] != BypassHeader {
		t.Error("bypass hint must name the bypass header")
	}
}

func TestGate_Ready(t *testing.T) {
	gate := NewGate(testRequirements(), false, &mockFacilitator{})
	if err := gate.Ready(context.Background()); err != nil {
		t.Errorf("matching supported kinds should be ready: %v", err)
	}

	unsupported := &mockFacilitator{
		supported: func(ctx context.Context) (*SupportedResponse, error) {
			return &SupportedResponse{Kinds: []SupportedKind{
				{X402Version: ProtocolVersion, Scheme: "exact", Network: "solana:mainnet"},
			}}, nil
		},
	}
	gate = NewGate(testRequirements(), false, unsupported)
	if err := gate.Ready(context.Background()); err == nil {
		t.Error("mismatched supported kinds should not be ready")
	}

	down := &mockFacilitator{
		supported: func(ctx context.Context) (*SupportedResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	gate = NewGate(testRequirements(), false, down)
	if err := gate.Ready(context.Background()); err == nil {
		t.Error("unreachable facilitator should not be ready")
	}
}

func TestGate_ReadyWithBypass(t *testing.T) {
	gate := NewGate(testRequirements(), true, nil)
	if err := gate.Ready(context.Background()); err != nil {
		t.Errorf("bypass mode needs no facilitator: %v", err)
	}
}

func TestNetwork_Match(t *testing.T) {
	tests := []struct {
		n, pattern Network
		want       bool
	}{
		{"eip155:1", "eip155:1", true},
		{"eip155:1", "eip155:*", true},
		{"eip155:*", "eip155:8453", true},
		{"eip155:1", "solana:*", false},
		{"eip155:1", "eip155:2", false},
	}
	for _, tt := range tests {
		if got := tt.n.Match(tt.pattern); got != tt.want {
			t.Errorf("Network(%q).Match(%q) = %v, want %v", tt.n, tt.pattern, got, tt.want)
		}
	}
}
